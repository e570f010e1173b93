// SPDX-License-Identifier: Apache-2.0

// Package logging provides pkg/engine's structured logger, in the same
// key-value style and pterm backend the teacher's migration runner uses.
package logging

import "github.com/pterm/pterm"

// Logger is the event surface pkg/engine logs through. It is narrower than
// the teacher's migrations.Logger (there are no migration files or
// operations here) but follows the same shape: one method per lifecycle
// event plus a generic Info/Warn for everything else.
type Logger interface {
	LogProjectionCreated(entity string)
	LogProjectionDropped(entity string)
	LogProjectionReplaced(entity string)
	LogRefresh(entity, pk, classification string)
	LogCascadeDepth(entity string, depth int)

	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type ptermLogger struct {
	logger pterm.Logger
}

// New returns a Logger backed by pterm.DefaultLogger.
func New() Logger {
	return &ptermLogger{logger: pterm.DefaultLogger}
}

type noopLogger struct{}

// NewNoop returns a Logger that discards every event, the default for
// engine.New when the caller supplies no WithLogger option.
func NewNoop() Logger {
	return &noopLogger{}
}

func (l *ptermLogger) LogProjectionCreated(entity string) {
	l.logger.Info("projection created", l.logger.Args("entity", entity))
}

func (l *ptermLogger) LogProjectionDropped(entity string) {
	l.logger.Info("projection dropped", l.logger.Args("entity", entity))
}

func (l *ptermLogger) LogProjectionReplaced(entity string) {
	l.logger.Info("projection replaced", l.logger.Args("entity", entity))
}

func (l *ptermLogger) LogRefresh(entity, pk, classification string) {
	l.logger.Debug("refreshed projection row", l.logger.Args(
		"entity", entity, "pk", pk, "classification", classification))
}

func (l *ptermLogger) LogCascadeDepth(entity string, depth int) {
	l.logger.Debug("propagation depth", l.logger.Args("entity", entity, "depth", depth))
}

func (l *ptermLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.logger.Args(args...))
}

func (l *ptermLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, l.logger.Args(args...))
}

func (l *noopLogger) LogProjectionCreated(entity string)                {}
func (l *noopLogger) LogProjectionDropped(entity string)                {}
func (l *noopLogger) LogProjectionReplaced(entity string)               {}
func (l *noopLogger) LogRefresh(entity, pk, classification string)      {}
func (l *noopLogger) LogCascadeDepth(entity string, depth int)          {}
func (l *noopLogger) Info(msg string, args ...any)                      {}
func (l *noopLogger) Warn(msg string, args ...any)                      {}
