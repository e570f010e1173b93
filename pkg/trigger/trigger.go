// SPDX-License-Identifier: Apache-2.0

// Package trigger is C5: the trigger installer (spec §4.5). It generates and
// installs, on every transitive base table of a projection, the PL/pgSQL
// function + AFTER ROW trigger pair that enqueues the projection's refresh
// keys into the transaction-local queue (C8) whenever that table changes.
package trigger

import (
	"context"
	"fmt"

	"github.com/fraiseql/pgtviews/pkg/db"
	"github.com/fraiseql/pgtviews/pkg/trigger/templates"
)

// QueueTable is the name of the transaction-local coalescing queue (C8),
// realized as a `CREATE TEMP TABLE ... ON COMMIT DELETE ROWS` table: Postgres
// truncates it automatically at the end of every transaction, which is
// exactly the transaction-local lifetime spec §4.8 requires, with no
// explicit cleanup step for the engine to forget. See pkg/queue.
const QueueTable = "pg_tview_queue"

// DefaultClassification is used when a trigger fires from a direct change on
// the entity's own base table rather than from propagation (spec §4.6 step
// 5: "fall back to a full overwrite when the refresh originates from a
// direct base-table change"). "unknown" sorts below every real
// classification in pkg/catalog's precedence order, so any later propagated
// enqueue for the same key still wins the classification, and if none
// arrives the refresh engine's own fallback-to-overwrite behavior applies.
const DefaultClassification = "unknown"

// Installer installs and removes C5 triggers for a single Postgres
// connection/transaction.
type Installer struct {
	conn          db.DB
	catalogSchema string
}

// New returns an Installer whose generated SQL reads pg_tview_meta from
// catalogSchema.
func New(conn db.DB, catalogSchema string) *Installer {
	return &Installer{conn: conn, catalogSchema: catalogSchema}
}

// FunctionName returns the trigger function name for (entity, tableName),
// following pgroll's `_pgroll_trigger_<table>_<column>` naming convention,
// adapted to this package's (entity, table) keying (spec §4.5: "a generated
// name").
func FunctionName(entity, tableName string) string {
	return fmt.Sprintf("pg_tview_enqueue_%s_%s", entity, tableName)
}

// TriggerName returns the trigger name for (entity, tableName).
func TriggerName(entity, tableName string) string {
	return FunctionName(entity, tableName)
}

// Install installs the enqueue function + trigger for entity on tableName.
// Idempotent: CREATE OR REPLACE is used throughout (spec §4.5).
func (in *Installer) Install(ctx context.Context, entity, tableName string) error {
	cfg := templates.Config{
		FunctionName:          FunctionName(entity, tableName),
		TriggerName:           TriggerName(entity, tableName),
		TableName:             tableName,
		CatalogSchema:         in.catalogSchema,
		QueueTable:            QueueTable,
		DefaultClassification: DefaultClassification,
	}

	funcSQL, err := templates.Build("enqueue_function", templates.EnqueueFunction, cfg)
	if err != nil {
		return fmt.Errorf("rendering enqueue function for %s on %s: %w", entity, tableName, err)
	}
	if _, err := in.conn.ExecContext(ctx, funcSQL); err != nil {
		return fmt.Errorf("installing enqueue function for %s on %s: %w", entity, tableName, err)
	}

	triggerSQL, err := templates.Build("enqueue_trigger", templates.EnqueueTrigger, cfg)
	if err != nil {
		return fmt.Errorf("rendering enqueue trigger for %s on %s: %w", entity, tableName, err)
	}
	if _, err := in.conn.ExecContext(ctx, triggerSQL); err != nil {
		return fmt.Errorf("installing enqueue trigger for %s on %s: %w", entity, tableName, err)
	}

	return nil
}

// Uninstall drops the trigger and function installed for entity on
// tableName (spec §4.5: "Un-installation on drop is by trigger-name").
func (in *Installer) Uninstall(ctx context.Context, entity, tableName string) error {
	cfg := templates.Config{
		FunctionName: FunctionName(entity, tableName),
		TriggerName:  TriggerName(entity, tableName),
		TableName:    tableName,
	}

	dropTriggerSQL, err := templates.Build("drop_trigger", templates.DropTrigger, cfg)
	if err != nil {
		return err
	}
	if _, err := in.conn.ExecContext(ctx, dropTriggerSQL); err != nil {
		return fmt.Errorf("dropping trigger for %s on %s: %w", entity, tableName, err)
	}

	dropFunctionSQL, err := templates.Build("drop_function", templates.DropFunction, cfg)
	if err != nil {
		return err
	}
	if _, err := in.conn.ExecContext(ctx, dropFunctionSQL); err != nil {
		return fmt.Errorf("dropping function for %s on %s: %w", entity, tableName, err)
	}

	return nil
}
