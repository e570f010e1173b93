// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"context"
	"fmt"
	"slices"
)

// DBAction is one step of a create/drop pipeline: a single named, idempotent
// unit of work against the host database.
type DBAction interface {
	ID() string
	Execute(context.Context) error
}

// Coordinator runs a series of DBActions in order, executing each action
// exactly once even if it was added more than once (ported from
// pkg/migrations/coordinator.go near-verbatim: the dedup-and-reorder
// behavior is exactly what this package needs too, since a retried Create
// call can re-add the same-ID actions).
type Coordinator struct {
	actions map[string]DBAction
	order   []string
}

// NewCoordinator builds a Coordinator from actions, deduping by ID and
// keeping only the last-added instance of any repeated ID.
func NewCoordinator(actions []DBAction) *Coordinator {
	actionsMap := make(map[string]DBAction, len(actions))
	order := make([]string, 0, len(actions))
	for _, action := range actions {
		if _, exists := actionsMap[action.ID()]; exists {
			order = moveIdxToLast(order, slices.Index(order, action.ID()))
		} else {
			order = append(order, action.ID())
		}
		actionsMap[action.ID()] = action
	}
	return &Coordinator{actions: actionsMap, order: order}
}

// Execute runs every action in order, stopping (and returning) at the first
// error. The caller's transaction rolls back whatever already ran (spec
// §4.4: "host semantics guarantee rollback of every object on failure").
func (c *Coordinator) Execute(ctx context.Context) error {
	for _, id := range c.order {
		action, exists := c.actions[id]
		if !exists {
			return fmt.Errorf("action %s not found", id)
		}
		if err := action.Execute(ctx); err != nil {
			return fmt.Errorf("failed to execute action %s: %w", id, err)
		}
	}
	return nil
}

func moveIdxToLast(actions []string, idx int) []string {
	if idx < 0 || idx >= len(actions) {
		return actions
	}
	duplicate := actions[idx]
	actions = append(actions[:idx], actions[idx+1:]...)
	if len(actions) > 0 && actions[len(actions)-1] == duplicate {
		return actions
	}
	return append(actions, duplicate)
}
