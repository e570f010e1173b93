// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"fmt"

	"github.com/fraiseql/pgtviews/pkg/db"
)

// Install creates the schema-wide functions C5/C7/C8 share
// (pg_tview_more_specific, pg_tview_ensure_queue, pg_tview_drain_trigger,
// pg_tview_enqueue, pg_tview_drain) in catalogSchema. It does not create the
// per-session temp tables themselves — pg_tview_ensure_queue does that
// lazily the first time a given session enqueues anything (see
// templates.go). Idempotent: CREATE OR REPLACE throughout. Called once by
// the engine's Init, alongside pkg/patch.Install.
func Install(ctx context.Context, conn db.DB, catalogSchema string) error {
	cfg := config{
		CatalogSchema:  catalogSchema,
		QueueTable:     Table,
		ProcessedTable: ProcessedTable,
		DepthBound:     DepthBound,
	}

	statements := []string{
		build("more_specific", moreSpecificFunction, cfg),
		build("ensure_queue", ensureQueueFunction, cfg),
		build("drain_trigger", drainTriggerFunction, cfg),
		build("enqueue", enqueueFunction, cfg),
		build("drain", drainFunction, cfg),
	}

	for _, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("installing queue functions in schema %q: %w", catalogSchema, err)
		}
	}
	return nil
}
