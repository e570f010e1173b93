// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/fraiseql/pgtviews/pkg/db"
)

// GetInfo implements spec §6's queue_info() → (size, entities[]): a
// realtime view of the calling session's own transaction-local queue. If
// the session has never enqueued anything, its temp table doesn't exist yet
// (pg_tview_ensure_queue creates it lazily) and GetInfo reports an empty
// queue rather than erroring.
func GetInfo(ctx context.Context, conn db.DB) (Info, error) {
	var exists bool
	probe := fmt.Sprintf(`SELECT to_regclass('pg_temp.%s') IS NOT NULL`, Table)
	if err := conn.QueryRowContext(ctx, probe).Scan(&exists); err != nil {
		return Info{}, fmt.Errorf("probing for session queue table: %w", err)
	}
	if !exists {
		return Info{}, nil
	}

	query := fmt.Sprintf(`SELECT count(*), coalesce(array_agg(DISTINCT entity), '{}') FROM %s`,
		pq.QuoteIdentifier(Table))
	row := conn.QueryRowContext(ctx, query)

	var info Info
	if err := row.Scan(&info.Size, pq.Array(&info.Entities)); err != nil {
		return Info{}, fmt.Errorf("reading session queue info: %w", err)
	}
	return info, nil
}
