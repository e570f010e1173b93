// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/lib/pq"

	"github.com/fraiseql/pgtviews/pkg/db"
)

// pendingRefreshesDDL creates the durable 2PC staging table (spec §6:
// "pg_tview_pending_refreshes(gid text primary key, refresh_queue jsonb,
// queue_size int, prepared_at timestamptz)"). Unlike Table/ProcessedTable
// this is a permanent, catalog-schema table: it must survive the backend
// crash or restart that a prepared-but-uncommitted transaction is designed
// to survive.
const pendingRefreshesDDL = `
CREATE TABLE IF NOT EXISTS %s.pg_tview_pending_refreshes (
	gid text PRIMARY KEY,
	refresh_queue jsonb NOT NULL,
	queue_size int NOT NULL,
	prepared_at timestamptz NOT NULL DEFAULT now()
);
`

// InstallStaging creates the 2PC staging table in catalogSchema. Separated
// from Install because it needs no templating (no generated identifiers
// beyond the schema itself) and is purely structural, like
// pkg/catalog.Catalog.Init's own table DDL.
func InstallStaging(ctx context.Context, conn db.DB, catalogSchema string) error {
	stmt := fmt.Sprintf(pendingRefreshesDDL, pq.QuoteIdentifier(catalogSchema))
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating 2PC staging table in schema %q: %w", catalogSchema, err)
	}
	return nil
}

// Stage serializes the calling session's current queue into the staging
// table under gid (the host's global transaction id), for spec §4.8's
// "on PREPARE, the queue is serialized into a durable staging table". The
// caller is expected to invoke this immediately before issuing PREPARE
// TRANSACTION on the same connection/transaction.
func Stage(ctx context.Context, conn db.DB, catalogSchema, gid string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.pg_tview_pending_refreshes (gid, refresh_queue, queue_size)
		SELECT $1, coalesce(jsonb_agg(q), '[]'::jsonb), count(*)
		FROM %s q
		ON CONFLICT (gid) DO UPDATE SET
			refresh_queue = EXCLUDED.refresh_queue,
			queue_size = EXCLUDED.queue_size,
			prepared_at = now()`,
		pq.QuoteIdentifier(catalogSchema), pq.QuoteIdentifier(Table))

	if _, err := conn.ExecContext(ctx, query, gid); err != nil {
		return fmt.Errorf("staging queue for prepared transaction %q: %w", gid, err)
	}
	return nil
}

// LoadAndDrain implements the COMMIT PREPARED half of spec §4.8's
// persistence guarantee: it reloads gid's staged queue into a fresh
// session's queue table and drains it, then removes the staging row. The
// caller must hold the advisory lock this package's RecoverOrphaned takes
// (or otherwise guarantee no concurrent recoverer is handling the same
// gid) before calling this outside of the original backend.
func LoadAndDrain(ctx context.Context, conn db.DB, catalogSchema, gid string) error {
	names := QualifiedNames(catalogSchema)

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SELECT %s()", names.EnsureQueue)); err != nil {
		return fmt.Errorf("ensuring queue for recovered transaction %q: %w", gid, err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (entity, pk, classification, patch, match_value, source_entity, depth)
		SELECT
			item->>'entity', item->>'pk', item->>'classification',
			item->'patch', item->>'match_value', item->>'source_entity', (item->>'depth')::int
		FROM %s.pg_tview_pending_refreshes, jsonb_array_elements(refresh_queue) AS item
		WHERE gid = $1
		ON CONFLICT (entity, pk) DO NOTHING`,
		pq.QuoteIdentifier(Table), pq.QuoteIdentifier(catalogSchema))
	if _, err := conn.ExecContext(ctx, insertQuery, gid); err != nil {
		return fmt.Errorf("reloading staged queue for transaction %q: %w", gid, err)
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SELECT %s()", names.Drain)); err != nil {
		return fmt.Errorf("draining recovered transaction %q: %w", gid, err)
	}

	return discardStaged(ctx, conn, catalogSchema, gid)
}

// Discard implements the ROLLBACK PREPARED half: the staged queue is simply
// removed, never drained — the transaction's writes never happened.
func Discard(ctx context.Context, conn db.DB, catalogSchema, gid string) error {
	return discardStaged(ctx, conn, catalogSchema, gid)
}

func discardStaged(ctx context.Context, conn db.DB, catalogSchema, gid string) error {
	query := fmt.Sprintf(`DELETE FROM %s.pg_tview_pending_refreshes WHERE gid = $1`,
		pq.QuoteIdentifier(catalogSchema))
	if _, err := conn.ExecContext(ctx, query, gid); err != nil {
		return fmt.Errorf("discarding staged transaction %q: %w", gid, err)
	}
	return nil
}

// RecoverOrphaned implements spec §5's "recovery of orphan prepared
// transactions is guarded by a process-wide advisory lock to prevent two
// recoverers from drainage-racing the same staging row": it lists every
// staged gid, takes a session-level advisory lock keyed by a hash of gid,
// and — only for gids it actually acquired the lock for — reports them
// back to the caller to resolve via LoadAndDrain or Discard (the decision
// of "is this prepared transaction's outcome commit or rollback" belongs to
// the host's transaction manager, not to this package). The lock is held
// for the lifetime of conn; the caller should release it (or close conn)
// once it has resolved the returned gids.
func RecoverOrphaned(ctx context.Context, conn db.DB, catalogSchema string) ([]string, error) {
	query := fmt.Sprintf(`SELECT gid FROM %s.pg_tview_pending_refreshes`, pq.QuoteIdentifier(catalogSchema))
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing staged prepared transactions: %w", err)
	}
	defer rows.Close()

	var gids []string
	for rows.Next() {
		var gid string
		if err := rows.Scan(&gid); err != nil {
			return nil, err
		}
		gids = append(gids, gid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var acquired []string
	for _, gid := range gids {
		var locked bool
		lockQuery := `SELECT pg_try_advisory_lock($1)`
		if err := conn.QueryRowContext(ctx, lockQuery, advisoryLockKey(gid)).Scan(&locked); err != nil {
			return nil, fmt.Errorf("acquiring recovery lock for %q: %w", gid, err)
		}
		if locked {
			acquired = append(acquired, gid)
		}
	}
	return acquired, nil
}

// advisoryLockKey derives a stable int64 lock key from gid. fnv64a, not a
// cryptographic hash: collisions merely serialize two unrelated recoveries
// rather than corrupt anything, an acceptable trade for a plain bigint key.
func advisoryLockKey(gid string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(gid))
	return int64(h.Sum64())
}
