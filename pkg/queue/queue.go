// SPDX-License-Identifier: Apache-2.0

// Package queue is C8: the transaction-local coalescing queue (spec §4.8).
// It is realized almost entirely as generated PL/pgSQL rather than Go state,
// because the queue's lifetime (one session's current transaction) and its
// producer (any AFTER ROW trigger on any base table, fired by any SQL
// client, not just ones routed through this Go process) both live inside
// the Postgres backend. This package's Go half installs and introspects
// that generated SQL; it does not itself hold a queue.
package queue

// Table is the transaction-local refresh worklist, realized as a
// `CREATE TEMP TABLE ... ON COMMIT DELETE ROWS`: Postgres truncates it
// automatically at the end of every transaction, giving exactly the
// transaction-local lifetime spec §4.8 requires with no explicit cleanup.
const Table = "pg_tview_queue"

// ProcessedTable is the per-drain processed-set (spec §4.8, I5: "skipping
// any key already marked processed"), kept separate from Table because Table
// is a worklist (rows are removed once popped) while this is a memory of
// everything already popped this drain.
const ProcessedTable = "pg_tview_processed"

// PendingRefreshesTable is the durable 2PC staging table (spec §6's
// persistence layout, §4.8's "Persistence across two-phase commit").
const PendingRefreshesTable = "pg_tview_pending_refreshes"

// DepthBound is the per-drain recursion-depth guard (spec §4.8: "bounds
// recursion depth through the DAG at 10 levels"). A distinct constant from
// pkg/depgraph.DepthBound even though both happen to be 10 — that one
// bounds C3's one-time dependency-walk BFS, this one bounds C8's per-
// transaction drain loop; conflating them would be a coincidence, not a
// shared invariant.
const DepthBound = 10

func ensureQueueFunctionName(catalogSchema string) string {
	return catalogSchema + ".pg_tview_ensure_queue"
}

func enqueueFunctionName(catalogSchema string) string {
	return catalogSchema + ".pg_tview_enqueue"
}

func drainFunctionName(catalogSchema string) string {
	return catalogSchema + ".pg_tview_drain"
}

func moreSpecificFunctionName(catalogSchema string) string {
	return catalogSchema + ".pg_tview_more_specific"
}

// Names are the schema-qualified function names Install creates, for
// pkg/engine/pkg/refresh/pkg/propagate to reference without re-deriving
// them.
type Names struct {
	EnsureQueue  string
	Enqueue      string
	Drain        string
	MoreSpecific string
}

// QualifiedNames returns the function names Install will have created in
// catalogSchema.
func QualifiedNames(catalogSchema string) Names {
	return Names{
		EnsureQueue:  ensureQueueFunctionName(catalogSchema),
		Enqueue:      enqueueFunctionName(catalogSchema),
		Drain:        drainFunctionName(catalogSchema),
		MoreSpecific: moreSpecificFunctionName(catalogSchema),
	}
}

// Info is spec §6's queue_info() external operation: a point-in-time view
// of the calling session's own transaction-local queue.
type Info struct {
	Size     int
	Entities []string
}
