// SPDX-License-Identifier: Apache-2.0

// Package refresh is C6: the refresh engine (spec §4.6). Like pkg/queue and
// pkg/patch, it is realized as a single generated PL/pgSQL function installed
// once per catalog schema rather than as Go code driven over database/sql:
// C8's generated pg_tview_drain calls it by name for every popped queue item,
// entirely inside the host's own backend, with no Go process in that loop.
package refresh

import (
	"context"
	"fmt"

	"github.com/fraiseql/pgtviews/pkg/db"
)

// FunctionName is the bare name of the generated refresh function.
const FunctionName = "pg_tview_refresh_one"

// QualifiedName returns the catalog-schema-qualified name Install creates,
// the name pkg/queue's generated pg_tview_drain calls.
func QualifiedName(catalogSchema string) string {
	return catalogSchema + "." + FunctionName
}

// Install creates pg_tview_refresh_one in catalogSchema (spec §4.6). It is
// idempotent (CREATE OR REPLACE) and is called once by the engine's Init,
// alongside C7 and C8's own generated functions (C5's triggers are
// installed per entity by Create, not by Init).
func Install(ctx context.Context, conn db.DB, catalogSchema string) error {
	cfg := config{CatalogSchema: catalogSchema}
	stmt := build("refresh_one", refreshOneFunction, cfg)
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("installing refresh engine in schema %q: %w", catalogSchema, err)
	}
	return nil
}
