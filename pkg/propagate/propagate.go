// SPDX-License-Identifier: Apache-2.0

// Package propagate is C7: the propagator (spec §4.7). Like pkg/refresh, it
// is one generated PL/pgSQL function installed per catalog schema, called by
// name from pkg/queue's generated pg_tview_drain immediately after C6
// refreshes each popped item.
package propagate

import (
	"context"
	"fmt"

	"github.com/fraiseql/pgtviews/pkg/db"
)

// FunctionName is the bare name of the generated propagation function.
const FunctionName = "pg_tview_propagate_one"

// QualifiedName returns the catalog-schema-qualified name Install creates.
func QualifiedName(catalogSchema string) string {
	return catalogSchema + "." + FunctionName
}

// Install creates pg_tview_propagate_one in catalogSchema (spec §4.7). It is
// idempotent and is called once by the engine's Init, alongside C6 and C8's
// own generated functions (C5's triggers are installed per entity by
// Create, not by Init).
func Install(ctx context.Context, conn db.DB, catalogSchema string) error {
	cfg := config{CatalogSchema: catalogSchema}
	stmt := build("propagate_one", propagateOneFunction, cfg)
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("installing propagator in schema %q: %w", catalogSchema, err)
	}
	return nil
}
