// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"context"
	"fmt"

	"github.com/fraiseql/pgtviews/pkg/db"
)

// FunctionNames are the catalog-schema-qualified names of the primitives,
// rendered at the same schema Install installs into. pkg/refresh's
// generated function calls them; pkg/propagate does not.
type FunctionNames struct {
	MergeShallow     string
	MergeAtPath      string
	ArrayUpdateWhere string
	ArrayUpdateBatch string
}

// Names returns the qualified function names Install will have created in
// catalogSchema.
func Names(catalogSchema string) FunctionNames {
	return FunctionNames{
		MergeShallow:     catalogSchema + ".pg_tview_merge_shallow",
		MergeAtPath:      catalogSchema + ".pg_tview_merge_at_path",
		ArrayUpdateWhere: catalogSchema + ".pg_tview_array_update_where",
		ArrayUpdateBatch: catalogSchema + ".pg_tview_array_update_batch",
	}
}

// Install creates the four primitives in catalogSchema (spec §6). It is
// idempotent (CREATE OR REPLACE) and is called once by the engine's Init,
// alongside C6-C8's own generated functions (C5's triggers are installed
// per entity by Create, not by Init).
func Install(ctx context.Context, conn db.DB, catalogSchema string) error {
	cfg := config{CatalogSchema: catalogSchema}

	statements := []string{
		build("merge_shallow", mergeShallowFunction, cfg),
		build("merge_at_path", mergeAtPathFunction, cfg),
		build("array_update_where", arrayUpdateWhereFunction, cfg),
		build("array_update_batch", arrayUpdateBatchFunction, cfg),
	}

	for _, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("installing patch primitives in schema %q: %w", catalogSchema, err)
		}
	}
	return nil
}

// Availability reports, per primitive, whether an external extension
// provides it (spec §6's check_surgical_patch_available). It is purely
// informational: pg_tview_merge_shallow and friends already dispatch to the
// extension transparently when present, so nothing downstream branches on
// this — it exists for health_check/diagnostics output.
type Availability struct {
	MergeShallow     bool
	MergeAtPath      bool
	ArrayUpdateWhere bool
	ArrayUpdateBatch bool
}

// Any reports whether at least one primitive is backed by an installed
// extension rather than this package's jsonb-builtin fallback.
func (a Availability) Any() bool {
	return a.MergeShallow || a.MergeAtPath || a.ArrayUpdateWhere || a.ArrayUpdateBatch
}

// CheckSurgicalPatchAvailable implements spec §6's check_surgical_patch_available:
// it probes pg_proc via to_regprocedure for each of the four primitive names,
// the same probe the installed functions themselves use at call time.
func CheckSurgicalPatchAvailable(ctx context.Context, conn db.DB) (Availability, error) {
	probe := func(signature string) (bool, error) {
		row := conn.QueryRowContext(ctx, `SELECT to_regprocedure($1) IS NOT NULL`, signature)
		var ok bool
		if err := row.Scan(&ok); err != nil {
			return false, fmt.Errorf("probing for %s: %w", signature, err)
		}
		return ok, nil
	}

	var a Availability
	var err error
	if a.MergeShallow, err = probe("merge_shallow(jsonb,jsonb)"); err != nil {
		return Availability{}, err
	}
	if a.MergeAtPath, err = probe("merge_at_path(jsonb,jsonb,text[])"); err != nil {
		return Availability{}, err
	}
	if a.ArrayUpdateWhere, err = probe("array_update_where(jsonb,text[],text,text,jsonb)"); err != nil {
		return Availability{}, err
	}
	if a.ArrayUpdateBatch, err = probe("array_update_batch(jsonb,text[],text,jsonb)"); err != nil {
		return Availability{}, err
	}
	return a, nil
}
