// SPDX-License-Identifier: Apache-2.0

// Package inspect is C2: the schema inferrer (spec §4.2). It classifies a
// projection's output columns by name pattern and classifies each FK's
// composition into `data` by scanning the projection's SELECT text.
package inspect

import (
	"context"
	"fmt"
	"strings"

	"github.com/fraiseql/pgtviews/pkg/db"
	"github.com/fraiseql/pgtviews/pkg/schema"
)

// Infer runs C2 for entity. If viewOID is non-zero, its tuple descriptor is
// read directly (the normal path during Create, once C4 has already created
// the backing view — spec §4.4 step 2). If viewOID is zero, Infer falls back
// to the ephemeral-helper-view path (spec §4.2, used by the standalone
// analyze_select operation and by any pre-creation validation pass, since no
// permanent view exists yet to inspect).
func Infer(ctx context.Context, conn db.DB, entity, selectText string, viewOID int64) (Result, error) {
	var (
		cols []schema.Column
		err  error
	)

	if viewOID != 0 {
		cols, err = readTupleDescriptor(ctx, conn, viewOID)
		if err != nil {
			return Result{}, err
		}
	} else {
		var helperName string
		helperName, probeOID, err2 := createEphemeralHelperView(ctx, conn, selectText)
		if err2 != nil {
			return Result{}, err2
		}
		defer dropEphemeralHelperView(ctx, conn, helperName)

		cols, err = readTupleDescriptor(ctx, conn, probeOID)
		if err != nil {
			return Result{}, err
		}
	}

	r, err := classify(entity, cols)
	if err != nil {
		return r, err
	}
	if viewOID == 0 {
		r.UsedHelperFallback = true
	}

	compositions := classifyCompositions(selectText)
	r.Compositions = resolveCompositions(r, compositions)

	return r, nil
}

// resolveCompositions pairs the helper-name-keyed compositions found by
// classifyCompositions with the actual FK/array lineage columns classify
// found, per the naming convention spec §4.2's examples follow: a column
// `fk_<helper>` references entity <helper>'s backing view `v_<helper>`. The
// result stays keyed by helper (= child entity) name: C7's propagation walk
// starts from a refreshed child entity and needs exactly this direction of
// lookup, not "given a column, what's its type".
func resolveCompositions(r Result, byHelper map[string]Composition) map[string]Composition {
	out := map[string]Composition{}

	for _, fk := range r.FKColumns {
		helper := strings.TrimPrefix(fk, "fk_")
		if comp, ok := byHelper[helper]; ok {
			comp.Column = fk
			out[helper] = comp
			delete(byHelper, helper)
		}
	}

	// Array lineage columns carry no naming convention tying them back to a
	// helper view (spec §4.2 calls the column name "free-form"). Lacking a
	// second signal, an unclaimed array-typed composition is paired with the
	// sole remaining array lineage column when there is exactly one of each;
	// anything left over after that is simply not recorded (the refresh
	// engine's scalar-fallback behavior in spec §4.2's last paragraph still
	// applies, it just gets no classification hint).
	var unclaimedArrayHelper string
	arrayHelperCount := 0
	for helper, comp := range byHelper {
		if comp.Type == "array" {
			unclaimedArrayHelper = helper
			arrayHelperCount++
		}
	}
	if arrayHelperCount == 1 && len(r.ArrayColumns) == 1 {
		comp := byHelper[unclaimedArrayHelper]
		comp.Column = r.ArrayColumns[0]
		out[unclaimedArrayHelper] = comp
	}

	return out
}

// Describe renders r for analyze_select output (spec §5 supplemented
// feature) and for health_check diagnostics.
func (r Result) Describe() string {
	return fmt.Sprintf(
		"entity=%s pk=%s id=%s data=%s fk=%v uuid=%v array=%v helper_fallback=%v other=[%s]",
		r.Entity, r.PKColumn, r.IDColumn, r.DataColumn,
		r.FKColumns, r.UUIDColumns, r.ArrayColumns, r.UsedHelperFallback,
		describeColumns(r.OtherColumns))
}
