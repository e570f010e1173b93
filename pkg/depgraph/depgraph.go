// SPDX-License-Identifier: Apache-2.0

// Package depgraph is C3: the dependency resolver (spec §4.3). It walks the
// host's relational dependency graph from a projection's backing view to
// find its transitive source tables, and classifies every view it crosses
// as either a helper view or another projection's direct view-edge.
package depgraph

import (
	"context"
	"fmt"

	"github.com/fraiseql/pgtviews/pkg/db"
)

// DepthBound is the BFS depth limit from spec §4.3 step 4.
const DepthBound = 10

// OwnershipChecker answers whether a view OID belongs to an already-created
// projection. pkg/catalog.Catalog satisfies this.
type OwnershipChecker interface {
	EntityForViewOID(ctx context.Context, viewOID int64) (entity string, owned bool, err error)
}

// relkind mirrors pg_class.relkind for the node kinds the walk cares about.
type relkind byte

const (
	relkindTable    relkind = 'r'
	relkindView     relkind = 'v'
	relkindMatView  relkind = 'm'
	relkindPartition relkind = 'p'
)

// Result is C3's output (spec §4.3): the transitive base tables, the helper
// views encountered along the way, and the direct view-edges to other
// projections, needed both for C5's trigger dispatch and for the
// projection-dependency DAG's edge set.
type Result struct {
	// BaseTables holds every plain-table OID found at the bottom of the walk.
	BaseTables []int64

	// HelperViews holds every view OID encountered that no projection owns
	// (spec §4.3 step 2); these get recorded via Catalog.RecordHelper but are
	// never materialized (spec §3's Non-goals/examples).
	HelperViews []int64

	// DirectViewEdges holds the OID of every view that IS another
	// projection's backing view, keyed by that projection's entity name.
	// These become the projection-dependency DAG's outgoing edges for this
	// projection, and also get unioned into Metadata.Dependencies so that
	// LookupBySourceTable/ParentsOf's identical `$1 = ANY(dependencies)`
	// query shape works for both table OIDs and view OIDs.
	DirectViewEdges map[string]int64
}

// AllDependencyOIDs returns BaseTables and the OIDs of DirectViewEdges
// combined, which is exactly what pkg/catalog.Metadata.Dependencies stores
// (spec §4.1, §9).
func (r Result) AllDependencyOIDs() []int64 {
	out := make([]int64, 0, len(r.BaseTables)+len(r.DirectViewEdges))
	out = append(out, r.BaseTables...)
	for _, oid := range r.DirectViewEdges {
		out = append(out, oid)
	}
	return out
}

// EdgeNames returns the entity names in DirectViewEdges, for use as this
// projection's outgoing edges in the in-memory projection-dependency DAG
// (dag.go's CheckAcyclic/TopologicalOrder).
func (r Result) EdgeNames() []string {
	names := make([]string, 0, len(r.DirectViewEdges))
	for name := range r.DirectViewEdges {
		names = append(names, name)
	}
	return names
}

type queueItem struct {
	oid   int64
	depth int
}

// Resolve runs C3 starting from rootViewOID, a projection's freshly created
// backing view (spec §4.4 step 1 happens before this is called). owned
// decides, at every view node, whether it is another projection (stop and
// record a direct view-edge) or a helper view (recurse into its own
// dependencies).
func Resolve(ctx context.Context, conn db.DB, owned OwnershipChecker, rootViewOID int64) (Result, error) {
	result := Result{DirectViewEdges: map[string]int64{}}

	visited := map[int64]bool{rootViewOID: true}
	queue := []queueItem{{oid: rootViewOID, depth: 0}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if item.depth > DepthBound {
			return Result{}, DepthExceededError{RootOID: rootViewOID, Bound: DepthBound}
		}

		children, err := directDependencies(ctx, conn, item.oid)
		if err != nil {
			return Result{}, err
		}

		for _, child := range children {
			if visited[child.oid] {
				continue
			}
			visited[child.oid] = true

			switch child.kind {
			case relkindTable, relkindPartition:
				result.BaseTables = append(result.BaseTables, child.oid)

			case relkindView, relkindMatView:
				entity, isOwned, err := owned.EntityForViewOID(ctx, child.oid)
				if err != nil {
					return Result{}, err
				}
				if isOwned {
					result.DirectViewEdges[entity] = child.oid
					continue
				}
				result.HelperViews = append(result.HelperViews, child.oid)
				queue = append(queue, queueItem{oid: child.oid, depth: item.depth + 1})
			}
		}
	}

	return result, nil
}

type dependency struct {
	oid  int64
	kind relkind
}

// directDependencies queries the relations viewOID's defining rule directly
// references: a JOIN across pg_depend/pg_rewrite/pg_class, the same shape a
// general-purpose schema-graph tool would use to draw a dependency edge from
// a view to what it selects from.
func directDependencies(ctx context.Context, conn db.DB, viewOID int64) ([]dependency, error) {
	const query = `
		SELECT DISTINCT ref.oid, ref.relkind
		FROM pg_depend d
		JOIN pg_rewrite r ON d.objid = r.oid
		JOIN pg_class v ON r.ev_class = v.oid
		JOIN pg_class ref ON d.refobjid = ref.oid
		WHERE v.oid = $1
		  AND d.classid = 'pg_rewrite'::regclass
		  AND d.refclassid = 'pg_class'::regclass
		  AND d.deptype = 'n'
		  AND ref.relkind IN ('r', 'p', 'v', 'm')
		  AND ref.oid != v.oid`

	rows, err := conn.QueryContext(ctx, query, viewOID)
	if err != nil {
		return nil, fmt.Errorf("walking dependencies of relation %d: %w", viewOID, err)
	}
	defer rows.Close()

	var deps []dependency
	for rows.Next() {
		var d dependency
		var kind string
		if err := rows.Scan(&d.oid, &kind); err != nil {
			return nil, err
		}
		d.kind = relkind(kind[0])
		deps = append(deps, d)
	}
	return deps, rows.Err()
}
