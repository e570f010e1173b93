// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"github.com/fraiseql/pgtviews/pkg/catalog"
	"github.com/fraiseql/pgtviews/pkg/depgraph"
	"github.com/fraiseql/pgtviews/pkg/inspect"
)

// buildState threads the output of each create step into the steps after
// it: C2's inferred schema feeds the materialized-table DDL (step 3), C3's
// dependency walk feeds trigger installation (step 5) and the metadata row
// (step 6). Each action below is still independently Execute-able and
// independently named for the Coordinator's dedup bookkeeping; they simply
// share this one mutable pointer instead of returning values to a caller
// that would otherwise have to re-sequence them by hand.
type buildState struct {
	entity     string
	selectText string
	viewName   string
	tableName  string

	viewOID  int64
	tableOID int64

	inferred   inspect.Result
	resolved   depgraph.Result
}

func newBuildState(entity, selectText string) *buildState {
	return &buildState{
		entity:     entity,
		selectText: selectText,
		viewName:   "v_" + entity,
		tableName:  "tv_" + entity,
	}
}

func (s *buildState) toMetadata() catalog.Metadata {
	m := catalog.Metadata{
		Entity:              s.entity,
		ViewOID:             s.viewOID,
		TableOID:            s.tableOID,
		Definition:          s.selectText,
		Dependencies:        s.resolved.AllDependencyOIDs(),
		BaseTableOIDs:       s.resolved.BaseTables,
		FKColumns:           s.inferred.FKColumns,
		UUIDFKColumns:       s.inferred.UUIDColumns,
		ArrayLineageColumns: s.inferred.ArrayColumns,
		DependencyTypes:     map[string]catalog.DependencyType{},
		DependencyPaths:     map[string][]string{},
		ArrayMatchKeys:      map[string]string{},
	}

	for childEntity, comp := range s.inferred.Compositions {
		switch comp.Type {
		case "array":
			m.DependencyTypes[childEntity] = catalog.DependencyArray
		case "nested_object":
			m.DependencyTypes[childEntity] = catalog.DependencyNestedObject
		default:
			m.DependencyTypes[childEntity] = catalog.DependencyScalar
		}
		m.DependencyPaths[childEntity] = comp.Path
		if comp.MatchKey != "" {
			m.ArrayMatchKeys[childEntity] = comp.MatchKey
		}
	}

	return m
}
