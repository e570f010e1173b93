// SPDX-License-Identifier: Apache-2.0

// Package schema is the engine's view of the host database: the minimum
// amount of catalog information C2 (schema inference) and C3 (dependency
// resolution) need in order to classify a projection's output columns and
// walk its transitive source tables. It is read fresh from pg_catalog for
// every operation that needs it; nothing here is cached across calls, and
// pkg/engine puts no graph or table cache in front of it either.
package schema

// Relation is either a base table or a view, identified by its Postgres
// object id. C3 walks pg_depend/pg_rewrite by OID, not by name, because
// names can be schema-qualified or quoted inconsistently across call sites.
type Relation struct {
	OID     int64  `json:"oid"`
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Columns []Column
}

// Kind distinguishes an ordinary table from a view for C3's helper-view
// classification (spec §4.3 step 2).
type Kind string

const (
	KindTable Kind = "table"
	KindView  Kind = "view"
)

// Column describes one output column of a relation as the host catalog
// reports it: name and type are used directly by C2 for name-pattern
// classification (spec §4.2) and type resolution for "every other
// projected column".
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	// Position is the 1-based ordinal position in the relation's output
	// list, needed when inline expression aliasing defeats name-based
	// extraction and C2 falls back to reading a helper view's tuple
	// descriptor by position (spec §4.2, §9 Open Question).
	Position int `json:"position"`
}

// ForeignKey describes a foreign key constraint on a base table, used by C3
// to classify `fk_*` lineage columns and by C7 to build the
// `fk_<entity>`-keyed parent lookup described in spec §4.7 step 2.
type ForeignKey struct {
	Name              string   `json:"name"`
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns"`
}

// GetColumn returns the column with the given name, or nil if it isn't part
// of the relation's output list.
func (r *Relation) GetColumn(name string) *Column {
	for i := range r.Columns {
		if r.Columns[i].Name == name {
			return &r.Columns[i]
		}
	}
	return nil
}

// IsHelperView reports whether r is a view (spec §4.3 step 2 marks any
// non-base-table, non-owned view as a helper). Ownership (whether a view is
// itself a managed projection) is decided by the catalog, not here: a
// Relation alone cannot tell a helper view from a projection's backing
// view, since both are plain Postgres views.
func (r *Relation) IsHelperView() bool {
	return r.Kind == KindView
}
