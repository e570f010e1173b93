// SPDX-License-Identifier: Apache-2.0

package inspect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fraiseql/pgtviews/pkg/schema"
)

// Result is C2's output for one projection (spec §4.2): the classified output
// list of a projection's SELECT, plus the composition classification for
// every lineage column (spec §4.2 "additionally classifies").
type Result struct {
	Entity string

	PKColumn string
	IDColumn string

	FKColumns     []string
	UUIDColumns   []string
	ArrayColumns  []string
	DataColumn    string
	OtherColumns  []schema.Column

	// Compositions is keyed by child (helper) entity name.
	Compositions map[string]Composition

	// UsedHelperFallback is true when Infer was given no backing view
	// (viewOID 0) and read the catalog tuple descriptor from a temporary
	// probe view created for the purpose (spec §4.2, §9).
	UsedHelperFallback bool

	// AllColumns is the full, ordered, typed output list classify() sorted,
	// kept so callers (pkg/builder's tv_<entity> DDL generation) can look up
	// the host-resolved type of any classified column by name without
	// re-querying the catalog.
	AllColumns []schema.Column
}

// Column returns the host-resolved column named name, or nil.
func (r Result) Column(name string) *schema.Column {
	for i := range r.AllColumns {
		if r.AllColumns[i].Name == name {
			return &r.AllColumns[i]
		}
	}
	return nil
}

// Composition is the per-child-entity classification from the second half
// of spec §4.2: how the named child entity's view composes into this
// entity's `data`. Keyed by child entity name rather than by the lineage
// column that references it (see resolveCompositions) — the reverse lookup
// C7 needs is "given a refreshed child entity, where in its parents' `data`
// does it appear", which is naturally entity-keyed, and the composed entity
// name doubles as the pg_query-free way to know which view c7 should read
// back data from.
type Composition struct {
	Type     string // catalog.DependencyType as a string to avoid an import cycle
	Column   string // the FK/array lineage column in this entity's own output that names the child
	Path     []string
	MatchKey string
}

var (
	fkPattern  = regexp.MustCompile(`^fk_.+`)
	idPattern  = regexp.MustCompile(`^(?:.+_)?id$`)
	uuidArrayTypes = map[string]bool{
		"uuid[]": true,
		"_uuid":  true, // pg_catalog's internal array-of-uuid type name
	}
)

// classify sorts cols (in SELECT output order, with host-resolved types) into
// the buckets spec §4.2 names, for the given entity name. cols must already
// have inline-expression aliases resolved (see helperfallback.go).
func classify(entity string, cols []schema.Column) (Result, error) {
	r := Result{Entity: entity, Compositions: map[string]Composition{}, AllColumns: cols}

	pkName := "pk_" + entity
	var ambiguousPKs []string

	for _, col := range cols {
		switch {
		case strings.EqualFold(col.Name, pkName):
			if r.PKColumn != "" {
				ambiguousPKs = append(ambiguousPKs, col.Name)
				continue
			}
			r.PKColumn = col.Name

		case strings.EqualFold(col.Name, "id"):
			r.IDColumn = col.Name

		case strings.EqualFold(col.Name, "data"):
			r.DataColumn = col.Name

		case fkPattern.MatchString(col.Name):
			r.FKColumns = append(r.FKColumns, col.Name)

		case isArrayOfOpaqueID(col):
			r.ArrayColumns = append(r.ArrayColumns, col.Name)

		case idPattern.MatchString(col.Name):
			r.UUIDColumns = append(r.UUIDColumns, col.Name)

		default:
			r.OtherColumns = append(r.OtherColumns, col)
		}
	}

	if r.PKColumn == "" {
		return r, MissingPrimaryKeyError{Entity: entity}
	}
	if len(ambiguousPKs) > 0 {
		return r, AmbiguousPrimaryKeyError{Entity: entity, Columns: append([]string{r.PKColumn}, ambiguousPKs...)}
	}
	if r.IDColumn == "" {
		return r, MissingIDColumnError{Entity: entity}
	}
	if r.DataColumn == "" {
		return r, MissingDataColumnError{Entity: entity}
	}

	return r, nil
}

// isArrayOfOpaqueID reports whether col's host-resolved type is an array of
// the 128-bit opaque identifier type (spec §4.2: "ordered sequences of
// 128-bit opaque ids whose column name is free-form but whose element type
// is 128-bit opaque"). This is the one classification that is type- rather
// than name-driven, since the column name carries no pattern to match.
func isArrayOfOpaqueID(col schema.Column) bool {
	return uuidArrayTypes[strings.ToLower(col.Type)]
}

// describeColumns renders cols for error messages and health-check output.
func describeColumns(cols []schema.Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = fmt.Sprintf("%s:%s", c.Name, c.Type)
	}
	return strings.Join(names, ", ")
}
