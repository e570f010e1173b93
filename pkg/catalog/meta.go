// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// DependencyType classifies how a child entity's view composes into a
// parent's `data` column, per spec §4.2: this is what selects the patch
// primitive C6 uses at refresh time (§4.6 step 5). It is advisory — see
// pkg/patch's fallback-to-overwrite guarantee.
type DependencyType string

const (
	DependencyScalar       DependencyType = "scalar"
	DependencyNestedObject DependencyType = "nested_object"
	DependencyArray        DependencyType = "array"
	DependencyUnknown      DependencyType = "unknown"
)

// Precedence orders classifications from least to most specific, matching
// the dedup rule in spec §4.8: "classification of duplicates is reconciled
// by preferring the more specific: array > nested_object > scalar > unknown".
func (d DependencyType) precedence() int {
	switch d {
	case DependencyArray:
		return 3
	case DependencyNestedObject:
		return 2
	case DependencyScalar:
		return 1
	default:
		return 0
	}
}

// MoreSpecific returns whichever of a, b spec §4.8's precedence rule prefers.
func MoreSpecific(a, b DependencyType) DependencyType {
	if a.precedence() >= b.precedence() {
		return a
	}
	return b
}

// Metadata is a pg_tview_meta row: everything C4 persists when it creates a
// projection and everything C5-C8 read back at runtime. Per spec §3
// Lifecycle, a Metadata row is created atomically with the view/table and
// never mutated after creation; redefinition is drop+create.
type Metadata struct {
	Entity    string
	ViewOID   int64
	TableOID  int64
	Definition string

	// Dependencies holds the union of transitive base-table OIDs and direct
	// view-edge OIDs found by C3 (spec §4.3), used to derive parents_of via
	// ParentsOf/LookupBySourceTable, whose `$1 = ANY(dependencies)` query
	// shape needs to match on either kind of OID.
	Dependencies []int64

	// BaseTableOIDs holds only the transitive base-table OIDs, the subset of
	// Dependencies that actually carries a C5 trigger. Drop uses this list,
	// not Dependencies, to decide which tables to uninstall triggers from —
	// Dependencies also contains other projections' view OIDs, which never
	// had a trigger installed on them in the first place.
	BaseTableOIDs []int64

	// FKColumns and UUIDFKColumns are the lineage column names from spec §3:
	// `fk_*` integer lineage edges and `*_id` external-id columns.
	FKColumns     []string
	UUIDFKColumns []string

	// ArrayLineageColumns are the array-of-opaque-id lineage columns (spec
	// §3) used when the projection aggregates children into the JSON.
	ArrayLineageColumns []string

	// DependencyTypes/DependencyPaths/ArrayMatchKeys are keyed by CHILD
	// ENTITY NAME (not by lineage column) and record C2's composition
	// classification (spec §4.2): how that child's view composes into this
	// entity's `data`. Entity-keying is what C7 needs — propagation starts
	// from "this child entity was just refreshed" and must find where it
	// appears in each parent's `data`, which is the reverse direction of a
	// column-keyed index.
	DependencyTypes map[string]DependencyType
	DependencyPaths map[string][]string
	ArrayMatchKeys  map[string]string
}

// ErrMetadataNotFound is returned by Load when no metadata row exists for
// the requested entity. Per spec §4.1: "A lookup that misses when one is
// expected is a fatal configuration error".
var ErrMetadataNotFound = errors.New("no metadata for entity")

// Upsert persists m. Despite the name, this is only ever called once per
// entity (at create time, spec §3 Lifecycle); it uses ON CONFLICT only to
// make the operation idempotent if a prior attempt partially committed
// before the whole transaction rolled back.
func (c *Catalog) Upsert(ctx context.Context, m Metadata) error {
	depTypes, err := marshalDependencyTypes(m.DependencyTypes)
	if err != nil {
		return err
	}
	depPaths, err := json.Marshal(orEmptyPaths(m.DependencyPaths))
	if err != nil {
		return err
	}
	matchKeys, err := json.Marshal(orEmptyMatchKeys(m.ArrayMatchKeys))
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s.pg_tview_meta
			(entity, view_oid, table_oid, definition, dependencies, base_table_oids,
			 fk_columns, uuid_fk_columns, array_lineage_columns, dependency_types,
			 dependency_paths, array_match_keys)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (entity) DO UPDATE SET
			view_oid = EXCLUDED.view_oid,
			table_oid = EXCLUDED.table_oid,
			definition = EXCLUDED.definition,
			dependencies = EXCLUDED.dependencies,
			base_table_oids = EXCLUDED.base_table_oids,
			fk_columns = EXCLUDED.fk_columns,
			uuid_fk_columns = EXCLUDED.uuid_fk_columns,
			array_lineage_columns = EXCLUDED.array_lineage_columns,
			dependency_types = EXCLUDED.dependency_types,
			dependency_paths = EXCLUDED.dependency_paths,
			array_match_keys = EXCLUDED.array_match_keys`,
		pq.QuoteIdentifier(c.schema))

	_, err = c.conn.ExecContext(ctx, query,
		m.Entity, m.ViewOID, m.TableOID, m.Definition,
		pq.Array(m.Dependencies), pq.Array(m.BaseTableOIDs), pq.Array(m.FKColumns), pq.Array(m.UUIDFKColumns),
		pq.Array(m.ArrayLineageColumns), depTypes, depPaths, matchKeys)
	if err != nil {
		return fmt.Errorf("persisting metadata for entity %q: %w", m.Entity, err)
	}
	return nil
}

// Load reads back the metadata row for entity. It returns ErrMetadataNotFound
// if none exists.
func (c *Catalog) Load(ctx context.Context, entity string) (*Metadata, error) {
	query := fmt.Sprintf(`
		SELECT entity, view_oid, table_oid, definition, dependencies, base_table_oids,
		       fk_columns, uuid_fk_columns, array_lineage_columns, dependency_types,
		       dependency_paths, array_match_keys
		FROM %s.pg_tview_meta WHERE entity = $1`, pq.QuoteIdentifier(c.schema))

	row := c.conn.QueryRowContext(ctx, query, entity)

	var m Metadata
	var depTypesRaw, depPathsRaw, matchKeysRaw []byte
	err := row.Scan(&m.Entity, &m.ViewOID, &m.TableOID, &m.Definition,
		pq.Array(&m.Dependencies), pq.Array(&m.BaseTableOIDs), pq.Array(&m.FKColumns), pq.Array(&m.UUIDFKColumns),
		pq.Array(&m.ArrayLineageColumns), &depTypesRaw, &depPathsRaw, &matchKeysRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMetadataNotFound, entity)
	}
	if err != nil {
		return nil, fmt.Errorf("loading metadata for entity %q: %w", entity, err)
	}

	if m.DependencyTypes, err = unmarshalDependencyTypes(depTypesRaw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(depPathsRaw, &m.DependencyPaths); err != nil {
		return nil, fmt.Errorf("decoding dependency paths for entity %q: %w", entity, err)
	}
	if err := json.Unmarshal(matchKeysRaw, &m.ArrayMatchKeys); err != nil {
		return nil, fmt.Errorf("decoding array match keys for entity %q: %w", entity, err)
	}

	return &m, nil
}

// Delete removes the metadata row for entity. Called last by the drop entry
// point (spec §4.4 drop, reverse order).
func (c *Catalog) Delete(ctx context.Context, entity string) error {
	query := fmt.Sprintf(`DELETE FROM %s.pg_tview_meta WHERE entity = $1`, pq.QuoteIdentifier(c.schema))
	_, err := c.conn.ExecContext(ctx, query, entity)
	if err != nil {
		return fmt.Errorf("deleting metadata for entity %q: %w", entity, err)
	}
	return nil
}

// ParentsOf returns the entities whose projection-dependency-DAG edges
// point at entity, i.e. every projection whose backing view references
// entity's view (spec §4.7 step 1). The DAG is never stored explicitly
// (§9 Design Notes); it's re-derived here from each row's `dependencies`.
func (c *Catalog) ParentsOf(ctx context.Context, entity string) ([]string, error) {
	m, err := c.Load(ctx, entity)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT entity FROM %s.pg_tview_meta WHERE $1 = ANY(dependencies)`,
		pq.QuoteIdentifier(c.schema))
	rows, err := c.conn.QueryContext(ctx, query, m.ViewOID)
	if err != nil {
		return nil, fmt.Errorf("looking up parents of entity %q: %w", entity, err)
	}
	defer rows.Close()

	var parents []string
	for rows.Next() {
		var parent string
		if err := rows.Scan(&parent); err != nil {
			return nil, err
		}
		parents = append(parents, parent)
	}
	return parents, rows.Err()
}

// LookupBySourceTable returns the entities whose transitive source tables
// (spec §4.3) include tableOID. C5's generated trigger function does not
// call this Go method: it runs the same `= ANY(dependencies)` query itself,
// in PL/pgSQL, for every firing row (spec §4.5 step 3).
func (c *Catalog) LookupBySourceTable(ctx context.Context, tableOID int64) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT entity FROM %s.pg_tview_meta WHERE $1 = ANY(dependencies)`,
		pq.QuoteIdentifier(c.schema))
	rows, err := c.conn.QueryContext(ctx, query, tableOID)
	if err != nil {
		return nil, fmt.Errorf("looking up entities for source table %d: %w", tableOID, err)
	}
	defer rows.Close()

	var entities []string
	for rows.Next() {
		var entity string
		if err := rows.Scan(&entity); err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

// AllEdges returns the current projection-dependency DAG as builder.Create's
// acyclicity check (spec invariant I4) expects it: every existing entity
// mapped to the names of the other entities its own view directly embeds.
// The DAG itself is never stored (§9 Design Notes); this re-derives it from
// every row's `dependencies` column the same way ParentsOf re-derives a
// single entity's parents, just inverted and for every entity at once.
func (c *Catalog) AllEdges(ctx context.Context) (map[string][]string, error) {
	query := fmt.Sprintf(`SELECT entity, dependencies FROM %s.pg_tview_meta`,
		pq.QuoteIdentifier(c.schema))
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("loading projection DAG: %w", err)
	}
	defer rows.Close()

	type row struct {
		entity string
		deps   []int64
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.entity, pq.Array(&r.deps)); err != nil {
			return nil, err
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges := make(map[string][]string, len(all))
	for _, r := range all {
		var names []string
		for _, oid := range r.deps {
			name, ok, err := c.EntityForViewOID(ctx, oid)
			if err != nil {
				return nil, err
			}
			if ok && name != r.entity {
				names = append(names, name)
			}
		}
		edges[r.entity] = names
	}
	return edges, nil
}

// EntityForViewOID returns the entity owning viewOID, and whether any
// projection owns it at all. C3 calls this at every view node it walks to
// decide ownership (spec §4.3 step 2): an owned view is another projection
// and stops the walk there as a direct view-edge; an unowned view is a
// helper view and the walk recurses into its own dependencies.
func (c *Catalog) EntityForViewOID(ctx context.Context, viewOID int64) (string, bool, error) {
	query := fmt.Sprintf(`SELECT entity FROM %s.pg_tview_meta WHERE view_oid = $1`,
		pq.QuoteIdentifier(c.schema))

	var entity string
	err := c.conn.QueryRowContext(ctx, query, viewOID).Scan(&entity)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up owner of view %d: %w", viewOID, err)
	}
	return entity, true, nil
}

func marshalDependencyTypes(m map[string]DependencyType) ([]byte, error) {
	if m == nil {
		m = map[string]DependencyType{}
	}
	return json.Marshal(m)
}

func unmarshalDependencyTypes(raw []byte) (map[string]DependencyType, error) {
	out := map[string]DependencyType{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding dependency types: %w", err)
	}
	return out, nil
}

func orEmptyPaths(m map[string][]string) map[string][]string {
	if m == nil {
		return map[string][]string{}
	}
	return m
}

func orEmptyMatchKeys(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
