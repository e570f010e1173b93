// SPDX-License-Identifier: Apache-2.0

package propagate

import (
	"bytes"
	"text/template"

	"github.com/lib/pq"
)

// config carries the one per-install value the template below renders from.
// Same duplicated text/template + qi/ql FuncMap idiom as pkg/refresh,
// pkg/patch, pkg/queue and pkg/trigger/templates.
type config struct {
	CatalogSchema string
}

func build(name, content string, cfg config) string {
	tmpl := template.Must(template.New(name).
		Funcs(template.FuncMap{
			"ql": pq.QuoteLiteral,
			"qi": pq.QuoteIdentifier,
		}).
		Parse(content))

	buf := bytes.Buffer{}
	if err := tmpl.Execute(&buf, cfg); err != nil {
		panic(err)
	}
	return buf.String()
}

// propagateOneFunction is spec §4.7's algorithm as one schema-wide generic
// PL/pgSQL function:
//  1. Find every parent entity P whose dependencies include p_entity's view
//     (re-derived from pg_tview_meta.dependencies, never stored as an
//     explicit DAG — spec §9).
//  2. For each P, resolve the set of affected parent PKs. Preferred: the
//     literal fk_<p_entity> column pkg/inspect's naming convention always
//     uses for a scalar/object composition — `SELECT pk_P FROM tv_P WHERE
//     fk_<p_entity> = p_pk`. Fallback for array lineage, which carries no
//     per-child column-naming convention (spec §4.2): when P has exactly
//     one array lineage column, probe it with `p_pk = ANY(column)`, mirroring
//     the same one-array-column heuristic pkg/inspect.resolveCompositions
//     uses on the create side to pair an array composition with its column.
//  3. Enqueue (P, parent_pk, classification, p_new_data->'data',
//     match_value, p_entity, p_depth+1) into C8 — p_new_data is the child's
//     refreshed tv row, and its `data` is the value composed into the
//     parent — for every affected PK in one set-based
//     PERFORM ... FROM unnest(...) statement rather than a per-row loop of
//     separate calls — this *is* spec §4.7's ">=10 parents: use a batch
//     primitive" optimization: Postgres evaluates a PERFORM-with-FROM
//     set-at-a-time regardless of cardinality, so there is no separate
//     code path to fork for the large-fanout case.
const propagateOneFunction = `
CREATE OR REPLACE FUNCTION {{.CatalogSchema|qi}}.pg_tview_propagate_one(
	p_entity text, p_pk text, p_new_data jsonb, p_depth int
) RETURNS void AS $$
DECLARE
	child_view_oid oid;
	parent         RECORD;
	fk_col         text;
	parent_pks     text[];
	match_value    text;
BEGIN
	SELECT view_oid INTO child_view_oid
	FROM {{.CatalogSchema|qi}}.pg_tview_meta WHERE entity = p_entity;

	IF NOT FOUND THEN
		RETURN;
	END IF;

	FOR parent IN
		SELECT entity, fk_columns, array_lineage_columns,
		       coalesce(dependency_types ->> p_entity, 'unknown') AS classification,
		       array_match_keys ->> p_entity AS match_key
		FROM {{.CatalogSchema|qi}}.pg_tview_meta
		WHERE child_view_oid = ANY(dependencies)
	LOOP
		fk_col := 'fk_' || p_entity;
		parent_pks := NULL;

		IF parent.fk_columns @> ARRAY[fk_col] THEN
			EXECUTE format('SELECT array_agg(%I) FROM %I WHERE %I::text = $1',
				'pk_' || parent.entity, 'tv_' || parent.entity, fk_col)
			INTO parent_pks
			USING p_pk;
		ELSIF coalesce(array_length(parent.array_lineage_columns, 1), 0) = 1 THEN
			EXECUTE format('SELECT array_agg(%I::text) FROM %I WHERE $1 = ANY(%I)',
				'pk_' || parent.entity, 'tv_' || parent.entity, parent.array_lineage_columns[1])
			INTO parent_pks
			USING p_pk;
		END IF;

		IF parent_pks IS NULL OR array_length(parent_pks, 1) = 0 THEN
			CONTINUE;
		END IF;

		match_value := NULL;
		IF parent.classification = 'array' AND parent.match_key IS NOT NULL THEN
			match_value := p_new_data ->> parent.match_key;
		END IF;

		PERFORM {{.CatalogSchema|qi}}.pg_tview_enqueue(
			parent.entity, pk_val, parent.classification, p_new_data -> 'data', match_value, p_entity, p_depth + 1)
		FROM unnest(parent_pks) AS pk_val;
	END LOOP;
END;
$$ LANGUAGE plpgsql;
`
