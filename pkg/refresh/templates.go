// SPDX-License-Identifier: Apache-2.0

package refresh

import (
	"bytes"
	"text/template"

	"github.com/lib/pq"
)

// config carries the one per-install value the template below renders from.
// Same text/template + qi/ql FuncMap idiom as pkg/trigger/templates,
// pkg/patch and pkg/queue, duplicated rather than shared for the same
// reason: a different, smaller field set.
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

// refreshOneFunction is spec §4.6's algorithm as one schema-wide generic
// PL/pgSQL function, dispatching to v_<entity>/tv_<entity> by dynamic SQL
// since it has to work for every entity the catalog knows about, not one
// per entity. Naming is never baked in as a parameter: pk_<entity>, id and
// data are fixed conventions pkg/inspect's classify() already enforces at
// create time (spec §4.2), so this function can always compute them from
// p_entity alone.
//
// Two paths:
//   - Surgical: taken when the item was enqueued by propagation
//     (classification <> 'unknown', a patch payload, and the child entity
//     it came from are all present). Reads only tv_<entity>.data, applies
//     the matching pkg/patch primitive, and writes back just `data` — the
//     entity's own lineage columns are untouched because a descendant's
//     composed value changing can't itself change this entity's own FK/id
//     columns. v_<entity> is never re-read on this path; that's the whole
//     performance point of the patch primitives (spec §6, §9 "patch
//     classification as a hint").
//   - Full: taken otherwise (direct base-table change, or the surgical
//     path declined for any reason — e.g. the tv_<entity> row doesn't exist
//     yet). Re-reads v_<entity>, overwrites `data` and every lineage column
//     from that fresh read, or deletes the tv_<entity> row if the view now
//     produces nothing for pk (I3).
//
// Every UPDATE checks it touched exactly one row (IntegrityError, spec §7);
// a zero-row UPDATE aborts the transaction via RAISE EXCEPTION, which the
// host propagates as an error on whatever statement triggered the cascade.
const refreshOneFunction = `
CREATE OR REPLACE FUNCTION {{.CatalogSchema|qi}}.pg_tview_refresh_one(
	p_entity text, p_pk text, p_classification text, p_patch jsonb,
	p_match_value text, p_source_entity text
) RETURNS jsonb AS $$
DECLARE
	meta        {{.CatalogSchema|qi}}.pg_tview_meta%ROWTYPE;
	view_name   text;
	table_name  text;
	pk_column   text;
	path        text[];
	old_data    jsonb;
	patched     jsonb;
	view_row    jsonb;
	new_row     jsonb;
	lineage_set text;
	i           int;
BEGIN
	SELECT * INTO meta FROM {{.CatalogSchema|qi}}.pg_tview_meta WHERE entity = p_entity;
	IF NOT FOUND THEN
		RAISE EXCEPTION 'pg_tview: no metadata for entity %', p_entity;
	END IF;

	view_name  := 'v_' || p_entity;
	table_name := 'tv_' || p_entity;
	pk_column  := 'pk_' || p_entity;

	IF p_classification IS NOT NULL AND p_classification <> 'unknown'
		AND p_patch IS NOT NULL AND p_source_entity IS NOT NULL THEN

		EXECUTE format('SELECT data FROM %I WHERE %I::text = $1 FOR UPDATE', table_name, pk_column)
		INTO old_data
		USING p_pk;

		IF FOUND THEN
			path := ARRAY(SELECT jsonb_array_elements_text(
				coalesce(meta.dependency_paths -> p_source_entity, '[]'::jsonb)));

			CASE p_classification
				WHEN 'scalar' THEN
					patched := {{.CatalogSchema|qi}}.pg_tview_merge_shallow(old_data, p_patch);
				WHEN 'nested_object' THEN
					patched := {{.CatalogSchema|qi}}.pg_tview_merge_at_path(old_data, p_patch, path);
				WHEN 'array' THEN
					patched := {{.CatalogSchema|qi}}.pg_tview_array_update_where(
						old_data, path, meta.array_match_keys ->> p_source_entity, p_match_value, p_patch);
				ELSE
					patched := NULL;
			END CASE;

			IF patched IS NOT NULL THEN
				EXECUTE format('UPDATE %I SET data = $1, updated_at = now() WHERE %I::text = $2 RETURNING to_jsonb(%I.*)',
					table_name, pk_column, table_name)
				INTO new_row
				USING patched, p_pk;

				IF new_row IS NULL THEN
					RAISE EXCEPTION
						'pg_tview: surgical refresh of entity % pk % affected zero rows', p_entity, p_pk;
				END IF;
				RETURN new_row;
			END IF;
		END IF;
	END IF;

	EXECUTE format('SELECT to_jsonb(v) FROM %I v WHERE v.%I::text = $1', view_name, pk_column)
	INTO view_row
	USING p_pk;

	IF view_row IS NULL THEN
		EXECUTE format('DELETE FROM %I WHERE %I::text = $1', table_name, pk_column) USING p_pk;
		RETURN NULL;
	END IF;

	lineage_set := '';
	FOR i IN 1 .. coalesce(array_length(meta.fk_columns, 1), 0) LOOP
		lineage_set := lineage_set || format('%I = v.%I, ', meta.fk_columns[i], meta.fk_columns[i]);
	END LOOP;
	FOR i IN 1 .. coalesce(array_length(meta.uuid_fk_columns, 1), 0) LOOP
		lineage_set := lineage_set || format('%I = v.%I, ', meta.uuid_fk_columns[i], meta.uuid_fk_columns[i]);
	END LOOP;
	FOR i IN 1 .. coalesce(array_length(meta.array_lineage_columns, 1), 0) LOOP
		lineage_set := lineage_set || format('%I = v.%I, ', meta.array_lineage_columns[i], meta.array_lineage_columns[i]);
	END LOOP;

	EXECUTE format(
		'UPDATE %I t SET data = $1, %s updated_at = now() FROM %I v WHERE t.%I = v.%I AND t.%I::text = $2 RETURNING to_jsonb(t.*)',
		table_name, lineage_set, view_name, pk_column, pk_column, pk_column)
	INTO new_row
	USING view_row -> 'data', p_pk;

	IF new_row IS NULL THEN
		RAISE EXCEPTION 'pg_tview: refresh of entity % pk % affected zero rows', p_entity, p_pk;
	END IF;

	INSERT INTO {{.CatalogSchema|qi}}.pg_tview_refresh_log (entity, pk, message)
	VALUES (p_entity, p_pk, 'refreshed');

	RETURN new_row;
END;
$$ LANGUAGE plpgsql;
`
