// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"bytes"
	"text/template"

	"github.com/lib/pq"
)

// config carries the one per-install value every template below renders
// from. Same text/template + qi/ql FuncMap idiom as pkg/trigger/templates,
// duplicated rather than shared because this package's templates take a
// different, smaller field set (just the catalog schema they're installed
// into).
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
		panic(err) // template is a package constant; a parse/exec failure is a programming error
	}
	return buf.String()
}

// mergeShallowFunction implements merge_shallow(doc, patch) -> doc (spec
// §6): a root-level key-wise overwrite. Deferring to an extension-provided
// merge_shallow(jsonb,jsonb) when one is installed, and otherwise falling
// back to jsonb's own `||` operator, which already is a shallow merge.
const mergeShallowFunction = `
CREATE OR REPLACE FUNCTION {{.CatalogSchema|qi}}.pg_tview_merge_shallow(doc jsonb, patch jsonb)
RETURNS jsonb AS $$
BEGIN
	IF to_regprocedure('merge_shallow(jsonb,jsonb)') IS NOT NULL THEN
		RETURN merge_shallow(doc, patch);
	END IF;
	RETURN coalesce(doc, '{}'::jsonb) || coalesce(patch, '{}'::jsonb);
END;
$$ LANGUAGE plpgsql IMMUTABLE;
`

// mergeAtPathFunction implements merge_at_path(doc, patch, path) -> doc
// (spec §6): when both doc's value at path and patch are objects, merges
// patch's keys into that value (a shallow `||`); otherwise sets doc's value
// at path to patch. Intermediate objects are created as needed. Falls back
// to jsonb_set with create_missing=true.
const mergeAtPathFunction = `
CREATE OR REPLACE FUNCTION {{.CatalogSchema|qi}}.pg_tview_merge_at_path(doc jsonb, patch jsonb, path text[])
RETURNS jsonb AS $$
DECLARE
	result   jsonb;
	existing jsonb;
BEGIN
	IF to_regprocedure('merge_at_path(jsonb,jsonb,text[])') IS NOT NULL THEN
		RETURN merge_at_path(doc, patch, path);
	END IF;
	IF path IS NULL OR array_length(path, 1) IS NULL THEN
		RETURN patch;
	END IF;
	result := coalesce(doc, '{}'::jsonb);
	FOR i IN 1 .. array_length(path, 1) - 1 LOOP
		IF jsonb_typeof(result #> path[1:i]) IS DISTINCT FROM 'object' THEN
			result := jsonb_set(result, path[1:i], '{}'::jsonb, true);
		END IF;
	END LOOP;
	existing := result #> path;
	IF jsonb_typeof(existing) = 'object' AND jsonb_typeof(patch) = 'object' THEN
		RETURN jsonb_set(result, path, existing || patch, true);
	END IF;
	RETURN jsonb_set(result, path, patch, true);
END;
$$ LANGUAGE plpgsql IMMUTABLE;
`

// arrayUpdateWhereFunction implements array_update_where(doc, array_path,
// match_key, match_value, patch) -> doc (spec §6): merges patch into the
// element of the array at array_path whose match_key equals match_value, or
// appends patch as a new element when no match exists.
const arrayUpdateWhereFunction = `
CREATE OR REPLACE FUNCTION {{.CatalogSchema|qi}}.pg_tview_array_update_where(
	doc jsonb, array_path text[], match_key text, match_value text, patch jsonb
) RETURNS jsonb AS $$
DECLARE
	arr jsonb;
	idx int := -1;
	i int;
BEGIN
	IF to_regprocedure('array_update_where(jsonb,text[],text,text,jsonb)') IS NOT NULL THEN
		RETURN array_update_where(doc, array_path, match_key, match_value, patch);
	END IF;

	arr := coalesce(doc #> array_path, '[]'::jsonb);
	FOR i IN 0 .. jsonb_array_length(arr) - 1 LOOP
		IF (arr -> i) ->> match_key = match_value THEN
			idx := i;
			EXIT;
		END IF;
	END LOOP;

	IF idx >= 0 THEN
		arr := jsonb_set(arr, ARRAY[idx::text], (arr -> idx) || patch);
	ELSE
		arr := arr || jsonb_build_array(patch);
	END IF;

	RETURN {{.CatalogSchema|qi}}.pg_tview_merge_at_path(doc, arr, array_path);
END;
$$ LANGUAGE plpgsql IMMUTABLE;
`

// arrayUpdateBatchFunction implements array_update_batch(doc, array_path,
// match_key, updates) -> doc (spec §6, and the "SHOULD use a batch patch
// primitive" guidance of §4.7 for ≥10 affected parent rows): updates is a
// jsonb array of {match_value, patch} objects, applied in order, each to the
// document the previous update produced.
const arrayUpdateBatchFunction = `
CREATE OR REPLACE FUNCTION {{.CatalogSchema|qi}}.pg_tview_array_update_batch(
	doc jsonb, array_path text[], match_key text, updates jsonb
) RETURNS jsonb AS $$
DECLARE
	u jsonb;
	result jsonb := doc;
BEGIN
	IF to_regprocedure('array_update_batch(jsonb,text[],text,jsonb)') IS NOT NULL THEN
		RETURN array_update_batch(doc, array_path, match_key, updates);
	END IF;

	FOR u IN SELECT * FROM jsonb_array_elements(updates) LOOP
		result := {{.CatalogSchema|qi}}.pg_tview_array_update_where(
			result, array_path, match_key, u->>'match_value', u->'patch');
	END LOOP;

	RETURN result;
END;
$$ LANGUAGE plpgsql IMMUTABLE;
`
