// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"bytes"
	"text/template"

	"github.com/lib/pq"
)

// config carries the values every template below renders from. Same
// text/template + qi/ql FuncMap idiom as pkg/trigger/templates and
// pkg/patch, duplicated rather than shared for the same reason: a
// different, package-specific field set.
type config struct {
	CatalogSchema  string
	QueueTable     string
	ProcessedTable string
	DepthBound     int
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

// moreSpecificFunction implements the dedup-precedence comparison spec §4.8
// names: "preferring the more specific: array > nested_object > scalar >
// unknown". Mirrors pkg/catalog.DependencyType.precedence so the two stay
// in lockstep; see DESIGN.md for why this SQL copy can't simply call back
// into the Go rule.
const moreSpecificFunction = `
CREATE OR REPLACE FUNCTION {{.CatalogSchema|qi}}.pg_tview_more_specific(a text, b text)
RETURNS text AS $$
	SELECT CASE
		WHEN a = 'array' OR b = 'array' THEN 'array'
		WHEN a = 'nested_object' OR b = 'nested_object' THEN 'nested_object'
		WHEN a = 'scalar' OR b = 'scalar' THEN 'scalar'
		ELSE 'unknown'
	END;
$$ LANGUAGE sql IMMUTABLE;
`

// ensureQueueFunction lazily creates this session's transaction-local queue
// and processed-set temp tables, plus the deferred constraint trigger that
// drains them, the first time anything is enqueued in a given session (spec
// §4.8: "First insert into an empty set registers a commit callback with
// the host"). Lazy per-session creation, rather than a one-time Install
// call, is necessary because temp tables are session-scoped: a connection
// pool hands out many physical sessions, and each one needs its own copy.
const ensureQueueFunction = `
CREATE OR REPLACE FUNCTION {{.CatalogSchema|qi}}.pg_tview_ensure_queue()
RETURNS void AS $$
BEGIN
	IF to_regclass('pg_temp.{{.QueueTable}}') IS NOT NULL THEN
		RETURN;
	END IF;

	CREATE TEMP TABLE {{.QueueTable|qi}} (
		entity text NOT NULL,
		pk text NOT NULL,
		classification text NOT NULL,
		patch jsonb,
		match_value text,
		source_entity text,
		depth int NOT NULL DEFAULT 0,
		PRIMARY KEY (entity, pk)
	) ON COMMIT DELETE ROWS;

	CREATE TEMP TABLE {{.ProcessedTable|qi}} (
		entity text NOT NULL,
		pk text NOT NULL,
		PRIMARY KEY (entity, pk)
	) ON COMMIT DELETE ROWS;

	CREATE CONSTRAINT TRIGGER trg_tview_drain
		AFTER INSERT ON {{.QueueTable|qi}}
		DEFERRABLE INITIALLY DEFERRED
		FOR EACH ROW EXECUTE FUNCTION {{.CatalogSchema|qi}}.pg_tview_drain_trigger();
END;
$$ LANGUAGE plpgsql;
`

// drainTriggerFunction is the deferred constraint-trigger body: by the time
// any deferred trigger on Table actually runs, every statement in the
// transaction (including every other enqueue) has already executed, so
// calling drain unconditionally here is safe even though every row queued
// this transaction registers one of these triggers — drain is idempotent
// and the second and later firings simply find nothing left to do.
const drainTriggerFunction = `
CREATE OR REPLACE FUNCTION {{.CatalogSchema|qi}}.pg_tview_drain_trigger()
RETURNS TRIGGER AS $$
BEGIN
	PERFORM {{.CatalogSchema|qi}}.pg_tview_drain();
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;
`

// enqueueFunction is the single insertion point both C5's per-base-table
// trigger and C7's propagator use (spec §4.8 Enqueue): set-add by
// (entity, pk), reconciling a duplicate's classification/patch/match_value/
// source_entity toward whichever of the two rows is more specific, and its
// depth to the smaller of the two. p_source_entity
// is the child entity a propagated patch was computed from (NULL for a
// direct base-table enqueue, whose classification is always "unknown"); C6
// needs it to know which of the target entity's dependency_paths/
// array_match_keys entries the patch/match_value apply to.
const enqueueFunction = `
CREATE OR REPLACE FUNCTION {{.CatalogSchema|qi}}.pg_tview_enqueue(
	p_entity text, p_pk text, p_classification text,
	p_patch jsonb, p_match_value text, p_source_entity text, p_depth int
) RETURNS void AS $$
BEGIN
	PERFORM {{.CatalogSchema|qi}}.pg_tview_ensure_queue();

	INSERT INTO {{.QueueTable|qi}} (entity, pk, classification, patch, match_value, source_entity, depth)
	VALUES (p_entity, p_pk, p_classification, p_patch, p_match_value, p_source_entity, p_depth)
	ON CONFLICT (entity, pk) DO UPDATE SET
		classification = {{.CatalogSchema|qi}}.pg_tview_more_specific(
			{{.QueueTable|qi}}.classification, EXCLUDED.classification),
		depth = LEAST({{.QueueTable|qi}}.depth, EXCLUDED.depth),
		patch = CASE WHEN EXCLUDED.classification = {{.CatalogSchema|qi}}.pg_tview_more_specific(
					{{.QueueTable|qi}}.classification, EXCLUDED.classification)
				THEN EXCLUDED.patch ELSE {{.QueueTable|qi}}.patch END,
		match_value = CASE WHEN EXCLUDED.classification = {{.CatalogSchema|qi}}.pg_tview_more_specific(
					{{.QueueTable|qi}}.classification, EXCLUDED.classification)
				THEN EXCLUDED.match_value ELSE {{.QueueTable|qi}}.match_value END,
		source_entity = CASE WHEN EXCLUDED.classification = {{.CatalogSchema|qi}}.pg_tview_more_specific(
					{{.QueueTable|qi}}.classification, EXCLUDED.classification)
				THEN EXCLUDED.source_entity ELSE {{.QueueTable|qi}}.source_entity END;
END;
$$ LANGUAGE plpgsql;
`

// drainFunction is spec §4.8's Drainage algorithm: pop any element, skip it
// if already processed (I5), enforce the depth guard, run C6 then C7, loop
// until empty. C6/C7 are referenced purely by the generated name
// (pg_tview_refresh_one / pg_tview_propagate_one); this package does not
// import pkg/refresh or pkg/propagate, it only agrees on their names.
const drainFunction = `
CREATE OR REPLACE FUNCTION {{.CatalogSchema|qi}}.pg_tview_drain()
RETURNS void AS $$
DECLARE
	item {{.QueueTable|qi}}%ROWTYPE;
	new_data jsonb;
BEGIN
	LOOP
		SELECT * INTO item FROM {{.QueueTable|qi}} LIMIT 1;
		EXIT WHEN NOT FOUND;

		DELETE FROM {{.QueueTable|qi}} WHERE entity = item.entity AND pk = item.pk;

		IF EXISTS (
			SELECT 1 FROM {{.ProcessedTable|qi}}
			WHERE entity = item.entity AND pk = item.pk
		) THEN
			CONTINUE;
		END IF;

		IF item.depth > {{.DepthBound}} THEN
			RAISE EXCEPTION
				'pg_tview: cascade depth exceeded % levels refreshing entity % pk %',
				{{.DepthBound}}, item.entity, item.pk;
		END IF;

		INSERT INTO {{.ProcessedTable|qi}} (entity, pk) VALUES (item.entity, item.pk);

		new_data := {{.CatalogSchema|qi}}.pg_tview_refresh_one(
			item.entity, item.pk, item.classification, item.patch, item.match_value, item.source_entity);

		PERFORM {{.CatalogSchema|qi}}.pg_tview_propagate_one(
			item.entity, item.pk, new_data, item.depth);
	END LOOP;
END;
$$ LANGUAGE plpgsql;
`
