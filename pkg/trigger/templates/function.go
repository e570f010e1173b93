// SPDX-License-Identifier: Apache-2.0

package templates

// EnqueueFunction is the body of the AFTER INSERT/UPDATE/DELETE FOR EACH ROW
// trigger function C5 installs on every transitive base table of a
// projection (spec §4.5). It resolves the firing table's primary-key column
// dynamically from the host catalog rather than baking in a column name
// (step 1), extracts the PK from NEW/OLD via to_jsonb rather than a
// statically-typed field reference (step 2), looks up the entities that
// depend on this table (step 3), and enqueues each dependent's refresh key
// into the session's transaction-local queue table (step 4). Every enqueue
// is tagged with DefaultClassification ("unknown"), which sends C6 down its
// full-refresh path unless a propagated enqueue for the same key replaces
// the classification before drain.
const EnqueueFunction = `CREATE OR REPLACE FUNCTION {{ .FunctionName | qi }}()
    RETURNS TRIGGER
    LANGUAGE PLPGSQL
    AS $$
    DECLARE
        pk_column   text;
        pk_new      text;
        pk_old      text;
        dep         RECORD;
    BEGIN
        SELECT a.attname INTO pk_column
        FROM pg_index i
        JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
        WHERE i.indrelid = TG_RELID AND i.indisprimary
        LIMIT 1;

        IF pk_column IS NULL THEN
            RAISE EXCEPTION '{{ .FunctionName }}: table % has no primary key', TG_TABLE_NAME;
        END IF;

        IF TG_OP IN ('INSERT', 'UPDATE') THEN
            pk_new := to_jsonb(NEW) ->> pk_column;
        END IF;
        IF TG_OP IN ('UPDATE', 'DELETE') THEN
            pk_old := to_jsonb(OLD) ->> pk_column;
        END IF;

        FOR dep IN
            SELECT entity, dependency_types
            FROM {{ .CatalogSchema | qi }}.pg_tview_meta
            WHERE TG_RELID::oid = ANY(dependencies)
        LOOP
            IF pk_new IS NOT NULL THEN
                PERFORM {{ .CatalogSchema | qi }}.pg_tview_enqueue(
                    dep.entity, pk_new, {{ .DefaultClassification | ql }}, NULL, NULL, NULL, 0);
            END IF;

            -- PK change or delete: the old key's projection row may have
            -- disappeared from this entity's result set (spec I3) and must
            -- also be reconciled.
            IF pk_old IS NOT NULL AND pk_old IS DISTINCT FROM pk_new THEN
                PERFORM {{ .CatalogSchema | qi }}.pg_tview_enqueue(
                    dep.entity, pk_old, {{ .DefaultClassification | ql }}, NULL, NULL, NULL, 0);
            END IF;
        END LOOP;

        IF TG_OP = 'DELETE' THEN
            RETURN OLD;
        END IF;
        RETURN NEW;
    END;
    $$;
`
