// SPDX-License-Identifier: Apache-2.0

// Package catalog is C1: the durable, host-managed metadata the engine owns.
// A Catalog is the only durable state between transactions; everything else
// in this module is re-derived from it or from the host's own pg_catalog.
package catalog

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/fraiseql/pgtviews/pkg/db"
)

// sqlInit creates four tables: pg_tview_meta (one row per entity),
// pg_tview_helpers (advisory helper-view index), pg_tview_pending_refreshes
// (two-phase-commit staging, §4.8) and pg_tview_refresh_log (one row per
// full-path refresh, written by pkg/refresh's generated function).
// Modeled on pkg/state.sqlInit's single idempotent DDL block executed once
// at Init.
const sqlInit = `
CREATE SCHEMA IF NOT EXISTS %[1]s;

CREATE TABLE IF NOT EXISTS %[1]s.pg_tview_meta (
	entity              TEXT PRIMARY KEY,
	view_oid            OID NOT NULL,
	table_oid           OID NOT NULL,
	definition          TEXT NOT NULL,
	dependencies        OID[] NOT NULL DEFAULT '{}',
	base_table_oids     OID[] NOT NULL DEFAULT '{}',
	fk_columns          TEXT[] NOT NULL DEFAULT '{}',
	uuid_fk_columns     TEXT[] NOT NULL DEFAULT '{}',
	array_lineage_columns TEXT[] NOT NULL DEFAULT '{}',
	dependency_types    JSONB NOT NULL DEFAULT '{}'::jsonb,
	dependency_paths    JSONB NOT NULL DEFAULT '{}'::jsonb,
	array_match_keys    JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS %[1]s.pg_tview_helpers (
	helper_name TEXT PRIMARY KEY,
	used_by     TEXT[] NOT NULL DEFAULT '{}',
	depends_on  TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS %[1]s.pg_tview_pending_refreshes (
	gid          TEXT PRIMARY KEY,
	refresh_queue JSONB NOT NULL,
	queue_size   INT NOT NULL,
	prepared_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS %[1]s.pg_tview_refresh_log (
	id         BIGSERIAL PRIMARY KEY,
	entity     TEXT NOT NULL,
	pk         TEXT,
	message    TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Catalog is the engine's handle onto the durable metadata tables. It lives
// in a dedicated Postgres schema (the CLI's --catalog-schema default is
// "pg_tview"; New uses whatever schema it is given), analogous to how
// pkg/state keeps pgroll's own bookkeeping out of the application schema.
type Catalog struct {
	conn   db.DB
	schema string
}

// New returns a Catalog backed by conn, storing its tables in schema.
func New(conn db.DB, schema string) *Catalog {
	return &Catalog{conn: conn, schema: schema}
}

// Schema returns the Postgres schema the catalog's tables live in.
func (c *Catalog) Schema() string {
	return c.schema
}

// Init creates the catalog schema and tables if they don't already exist.
// It is idempotent and safe to call on every process startup, following
// pkg/state.State.Init.
func (c *Catalog) Init(ctx context.Context) error {
	_, err := c.conn.ExecContext(ctx, fmt.Sprintf(sqlInit, pq.QuoteIdentifier(c.schema)))
	if err != nil {
		return fmt.Errorf("initializing catalog schema %q: %w", c.schema, err)
	}
	return nil
}
