// SPDX-License-Identifier: Apache-2.0

// Package engine is the facade callers use: it wires C1-C8 (catalog,
// inspect, depgraph, builder, trigger, patch, refresh, propagate, queue)
// behind the handful of entry points spec §6 names (create, drop,
// analyze_select, check_surgical_patch_available, health_check, queue_info).
// Like pkg/roll.Roll, it owns the connection and is the one place that knows
// how every collaborator is constructed; everything downstream only ever
// sees the db.DB interface.
package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/fraiseql/pgtviews/internal/connstr"
	"github.com/fraiseql/pgtviews/pkg/builder"
	"github.com/fraiseql/pgtviews/pkg/catalog"
	"github.com/fraiseql/pgtviews/pkg/db"
	"github.com/fraiseql/pgtviews/pkg/inspect"
	"github.com/fraiseql/pgtviews/pkg/logging"
	"github.com/fraiseql/pgtviews/pkg/patch"
	"github.com/fraiseql/pgtviews/pkg/propagate"
	"github.com/fraiseql/pgtviews/pkg/queue"
	"github.com/fraiseql/pgtviews/pkg/refresh"
)

// DefaultMaxPropagationDepth mirrors queue.DepthBound (spec §6: "10, fatal
// guard"). It is exported for callers; Engine does not store it and
// HealthCheck does not report it. The bound actually enforced at drain time is baked into the
// generated SQL by queue.Install and cannot differ per Engine instance.
const DefaultMaxPropagationDepth = queue.DepthBound

// Engine is the top-level handle a caller holds for one (Postgres
// database, catalog schema) pair. Its lifetime spans many Create/Drop
// calls and the writing transactions that trigger refresh/propagate, but it
// installs C5-C8's generated SQL exactly once, at Init.
type Engine struct {
	pgConn db.DB
	cat    *catalog.Catalog
	log    logging.Logger

	schema          string
	catalogSchema   string
	strictIsolation bool
}

type options struct {
	lockTimeoutMs   int
	role            string
	strictIsolation bool
	logger          logging.Logger
}

// Option configures New, following pkg/roll's functional-options shape.
type Option func(*options)

// WithLockTimeout sets the Postgres lock_timeout (milliseconds) the engine's
// connection runs DDL under, same knob pkg/roll exposes.
func WithLockTimeout(ms int) Option {
	return func(o *options) { o.lockTimeoutMs = ms }
}

// WithRole sets an optional Postgres role the connection switches to after
// connecting.
func WithRole(role string) Option {
	return func(o *options) { o.role = role }
}

// WithStrictIsolation makes writes that run under weaker-than-repeatable-read
// isolation fail with refresh.IsolationError instead of merely logging a
// warning (spec §7: "Warning (default) or error (strict mode)").
func WithStrictIsolation() Option {
	return func(o *options) { o.strictIsolation = true }
}

// WithLogger overrides the default noop logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New opens a connection to pgURL, scoped to schema via search_path, and
// returns an Engine ready for Init. catalogSchema holds pg_tview_meta and
// every generated C5-C8 function; it is commonly the same as schema but
// kept distinct so one catalog schema can govern projections defined across
// several application schemas.
func New(ctx context.Context, pgURL, schema, catalogSchema string, opts ...Option) (*Engine, error) {
	o := &options{logger: logging.NewNoop()}
	for _, opt := range opts {
		opt(o)
	}

	conn, err := setupConn(ctx, pgURL, schema, *o)
	if err != nil {
		return nil, err
	}

	rdb := &db.RDB{DB: conn}
	return &Engine{
		pgConn:          rdb,
		cat:             catalog.New(rdb, catalogSchema),
		log:             o.logger,
		schema:          schema,
		catalogSchema:   catalogSchema,
		strictIsolation: o.strictIsolation,
	}, nil
}

func setupConn(ctx context.Context, pgURL, schema string, o options) (*sql.DB, error) {
	dsn, err := connstr.AppendSearchPathOption(pgURL, schema)
	if err != nil {
		return nil, fmt.Errorf("setting search_path: %w", err)
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}

	if o.lockTimeoutMs > 0 {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET lock_timeout to '%dms'", o.lockTimeoutMs)); err != nil {
			return nil, fmt.Errorf("unable to set lock_timeout: %w", err)
		}
	}

	if o.role != "" {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET ROLE %s", pq.QuoteIdentifier(o.role))); err != nil {
			return nil, fmt.Errorf("unable to set role to %q: %w", o.role, err)
		}
	}

	return conn, nil
}

// Init installs every piece of schema-wide generated SQL C1-C8 need: the
// catalog tables (C1), the four patch primitives (C6/C7's collaborator),
// the five queue functions plus two-phase-commit staging (C8), and the
// refresh/propagate functions (C6, C7). It is idempotent — every
// underlying Install uses CREATE OR REPLACE / CREATE TABLE IF NOT EXISTS —
// so callers may call it once per deployment or once per process startup.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.cat.Init(ctx); err != nil {
		return fmt.Errorf("initializing catalog: %w", err)
	}
	if err := patch.Install(ctx, e.pgConn, e.catalogSchema); err != nil {
		return fmt.Errorf("installing patch primitives: %w", err)
	}
	if err := queue.Install(ctx, e.pgConn, e.catalogSchema); err != nil {
		return fmt.Errorf("installing queue functions: %w", err)
	}
	if err := queue.InstallStaging(ctx, e.pgConn, e.catalogSchema); err != nil {
		return fmt.Errorf("installing two-phase-commit staging: %w", err)
	}
	if err := refresh.Install(ctx, e.pgConn, e.catalogSchema); err != nil {
		return fmt.Errorf("installing refresh function: %w", err)
	}
	if err := propagate.Install(ctx, e.pgConn, e.catalogSchema); err != nil {
		return fmt.Errorf("installing propagate function: %w", err)
	}

	e.log.Info("pg_tview initialized", "catalog_schema", e.catalogSchema, "schema", e.schema)
	return nil
}

// Catalog returns the underlying catalog handle, for callers (cmd/, tests)
// that need entity introspection beyond what Engine exposes directly.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// PgConn returns the underlying database connection.
func (e *Engine) PgConn() db.DB { return e.pgConn }

// Schema returns the application schema this Engine acts on.
func (e *Engine) Schema() string { return e.schema }

// CatalogSchema returns the schema holding pg_tview_meta and the generated
// C5-C8 functions.
func (e *Engine) CatalogSchema() string { return e.catalogSchema }

func (e *Engine) Close() error {
	return e.pgConn.Close()
}

// Create implements spec §6's create(entity, select_text): infer, build,
// wire triggers and persist metadata, rejecting any SELECT that would
// introduce a projection-dependency cycle (I4). It loads the current DAG
// from the catalog itself so callers never have to assemble `edges` by
// hand, unlike pkg/builder.Builder.Create's lower-level signature. The
// whole sequence runs in one transaction (spec §4.4: "all of (1)-(6) run in
// the caller's transaction") so host rollback covers every object on
// failure.
func (e *Engine) Create(ctx context.Context, entity, selectText string) error {
	err := e.inTransaction(ctx, func(ctx context.Context, txConn db.DB, cat *catalog.Catalog) error {
		edges, err := cat.AllEdges(ctx)
		if err != nil {
			return fmt.Errorf("loading projection DAG: %w", err)
		}

		return builder.New(txConn, cat).Create(ctx, entity, selectText, edges)
	})
	if err != nil {
		return err
	}

	e.log.LogProjectionCreated(entity)
	return nil
}

// Drop implements spec §6's drop(entity, if_exists).
func (e *Engine) Drop(ctx context.Context, entity string, ifExists bool) error {
	err := e.inTransaction(ctx, func(ctx context.Context, txConn db.DB, cat *catalog.Catalog) error {
		return builder.New(txConn, cat).Drop(ctx, entity, ifExists)
	})
	if err != nil {
		return err
	}

	e.log.LogProjectionDropped(entity)
	return nil
}

// Replace implements redefinition (spec §3 Lifecycle: drop+create).
func (e *Engine) Replace(ctx context.Context, entity, selectText string) error {
	err := e.inTransaction(ctx, func(ctx context.Context, txConn db.DB, cat *catalog.Catalog) error {
		edges, err := cat.AllEdges(ctx)
		if err != nil {
			return fmt.Errorf("loading projection DAG: %w", err)
		}
		// The entity being replaced must not count as its own prior edge
		// set when checking the new SELECT for cycles.
		delete(edges, entity)

		return builder.New(txConn, cat).Replace(ctx, entity, selectText, edges)
	})
	if err != nil {
		return err
	}

	e.log.LogProjectionReplaced(entity)
	return nil
}

// inTransaction runs fn inside a transaction on e.pgConn, wiring a
// transaction-scoped db.DB and catalog.Catalog so every C1-C8 collaborator
// fn constructs shares the same backend and rolls back together on error.
// Before calling fn it checks the transaction's isolation level against
// spec §7's IsolationError: in strict mode (WithStrictIsolation) weaker
// than repeatable read aborts before any DDL runs; in the default warn mode
// it only logs.
func (e *Engine) inTransaction(ctx context.Context, fn func(context.Context, db.DB, *catalog.Catalog) error) error {
	rdb, ok := e.pgConn.(*db.RDB)
	if !ok {
		// Already running inside a caller-provided transaction (e.g. tests
		// wiring a db.TxDB directly); nothing to wrap.
		return fn(ctx, e.pgConn, e.cat)
	}

	return rdb.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		level, err := refresh.CheckIsolation(ctx, tx, e.strictIsolation)
		if err != nil {
			return err
		}
		if level != "repeatable read" && level != "serializable" {
			e.log.Warn("transaction isolation weaker than repeatable read", "level", level)
		}

		txConn := &db.TxDB{Tx: tx}
		return fn(ctx, txConn, catalog.New(txConn, e.catalogSchema))
	})
}

// AnalyzeSelect implements spec §6's analyze_select(select_text) →
// structured: C2's inference run standalone, for introspection/tests, with
// no view_oid of a real entity to classify compositions against (viewOID 0
// means "no backing view exists", which makes inspect.Infer read the column
// list from an ephemeral temporary probe view).
func (e *Engine) AnalyzeSelect(ctx context.Context, selectText string) (inspect.Result, error) {
	return inspect.Infer(ctx, e.pgConn, "__analyze__", selectText, 0)
}

// CheckSurgicalPatchAvailable implements spec §6's
// check_surgical_patch_available().
func (e *Engine) CheckSurgicalPatchAvailable(ctx context.Context) (patch.Availability, error) {
	return patch.CheckSurgicalPatchAvailable(ctx, e.pgConn)
}

// QueueInfo implements spec §6's queue_info() → (size, entities[]): a
// realtime view of the calling session's own transaction-local queue.
func (e *Engine) QueueInfo(ctx context.Context) (queue.Info, error) {
	return queue.GetInfo(ctx, e.pgConn)
}

// HealthCheck implements spec §6's health_check(). Per spec §7's error
// taxonomy nothing is recovered inside the engine, so there is no internal
// health state to read back: this reports the two conditions an operator
// actually cares about — that pg_tview_meta is reachable and that the
// generated refresh/propagate functions are installed — by probing
// pg_proc the same way CheckSurgicalPatchAvailable probes for the optional
// extension.
func (e *Engine) HealthCheck(ctx context.Context) (HealthReport, error) {
	report := HealthReport{CatalogSchema: e.catalogSchema}

	var entityCount int
	if err := e.pgConn.QueryRowContext(ctx,
		fmt.Sprintf("SELECT count(*) FROM %s.pg_tview_meta", pq.QuoteIdentifier(e.catalogSchema)),
	).Scan(&entityCount); err != nil {
		report.CatalogReachable = false
		return report, fmt.Errorf("probing catalog: %w", err)
	}
	report.CatalogReachable = true
	report.EntityCount = entityCount

	refreshSig := refresh.QualifiedName(e.catalogSchema) + "(text,text,text,jsonb,text,text)"
	if err := e.pgConn.QueryRowContext(ctx, "SELECT to_regprocedure($1) IS NOT NULL", refreshSig).
		Scan(&report.RefreshInstalled); err != nil {
		return report, fmt.Errorf("probing refresh function: %w", err)
	}

	propagateSig := propagate.QualifiedName(e.catalogSchema) + "(text,text,jsonb,int)"
	if err := e.pgConn.QueryRowContext(ctx, "SELECT to_regprocedure($1) IS NOT NULL", propagateSig).
		Scan(&report.PropagateInstalled); err != nil {
		return report, fmt.Errorf("probing propagate function: %w", err)
	}

	avail, err := patch.CheckSurgicalPatchAvailable(ctx, e.pgConn)
	if err != nil {
		return report, fmt.Errorf("probing surgical patch availability: %w", err)
	}
	report.SurgicalPatchAvailable = avail.Any()

	return report, nil
}

// HealthReport is the structured result of HealthCheck.
type HealthReport struct {
	CatalogSchema          string
	CatalogReachable       bool
	EntityCount            int
	RefreshInstalled       bool
	PropagateInstalled     bool
	SurgicalPatchAvailable bool
}
