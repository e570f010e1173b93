// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/fraiseql/pgtviews/pkg/catalog"
	"github.com/fraiseql/pgtviews/pkg/db"
	"github.com/fraiseql/pgtviews/pkg/depgraph"
	"github.com/fraiseql/pgtviews/pkg/inspect"
	"github.com/fraiseql/pgtviews/pkg/trigger"
)

// createViewAction is spec §4.4 step 1: define v_<entity>.
type createViewAction struct {
	conn  db.DB
	state *buildState
}

func (a *createViewAction) ID() string { return "create_view_" + a.state.entity }

func (a *createViewAction) Execute(ctx context.Context) error {
	sql := fmt.Sprintf("CREATE VIEW %s AS %s", pq.QuoteIdentifier(a.state.viewName), a.state.selectText)
	if _, err := a.conn.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("creating view %s: %w", a.state.viewName, err)
	}

	oid, err := relationOID(ctx, a.conn, a.state.viewName)
	if err != nil {
		return err
	}
	a.state.viewOID = oid
	return nil
}

// inferSchemaAction is spec §4.4 step 2: run C2 on the newly created view,
// rejecting the whole create() if required columns are missing.
type inferSchemaAction struct {
	conn  db.DB
	state *buildState
}

func (a *inferSchemaAction) ID() string { return "infer_schema_" + a.state.entity }

func (a *inferSchemaAction) Execute(ctx context.Context) error {
	result, err := inspect.Infer(ctx, a.conn, a.state.entity, a.state.selectText, a.state.viewOID)
	if err != nil {
		return err
	}
	a.state.inferred = result
	return nil
}

// createMaterializedTableAction is spec §4.4 step 3: create tv_<entity>
// with the inferred column types and the four index kinds.
type createMaterializedTableAction struct {
	conn  db.DB
	state *buildState
}

func (a *createMaterializedTableAction) ID() string { return "create_table_" + a.state.entity }

func (a *createMaterializedTableAction) Execute(ctx context.Context) error {
	tableSQL := materializedTableDDL(a.state.tableName, a.state.inferred)
	if _, err := a.conn.ExecContext(ctx, tableSQL); err != nil {
		return fmt.Errorf("creating materialized table %s: %w", a.state.tableName, err)
	}

	statements := []string{
		primaryKeyIndexDDL(a.state.tableName, a.state.inferred.PKColumn),
		uniqueIDIndexDDL(a.state.tableName, a.state.inferred.IDColumn),
		dataGINIndexDDL(a.state.tableName, a.state.inferred.DataColumn),
	}
	for _, fk := range a.state.inferred.FKColumns {
		statements = append(statements, fkIndexDDL(a.state.tableName, fk))
	}

	for _, stmt := range statements {
		if _, err := a.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("indexing materialized table %s: %w", a.state.tableName, err)
		}
	}

	oid, err := relationOID(ctx, a.conn, a.state.tableName)
	if err != nil {
		return err
	}
	a.state.tableOID = oid
	return nil
}

// populateAction is spec §4.4 step 4: populate tv_<entity> from v_<entity>.
type populateAction struct {
	conn  db.DB
	state *buildState
}

func (a *populateAction) ID() string { return "populate_" + a.state.entity }

func (a *populateAction) Execute(ctx context.Context) error {
	cols := populateColumnList(a.state.inferred)
	sql := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		pq.QuoteIdentifier(a.state.tableName), cols, cols, pq.QuoteIdentifier(a.state.viewName))
	if _, err := a.conn.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("populating materialized table %s: %w", a.state.tableName, err)
	}
	return nil
}

func populateColumnList(r inspect.Result) string {
	names := []string{r.PKColumn, r.IDColumn}
	names = append(names, r.FKColumns...)
	names = append(names, r.UUIDColumns...)
	names = append(names, r.ArrayColumns...)
	names = append(names, r.DataColumn)
	for _, other := range r.OtherColumns {
		names = append(names, other.Name)
	}

	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pq.QuoteIdentifier(n)
	}
	out := ""
	for i, q := range quoted {
		if i > 0 {
			out += ", "
		}
		out += q
	}
	return out
}

// resolveDependenciesAction is spec §4.4 step 5's first half: run C3 to
// find the transitive base tables and direct view-edges.
type resolveDependenciesAction struct {
	conn  db.DB
	state *buildState
	owned depgraph.OwnershipChecker
}

func (a *resolveDependenciesAction) ID() string { return "resolve_dependencies_" + a.state.entity }

func (a *resolveDependenciesAction) Execute(ctx context.Context) error {
	result, err := depgraph.Resolve(ctx, a.conn, a.owned, a.state.viewOID)
	if err != nil {
		return err
	}
	a.state.resolved = result
	return nil
}

// installTriggersAction is spec §4.4 step 5's second half: install C5
// triggers on every transitive base table.
type installTriggersAction struct {
	conn      db.DB
	state     *buildState
	installer *trigger.Installer
}

func (a *installTriggersAction) ID() string { return "install_triggers_" + a.state.entity }

func (a *installTriggersAction) Execute(ctx context.Context) error {
	for _, tableOID := range a.state.resolved.BaseTables {
		tableName, err := relationName(ctx, a.conn, tableOID)
		if err != nil {
			return err
		}
		if err := a.installer.Install(ctx, a.state.entity, tableName); err != nil {
			return err
		}
	}
	return nil
}

// persistMetadataAction is spec §4.4 step 6: persist the metadata row.
type persistMetadataAction struct {
	state *buildState
	cat   *catalog.Catalog
}

func (a *persistMetadataAction) ID() string { return "persist_metadata_" + a.state.entity }

func (a *persistMetadataAction) Execute(ctx context.Context) error {
	return a.cat.Upsert(ctx, a.state.toMetadata())
}

func relationOID(ctx context.Context, conn db.DB, name string) (int64, error) {
	row := conn.QueryRowContext(ctx, `SELECT $1::regclass::oid`, name)
	var oid int64
	if err := row.Scan(&oid); err != nil {
		return 0, fmt.Errorf("resolving oid of relation %q: %w", name, err)
	}
	return oid, nil
}

func relationName(ctx context.Context, conn db.DB, oid int64) (string, error) {
	row := conn.QueryRowContext(ctx, `SELECT relname FROM pg_class WHERE oid = $1`, oid)
	var name string
	if err := row.Scan(&name); err != nil {
		return "", fmt.Errorf("resolving name of relation %d: %w", oid, err)
	}
	return name, nil
}
