// SPDX-License-Identifier: Apache-2.0

package inspect

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fraiseql/pgtviews/pkg/db"
	"github.com/fraiseql/pgtviews/pkg/schema"
)

// readTupleDescriptor reads the ordered, typed column list for the relation
// identified by oid, straight from the host catalog (spec §4.2: "Types are
// resolved through the host catalog, not re-parsed from the SELECT").
// Modeled on pkg/state's catalog-introspection queries against pg_attribute.
func readTupleDescriptor(ctx context.Context, conn db.DB, oid int64) ([]schema.Column, error) {
	const query = `
		SELECT a.attname, pg_catalog.format_type(a.atttypid, a.atttypmod), a.attnum
		FROM pg_attribute a
		WHERE a.attrelid = $1 AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`

	rows, err := conn.QueryContext(ctx, query, oid)
	if err != nil {
		return nil, fmt.Errorf("reading tuple descriptor for relation %d: %w", oid, err)
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var c schema.Column
		if err := rows.Scan(&c.Name, &c.Type, &c.Position); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// createEphemeralHelperView creates a session-local temporary view over
// selectText so its tuple descriptor can be read back from the catalog
// without committing to a permanent object (spec §4.2: "inference may fall
// back to creating a temporary helper view and reading its catalog tuple
// descriptor"). The caller must drop it with dropEphemeralHelperView.
func createEphemeralHelperView(ctx context.Context, conn db.DB, selectText string) (name string, oid int64, err error) {
	name = "pg_tview_probe_" + uuid.NewString()[:8]

	createSQL := fmt.Sprintf("CREATE TEMP VIEW %s AS %s", pq.QuoteIdentifier(name), selectText)
	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		return "", 0, fmt.Errorf("probing select text via ephemeral helper view: %w", err)
	}

	rows, err := conn.QueryContext(ctx, `SELECT to_regclass($1)::oid`, "pg_temp."+name)
	if err != nil {
		return name, 0, fmt.Errorf("looking up oid of ephemeral helper view %q: %w", name, err)
	}
	defer rows.Close()
	if err := db.ScanFirstValue(rows, &oid); err != nil {
		return name, 0, fmt.Errorf("looking up oid of ephemeral helper view %q: %w", name, err)
	}
	return name, oid, nil
}

// dropEphemeralHelperView removes a view created by createEphemeralHelperView.
func dropEphemeralHelperView(ctx context.Context, conn db.DB, name string) error {
	_, err := conn.ExecContext(ctx, fmt.Sprintf("DROP VIEW IF EXISTS %s", pq.QuoteIdentifier(name)))
	if err != nil {
		return fmt.Errorf("dropping ephemeral helper view %q: %w", name, err)
	}
	return nil
}
