// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// RecordHelper upserts an advisory entry in pg_tview_helpers for a view
// discovered during dependency resolution that carries no metadata row of
// its own (spec §4.1, §9 "Helper view vs. projection"). This is purely
// diagnostic — the engine never reads it back to decide behavior. Helpers
// lists the rows; neither `analyze_select` nor `health_check` reads them.
func (c *Catalog) RecordHelper(ctx context.Context, helperName, usedBy string, dependsOn []string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.pg_tview_helpers (helper_name, used_by, depends_on)
		VALUES ($1, ARRAY[$2], $3)
		ON CONFLICT (helper_name) DO UPDATE SET
			used_by = (
				SELECT ARRAY(SELECT DISTINCT unnest(%[1]s.pg_tview_helpers.used_by || ARRAY[$2]))
			),
			depends_on = $3`, pq.QuoteIdentifier(c.schema))

	_, err := c.conn.ExecContext(ctx, query, helperName, usedBy, pq.Array(dependsOn))
	if err != nil {
		return fmt.Errorf("recording helper view %q: %w", helperName, err)
	}
	return nil
}

// Helper is one pg_tview_helpers row.
type Helper struct {
	Name      string
	UsedBy    []string
	DependsOn []string
}

// Helpers returns every recorded helper view.
func (c *Catalog) Helpers(ctx context.Context) ([]Helper, error) {
	query := fmt.Sprintf(`SELECT helper_name, used_by, depends_on FROM %s.pg_tview_helpers`,
		pq.QuoteIdentifier(c.schema))
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing helper views: %w", err)
	}
	defer rows.Close()

	var out []Helper
	for rows.Next() {
		var h Helper
		if err := rows.Scan(&h.Name, pq.Array(&h.UsedBy), pq.Array(&h.DependsOn)); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
