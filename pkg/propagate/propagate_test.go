// SPDX-License-Identifier: Apache-2.0

package propagate_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraiseql/pgtviews/internal/testutils"
	"github.com/fraiseql/pgtviews/pkg/catalog"
	"github.com/fraiseql/pgtviews/pkg/db"
	"github.com/fraiseql/pgtviews/pkg/propagate"
	"github.com/fraiseql/pgtviews/pkg/queue"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

// TestPropagateOneEnqueuesParentsFoundByFKColumn covers the preferred path
// of spec §4.7 step 2: a literal fk_<child> column in the parent's
// materialized table.
func TestPropagateOneEnqueuesParentsFoundByFKColumn(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(sqlDB *sql.DB, _ string) {
		ctx := context.Background()

		// pg_tview_queue is a session-scoped temp table that is drained at
		// commit: every statement that touches it runs on this one dedicated
		// connection, inside a transaction that is rolled back. The
		// schema-wide installs go through the pool.
		conn, err := sqlDB.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.ExecContext(ctx, `CREATE SCHEMA pgtviews`)
		require.NoError(t, err)

		rdb := &db.RDB{DB: sqlDB}
		cat := catalog.New(rdb, "pgtviews")
		require.NoError(t, cat.Init(ctx))
		require.NoError(t, queue.Install(ctx, rdb, "pgtviews"))
		require.NoError(t, propagate.Install(ctx, rdb, "pgtviews"))

		_, err = conn.ExecContext(ctx, `
			CREATE TABLE tv_post (
				pk_post int PRIMARY KEY,
				fk_user int NOT NULL,
				data jsonb NOT NULL,
				updated_at timestamptz NOT NULL DEFAULT now()
			);
			INSERT INTO tv_post (pk_post, fk_user, data) VALUES
				(10, 1, '{"title":"A","author":{"name":"Alice"}}'),
				(11, 1, '{"title":"B","author":{"name":"Alice"}}'),
				(12, 2, '{"title":"C","author":{"name":"Bob"}}');
		`)
		require.NoError(t, err)

		require.NoError(t, cat.Upsert(ctx, catalog.Metadata{
			Entity: "user", ViewOID: 1, TableOID: 1, Definition: "stub",
		}))
		require.NoError(t, cat.Upsert(ctx, catalog.Metadata{
			Entity: "post", ViewOID: 2, TableOID: 2, Definition: "stub",
			Dependencies:    []int64{1},
			FKColumns:       []string{"fk_user"},
			DependencyTypes: map[string]catalog.DependencyType{"user": catalog.DependencyNestedObject},
			DependencyPaths: map[string][]string{"user": {"author"}},
		}))

		tx, err := conn.BeginTx(ctx, nil)
		require.NoError(t, err)
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx, `
			SELECT pgtviews.pg_tview_propagate_one('user', '1', '{"name":"Alice V2"}'::jsonb, 0)`)
		require.NoError(t, err)

		rows, err := tx.QueryContext(ctx,
			`SELECT pk, classification, source_entity, depth FROM pg_temp.pg_tview_queue ORDER BY pk`)
		require.NoError(t, err)
		defer rows.Close()

		type item struct {
			pk, classification, sourceEntity string
			depth                            int
		}
		var items []item
		for rows.Next() {
			var it item
			require.NoError(t, rows.Scan(&it.pk, &it.classification, &it.sourceEntity, &it.depth))
			items = append(items, it)
		}
		require.NoError(t, rows.Err())

		require.Len(t, items, 2, "only posts 10 and 11 reference user 1")
		for _, it := range items {
			assert.Contains(t, []string{"10", "11"}, it.pk)
			assert.Equal(t, "nested_object", it.classification)
			assert.Equal(t, "user", it.sourceEntity)
			assert.Equal(t, 1, it.depth)
		}
	})
}

// TestPropagateOneEnqueuesParentsFoundByArrayLineageFallback covers the
// non-FK array-lineage fallback path of spec §4.7 step 2.
func TestPropagateOneEnqueuesParentsFoundByArrayLineageFallback(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(sqlDB *sql.DB, _ string) {
		ctx := context.Background()
		conn, err := sqlDB.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.ExecContext(ctx, `CREATE SCHEMA pgtviews`)
		require.NoError(t, err)

		rdb := &db.RDB{DB: sqlDB}
		cat := catalog.New(rdb, "pgtviews")
		require.NoError(t, cat.Init(ctx))
		require.NoError(t, queue.Install(ctx, rdb, "pgtviews"))
		require.NoError(t, propagate.Install(ctx, rdb, "pgtviews"))

		_, err = conn.ExecContext(ctx, `
			CREATE TABLE tv_feed (
				pk_feed int PRIMARY KEY,
				post_ids text[] NOT NULL,
				data jsonb NOT NULL,
				updated_at timestamptz NOT NULL DEFAULT now()
			);
			INSERT INTO tv_feed (pk_feed, post_ids, data) VALUES
				(1, ARRAY['10','11'], '{"posts":[{"id":"10","title":"A"},{"id":"11","title":"B"}]}');
		`)
		require.NoError(t, err)

		require.NoError(t, cat.Upsert(ctx, catalog.Metadata{
			Entity: "post", ViewOID: 2, TableOID: 2, Definition: "stub",
		}))
		require.NoError(t, cat.Upsert(ctx, catalog.Metadata{
			Entity: "feed", ViewOID: 3, TableOID: 3, Definition: "stub",
			Dependencies:        []int64{2},
			ArrayLineageColumns: []string{"post_ids"},
			DependencyTypes:     map[string]catalog.DependencyType{"post": catalog.DependencyArray},
			DependencyPaths:     map[string][]string{"post": {"posts"}},
			ArrayMatchKeys:      map[string]string{"post": "id"},
		}))

		tx, err := conn.BeginTx(ctx, nil)
		require.NoError(t, err)
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx, `
			SELECT pgtviews.pg_tview_propagate_one('post', '10', '{"id":"10","title":"A2"}'::jsonb, 0)`)
		require.NoError(t, err)

		var pk, classification, matchValue, sourceEntity string
		err = tx.QueryRowContext(ctx,
			`SELECT pk, classification, match_value, source_entity FROM pg_temp.pg_tview_queue`).
			Scan(&pk, &classification, &matchValue, &sourceEntity)
		require.NoError(t, err)

		assert.Equal(t, "1", pk)
		assert.Equal(t, "array", classification)
		assert.Equal(t, "10", matchValue)
		assert.Equal(t, "post", sourceEntity)
	})
}
