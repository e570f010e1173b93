// SPDX-License-Identifier: Apache-2.0

package depgraph_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraiseql/pgtviews/internal/testutils"
	"github.com/fraiseql/pgtviews/pkg/catalog"
	"github.com/fraiseql/pgtviews/pkg/db"
	"github.com/fraiseql/pgtviews/pkg/depgraph"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func oidOf(t *testing.T, ctx context.Context, conn *sql.DB, relation string) int64 {
	t.Helper()
	var oid int64
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT $1::regclass::oid`, relation).Scan(&oid))
	return oid
}

func TestResolveFindsTransitiveBaseTable(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		rdb := &db.RDB{DB: conn}

		_, err := conn.ExecContext(ctx, `
			CREATE TABLE tb_user (pk_user BIGINT PRIMARY KEY, id UUID NOT NULL, name TEXT NOT NULL);
			CREATE VIEW v_user AS
				SELECT pk_user, id, jsonb_build_object('name', name) AS data FROM tb_user;`)
		require.NoError(t, err)

		cat := catalog.New(rdb, "pgtviews")
		require.NoError(t, cat.Init(ctx))

		viewOID := oidOf(t, ctx, conn, "v_user")
		result, err := depgraph.Resolve(ctx, rdb, cat, viewOID)
		require.NoError(t, err)

		tableOID := oidOf(t, ctx, conn, "tb_user")
		assert.Contains(t, result.BaseTables, tableOID)
		assert.Empty(t, result.HelperViews)
		assert.Empty(t, result.DirectViewEdges)
	})
}

func TestResolveClassifiesOwnedViewAsDirectEdgeNotHelper(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		rdb := &db.RDB{DB: conn}

		_, err := conn.ExecContext(ctx, `
			CREATE TABLE tb_user (pk_user BIGINT PRIMARY KEY, id UUID NOT NULL, name TEXT NOT NULL);
			CREATE VIEW v_user AS
				SELECT pk_user, id, jsonb_build_object('name', name) AS data FROM tb_user;

			CREATE TABLE tb_post (pk_post BIGINT PRIMARY KEY, id UUID NOT NULL, fk_user BIGINT NOT NULL, title TEXT NOT NULL);
			CREATE VIEW v_post AS
				SELECT tb_post.pk_post, tb_post.id, tb_post.fk_user,
				       jsonb_build_object('title', tb_post.title, 'author', v_user.data) AS data
				FROM tb_post JOIN v_user ON v_user.pk_user = tb_post.fk_user;`)
		require.NoError(t, err)

		cat := catalog.New(rdb, "pgtviews")
		require.NoError(t, cat.Init(ctx))

		userViewOID := oidOf(t, ctx, conn, "v_user")
		require.NoError(t, cat.Upsert(ctx, catalog.Metadata{
			Entity: "user", ViewOID: userViewOID, TableOID: oidOf(t, ctx, conn, "tb_user"),
		}))

		postViewOID := oidOf(t, ctx, conn, "v_post")
		result, err := depgraph.Resolve(ctx, rdb, cat, postViewOID)
		require.NoError(t, err)

		assert.Contains(t, result.DirectViewEdges, "user")
		assert.Equal(t, userViewOID, result.DirectViewEdges["user"])
		assert.Contains(t, result.BaseTables, oidOf(t, ctx, conn, "tb_post"))
		assert.NotContains(t, result.BaseTables, userViewOID)
		assert.Empty(t, result.HelperViews)
	})
}

func TestResolveRecursesIntoUnownedHelperView(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		rdb := &db.RDB{DB: conn}

		_, err := conn.ExecContext(ctx, `
			CREATE TABLE tb_user (pk_user BIGINT PRIMARY KEY, id UUID NOT NULL, name TEXT NOT NULL, country TEXT NOT NULL);
			CREATE VIEW v_user_summary AS
				SELECT pk_user, name, country FROM tb_user;

			CREATE TABLE tb_post (pk_post BIGINT PRIMARY KEY, id UUID NOT NULL, fk_user BIGINT NOT NULL, title TEXT NOT NULL);
			CREATE VIEW v_post AS
				SELECT tb_post.pk_post, tb_post.id, tb_post.fk_user,
				       jsonb_build_object('title', tb_post.title, 'author_country', v_user_summary.country) AS data
				FROM tb_post JOIN v_user_summary ON v_user_summary.pk_user = tb_post.fk_user;`)
		require.NoError(t, err)

		cat := catalog.New(rdb, "pgtviews")
		require.NoError(t, cat.Init(ctx))

		postViewOID := oidOf(t, ctx, conn, "v_post")
		result, err := depgraph.Resolve(ctx, rdb, cat, postViewOID)
		require.NoError(t, err)

		helperViewOID := oidOf(t, ctx, conn, "v_user_summary")
		assert.Contains(t, result.HelperViews, helperViewOID)
		assert.Contains(t, result.BaseTables, oidOf(t, ctx, conn, "tb_user"))
		assert.Empty(t, result.DirectViewEdges)
	})
}

func TestAllDependencyOIDsUnionsBaseTablesAndViewEdges(t *testing.T) {
	r := depgraph.Result{
		BaseTables:      []int64{1, 2},
		DirectViewEdges: map[string]int64{"user": 200},
	}
	all := r.AllDependencyOIDs()
	assert.ElementsMatch(t, []int64{1, 2, 200}, all)
}
