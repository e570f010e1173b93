// SPDX-License-Identifier: Apache-2.0

package builder_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraiseql/pgtviews/internal/testutils"
	"github.com/fraiseql/pgtviews/pkg/builder"
	"github.com/fraiseql/pgtviews/pkg/catalog"
	"github.com/fraiseql/pgtviews/pkg/db"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func TestCreatePopulatesMaterializedTableAndInstallsTrigger(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		rdb := &db.RDB{DB: conn}

		_, err := conn.ExecContext(ctx, `
			CREATE TABLE tb_user (pk_user BIGINT PRIMARY KEY, id UUID NOT NULL, name TEXT NOT NULL);
			INSERT INTO tb_user VALUES (1, '11111111-1111-1111-1111-111111111111', 'ada');`)
		require.NoError(t, err)

		cat := catalog.New(rdb, "pgtviews")
		require.NoError(t, cat.Init(ctx))

		b := builder.New(rdb, cat)
		selectText := `SELECT pk_user, id, jsonb_build_object('name', name) AS data FROM tb_user`
		require.NoError(t, b.Create(ctx, "user", selectText, map[string][]string{}))

		var count int
		require.NoError(t, conn.QueryRowContext(ctx, `SELECT count(*) FROM tv_user`).Scan(&count))
		assert.Equal(t, 1, count)

		var data string
		require.NoError(t, conn.QueryRowContext(ctx, `SELECT data->>'name' FROM tv_user WHERE pk_user = 1`).Scan(&data))
		assert.Equal(t, "ada", data)

		m, err := cat.Load(ctx, "user")
		require.NoError(t, err)
		assert.Len(t, m.BaseTableOIDs, 1)

		var triggerCount int
		require.NoError(t, conn.QueryRowContext(ctx,
			`SELECT count(*) FROM pg_trigger WHERE tgrelid = 'tb_user'::regclass AND NOT tgisinternal`).Scan(&triggerCount))
		assert.Equal(t, 1, triggerCount)
	})
}

func TestDropRemovesViewTableTriggerAndMetadata(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		rdb := &db.RDB{DB: conn}

		_, err := conn.ExecContext(ctx, `CREATE TABLE tb_widget (pk_widget BIGINT PRIMARY KEY, id UUID NOT NULL, name TEXT NOT NULL);`)
		require.NoError(t, err)

		cat := catalog.New(rdb, "pgtviews")
		require.NoError(t, cat.Init(ctx))

		b := builder.New(rdb, cat)
		selectText := `SELECT pk_widget, id, jsonb_build_object('name', name) AS data FROM tb_widget`
		require.NoError(t, b.Create(ctx, "widget", selectText, map[string][]string{}))

		require.NoError(t, b.Drop(ctx, "widget", false))

		var relCount int
		require.NoError(t, conn.QueryRowContext(ctx,
			`SELECT count(*) FROM pg_class WHERE relname IN ('tv_widget', 'v_widget')`).Scan(&relCount))
		assert.Equal(t, 0, relCount)

		var triggerCount int
		require.NoError(t, conn.QueryRowContext(ctx,
			`SELECT count(*) FROM pg_trigger WHERE tgrelid = 'tb_widget'::regclass AND NOT tgisinternal`).Scan(&triggerCount))
		assert.Equal(t, 0, triggerCount)

		_, err = cat.Load(ctx, "widget")
		assert.ErrorIs(t, err, catalog.ErrMetadataNotFound)
	})
}

func TestDropWithIfExistsIsNoOpWhenEntityMissing(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		rdb := &db.RDB{DB: conn}

		cat := catalog.New(rdb, "pgtviews")
		require.NoError(t, cat.Init(ctx))

		b := builder.New(rdb, cat)
		assert.NoError(t, b.Drop(ctx, "nonexistent", true))
		assert.Error(t, b.Drop(ctx, "nonexistent", false))
	})
}

func TestCreateRejectsProjectionThatWouldIntroduceACycle(t *testing.T) {
	t.Parallel()

	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		rdb := &db.RDB{DB: conn}

		_, err := conn.ExecContext(ctx, `CREATE TABLE tb_leaf (pk_leaf BIGINT PRIMARY KEY, id UUID NOT NULL, name TEXT NOT NULL);`)
		require.NoError(t, err)

		cat := catalog.New(rdb, "pgtviews")
		require.NoError(t, cat.Init(ctx))

		b := builder.New(rdb, cat)
		require.NoError(t, b.Create(ctx, "leaf",
			`SELECT pk_leaf, id, jsonb_build_object('name', name) AS data FROM tb_leaf`,
			map[string][]string{}))

		edges := map[string][]string{"leaf": {"root"}}
		err = b.Create(ctx, "root",
			`SELECT pk_leaf AS pk_root, id, jsonb_build_object('leaf', v_leaf.data) AS data FROM v_leaf`,
			edges)
		assert.Error(t, err)
	})
}
