// SPDX-License-Identifier: Apache-2.0

package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fraiseql/pgtviews/pkg/schema"
)

func TestRelationGetColumn(t *testing.T) {
	t.Parallel()

	r := &schema.Relation{
		Name: "tb_post",
		Kind: schema.KindTable,
		Columns: []schema.Column{
			{Name: "pk_post", Type: "int8", Position: 1},
			{Name: "title", Type: "text", Position: 2},
		},
	}

	col := r.GetColumn("title")
	if assert.NotNil(t, col) {
		assert.Equal(t, "text", col.Type)
		assert.Equal(t, 2, col.Position)
	}

	assert.Nil(t, r.GetColumn("missing"))
}

func TestIsHelperView(t *testing.T) {
	t.Parallel()

	table := &schema.Relation{Kind: schema.KindTable}
	view := &schema.Relation{Kind: schema.KindView}

	assert.False(t, table.IsHelperView())
	assert.True(t, view.IsHelperView())
}
