// SPDX-License-Identifier: Apache-2.0

package inspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyCompositionsNestedObject(t *testing.T) {
	selectText := `
		SELECT
			pk_post,
			id,
			fk_user,
			jsonb_build_object(
				'title', title,
				'author', v_user.data
			) AS data
		FROM tb_post
		JOIN v_user ON v_user.pk_user = tb_post.fk_user`

	comps := classifyCompositions(selectText)
	require.Contains(t, comps, "user")
	assert.Equal(t, "nested_object", comps["user"].Type)
	assert.Equal(t, []string{"author"}, comps["user"].Path)
}

func TestClassifyCompositionsArray(t *testing.T) {
	selectText := `
		SELECT
			pk_user,
			id,
			jsonb_agg(
				jsonb_build_object('comments', v_comment.data)
			) AS data
		FROM tb_user
		JOIN v_comment ON v_comment.fk_user = tb_user.pk_user`

	comps := classifyCompositions(selectText)
	require.Contains(t, comps, "comment")
	assert.Equal(t, "array", comps["comment"].Type)
	assert.Equal(t, "id", comps["comment"].MatchKey)
}

func TestResolveCompositionsPairsFKByHelperName(t *testing.T) {
	r := Result{
		Entity:    "post",
		FKColumns: []string{"fk_user"},
	}
	byHelper := map[string]Composition{
		"user": {Type: "nested_object", Path: []string{"author"}},
	}

	resolved := resolveCompositions(r, byHelper)
	require.Contains(t, resolved, "user")
	assert.Equal(t, "nested_object", resolved["user"].Type)
	assert.Equal(t, []string{"author"}, resolved["user"].Path)
	assert.Equal(t, "fk_user", resolved["user"].Column)
}

func TestResolveCompositionsPairsSoleArrayColumn(t *testing.T) {
	r := Result{
		Entity:       "user",
		ArrayColumns: []string{"favorite_tag_ids"},
	}
	byHelper := map[string]Composition{
		"tag": {Type: "array", Path: []string{"tags"}, MatchKey: "id"},
	}

	resolved := resolveCompositions(r, byHelper)
	require.Contains(t, resolved, "tag")
	assert.Equal(t, "array", resolved["tag"].Type)
	assert.Equal(t, "favorite_tag_ids", resolved["tag"].Column)
}
