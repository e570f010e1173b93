// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeShallowOverwritesOnlyTopLevelKeys(t *testing.T) {
	doc := map[string]interface{}{"name": "ada", "age": float64(30)}
	out := MergeShallow(doc, map[string]interface{}{"age": float64(31)})

	assert.Equal(t, "ada", out["name"])
	assert.Equal(t, float64(31), out["age"])
	assert.Equal(t, float64(30), doc["age"], "MergeShallow must not mutate its input")
}

func TestMergeAtPathCreatesIntermediateObjects(t *testing.T) {
	doc := map[string]interface{}{"title": "hello"}
	out := MergeAtPath(doc, []string{"author", "name"}, "ada")

	author, ok := out["author"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "ada", author["name"])
	assert.Equal(t, "hello", out["title"])
}

func TestMergeAtPathReplacesExistingValueAtPath(t *testing.T) {
	doc := map[string]interface{}{
		"author": map[string]interface{}{"name": "ada", "id": "1"},
	}
	out := MergeAtPath(doc, []string{"author"}, map[string]interface{}{"name": "grace", "id": "2"})

	author := out["author"].(map[string]interface{})
	assert.Equal(t, "grace", author["name"])
	assert.Equal(t, "2", author["id"])
}

func TestArrayUpdateWherePatchesMatchingElement(t *testing.T) {
	doc := map[string]interface{}{
		"comments": []interface{}{
			map[string]interface{}{"id": "1", "text": "first"},
			map[string]interface{}{"id": "2", "text": "second"},
		},
	}

	out := ArrayUpdateWhere(doc, []string{"comments"}, "id", "2",
		map[string]interface{}{"text": "edited"})

	comments := out["comments"].([]interface{})
	assert.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].(map[string]interface{})["text"])
	assert.Equal(t, "edited", comments[1].(map[string]interface{})["text"])
}

func TestArrayUpdateWhereAppendsWhenNoMatch(t *testing.T) {
	doc := map[string]interface{}{
		"comments": []interface{}{
			map[string]interface{}{"id": "1", "text": "first"},
		},
	}

	out := ArrayUpdateWhere(doc, []string{"comments"}, "id", "2",
		map[string]interface{}{"id": "2", "text": "second"})

	comments := out["comments"].([]interface{})
	assert.Len(t, comments, 2)
	assert.Equal(t, "second", comments[1].(map[string]interface{})["text"])
}

func TestArrayUpdateWhereCreatesArrayWhenAbsent(t *testing.T) {
	doc := map[string]interface{}{}

	out := ArrayUpdateWhere(doc, []string{"comments"}, "id", "1",
		map[string]interface{}{"id": "1", "text": "first"})

	comments := out["comments"].([]interface{})
	assert.Len(t, comments, 1)
}

func TestArrayUpdateBatchAppliesEveryUpdateInOrder(t *testing.T) {
	doc := map[string]interface{}{
		"comments": []interface{}{
			map[string]interface{}{"id": "1", "text": "first"},
			map[string]interface{}{"id": "2", "text": "second"},
		},
	}

	out := ArrayUpdateBatch(doc, []string{"comments"}, "id", []ArrayUpdate{
		{MatchValue: "1", Patch: map[string]interface{}{"text": "edited-1"}},
		{MatchValue: "2", Patch: map[string]interface{}{"text": "edited-2"}},
		{MatchValue: "3", Patch: map[string]interface{}{"id": "3", "text": "third"}},
	})

	comments := out["comments"].([]interface{})
	assert.Len(t, comments, 3)
	assert.Equal(t, "edited-1", comments[0].(map[string]interface{})["text"])
	assert.Equal(t, "edited-2", comments[1].(map[string]interface{})["text"])
	assert.Equal(t, "third", comments[2].(map[string]interface{})["text"])
}
