// SPDX-License-Identifier: Apache-2.0

// Package patch is the four surgical JSON-patch primitives spec §6 names:
// merge_shallow, merge_at_path, array_update_where and array_update_batch.
// The engine calls them by name and treats an optional, separately installed
// extension as authoritative when present; this package both renders the SQL
// fallback the engine installs for itself when no such extension exists, and
// exposes the same semantics as pure Go for analyze_select/offline use.
package patch

import "encoding/json"

// MergeShallow implements merge_shallow(doc, patch) -> doc: a root-level
// key-wise overwrite (spec §6). Mirrors the SQL fallback's `doc || patch`.
func MergeShallow(doc, patchDoc map[string]interface{}) map[string]interface{} {
	out := cloneMap(doc)
	for k, v := range patchDoc {
		out[k] = v
	}
	return out
}

// MergeAtPath implements merge_at_path(doc, patch, path) -> doc: when both
// doc's value at path and patchValue are objects, merges patchValue's keys
// into that value (as MergeShallow does); otherwise sets doc's value at path
// to patchValue. Intermediate objects are created as needed. Mirrors the SQL
// fallback in templates.go.
func MergeAtPath(doc map[string]interface{}, path []string, patchValue interface{}) map[string]interface{} {
	out := cloneMap(doc)
	if len(path) == 0 {
		if m, ok := patchValue.(map[string]interface{}); ok {
			return cloneMap(m)
		}
		return out
	}

	cursor := out
	for _, key := range path[:len(path)-1] {
		next, ok := cursor[key].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
		} else {
			next = cloneMap(next)
		}
		cursor[key] = next
		cursor = next
	}
	last := path[len(path)-1]
	if existing, ok := cursor[last].(map[string]interface{}); ok {
		if patchMap, ok := patchValue.(map[string]interface{}); ok {
			cursor[last] = MergeShallow(existing, patchMap)
			return out
		}
	}
	cursor[last] = patchValue
	return out
}

// ArrayUpdate is one element of an array_update_batch call: the value
// array_path's match_key must equal to select the element to patch, and the
// fragment to merge into it (or insert wholesale if no match exists).
type ArrayUpdate struct {
	MatchValue string
	Patch      map[string]interface{}
}

// ArrayUpdateWhere implements array_update_where(doc, array_path, match_key,
// match_value, patch) -> doc: merges patch into the element of the array at
// array_path whose match_key equals match_value, or appends patch as a new
// element if no match exists (spec §6).
func ArrayUpdateWhere(doc map[string]interface{}, arrayPath []string, matchKey, matchValue string, patchDoc map[string]interface{}) map[string]interface{} {
	return ArrayUpdateBatch(doc, arrayPath, matchKey, []ArrayUpdate{{MatchValue: matchValue, Patch: patchDoc}})
}

// ArrayUpdateBatch implements array_update_batch(doc, array_path, match_key,
// updates) -> doc: the batched form of ArrayUpdateWhere, applying the
// updates in order, each to the array the previous one produced (spec §6,
// and spec §4.7's "SHOULD
// use a batch patch primitive" guidance for ≥10 affected rows).
func ArrayUpdateBatch(doc map[string]interface{}, arrayPath []string, matchKey string, updates []ArrayUpdate) map[string]interface{} {
	arr := arrayAt(doc, arrayPath)

	for _, u := range updates {
		idx := -1
		for i, elem := range arr {
			m, ok := elem.(map[string]interface{})
			if !ok {
				continue
			}
			if stringValue(m[matchKey]) == u.MatchValue {
				idx = i
				break
			}
		}

		if idx >= 0 {
			existing, _ := arr[idx].(map[string]interface{})
			arr[idx] = MergeShallow(existing, u.Patch)
		} else {
			arr = append(arr, cloneMap(u.Patch))
		}
	}

	arrAny := make([]interface{}, len(arr))
	for i, e := range arr {
		arrAny[i] = e
	}
	return MergeAtPath(doc, arrayPath, arrAny)
}

func arrayAt(doc map[string]interface{}, path []string) []interface{} {
	var cursor interface{} = map[string]interface{}(doc)
	for _, key := range path {
		m, ok := cursor.(map[string]interface{})
		if !ok {
			return nil
		}
		cursor = m[key]
	}
	arr, _ := cursor.([]interface{})
	out := make([]interface{}, len(arr))
	copy(out, arr)
	return out
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return ""
	}
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
