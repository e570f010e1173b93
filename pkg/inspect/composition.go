// SPDX-License-Identifier: Apache-2.0

package inspect

import (
	"regexp"
)

// nestedObjectPattern finds occurrences of `'<key>', v_<helper>.data` inside
// an object-builder call (spec §4.2: "pattern ... inside an object-builder
// → nested_object at path [<key>]"). It is intentionally a textual scan
// rather than a full AST walk of jsonb_build_object's argument list: the
// spec names the textual pattern directly, and the host's grammar for
// object-builder calls (jsonb_build_object, json_build_object, row_to_json
// wrapped in jsonb) is otherwise just a function call whose argument
// pairing this regex already captures unambiguously.
var nestedObjectPattern = regexp.MustCompile(
	`'([A-Za-z_][A-Za-z0-9_]*)'\s*,\s*v_([A-Za-z_][A-Za-z0-9_]*)\.data`)

// arrayAggWrapperPattern recognizes the nested-object pattern further wrapped
// by an aggregate-into-array builder (spec §4.2: "that pattern wrapped by an
// aggregate-into-array builder over a child view → array"). Postgres has
// several spellings for this (jsonb_agg, json_agg, array_agg composed with
// jsonb_build_object); all of them wrap the nested-object fragment inside a
// call whose name ends in "_agg".
var arrayAggWrapperPattern = regexp.MustCompile(`(?s)(\w*_agg)\s*\(\s*([^()]*\([^()]*\)[^()]*)\)`)

// classifyCompositions scans selectText for every occurrence of the
// nested-object pattern, determines whether each is further wrapped by an
// array aggregate, and returns the composition classification keyed by
// helper name (the v_<helper> in the pattern). Callers then match the
// helper name against the FK/array column whose referenced entity shares
// that name (see Infer).
func classifyCompositions(selectText string) map[string]Composition {
	out := map[string]Composition{}

	aggSpans := arrayAggWrapperPattern.FindAllStringIndex(selectText, -1)

	for _, m := range nestedObjectPattern.FindAllStringSubmatchIndex(selectText, -1) {
		key := selectText[m[2]:m[3]]
		helper := selectText[m[4]:m[5]]

		wrapped := false
		for _, span := range aggSpans {
			if m[0] >= span[0] && m[1] <= span[1] {
				wrapped = true
				break
			}
		}

		comp := Composition{Path: []string{key}}
		if wrapped {
			comp.Type = "array"
			comp.MatchKey = "id"
		} else {
			comp.Type = "nested_object"
		}

		// A helper referenced more than once keeps its most specific
		// classification (spec §4.8's array > nested_object > scalar rule
		// applies here too, ahead of any runtime dedup).
		if existing, ok := out[helper]; ok && existing.Type == "array" {
			continue
		}
		out[helper] = comp
	}

	return out
}
