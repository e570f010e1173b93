// SPDX-License-Identifier: Apache-2.0

package depgraph

import "sort"

// CheckAcyclic reports whether adding a node named `entity` with outgoing
// edges `newEdges` (its direct view-edges, i.e. the other projections its
// SELECT embeds) to the existing projection-dependency DAG `edges` would
// introduce a cycle (spec invariant I4, §7's acyclicity check on create).
// edges is keyed by entity name and lists each entity's direct view-edges.
func CheckAcyclic(edges map[string][]string, entity string, newEdges []string) error {
	candidate := make(map[string][]string, len(edges)+1)
	for k, v := range edges {
		candidate[k] = v
	}
	candidate[entity] = newEdges

	visiting := map[string]bool{}
	visited := map[string]bool{}
	var path []string

	var walk func(node string) error
	walk = func(node string) error {
		if visited[node] {
			return nil
		}
		if visiting[node] {
			return CycleError{Entity: entity, Cycle: append(append([]string{}, path...), node)}
		}
		visiting[node] = true
		path = append(path, node)
		for _, next := range candidate[node] {
			if err := walk(next); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		visiting[node] = false
		visited[node] = true
		return nil
	}

	return walk(entity)
}

// TopologicalOrder returns entities ordered so that every entity appears
// after every entity its direct view-edges point to (spec §4.7: "An
// implementation MAY sort by DAG topological order at the entity bucket
// level to reduce peak queue size; correctness does not depend on it"). The
// returned order is a valid drain order for C8; since it lists embedded
// entities before the entities that embed them, a drop order is its
// reverse. Callers that don't
// need it may ignore it per the spec's own "correctness does not depend on
// it" guarantee.
func TopologicalOrder(edges map[string][]string) []string {
	visited := map[string]bool{}
	var order []string

	nodes := make([]string, 0, len(edges))
	for node := range edges {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	var visit func(node string)
	visit = func(node string) {
		if visited[node] {
			return
		}
		visited[node] = true
		for _, next := range edges[node] {
			visit(next)
		}
		order = append(order, node)
	}

	for _, node := range nodes {
		visit(node)
	}
	return order
}
