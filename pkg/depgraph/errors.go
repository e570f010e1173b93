// SPDX-License-Identifier: Apache-2.0

package depgraph

import "fmt"

// DepthExceededError is a ConfigurationError (spec §4.3, §7): the BFS walk
// from a projection's backing view passed the depth bound without bottoming
// out in plain tables.
type DepthExceededError struct {
	RootOID int64
	Bound   int
}

func (e DepthExceededError) Error() string {
	return fmt.Sprintf("dependency walk from relation %d exceeded depth bound %d", e.RootOID, e.Bound)
}

// CycleError is a ConfigurationError: the projection-dependency DAG would
// gain a cycle (spec invariant I4, §7 "Acyclicity").
type CycleError struct {
	Entity string
	Cycle  []string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("creating %q would introduce a cycle in the projection-dependency DAG: %v", e.Entity, e.Cycle)
}
