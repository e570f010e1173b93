// SPDX-License-Identifier: Apache-2.0

package builder

import "fmt"

// NoBaseTablesWarning is not an error returned to the caller — Create still
// succeeds and registers the projection (spec §4.3: "zero base tables found
// → warn and register the projection; it is trivially correct and never
// refreshes"). Builder.Create constructs it for that case and discards it;
// it is not returned, and neither pkg/builder nor pkg/engine logs it.
type NoBaseTablesWarning struct {
	Entity string
}

func (w NoBaseTablesWarning) Error() string {
	return fmt.Sprintf("projection %q has zero transitive base tables; it will never refresh", w.Entity)
}
