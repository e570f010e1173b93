// SPDX-License-Identifier: Apache-2.0

package inspect

import "fmt"

// MissingPrimaryKeyError is a ConfigurationError (spec §4.2, §7): the SELECT's
// output list has no pk_<entity> column.
type MissingPrimaryKeyError struct {
	Entity string
}

func (e MissingPrimaryKeyError) Error() string {
	return fmt.Sprintf("projection %q: SELECT output has no pk_%s column", e.Entity, e.Entity)
}

// MissingIDColumnError is a ConfigurationError: the SELECT's output list has
// no `id` column.
type MissingIDColumnError struct {
	Entity string
}

func (e MissingIDColumnError) Error() string {
	return fmt.Sprintf("projection %q: SELECT output has no id column", e.Entity)
}

// MissingDataColumnError is a ConfigurationError: the SELECT's output list
// has no `data` column.
type MissingDataColumnError struct {
	Entity string
}

func (e MissingDataColumnError) Error() string {
	return fmt.Sprintf("projection %q: SELECT output has no data column", e.Entity)
}

// AmbiguousPrimaryKeyError is a ConfigurationError: more than one column
// matches the pk_<entity> pattern for entity.
type AmbiguousPrimaryKeyError struct {
	Entity  string
	Columns []string
}

func (e AmbiguousPrimaryKeyError) Error() string {
	return fmt.Sprintf("projection %q: ambiguous primary key, found columns %v", e.Entity, e.Columns)
}
