// SPDX-License-Identifier: Apache-2.0

package catalog

import "fmt"

// EntityAlreadyExistsError is a ConfigurationError (spec §7): create was
// called for an entity that already has a metadata row.
type EntityAlreadyExistsError struct {
	Entity string
}

func (e EntityAlreadyExistsError) Error() string {
	return fmt.Sprintf("entity %q already exists", e.Entity)
}

// EntityDoesNotExistError is a ConfigurationError (spec §7): drop was called
// with if_exists=false for an entity that has no metadata row.
type EntityDoesNotExistError struct {
	Entity string
}

func (e EntityDoesNotExistError) Error() string {
	return fmt.Sprintf("entity %q does not exist", e.Entity)
}
