// SPDX-License-Identifier: Apache-2.0

package refresh

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fraiseql/pgtviews/pkg/db"
)

// IsolationError reports that the calling transaction's isolation level is
// weaker than repeatable read (spec §7's IsolationError). The refresh
// engine needs repeatable read or stronger so that the wholesale view
// re-read at §4.6 step 2 observes the same snapshot as the write that
// triggered it; under read committed a concurrent commit between the
// trigger firing and the drain's SELECT could silently compose a
// half-written sibling row into `data`.
type IsolationError struct {
	Level string
}

func (e IsolationError) Error() string {
	return fmt.Sprintf("pg_tview: transaction isolation %q is weaker than repeatable read", e.Level)
}

// CheckIsolation reports tx's isolation level and, in strict mode, returns
// IsolationError when it is weaker than repeatable read. In the default
// warn mode (strict=false) it never errors; the caller is expected to log
// the returned level itself and let the write proceed, matching spec §7's
// "Warning (default) or error (strict mode)".
func CheckIsolation(ctx context.Context, tx *sql.Tx, strict bool) (string, error) {
	level, err := db.TransactionIsolation(ctx, tx)
	if err != nil {
		return "", err
	}
	if strict && (level == "read committed" || level == "read uncommitted") {
		return level, IsolationError{Level: level}
	}
	return level, nil
}
