// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"database/sql"
)

// FakeDB is a fake implementation of `DB`. It records every statement passed
// to ExecContext/QueryContext so that unit tests can assert on the shape and
// order of the SQL the builder/trigger/refresh packages generate, without a
// live Postgres connection.
type FakeDB struct {
	ExecLog  []string
	ExecArgs [][]interface{}

	// ExecFunc, when set, is called by ExecContext after the statement has
	// been recorded, and its result and error are returned in place of the
	// default no-op result. QueryContext and QueryRowContext never call it:
	// they record the statement and return nil.
	ExecFunc func(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (db *FakeDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	db.ExecLog = append(db.ExecLog, query)
	db.ExecArgs = append(db.ExecArgs, args)
	if db.ExecFunc != nil {
		return db.ExecFunc(ctx, query, args...)
	}
	return driverResult{}, nil
}

func (db *FakeDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	db.ExecLog = append(db.ExecLog, query)
	db.ExecArgs = append(db.ExecArgs, args)
	return nil, nil
}

func (db *FakeDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	db.ExecLog = append(db.ExecLog, query)
	db.ExecArgs = append(db.ExecArgs, args)
	return nil
}

func (db *FakeDB) WithRetryableTransaction(ctx context.Context, f func(context.Context, *sql.Tx) error) error {
	return f(ctx, nil)
}

func (db *FakeDB) Close() error {
	return nil
}

// driverResult is a no-op sql.Result for ExecContext calls that don't need a
// real one.
type driverResult struct{}

func (driverResult) LastInsertId() (int64, error) { return 0, nil }
func (driverResult) RowsAffected() (int64, error) { return 0, nil }
