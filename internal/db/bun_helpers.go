// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

// rawQuerier accepts either *bun.DB or *bun.Tx; both expose NewRaw
// returning a *bun.RawQuery.
type rawQuerier interface {
	NewRaw(query string, args ...interface{}) *bun.RawQuery
}

// ExecRaw executes a raw SQL statement on a Bun DB or transaction,
// returning the standard sql.Result.
func ExecRaw(ctx context.Context, q rawQuerier, query string, args ...interface{}) (sql.Result, error) {
	return q.NewRaw(query, args...).Exec(ctx)
}

// QueryRawInto runs a raw query and scans the result into dest.
func QueryRawInto(ctx context.Context, q rawQuerier, dest interface{}, query string, args ...interface{}) error {
	return q.NewRaw(query, args...).Scan(ctx, dest)
}
