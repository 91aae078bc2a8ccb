// Package store is the data access layer for sitesync: sync configurations,
// job records, knowledge entries and conflicts, all in one SQLite database.
//
// Every multi-row mutation goes through dbopen.RunTx. Timestamps are unix
// milliseconds.
package store

import (
	"context"
	"database/sql"
)

// Store wraps the sitesync database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
