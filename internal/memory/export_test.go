package memory

import "database/sql"

// DB exposes the internal *sql.DB for test helpers in memory_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetCommitHook replaces tx.Commit for every write transaction. A nil fn
// restores the default.
func (s *Store) SetCommitHook(fn func(tx *sql.Tx) error) {
	s.hooks.commit = fn
}

// SanitizeFTS exposes the FTS5 query builder.
var SanitizeFTS = sanitizeFTS
