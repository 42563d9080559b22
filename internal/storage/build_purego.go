//go:build !sqlite_fts5
// +build !sqlite_fts5

package storage

// This file is compiled when building without the sqlite_fts5 tag. It uses
// a pure Go SQLite implementation, which bundles FTS5 with no C compiler
// required.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// The pure Go build provides:
//   - No C compiler required
//   - Cross-platform compilation
//   - Slightly slower inserts and queries
//   - The default for development and tests
//
// Driver used: modernc.org/sqlite

import (
	"net/url"

	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)

// connString appends the connection pragmas in this driver's DSN form.
// Pragmas ride on the DSN so every pooled connection gets them, not just
// the one that happened to run an Exec.
func connString(path string) string {
	if path == ":memory:" {
		return path
	}
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "cache_size(-64000)")
	q.Add("_pragma", "foreign_keys(1)")
	return path + "?" + q.Encode()
}
