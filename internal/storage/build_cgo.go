//go:build sqlite_fts5
// +build sqlite_fts5

package storage

// This file is compiled when building with CGO and the sqlite_fts5 tag.
// It uses the C SQLite driver, which carries the reference FTS5
// implementation.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_fts5,fts5" ./...
//
// The CGO build provides:
//   - Reference SQLite FTS5 (porter + unicode61 tokenizers)
//   - Fastest query and insert path
//   - Requires a C compiler
//
// Driver used: github.com/mattn/go-sqlite3

import (
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

// connString appends the connection pragmas in this driver's DSN form.
// Pragmas ride on the DSN so every pooled connection gets them, not just
// the one that happened to run an Exec.
func connString(path string) string {
	if path == ":memory:" {
		return path
	}
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_cache_size", "-64000")
	q.Set("_foreign_keys", "on")
	return path + "?" + q.Encode()
}
