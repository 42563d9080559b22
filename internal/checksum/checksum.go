// Package checksum computes the content hashes used for incremental
// indexing and migration verification: streamed SHA-256 over archive files,
// and an ordered-row digest over every user table in the database.
package checksum

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// fileChunkSize is the read size for streamed file hashing.
const fileChunkSize = 8 * 1024

// identRE is the allow-list for table names interpolated into diagnostic
// queries. Names cannot be parameter-bound, so anything outside this
// pattern is refused outright.
var identRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Querier is the minimal query surface Database needs. Both *sql.DB and
// *sql.Tx satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// File returns the hex SHA-256 of a file's contents, read in fixed-size
// chunks so large archives never load fully into memory.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()
	return Reader(f)
}

// Reader returns the hex SHA-256 of everything read from r.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, fileChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("failed to hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Sum returns the hex SHA-256 of in-memory data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Database computes a digest of every user table's ordered row data. The
// named exclude tables (the migration ledger) are skipped, as are full-text
// virtual tables and their shadow tables, so the digest reflects only real
// content and compares stably before and after schema-only changes.
func Database(ctx context.Context, q Querier, exclude ...string) (string, error) {
	tables, err := contentTables(ctx, q, exclude)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, table := range tables {
		if !identRE.MatchString(table) {
			return "", fmt.Errorf("refusing to hash table with unsafe name %q", table)
		}
		if err := hashTable(ctx, q, h, table); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// contentTables lists user tables in name order, minus the excluded ledger
// tables and anything belonging to a full-text index.
func contentTables(ctx context.Context, q Querier, exclude []string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, COALESCE(sql, '') FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	type tableDef struct{ name, ddl string }
	var defs []tableDef
	for rows.Next() {
		var d tableDef
		if err := rows.Scan(&d.name, &d.ddl); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}

	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}
	var ftsPrefixes []string
	for _, d := range defs {
		if strings.Contains(strings.ToLower(d.ddl), "using fts") {
			skip[d.name] = true
			ftsPrefixes = append(ftsPrefixes, d.name+"_")
		}
	}

	var tables []string
	for _, d := range defs {
		if skip[d.name] || hasAnyPrefix(d.name, ftsPrefixes) {
			continue
		}
		tables = append(tables, d.name)
	}
	return tables, nil
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func hashTable(ctx context.Context, q Querier, h hash.Hash, table string) error {
	rows, err := q.QueryContext(ctx, "SELECT * FROM "+table+" ORDER BY rowid")
	if err != nil {
		// WITHOUT ROWID tables have no rowid column; fall back to
		// ordering by the first column.
		rows, err = q.QueryContext(ctx, "SELECT * FROM "+table+" ORDER BY 1")
		if err != nil {
			return fmt.Errorf("failed to read table %s: %w", table, err)
		}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	fmt.Fprintf(h, "table:%s\n", table)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row of %s: %w", table, err)
		}
		for _, v := range vals {
			writeValue(h, v)
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{'\n'})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate rows of %s: %w", table, err)
	}
	return nil
}

// writeValue renders one column value into the hash in a form that is
// stable for a given driver. Digests are only ever compared within a single
// process run, so cross-driver stability is not required.
func writeValue(h hash.Hash, v any) {
	switch t := v.(type) {
	case nil:
		h.Write([]byte("NULL"))
	case []byte:
		h.Write(t)
	case string:
		h.Write([]byte(t))
	case int64:
		h.Write([]byte(strconv.FormatInt(t, 10)))
	case float64:
		h.Write([]byte(strconv.FormatFloat(t, 'g', -1, 64)))
	case bool:
		h.Write([]byte(strconv.FormatBool(t)))
	case time.Time:
		h.Write([]byte(t.UTC().Format(time.RFC3339Nano)))
	default:
		fmt.Fprintf(h, "%v", t)
	}
}
