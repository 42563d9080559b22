package validate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/teambeacon/orgdex/pkg/types"
)

// Querier is the query surface the validator needs. *sql.DB, *sql.Conn,
// and *sql.Tx all satisfy it, so checks can run inside a migration
// transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// identRE is the allow-list for schema object names interpolated into
// diagnostic queries. Object names cannot be parameter-bound, so anything
// outside this pattern is refused.
var identRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ftsContentRE pulls the content= option out of an fts5 declaration.
var ftsContentRE = regexp.MustCompile(`(?i)content\s*=\s*'([^']*)'`)

// ftsTable is one full-text table and its external content table, empty
// for contentless or self-contained declarations.
type ftsTable struct {
	Name    string
	Content string
}

// listFTS enumerates fts5 tables. The result set is drained before the
// caller issues further queries on the same connection.
func listFTS(ctx context.Context, q Querier) ([]ftsTable, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, COALESCE(sql, '') FROM sqlite_master
		 WHERE type = 'table' AND lower(COALESCE(sql, '')) LIKE '%using fts5%'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list full-text tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []ftsTable
	for rows.Next() {
		var name, ddl string
		if err := rows.Scan(&name, &ddl); err != nil {
			return nil, fmt.Errorf("failed to scan full-text table row: %w", err)
		}
		table := ftsTable{Name: name}
		if match := ftsContentRE.FindStringSubmatch(ddl); match != nil {
			table.Content = match[1]
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate full-text tables: %w", err)
	}
	return tables, nil
}

// CheckFTS verifies every full-text index: its own integrity-check command
// must pass, and for external-content tables the index row count must
// equal the content table's. A database with no full-text tables passes
// trivially. Desync reports wrap types.ErrIntegrity. The migration manager
// runs this before and after every script, inside the same transaction.
func CheckFTS(ctx context.Context, q Querier) error {
	tables, err := listFTS(ctx, q)
	if err != nil {
		return err
	}

	for _, table := range tables {
		if err := checkIdent(table.Name); err != nil {
			return err
		}
		probe := fmt.Sprintf("INSERT INTO %s(%s) VALUES('integrity-check')", table.Name, table.Name)
		if _, err := q.ExecContext(ctx, probe); err != nil {
			return fmt.Errorf("full-text index %s failed integrity check: %v: %w",
				table.Name, err, types.ErrIntegrity)
		}

		if table.Content == "" {
			continue
		}
		if err := checkIdent(table.Content); err != nil {
			return err
		}
		indexRows, contentRows, err := countPair(ctx, q, table.Name, table.Content)
		if err != nil {
			return err
		}
		if indexRows != contentRows {
			return fmt.Errorf("full-text index %s has %d rows, content table %s has %d: %w",
				table.Name, indexRows, table.Content, contentRows, types.ErrIntegrity)
		}
	}
	return nil
}

// countPair counts a full-text index and its content table. A full scan of
// an external-content fts5 table is answered from the content table, which
// would make the two counts agree no matter how desynced the index is, so
// the index side is counted from the docsize shadow table when present.
// Both names have already passed the identifier allow-list.
func countPair(ctx context.Context, q Querier, fts, content string) (int64, int64, error) {
	indexSide := fts
	docsize := fts + "_docsize"
	var found string
	err := q.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", docsize).Scan(&found)
	switch {
	case err == nil:
		indexSide = docsize
	case errors.Is(err, sql.ErrNoRows):
	default:
		return 0, 0, fmt.Errorf("failed to look up %s: %w", docsize, err)
	}

	var indexRows, contentRows int64
	if err := q.QueryRowContext(ctx, "SELECT count(*) FROM "+indexSide).Scan(&indexRows); err != nil {
		return 0, 0, fmt.Errorf("failed to count %s: %w", indexSide, err)
	}
	if err := q.QueryRowContext(ctx, "SELECT count(*) FROM "+content).Scan(&contentRows); err != nil {
		return 0, 0, fmt.Errorf("failed to count %s: %w", content, err)
	}
	return indexRows, contentRows, nil
}

func checkIdent(name string) error {
	if !identRE.MatchString(name) {
		return fmt.Errorf("unsafe schema object name %q: %w", name, types.ErrConfiguration)
	}
	return nil
}
