package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teambeacon/orgdex/pkg/types"
)

// DefaultSearchLimit caps result sets when the caller doesn't.
const DefaultSearchLimit = 100

// Search runs a ranked full-text query with optional source and inclusive
// date-range filters. Empty and whitespace-only queries return no results;
// query text the tokenizer rejects returns no results rather than an error.
// The query string is always bound as a parameter, never concatenated.
func (s *Store) Search(ctx context.Context, req types.SearchRequest) ([]types.SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return []types.SearchResult{}, nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT m.id, m.content, m.source, m.date, m.metadata, rank
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		WHERE messages_fts MATCH ?
	`)
	args := []any{query}
	if req.Source != "" {
		sb.WriteString(" AND m.source = ?")
		args = append(args, req.Source.String())
	}
	if req.DateFrom != "" {
		sb.WriteString(" AND m.date >= ?")
		args = append(args, req.DateFrom)
	}
	if req.DateTo != "" {
		sb.WriteString(" AND m.date <= ?")
		args = append(args, req.DateTo)
	}
	// rank ties broken by id so identical queries always return the same
	// order.
	sb.WriteString(" ORDER BY rank, m.id LIMIT ?")
	args = append(args, limit)

	results := []types.SearchResult{}
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			if isFTSSyntaxError(err) {
				return nil
			}
			return fmt.Errorf("search failed: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var r types.SearchResult
			var source string
			var date, metadata sql.NullString
			if err := rows.Scan(&r.ID, &r.Content, &source, &date, &metadata, &r.RelevanceScore); err != nil {
				return fmt.Errorf("failed to scan search result: %w", err)
			}
			r.Source = types.Source(source)
			r.Date = date.String
			if metadata.Valid && metadata.String != "" {
				// A metadata blob that no longer parses shouldn't hide
				// the hit.
				var rec types.Record
				if err := json.Unmarshal([]byte(metadata.String), &rec); err == nil {
					r.Metadata = rec
				}
			}
			results = append(results, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	s.queries.Add(1)
	return results, nil
}

// isFTSSyntaxError matches the errors FTS5 raises for query text it cannot
// parse: unbalanced quotes, stray operators, unknown column filters.
func isFTSSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5: syntax error") ||
		strings.Contains(msg, "unknown special query") ||
		strings.Contains(msg, "unterminated string") ||
		strings.Contains(msg, "no such column")
}

// Stats reports table totals, the per-source breakdown, and the process
// counters.
func (s *Store) Stats(ctx context.Context) (*types.StoreStats, error) {
	st := &types.StoreStats{BySource: make(map[string]int64)}

	err := s.withConn(ctx, func(conn *sql.Conn) error {
		if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&st.TotalMessages); err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}
		if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM archives").Scan(&st.TotalArchives); err != nil {
			return fmt.Errorf("failed to count archives: %w", err)
		}

		rows, err := conn.QueryContext(ctx, "SELECT source, COUNT(*) FROM messages GROUP BY source")
		if err != nil {
			return fmt.Errorf("failed to read source breakdown: %w", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var source string
			var count int64
			if err := rows.Scan(&source, &count); err != nil {
				return fmt.Errorf("failed to scan source breakdown: %w", err)
			}
			st.BySource[source] = count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	st.ConnectionsCreated = s.pool.Created()
	st.ConnectionsReused = s.pool.Reused()
	st.QueriesExecuted = s.queries.Load()
	st.RecordsIndexed = s.indexed.Load()
	return st, nil
}
