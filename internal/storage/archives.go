package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/teambeacon/orgdex/pkg/types"
)

// UpsertArchive records (or refreshes) the tracking row for one archive
// file, keyed by path.
func (s *Store) UpsertArchive(ctx context.Context, archive *Archive) error {
	if archive.Status == "" {
		archive.Status = "active"
	}
	if archive.IndexedAt.IsZero() {
		archive.IndexedAt = time.Now()
	}

	const query = `
		INSERT INTO archives (path, source, indexed_at, record_count, checksum, file_size, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			source = excluded.source,
			indexed_at = excluded.indexed_at,
			record_count = excluded.record_count,
			checksum = excluded.checksum,
			file_size = excluded.file_size,
			status = excluded.status
		RETURNING id
	`
	return s.withConn(ctx, func(conn *sql.Conn) error {
		err := conn.QueryRowContext(ctx, query,
			archive.Path, archive.Source.String(), archive.IndexedAt,
			archive.RecordCount, archive.Checksum, archive.FileSize,
			archive.Status,
		).Scan(&archive.ID)
		if err != nil {
			return fmt.Errorf("failed to upsert archive: %w", err)
		}
		return nil
	})
}

// GetArchive returns the tracking row for a path, or ErrNotFound.
func (s *Store) GetArchive(ctx context.Context, path string) (*Archive, error) {
	const query = `
		SELECT id, path, source, indexed_at, record_count,
		       COALESCE(checksum, ''), COALESCE(file_size, 0),
		       COALESCE(status, 'active')
		FROM archives
		WHERE path = ?
	`
	var archive Archive
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		return scanArchive(conn.QueryRowContext(ctx, query, path), &archive)
	})
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archive: %w", err)
	}
	return &archive, nil
}

// ListArchives returns every tracking row, ordered by path. The indexer
// rehydrates its change-detection cursor from this at startup.
func (s *Store) ListArchives(ctx context.Context) ([]*Archive, error) {
	const query = `
		SELECT id, path, source, indexed_at, record_count,
		       COALESCE(checksum, ''), COALESCE(file_size, 0),
		       COALESCE(status, 'active')
		FROM archives
		ORDER BY path
	`
	archives := make([]*Archive, 0)
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var archive Archive
			if err := scanArchive(rows, &archive); err != nil {
				return err
			}
			archives = append(archives, &archive)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	return archives, nil
}

// scanTarget lets scanArchive read from both *sql.Row and *sql.Rows.
type scanTarget interface {
	Scan(dest ...any) error
}

func scanArchive(row scanTarget, archive *Archive) error {
	var source string
	var indexedAt sql.NullTime
	if err := row.Scan(
		&archive.ID, &archive.Path, &source, &indexedAt,
		&archive.RecordCount, &archive.Checksum, &archive.FileSize,
		&archive.Status,
	); err != nil {
		return err
	}
	archive.Source = types.Source(source)
	if indexedAt.Valid {
		archive.IndexedAt = indexedAt.Time
	}
	return nil
}
