package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/teambeacon/orgdex/pkg/types"
)

// DefaultBatchSize is the per-transaction chunk size for batch inserts.
const DefaultBatchSize = 10000

// snippetLen bounds the record rendering kept in error details.
const snippetLen = 120

// Config controls how a Store is opened.
type Config struct {
	// Path is the database file. ":memory:" is accepted for tests.
	Path string

	// PoolSize is the number of parked connections; up to twice this many
	// may be open at once. Defaults to 3.
	PoolSize int

	// AcquireTimeout bounds how long an operation waits for a connection.
	// Defaults to 5s.
	AcquireTimeout time.Duration

	// BatchSize is the default chunk size for IndexRecords. Defaults to
	// DefaultBatchSize.
	BatchSize int

	// Retry overrides the busy-retry backoff. Zero value means defaults.
	Retry RetryConfig
}

func (c *Config) setDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 3
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = DefaultRetryConfig()
	}
}

// Store is the storage engine: a single SQLite file with a full-text shadow
// index, fronted by a small connection pool.
type Store struct {
	cfg  Config
	db   *sql.DB
	pool *Pool

	queries atomic.Int64
	indexed atomic.Int64
}

// OpenDB opens the raw database with the build's driver and connection
// pragmas, without touching the schema. The migration manager and validator
// use it to operate on a file as-is.
func OpenDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty: %w", types.ErrConfiguration)
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", types.ErrConfiguration)
			}
		}
	}

	db, err := sql.Open(DriverName, connString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database at %s is not usable: %w", path, types.ErrConfiguration)
	}
	return db, nil
}

// Open opens (creating if needed) the store at cfg.Path, bootstraps the
// schema, and verifies the engine version stamp.
func Open(cfg Config) (*Store, error) {
	cfg.setDefaults()

	db, err := OpenDB(cfg.Path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2 * cfg.PoolSize)
	db.SetMaxIdleConns(cfg.PoolSize)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := checkEngineVersion(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	jww.DEBUG.Printf("storage: opened %s (driver=%s mode=%s pool=%d)",
		cfg.Path, DriverName, BuildMode, cfg.PoolSize)

	return &Store{
		cfg:  cfg,
		db:   db,
		pool: NewPool(db, cfg.PoolSize, cfg.AcquireTimeout),
	}, nil
}

// Close releases the pool and the underlying database.
func (s *Store) Close() error {
	_ = s.pool.Close()
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.cfg.Path }

// DB exposes the underlying handle for the migration manager and validator.
func (s *Store) DB() *sql.DB { return s.db }

// withConn runs fn with a pooled connection, releasing it on every path.
func (s *Store) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(conn)
	return fn(conn)
}

// batchOutcome accumulates one transaction attempt. Busy retries restart
// the whole chunk, so each attempt builds a fresh outcome.
type batchOutcome struct {
	indexed int
	skipped int
	errs    []types.RecordError
}

// IndexRecords inserts records in transaction-sized chunks. Records with no
// extractable content are skipped silently; per-record failures are
// collected without aborting their chunk; a chunk that stays lock-contended
// through every retry has all its records marked failed.
func (s *Store) IndexRecords(ctx context.Context, records []types.Record, source types.Source, batchSize int) (*types.IndexStats, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}

	stats := &types.IndexStats{}
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		var out batchOutcome
		err := s.withConn(ctx, func(conn *sql.Conn) error {
			var err error
			out, err = retryWithBackoff(ctx, s.cfg.Retry, isBusy, func() (batchOutcome, error) {
				return s.insertBatch(ctx, conn, chunk, start, source)
			})
			return err
		})
		if err != nil {
			if !isBusy(err) {
				return stats, err
			}
			// Lock contention survived every retry: the transaction
			// rolled back, so every record in this chunk failed.
			jww.WARN.Printf("storage: batch at offset %d gave up after retries: %v", start, err)
			for i, rec := range chunk {
				stats.Errors = append(stats.Errors, types.RecordError{
					Index:   start + i,
					Err:     err.Error(),
					Snippet: recordSnippet(rec),
				})
			}
			continue
		}

		stats.Indexed += out.indexed
		stats.Skipped += out.skipped
		stats.Errors = append(stats.Errors, out.errs...)
	}

	s.indexed.Add(int64(stats.Indexed))
	return stats, nil
}

// insertBatch runs one chunk in one transaction. A busy error anywhere
// abandons the attempt so the retry wrapper can rerun it from scratch;
// any other per-record failure is recorded and the loop continues.
func (s *Store) insertBatch(ctx context.Context, conn *sql.Conn, chunk []types.Record, base int, source types.Source) (batchOutcome, error) {
	var out batchOutcome

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return out, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertSQL = `
		INSERT INTO messages (content, source, date, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	for i, rec := range chunk {
		content := searchableContent(source, rec)
		if content == "" {
			out.skipped++
			continue
		}

		meta, err := json.Marshal(rec)
		if err != nil {
			out.errs = append(out.errs, types.RecordError{
				Index:   base + i,
				Err:     err.Error(),
				Snippet: recordSnippet(rec),
			})
			continue
		}

		if _, err := tx.ExecContext(ctx, insertSQL,
			content, source.String(), types.ExtractDate(rec), string(meta), now); err != nil {
			if isBusy(err) {
				return batchOutcome{}, err
			}
			out.errs = append(out.errs, types.RecordError{
				Index:   base + i,
				Err:     err.Error(),
				Snippet: recordSnippet(rec),
			})
		} else {
			out.indexed++
		}
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return batchOutcome{}, err
		}
		return batchOutcome{}, fmt.Errorf("failed to commit batch: %w", err)
	}
	return out, nil
}

// searchableContent resolves the text to index for one record. Known
// sources use their typed extraction; only unknown sources fall through to
// the permissive generic scan, so a slack record with nothing but a
// timestamp is dropped instead of indexing the timestamp.
func searchableContent(source types.Source, rec types.Record) string {
	if c := types.ExtractContent(source, rec); c != "" {
		return c
	}
	if source == types.SourceOther || !source.Valid() {
		return types.GenericContent(rec)
	}
	return ""
}

// recordSnippet renders a record for error details, truncated.
func recordSnippet(rec types.Record) string {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Sprintf("%v", rec)
	}
	if len(b) > snippetLen {
		return string(b[:snippetLen]) + "..."
	}
	return string(b)
}
