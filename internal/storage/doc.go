// Package storage provides SQLite-based persistence and full-text retrieval
// for archived org activity.
//
// The storage layer manages:
//   - Indexed messages and their JSON metadata
//   - An FTS5 shadow index over message content
//   - Archive tracking rows for incremental reindexing
//   - A small key/value meta table (engine version stamp)
//
// # Database Schema
//
// Tables:
//   - messages: content, source, date, metadata, created_at
//   - messages_fts: FTS5 external-content index over messages.content
//   - archives: one row per ingested file (path unique, checksum, counts)
//   - meta: engine metadata
//
// messages_fts shadows only the content column, joined by rowid, with a
// porter unicode61 tokenizer. Triggers on messages keep the index in the
// same transaction as every mutation, so the two can never drift apart
// under normal operation. The bootstrap schema generation lives in PRAGMA
// user_version; file-based migrations (internal/migrate) layer on top.
//
// # Basic Usage
//
//	store, err := storage.Open(storage.Config{Path: "orgdex.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	stats, err := store.IndexRecords(ctx, records, types.SourceSlack, 0)
//	fmt.Printf("indexed %d, skipped %d, failed %d\n",
//	    stats.Indexed, stats.Skipped, len(stats.Errors))
//
//	results, err := store.Search(ctx, types.SearchRequest{
//	    Query:    "deploy",
//	    Source:   types.SourceSlack,
//	    DateFrom: "2025-01-01",
//	    Limit:    20,
//	})
//
// # Connection Pool
//
// Store runs every operation on a connection acquired from a small bespoke
// pool (default 3 parked, at most 6 open). Acquire prefers a parked
// connection that still answers a SELECT 1 probe, opens a new one while
// under the cap, and otherwise polls until the configured timeout before
// failing with types.ErrDatabaseUnavailable. This suits the intended
// workload: one search caller plus one background indexer, not a
// multi-tenant server.
//
// # Batch Insert
//
// IndexRecords works in transaction-sized chunks (default 10,000 records).
// Within a chunk, records with no extractable content are skipped and
// per-record failures are collected as data; the chunk transaction itself
// is retried with exponential backoff when SQLite reports lock contention,
// and a chunk that stays contended has all its records marked failed
// without aborting the rest of the call.
//
// # Search
//
// Queries join the FTS5 index back to messages, bind the query text as a
// parameter, order by FTS rank (lower is more relevant) with id as the tie
// break, and tolerate any input: empty strings and queries the tokenizer
// rejects return empty result sets.
//
// # Build Tags
//
// Two interchangeable drivers:
//
// CGO build (sqlite_fts5 tag), via github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_fts5,fts5" ./...
//
// Pure Go build (default), via modernc.org/sqlite:
//
//	CGO_ENABLED=0 go build ./...
//
// Both carry FTS5. Connection pragmas (WAL journaling, NORMAL synchronous,
// 64 MB page cache, foreign keys on) are applied through the DSN so every
// pooled connection gets them.
package storage
