// Package archive turns exported activity archives into searchable
// records.
//
// An archive is a newline-delimited JSON file, one record per line,
// optionally gzip or zstd compressed. The Indexer streams each file in
// bounded batches and hands the parsed records to the storage layer, so
// memory stays flat regardless of file size.
//
// # Incremental Indexing
//
// Files are fingerprinted with a streamed SHA-256 before any line is
// read. The fingerprint of every indexed path is persisted in the
// archives table and rehydrated when an Indexer is constructed, so an
// unchanged file is skipped even across process restarts:
//
//	idx, _ := archive.New(ctx, store)
//	res, _ := idx.ProcessArchive(ctx, "slack-2025-06.jsonl", types.SourceSlack, nil)
//	if res.SkippedUnchanged {
//	    // nothing read, nothing written
//	}
//
// Exports are append-only in practice, and the indexer exploits that: a
// file that grew with its old bytes intact resumes at the previous end
// of file, indexing only the appended records. A file rewritten in
// place is reprocessed from the start and its tracking row is marked
// stale, since rows from the earlier pass remain in the database.
//
// # Directory Mode
//
// ProcessArchiveDirectory indexes a whole export directory. When the
// directory carries a manifest.json, its declared source and file list
// are trusted; otherwise *.jsonl files are discovered and each file's
// source is inferred from its name. Fingerprints are computed
// concurrently up front; the indexing pass itself is serial.
//
// # Error Handling
//
// A malformed line never aborts a file: it is collected as a
// types.LineError carrying its line number and a snippet. Only I/O and
// storage failures end a pass early.
package archive
