package types

import "time"

// SearchResult is one ranked hit from a full-text query.
type SearchResult struct {
	ID      int64
	Content string
	Source  Source
	Date    string
	// Metadata is the original record as stored, decoded from JSON.
	Metadata Record
	// RelevanceScore is the engine's native rank. Lower (more negative)
	// means more relevant; results arrive already sorted by it.
	RelevanceScore float64
}

// SearchRequest carries the optional filters for Store.Search.
type SearchRequest struct {
	Query  string
	Source Source // empty means all sources
	// DateFrom/DateTo bound an inclusive date range in DateLayout form.
	// Either side may be empty.
	DateFrom string
	DateTo   string
	Limit    int // 0 means the default of 100
}

// RecordError describes one record that failed during a batch insert.
// Collected as data so a bad record never aborts its batch.
type RecordError struct {
	Index   int    // position within the submitted batch
	Err     string // error text, kept as string for JSON round-trips
	Snippet string // truncated rendering of the offending record
}

// LineError describes one malformed line encountered while streaming an
// archive file.
type LineError struct {
	Line    int    // 1-based line number in the file
	Err     string
	Snippet string // truncated raw line
}

// IndexStats summarizes one batch-insert call.
type IndexStats struct {
	Indexed int
	Skipped int // records with no extractable content
	Errors  []RecordError
}

// ArchiveResult summarizes one file processed by the indexer.
type ArchiveResult struct {
	RunID   string
	Path    string
	Source  Source
	Records int
	Skipped int // records dropped for empty content
	Errors  []LineError

	Duration          time.Duration
	AvgRate           float64 // records per second
	PeakMemoryMB      float64
	ResumedFrom       int64 // byte offset the pass resumed at; 0 means a full pass
	SkippedUnchanged  bool  // checksum matched the previous pass; nothing read
	ManifestValidated bool  // directory mode only: manifest.json was present and used
}

// ErrorCount returns the number of per-line failures.
func (r *ArchiveResult) ErrorCount() int { return len(r.Errors) }

// DirectoryResult aggregates per-file results for a directory pass.
type DirectoryResult struct {
	RunID             string
	Dir               string
	Source            Source
	Files             []ArchiveResult
	Records           int
	Skipped           int
	Errors            int
	Duration          time.Duration
	ManifestValidated bool
}

// StoreStats is the snapshot returned by Store.Stats.
type StoreStats struct {
	TotalMessages int64
	TotalArchives int64
	// BySource maps each source kind to its message count.
	BySource map[string]int64

	// Cumulative process counters, reset when the store is reopened.
	ConnectionsCreated int64
	ConnectionsReused  int64
	QueriesExecuted    int64
	RecordsIndexed     int64
}
