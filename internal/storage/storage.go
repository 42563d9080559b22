package storage

import (
	"context"
	"time"

	"github.com/teambeacon/orgdex/pkg/types"
)

// Storage defines the interface for persisting and querying archived
// messages. *Store is the only implementation; consumers take the
// interface so tests can substitute fakes.
type Storage interface {
	// IndexRecords inserts a batch of records under one source label.
	IndexRecords(ctx context.Context, records []types.Record, source types.Source, batchSize int) (*types.IndexStats, error)

	// Search runs a ranked full-text query.
	Search(ctx context.Context, req types.SearchRequest) ([]types.SearchResult, error)

	// Stats reports totals, the per-source breakdown, and process counters.
	Stats(ctx context.Context) (*types.StoreStats, error)

	// Archive tracking operations
	UpsertArchive(ctx context.Context, archive *Archive) error
	GetArchive(ctx context.Context, path string) (*Archive, error)
	ListArchives(ctx context.Context) ([]*Archive, error)

	Close() error
}

// Archive is the tracking row for one ingested source file.
type Archive struct {
	ID          int64
	Path        string
	Source      types.Source
	IndexedAt   time.Time
	RecordCount int
	Checksum    string
	FileSize    int64
	Status      string // active|stale
}
