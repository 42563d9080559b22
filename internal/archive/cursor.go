package archive

import (
	"context"
	"sync"
	"time"

	"github.com/teambeacon/orgdex/internal/storage"
)

// cursorEntry is the change-detection state for one archive path.
type cursorEntry struct {
	checksum  string
	indexedAt time.Time
	size      int64
	records   int
}

// cursor maps archive paths to the fingerprint they were last indexed
// with. It is hydrated from the archives table at construction, so
// change detection survives process restarts instead of living only in
// memory.
type cursor struct {
	mu      sync.RWMutex
	entries map[string]cursorEntry
}

func newCursor() *cursor {
	return &cursor{entries: make(map[string]cursorEntry)}
}

// hydrate loads the persisted archive rows into the in-memory map.
func (c *cursor) hydrate(ctx context.Context, store storage.Storage) error {
	archives, err := store.ListArchives(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range archives {
		c.entries[a.Path] = cursorEntry{
			checksum:  a.Checksum,
			indexedAt: a.IndexedAt,
			size:      a.FileSize,
			records:   a.RecordCount,
		}
	}
	return nil
}

// lookup returns the recorded state for path, if any.
func (c *cursor) lookup(path string) (cursorEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[path]
	return entry, ok
}

// update records a completed pass over path.
func (c *cursor) update(path, sum string, size int64, records int, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = cursorEntry{checksum: sum, indexedAt: at, size: size, records: records}
}
