package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/sync/errgroup"

	"github.com/teambeacon/orgdex/internal/checksum"
	"github.com/teambeacon/orgdex/internal/storage"
	"github.com/teambeacon/orgdex/pkg/types"
)

// DefaultBatchSize is the number of parsed records accumulated before a
// batch is handed to storage.
const DefaultBatchSize = 10000

// Indexer turns newline-delimited JSON archive files into batched
// storage inserts, incrementally and without ever loading a whole file.
type Indexer struct {
	storage storage.Storage
	cursor  *cursor

	// checksumWorkers bounds the concurrent fingerprint pass in
	// directory mode.
	checksumWorkers int
}

// Config contains configuration for one indexing pass.
type Config struct {
	BatchSize int          // records per storage batch (default DefaultBatchSize)
	Progress  ProgressFunc // optional periodic progress callback
	Force     bool         // reprocess fully even when fingerprints match
}

func withDefaults(config *Config) *Config {
	out := Config{}
	if config != nil {
		out = *config
	}
	if out.BatchSize <= 0 {
		out.BatchSize = DefaultBatchSize
	}
	return &out
}

// New creates an Indexer bound to store. The change-detection cursor is
// rehydrated from the archives table, so an unchanged file is skipped
// even on the first pass after a process restart.
func New(ctx context.Context, store storage.Storage) (*Indexer, error) {
	idx := &Indexer{
		storage:         store,
		cursor:          newCursor(),
		checksumWorkers: runtime.NumCPU(),
	}
	if err := idx.cursor.hydrate(ctx, store); err != nil {
		return nil, fmt.Errorf("failed to hydrate archive cursor: %w", err)
	}
	return idx, nil
}

// ProcessArchive indexes one archive file under the given source label.
// Malformed lines and per-record failures are collected in the result;
// only I/O and storage failures abort the pass.
//
// An unchanged file (same content checksum as the last pass) is skipped
// outright. A file that merely grew since the last pass, with its old
// bytes intact, is resumed at the old end so only the appended records
// are indexed. A file rewritten in place is reprocessed from the start
// and its archive row is marked stale, because rows from the earlier
// pass are still in the database.
func (idx *Indexer) ProcessArchive(ctx context.Context, path string, source types.Source, config *Config) (*types.ArchiveResult, error) {
	config = withDefaults(config)

	sum, size, err := checksumFile(path)
	if err != nil {
		return nil, err
	}
	return idx.processFile(ctx, path, source, config, sum, size)
}

// processFile runs one indexing pass with a precomputed fingerprint.
func (idx *Indexer) processFile(ctx context.Context, path string, source types.Source, config *Config, sum string, size int64) (*types.ArchiveResult, error) {
	start := time.Now()
	result := &types.ArchiveResult{
		RunID:  uuid.NewString(),
		Path:   path,
		Source: source,
	}

	prev, seen := idx.cursor.lookup(path)
	if !config.Force && seen && prev.checksum == sum {
		result.SkippedUnchanged = true
		result.Duration = time.Since(start)
		jww.DEBUG.Printf("archive: %s unchanged, skipping", path)
		return result, nil
	}

	var offset int64
	var baseLine int
	if !config.Force && seen {
		var err error
		offset, baseLine, err = resumePoint(path, size, prev)
		if err != nil {
			return nil, err
		}
	}
	result.ResumedFrom = offset

	status := "active"
	if seen && offset == 0 {
		// The previous pass's rows are still present and this pass
		// re-reads the same lines.
		status = "stale"
		jww.WARN.Printf("archive: %s changed in place, reprocessing from the start", path)
	}

	mem := newMemSampler()
	mem.sample()

	if err := idx.streamFile(ctx, path, source, config, result, mem, offset, baseLine); err != nil {
		return nil, err
	}

	records := result.Records
	if offset > 0 {
		records += prev.records
	}
	now := time.Now().UTC()
	if err := idx.storage.UpsertArchive(ctx, &storage.Archive{
		Path:        path,
		Source:      source,
		IndexedAt:   now,
		RecordCount: records,
		Checksum:    sum,
		FileSize:    size,
		Status:      status,
	}); err != nil {
		return nil, fmt.Errorf("failed to record archive %s: %w", path, err)
	}
	idx.cursor.update(path, sum, size, records, now)

	mem.sample()
	result.Duration = time.Since(start)
	if secs := result.Duration.Seconds(); secs > 0 {
		result.AvgRate = float64(result.Records) / secs
	}
	result.PeakMemoryMB = mem.peak()

	jww.INFO.Printf("archive: indexed %s source=%s records=%d skipped=%d errors=%d in %v",
		path, source, result.Records, result.Skipped, len(result.Errors),
		result.Duration.Round(time.Millisecond))
	return result, nil
}

// resumePoint decides how much of a changed file can be skipped. A file
// that grew, whose first prev.size bytes still hash to the recorded
// checksum, resumes at that byte offset with line numbering continuing
// where the previous pass stopped. Anything else reprocesses fully.
func resumePoint(path string, size int64, prev cursorEntry) (int64, int, error) {
	if prev.size <= 0 || size <= prev.size || prev.checksum == "" {
		return 0, 0, nil
	}
	sum, lines, err := prefixDigest(path, prev.size)
	if err != nil {
		return 0, 0, err
	}
	if sum != prev.checksum {
		return 0, 0, nil
	}
	return prev.size, lines, nil
}

// streamFile drives the batch loop for one file.
func (idx *Indexer) streamFile(ctx context.Context, path string, source types.Source, config *Config, result *types.ArchiveResult, mem *memSampler, offset int64, baseLine int) error {
	ar, err := openArchive(path, offset)
	if err != nil {
		return err
	}
	defer func() { _ = ar.Close() }()

	tracker := newProgressTracker(config.Progress)
	br := newBatchReader(ar.r, config.BatchSize, baseLine)
	var total int64
	for {
		batch, err := br.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		result.Errors = append(result.Errors, batch.errs...)
		total += int64(len(batch.records) + len(batch.errs))

		if len(batch.records) > 0 {
			stats, err := idx.storage.IndexRecords(ctx, batch.records, source, config.BatchSize)
			if err != nil {
				return fmt.Errorf("failed to index batch from %s: %w", path, err)
			}
			result.Records += stats.Indexed
			result.Skipped += stats.Skipped
			for _, re := range stats.Errors {
				line := 0
				if re.Index >= 0 && re.Index < len(batch.lines) {
					line = batch.lines[re.Index]
				}
				result.Errors = append(result.Errors, types.LineError{
					Line:    line,
					Err:     re.Err,
					Snippet: re.Snippet,
				})
			}
		}

		mem.sample()
		tracker.observe(int64(result.Records), total)
	}
	return nil
}

// ProcessArchiveDirectory indexes every archive file under dir. A
// manifest.json supplies the source and optionally the file list;
// without one, *.jsonl files are discovered and each file's source is
// inferred from its name. Fingerprints are computed concurrently up
// front; the indexing pass itself stays serial so batches from
// different files never interleave.
func (idx *Indexer) ProcessArchiveDirectory(ctx context.Context, dir string, config *Config) (*types.DirectoryResult, error) {
	config = withDefaults(config)
	start := time.Now()

	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	files, err := discoverFiles(dir, m)
	if err != nil {
		return nil, err
	}

	result := &types.DirectoryResult{
		RunID: uuid.NewString(),
		Dir:   dir,
	}
	if m != nil {
		result.Source = m.Source
	}

	digests, err := idx.checksumAll(ctx, files)
	if err != nil {
		return nil, err
	}

	countsOK := true
	for _, path := range files {
		source := types.SourceFromPath(path)
		if m != nil {
			source = m.Source
		}

		digest := digests[path]
		fr, err := idx.processFile(ctx, path, source, config, digest.sum, digest.size)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			jww.ERROR.Printf("archive: failed to process %s: %v", path, err)
			result.Files = append(result.Files, types.ArchiveResult{
				Path:   path,
				Source: source,
				Errors: []types.LineError{{Err: err.Error()}},
			})
			result.Errors++
			continue
		}
		fr.ManifestValidated = m != nil

		if m != nil && !fr.SkippedUnchanged {
			if want, ok := m.Counts[filepath.Base(path)]; ok && want != fr.Records {
				jww.WARN.Printf("archive: %s manifest declares %d records, indexed %d", path, want, fr.Records)
				countsOK = false
			}
		}

		result.Files = append(result.Files, *fr)
		result.Records += fr.Records
		result.Skipped += fr.Skipped
		result.Errors += len(fr.Errors)
	}

	result.Duration = time.Since(start)
	result.ManifestValidated = m != nil && countsOK
	return result, nil
}

// fileDigest is one precomputed fingerprint from the concurrent pass.
type fileDigest struct {
	sum  string
	size int64
}

// checksumAll fingerprints every candidate file concurrently, bounded
// by checksumWorkers.
func (idx *Indexer) checksumAll(ctx context.Context, files []string) (map[string]fileDigest, error) {
	var mu sync.Mutex
	digests := make(map[string]fileDigest, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.checksumWorkers)
	for _, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sum, size, err := checksumFile(path)
			if err != nil {
				return err
			}
			mu.Lock()
			digests[path] = fileDigest{sum: sum, size: size}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return digests, nil
}

// checksumFile returns the streamed content hash and size of path.
func checksumFile(path string) (string, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat archive: %w", err)
	}
	sum, err := checksum.File(path)
	if err != nil {
		return "", 0, err
	}
	return sum, info.Size(), nil
}
