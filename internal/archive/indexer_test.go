package archive

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teambeacon/orgdex/internal/storage"
	"github.com/teambeacon/orgdex/pkg/types"
)

// recordingStorage is a Storage fake capturing the shape of every batch
// the indexer hands over.
type recordingStorage struct {
	mu       sync.Mutex
	batches  [][]types.Record
	archives map[string]*storage.Archive

	// recordErr, when set, is reported once per batch so tests can
	// exercise the line-number mapping for record-level failures.
	recordErr *types.RecordError
}

func newRecordingStorage() *recordingStorage {
	return &recordingStorage{archives: make(map[string]*storage.Archive)}
}

func (r *recordingStorage) IndexRecords(_ context.Context, records []types.Record, _ types.Source, _ int) (*types.IndexStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make([]types.Record, len(records))
	copy(batch, records)
	r.batches = append(r.batches, batch)

	stats := &types.IndexStats{Indexed: len(records)}
	if r.recordErr != nil && r.recordErr.Index < len(records) {
		stats.Indexed--
		stats.Errors = append(stats.Errors, *r.recordErr)
	}
	return stats, nil
}

func (r *recordingStorage) Search(context.Context, types.SearchRequest) ([]types.SearchResult, error) {
	return nil, nil
}

func (r *recordingStorage) Stats(context.Context) (*types.StoreStats, error) {
	return &types.StoreStats{}, nil
}

func (r *recordingStorage) UpsertArchive(_ context.Context, a *storage.Archive) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.archives[a.Path] = &cp
	return nil
}

func (r *recordingStorage) GetArchive(_ context.Context, path string) (*storage.Archive, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.archives[path]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *recordingStorage) ListArchives(context.Context) ([]*storage.Archive, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*storage.Archive, 0, len(r.archives))
	for _, a := range r.archives {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *recordingStorage) Close() error { return nil }

func (r *recordingStorage) batchSizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	sizes := make([]int, len(r.batches))
	for i, b := range r.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func setupTestStore(t *testing.T) *storage.Store {
	t.Helper()

	store, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "archive_test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func setupTestIndexer(t *testing.T) (*Indexer, *storage.Store) {
	t.Helper()

	store := setupTestStore(t)
	idx, err := New(context.Background(), store)
	require.NoError(t, err)
	return idx, store
}

func slackLine(text string) string {
	return fmt.Sprintf(`{"text":%q,"user":"U100","channel":"ops","ts":"1722470400.000100"}`, text)
}

func writeArchive(t *testing.T, dir, name string, lines []string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func appendLines(t *testing.T, path string, lines []string) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(strings.Join(lines, "\n") + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func writeGzipArchive(t *testing.T, dir, name string, lines []string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

// appendGzipMember appends a second gzip member, the way exporters
// extend a compressed archive without rewriting it.
func appendGzipMember(t *testing.T, path string, lines []string) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func writeZstdArchive(t *testing.T, dir, name string, lines []string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func countMessages(t *testing.T, store *storage.Store) int {
	t.Helper()

	var n int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM messages").Scan(&n))
	return n
}

func TestProcessArchive(t *testing.T) {
	idx, store := setupTestIndexer(t)
	ctx := context.Background()

	path := writeArchive(t, t.TempDir(), "slack-standup.jsonl", []string{
		slackLine("team meeting"),
		slackLine("project deadline"),
		slackLine("birthday party"),
	})

	res, err := idx.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, path, res.Path)
	assert.Equal(t, types.SourceSlack, res.Source)
	assert.Equal(t, 3, res.Records)
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.ErrorCount())
	assert.Greater(t, res.Duration, time.Duration(0))
	assert.Greater(t, res.AvgRate, 0.0)
	assert.Greater(t, res.PeakMemoryMB, 0.0)
	assert.False(t, res.SkippedUnchanged)

	hits, err := store.Search(ctx, types.SearchRequest{Query: "meeting"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Content, "team meeting")

	arch, err := store.GetArchive(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 3, arch.RecordCount)
	assert.Equal(t, types.SourceSlack, arch.Source)
	assert.NotEmpty(t, arch.Checksum)
	assert.Greater(t, arch.FileSize, int64(0))
	assert.Equal(t, "active", arch.Status)
}

func TestProcessArchive_SkipsUnchanged(t *testing.T) {
	idx, store := setupTestIndexer(t)
	ctx := context.Background()

	path := writeArchive(t, t.TempDir(), "slack-a.jsonl", []string{
		slackLine("team meeting"),
		slackLine("project deadline"),
	})

	first, err := idx.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)
	require.Equal(t, 2, first.Records)

	second, err := idx.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)
	assert.True(t, second.SkippedUnchanged)
	assert.Zero(t, second.Records)

	assert.Equal(t, 2, countMessages(t, store))
}

// TestProcessArchive_ResumesAppendedFile covers the growth path: only
// the appended records are indexed and the tracking row accumulates.
func TestProcessArchive_ResumesAppendedFile(t *testing.T) {
	idx, store := setupTestIndexer(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := writeArchive(t, dir, "slack-june.jsonl", []string{
		slackLine("deploy started"),
		slackLine("deploy finished"),
		slackLine("rollback planned"),
	})

	first, err := idx.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)
	require.Equal(t, 3, first.Records)
	assert.Zero(t, first.ResumedFrom)

	appendLines(t, path, []string{
		slackLine("postmortem drafted"),
		slackLine("incident closed"),
	})

	second, err := idx.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)
	assert.False(t, second.SkippedUnchanged)
	assert.Equal(t, 2, second.Records, "only appended records should be indexed")
	assert.Greater(t, second.ResumedFrom, int64(0))

	assert.Equal(t, 5, countMessages(t, store))

	arch, err := store.GetArchive(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 5, arch.RecordCount)
	assert.Equal(t, "active", arch.Status)
}

func TestProcessArchive_RewrittenFileMarksStale(t *testing.T) {
	idx, store := setupTestIndexer(t)
	ctx := context.Background()

	path := writeArchive(t, t.TempDir(), "slack-log.jsonl", []string{slackLine("first version")})

	_, err := idx.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)

	rewritten := slackLine("second version") + "\n" + slackLine("third line") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(rewritten), 0644))

	res, err := idx.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)
	assert.Zero(t, res.ResumedFrom)
	assert.Equal(t, 2, res.Records)

	arch, err := store.GetArchive(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "stale", arch.Status)
	assert.Equal(t, 2, arch.RecordCount)

	// Rows from the first pass are still present; the rewrite cannot
	// retract them.
	assert.Equal(t, 3, countMessages(t, store))
}

func TestProcessArchive_ForceReprocessesUnchanged(t *testing.T) {
	idx, store := setupTestIndexer(t)
	ctx := context.Background()

	path := writeArchive(t, t.TempDir(), "slack-a.jsonl", []string{slackLine("team meeting")})

	_, err := idx.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)

	res, err := idx.ProcessArchive(ctx, path, types.SourceSlack, &Config{Force: true})
	require.NoError(t, err)
	assert.False(t, res.SkippedUnchanged)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, 2, countMessages(t, store))

	// The forced pass re-read lines whose rows are still present.
	arch, err := store.GetArchive(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "stale", arch.Status)
}

// TestProcessArchive_MalformedLines feeds a file where every 5th line
// is invalid JSON and checks per-line error reporting.
func TestProcessArchive_MalformedLines(t *testing.T) {
	idx, _ := setupTestIndexer(t)
	ctx := context.Background()

	var lines []string
	for i := 1; i <= 20; i++ {
		if i%5 == 0 {
			lines = append(lines, "{not json")
		} else {
			lines = append(lines, slackLine(fmt.Sprintf("message %d", i)))
		}
	}
	path := writeArchive(t, t.TempDir(), "slack-messy.jsonl", lines)

	res, err := idx.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)

	assert.Equal(t, 16, res.Records)
	require.Equal(t, 4, res.ErrorCount())

	var badLines []int
	for _, le := range res.Errors {
		badLines = append(badLines, le.Line)
		assert.NotEmpty(t, le.Err)
		assert.NotEmpty(t, le.Snippet)
	}
	assert.Equal(t, []int{5, 10, 15, 20}, badLines)
}

func TestProcessArchive_DropsRecordsWithNoContent(t *testing.T) {
	idx, store := setupTestIndexer(t)

	path := writeArchive(t, t.TempDir(), "slack-sparse.jsonl", []string{
		slackLine("real message"),
		`{"ts":"1722470400.000100"}`,
	})

	res, err := idx.ProcessArchive(context.Background(), path, types.SourceSlack, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.ErrorCount())
	assert.Equal(t, 1, countMessages(t, store))
}

func TestProcessArchive_Gzip(t *testing.T) {
	idx, store := setupTestIndexer(t)
	ctx := context.Background()

	path := writeGzipArchive(t, t.TempDir(), "slack-2025.jsonl.gz", []string{
		slackLine("compressed deploy note"),
		slackLine("second entry"),
	})

	res, err := idx.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)

	hits, err := store.Search(ctx, types.SearchRequest{Query: "compressed"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestProcessArchive_Zstd(t *testing.T) {
	idx, store := setupTestIndexer(t)
	ctx := context.Background()

	path := writeZstdArchive(t, t.TempDir(), "slack-2025.jsonl.zst", []string{
		slackLine("zstandard deploy note"),
		slackLine("second entry"),
	})

	res, err := idx.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)

	hits, err := store.Search(ctx, types.SearchRequest{Query: "zstandard"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

// TestProcessArchive_ResumesAppendedGzip verifies that a gzip archive
// extended with a second member resumes at the old member boundary.
func TestProcessArchive_ResumesAppendedGzip(t *testing.T) {
	idx, store := setupTestIndexer(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := writeGzipArchive(t, dir, "slack-roll.jsonl.gz", []string{
		slackLine("one"),
		slackLine("two"),
	})

	first, err := idx.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)
	require.Equal(t, 2, first.Records)

	appendGzipMember(t, path, []string{slackLine("three")})

	second, err := idx.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Records)
	assert.Greater(t, second.ResumedFrom, int64(0))
	assert.Equal(t, 3, countMessages(t, store))
}

// TestProcessArchive_BoundedBatches checks the batch cap against a fake
// that records every hand-off.
func TestProcessArchive_BoundedBatches(t *testing.T) {
	fake := newRecordingStorage()
	idx, err := New(context.Background(), fake)
	require.NoError(t, err)

	var lines []string
	for i := 0; i < 25; i++ {
		lines = append(lines, fmt.Sprintf(`{"text":"note %d"}`, i))
	}
	path := writeArchive(t, t.TempDir(), "slack-notes.jsonl", lines)

	res, err := idx.ProcessArchive(context.Background(), path, types.SourceSlack, &Config{BatchSize: 10})
	require.NoError(t, err)

	assert.Equal(t, 25, res.Records)
	assert.Equal(t, []int{10, 10, 5}, fake.batchSizes())
}

func TestProcessArchive_LargeFileBoundedBatches(t *testing.T) {
	fake := newRecordingStorage()
	idx, err := New(context.Background(), fake)
	require.NoError(t, err)

	lines := make([]string, 15000)
	for i := range lines {
		lines[i] = fmt.Sprintf(`{"text":"entry %d","ts":"%d"}`, i, 1722470400+i)
	}
	path := writeArchive(t, t.TempDir(), "slack-big.jsonl", lines)

	res, err := idx.ProcessArchive(context.Background(), path, types.SourceSlack, &Config{BatchSize: 1000})
	require.NoError(t, err)

	assert.Equal(t, 15000, res.Records)
	assert.Zero(t, res.ErrorCount())

	sizes := fake.batchSizes()
	assert.Len(t, sizes, 15)
	for _, n := range sizes {
		assert.LessOrEqual(t, n, 1000)
	}
}

// TestProcessArchive_RecordFailureKeepsLineNumber maps a record-level
// storage failure back to the source line, across blank lines.
func TestProcessArchive_RecordFailureKeepsLineNumber(t *testing.T) {
	fake := newRecordingStorage()
	fake.recordErr = &types.RecordError{Index: 1, Err: "constraint failed", Snippet: "{...}"}
	idx, err := New(context.Background(), fake)
	require.NoError(t, err)

	content := slackLine("first") + "\n\n" + slackLine("second") + "\n\n" + slackLine("third") + "\n"
	path := filepath.Join(t.TempDir(), "slack-gappy.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	res, err := idx.ProcessArchive(context.Background(), path, types.SourceSlack, nil)
	require.NoError(t, err)

	// Records sit on lines 1, 3, 5; the failing one is the second.
	assert.Equal(t, 2, res.Records)
	require.Equal(t, 1, res.ErrorCount())
	assert.Equal(t, 3, res.Errors[0].Line)
	assert.Equal(t, "constraint failed", res.Errors[0].Err)
}

func TestProcessArchive_Progress(t *testing.T) {
	fake := newRecordingStorage()
	idx, err := New(context.Background(), fake)
	require.NoError(t, err)

	lines := make([]string, 2000)
	for i := range lines {
		lines[i] = fmt.Sprintf(`{"text":"note %d"}`, i)
	}
	path := writeArchive(t, t.TempDir(), "slack-notes.jsonl", lines)

	type call struct {
		indexed, total int64
		rate           float64
	}
	var calls []call
	cfg := &Config{
		BatchSize: 500,
		Progress: func(indexed, total int64, rate float64) {
			calls = append(calls, call{indexed, total, rate})
		},
	}

	_, err = idx.ProcessArchive(context.Background(), path, types.SourceSlack, cfg)
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.Equal(t, int64(2000), calls[0].indexed)
	assert.Equal(t, int64(2000), calls[0].total)
	assert.Greater(t, calls[0].rate, 0.0)
}

func TestProcessArchive_MissingFile(t *testing.T) {
	idx, _ := setupTestIndexer(t)

	_, err := idx.ProcessArchive(context.Background(), filepath.Join(t.TempDir(), "absent.jsonl"), types.SourceSlack, nil)
	require.Error(t, err)
}

// TestNew_RehydratesCursorFromStore proves change detection survives a
// process restart: a fresh Indexer over the same store still skips.
func TestNew_RehydratesCursorFromStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	path := writeArchive(t, t.TempDir(), "slack-a.jsonl", []string{slackLine("kickoff notes")})

	first, err := New(ctx, store)
	require.NoError(t, err)
	res1, err := first.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res1.Records)

	second, err := New(ctx, store)
	require.NoError(t, err)
	res2, err := second.ProcessArchive(ctx, path, types.SourceSlack, nil)
	require.NoError(t, err)
	assert.True(t, res2.SkippedUnchanged)

	assert.Equal(t, 1, countMessages(t, store))
}

func TestProcessArchiveDirectory_Manifest(t *testing.T) {
	idx, store := setupTestIndexer(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeArchive(t, dir, "week1.jsonl", []string{slackLine("standup notes"), slackLine("deploy recap")})
	writeArchive(t, dir, "week2.jsonl", []string{slackLine("retro summary")})
	writeArchive(t, dir, "unlisted.jsonl", []string{slackLine("not in the manifest")})

	m := `{"source":"slack","files":["week1.jsonl","week2.jsonl"],"counts":{"week1.jsonl":2,"week2.jsonl":1}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(m), 0644))

	res, err := idx.ProcessArchiveDirectory(ctx, dir, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.True(t, res.ManifestValidated)
	assert.Equal(t, types.SourceSlack, res.Source)
	assert.Len(t, res.Files, 2)
	assert.Equal(t, 3, res.Records)
	assert.Zero(t, res.Errors)
	for _, fr := range res.Files {
		assert.True(t, fr.ManifestValidated)
		assert.Equal(t, types.SourceSlack, fr.Source)
	}

	assert.Equal(t, 3, countMessages(t, store))
}

func TestProcessArchiveDirectory_CountMismatch(t *testing.T) {
	idx, _ := setupTestIndexer(t)
	dir := t.TempDir()

	writeArchive(t, dir, "week1.jsonl", []string{slackLine("only one")})
	m := `{"source":"slack","counts":{"week1.jsonl":5}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(m), 0644))

	res, err := idx.ProcessArchiveDirectory(context.Background(), dir, nil)
	require.NoError(t, err)

	assert.False(t, res.ManifestValidated, "declared count does not match")
	assert.Equal(t, 1, res.Records)
}

// TestProcessArchiveDirectory_Glob covers the no-manifest path with
// per-file source inference.
func TestProcessArchiveDirectory_Glob(t *testing.T) {
	idx, store := setupTestIndexer(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeArchive(t, dir, "slack-2025-06.jsonl", []string{slackLine("deploy chatter")})
	writeGzipArchive(t, dir, "calendar-2025-06.jsonl.gz", []string{
		`{"summary":"Planning sync","start":{"dateTime":"2025-06-02T10:00:00Z"}}`,
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an archive"), 0644))

	res, err := idx.ProcessArchiveDirectory(ctx, dir, nil)
	require.NoError(t, err)

	assert.False(t, res.ManifestValidated)
	assert.Len(t, res.Files, 2)
	assert.Equal(t, 2, res.Records)

	bySource := make(map[types.Source]int)
	for _, fr := range res.Files {
		bySource[fr.Source] += fr.Records
	}
	assert.Equal(t, 1, bySource[types.SourceSlack])
	assert.Equal(t, 1, bySource[types.SourceCalendar])

	assert.Equal(t, 2, countMessages(t, store))
}

func TestProcessArchiveDirectory_ManifestNamesMissingFile(t *testing.T) {
	idx, _ := setupTestIndexer(t)
	dir := t.TempDir()

	m := `{"source":"slack","files":["absent.jsonl"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(m), 0644))

	_, err := idx.ProcessArchiveDirectory(context.Background(), dir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.jsonl")
}

// TestProcessArchiveDirectory_BadFileDoesNotAbort keeps going past a
// file that cannot be opened, recording it in the aggregate.
func TestProcessArchiveDirectory_BadFileDoesNotAbort(t *testing.T) {
	idx, store := setupTestIndexer(t)
	dir := t.TempDir()

	writeArchive(t, dir, "slack-good.jsonl", []string{slackLine("all fine here")})
	// A .gz extension over plain bytes fails to open as gzip.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slack-broken.jsonl.gz"), []byte("not gzip"), 0644))

	res, err := idx.ProcessArchiveDirectory(context.Background(), dir, nil)
	require.NoError(t, err)

	assert.Len(t, res.Files, 2)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, countMessages(t, store))
}

func TestProcessArchiveDirectory_SecondPassSkipsEverything(t *testing.T) {
	idx, _ := setupTestIndexer(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeArchive(t, dir, "slack-a.jsonl", []string{slackLine("alpha")})
	writeArchive(t, dir, "slack-b.jsonl", []string{slackLine("beta")})

	first, err := idx.ProcessArchiveDirectory(ctx, dir, nil)
	require.NoError(t, err)
	require.Equal(t, 2, first.Records)

	second, err := idx.ProcessArchiveDirectory(ctx, dir, nil)
	require.NoError(t, err)
	assert.Zero(t, second.Records)
	for _, fr := range second.Files {
		assert.True(t, fr.SkippedUnchanged)
	}
}
