package archive

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/teambeacon/orgdex/internal/checksum"
	"github.com/teambeacon/orgdex/pkg/types"
)

const (
	// maxLineBytes bounds a single archive line. Exporters occasionally
	// emit large block payloads; anything past this is a stream error.
	maxLineBytes = 1 << 20

	// lineSnippetLen bounds the raw-line rendering kept in error details.
	lineSnippetLen = 120
)

// archiveReader is a line source over a possibly-compressed archive file.
// Decompression is chosen by extension and always streamed.
type archiveReader struct {
	file *os.File
	gz   *gzip.Reader
	zst  *zstd.Decoder
	r    io.Reader
}

// openArchive opens path for line-by-line reading, wrapping the file in
// a gzip or zstd decoder when the extension calls for it. A non-zero
// offset resumes mid-file; for compressed archives this only works at a
// member/frame boundary, which is exactly where an appended archive
// continues.
func openArchive(path string, offset int64) (*archiveReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to seek archive %s: %w", path, err)
		}
	}

	ar := &archiveReader{file: f, r: f}
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open gzip archive %s: %w", path, err)
		}
		ar.gz = gz
		ar.r = gz
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open zstd archive %s: %w", path, err)
		}
		ar.zst = dec
		ar.r = dec
	}
	return ar, nil
}

func (ar *archiveReader) Close() error {
	if ar.zst != nil {
		ar.zst.Close()
	}
	if ar.gz != nil {
		_ = ar.gz.Close()
	}
	return ar.file.Close()
}

// lineBatch is one iterator step: parsed records, the 1-based source
// line of each, and the malformed lines seen while filling the batch.
type lineBatch struct {
	records []types.Record
	lines   []int
	errs    []types.LineError
}

// batchReader accumulates parsed records into bounded batches. A
// malformed line is collected, never fatal; only a read failure or an
// over-long line ends the stream early.
type batchReader struct {
	scanner   *bufio.Scanner
	batchSize int
	line      int
	done      bool
}

// newBatchReader wraps r. baseLine is the number of lines already
// consumed by a previous pass when resuming an appended file.
func newBatchReader(r io.Reader, batchSize, baseLine int) *batchReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &batchReader{scanner: scanner, batchSize: batchSize, line: baseLine}
}

// Next returns the next batch: full batches of batchSize records, then
// a final partial batch, then io.EOF. Blank lines are skipped without
// counting as records or errors.
func (br *batchReader) Next() (*lineBatch, error) {
	if br.done {
		return nil, io.EOF
	}

	batch := &lineBatch{}
	for br.scanner.Scan() {
		br.line++
		raw := strings.TrimSpace(br.scanner.Text())
		if raw == "" {
			continue
		}

		var rec types.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			batch.errs = append(batch.errs, types.LineError{
				Line:    br.line,
				Err:     err.Error(),
				Snippet: lineSnippet(raw),
			})
			continue
		}
		batch.records = append(batch.records, rec)
		batch.lines = append(batch.lines, br.line)

		if len(batch.records) >= br.batchSize {
			return batch, nil
		}
	}

	br.done = true
	if err := br.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive at line %d: %w", br.line+1, err)
	}
	if len(batch.records) == 0 && len(batch.errs) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func lineSnippet(raw string) string {
	if len(raw) > lineSnippetLen {
		return raw[:lineSnippetLen] + "..."
	}
	return raw
}

// lineCounter counts newline-terminated lines written through it. A
// trailing fragment without a newline counts as one more line, matching
// how bufio.Scanner numbers an unterminated final line.
type lineCounter struct {
	lines    int
	lastByte byte
}

func (lc *lineCounter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			lc.lines++
		}
	}
	if len(p) > 0 {
		lc.lastByte = p[len(p)-1]
	}
	return len(p), nil
}

func (lc *lineCounter) total() int {
	if lc.lastByte != 0 && lc.lastByte != '\n' {
		return lc.lines + 1
	}
	return lc.lines
}

// prefixDigest hashes the first n raw bytes of path and reports how
// many lines they hold. For plain files both happen in one pass; a
// compressed prefix is hashed raw and then decompressed once more for
// the line count.
func prefixDigest(path string, n int64) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()
	limited := io.LimitReader(f, n)

	if strings.HasSuffix(path, ".gz") || strings.HasSuffix(path, ".zst") {
		sum, err := checksum.Reader(limited)
		if err != nil {
			return "", 0, err
		}
		lines, err := countPrefixLines(path, n)
		if err != nil {
			return "", 0, err
		}
		return sum, lines, nil
	}

	lc := &lineCounter{}
	sum, err := checksum.Reader(io.TeeReader(limited, lc))
	if err != nil {
		return "", 0, err
	}
	return sum, lc.total(), nil
}

// countPrefixLines decompresses the first n raw bytes of a compressed
// archive and counts the lines inside. It is only called once the
// prefix hash matched a previous full pass, so n is known to sit on a
// clean member/frame boundary.
func countPrefixLines(path string, n int64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = io.LimitReader(f, n)
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return 0, fmt.Errorf("failed to reread gzip prefix of %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(r)
		if err != nil {
			return 0, fmt.Errorf("failed to reread zstd prefix of %s: %w", path, err)
		}
		defer dec.Close()
		r = dec
	}

	lc := &lineCounter{}
	if _, err := io.Copy(lc, r); err != nil {
		return 0, fmt.Errorf("failed to count archive prefix lines: %w", err)
	}
	return lc.total(), nil
}
