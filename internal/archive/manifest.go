package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/teambeacon/orgdex/pkg/types"
)

// manifestName is the per-directory descriptor some exporters write
// alongside their archive files.
const manifestName = "manifest.json"

// manifest describes a directory of archive files. Source is
// authoritative for every file in the directory. Files, when non-empty,
// is an explicit list relative to the directory; Counts, when present,
// maps a file name to the record count the exporter claims it holds.
type manifest struct {
	Source types.Source   `json:"source"`
	Files  []string       `json:"files,omitempty"`
	Counts map[string]int `json:"counts,omitempty"`
}

// readManifest loads manifest.json from dir. A missing manifest returns
// (nil, nil); a malformed one is an error.
func readManifest(dir string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest in %s: %w", dir, err)
	}
	return &m, nil
}

// discoverFiles resolves the archive files to process under dir. A
// manifest's declared list wins; otherwise every *.jsonl file, plain or
// compressed, is picked up in name order.
func discoverFiles(dir string, m *manifest) ([]string, error) {
	if m != nil && len(m.Files) > 0 {
		files := make([]string, 0, len(m.Files))
		for _, name := range m.Files {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("manifest names missing file %s: %w", name, err)
			}
			files = append(files, path)
		}
		return files, nil
	}

	var files []string
	for _, pattern := range []string{"*.jsonl", "*.jsonl.gz", "*.jsonl.zst"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to glob archives in %s: %w", dir, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}
