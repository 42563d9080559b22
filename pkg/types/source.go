package types

import (
	"path/filepath"
	"strings"
)

// Source identifies which system an archived record came from. It selects
// the content-extraction strategy and is stored alongside every message.
type Source string

const (
	SourceSlack     Source = "slack"
	SourceCalendar  Source = "calendar"
	SourceDrive     Source = "drive"
	SourceEmployees Source = "employees"
	SourceOther     Source = "other"
)

// String returns the source name as stored in the messages table.
func (s Source) String() string { return string(s) }

// Valid reports whether s is one of the known source kinds.
func (s Source) Valid() bool {
	switch s {
	case SourceSlack, SourceCalendar, SourceDrive, SourceEmployees, SourceOther:
		return true
	}
	return false
}

// ParseSource maps a free-form name to a Source. Unknown names fold to
// SourceOther so that new exporters degrade to generic extraction instead
// of failing the whole archive.
func ParseSource(name string) Source {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "slack":
		return SourceSlack
	case "calendar", "gcal", "google_calendar":
		return SourceCalendar
	case "drive", "gdrive", "google_drive":
		return SourceDrive
	case "employees", "employee", "people":
		return SourceEmployees
	default:
		return SourceOther
	}
}

// SourceFromPath guesses the source kind from an archive filename, e.g.
// "slack-2025-06.jsonl.gz" yields SourceSlack. The first path segment
// before a separator ('-', '_', '.') is matched against the known names.
func SourceFromPath(path string) Source {
	base := strings.ToLower(filepath.Base(path))
	for _, sep := range []string{"-", "_", "."} {
		if i := strings.Index(base, sep); i > 0 {
			if s := ParseSource(base[:i]); s != SourceOther {
				return s
			}
		}
	}
	return SourceOther
}

// Record is one decoded JSONL line from an archive. Keys and nesting vary
// by exporter; extraction is driven by the Source kind with a generic
// fallback for anything unrecognized.
type Record map[string]any
