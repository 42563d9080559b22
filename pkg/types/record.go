package types

import (
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// DateLayout is the canonical date format stored in the messages table.
const DateLayout = "2006-01-02"

// genericKeys are the conventional text-bearing fields checked by the
// generic extraction fallback, in priority order.
var genericKeys = []string{"content", "text", "message", "title", "subject", "name"}

// dateKeys are checked in order by ExtractDate.
var dateKeys = []string{"date", "timestamp", "ts", "created_at", "start", "archive_timestamp"}

// Typed views of the known record shapes. Decoding is lenient: unknown
// fields are ignored, and a record that doesn't fit the shape at all falls
// back to generic extraction.

type slackRecord struct {
	Text    string         `mapstructure:"text"`
	User    string         `mapstructure:"user"`
	Channel string         `mapstructure:"channel"`
	Blocks  []slackElement `mapstructure:"blocks"`
}

// slackElement mirrors the recursive rich-text block tree in Slack message
// exports. Leaf nodes carry text; interior nodes carry child elements.
type slackElement struct {
	Type     string         `mapstructure:"type"`
	Text     string         `mapstructure:"text"`
	Elements []slackElement `mapstructure:"elements"`
}

type calendarRecord struct {
	Summary   string `mapstructure:"summary"`
	Title     string `mapstructure:"title"`
	Location  string `mapstructure:"location"`
	Organizer struct {
		Email string `mapstructure:"email"`
	} `mapstructure:"organizer"`
	Attendees []struct {
		Email string `mapstructure:"email"`
	} `mapstructure:"attendees"`
}

type driveRecord struct {
	Name     string `mapstructure:"name"`
	Title    string `mapstructure:"title"`
	MimeType string `mapstructure:"mimeType"`
}

type employeeRecord struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
	Title string `mapstructure:"title"`
}

// ExtractContent produces the single searchable string for a record,
// dispatching on the source kind. An empty return means the record has no
// indexable text and should be dropped by the caller.
func ExtractContent(source Source, rec Record) string {
	switch source {
	case SourceSlack:
		return extractSlack(rec)
	case SourceCalendar:
		return extractCalendar(rec)
	case SourceDrive:
		return extractDrive(rec)
	case SourceEmployees:
		return extractEmployee(rec)
	default:
		return firstString(rec, "text", "content", "message", "title", "subject", "name")
	}
}

func extractSlack(rec Record) string {
	var sr slackRecord
	if err := mapstructure.Decode(map[string]any(rec), &sr); err != nil {
		return GenericContent(rec)
	}
	parts := make([]string, 0, 4)
	if sr.Text != "" {
		parts = append(parts, sr.Text)
	}
	if sr.User != "" {
		parts = append(parts, "from:"+sr.User)
	}
	if sr.Channel != "" {
		parts = append(parts, "in:"+sr.Channel)
	}
	for _, b := range sr.Blocks {
		collectLeafText(b, sr.Text, &parts)
	}
	return strings.Join(parts, " ")
}

// collectLeafText walks a block tree appending leaf text. Leaves that
// duplicate the top-level message text are skipped; Slack mirrors the text
// field into rich_text blocks and indexing it twice adds nothing.
func collectLeafText(el slackElement, msgText string, parts *[]string) {
	if t := strings.TrimSpace(el.Text); t != "" && t != msgText {
		*parts = append(*parts, t)
	}
	for _, child := range el.Elements {
		collectLeafText(child, msgText, parts)
	}
}

func extractCalendar(rec Record) string {
	var cr calendarRecord
	if err := mapstructure.Decode(map[string]any(rec), &cr); err != nil {
		return GenericContent(rec)
	}
	parts := make([]string, 0, 4)
	switch {
	case cr.Summary != "":
		parts = append(parts, cr.Summary)
	case cr.Title != "":
		parts = append(parts, cr.Title)
	}
	for _, a := range cr.Attendees {
		if a.Email != "" {
			parts = append(parts, a.Email)
		}
	}
	if cr.Organizer.Email != "" {
		parts = append(parts, cr.Organizer.Email)
	}
	if cr.Location != "" {
		parts = append(parts, cr.Location)
	}
	return strings.Join(parts, " ")
}

func extractDrive(rec Record) string {
	var dr driveRecord
	if err := mapstructure.Decode(map[string]any(rec), &dr); err != nil {
		return GenericContent(rec)
	}
	parts := make([]string, 0, 2)
	switch {
	case dr.Name != "":
		parts = append(parts, dr.Name)
	case dr.Title != "":
		parts = append(parts, dr.Title)
	}
	if dr.MimeType != "" {
		parts = append(parts, dr.MimeType)
	}
	return strings.Join(parts, " ")
}

func extractEmployee(rec Record) string {
	var er employeeRecord
	if err := mapstructure.Decode(map[string]any(rec), &er); err != nil {
		return GenericContent(rec)
	}
	parts := make([]string, 0, 3)
	for _, s := range []string{er.Name, er.Email, er.Title} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// GenericContent is the source-agnostic fallback: concatenate whichever of
// the conventional text fields are present; failing that, take the first
// non-empty string value anywhere in the record (keys scanned in sorted
// order so the result is deterministic).
func GenericContent(rec Record) string {
	parts := make([]string, 0, 2)
	for _, k := range genericKeys {
		if s := stringValue(rec[k]); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s := stringValue(rec[k]); s != "" {
			return s
		}
	}
	return ""
}

// firstString returns the first non-empty string among the named keys.
func firstString(rec Record, keys ...string) string {
	for _, k := range keys {
		if s := stringValue(rec[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// ExtractDate derives the canonical date for a record: the first usable
// value among the conventional timestamp fields, accepted as an ISO-8601
// string (date portion before 'T' or the first space), Unix epoch seconds,
// or a Calendar-API object carrying a dateTime or date sub-field. Records
// with no usable date fall back to today.
func ExtractDate(rec Record) string {
	for _, k := range dateKeys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		if d, ok := normalizeDate(v); ok {
			return d
		}
	}
	return time.Now().UTC().Format(DateLayout)
}

func normalizeDate(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", false
		}
		// Slack timestamps arrive as numeric strings ("1722470400.000100").
		if f, err := cast.ToFloat64E(s); err == nil {
			return epochDate(f)
		}
		return isoDate(s)
	case map[string]any:
		if dt, ok := t["dateTime"]; ok {
			if d, ok := normalizeDate(dt); ok {
				return d, true
			}
		}
		if dv, ok := t["date"]; ok {
			return normalizeDate(dv)
		}
		return "", false
	default:
		if f, err := cast.ToFloat64E(v); err == nil {
			return epochDate(f)
		}
		return "", false
	}
}

func epochDate(f float64) (string, bool) {
	if f <= 0 {
		return "", false
	}
	return time.Unix(int64(f), 0).UTC().Format(DateLayout), true
}

func isoDate(s string) (string, bool) {
	if i := strings.IndexAny(s, "T "); i > 0 {
		s = s[:i]
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", false
	}
	return s, true
}
