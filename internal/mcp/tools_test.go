package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultJSON decodes the text payload of a tool result.
func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &decoded))
	return decoded
}

func writeTestArchive(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	require.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func TestHandleIndexArchiveAndSearch(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	path := writeTestArchive(t, t.TempDir(), "slack-june.jsonl", []string{
		`{"text":"deploy failed on production","user":"U100","channel":"ops","ts":"1722470400.000100"}`,
		`{"text":"deploy succeeded after retry","user":"U101","channel":"ops","ts":"1722556800.000200"}`,
		`{"text":"postmortem scheduled for Monday","user":"U100","channel":"ops","ts":"1722643200.000300"}`,
	})

	res, err := srv.handleIndexArchive(ctx, toolRequest("index_archive", map[string]interface{}{
		"path":   path,
		"source": "slack",
	}))
	require.NoError(t, err)

	decoded := resultJSON(t, res)
	assert.EqualValues(t, 3, decoded["records"])
	assert.Equal(t, "slack", decoded["source"])
	assert.NotEmpty(t, decoded["run_id"])
	assert.Equal(t, false, decoded["skipped_unchanged"])

	res, err = srv.handleSearchArchive(ctx, toolRequest("search_archive", map[string]interface{}{
		"query": "deploy",
	}))
	require.NoError(t, err)

	decoded = resultJSON(t, res)
	assert.EqualValues(t, 2, decoded["total_results"])
	results, ok := decoded["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 2)

	hit, ok := results[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "slack", hit["source"])
	assert.Contains(t, hit["content"], "deploy")
	assert.NotEmpty(t, hit["date"])
}

func TestHandleSearchArchive_EmptyQuery(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	_, err := srv.handleSearchArchive(ctx, toolRequest("search_archive", map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeEmptyQuery)

	_, err = srv.handleSearchArchive(ctx, toolRequest("search_archive", map[string]interface{}{
		"query": "   ",
	}))
	requireMCPError(t, err, ErrorCodeEmptyQuery)
}

func TestHandleSearchArchive_LimitOutOfRange(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	_, err := srv.handleSearchArchive(ctx, toolRequest("search_archive", map[string]interface{}{
		"query": "deploy",
		"limit": float64(500),
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleSearchArchive_MalformedDateBound(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	_, err := srv.handleSearchArchive(ctx, toolRequest("search_archive", map[string]interface{}{
		"query":     "deploy",
		"date_from": "June 1st",
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleIndexArchive_PathValidation(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	_, err := srv.handleIndexArchive(ctx, toolRequest("index_archive", map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = srv.handleIndexArchive(ctx, toolRequest("index_archive", map[string]interface{}{
		"path": "relative/slack.jsonl",
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = srv.handleIndexArchive(ctx, toolRequest("index_archive", map[string]interface{}{
		"path": filepath.Join(t.TempDir(), "missing.jsonl"),
	}))
	requireMCPError(t, err, ErrorCodeArchiveNotFound)
}

func TestHandleIndexArchive_SourceInferredFromFilename(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	path := writeTestArchive(t, t.TempDir(), "calendar-2025-06.jsonl", []string{
		`{"summary":"Planning sync","start":{"dateTime":"2025-06-02T10:00:00Z"}}`,
	})

	res, err := srv.handleIndexArchive(ctx, toolRequest("index_archive", map[string]interface{}{
		"path": path,
	}))
	require.NoError(t, err)

	decoded := resultJSON(t, res)
	assert.Equal(t, "calendar", decoded["source"])
	assert.EqualValues(t, 1, decoded["records"])
}

func TestHandleIndexArchive_Directory(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeTestArchive(t, dir, "slack-june.jsonl", []string{
		`{"text":"standup moved to ten","ts":"1722470400.000100"}`,
		`{"text":"standup cancelled Friday","ts":"1722556800.000200"}`,
	})
	writeTestArchive(t, dir, "calendar-june.jsonl", []string{
		`{"summary":"Standup","start":{"dateTime":"2025-06-02T10:00:00Z"}}`,
	})

	res, err := srv.handleIndexArchive(ctx, toolRequest("index_archive", map[string]interface{}{
		"path": dir,
	}))
	require.NoError(t, err)

	decoded := resultJSON(t, res)
	assert.EqualValues(t, 2, decoded["files"])
	assert.EqualValues(t, 3, decoded["records"])
	assert.EqualValues(t, 0, decoded["errors"])
	assert.Equal(t, false, decoded["manifest_validated"])
}

func TestHandleIndexArchive_LineErrorsTruncated(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	lines := []string{`{"text":"one good record","ts":"1722470400.000100"}`}
	for i := 0; i < 7; i++ {
		lines = append(lines, "{not json")
	}
	path := writeTestArchive(t, t.TempDir(), "slack-bad.jsonl", lines)

	res, err := srv.handleIndexArchive(ctx, toolRequest("index_archive", map[string]interface{}{
		"path":   path,
		"source": "slack",
	}))
	require.NoError(t, err)

	decoded := resultJSON(t, res)
	assert.EqualValues(t, 1, decoded["records"])
	assert.EqualValues(t, 7, decoded["error_count"])
	lineErrors, ok := decoded["line_errors"].([]interface{})
	require.True(t, ok)
	assert.Len(t, lineErrors, 5)
}

func TestHandleIndexArchive_InvalidatesSearchCache(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()

	first := writeTestArchive(t, dir, "slack-june.jsonl", []string{
		`{"text":"incident retro scheduled","ts":"1722470400.000100"}`,
	})
	_, err := srv.handleIndexArchive(ctx, toolRequest("index_archive", map[string]interface{}{
		"path": first,
	}))
	require.NoError(t, err)

	query := toolRequest("search_archive", map[string]interface{}{"query": "retro"})

	res, err := srv.handleSearchArchive(ctx, query)
	require.NoError(t, err)
	decoded := resultJSON(t, res)
	assert.EqualValues(t, 1, decoded["total_results"])
	assert.Equal(t, false, decoded["cache_hit"])

	// The identical query is now served from the cache.
	res, err = srv.handleSearchArchive(ctx, query)
	require.NoError(t, err)
	decoded = resultJSON(t, res)
	assert.Equal(t, true, decoded["cache_hit"])

	// Indexing drops the cache, so the new record shows up immediately.
	second := writeTestArchive(t, dir, "slack-july.jsonl", []string{
		`{"text":"retro moved to Friday","ts":"1722556800.000100"}`,
	})
	_, err = srv.handleIndexArchive(ctx, toolRequest("index_archive", map[string]interface{}{
		"path": second,
	}))
	require.NoError(t, err)

	res, err = srv.handleSearchArchive(ctx, query)
	require.NoError(t, err)
	decoded = resultJSON(t, res)
	assert.Equal(t, false, decoded["cache_hit"])
	assert.EqualValues(t, 2, decoded["total_results"])
}

func TestHandleArchiveStats(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	path := writeTestArchive(t, t.TempDir(), "slack-june.jsonl", []string{
		`{"text":"deploy failed on production","ts":"1722470400.000100"}`,
		`{"text":"deploy succeeded after retry","ts":"1722556800.000200"}`,
	})
	_, err := srv.handleIndexArchive(ctx, toolRequest("index_archive", map[string]interface{}{
		"path":   path,
		"source": "slack",
	}))
	require.NoError(t, err)

	res, err := srv.handleArchiveStats(ctx, toolRequest("archive_stats", map[string]interface{}{}))
	require.NoError(t, err)

	decoded := resultJSON(t, res)
	assert.EqualValues(t, 2, decoded["messages"])
	assert.EqualValues(t, 1, decoded["archives"])

	bySource, ok := decoded["by_source"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, bySource["slack"])

	files, ok := decoded["archive_files"].([]interface{})
	require.True(t, ok)
	require.Len(t, files, 1)
	entry, ok := files[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, path, entry["path"])
	assert.Equal(t, "active", entry["status"])
}
