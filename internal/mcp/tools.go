package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teambeacon/orgdex/internal/archive"
	"github.com/teambeacon/orgdex/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeArchiveNotFound = -32001 // Specified path does not exist
	ErrorCodeEmptyQuery      = -32002 // Query parameter is empty
)

// DefaultSearchToolLimit caps search_archive responses unless the caller
// asks for more.
const DefaultSearchToolLimit = 20

// handleSearchArchive handles the search_archive tool invocation
func (s *Server) handleSearchArchive(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", DefaultSearchToolLimit)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	for _, key := range []string{"date_from", "date_to"} {
		v := getStringDefault(args, key, "")
		if v == "" {
			continue
		}
		if _, err := time.Parse(types.DateLayout, v); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid date bound", map[string]interface{}{
				"param":  key,
				"value":  v,
				"format": "YYYY-MM-DD",
			})
		}
	}

	req := types.SearchRequest{
		Query:    query,
		DateFrom: getStringDefault(args, "date_from", ""),
		DateTo:   getStringDefault(args, "date_to", ""),
		Limit:    limit,
	}
	if name := getStringDefault(args, "source", ""); name != "" {
		req.Source = types.ParseSource(name)
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = map[string]interface{}{
			"id":              r.ID,
			"source":          r.Source.String(),
			"date":            r.Date,
			"content":         r.Content,
			"relevance_score": r.RelevanceScore,
		}
	}

	response := map[string]interface{}{
		"query":         query,
		"total_results": resp.TotalResults,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
		"results":       results,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexArchive handles the index_archive tool invocation
func (s *Server) handleIndexArchive(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	info, err := validatePath(path)
	if err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) {
			code = ErrorCodeArchiveNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	config := &archive.Config{
		BatchSize: getIntDefault(args, "batch_size", 0),
		Force:     getBoolDefault(args, "force", false),
	}

	if info.IsDir() {
		res, err := s.indexer.ProcessArchiveDirectory(ctx, path, config)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		s.searcher.InvalidateCache()

		response := map[string]interface{}{
			"run_id":             res.RunID,
			"dir":                res.Dir,
			"files":              len(res.Files),
			"records":            res.Records,
			"skipped":            res.Skipped,
			"errors":             res.Errors,
			"duration_ms":        res.Duration.Milliseconds(),
			"manifest_validated": res.ManifestValidated,
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	name := getStringDefault(args, "source", "")
	source := types.ParseSource(name)
	if name == "" {
		source = types.SourceFromPath(path)
	}

	res, err := s.indexer.ProcessArchive(ctx, path, source, config)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.searcher.InvalidateCache()

	response := map[string]interface{}{
		"run_id":            res.RunID,
		"path":              res.Path,
		"source":            res.Source.String(),
		"records":           res.Records,
		"skipped":           res.Skipped,
		"duration_ms":       res.Duration.Milliseconds(),
		"records_per_sec":   fmt.Sprintf("%.0f", res.AvgRate),
		"peak_memory_mb":    fmt.Sprintf("%.1f", res.PeakMemoryMB),
		"resumed_from":      res.ResumedFrom,
		"skipped_unchanged": res.SkippedUnchanged,
	}

	if len(res.Errors) > 0 {
		// Include the first few line errors
		errorCount := len(res.Errors)
		shown := res.Errors
		if errorCount > 5 {
			shown = res.Errors[:5]
		}
		lines := make([]map[string]interface{}, len(shown))
		for i, le := range shown {
			lines[i] = map[string]interface{}{
				"line":  le.Line,
				"error": le.Err,
			}
		}
		response["line_errors"] = lines
		response["error_count"] = errorCount
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleArchiveStats handles the archive_stats tool invocation
func (s *Server) handleArchiveStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.storage.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read stats", map[string]interface{}{
			"error": err.Error(),
		})
	}

	archives, err := s.storage.ListArchives(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list archives", map[string]interface{}{
			"error": err.Error(),
		})
	}

	archiveList := make([]map[string]interface{}, len(archives))
	for i, a := range archives {
		archiveList[i] = map[string]interface{}{
			"path":       a.Path,
			"source":     a.Source.String(),
			"records":    a.RecordCount,
			"status":     a.Status,
			"indexed_at": a.IndexedAt.Format(time.RFC3339),
			"file_size":  a.FileSize,
		}
	}

	response := map[string]interface{}{
		"messages":       stats.TotalMessages,
		"archives":       stats.TotalArchives,
		"by_source":      stats.BySource,
		"cached_queries": s.searcher.CacheLen(),
		"counters": map[string]interface{}{
			"connections_created": stats.ConnectionsCreated,
			"connections_reused":  stats.ConnectionsReused,
			"queries_executed":    stats.QueriesExecuted,
			"records_indexed":     stats.RecordsIndexed,
		},
		"archive_files": archiveList,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that a path is absolute and points at something
// that exists. Both files and directories are acceptable.
func validatePath(path string) (os.FileInfo, error) {
	if path == "" {
		return nil, ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return nil, ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, ErrPathNotFound
	}
	if err != nil {
		return nil, ErrPathNotReadable
	}

	return info, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
)
