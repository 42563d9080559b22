package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchArchiveTool returns the tool definition for search_archive
func searchArchiveTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_archive",
		Description: "Search indexed org activity with a full-text query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Full-text query (supports AND, OR, NOT, quoted phrases, prefix*)",
				},
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one source system",
					"enum":        []string{"slack", "calendar", "drive", "employees", "other"},
				},
				"date_from": map[string]interface{}{
					"type":        "string",
					"description": "Inclusive lower date bound (YYYY-MM-DD)",
				},
				"date_to": map[string]interface{}{
					"type":        "string",
					"description": "Inclusive upper date bound (YYYY-MM-DD)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// indexArchiveTool returns the tool definition for index_archive
func indexArchiveTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_archive",
		Description: "Index a JSONL archive file or export directory into the search database",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a .jsonl/.jsonl.gz/.jsonl.zst file or a directory of them",
				},
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Source system the archive came from; inferred from the filename when omitted",
					"enum":        []string{"slack", "calendar", "drive", "employees", "other"},
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, reprocess the archive even when its checksum is unchanged",
					"default":     false,
				},
				"batch_size": map[string]interface{}{
					"type":        "integer",
					"description": "Records per insert batch (default 10000)",
					"minimum":     1,
				},
			},
			Required: []string{"path"},
		},
	}
}

// archiveStatsTool returns the tool definition for archive_stats
func archiveStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "archive_stats",
		Description: "Report database totals, the per-source breakdown, and every indexed archive",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
