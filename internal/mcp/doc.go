// Package mcp implements the Model Context Protocol (MCP) server for orgdex.
//
// The server exposes three tools to MCP clients:
//   - search_archive: Full-text search over indexed org activity
//   - index_archive: Index a JSONL archive file or export directory
//   - archive_stats: Database totals and per-archive bookkeeping
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server reads requests from stdin and writes responses to stdout,
// so anything else it has to say goes to stderr.
//
// # Basic Usage
//
// The server is typically started via the mcp command:
//
//	orgdex mcp
//
// # Tool: search_archive
//
// Search indexed activity:
//
//	Request:
//	{
//	  "name": "search_archive",
//	  "arguments": {
//	    "query": "quarterly planning",
//	    "source": "slack",
//	    "date_from": "2025-06-01",
//	    "limit": 20
//	  }
//	}
//
//	Response:
//	{
//	  "query": "quarterly planning",
//	  "total_results": 2,
//	  "cache_hit": false,
//	  "duration_ms": 4,
//	  "results": [
//	    {
//	      "id": 118,
//	      "source": "slack",
//	      "date": "2025-06-03",
//	      "content": "moving quarterly planning to Thursday",
//	      "relevance_score": -2.71
//	    }
//	  ]
//	}
//
// # Tool: index_archive
//
// Index an archive file, or a directory of them:
//
//	Request:
//	{
//	  "name": "index_archive",
//	  "arguments": {
//	    "path": "/exports/slack-2025-06.jsonl.gz",
//	    "source": "slack",
//	    "force": false
//	  }
//	}
//
//	Response:
//	{
//	  "run_id": "7b0c6d9e-...",
//	  "path": "/exports/slack-2025-06.jsonl.gz",
//	  "source": "slack",
//	  "records": 52100,
//	  "skipped": 12,
//	  "duration_ms": 1840,
//	  "resumed_from": 0,
//	  "skipped_unchanged": false
//	}
//
// A successful run invalidates the search cache, so the next
// search_archive call sees the new records.
//
// # Tool: archive_stats
//
// Report what the database holds:
//
//	Request:
//	{
//	  "name": "archive_stats",
//	  "arguments": {}
//	}
//
//	Response:
//	{
//	  "messages": 52100,
//	  "archives": 3,
//	  "by_source": {"slack": 48200, "calendar": 3900},
//	  "cached_queries": 4,
//	  "archive_files": [
//	    {"path": "...", "source": "slack", "records": 48200, "status": "active"}
//	  ]
//	}
//
// # Errors
//
// Handlers return *MCPError with JSON-RPC codes: -32602 for bad
// parameters, -32603 for internal failures, and server-specific codes
// for a missing archive path (-32001) and an empty query (-32002).
package mcp
