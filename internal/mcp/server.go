package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/teambeacon/orgdex/internal/archive"
	"github.com/teambeacon/orgdex/internal/search"
	"github.com/teambeacon/orgdex/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "orgdex"
	// ServerVersion is the current server version
	ServerVersion = "1.2.0"
	// DefaultDBPath is the default location for the database file
	DefaultDBPath = "~/.orgdex/orgdex.db"
)

// Config carries what the server needs to open its database.
type Config struct {
	DBPath       string // database file; DefaultDBPath when empty
	DisableCache bool   // pass every query straight to the store
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	indexer  *archive.Indexer
	searcher *search.Searcher
}

// NewServer creates a new MCP server instance
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	dbPath, err := resolveDBPath(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.Open(storage.Config{Path: dbPath})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	idx, err := archive.New(ctx, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize indexer: %w", err)
	}

	srch := search.New(store, search.Config{DisableCache: cfg.DisableCache})

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:      mcpServer,
		storage:  store,
		indexer:  idx,
		searcher: srch,
	}

	s.registerTools()

	return s, nil
}

// resolveDBPath applies the default and expands a leading ~ to the
// user's home directory.
func resolveDBPath(path string) (string, error) {
	if path == "" {
		path = DefaultDBPath
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return path, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchArchiveTool(), s.handleSearchArchive)
	s.mcp.AddTool(indexArchiveTool(), s.handleIndexArchive)
	s.mcp.AddTool(archiveStatsTool(), s.handleArchiveStats)
}
