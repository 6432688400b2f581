package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/memograph/internal/embedder"
	"github.com/dshills/memograph/internal/indexwriter"
	"github.com/dshills/memograph/internal/reconciler"
	"github.com/dshills/memograph/internal/searcher"
	"github.com/dshills/memograph/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "memograph"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBPath is the default location for the index database
	DefaultDBPath = "~/.memograph"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp        *server.MCPServer
	storage    storage.Storage
	reconciler *reconciler.Reconciler
	searcher   *searcher.Searcher
	logger     *slog.Logger
}

// NewServer creates a new MCP server instance backed by the index database
// at dbPath. An embedder is configured from the environment; when none is
// available the index is text-only and search degrades accordingly.
func NewServer(dbPath string) (*Server, error) {
	if dbPath == "" || dbPath == DefaultDBPath {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".memograph")
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dbFile := filepath.Join(dbPath, "memograph.db")

	store, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	// stdout carries the MCP protocol; logs go to stderr
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	writer := indexwriter.New(emb, indexwriter.WithLogger(logger))
	rec := reconciler.New(store, writer, reconciler.WithLogger(logger))
	srch := searcher.New(store, emb)

	// A dimension mismatch means the index was embedded with a different
	// model; serving would mix spaces silently
	if err := srch.CheckDimension(context.Background()); err != nil {
		_ = store.Close()
		return nil, err
	}

	mcpServer := server.NewMCPServer(ServerName, ServerVersion)

	s := &Server{
		mcp:        mcpServer,
		storage:    store,
		reconciler: rec,
		searcher:   srch,
		logger:     logger,
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(syncProjectTool(), s.handleSyncProject)
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(readDocumentTool(), s.handleReadDocument)
}
