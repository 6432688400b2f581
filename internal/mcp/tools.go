package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/memograph/internal/searcher"
	"github.com/dshills/memograph/internal/storage"
	"github.com/dshills/memograph/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeNotIndexed     = -32001 // Project has not been synced yet
	ErrorCodeSyncInProgress = -32002 // A sync pass is already running
	ErrorCodeEmptyQuery     = -32004 // Query parameter is empty
	ErrorCodeBadQuery       = -32005 // Query syntax could not be parsed
	ErrorCodeNotFound       = -32006 // Document not found
)

// handleSyncProject handles the sync_project tool invocation
func (s *Server) handleSyncProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	project, ok := args["project"].(string)
	if !ok || project == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "project parameter is required", map[string]interface{}{
			"param":  "project",
			"reason": "missing or empty",
		})
	}
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	report, err := s.reconciler.Sync(ctx, project, path)
	if errors.Is(err, types.ErrSyncInProgress) {
		return nil, newMCPError(ErrorCodeSyncInProgress, "sync already running for project", map[string]interface{}{
			"project": project,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "sync failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// The projection changed; cached query pages are stale
	s.searcher.InvalidateCache()

	response := map[string]interface{}{
		"project":          report.Project,
		"entities_created": report.EntitiesCreated,
		"entities_updated": report.EntitiesUpdated,
		"entities_deleted": report.EntitiesDeleted,
		"moved":            report.Moved,
		"unchanged":        report.Unchanged,
		"links_resolved":   report.LinksResolved,
		"unresolved_links": report.UnresolvedLinks,
		"duration_ms":      report.Duration.Milliseconds(),
	}
	if len(report.Errors) > 0 {
		if len(report.Errors) > 5 {
			response["errors"] = report.Errors[:5]
			response["error_count"] = len(report.Errors)
		} else {
			response["errors"] = report.Errors
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectName, ok := args["project"].(string)
	if !ok || projectName == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "project parameter is required", map[string]interface{}{
			"param":  "project",
			"reason": "missing or empty",
		})
	}
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	mode := searcher.SearchMode(getStringDefault(args, "mode", string(searcher.SearchModeHybrid)))
	switch mode {
	case searcher.SearchModeHybrid, searcher.SearchModeVector, searcher.SearchModeText:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   string(mode),
			"allowed": []string{"hybrid", "vector", "text"},
		})
	}

	page := getIntDefault(args, "page", 1)
	pageSize := getIntDefault(args, "page_size", 10)
	if pageSize < 1 || pageSize > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "page_size must be between 1 and 100", map[string]interface{}{
			"param": "page_size",
			"value": pageSize,
		})
	}

	project, err := s.storage.GetProject(ctx, projectName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotIndexed, "project not indexed", map[string]interface{}{
			"project": projectName,
			"hint":    "run sync_project first",
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load project", map[string]interface{}{
			"error": err.Error(),
		})
	}

	filters, err := parseFilters(args)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid filters", map[string]interface{}{
			"reason": err.Error(),
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:     query,
		Mode:      mode,
		Filters:   filters,
		ProjectID: project.ID,
		Page:      page,
		PageSize:  pageSize,
		UseCache:  true,
	})
	var qerr *types.QueryError
	if errors.As(err, &qerr) {
		return nil, newMCPError(ErrorCodeBadQuery, "malformed query", map[string]interface{}{
			"query":      qerr.Query,
			"suggestion": qerr.Suggestion,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"rank":        r.Rank,
			"score":       r.Score,
			"kind":        string(r.Kind),
			"title":       r.Title,
			"excerpt":     r.Excerpt,
			"slug":        r.EntitySlug,
			"path":        r.FilePath,
			"entity_kind": r.EntityKind,
		})
	}
	response := map[string]interface{}{
		"results":   results,
		"total":     resp.Total,
		"page":      resp.Page,
		"page_size": resp.PageSize,
		"mode":      string(resp.SearchMode),
		"cache_hit": resp.CacheHit,
	}
	if resp.Degraded {
		response["degraded"] = true
		response["degraded_reason"] = "no embedding provider configured, text-only results"
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectName, ok := args["project"].(string)
	if !ok || projectName == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "project parameter is required", map[string]interface{}{
			"param":  "project",
			"reason": "missing or empty",
		})
	}

	project, err := s.storage.GetProject(ctx, projectName)
	if errors.Is(err, storage.ErrNotFound) {
		response := map[string]interface{}{
			"indexed": false,
			"project": projectName,
			"message": "Project not indexed. Use the sync_project tool to index it.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load project", map[string]interface{}{
			"error": err.Error(),
		})
	}

	status, err := s.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed": true,
		"project": map[string]interface{}{
			"name":           project.Name,
			"root_path":      project.RootPath,
			"index_version":  project.IndexVersion,
			"last_synced_at": project.LastSyncedAt.Format(time.RFC3339),
		},
		"statistics": map[string]interface{}{
			"entities":         status.EntityCount,
			"facts":            status.FactCount,
			"links":            status.LinkCount,
			"unresolved_links": status.UnresolvedLinks,
			"search_rows":      status.RowCount,
			"embeddings":       status.EmbeddingCount,
			"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_index_built":      status.Health.FTSIndexBuilt,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleReadDocument handles the read_document tool invocation
func (s *Server) handleReadDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectName, ok := args["project"].(string)
	if !ok || projectName == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "project parameter is required", map[string]interface{}{
			"param":  "project",
			"reason": "missing or empty",
		})
	}
	slug := getStringDefault(args, "slug", "")
	relPath := getStringDefault(args, "path", "")
	if slug == "" && relPath == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "slug or path is required", nil)
	}

	project, err := s.storage.GetProject(ctx, projectName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotIndexed, "project not indexed", map[string]interface{}{
			"project": projectName,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load project", map[string]interface{}{
			"error": err.Error(),
		})
	}

	var entity *storage.Entity
	if slug != "" {
		entity, err = s.storage.GetEntityBySlug(ctx, project.ID, slug)
	} else {
		entity, err = s.storage.GetEntityByPath(ctx, project.ID, relPath)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotFound, "document not found", map[string]interface{}{
			"slug": slug,
			"path": relPath,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load document", map[string]interface{}{
			"error": err.Error(),
		})
	}

	content, err := os.ReadFile(filepath.Join(project.RootPath, filepath.FromSlash(entity.FilePath)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read document", map[string]interface{}{
			"path":  entity.FilePath,
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"title":   entity.Title,
		"slug":    entity.Slug,
		"path":    entity.FilePath,
		"kind":    entity.EntityKind,
		"content": string(content),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// parseFilters converts the tool's filters object into storage filters.
func parseFilters(args map[string]interface{}) (*storage.SearchFilters, error) {
	raw, ok := args["filters"].(map[string]interface{})
	if !ok {
		return nil, nil
	}

	filters := &storage.SearchFilters{}
	for _, item := range getStringList(raw, "kinds") {
		switch kind := types.RowKind(item); kind {
		case types.RowEntity, types.RowFact, types.RowLink:
			filters.Kinds = append(filters.Kinds, kind)
		default:
			return nil, fmt.Errorf("unknown row kind %q", item)
		}
	}
	filters.EntityKinds = getStringList(raw, "entity_kinds")
	filters.PathGlob = getStringDefault(raw, "path_glob", "")

	if after := getStringDefault(raw, "after", ""); after != "" {
		t, err := time.Parse(time.RFC3339, after)
		if err != nil {
			return nil, fmt.Errorf("after must be RFC3339: %v", err)
		}
		filters.After = &t
	}
	return filters, nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
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

// validatePath checks that a path is an absolute, readable directory.
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
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

// getStringList extracts a string array parameter.
func getStringList(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
