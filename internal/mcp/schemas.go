package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// syncProjectTool returns the tool definition for sync_project
func syncProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "sync_project",
		Description: "Synchronize a document directory with its search index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Project name scoping the index",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the document directory",
				},
			},
			Required: []string{"project", "path"},
		},
	}
}

// searchTool returns the tool definition for search
func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search",
		Description: "Search an indexed project by text, vector similarity, or both",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Project name to search in",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (keywords, a quoted boolean expression, or a file path)",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (text + vector with RRF), vector, or text",
					"enum":        []string{"hybrid", "vector", "text"},
					"default":     "hybrid",
				},
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "1-based result page",
					"default":     1,
					"minimum":     1,
				},
				"page_size": map[string]interface{}{
					"type":        "integer",
					"description": "Results per page (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional filters to narrow search",
					"properties": map[string]interface{}{
						"kinds": map[string]interface{}{
							"type":        "array",
							"description": "Filter by row kind",
							"items": map[string]interface{}{
								"type": "string",
								"enum": []string{"entity", "fact", "link"},
							},
						},
						"entity_kinds": map[string]interface{}{
							"type":        "array",
							"description": "Filter by document kind (frontmatter 'kind' value)",
							"items": map[string]interface{}{
								"type": "string",
							},
						},
						"after": map[string]interface{}{
							"type":        "string",
							"description": "RFC3339 lower bound on row creation time",
						},
						"path_glob": map[string]interface{}{
							"type":        "string",
							"description": "Glob pattern over source file paths (e.g. 'ops/**')",
						},
					},
				},
			},
			Required: []string{"project", "query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query index status and statistics for a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Project name",
				},
			},
			Required: []string{"project"},
		},
	}
}

// readDocumentTool returns the tool definition for read_document
func readDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "read_document",
		Description: "Read an indexed document by slug or file path",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Project name",
				},
				"slug": map[string]interface{}{
					"type":        "string",
					"description": "Document slug (takes precedence over path)",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Document path relative to the project root",
				},
			},
			Required: []string{"project"},
		},
	}
}
