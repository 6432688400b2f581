// Package mcp implements the Model Context Protocol (MCP) server for memograph.
//
// The MCP server exposes four tools to AI assistants:
//   - sync_project: Synchronize a document directory with its search index
//   - search: Query an indexed project (text, vector, or hybrid)
//   - get_status: Check index status and statistics
//   - read_document: Fetch a document's full content by slug or path
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// stdout is reserved for the protocol; all logging goes to stderr.
//
// # Tool: sync_project
//
//	Request:
//	{
//	  "name": "sync_project",
//	  "arguments": {
//	    "project": "notes",
//	    "path": "/path/to/docs"
//	  }
//	}
//
//	Response:
//	{
//	  "project": "notes",
//	  "entities_created": 12,
//	  "entities_updated": 3,
//	  "entities_deleted": 0,
//	  "moved": 1,
//	  "unchanged": 204,
//	  "links_resolved": 31,
//	  "unresolved_links": 2,
//	  "duration_ms": 840
//	}
//
// # Tool: search
//
//	Request:
//	{
//	  "name": "search",
//	  "arguments": {
//	    "project": "notes",
//	    "query": "deploy rollback procedure",
//	    "mode": "hybrid",
//	    "page": 1,
//	    "page_size": 10,
//	    "filters": {
//	      "kinds": ["entity", "fact"],
//	      "entity_kinds": ["runbook"],
//	      "after": "2026-01-01T00:00:00Z",
//	      "path_glob": "ops/**"
//	    }
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "score": 0.0328,
//	      "kind": "entity",
//	      "title": "Deploy Runbook",
//	      "excerpt": "Rollback is a redeploy of the previous tag...",
//	      "slug": "deploy-runbook",
//	      "path": "ops/deploy.md",
//	      "entity_kind": "runbook"
//	    }
//	  ],
//	  "total": 7,
//	  "page": 1,
//	  "page_size": 10,
//	  "mode": "hybrid"
//	}
//
// When no embedding provider is configured, vector and hybrid queries fall
// back to text and the response carries "degraded": true.
//
// # Error Handling
//
// The server returns standard JSON-RPC error responses:
//
//	{
//	  "error": {
//	    "code": -32602,
//	    "message": "invalid path",
//	    "data": {"param": "path", "reason": "path must be absolute"}
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Project not indexed yet
//   - -32002: Sync already in progress for the project
//   - -32004: Empty query
//   - -32005: Malformed query syntax (response data carries a suggestion)
//   - -32006: Document not found
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "memograph": {
//	      "command": "/usr/local/bin/memograph",
//	      "args": ["serve"],
//	      "env": {
//	        "JINA_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
package mcp
