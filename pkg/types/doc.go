// Package types provides shared type definitions for the Memograph engine.
//
// This package defines domain types used across multiple components,
// including parsed documents, facts, links, chunks, and search results.
//
// # Core Types
//
// ParsedDocument is the output of the semantic parser:
//
//	doc := parser.Parse(text)
//	for _, fact := range doc.Facts {
//	    fmt.Printf("[%s] %s\n", fact.Category, fact.Content)
//	}
//
// Fact is an atomic categorized statement; Link is a typed directed edge
// whose target may not exist yet (a forward reference). Links carry only a
// target name, never an in-memory object reference, so cyclic graphs are
// represented without cyclic ownership.
//
// Chunk is a span of long-form text destined for embedding. Its content
// hash is the incremental-sync key: unchanged chunks skip re-embedding.
//
// # Errors
//
// ConflictError, QueryError, and DimensionError implement the engine's
// error taxonomy. Parse failures are not represented here because parsing
// is total: malformed input degrades to empty extraction.
package types
