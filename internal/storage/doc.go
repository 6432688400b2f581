// Package storage provides SQLite-based persistence for the entity graph
// and its search projection.
//
// The storage layer manages:
//   - Project metadata
//   - Entities (one per source document) with content hashes and mtimes
//   - Facts and typed links, including unresolved forward references
//   - Denormalized search rows with an FTS5 index
//   - Vector embeddings keyed by chunk content hash
//
// # Database Schema
//
// Tables:
//   - projects: Collection metadata (name, root path, sync totals)
//   - entities: Documents with uuid, slug, file path, content hash, mtime
//   - facts: Atomic observations, replaced wholesale per sync
//   - links: Directed edges; target_id stays NULL while unresolved
//   - search_rows: Retrieval projection (entity/fact/link rows)
//   - search_rows_fts: FTS5 full-text index over the projection
//   - embeddings: One vector per chunk of a row's body
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.memograph/indices/notes.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// # Transactions
//
// Reconciliation applies each document inside a transaction so a crash
// leaves either the old or the new version, never a blend:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	tx.UpdateEntity(ctx, entity)
//	tx.ReplaceFacts(ctx, entity.ID, facts)
//	tx.ReplaceLinks(ctx, entity.ID, links)
//	tx.ReplaceSearchRows(ctx, entity.ID, rows)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Link Resolution
//
// Links whose target document does not exist yet are stored with a NULL
// target_id and the literal target name. ListUnresolvedLinks and ResolveLink
// support the reconciler's second resolution pass; deleting an entity sets
// referring links back to unresolved via ON DELETE SET NULL.
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Includes sqlite-vec extension for fast vector operations
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec,fts5"
//
// Pure Go Build (purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - Pure Go vector operations (slower)
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build -tags "purego"
package storage
