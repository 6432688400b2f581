package indexwriter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/memograph/internal/chunker"
	"github.com/dshills/memograph/internal/embedder"
	"github.com/dshills/memograph/internal/storage"
	"github.com/dshills/memograph/pkg/types"
)

// Writer projects one entity into its search rows and embeddings. A nil
// embedder produces a text-only index; queries then degrade to exact-text
// mode.
type Writer struct {
	embedder embedder.Embedder
	logger   *slog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

// New creates a Writer. emb may be nil for text-only indexing.
func New(emb embedder.Embedder, opts ...Option) *Writer {
	w := &Writer{
		embedder: emb,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Index replaces every search row owned by the entity as one atomic set and
// writes chunk embeddings for the new rows. Embeddings whose chunk hash
// matches a previously stored vector are reinserted without calling the
// provider; only genuinely new chunks are embedded.
func (w *Writer) Index(ctx context.Context, store storage.Storage, entity *storage.Entity, doc *types.ParsedDocument, facts []*storage.Fact, links []*storage.Link) error {
	// Stored vectors must be captured before row replacement cascades them
	// away.
	reusable, err := w.collectReusable(ctx, store, entity.ID)
	if err != nil {
		return err
	}

	rows := buildRows(entity, doc, facts, links)
	if err := store.ReplaceSearchRows(ctx, entity.ID, rows); err != nil {
		return fmt.Errorf("failed to replace search rows: %w", err)
	}

	if w.embedder == nil {
		return nil
	}
	return w.writeEmbeddings(ctx, store, entity, rows, reusable)
}

// buildRows fans the entity out into 1 entity row + N fact rows + M link
// rows. Link rows are written even while the target is unresolved, so the
// edge is searchable by relation and target name.
func buildRows(entity *storage.Entity, doc *types.ParsedDocument, facts []*storage.Fact, links []*storage.Link) []*storage.SearchRow {
	rows := make([]*storage.SearchRow, 0, 1+len(facts)+len(links))

	rows = append(rows, &storage.SearchRow{
		ProjectID:  entity.ProjectID,
		Kind:       types.RowEntity,
		RefID:      entity.ID,
		Title:      entity.Title,
		Body:       entityBody(entity, doc),
		FilePath:   entity.FilePath,
		EntityKind: entity.EntityKind,
	})

	for _, fact := range facts {
		rows = append(rows, &storage.SearchRow{
			ProjectID:  entity.ProjectID,
			Kind:       types.RowFact,
			RefID:      fact.ID,
			Title:      fact.Content,
			Body:       factBody(fact),
			FilePath:   entity.FilePath,
			EntityKind: entity.EntityKind,
		})
	}

	for _, link := range links {
		if link.ID == 0 {
			// Duplicate edge skipped at persistence time
			continue
		}
		rows = append(rows, &storage.SearchRow{
			ProjectID:  entity.ProjectID,
			Kind:       types.RowLink,
			RefID:      link.ID,
			Title:      link.Relation + " " + link.TargetName,
			Body:       link.Context,
			FilePath:   entity.FilePath,
			EntityKind: entity.EntityKind,
		})
	}

	return rows
}

// entityBody aggregates tags, slug path segments, and the document body into
// the entity row's long-form text, so tag and path-fragment search hit the
// document row.
func entityBody(entity *storage.Entity, doc *types.ParsedDocument) string {
	var parts []string
	if doc != nil && len(doc.Metadata.Tags) > 0 {
		parts = append(parts, strings.Join(doc.Metadata.Tags, " "))
	}
	parts = append(parts, strings.ReplaceAll(entity.Slug, "-", " "))
	if doc != nil && strings.TrimSpace(doc.Body) != "" {
		parts = append(parts, doc.Body)
	}
	return strings.Join(parts, "\n\n")
}

func factBody(fact *storage.Fact) string {
	var parts []string
	if len(fact.Tags) > 0 {
		parts = append(parts, strings.Join(fact.Tags, " "))
	}
	if fact.Context != "" {
		parts = append(parts, fact.Context)
	}
	return strings.Join(parts, "\n")
}

// collectReusable snapshots the entity's stored embeddings keyed by chunk
// hash. Vectors from a different provider or dimension are not reusable.
func (w *Writer) collectReusable(ctx context.Context, store storage.Storage, entityID int64) (map[[32]byte]*storage.Embedding, error) {
	if w.embedder == nil {
		return nil, nil
	}

	stored, err := store.ListEmbeddingsByEntity(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored embeddings: %w", err)
	}

	reusable := make(map[[32]byte]*storage.Embedding, len(stored))
	for _, emb := range stored {
		if emb.Provider != w.embedder.Provider() || emb.Dimension != w.embedder.Dimension() {
			continue
		}
		reusable[emb.ChunkHash] = emb
	}
	return reusable, nil
}

// pendingChunk is a chunk with no reusable stored vector.
type pendingChunk struct {
	chunk types.Chunk
}

// writeEmbeddings chunks every row's text and upserts one vector per chunk,
// reusing stored vectors on hash match and batching provider calls for the
// rest. A provider failure downgrades the document to text-only rows rather
// than failing the write.
func (w *Writer) writeEmbeddings(ctx context.Context, store storage.Storage, entity *storage.Entity, rows []*storage.SearchRow, reusable map[[32]byte]*storage.Embedding) error {
	var pending []pendingChunk
	reused := 0

	for _, row := range rows {
		text := strings.TrimSpace(row.Title + "\n" + row.Body)
		if text == "" {
			continue
		}
		for _, chunk := range chunker.Chunk(text) {
			chunk.RowID = row.ID
			if prev, ok := reusable[chunk.ContentHash]; ok {
				err := store.UpsertEmbedding(ctx, &storage.Embedding{
					RowID:      chunk.RowID,
					ChunkIndex: chunk.Index,
					ChunkHash:  chunk.ContentHash,
					Vector:     prev.Vector,
					Dimension:  prev.Dimension,
					Provider:   prev.Provider,
					Model:      prev.Model,
				})
				if err != nil {
					return fmt.Errorf("failed to reuse embedding: %w", err)
				}
				reused++
				continue
			}
			pending = append(pending, pendingChunk{chunk: chunk})
		}
	}

	if len(pending) == 0 {
		return nil
	}

	for start := 0; start < len(pending); start += embedder.DefaultBatchSize {
		end := start + embedder.DefaultBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := w.embedBatch(ctx, store, entity, pending[start:end]); err != nil {
			return err
		}
	}

	w.logger.Debug("embeddings written",
		"path", entity.FilePath,
		"reused", reused,
		"embedded", len(pending),
	)
	return nil
}

func (w *Writer) embedBatch(ctx context.Context, store storage.Storage, entity *storage.Entity, batch []pendingChunk) error {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.chunk.Content
	}

	resp, err := w.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Text rows are already written; the next content change retries
		w.logger.Warn("embedding provider failed, rows indexed text-only",
			"path", entity.FilePath, "error", err)
		return nil
	}

	for i, emb := range resp.Embeddings {
		chunk := batch[i].chunk
		err := store.UpsertEmbedding(ctx, &storage.Embedding{
			RowID:      chunk.RowID,
			ChunkIndex: chunk.Index,
			ChunkHash:  chunk.ContentHash,
			Vector:     storage.SerializeVector(emb.Vector),
			Dimension:  emb.Dimension,
			Provider:   resp.Provider,
			Model:      resp.Model,
		})
		if err != nil {
			return fmt.Errorf("failed to store embedding: %w", err)
		}
	}
	return nil
}
