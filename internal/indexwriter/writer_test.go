package indexwriter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/memograph/internal/embedder"
	"github.com/dshills/memograph/internal/storage"
	"github.com/dshills/memograph/pkg/types"
)

// countingEmbedder records provider calls so tests can observe chunk-hash
// reuse.
type countingEmbedder struct {
	batchCalls int
	embedded   []string
	fail       bool
}

func (e *countingEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	resp, err := e.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (e *countingEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	e.batchCalls++
	if e.fail {
		return nil, errors.New("provider unavailable")
	}
	out := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		e.embedded = append(e.embedded, text)
		out[i] = &embedder.Embedding{
			Vector:    []float32{float32(len(text)), 1, 2, 3},
			Dimension: 4,
			Provider:  e.Provider(),
			Model:     e.Model(),
		}
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: out, Provider: e.Provider(), Model: e.Model()}, nil
}

func (e *countingEmbedder) Dimension() int   { return 4 }
func (e *countingEmbedder) Provider() string { return "counting" }
func (e *countingEmbedder) Model() string    { return "counting-model" }
func (e *countingEmbedder) Close() error     { return nil }

func setupEntity(t *testing.T) (*storage.SQLiteStorage, *storage.Entity) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	project := &storage.Project{Name: "notes", RootPath: "/tmp/notes", IndexVersion: "1.0.0"}
	require.NoError(t, store.CreateProject(ctx, project))

	entity := &storage.Entity{
		ProjectID:  project.ID,
		UUID:       "11111111-1111-1111-1111-111111111111",
		Title:      "Deploy Guide",
		Slug:       "deploy-guide",
		FilePath:   "ops/deploy-guide.md",
		EntityKind: "runbook",
	}
	require.NoError(t, store.CreateEntity(ctx, entity))
	return store, entity
}

func persistExtraction(t *testing.T, store storage.Storage, entity *storage.Entity) ([]*storage.Fact, []*storage.Link) {
	t.Helper()
	ctx := context.Background()

	facts := []*storage.Fact{
		{Category: "decision", Content: "use blue-green deploys", Tags: []string{"ops"}, Slug: "deploy-guide-decision-aaaa0000"},
		{Category: "note", Content: "rollback takes two minutes", Slug: "deploy-guide-note-bbbb0000"},
	}
	require.NoError(t, store.ReplaceFacts(ctx, entity.ID, facts))

	links := []*storage.Link{
		{TargetName: "Incident Playbook", Relation: "references"},
		{TargetName: "Oncall Rotation", Relation: "relates_to", Context: "paging"},
	}
	require.NoError(t, store.ReplaceLinks(ctx, entity.ID, links))
	return facts, links
}

func TestIndexFanOut(t *testing.T) {
	store, entity := setupEntity(t)
	ctx := context.Background()
	facts, links := persistExtraction(t, store, entity)

	doc := &types.ParsedDocument{
		Metadata: types.Metadata{Tags: []string{"ops", "deploy"}},
		Body:     "Blue-green deployment procedure for the API fleet.",
	}

	w := New(nil)
	require.NoError(t, w.Index(ctx, store, entity, doc, facts, links))

	rows, err := store.ListSearchRowsByEntity(ctx, entity.ID)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	byKind := map[types.RowKind][]*storage.SearchRow{}
	for _, row := range rows {
		byKind[row.Kind] = append(byKind[row.Kind], row)
	}

	require.Len(t, byKind[types.RowEntity], 1)
	entityRow := byKind[types.RowEntity][0]
	assert.Equal(t, "Deploy Guide", entityRow.Title)
	assert.Equal(t, entity.ID, entityRow.RefID)
	assert.Contains(t, entityRow.Body, "ops deploy")
	assert.Contains(t, entityRow.Body, "deploy guide") // slug segments
	assert.Contains(t, entityRow.Body, "Blue-green deployment")
	assert.Equal(t, "ops/deploy-guide.md", entityRow.FilePath)
	assert.Equal(t, "runbook", entityRow.EntityKind)

	require.Len(t, byKind[types.RowFact], 2)
	assert.Equal(t, "use blue-green deploys", byKind[types.RowFact][0].Title)
	assert.Contains(t, byKind[types.RowFact][0].Body, "ops")

	require.Len(t, byKind[types.RowLink], 2)
	assert.Equal(t, "references Incident Playbook", byKind[types.RowLink][0].Title)
	assert.Equal(t, "relates_to Oncall Rotation", byKind[types.RowLink][1].Title)
	assert.Equal(t, "paging", byKind[types.RowLink][1].Body)
}

func TestIndexReplacesRowSet(t *testing.T) {
	store, entity := setupEntity(t)
	ctx := context.Background()
	facts, links := persistExtraction(t, store, entity)

	w := New(nil)
	doc := &types.ParsedDocument{Body: "first version"}
	require.NoError(t, w.Index(ctx, store, entity, doc, facts, links))

	// Re-extraction with fewer facts replaces the whole set
	smaller := []*storage.Fact{
		{Category: "note", Content: "only fact now", Slug: "deploy-guide-note-cccc0000"},
	}
	require.NoError(t, store.ReplaceFacts(ctx, entity.ID, smaller))
	require.NoError(t, store.ReplaceLinks(ctx, entity.ID, nil))
	require.NoError(t, w.Index(ctx, store, entity, &types.ParsedDocument{Body: "second version"}, smaller, nil))

	rows, err := store.ListSearchRowsByEntity(ctx, entity.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotEqual(t, "use blue-green deploys", row.Title)
	}
}

func TestIndexSkipsUnpersistedLink(t *testing.T) {
	store, entity := setupEntity(t)
	ctx := context.Background()

	// ID zero marks a duplicate edge the store refused to persist
	links := []*storage.Link{{ID: 0, TargetName: "Ghost", Relation: "references"}}

	w := New(nil)
	require.NoError(t, w.Index(ctx, store, entity, &types.ParsedDocument{}, nil, links))

	rows, err := store.ListSearchRowsByEntity(ctx, entity.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.RowEntity, rows[0].Kind)
}

func TestIndexWritesEmbeddings(t *testing.T) {
	store, entity := setupEntity(t)
	ctx := context.Background()
	facts, links := persistExtraction(t, store, entity)

	emb := &countingEmbedder{}
	w := New(emb)
	doc := &types.ParsedDocument{Body: "Deployment procedure."}
	require.NoError(t, w.Index(ctx, store, entity, doc, facts, links))

	stored, err := store.ListEmbeddingsByEntity(ctx, entity.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored)
	for _, e := range stored {
		assert.Equal(t, 4, e.Dimension)
		assert.Equal(t, "counting", e.Provider)
		assert.NotZero(t, e.RowID)
		assert.NotEmpty(t, e.Vector)
	}
	assert.Equal(t, 1, emb.batchCalls)
}

func TestIndexReusesUnchangedChunks(t *testing.T) {
	store, entity := setupEntity(t)
	ctx := context.Background()
	facts, links := persistExtraction(t, store, entity)

	emb := &countingEmbedder{}
	w := New(emb)
	doc := &types.ParsedDocument{Body: "Deployment procedure."}

	require.NoError(t, w.Index(ctx, store, entity, doc, facts, links))
	first, err := store.ListEmbeddingsByEntity(ctx, entity.ID)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	callsAfterFirst := emb.batchCalls

	// Unchanged content: every chunk hash matches, provider stays idle
	require.NoError(t, store.ReplaceFacts(ctx, entity.ID, facts))
	require.NoError(t, store.ReplaceLinks(ctx, entity.ID, links))
	require.NoError(t, w.Index(ctx, store, entity, doc, facts, links))

	assert.Equal(t, callsAfterFirst, emb.batchCalls)

	second, err := store.ListEmbeddingsByEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.Len(t, second, len(first))
}

func TestIndexEmbedsOnlyNewChunks(t *testing.T) {
	store, entity := setupEntity(t)
	ctx := context.Background()
	facts, links := persistExtraction(t, store, entity)

	emb := &countingEmbedder{}
	w := New(emb)
	require.NoError(t, w.Index(ctx, store, entity, &types.ParsedDocument{Body: "original body"}, facts, links))

	embeddedBefore := len(emb.embedded)
	require.NoError(t, store.ReplaceFacts(ctx, entity.ID, facts))
	require.NoError(t, store.ReplaceLinks(ctx, entity.ID, links))
	require.NoError(t, w.Index(ctx, store, entity, &types.ParsedDocument{Body: "edited body"}, facts, links))

	newTexts := emb.embedded[embeddedBefore:]
	require.NotEmpty(t, newTexts)
	for _, text := range newTexts {
		assert.Contains(t, text, "edited body")
	}
}

func TestIndexProviderFailureKeepsTextRows(t *testing.T) {
	store, entity := setupEntity(t)
	ctx := context.Background()
	facts, links := persistExtraction(t, store, entity)

	w := New(&countingEmbedder{fail: true})
	require.NoError(t, w.Index(ctx, store, entity, &types.ParsedDocument{Body: "body"}, facts, links))

	rows, err := store.ListSearchRowsByEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 5)

	stored, err := store.ListEmbeddingsByEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestIndexNilEmbedderSkipsEmbeddings(t *testing.T) {
	store, entity := setupEntity(t)
	ctx := context.Background()

	w := New(nil)
	require.NoError(t, w.Index(ctx, store, entity, &types.ParsedDocument{Body: "text only"}, nil, nil))

	stored, err := store.ListEmbeddingsByEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
