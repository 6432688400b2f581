package storage

import (
	"context"
	"crypto/sha256"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/memograph/pkg/types"
)

func TestSerializeDeserializeVector(t *testing.T) {
	original := []float32{0.5, -1.25, 3.75, 0}

	blob := SerializeVector(original)
	assert.Len(t, blob, len(original)*4)

	restored := DeserializeVector(blob)
	assert.Equal(t, original, restored)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
		{"dimension mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosineSimilarityScaleInvariant(t *testing.T) {
	a := []float32{0.3, 0.7, 0.1}
	scaled := []float32{0.6, 1.4, 0.2}

	got := CosineSimilarity(a, scaled)
	assert.InDelta(t, 1.0, got, 1e-6)
}

func TestSortCandidates(t *testing.T) {
	candidates := []candidate{
		{rowID: 1, score: 0.5},
		{rowID: 2, score: 0.9},
		{rowID: 3, score: 0.7},
		{rowID: 4, score: 0.7},
	}

	sortCandidates(candidates)

	assert.Equal(t, int64(2), candidates[0].rowID)
	// Equal scores break ties by row id
	assert.Equal(t, int64(3), candidates[1].rowID)
	assert.Equal(t, int64(4), candidates[2].rowID)
	assert.Equal(t, int64(1), candidates[3].rowID)
}

func setupVectorTestData(t *testing.T, storage *SQLiteStorage) (int64, []int64) {
	ctx := context.Background()
	project := makeTestProject(t, storage)
	entity := makeTestEntity(t, storage, project.ID, "Vectors", "vectors", "vectors.md")

	rows := []*SearchRow{
		{ProjectID: project.ID, Kind: types.RowEntity, RefID: entity.ID, Title: "alpha", Body: "alpha", FilePath: "vectors.md"},
		{ProjectID: project.ID, Kind: types.RowFact, RefID: 1, Title: "beta", Body: "beta", FilePath: "vectors.md"},
		{ProjectID: project.ID, Kind: types.RowFact, RefID: 2, Title: "gamma", Body: "gamma", FilePath: "vectors.md"},
	}
	require.NoError(t, storage.ReplaceSearchRows(ctx, entity.ID, rows))

	vectors := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 0, 1},
	}
	rowIDs := make([]int64, len(rows))
	for i, row := range rows {
		rowIDs[i] = row.ID
		require.NoError(t, storage.UpsertEmbedding(ctx, &Embedding{
			RowID:      row.ID,
			ChunkIndex: 0,
			ChunkHash:  sha256.Sum256([]byte(row.Title)),
			Vector:     SerializeVector(vectors[i]),
			Dimension:  3,
			Provider:   "local",
			Model:      "test",
		}))
	}
	return project.ID, rowIDs
}

func TestSearchVector(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	projectID, rowIDs := setupVectorTestData(t, storage)

	results, err := storage.SearchVector(context.Background(), projectID, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Exact match first, near match second
	assert.Equal(t, rowIDs[0], results[0].RowID)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)
	assert.Equal(t, rowIDs[1], results[1].RowID)
	assert.Greater(t, results[0].SimilarityScore, results[1].SimilarityScore)
}

func TestSearchVectorDimensionMismatchSkipped(t *testing.T) {
	if VectorExtensionAvailable {
		t.Skip("fallback-only behavior")
	}
	storage := setupTestDB(t)
	defer storage.Close()

	projectID, _ := setupVectorTestData(t, storage)

	// Query dimension differs from every stored vector
	results, err := storage.SearchVector(context.Background(), projectID, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchVectorZeroLimit(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	projectID, _ := setupVectorTestData(t, storage)

	results, err := storage.SearchVector(context.Background(), projectID, []float32{1, 0, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchVectorKindFilter(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	projectID, rowIDs := setupVectorTestData(t, storage)

	results, err := storage.SearchVector(context.Background(), projectID, []float32{1, 0, 0}, 10, &SearchFilters{
		Kinds: []types.RowKind{types.RowFact},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, rowIDs[0], r.RowID)
	}
}

func TestSearchTextEmptyQuery(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	project := makeTestProject(t, storage)

	_, _, err := storage.SearchText(context.Background(), project.ID, "", 10, 0, nil)
	assert.Error(t, err)
}

func TestBuildVectorResultsLimits(t *testing.T) {
	candidates := []candidate{
		{rowID: 1, score: 0.9},
		{rowID: 2, score: 0.8},
	}

	assert.Len(t, buildVectorResults(candidates, 1), 1)
	assert.Len(t, buildVectorResults(candidates, 10), 2)
	assert.Len(t, buildVectorResults(candidates, 0), 2)
	assert.Len(t, buildVectorResults(nil, 5), 0)
}

func TestVectorBlobPrecision(t *testing.T) {
	vector := []float32{math.MaxFloat32, -math.MaxFloat32, math.SmallestNonzeroFloat32}
	restored := DeserializeVector(SerializeVector(vector))
	assert.Equal(t, vector, restored)
}
