package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, q querier, projectID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, q, projectID, queryVector, limit, filters)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, q, projectID, queryVector, limit, filters)
}

// searchVectorOptimized uses the sqlite-vec extension for SQL-based vector
// similarity search.
func searchVectorOptimized(ctx context.Context, q querier, projectID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	if limit <= 0 {
		return []VectorResult{}, nil
	}

	queryVectorBlob := serializeVector(queryVector)

	// sqlite-vec's vec_distance_cosine returns distance (lower is better);
	// converted to similarity so both backends report the same scale.
	query := `
		SELECT
			r.id as row_id,
			MAX(1.0 - vec_distance_cosine(em.vector, ?)) as similarity
		FROM search_rows r
		INNER JOIN embeddings em ON r.id = em.row_id
		WHERE r.project_id = ?
	`
	args := []interface{}{queryVectorBlob, projectID}

	query, args = applyRowFilters(query, args, filters)

	// A row may have several chunks; the best chunk scores the row
	query += " GROUP BY r.id ORDER BY similarity DESC LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var result VectorResult
		if err := rows.Scan(&result.RowID, &result.SimilarityScore); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// searchVectorFallback performs vector search using Go-based cosine
// similarity. Used when the sqlite-vec extension is not available.
func searchVectorFallback(ctx context.Context, q querier, projectID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	query := `
		SELECT
			r.id as row_id,
			em.vector
		FROM search_rows r
		INNER JOIN embeddings em ON r.id = em.row_id
		WHERE r.project_id = ?
	`
	args := []interface{}{projectID}

	query, args = applyRowFilters(query, args, filters)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)

	return buildVectorResults(candidates, limit), nil
}

// searchText performs BM25 full-text search using FTS5. The match expression
// must already be prepared for FTS5 syntax by the caller. Returns one page of
// results plus the total match count for pagination.
func searchText(ctx context.Context, q querier, projectID int64, match string, limit, offset int, filters *SearchFilters) ([]TextResult, int, error) {
	if match == "" {
		return nil, 0, fmt.Errorf("empty search query")
	}

	whereClause := `
		FROM search_rows_fts
		INNER JOIN search_rows r ON search_rows_fts.rowid = r.id
		WHERE search_rows_fts MATCH ?
		AND r.project_id = ?
	`
	args := []interface{}{match, projectID}
	whereClause, args = applyRowFilters(whereClause, args, filters)

	// Total before pagination so callers can report "N of M"
	var total int
	countQuery := "SELECT COUNT(*) " + whereClause
	if err := q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count FTS matches: %w", err)
	}

	// FTS5 rank is BM25 where lower is better
	pageQuery := "SELECT r.id as row_id, rank as score " + whereClause +
		" ORDER BY rank LIMIT ? OFFSET ?"
	pageArgs := append(args, limit, offset)

	rows, err := q.QueryContext(ctx, pageQuery, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0, limit)
	for rows.Next() {
		var result TextResult
		if err := rows.Scan(&result.RowID, &result.BM25Score); err != nil {
			return nil, 0, err
		}
		results = append(results, result)
	}

	return results, total, rows.Err()
}

// applyRowFilters adds WHERE clause filters against the search_rows alias r.
// Both search paths share the same filter surface.
func applyRowFilters(query string, args []interface{}, filters *SearchFilters) (string, []interface{}) {
	if filters == nil {
		return query, args
	}

	if len(filters.Kinds) > 0 {
		query += " AND r.row_kind IN ("
		for i, kind := range filters.Kinds {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, string(kind))
		}
		query += ")"
	}

	if len(filters.EntityKinds) > 0 {
		query += " AND r.entity_kind IN ("
		for i, kind := range filters.EntityKinds {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, kind)
		}
		query += ")"
	}

	if filters.After != nil {
		query += " AND r.created_at >= ?"
		args = append(args, *filters.After)
	}

	if filters.PathGlob != "" {
		query += " AND r.file_path GLOB ?"
		args = append(args, filters.PathGlob)
	}

	return query, args
}

// computeSimilarityScores processes rows and computes cosine similarity,
// keeping the best chunk score per search row.
func computeSimilarityScores(rows *sql.Rows, queryVector []float32) ([]candidate, error) {
	best := make(map[int64]float64, 1000)

	for rows.Next() {
		var rowID int64
		var vectorBlob []byte
		if err := rows.Scan(&rowID, &vectorBlob); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		similarity := cosineSimilarity(queryVector, vector)
		if prev, ok := best[rowID]; !ok || similarity > prev {
			best[rowID] = similarity
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(best))
	for rowID, score := range best {
		candidates = append(candidates, candidate{rowID: rowID, score: score})
	}
	return candidates, nil
}

// buildVectorResults creates VectorResult slice from candidates. A
// non-positive limit yields no results, matching the SQL-side path.
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	if limit <= 0 {
		return []VectorResult{}
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			RowID:           candidates[i].rowID,
			SimilarityScore: candidates[i].score,
		}
	}
	return results
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a search row with its similarity score
type candidate struct {
	rowID int64
	score float64
}

// sortCandidates sorts candidates by score in descending order, row id as a
// stable tiebreak.
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rowID < candidates[j].rowID
	})
}

// SerializeVector encodes a vector as a little-endian float32 blob, the
// storage format of the embeddings table.
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector decodes a little-endian float32 blob.
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity computes the cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
