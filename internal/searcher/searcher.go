package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/memograph/internal/embedder"
	"github.com/dshills/memograph/internal/storage"
	"github.com/dshills/memograph/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid SearchMode = "hybrid" // Text + vector with RRF
	SearchModeVector SearchMode = "vector" // Vector similarity only
	SearchModeText   SearchMode = "text"   // BM25 full-text only
)

const (
	// DefaultRRFConstant is the k in 1/(k + rank).
	DefaultRRFConstant = 60
	defaultPageSize    = 10
	maxPageSize        = 100
	queryCacheSize     = 1000
	excerptLimit       = 240
)

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query       string
	Mode        SearchMode
	Filters     *storage.SearchFilters
	ProjectID   int64
	Page        int // 1-based
	PageSize    int
	UseCache    bool
	CacheTTL    time.Duration
	RRFConstant float64
}

// SearchResponse contains one page of ranked results plus totals.
type SearchResponse struct {
	Results       []types.SearchResult
	Total         int // total matches available, not just this page
	Page          int
	PageSize      int
	SearchMode    SearchMode // effective mode after any degradation
	Degraded      bool       // true when a vector mode fell back to text
	Duration      time.Duration
	CacheHit      bool
	VectorResults int
	TextResults   int
}

// cacheEntry is a cached response with its expiration time.
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher coordinates text and vector retrieval over the persisted index.
// A nil embedder is valid: vector and hybrid requests degrade to text-only.
type Searcher struct {
	storage  storage.Storage
	embedder embedder.Embedder
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex
}

// New creates a Searcher. emb may be nil for text-only deployments.
func New(store storage.Storage, emb embedder.Embedder) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](queryCacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create query cache: %v", err))
	}
	return &Searcher{
		storage:  store,
		embedder: emb,
		cache:    cache,
	}
}

// CheckDimension verifies the configured embedder against vectors already in
// the index. A mismatch is fatal at startup: the caller must rebuild before
// serving vector queries.
func (s *Searcher) CheckDimension(ctx context.Context) error {
	if s.embedder == nil {
		return nil
	}
	stored, err := s.storage.StoredDimension(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stored dimension: %w", err)
	}
	if stored != 0 && stored != s.embedder.Dimension() {
		return &types.DimensionError{Configured: s.embedder.Dimension(), Stored: stored}
	}
	return nil
}

// Search runs one query and returns the requested page of ranked results.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	started := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	degraded := false
	if s.embedder == nil && req.Mode != SearchModeText {
		req.Mode = SearchModeText
		degraded = true
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(started)
			return cached, nil
		}
	}

	var response *SearchResponse
	var err error
	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req)
	case SearchModeText:
		response, err = s.textSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Page = req.Page
	response.PageSize = req.PageSize
	response.SearchMode = req.Mode
	response.Degraded = degraded
	response.Duration = time.Since(started)

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}
	return response, nil
}

// searchResult carries one leg of a concurrent hybrid query.
type searchResult struct {
	vectorResults []storage.VectorResult
	textResults   []storage.TextResult
	textTotal     int
	err           error
}

func (s *Searcher) runVectorSearch(ctx context.Context, req SearchRequest, limit int, out chan<- searchResult) {
	var res searchResult
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		res.err = fmt.Errorf("failed to generate query embedding: %w", err)
	} else {
		res.vectorResults, res.err = s.storage.SearchVector(ctx, req.ProjectID, emb.Vector, limit, req.Filters)
	}
	select {
	case out <- res:
	case <-ctx.Done():
	}
}

func (s *Searcher) runTextSearch(ctx context.Context, req SearchRequest, limit int, out chan<- searchResult) {
	var res searchResult
	res.textResults, res.textTotal, res.err = s.storage.SearchText(
		ctx, req.ProjectID, PrepareQuery(req.Query), limit, 0, req.Filters)
	select {
	case out <- res:
	case <-ctx.Done():
	}
}

// hybridSearch runs both legs concurrently and fuses them with RRF. One leg
// may fail without failing the query; both failing does.
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	offset := (req.Page - 1) * req.PageSize
	candidates := (offset + req.PageSize) * 2

	vectorChan := make(chan searchResult, 1)
	textChan := make(chan searchResult, 1)
	go s.runVectorSearch(ctx, req, candidates, vectorChan)
	go s.runTextSearch(ctx, req, candidates, textChan)

	var vectorRes, textRes searchResult
	var vectorDone, textDone bool
	for !vectorDone || !textDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case textRes = <-textChan:
			textDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if textRes.err != nil {
		if qerr := asQueryError(req.Query, textRes.err); qerr != nil {
			return nil, qerr
		}
	}
	if vectorRes.err != nil && textRes.err != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, text=%v", vectorRes.err, textRes.err)
	}

	fused := applyRRF(vectorRes.vectorResults, textRes.textResults, req.RRFConstant)
	total := len(fused)
	if textRes.textTotal > total {
		total = textRes.textTotal
	}

	page := paginate(fused, offset, req.PageSize)
	results, err := s.fetchResults(ctx, page)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:       results,
		Total:         total,
		VectorResults: len(vectorRes.vectorResults),
		TextResults:   len(textRes.textResults),
	}, nil
}

func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	offset := (req.Page - 1) * req.PageSize
	candidates := (offset + req.PageSize) * 2
	vectorResults, err := s.storage.SearchVector(ctx, req.ProjectID, emb.Vector, candidates, req.Filters)
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedResult, len(vectorResults))
	for i, vr := range vectorResults {
		ranked[i] = rankedResult{rowID: vr.RowID, score: vr.SimilarityScore, rank: i + 1}
	}

	results, err := s.fetchResults(ctx, paginate(ranked, offset, req.PageSize))
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:       results,
		Total:         len(vectorResults),
		VectorResults: len(vectorResults),
	}, nil
}

func (s *Searcher) textSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	offset := (req.Page - 1) * req.PageSize
	textResults, total, err := s.storage.SearchText(
		ctx, req.ProjectID, PrepareQuery(req.Query), req.PageSize, offset, req.Filters)
	if err != nil {
		if qerr := asQueryError(req.Query, err); qerr != nil {
			return nil, qerr
		}
		return nil, err
	}

	ranked := make([]rankedResult, len(textResults))
	for i, tr := range textResults {
		ranked[i] = rankedResult{rowID: tr.RowID, score: tr.BM25Score, rank: offset + i + 1}
	}

	results, err := s.fetchResults(ctx, ranked)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:     results,
		Total:       total,
		TextResults: len(textResults),
	}, nil
}

// rankedResult is a row with its relevance score and 1-based rank.
type rankedResult struct {
	rowID int64
	score float64
	rank  int
}

// applyRRF fuses the two ranked lists: fused(d) = sum over lists of
// 1/(k + rank(d)). A row present in only one list still scores with its
// single term.
func applyRRF(vectorResults []storage.VectorResult, textResults []storage.TextResult, k float64) []rankedResult {
	if k == 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[int64]float64)
	for rank, vr := range vectorResults {
		scores[vr.RowID] += 1.0 / (k + float64(rank+1))
	}
	for rank, tr := range textResults {
		scores[tr.RowID] += 1.0 / (k + float64(rank+1))
	}

	fused := make([]rankedResult, 0, len(scores))
	for rowID, score := range scores {
		fused = append(fused, rankedResult{rowID: rowID, score: score})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].rowID < fused[j].rowID
	})
	for i := range fused {
		fused[i].rank = i + 1
	}
	return fused
}

func paginate(ranked []rankedResult, offset, pageSize int) []rankedResult {
	if offset >= len(ranked) {
		return nil
	}
	end := offset + pageSize
	if end > len(ranked) {
		end = len(ranked)
	}
	return ranked[offset:end]
}

// fetchResults hydrates ranked rows into full results. A row that vanished
// under a concurrent re-index is skipped rather than failing the page.
func (s *Searcher) fetchResults(ctx context.Context, ranked []rankedResult) ([]types.SearchResult, error) {
	results := make([]types.SearchResult, 0, len(ranked))
	slugs := make(map[int64]string, len(ranked))

	for _, rr := range ranked {
		row, err := s.storage.GetSearchRow(ctx, rr.rowID)
		if err != nil {
			continue
		}

		slug, ok := slugs[row.EntityID]
		if !ok {
			if entity, err := s.storage.GetEntityByID(ctx, row.EntityID); err == nil {
				slug = entity.Slug
			}
			slugs[row.EntityID] = slug
		}

		results = append(results, types.SearchResult{
			RowID:      row.ID,
			Kind:       row.Kind,
			Rank:       rr.rank,
			Score:      rr.score,
			Title:      row.Title,
			Excerpt:    excerpt(row.Body),
			EntityID:   row.EntityID,
			EntitySlug: slug,
			FilePath:   row.FilePath,
			EntityKind: row.EntityKind,
			CreatedAt:  row.CreatedAt,
		})
	}
	return results, nil
}

func excerpt(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= excerptLimit {
		return body
	}
	cut := excerptLimit
	for cut > 0 && body[cut] != ' ' && body[cut] != '\n' {
		cut--
	}
	if cut == 0 {
		cut = excerptLimit
	}
	return body[:cut] + "..."
}

// asQueryError converts an FTS parse failure into a structured QueryError
// with a suggested corrected form. Store-level failures pass through nil.
func asQueryError(query string, err error) *types.QueryError {
	msg := err.Error()
	if !strings.Contains(msg, "fts5") && !strings.Contains(msg, "syntax error") &&
		!strings.Contains(msg, "malformed MATCH") {
		return nil
	}
	return &types.QueryError{
		Query:      query,
		Suggestion: quoteTerm(strings.TrimSpace(query)),
		Err:        err,
	}
}

func (s *Searcher) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return &types.QueryError{Query: req.Query, Err: fmt.Errorf("query cannot be empty")}
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}
	if req.Mode == "" {
		req.Mode = SearchModeHybrid
	}
	if req.RRFConstant == 0 {
		req.RRFConstant = DefaultRRFConstant
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = time.Hour
	}
	return nil
}

func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached query. Called after reindexing; the
// LRU does not support per-project filtering and a full purge is acceptable
// at that frequency.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

func copyResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	copy(dst.Results, src.Results)
	return &dst
}

// computeQueryHash builds a deterministic key over everything that changes
// the result page.
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	fmt.Fprintf(&data, "|%s|%d|%d|%d", req.Mode, req.ProjectID, req.Page, req.PageSize)

	if req.Filters != nil {
		data.WriteString("|filters:")
		for _, kind := range req.Filters.Kinds {
			data.WriteString(string(kind))
			data.WriteString(",")
		}
		data.WriteString("|")
		data.WriteString(strings.Join(req.Filters.EntityKinds, ","))
		data.WriteString("|")
		if req.Filters.After != nil {
			data.WriteString(req.Filters.After.UTC().Format(time.RFC3339Nano))
		}
		data.WriteString("|")
		data.WriteString(req.Filters.PathGlob)
	}
	return sha256.Sum256([]byte(data.String()))
}
