package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/dshills/memograph/internal/embedder"
	"github.com/dshills/memograph/internal/indexwriter"
	"github.com/dshills/memograph/internal/reconciler"
	"github.com/dshills/memograph/internal/searcher"
	"github.com/dshills/memograph/internal/storage"
)

// topicEmbedder assigns a 4-dimension vector per topic keyword, so related
// texts land close together without a real provider.
type topicEmbedder struct{}

func (topicEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "rollback"), strings.Contains(lower, "revert"):
		return []float32{0, 1, 0, 0}
	case strings.Contains(lower, "onboarding"):
		return []float32{0, 0, 1, 0}
	default:
		return []float32{0, 0, 0, 1}
	}
}

func (e topicEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	return &embedder.Embedding{
		Vector:    e.vector(req.Text),
		Dimension: 4,
		Provider:  e.Provider(),
		Model:     e.Model(),
	}, nil
}

func (e topicEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	out := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, _ := e.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		out[i] = emb
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: out, Provider: e.Provider(), Model: e.Model()}, nil
}

func (topicEmbedder) Dimension() int   { return 4 }
func (topicEmbedder) Provider() string { return "topic" }
func (topicEmbedder) Model() string    { return "topic-fixture" }
func (topicEmbedder) Close() error     { return nil }

// SyncSearchTestSuite drives the full pipeline: files on disk through the
// reconciler and index writer, then out through the searcher.
type SyncSearchTestSuite struct {
	suite.Suite
	ctx        context.Context
	store      *storage.SQLiteStorage
	reconciler *reconciler.Reconciler
	searcher   *searcher.Searcher
	dir        string
}

func (s *SyncSearchTestSuite) SetupTest() {
	s.ctx = context.Background()

	store, err := storage.NewSQLiteStorage(":memory:")
	s.Require().NoError(err)
	s.store = store

	emb := topicEmbedder{}
	s.reconciler = reconciler.New(store, indexwriter.New(emb))
	s.searcher = searcher.New(store, emb)
	s.dir = s.T().TempDir()
}

func (s *SyncSearchTestSuite) TearDownTest() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *SyncSearchTestSuite) write(rel, content string) {
	path := filepath.Join(s.dir, filepath.FromSlash(rel))
	s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0o755))
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
}

func (s *SyncSearchTestSuite) sync(project string) *reconciler.SyncReport {
	report, err := s.reconciler.Sync(s.ctx, project, s.dir)
	s.Require().NoError(err)
	s.Require().Empty(report.Errors)
	return report
}

func (s *SyncSearchTestSuite) project(name string) *storage.Project {
	project, err := s.store.GetProject(s.ctx, name)
	s.Require().NoError(err)
	return project
}

// A link written before its target document exists resolves within the same
// pass, regardless of scan order.
func (s *SyncSearchTestSuite) TestForwardReferenceResolvesInOnePass() {
	// "a-" sorts before "z-": the link source is scanned first
	s.write("a-ana.md", "---\ntitle: Ana Flores\nkind: person\n---\n"+
		"Runs deploys. [[owns::Deploy Runbook]]\n")
	s.write("z-deploy.md", "---\ntitle: Deploy Runbook\nkind: runbook\n---\nSteps.\n")

	report := s.sync("notes")
	s.Equal(2, report.EntitiesCreated)
	s.Equal(1, report.LinksResolved)
	s.Equal(0, report.UnresolvedLinks)

	project := s.project("notes")
	source, err := s.store.GetEntityByPath(s.ctx, project.ID, "a-ana.md")
	s.Require().NoError(err)
	target, err := s.store.GetEntityByPath(s.ctx, project.ID, "z-deploy.md")
	s.Require().NoError(err)

	links, err := s.store.ListLinksBySource(s.ctx, source.ID)
	s.Require().NoError(err)
	s.Require().Len(links, 1)
	s.Require().NotNil(links[0].TargetID)
	s.Equal(target.ID, *links[0].TargetID)
	s.Equal("owns", links[0].Relation)
}

// A link whose target never appears stays pending and resolves on a later
// pass once the target document is created.
func (s *SyncSearchTestSuite) TestPendingLinkResolvesOnLaterPass() {
	s.write("ana.md", "---\ntitle: Ana Flores\n---\nSee [[owns::Deploy Runbook]].\n")

	report := s.sync("notes")
	s.Equal(0, report.LinksResolved)
	s.Equal(1, report.UnresolvedLinks)

	s.write("deploy.md", "---\ntitle: Deploy Runbook\n---\nSteps.\n")
	report = s.sync("notes")
	s.Equal(1, report.EntitiesCreated)
	s.Equal(0, report.UnresolvedLinks)

	project := s.project("notes")
	count, err := s.store.CountUnresolvedLinks(s.ctx, project.ID)
	s.Require().NoError(err)
	s.Equal(0, count)
}

// A second pass over an unchanged tree writes nothing.
func (s *SyncSearchTestSuite) TestUnchangedTreeIsNoOp() {
	s.write("a.md", "# Doc A\nalpha\n")
	s.write("b.md", "# Doc B\nbeta\n")
	s.sync("notes")

	report := s.sync("notes")
	s.Equal(0, report.EntitiesCreated)
	s.Equal(0, report.EntitiesUpdated)
	s.Equal(0, report.EntitiesDeleted)
	s.Equal(0, report.Moved)
	s.Equal(2, report.Unchanged)
}

// Renaming a file keeps the entity's identity: same ID, same slug, and
// incoming links still point at it.
func (s *SyncSearchTestSuite) TestRenamePreservesSlugAndLinks() {
	s.write("ana.md", "---\ntitle: Ana Flores\n---\n[[owns::Deploy Runbook]]\n")
	s.write("deploy.md", "---\ntitle: Deploy Runbook\n---\nstable content here\n")
	s.sync("notes")

	project := s.project("notes")
	before, err := s.store.GetEntityByPath(s.ctx, project.ID, "deploy.md")
	s.Require().NoError(err)

	oldPath := filepath.Join(s.dir, "deploy.md")
	newPath := filepath.Join(s.dir, "ops", "deploy.md")
	s.Require().NoError(os.MkdirAll(filepath.Dir(newPath), 0o755))
	s.Require().NoError(os.Rename(oldPath, newPath))

	report := s.sync("notes")
	s.Equal(1, report.Moved)
	s.Equal(0, report.EntitiesCreated)
	s.Equal(0, report.EntitiesDeleted)

	after, err := s.store.GetEntityByPath(s.ctx, project.ID, "ops/deploy.md")
	s.Require().NoError(err)
	s.Equal(before.ID, after.ID)
	s.Equal(before.Slug, after.Slug)
	s.Equal(before.UUID, after.UUID)

	source, err := s.store.GetEntityByPath(s.ctx, project.ID, "ana.md")
	s.Require().NoError(err)
	links, err := s.store.ListLinksBySource(s.ctx, source.ID)
	s.Require().NoError(err)
	s.Require().Len(links, 1)
	s.Require().NotNil(links[0].TargetID)
	s.Equal(after.ID, *links[0].TargetID)
}

// Deleting a file removes its rows from the index.
func (s *SyncSearchTestSuite) TestDeleteRemovesFromIndex() {
	s.write("gone.md", "---\ntitle: Ephemeral Note\n---\nshortlived\n")
	s.sync("notes")

	project := s.project("notes")
	resp, err := s.searcher.Search(s.ctx, searcher.SearchRequest{
		Query: "shortlived", Mode: searcher.SearchModeText, ProjectID: project.ID,
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Results)

	s.Require().NoError(os.Remove(filepath.Join(s.dir, "gone.md")))
	report := s.sync("notes")
	s.Equal(1, report.EntitiesDeleted)

	resp, err = s.searcher.Search(s.ctx, searcher.SearchRequest{
		Query: "shortlived", Mode: searcher.SearchModeText, ProjectID: project.ID,
	})
	s.Require().NoError(err)
	s.Empty(resp.Results)
}

// Hybrid search surfaces documents found by either leg: one matches the
// query text, another only matches in vector space.
func (s *SyncSearchTestSuite) TestHybridSurfacesBothLegs() {
	s.write("drill.md", "---\ntitle: Incident Drill\n---\n"+
		"Practice the rollback procedure quarterly.\n")
	// "revert" shares the rollback topic vector but not the query keyword,
	// so this document is reachable only through the vector leg
	s.write("memo.md", "---\ntitle: Release Memo\n---\n"+
		"How to revert a bad release.\n")
	s.sync("notes")

	project := s.project("notes")
	resp, err := s.searcher.Search(s.ctx, searcher.SearchRequest{
		Query: "rollback", Mode: searcher.SearchModeHybrid, ProjectID: project.ID,
	})
	s.Require().NoError(err)
	s.Equal(searcher.SearchModeHybrid, resp.SearchMode)
	s.False(resp.Degraded)
	s.Require().NotEmpty(resp.Results)

	slugs := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		slugs = append(slugs, r.EntitySlug)
	}
	s.Contains(slugs, "incident-drill")
	s.Contains(slugs, "release-memo")

	// Found by both legs, the drill fuses ahead of the vector-only memo
	s.Equal("incident-drill", resp.Results[0].EntitySlug)
}

// The same document name in two projects yields the same slug in each, and
// search stays scoped to one project.
func (s *SyncSearchTestSuite) TestCrossProjectSlugIsolation() {
	s.write("deploy.md", "---\ntitle: Deploy Runbook\n---\nproject one text\n")
	s.sync("alpha")

	other := s.T().TempDir()
	s.Require().NoError(os.WriteFile(filepath.Join(other, "deploy.md"),
		[]byte("---\ntitle: Deploy Runbook\n---\nproject two text\n"), 0o644))
	_, err := s.reconciler.Sync(s.ctx, "beta", other)
	s.Require().NoError(err)

	alpha := s.project("alpha")
	beta := s.project("beta")

	a, err := s.store.GetEntityBySlug(s.ctx, alpha.ID, "deploy-runbook")
	s.Require().NoError(err)
	b, err := s.store.GetEntityBySlug(s.ctx, beta.ID, "deploy-runbook")
	s.Require().NoError(err)
	s.NotEqual(a.ID, b.ID)

	resp, err := s.searcher.Search(s.ctx, searcher.SearchRequest{
		Query: "project", Mode: searcher.SearchModeText, ProjectID: alpha.ID,
	})
	s.Require().NoError(err)
	s.Require().Len(resp.Results, 1)
	s.Contains(resp.Results[0].Excerpt, "project one")
}

// Modifying a document replaces its rows and embeddings without touching
// other documents.
func (s *SyncSearchTestSuite) TestModificationReplacesRows() {
	s.write("a.md", "---\ntitle: Doc A\n---\nfirst revision wording\n")
	s.write("b.md", "---\ntitle: Doc B\n---\nuntouched neighbor\n")
	s.sync("notes")

	s.write("a.md", "---\ntitle: Doc A\n---\nsecond revision wording entirely\n")
	report := s.sync("notes")
	s.Equal(1, report.EntitiesUpdated)
	s.Equal(1, report.Unchanged)

	project := s.project("notes")
	resp, err := s.searcher.Search(s.ctx, searcher.SearchRequest{
		Query: "first revision", Mode: searcher.SearchModeText, ProjectID: project.ID,
	})
	s.Require().NoError(err)
	s.Empty(resp.Results)

	resp, err = s.searcher.Search(s.ctx, searcher.SearchRequest{
		Query: "second revision", Mode: searcher.SearchModeText, ProjectID: project.ID,
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Results)
	s.Equal("doc-a", resp.Results[0].EntitySlug)
}

func TestSyncSearchSuite(t *testing.T) {
	suite.Run(t, new(SyncSearchTestSuite))
}
