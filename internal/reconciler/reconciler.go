package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/memograph/internal/parser"
	"github.com/dshills/memograph/internal/scanner"
	"github.com/dshills/memograph/internal/storage"
	"github.com/dshills/memograph/pkg/types"
)

const (
	// maxSlugAttempts bounds optimistic slug-collision retries.
	maxSlugAttempts = 5
	// failureSetSize bounds the recent-failure set; eviction is oldest-first.
	failureSetSize = 128
	// indexVersion is stamped on projects at creation.
	indexVersion = "1.0.0"
)

// Indexer writes the search projection for one entity. Implemented by the
// index writer; injected so the reconciler stays testable without embeddings.
type Indexer interface {
	Index(ctx context.Context, store storage.Storage, entity *storage.Entity, doc *types.ParsedDocument, facts []*storage.Fact, links []*storage.Link) error
}

// SyncReport summarizes one reconciliation pass.
type SyncReport struct {
	Project         string        `json:"project"`
	EntitiesCreated int           `json:"entities_created"`
	EntitiesUpdated int           `json:"entities_updated"`
	EntitiesDeleted int           `json:"entities_deleted"`
	Moved           int           `json:"moved"`
	Unchanged       int           `json:"unchanged"`
	LinksResolved   int           `json:"links_resolved"`
	UnresolvedLinks int           `json:"unresolved_links"`
	Errors          []string      `json:"errors,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Reconciler applies detected filesystem changes to the entity graph. It is
// the store's only writer.
type Reconciler struct {
	store    storage.Storage
	indexer  Indexer
	locks    *lockRegistry
	failures *lru.Cache[string, int]
	workers  int
	logger   *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithWorkers sets the scanner's parallel hashing cap.
func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// New creates a Reconciler writing through the given store and indexer.
func New(store storage.Storage, indexer Indexer, opts ...Option) *Reconciler {
	failures, _ := lru.New[string, int](failureSetSize)
	r := &Reconciler{
		store:    store,
		indexer:  indexer,
		locks:    newLockRegistry(),
		failures: failures,
		workers:  scanner.DefaultWorkers,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sync runs one full reconciliation pass for the named project rooted at
// rootPath, creating the project on first sight. At most one pass runs per
// project at a time; a concurrent trigger gets ErrSyncInProgress.
func (r *Reconciler) Sync(ctx context.Context, projectName, rootPath string) (*SyncReport, error) {
	started := time.Now()

	project, err := r.ensureProject(ctx, projectName, rootPath)
	if err != nil {
		return nil, err
	}

	lock := r.locks.lockFor(project.ID)
	if !lock.TryAcquire() {
		return nil, types.ErrSyncInProgress
	}
	defer lock.Release()

	entities, err := r.store.ListEntities(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	changes, err := scanner.New(project.RootPath, scanner.WithWorkers(r.workers)).Detect(ctx, entities)
	if err != nil {
		return nil, fmt.Errorf("change detection failed: %w", err)
	}

	report := &SyncReport{Project: projectName, Unchanged: changes.Unchanged}
	for _, path := range changes.Skipped {
		r.recordFailure(report, path, fmt.Errorf("unreadable, skipped this pass"))
	}
	r.apply(ctx, project, changes, report)

	resolved, err := r.resolveLinks(ctx, project.ID)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("link resolution: %v", err))
	}
	report.LinksResolved = resolved

	if report.UnresolvedLinks, err = r.store.CountUnresolvedLinks(ctx, project.ID); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("unresolved count: %v", err))
	}

	if err := r.updateProjectTotals(ctx, project); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("project totals: %v", err))
	}

	report.Duration = time.Since(started)
	r.logger.Info("sync complete",
		"project", projectName,
		"created", report.EntitiesCreated,
		"updated", report.EntitiesUpdated,
		"deleted", report.EntitiesDeleted,
		"moved", report.Moved,
		"unresolved_links", report.UnresolvedLinks,
		"errors", len(report.Errors),
		"duration", report.Duration,
	)
	return report, nil
}

// apply walks the change set in the fixed order moves, deletes, creates,
// modifications. Each document commits independently so a pass can be
// interrupted between documents without corrupting state.
func (r *Reconciler) apply(ctx context.Context, project *storage.Project, changes *scanner.ChangeSet, report *SyncReport) {
	for _, move := range changes.Moved {
		if err := r.applyMove(ctx, project, move); err != nil {
			r.recordFailure(report, move.Stat.Path, err)
			continue
		}
		r.clearFailure(move.Stat.Path)
		report.Moved++
	}

	for _, entity := range changes.Deleted {
		if err := r.store.DeleteEntity(ctx, entity.ID); err != nil {
			r.recordFailure(report, entity.FilePath, err)
			continue
		}
		report.EntitiesDeleted++
	}

	for _, stat := range changes.Created {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("pass interrupted: %v", ctx.Err()))
			return
		}
		if err := r.applyCreate(ctx, project, stat); err != nil {
			r.recordFailure(report, stat.Path, err)
			continue
		}
		r.clearFailure(stat.Path)
		report.EntitiesCreated++
	}

	for _, mod := range changes.Modified {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("pass interrupted: %v", ctx.Err()))
			return
		}
		if err := r.applyModify(ctx, project, mod); err != nil {
			r.recordFailure(report, mod.Stat.Path, err)
			continue
		}
		r.clearFailure(mod.Stat.Path)
		report.EntitiesUpdated++
	}

	for _, touch := range changes.Touched {
		touch.Entity.ModTime = touch.Stat.ModTime
		touch.Entity.SizeBytes = touch.Stat.Size
		if err := r.store.UpdateEntity(ctx, touch.Entity); err != nil {
			r.recordFailure(report, touch.Entity.FilePath, err)
		}
	}
}

// applyMove updates the entity's path, preserving identifier and slug, and
// rewrites its search rows so path search reflects the new location. The
// content is unchanged so re-extraction yields the same facts and links.
func (r *Reconciler) applyMove(ctx context.Context, project *storage.Project, move scanner.Move) error {
	doc, err := r.parseFile(project, move.Stat.Path)
	if err != nil {
		return err
	}

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	entity := move.Entity
	if err := tx.UpdateEntityPath(ctx, entity.ID, move.Stat.Path); err != nil {
		return err
	}
	entity.FilePath = move.Stat.Path
	entity.ModTime = move.Stat.ModTime
	entity.SizeBytes = move.Stat.Size
	if err := tx.UpdateEntity(ctx, entity); err != nil {
		return err
	}

	if err := r.writeExtraction(ctx, tx, project, entity, doc); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Reconciler) applyCreate(ctx context.Context, project *storage.Project, stat scanner.FileStat) error {
	doc, err := r.parseFile(project, stat.Path)
	if err != nil {
		return err
	}

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	title := documentTitle(doc, stat.Path)
	entity := &storage.Entity{
		ProjectID:   project.ID,
		UUID:        uuid.NewString(),
		Title:       title,
		FilePath:    stat.Path,
		EntityKind:  entityKind(doc),
		ContentHash: stat.Hash,
		ModTime:     stat.ModTime,
		SizeBytes:   stat.Size,
	}
	if err := r.createWithSlugRetry(ctx, tx, entity, slugBase(doc, title)); err != nil {
		return err
	}

	if err := r.writeExtraction(ctx, tx, project, entity, doc); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Reconciler) applyModify(ctx context.Context, project *storage.Project, mod scanner.Modification) error {
	doc, err := r.parseFile(project, mod.Stat.Path)
	if err != nil {
		return err
	}

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Slug is assigned once; title changes never recompute it
	entity := mod.Entity
	entity.Title = documentTitle(doc, mod.Stat.Path)
	entity.EntityKind = entityKind(doc)
	entity.ContentHash = mod.Stat.Hash
	entity.ModTime = mod.Stat.ModTime
	entity.SizeBytes = mod.Stat.Size
	if err := tx.UpdateEntity(ctx, entity); err != nil {
		return err
	}

	if err := r.writeExtraction(ctx, tx, project, entity, doc); err != nil {
		return err
	}
	return tx.Commit()
}

// writeExtraction replaces the entity's facts and links from a parsed
// document and rewrites its search rows. First-pass link resolution happens
// here; names with no matching entity stay unresolved.
func (r *Reconciler) writeExtraction(ctx context.Context, tx storage.Tx, project *storage.Project, entity *storage.Entity, doc *types.ParsedDocument) error {
	facts := make([]*storage.Fact, 0, len(doc.Facts))
	for _, f := range doc.Facts {
		facts = append(facts, &storage.Fact{
			Category: f.Category,
			Content:  f.Content,
			Context:  f.Context,
			Tags:     f.Tags,
			Slug:     FactSlug(entity.Slug, f.Category, f.Content),
		})
	}
	if err := tx.ReplaceFacts(ctx, entity.ID, facts); err != nil {
		return fmt.Errorf("failed to replace facts: %w", err)
	}

	links := make([]*storage.Link, 0, len(doc.Links))
	for _, l := range doc.Links {
		link := &storage.Link{
			TargetName: l.TargetName,
			Relation:   l.Relation,
			Context:    l.Context,
		}
		if target, err := lookupTarget(ctx, tx, project.ID, l.TargetName); err == nil && target.ID != entity.ID {
			link.TargetID = &target.ID
		}
		links = append(links, link)
	}
	if err := tx.ReplaceLinks(ctx, entity.ID, links); err != nil {
		return fmt.Errorf("failed to replace links: %w", err)
	}

	return r.indexer.Index(ctx, tx, entity, doc, facts, links)
}

// createWithSlugRetry inserts the entity, appending numeric suffixes on slug
// collision up to the attempt bound. Optimistic: no lock, the unique index
// arbitrates.
func (r *Reconciler) createWithSlugRetry(ctx context.Context, tx storage.Tx, entity *storage.Entity, base string) error {
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		if attempt == 1 {
			entity.Slug = base
		} else {
			entity.Slug = fmt.Sprintf("%s-%d", base, attempt)
		}
		err := tx.CreateEntity(ctx, entity)
		if err == nil {
			return nil
		}
		if err != storage.ErrAlreadyExists {
			return err
		}
	}
	return &types.ConflictError{Field: "slug", Value: base}
}

// resolveLinks is the second resolution pass: one sweep over unresolved
// links, no fixpoint loop. Unresolved leftovers are informational.
func (r *Reconciler) resolveLinks(ctx context.Context, projectID int64) (int, error) {
	unresolved, err := r.store.ListUnresolvedLinks(ctx, projectID)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, link := range unresolved {
		target, err := lookupTarget(ctx, r.store, projectID, link.TargetName)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return resolved, err
		}
		if target.ID == link.SourceID {
			continue
		}
		if err := r.store.ResolveLink(ctx, link.ID, target.ID); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}

// lookupTarget finds the entity a link name points at. The slugified name is
// tried first; a case-insensitive title match covers entities whose slug
// diverged from the title (explicit frontmatter slug, collision suffix, or a
// retitle after the slug was fixed).
func lookupTarget(ctx context.Context, store storage.Storage, projectID int64, targetName string) (*storage.Entity, error) {
	target, err := store.GetEntityBySlug(ctx, projectID, Slugify(targetName))
	if err != storage.ErrNotFound {
		return target, err
	}
	return store.GetEntityByTitle(ctx, projectID, targetName)
}

// MoveDocument is the single-document move entry point. Unlike bulk sync it
// always verifies the destination path is free before writing.
func (r *Reconciler) MoveDocument(ctx context.Context, projectName, oldPath, newPath string) error {
	project, err := r.store.GetProject(ctx, projectName)
	if err != nil {
		return err
	}

	if _, err := r.store.GetEntityByPath(ctx, project.ID, newPath); err == nil {
		return &types.ConflictError{Field: "file_path", Value: newPath}
	} else if err != storage.ErrNotFound {
		return err
	}

	entity, err := r.store.GetEntityByPath(ctx, project.ID, oldPath)
	if err != nil {
		return err
	}
	return r.store.UpdateEntityPath(ctx, entity.ID, newPath)
}

func (r *Reconciler) ensureProject(ctx context.Context, name, rootPath string) (*storage.Project, error) {
	project, err := r.store.GetProject(ctx, name)
	if err == nil {
		return project, nil
	}
	if err != storage.ErrNotFound {
		return nil, err
	}

	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}
	project = &storage.Project{Name: name, RootPath: abs, IndexVersion: indexVersion}
	if err := r.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

func (r *Reconciler) updateProjectTotals(ctx context.Context, project *storage.Project) error {
	status, err := r.store.GetStatus(ctx, project.ID)
	if err != nil {
		return err
	}
	project.TotalEntities = status.EntityCount
	project.TotalRows = status.RowCount
	project.LastSyncedAt = time.Now()
	return r.store.UpdateProject(ctx, project)
}

// recordFailure isolates a document-level failure: it lands in the report
// and the bounded recent-failure set, never aborting the batch. A document
// that keeps failing across passes is called out with its streak.
func (r *Reconciler) recordFailure(report *SyncReport, path string, err error) {
	attempts, _ := r.failures.Get(path)
	attempts++
	r.failures.Add(path, attempts)

	msg := fmt.Sprintf("%s: %v", path, err)
	if attempts > 1 {
		msg = fmt.Sprintf("%s (failing for %d passes)", msg, attempts)
	}
	report.Errors = append(report.Errors, msg)
	r.logger.Warn("document failed", "path", path, "attempts", attempts, "error", err)
}

// clearFailure forgets a path's failure streak once it syncs cleanly.
func (r *Reconciler) clearFailure(path string) {
	r.failures.Remove(path)
}

func (r *Reconciler) parseFile(project *storage.Project, relPath string) (*types.ParsedDocument, error) {
	content, err := os.ReadFile(filepath.Join(project.RootPath, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", relPath, err)
	}
	return parser.Parse(string(content)), nil
}

// documentTitle falls back from frontmatter (or first heading, which the
// parser folds into metadata) to the filename stem.
func documentTitle(doc *types.ParsedDocument, relPath string) string {
	if doc.Metadata.Title != "" {
		return doc.Metadata.Title
	}
	base := filepath.Base(relPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func entityKind(doc *types.ParsedDocument) string {
	if doc.Metadata.Kind != "" {
		return doc.Metadata.Kind
	}
	return "note"
}

func slugBase(doc *types.ParsedDocument, title string) string {
	if doc.Metadata.Slug != "" {
		return Slugify(doc.Metadata.Slug)
	}
	return Slugify(title)
}
