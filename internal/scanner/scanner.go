package scanner

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/memograph/internal/storage"
)

// DefaultWorkers caps parallel content hashing within a single pass.
const DefaultWorkers = 4

// DefaultExtensions lists document file extensions the scanner indexes.
var DefaultExtensions = []string{".md", ".markdown", ".txt"}

// FileStat is one filesystem snapshot entry. Hash is zero until change
// detection needed to read the file.
type FileStat struct {
	Path    string // relative to the scan root, forward slashes
	Size    int64
	ModTime time.Time
	Hash    [32]byte
}

// Modification pairs an indexed entity with its changed on-disk state.
type Modification struct {
	Entity *storage.Entity
	Stat   FileStat
}

// Move pairs a disappeared entity with the new path holding its content.
type Move struct {
	Entity *storage.Entity
	Stat   FileStat
}

// Touch is an mtime-only change: content hash matches the index, only the
// recorded stat needs refreshing.
type Touch struct {
	Entity *storage.Entity
	Stat   FileStat
}

// ChangeSet classifies every path under the scan root against the persisted
// entity state. Skipped holds paths that could not be read this pass; they
// are re-detected next time.
type ChangeSet struct {
	Created   []FileStat
	Modified  []Modification
	Moved     []Move
	Deleted   []*storage.Entity
	Touched   []Touch
	Skipped   []string
	Unchanged int
}

// Empty reports whether the pass has nothing to apply.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Created) == 0 && len(cs.Modified) == 0 &&
		len(cs.Moved) == 0 && len(cs.Deleted) == 0 && len(cs.Touched) == 0
}

// Scanner walks a project root and detects changes against indexed state.
type Scanner struct {
	root       string
	extensions map[string]bool
	workers    int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithWorkers sets the parallel hashing cap.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithExtensions replaces the indexed extension set.
func WithExtensions(exts []string) Option {
	return func(s *Scanner) {
		s.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			s.extensions[strings.ToLower(ext)] = true
		}
	}
}

// New creates a Scanner for the given root directory.
func New(root string, opts ...Option) *Scanner {
	s := &Scanner{
		root:       root,
		extensions: make(map[string]bool, len(DefaultExtensions)),
		workers:    DefaultWorkers,
	}
	for _, ext := range DefaultExtensions {
		s.extensions[ext] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot walks the root once and returns a stat entry per document file,
// using the directory entry's cached stat data. No file contents are read.
func (s *Scanner) Snapshot() ([]FileStat, error) {
	var stats []FileStat

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !s.extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		stats = append(stats, FileStat{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", s.root, err)
	}

	return stats, nil
}

// Detect compares the current filesystem snapshot against the persisted
// entity state. Paths whose size and mtime both match are skipped without
// reading a byte; everything else is hash-confirmed with bounded
// parallelism.
func (s *Scanner) Detect(ctx context.Context, entities []*storage.Entity) (*ChangeSet, error) {
	snapshot, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return s.classify(ctx, snapshot, entities)
}

func (s *Scanner) classify(ctx context.Context, snapshot []FileStat, entities []*storage.Entity) (*ChangeSet, error) {
	indexed := make(map[string]*storage.Entity, len(entities))
	for _, entity := range entities {
		indexed[entity.FilePath] = entity
	}

	cs := &ChangeSet{}
	var candidates []Modification // size/mtime differ, hash pending
	var currentOnly []FileStat

	seen := make(map[string]bool, len(snapshot))
	for _, stat := range snapshot {
		seen[stat.Path] = true
		entity, ok := indexed[stat.Path]
		if !ok {
			currentOnly = append(currentOnly, stat)
			continue
		}
		if entity.SizeBytes == stat.Size && entity.ModTime.UnixNano() == stat.ModTime.UnixNano() {
			cs.Unchanged++
			continue
		}
		candidates = append(candidates, Modification{Entity: entity, Stat: stat})
	}

	var previousOnly []*storage.Entity
	for _, entity := range entities {
		if !seen[entity.FilePath] {
			previousOnly = append(previousOnly, entity)
		}
	}

	// Hash every path that needs a content decision. A file that cannot be
	// read is skipped for this pass, not fatal.
	hashTargets := make([]*FileStat, 0, len(candidates)+len(currentOnly))
	for i := range candidates {
		hashTargets = append(hashTargets, &candidates[i].Stat)
	}
	for i := range currentOnly {
		hashTargets = append(hashTargets, &currentOnly[i])
	}
	failed, err := s.hashAll(ctx, hashTargets)
	if err != nil {
		return nil, err
	}

	// Hash-confirm candidate modifications; an unchanged hash is a touch
	for _, cand := range candidates {
		if failed[cand.Stat.Path] {
			cs.Skipped = append(cs.Skipped, cand.Stat.Path)
			continue
		}
		if cand.Stat.Hash == cand.Entity.ContentHash {
			cs.Touched = append(cs.Touched, Touch{Entity: cand.Entity, Stat: cand.Stat})
			continue
		}
		cs.Modified = append(cs.Modified, cand)
	}

	kept := currentOnly[:0]
	for _, stat := range currentOnly {
		if failed[stat.Path] {
			cs.Skipped = append(cs.Skipped, stat.Path)
			continue
		}
		kept = append(kept, stat)
	}
	currentOnly = kept

	// Pair disappeared entities with new paths holding identical content.
	// Each entity is paired at most once even when hashes collide.
	byHash := make(map[[32]byte][]*storage.Entity, len(previousOnly))
	for _, entity := range previousOnly {
		byHash[entity.ContentHash] = append(byHash[entity.ContentHash], entity)
	}
	for _, stat := range currentOnly {
		if pending := byHash[stat.Hash]; len(pending) > 0 {
			cs.Moved = append(cs.Moved, Move{Entity: pending[0], Stat: stat})
			byHash[stat.Hash] = pending[1:]
			continue
		}
		cs.Created = append(cs.Created, stat)
	}
	for _, pending := range byHash {
		cs.Deleted = append(cs.Deleted, pending...)
	}

	return cs, nil
}

// hashAll computes streaming content hashes with a bounded worker pool.
// Unreadable files are reported in the returned set rather than failing the
// pass; only cancellation is fatal.
func (s *Scanner) hashAll(ctx context.Context, targets []*FileStat) (map[string]bool, error) {
	failed := make(map[string]bool)
	if len(targets) == 0 {
		return failed, nil
	}

	var mu sync.Mutex
	semaphore := make(chan struct{}, s.workers)
	g, gctx := errgroup.WithContext(ctx)

	for _, target := range targets {
		target := target
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			hash, err := HashFile(filepath.Join(s.root, filepath.FromSlash(target.Path)))
			if err != nil {
				mu.Lock()
				failed[target.Path] = true
				mu.Unlock()
				return nil
			}
			target.Hash = hash
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return failed, nil
}

// HashFile computes the SHA-256 digest of a file using chunked reads, so
// peak memory stays bounded regardless of file size.
func HashFile(path string) ([32]byte, error) {
	var digest [32]byte

	f, err := os.Open(path)
	if err != nil {
		return digest, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return digest, err
	}

	copy(digest[:], h.Sum(nil))
	return digest, nil
}
