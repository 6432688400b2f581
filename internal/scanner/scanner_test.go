package scanner

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/memograph/internal/storage"
)

func writeFile(t *testing.T, dir, rel, content string) string {
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func statOf(t *testing.T, path string) os.FileInfo {
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info
}

func entityFor(t *testing.T, dir, rel, content string) *storage.Entity {
	info := statOf(t, filepath.Join(dir, filepath.FromSlash(rel)))
	return &storage.Entity{
		ID:          int64(len(rel)), // arbitrary stable id for the test
		FilePath:    rel,
		ContentHash: sha256.Sum256([]byte(content)),
		ModTime:     info.ModTime(),
		SizeBytes:   info.Size(),
	}
}

func TestSnapshotFiltersAndPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes/a.md", "alpha")
	writeFile(t, dir, "b.txt", "beta")
	writeFile(t, dir, "ignore.bin", "binary")
	writeFile(t, dir, ".hidden/c.md", "hidden")

	s := New(dir)
	stats, err := s.Snapshot()
	require.NoError(t, err)

	paths := make([]string, 0, len(stats))
	for _, st := range stats {
		paths = append(paths, st.Path)
	}
	assert.ElementsMatch(t, []string{"notes/a.md", "b.txt"}, paths)
}

func TestDetectUnchangedReadsNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "alpha content")
	entity := entityFor(t, dir, "a.md", "alpha content")

	s := New(dir)
	cs, err := s.Detect(context.Background(), []*storage.Entity{entity})
	require.NoError(t, err)

	assert.True(t, cs.Empty())
	assert.Equal(t, 1, cs.Unchanged)
}

func TestDetectCreated(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "new.md", "brand new")

	s := New(dir)
	cs, err := s.Detect(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, cs.Created, 1)
	assert.Equal(t, "new.md", cs.Created[0].Path)
	// Hash is carried so the reconciler need not re-read
	assert.Equal(t, sha256.Sum256([]byte("brand new")), cs.Created[0].Hash)
}

func TestDetectModified(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "old content")
	entity := entityFor(t, dir, "a.md", "old content")

	// Rewrite with different content and a different mtime
	writeFile(t, dir, "a.md", "new content entirely")
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.md"), future, future))

	s := New(dir)
	cs, err := s.Detect(context.Background(), []*storage.Entity{entity})
	require.NoError(t, err)

	require.Len(t, cs.Modified, 1)
	assert.Equal(t, entity, cs.Modified[0].Entity)
	assert.Equal(t, sha256.Sum256([]byte("new content entirely")), cs.Modified[0].Stat.Hash)
	assert.Empty(t, cs.Created)
	assert.Empty(t, cs.Deleted)
}

func TestDetectTouchNotModified(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "same content")
	entity := entityFor(t, dir, "a.md", "same content")

	// Touch only: content identical, mtime different
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.md"), future, future))

	s := New(dir)
	cs, err := s.Detect(context.Background(), []*storage.Entity{entity})
	require.NoError(t, err)

	assert.Empty(t, cs.Modified)
	require.Len(t, cs.Touched, 1)
	assert.Equal(t, entity, cs.Touched[0].Entity)
	assert.Equal(t, future.UnixNano(), cs.Touched[0].Stat.ModTime.UnixNano())
}

func TestDetectDeleted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.md", "kept")
	keep := entityFor(t, dir, "keep.md", "kept")

	gone := &storage.Entity{
		ID: 99, FilePath: "gone.md",
		ContentHash: sha256.Sum256([]byte("vanished")),
		ModTime:     time.Now(), SizeBytes: 8,
	}

	s := New(dir)
	cs, err := s.Detect(context.Background(), []*storage.Entity{keep, gone})
	require.NoError(t, err)

	require.Len(t, cs.Deleted, 1)
	assert.Equal(t, gone, cs.Deleted[0])
	assert.Equal(t, 1, cs.Unchanged)
}

func TestDetectMovePairedByHash(t *testing.T) {
	dir := t.TempDir()
	content := "movable content"

	// Entity was indexed at old/a.md; file now lives at new/b.md
	writeFile(t, dir, "old/a.md", content)
	entity := entityFor(t, dir, "old/a.md", content)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "new"), 0o755))
	require.NoError(t, os.Rename(
		filepath.Join(dir, "old", "a.md"),
		filepath.Join(dir, "new", "b.md"),
	))

	s := New(dir)
	cs, err := s.Detect(context.Background(), []*storage.Entity{entity})
	require.NoError(t, err)

	require.Len(t, cs.Moved, 1)
	assert.Equal(t, entity, cs.Moved[0].Entity)
	assert.Equal(t, "new/b.md", cs.Moved[0].Stat.Path)
	assert.Empty(t, cs.Created)
	assert.Empty(t, cs.Deleted)
}

func TestDetectMoveWithEditIsDeleteCreate(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, dir, "old.md", "original")
	entity := entityFor(t, dir, "old.md", "original")
	require.NoError(t, os.Remove(filepath.Join(dir, "old.md")))
	// New path, changed content: hashes differ so no move pairing
	writeFile(t, dir, "new.md", "original plus edits")

	s := New(dir)
	cs, err := s.Detect(context.Background(), []*storage.Entity{entity})
	require.NoError(t, err)

	assert.Empty(t, cs.Moved)
	require.Len(t, cs.Deleted, 1)
	require.Len(t, cs.Created, 1)
}

func TestDetectDuplicateContentMoves(t *testing.T) {
	dir := t.TempDir()
	content := "identical twins"

	writeFile(t, dir, "a.md", content)
	writeFile(t, dir, "b.md", content)
	entityA := entityFor(t, dir, "a.md", content)
	entityB := entityFor(t, dir, "b.md", content)
	entityB.ID = entityA.ID + 1

	require.NoError(t, os.Rename(filepath.Join(dir, "a.md"), filepath.Join(dir, "c.md")))
	require.NoError(t, os.Rename(filepath.Join(dir, "b.md"), filepath.Join(dir, "d.md")))

	s := New(dir)
	cs, err := s.Detect(context.Background(), []*storage.Entity{entityA, entityB})
	require.NoError(t, err)

	// Both pair as moves, neither is deleted twice
	assert.Len(t, cs.Moved, 2)
	assert.Empty(t, cs.Deleted)
	assert.Empty(t, cs.Created)
}

func TestHashFileStreaming(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 1<<20) // 1MB
	for i := range content {
		content[i] = byte(i % 251)
	}
	path := filepath.Join(dir, "big.md")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	hash, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, sha256.Sum256(content), hash)
}

func TestHashFileMissing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "absent.md"))
	assert.Error(t, err)
}

func TestWithExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "x")
	writeFile(t, dir, "b.note", "y")

	s := New(dir, WithExtensions([]string{".note"}))
	stats, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "b.note", stats[0].Path)
}
