package storage

import (
	"context"
	"time"

	"github.com/dshills/memograph/pkg/types"
)

// Storage defines the interface for persisting and querying the entity graph
// and its derived search projection.
type Storage interface {
	// Project operations
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, name string) (*Project, error)
	GetProjectByID(ctx context.Context, projectID int64) (*Project, error)
	UpdateProject(ctx context.Context, project *Project) error

	// Entity operations
	CreateEntity(ctx context.Context, entity *Entity) error
	UpdateEntity(ctx context.Context, entity *Entity) error
	UpdateEntityPath(ctx context.Context, entityID int64, newPath string) error
	GetEntityByID(ctx context.Context, entityID int64) (*Entity, error)
	GetEntityByPath(ctx context.Context, projectID int64, filePath string) (*Entity, error)
	GetEntityBySlug(ctx context.Context, projectID int64, slug string) (*Entity, error)
	GetEntityByTitle(ctx context.Context, projectID int64, title string) (*Entity, error)
	ListEntities(ctx context.Context, projectID int64) ([]*Entity, error)
	DeleteEntity(ctx context.Context, entityID int64) error

	// Fact operations. Facts are immutable per sync pass: a re-sync of the
	// owning entity replaces them wholesale.
	ReplaceFacts(ctx context.Context, entityID int64, facts []*Fact) error
	ListFactsByEntity(ctx context.Context, entityID int64) ([]*Fact, error)

	// Link operations. Links with a nil TargetID are forward references;
	// they persist until a matching entity appears.
	ReplaceLinks(ctx context.Context, sourceID int64, links []*Link) error
	ListLinksBySource(ctx context.Context, sourceID int64) ([]*Link, error)
	ListUnresolvedLinks(ctx context.Context, projectID int64) ([]*Link, error)
	ResolveLink(ctx context.Context, linkID, targetID int64) error
	CountUnresolvedLinks(ctx context.Context, projectID int64) (int, error)

	// Search row operations. A document's rows are replaced as one set.
	ReplaceSearchRows(ctx context.Context, entityID int64, rows []*SearchRow) error
	GetSearchRow(ctx context.Context, rowID int64) (*SearchRow, error)
	ListSearchRowsByEntity(ctx context.Context, entityID int64) ([]*SearchRow, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	ListEmbeddingsByEntity(ctx context.Context, entityID int64) ([]*Embedding, error)
	StoredDimension(ctx context.Context) (int, error)

	// Search operations
	SearchText(ctx context.Context, projectID int64, match string, limit, offset int, filters *SearchFilters) ([]TextResult, int, error)
	SearchVector(ctx context.Context, projectID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)

	// Status operations
	GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Project represents one indexed document collection. Every engine
// operation is scoped to exactly one project.
type Project struct {
	ID            int64
	Name          string
	RootPath      string
	TotalEntities int
	TotalRows     int
	IndexVersion  string
	LastSyncedAt  time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Entity represents one source document. The slug is assigned once and
// survives renames; the file path changes on moves while the identifier and
// slug stay fixed.
type Entity struct {
	ID          int64
	ProjectID   int64
	UUID        string
	Title       string
	Slug        string
	FilePath    string // Relative to project root
	EntityKind  string
	ContentHash [32]byte
	ModTime     time.Time
	SizeBytes   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Fact is a persisted atomic observation owned by an entity.
type Fact struct {
	ID        int64
	EntityID  int64
	Category  string
	Content   string
	Context   string
	Tags      []string
	Slug      string // entity slug + category + content digest
	CreatedAt time.Time
}

// Link is a persisted typed edge. TargetID is nil while the target name has
// no matching entity.
type Link struct {
	ID         int64
	SourceID   int64
	TargetID   *int64
	TargetName string
	Relation   string
	Context    string
	CreatedAt  time.Time
}

// SearchRow is a denormalized projection of an entity, fact, or link into
// the retrieval store. Rows are write-once per sync pass.
type SearchRow struct {
	ID         int64
	ProjectID  int64
	EntityID   int64
	Kind       types.RowKind
	RefID      int64 // id of the projected entity/fact/link row
	Title      string
	Body       string
	FilePath   string
	EntityKind string
	CreatedAt  time.Time
}

// Embedding represents one fixed-dimension vector for a chunk of a search
// row's body, keyed by the chunk's content hash.
type Embedding struct {
	ID         int64
	RowID      int64
	ChunkIndex int
	ChunkHash  [32]byte
	Vector     []byte // Serialized float32 array, little-endian
	Dimension  int
	Provider   string
	Model      string
	CreatedAt  time.Time
}

// SearchFilters narrows search results. Filters combine with AND logic
// against the prepared text condition.
type SearchFilters struct {
	Kinds       []types.RowKind // row-kind discriminator filter
	EntityKinds []string        // free-text document kind filter
	After       *time.Time      // created-at lower bound
	PathGlob    string          // glob against the source file path
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	RowID           int64
	SimilarityScore float64
}

// TextResult represents a result from full-text search. Score is the raw
// FTS5 BM25 rank; lower is better.
type TextResult struct {
	RowID     int64
	BM25Score float64
}

// ProjectStatus contains statistics about an indexed project
type ProjectStatus struct {
	Project         *Project
	EntityCount     int
	FactCount       int
	LinkCount       int
	UnresolvedLinks int
	RowCount        int
	EmbeddingCount  int
	IndexSizeMB     float64
	LastSyncedAt    time.Time
	Health          HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexBuilt       bool
}
