package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/memograph/pkg/types"
)

var (
	// ErrNotFound is returned when a requested row doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate row
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Cascade deletes depend on this
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance and applies any
// pending schema migrations.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }

func (t *sqliteTx) querier() querier      { return t.tx }
func (s *SQLiteStorage) querier() querier { return s.db }

// Project operations

func (s *SQLiteStorage) createProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		INSERT INTO projects (name, root_path, index_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		project.Name, project.RootPath, project.IndexVersion, now, now)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	project.ID = id
	project.CreatedAt = now
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateProject(ctx context.Context, project *Project) error {
	return s.createProjectWithQuerier(ctx, s.querier(), project)
}

const projectColumns = `id, name, root_path, total_entities, total_rows,
       index_version, last_synced_at, created_at, updated_at`

func scanProject(row *sql.Row) (*Project, error) {
	var project Project
	var lastSyncedAt sql.NullTime
	err := row.Scan(
		&project.ID, &project.Name, &project.RootPath,
		&project.TotalEntities, &project.TotalRows, &project.IndexVersion,
		&lastSyncedAt, &project.CreatedAt, &project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastSyncedAt.Valid {
		project.LastSyncedAt = lastSyncedAt.Time
	}
	return &project, nil
}

func (s *SQLiteStorage) getProjectWithQuerier(ctx context.Context, q querier, name string) (*Project, error) {
	return scanProject(q.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE name = ?`, name))
}

func (s *SQLiteStorage) GetProject(ctx context.Context, name string) (*Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier(), name)
}

func (s *SQLiteStorage) getProjectByIDWithQuerier(ctx context.Context, q querier, projectID int64) (*Project, error) {
	return scanProject(q.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, projectID))
}

func (s *SQLiteStorage) GetProjectByID(ctx context.Context, projectID int64) (*Project, error) {
	return s.getProjectByIDWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteStorage) updateProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		UPDATE projects
		SET root_path = ?, total_entities = ?, total_rows = ?,
		    last_synced_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		project.RootPath, project.TotalEntities, project.TotalRows,
		project.LastSyncedAt, now, project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateProject(ctx context.Context, project *Project) error {
	return s.updateProjectWithQuerier(ctx, s.querier(), project)
}

// Entity operations

const entityColumns = `id, project_id, uuid, title, slug, file_path, entity_kind,
       content_hash, mtime_ns, size_bytes, created_at, updated_at`

func scanEntity(scan func(dest ...interface{}) error) (*Entity, error) {
	var entity Entity
	var hash []byte
	var mtimeNS int64
	err := scan(
		&entity.ID, &entity.ProjectID, &entity.UUID, &entity.Title,
		&entity.Slug, &entity.FilePath, &entity.EntityKind,
		&hash, &mtimeNS, &entity.SizeBytes,
		&entity.CreatedAt, &entity.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	copy(entity.ContentHash[:], hash)
	entity.ModTime = time.Unix(0, mtimeNS)
	return &entity, nil
}

func (s *SQLiteStorage) createEntityWithQuerier(ctx context.Context, q querier, entity *Entity) error {
	query := `
		INSERT INTO entities (project_id, uuid, title, slug, file_path, entity_kind,
			content_hash, mtime_ns, size_bytes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		entity.ProjectID, entity.UUID, entity.Title, entity.Slug,
		entity.FilePath, entity.EntityKind, entity.ContentHash[:],
		entity.ModTime.UnixNano(), entity.SizeBytes, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create entity: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entity.ID = id
	entity.CreatedAt = now
	entity.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateEntity(ctx context.Context, entity *Entity) error {
	return s.createEntityWithQuerier(ctx, s.querier(), entity)
}

// updateEntityWithQuerier updates everything except the slug and file path,
// which have dedicated operations so the stability invariants stay visible
// at the call site.
func (s *SQLiteStorage) updateEntityWithQuerier(ctx context.Context, q querier, entity *Entity) error {
	query := `
		UPDATE entities
		SET title = ?, entity_kind = ?, content_hash = ?, mtime_ns = ?,
		    size_bytes = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		entity.Title, entity.EntityKind, entity.ContentHash[:],
		entity.ModTime.UnixNano(), entity.SizeBytes, now, entity.ID)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	entity.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateEntity(ctx context.Context, entity *Entity) error {
	return s.updateEntityWithQuerier(ctx, s.querier(), entity)
}

func (s *SQLiteStorage) updateEntityPathWithQuerier(ctx context.Context, q querier, entityID int64, newPath string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE entities SET file_path = ?, updated_at = ? WHERE id = ?`,
		newPath, time.Now(), entityID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to update entity path: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpdateEntityPath(ctx context.Context, entityID int64, newPath string) error {
	return s.updateEntityPathWithQuerier(ctx, s.querier(), entityID, newPath)
}

func (s *SQLiteStorage) getEntityByIDWithQuerier(ctx context.Context, q querier, entityID int64) (*Entity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, entityID)
	return scanEntity(row.Scan)
}

func (s *SQLiteStorage) GetEntityByID(ctx context.Context, entityID int64) (*Entity, error) {
	return s.getEntityByIDWithQuerier(ctx, s.querier(), entityID)
}

func (s *SQLiteStorage) getEntityByPathWithQuerier(ctx context.Context, q querier, projectID int64, filePath string) (*Entity, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE project_id = ? AND file_path = ?`,
		projectID, filePath)
	return scanEntity(row.Scan)
}

func (s *SQLiteStorage) GetEntityByPath(ctx context.Context, projectID int64, filePath string) (*Entity, error) {
	return s.getEntityByPathWithQuerier(ctx, s.querier(), projectID, filePath)
}

func (s *SQLiteStorage) getEntityBySlugWithQuerier(ctx context.Context, q querier, projectID int64, slug string) (*Entity, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE project_id = ? AND slug = ?`,
		projectID, slug)
	return scanEntity(row.Scan)
}

func (s *SQLiteStorage) GetEntityBySlug(ctx context.Context, projectID int64, slug string) (*Entity, error) {
	return s.getEntityBySlugWithQuerier(ctx, s.querier(), projectID, slug)
}

func (s *SQLiteStorage) getEntityByTitleWithQuerier(ctx context.Context, q querier, projectID int64, title string) (*Entity, error) {
	// Titles are not unique; the oldest entity wins deterministically
	row := q.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE project_id = ? AND title = ? COLLATE NOCASE ORDER BY id LIMIT 1`,
		projectID, title)
	return scanEntity(row.Scan)
}

// GetEntityByTitle looks an entity up by its title, case-insensitively.
func (s *SQLiteStorage) GetEntityByTitle(ctx context.Context, projectID int64, title string) (*Entity, error) {
	return s.getEntityByTitleWithQuerier(ctx, s.querier(), projectID, title)
}

func (s *SQLiteStorage) listEntitiesWithQuerier(ctx context.Context, q querier, projectID int64) ([]*Entity, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE project_id = ? ORDER BY file_path`,
		projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entities := make([]*Entity, 0)
	for rows.Next() {
		entity, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

func (s *SQLiteStorage) ListEntities(ctx context.Context, projectID int64) ([]*Entity, error) {
	return s.listEntitiesWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteStorage) deleteEntityWithQuerier(ctx context.Context, q querier, entityID int64) error {
	// Facts, links, search rows, and embeddings cascade
	_, err := q.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, entityID)
	return err
}

func (s *SQLiteStorage) DeleteEntity(ctx context.Context, entityID int64) error {
	return s.deleteEntityWithQuerier(ctx, s.querier(), entityID)
}

// Fact operations

func (s *SQLiteStorage) replaceFactsWithQuerier(ctx context.Context, q querier, entityID int64, facts []*Fact) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM facts WHERE entity_id = ?`, entityID); err != nil {
		return fmt.Errorf("failed to clear facts: %w", err)
	}

	query := `
		INSERT INTO facts (entity_id, category, content, context, tags, slug, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	for _, fact := range facts {
		tags, err := json.Marshal(fact.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode fact tags: %w", err)
		}
		result, err := q.ExecContext(ctx, query,
			entityID, fact.Category, fact.Content, fact.Context, string(tags), fact.Slug, now)
		if err != nil {
			return fmt.Errorf("failed to insert fact: %w", err)
		}
		if id, err := result.LastInsertId(); err == nil {
			fact.ID = id
		}
		fact.EntityID = entityID
		fact.CreatedAt = now
	}
	return nil
}

func (s *SQLiteStorage) ReplaceFacts(ctx context.Context, entityID int64, facts []*Fact) error {
	return s.replaceFactsWithQuerier(ctx, s.querier(), entityID, facts)
}

func (s *SQLiteStorage) listFactsByEntityWithQuerier(ctx context.Context, q querier, entityID int64) ([]*Fact, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, entity_id, category, content, context, tags, slug, created_at
		FROM facts
		WHERE entity_id = ?
		ORDER BY id
	`, entityID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	facts := make([]*Fact, 0)
	for rows.Next() {
		var fact Fact
		var context sql.NullString
		var tags string
		err := rows.Scan(&fact.ID, &fact.EntityID, &fact.Category, &fact.Content,
			&context, &tags, &fact.Slug, &fact.CreatedAt)
		if err != nil {
			return nil, err
		}
		if context.Valid {
			fact.Context = context.String
		}
		if err := json.Unmarshal([]byte(tags), &fact.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode fact tags: %w", err)
		}
		facts = append(facts, &fact)
	}
	return facts, rows.Err()
}

func (s *SQLiteStorage) ListFactsByEntity(ctx context.Context, entityID int64) ([]*Fact, error) {
	return s.listFactsByEntityWithQuerier(ctx, s.querier(), entityID)
}

// Link operations

func (s *SQLiteStorage) replaceLinksWithQuerier(ctx context.Context, q querier, sourceID int64, links []*Link) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM links WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to clear links: %w", err)
	}

	query := `
		INSERT INTO links (source_id, target_id, target_name, relation, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`
	now := time.Now()
	for _, link := range links {
		var targetID interface{}
		if link.TargetID != nil {
			targetID = *link.TargetID
		}
		result, err := q.ExecContext(ctx, query,
			sourceID, targetID, link.TargetName, link.Relation, link.Context, now)
		if err != nil {
			return fmt.Errorf("failed to insert link: %w", err)
		}
		// A duplicate edge is skipped by the conflict clause; its ID stays
		// zero so callers can tell it was not persisted.
		if n, err := result.RowsAffected(); err == nil && n > 0 {
			if id, err := result.LastInsertId(); err == nil {
				link.ID = id
			}
		}
		link.SourceID = sourceID
		link.CreatedAt = now
	}
	return nil
}

func (s *SQLiteStorage) ReplaceLinks(ctx context.Context, sourceID int64, links []*Link) error {
	return s.replaceLinksWithQuerier(ctx, s.querier(), sourceID, links)
}

const linkColumns = `id, source_id, target_id, target_name, relation, context, created_at`

func scanLinks(rows *sql.Rows) ([]*Link, error) {
	defer func() { _ = rows.Close() }()

	links := make([]*Link, 0)
	for rows.Next() {
		var link Link
		var targetID sql.NullInt64
		var context sql.NullString
		err := rows.Scan(&link.ID, &link.SourceID, &targetID, &link.TargetName,
			&link.Relation, &context, &link.CreatedAt)
		if err != nil {
			return nil, err
		}
		if targetID.Valid {
			id := targetID.Int64
			link.TargetID = &id
		}
		if context.Valid {
			link.Context = context.String
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

func (s *SQLiteStorage) listLinksBySourceWithQuerier(ctx context.Context, q querier, sourceID int64) ([]*Link, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE source_id = ? ORDER BY id`, sourceID)
	if err != nil {
		return nil, err
	}
	return scanLinks(rows)
}

func (s *SQLiteStorage) ListLinksBySource(ctx context.Context, sourceID int64) ([]*Link, error) {
	return s.listLinksBySourceWithQuerier(ctx, s.querier(), sourceID)
}

func (s *SQLiteStorage) listUnresolvedLinksWithQuerier(ctx context.Context, q querier, projectID int64) ([]*Link, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT l.id, l.source_id, l.target_id, l.target_name, l.relation, l.context, l.created_at
		FROM links l
		JOIN entities e ON l.source_id = e.id
		WHERE e.project_id = ? AND l.target_id IS NULL
		ORDER BY l.id
	`, projectID)
	if err != nil {
		return nil, err
	}
	return scanLinks(rows)
}

func (s *SQLiteStorage) ListUnresolvedLinks(ctx context.Context, projectID int64) ([]*Link, error) {
	return s.listUnresolvedLinksWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteStorage) resolveLinkWithQuerier(ctx context.Context, q querier, linkID, targetID int64) error {
	// A duplicate resolved edge can already exist when the same relation was
	// written both resolved and unresolved; drop the unresolved copy instead
	// of violating the unique index.
	_, err := q.ExecContext(ctx,
		`UPDATE links SET target_id = ? WHERE id = ? AND target_id IS NULL`,
		targetID, linkID)
	if err != nil && isUniqueViolation(err) {
		_, err = q.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, linkID)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve link: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ResolveLink(ctx context.Context, linkID, targetID int64) error {
	return s.resolveLinkWithQuerier(ctx, s.querier(), linkID, targetID)
}

func (s *SQLiteStorage) countUnresolvedLinksWithQuerier(ctx context.Context, q querier, projectID int64) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM links l
		JOIN entities e ON l.source_id = e.id
		WHERE e.project_id = ? AND l.target_id IS NULL
	`, projectID).Scan(&count)
	return count, err
}

func (s *SQLiteStorage) CountUnresolvedLinks(ctx context.Context, projectID int64) (int, error) {
	return s.countUnresolvedLinksWithQuerier(ctx, s.querier(), projectID)
}

// Search row operations

func (s *SQLiteStorage) replaceSearchRowsWithQuerier(ctx context.Context, q querier, entityID int64, rows []*SearchRow) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM search_rows WHERE entity_id = ?`, entityID); err != nil {
		return fmt.Errorf("failed to clear search rows: %w", err)
	}

	query := `
		INSERT INTO search_rows (project_id, entity_id, row_kind, ref_id, title, body,
			file_path, entity_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	for _, row := range rows {
		result, err := q.ExecContext(ctx, query,
			row.ProjectID, entityID, string(row.Kind), row.RefID,
			row.Title, row.Body, row.FilePath, row.EntityKind, now)
		if err != nil {
			return fmt.Errorf("failed to insert search row: %w", err)
		}
		if id, err := result.LastInsertId(); err == nil {
			row.ID = id
		}
		row.EntityID = entityID
		row.CreatedAt = now
	}
	return nil
}

func (s *SQLiteStorage) ReplaceSearchRows(ctx context.Context, entityID int64, rows []*SearchRow) error {
	return s.replaceSearchRowsWithQuerier(ctx, s.querier(), entityID, rows)
}

const searchRowColumns = `id, project_id, entity_id, row_kind, ref_id, title, body,
       file_path, entity_kind, created_at`

func scanSearchRow(scan func(dest ...interface{}) error) (*SearchRow, error) {
	var row SearchRow
	var kind string
	var body, entityKind sql.NullString
	err := scan(
		&row.ID, &row.ProjectID, &row.EntityID, &kind, &row.RefID,
		&row.Title, &body, &row.FilePath, &entityKind, &row.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	row.Kind = kindFromString(kind)
	if body.Valid {
		row.Body = body.String
	}
	if entityKind.Valid {
		row.EntityKind = entityKind.String
	}
	return &row, nil
}

func (s *SQLiteStorage) getSearchRowWithQuerier(ctx context.Context, q querier, rowID int64) (*SearchRow, error) {
	row := q.QueryRowContext(ctx, `SELECT `+searchRowColumns+` FROM search_rows WHERE id = ?`, rowID)
	return scanSearchRow(row.Scan)
}

func (s *SQLiteStorage) GetSearchRow(ctx context.Context, rowID int64) (*SearchRow, error) {
	return s.getSearchRowWithQuerier(ctx, s.querier(), rowID)
}

func (s *SQLiteStorage) listSearchRowsByEntityWithQuerier(ctx context.Context, q querier, entityID int64) ([]*SearchRow, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+searchRowColumns+` FROM search_rows WHERE entity_id = ? ORDER BY id`, entityID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]*SearchRow, 0)
	for rows.Next() {
		row, err := scanSearchRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *SQLiteStorage) ListSearchRowsByEntity(ctx context.Context, entityID int64) ([]*SearchRow, error) {
	return s.listSearchRowsByEntityWithQuerier(ctx, s.querier(), entityID)
}

// Embedding operations

func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, embedding *Embedding) error {
	query := `
		INSERT INTO embeddings (row_id, chunk_index, chunk_hash, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(row_id, chunk_index) DO UPDATE SET
			chunk_hash = excluded.chunk_hash,
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		embedding.RowID, embedding.ChunkIndex, embedding.ChunkHash[:],
		embedding.Vector, embedding.Dimension, embedding.Provider, embedding.Model, now)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	if embedding.ID == 0 {
		if id, err := result.LastInsertId(); err == nil {
			embedding.ID = id
		}
	}
	embedding.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), embedding)
}

func (s *SQLiteStorage) listEmbeddingsByEntityWithQuerier(ctx context.Context, q querier, entityID int64) ([]*Embedding, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT em.id, em.row_id, em.chunk_index, em.chunk_hash, em.vector,
		       em.dimension, em.provider, em.model, em.created_at
		FROM embeddings em
		JOIN search_rows r ON em.row_id = r.id
		WHERE r.entity_id = ?
		ORDER BY em.row_id, em.chunk_index
	`, entityID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	embeddings := make([]*Embedding, 0)
	for rows.Next() {
		var em Embedding
		var hash []byte
		err := rows.Scan(&em.ID, &em.RowID, &em.ChunkIndex, &hash, &em.Vector,
			&em.Dimension, &em.Provider, &em.Model, &em.CreatedAt)
		if err != nil {
			return nil, err
		}
		copy(em.ChunkHash[:], hash)
		embeddings = append(embeddings, &em)
	}
	return embeddings, rows.Err()
}

func (s *SQLiteStorage) ListEmbeddingsByEntity(ctx context.Context, entityID int64) ([]*Embedding, error) {
	return s.listEmbeddingsByEntityWithQuerier(ctx, s.querier(), entityID)
}

func (s *SQLiteStorage) storedDimensionWithQuerier(ctx context.Context, q querier) (int, error) {
	var dim sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT MAX(dimension) FROM embeddings`).Scan(&dim)
	if err != nil {
		return 0, err
	}
	if !dim.Valid {
		return 0, nil
	}
	return int(dim.Int64), nil
}

// StoredDimension reports the dimension of vectors already in the index, or
// 0 when no embeddings exist. Used for the startup dimension check.
func (s *SQLiteStorage) StoredDimension(ctx context.Context) (int, error) {
	return s.storedDimensionWithQuerier(ctx, s.querier())
}

// Search operations

func (s *SQLiteStorage) SearchText(ctx context.Context, projectID int64, match string, limit, offset int, filters *SearchFilters) ([]TextResult, int, error) {
	return searchText(ctx, s.querier(), projectID, match, limit, offset, filters)
}

func (s *SQLiteStorage) SearchVector(ctx context.Context, projectID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), projectID, vector, limit, filters)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier, projectID int64) (*ProjectStatus, error) {
	project, err := s.getProjectByIDWithQuerier(ctx, q, projectID)
	if err != nil {
		return nil, err
	}

	status := &ProjectStatus{
		Project:      project,
		LastSyncedAt: project.LastSyncedAt,
	}

	counts := []struct {
		dest  *int
		query string
	}{
		{&status.EntityCount, `SELECT COUNT(*) FROM entities WHERE project_id = ?`},
		{&status.FactCount, `SELECT COUNT(*) FROM facts f JOIN entities e ON f.entity_id = e.id WHERE e.project_id = ?`},
		{&status.LinkCount, `SELECT COUNT(*) FROM links l JOIN entities e ON l.source_id = e.id WHERE e.project_id = ?`},
		{&status.RowCount, `SELECT COUNT(*) FROM search_rows WHERE project_id = ?`},
		{&status.EmbeddingCount, `SELECT COUNT(*) FROM embeddings em JOIN search_rows r ON em.row_id = r.id WHERE r.project_id = ?`},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, c.query, projectID).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	unresolved, err := s.countUnresolvedLinksWithQuerier(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	status.UnresolvedLinks = unresolved

	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingCount > 0,
		FTSIndexBuilt:       true, // created with migrations
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier(), projectID)
}

// kindFromString maps a stored discriminator back to a RowKind.
func kindFromString(s string) types.RowKind {
	return types.RowKind(s)
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// Checked by message so both the cgo and purego drivers are covered.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// Transaction implementations - delegate to the internal querier helpers

func (t *sqliteTx) CreateProject(ctx context.Context, project *Project) error {
	return t.storage.createProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) GetProject(ctx context.Context, name string) (*Project, error) {
	return t.storage.getProjectWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) GetProjectByID(ctx context.Context, projectID int64) (*Project, error) {
	return t.storage.getProjectByIDWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) UpdateProject(ctx context.Context, project *Project) error {
	return t.storage.updateProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) CreateEntity(ctx context.Context, entity *Entity) error {
	return t.storage.createEntityWithQuerier(ctx, t.querier(), entity)
}

func (t *sqliteTx) UpdateEntity(ctx context.Context, entity *Entity) error {
	return t.storage.updateEntityWithQuerier(ctx, t.querier(), entity)
}

func (t *sqliteTx) UpdateEntityPath(ctx context.Context, entityID int64, newPath string) error {
	return t.storage.updateEntityPathWithQuerier(ctx, t.querier(), entityID, newPath)
}

func (t *sqliteTx) GetEntityByID(ctx context.Context, entityID int64) (*Entity, error) {
	return t.storage.getEntityByIDWithQuerier(ctx, t.querier(), entityID)
}

func (t *sqliteTx) GetEntityByPath(ctx context.Context, projectID int64, filePath string) (*Entity, error) {
	return t.storage.getEntityByPathWithQuerier(ctx, t.querier(), projectID, filePath)
}

func (t *sqliteTx) GetEntityBySlug(ctx context.Context, projectID int64, slug string) (*Entity, error) {
	return t.storage.getEntityBySlugWithQuerier(ctx, t.querier(), projectID, slug)
}

func (t *sqliteTx) GetEntityByTitle(ctx context.Context, projectID int64, title string) (*Entity, error) {
	return t.storage.getEntityByTitleWithQuerier(ctx, t.querier(), projectID, title)
}

func (t *sqliteTx) ListEntities(ctx context.Context, projectID int64) ([]*Entity, error) {
	return t.storage.listEntitiesWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) DeleteEntity(ctx context.Context, entityID int64) error {
	return t.storage.deleteEntityWithQuerier(ctx, t.querier(), entityID)
}

func (t *sqliteTx) ReplaceFacts(ctx context.Context, entityID int64, facts []*Fact) error {
	return t.storage.replaceFactsWithQuerier(ctx, t.querier(), entityID, facts)
}

func (t *sqliteTx) ListFactsByEntity(ctx context.Context, entityID int64) ([]*Fact, error) {
	return t.storage.listFactsByEntityWithQuerier(ctx, t.querier(), entityID)
}

func (t *sqliteTx) ReplaceLinks(ctx context.Context, sourceID int64, links []*Link) error {
	return t.storage.replaceLinksWithQuerier(ctx, t.querier(), sourceID, links)
}

func (t *sqliteTx) ListLinksBySource(ctx context.Context, sourceID int64) ([]*Link, error) {
	return t.storage.listLinksBySourceWithQuerier(ctx, t.querier(), sourceID)
}

func (t *sqliteTx) ListUnresolvedLinks(ctx context.Context, projectID int64) ([]*Link, error) {
	return t.storage.listUnresolvedLinksWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) ResolveLink(ctx context.Context, linkID, targetID int64) error {
	return t.storage.resolveLinkWithQuerier(ctx, t.querier(), linkID, targetID)
}

func (t *sqliteTx) CountUnresolvedLinks(ctx context.Context, projectID int64) (int, error) {
	return t.storage.countUnresolvedLinksWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) ReplaceSearchRows(ctx context.Context, entityID int64, rows []*SearchRow) error {
	return t.storage.replaceSearchRowsWithQuerier(ctx, t.querier(), entityID, rows)
}

func (t *sqliteTx) GetSearchRow(ctx context.Context, rowID int64) (*SearchRow, error) {
	return t.storage.getSearchRowWithQuerier(ctx, t.querier(), rowID)
}

func (t *sqliteTx) ListSearchRowsByEntity(ctx context.Context, entityID int64) ([]*SearchRow, error) {
	return t.storage.listSearchRowsByEntityWithQuerier(ctx, t.querier(), entityID)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.querier(), embedding)
}

func (t *sqliteTx) ListEmbeddingsByEntity(ctx context.Context, entityID int64) ([]*Embedding, error) {
	return t.storage.listEmbeddingsByEntityWithQuerier(ctx, t.querier(), entityID)
}

func (t *sqliteTx) StoredDimension(ctx context.Context) (int, error) {
	return t.storage.storedDimensionWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) SearchText(ctx context.Context, projectID int64, match string, limit, offset int, filters *SearchFilters) ([]TextResult, int, error) {
	return searchText(ctx, t.querier(), projectID, match, limit, offset, filters)
}

func (t *sqliteTx) SearchVector(ctx context.Context, projectID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), projectID, vector, limit, filters)
}

func (t *sqliteTx) GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
