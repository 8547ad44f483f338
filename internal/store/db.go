package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/coeus-memory/coeus/internal/engineerr"
	"github.com/coeus-memory/coeus/internal/logging"
	"github.com/coeus-memory/coeus/internal/vecmath"
)

var log = logging.GetLogger("store")

// Store is the SQLite-backed implementation of the engine's document-store
// contract (spec.md §4.3). A single writer connection and an in-process
// mutex give the linearizable same-record writes §5 requires; WAL mode lets
// reads proceed without blocking on an in-flight write's fsync.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens (creating if absent) the SQLite database at path and ensures
// its schema is current.
func Open(path string) (*Store, error) {
	log.Info("opening store", "path", path)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, engineerr.StoreFailure("open", fmt.Errorf("create database directory: %w", err))
		}
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, engineerr.StoreFailure("open", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, engineerr.StoreFailure("open", err)
	}

	s := &Store{db: db, path: path}
	if err := s.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the schema if it does not already exist. Idempotent and
// transaction-guarded, following the teacher's init pattern.
func (s *Store) InitSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var name string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='memories' LIMIT 1`).Scan(&name)
	if err == nil && name != "" {
		log.Debug("schema already initialized")
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return engineerr.StoreFailure("init_schema", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(CoreSchema); err != nil {
		return engineerr.StoreFailure("init_schema", err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, SchemaVersion); err != nil {
		return engineerr.StoreFailure("init_schema", err)
	}
	if err := tx.Commit(); err != nil {
		return engineerr.StoreFailure("init_schema", err)
	}

	log.Info("schema initialized", "version", SchemaVersion)
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Save upserts record, overwriting every column except created_at on
// conflict, per §4.3.
func (s *Store) Save(ctx context.Context, m *Memory) error {
	if err := ctx.Err(); err != nil {
		return engineerr.Cancelled("save")
	}

	m.Normalize()
	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return engineerr.StoreFailure("save", err)
	}
	supersededJSON, err := json.Marshal(nonNilStrings(m.SupersededIDs))
	if err != nil {
		return engineerr.StoreFailure("save", err)
	}
	linkedJSON, err := json.Marshal(nonNilStrings(m.LinkedNodeIDs))
	if err != nil {
		return engineerr.StoreFailure("save", err)
	}

	var embedding []byte
	if len(m.Embedding) > 0 {
		embedding = vecmath.PackVector(m.Embedding)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO memories (
			id, title, summary, content, content_normalized, tags, embedding,
			created_at, last_accessed_at, access_count, base_strength, decay_rate,
			importance, is_pinned, expires_at, is_archived, superseded_by,
			superseded_ids, valid_from, valid_until, linked_node_ids
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			content = excluded.content,
			content_normalized = excluded.content_normalized,
			tags = excluded.tags,
			embedding = excluded.embedding,
			last_accessed_at = excluded.last_accessed_at,
			access_count = excluded.access_count,
			base_strength = excluded.base_strength,
			decay_rate = excluded.decay_rate,
			importance = excluded.importance,
			is_pinned = excluded.is_pinned,
			expires_at = excluded.expires_at,
			is_archived = excluded.is_archived,
			superseded_by = excluded.superseded_by,
			superseded_ids = excluded.superseded_ids,
			valid_from = excluded.valid_from,
			valid_until = excluded.valid_until,
			linked_node_ids = excluded.linked_node_ids
	`,
		m.ID, m.Title, m.Summary, m.Content, m.ContentNormalized, string(tagsJSON), embedding,
		m.CreatedAt, m.LastAccessedAt, m.AccessCount, m.BaseStrength, m.DecayRate,
		m.Importance, m.IsPinned, m.ExpiresAt, m.IsArchived, m.SupersededBy,
		string(supersededJSON), m.ValidFrom, m.ValidUntil, string(linkedJSON),
	)
	if err != nil {
		return engineerr.StoreFailure("save", err)
	}
	return nil
}

// Get loads a record by id, including archived ones; the search path is
// responsible for filtering, per §4.3.
func (s *Store) Get(ctx context.Context, id string) (*Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, engineerr.Cancelled("get")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(selectColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, engineerr.NotFound(id)
	}
	if err != nil {
		return nil, engineerr.StoreFailure("get", err)
	}
	return m, nil
}

// Delete physically removes a record, returning whether one existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, engineerr.Cancelled("delete")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, engineerr.StoreFailure("delete", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// Enumerate returns a snapshot of every record. Finite and unordered per
// §4.3; callers needing order sort the result themselves.
func (s *Store) Enumerate(ctx context.Context) ([]*Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, engineerr.Cancelled("enumerate")
	}

	s.mu.RLock()
	rows, err := s.db.Query(selectColumns + ` FROM memories`)
	s.mu.RUnlock()
	if err != nil {
		return nil, engineerr.StoreFailure("enumerate", err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return out, engineerr.Cancelled("enumerate")
		}
		m, err := scanMemory(rows)
		if err != nil {
			return nil, engineerr.StoreFailure("enumerate", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, engineerr.StoreFailure("enumerate", err)
	}
	return out, nil
}

// PruneWeak deletes every non-pinned record whose current strength is below
// threshold, returning the count removed.
func (s *Store) PruneWeak(ctx context.Context, threshold float64) (int, error) {
	all, err := s.Enumerate(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	pruned := 0
	for _, m := range all {
		if err := ctx.Err(); err != nil {
			return pruned, engineerr.Cancelled("prune_weak")
		}
		if m.IsPinned {
			continue
		}
		if m.CurrentStrength(now) >= threshold {
			continue
		}
		ok, err := s.Delete(ctx, m.ID)
		if err != nil {
			return pruned, err
		}
		if ok {
			pruned++
		}
	}
	return pruned, nil
}

// Reinforce performs an atomic load-modify-store of §4.2's reinforce: the
// read and the write both happen under the store's write lock.
func (s *Store) Reinforce(ctx context.Context, id string) (*Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, engineerr.Cancelled("reinforce")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := scanMemory(s.db.QueryRow(selectColumns+` FROM memories WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, engineerr.NotFound(id)
	}
	if err != nil {
		return nil, engineerr.StoreFailure("reinforce", err)
	}
	m.Reinforce(time.Now().UTC())
	if _, err := s.db.Exec(`UPDATE memories SET access_count = ?, base_strength = ?, last_accessed_at = ? WHERE id = ?`,
		m.AccessCount, m.BaseStrength, m.LastAccessedAt, id); err != nil {
		return nil, engineerr.StoreFailure("reinforce", err)
	}
	return m, nil
}

// Stats reports aggregate store statistics, per §4.3.
type Stats struct {
	Total          int
	AvgStrength    float64
	WeakCount      int
	DBSizeBytes    int64
	OldestCreated  *time.Time
	NewestCreated  *time.Time
}

// WeakThreshold is the strength cutoff Stats uses to report WeakCount; it
// mirrors the default maintenance.prune_threshold.
const WeakThreshold = 0.1

// Stats computes aggregate statistics over all records.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	all, err := s.Enumerate(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: len(all)}
	if info, statErr := os.Stat(s.path); statErr == nil {
		stats.DBSizeBytes = info.Size()
	}

	now := time.Now().UTC()
	var sumStrength float64
	for _, m := range all {
		strength := m.CurrentStrength(now)
		sumStrength += strength
		if strength < WeakThreshold {
			stats.WeakCount++
		}
		if stats.OldestCreated == nil || m.CreatedAt.Before(*stats.OldestCreated) {
			c := m.CreatedAt
			stats.OldestCreated = &c
		}
		if stats.NewestCreated == nil || m.CreatedAt.After(*stats.NewestCreated) {
			c := m.CreatedAt
			stats.NewestCreated = &c
		}
	}
	if stats.Total > 0 {
		stats.AvgStrength = sumStrength / float64(stats.Total)
	}
	return stats, nil
}

// Compact reclaims physical space, following the teacher's Vacuum/Checkpoint
// pair.
func (s *Store) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return engineerr.Cancelled("compact")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return engineerr.StoreFailure("compact", err)
	}
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return engineerr.StoreFailure("compact", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, title, summary, content, content_normalized, tags, embedding,
	       created_at, last_accessed_at, access_count, base_strength, decay_rate,
	       importance, is_pinned, expires_at, is_archived, superseded_by,
	       superseded_ids, valid_from, valid_until, linked_node_ids`

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (*Memory, error) {
	var m Memory
	var tagsJSON, supersededJSON, linkedJSON string
	var embedding []byte
	var supersededBy sql.NullString
	var expiresAt, validUntil sql.NullTime

	err := row.Scan(
		&m.ID, &m.Title, &m.Summary, &m.Content, &m.ContentNormalized, &tagsJSON, &embedding,
		&m.CreatedAt, &m.LastAccessedAt, &m.AccessCount, &m.BaseStrength, &m.DecayRate,
		&m.Importance, &m.IsPinned, &expiresAt, &m.IsArchived, &supersededBy,
		&supersededJSON, &m.ValidFrom, &validUntil, &linkedJSON,
	)
	if err != nil {
		return nil, err
	}

	if supersededBy.Valid && supersededBy.String != "" {
		v := supersededBy.String
		m.SupersededBy = &v
	}
	if expiresAt.Valid {
		v := expiresAt.Time
		m.ExpiresAt = &v
	}
	if validUntil.Valid {
		v := validUntil.Time
		m.ValidUntil = &v
	}
	if len(embedding) > 0 {
		m.Embedding = vecmath.UnpackVector(embedding)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(supersededJSON), &m.SupersededIDs); err != nil {
		return nil, fmt.Errorf("decode superseded_ids: %w", err)
	}
	if err := json.Unmarshal([]byte(linkedJSON), &m.LinkedNodeIDs); err != nil {
		return nil, fmt.Errorf("decode linked_node_ids: %w", err)
	}
	return &m, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
