package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// Store owns the persisted rows: the canonical memories table, the FTS5
// keyword index and the sqlite-vec vector index, all in one SQLite file.
//
// The keyword index is written in the same transaction as the canonical row;
// the vector index is a best-effort secondary write (see PutVector). When a
// virtual-table extension is missing at runtime the corresponding search
// returns empty instead of erroring.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger

	ftsAvailable bool
	vecAvailable bool
}

// OpenStore opens or creates the database at dbPath and initializes the
// schema. WAL mode gives one writer plus concurrent readers.
func OpenStore(dbPath string, logger zerolog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_fts5=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			app_name TEXT NOT NULL,
			memory_type TEXT NOT NULL CHECK (memory_type IN ('profile', 'episodic', 'semantic')),
			text TEXT NOT NULL,
			source TEXT,
			importance INTEGER NOT NULL DEFAULT 1,
			tags_json TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL,
			expires_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
		CREATE INDEX IF NOT EXISTS idx_memories_app ON memories(app_name);
		CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 keyword index. Some SQLite builds ship without FTS5; keyword
	// search then degrades to empty results.
	ftsSchema := `
		CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			memory_id UNINDEXED,
			text,
			tokenize='porter unicode61'
		);
	`
	if _, err := s.db.Exec(ftsSchema); err != nil {
		s.logger.Warn().Err(err).Msg("FTS5 unavailable, keyword search disabled")
	} else {
		s.ftsAvailable = true
	}

	// sqlite-vec vector index, cosine distance over 256-dim float32.
	vecSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS memory_vectors USING vec0(
			memory_id INTEGER PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, VectorDim)
	if _, err := s.db.Exec(vecSchema); err != nil {
		s.logger.Warn().Err(err).Msg("sqlite-vec unavailable, vector search disabled")
	} else {
		s.vecAvailable = true
	}

	return nil
}

// Insert writes the canonical row and its keyword index entry in one
// transaction and returns the assigned id.
func (s *Store) Insert(ctx context.Context, in AddInput, createdAt int64) (int64, error) {
	importance := in.Importance
	if importance == 0 {
		importance = 1
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return 0, fmt.Errorf("failed to encode tags: %w", err)
	}

	var source any
	if in.Source != "" {
		source = in.Source
	}
	var expiresAt any
	if in.ExpiresAt != nil {
		expiresAt = *in.ExpiresAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO memories (user_id, app_name, memory_type, text, source, importance, tags_json, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, in.UserID, in.AppName, string(in.Type), in.Text, source, importance, string(tagsJSON), createdAt, expiresAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert memory: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if s.ftsAvailable {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO memories_fts (memory_id, text) VALUES (?, ?)",
			id, in.Text,
		); err != nil {
			return 0, fmt.Errorf("failed to index memory text: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return id, nil
}

// PutVector stores or replaces the vector for a memory id. vec must be
// VectorDim long; it is serialized as raw little-endian float32.
func (s *Store) PutVector(ctx context.Context, id int64, vec []float32) error {
	if !s.vecAvailable {
		return fmt.Errorf("%w: sqlite-vec not loaded", ErrIndexUnavailable)
	}
	if len(vec) != VectorDim {
		return fmt.Errorf("vector must have %d dimensions, got %d", VectorDim, len(vec))
	}

	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return fmt.Errorf("failed to serialize vector: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO memory_vectors (memory_id, embedding) VALUES (?, ?)",
		id, blob,
	); err != nil {
		return fmt.Errorf("failed to store vector: %w", err)
	}
	return nil
}

// Delete removes the canonical row and both index entries. It reports whether
// a row actually existed; a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if s.ftsAvailable {
		if _, err := tx.ExecContext(ctx, "DELETE FROM memories_fts WHERE memory_id = ?", id); err != nil {
			return false, fmt.Errorf("failed to delete keyword entry: %w", err)
		}
	}

	if s.vecAvailable {
		if _, err := tx.ExecContext(ctx, "DELETE FROM memory_vectors WHERE memory_id = ?", id); err != nil {
			// Secondary index only; the canonical delete still commits.
			s.logger.Warn().Err(err).Int64("id", id).Msg("Failed to delete vector entry")
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// GetByUser returns all memories for the (userID, appName) scope, newest
// first, optionally filtered by type.
func (s *Store) GetByUser(ctx context.Context, userID, appName string, memType *MemoryType) ([]Memory, error) {
	query := `
		SELECT id, user_id, app_name, memory_type, text, source, importance, tags_json, created_at, expires_at
		FROM memories
		WHERE user_id = ? AND app_name = ?
	`
	args := []any{userID, appName}
	if memType != nil {
		query += " AND memory_type = ?"
		args = append(args, string(*memType))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// KeywordSearch runs a BM25-ranked FTS5 query scoped to (userID, appName),
// best match first. Returns empty when FTS5 is unavailable.
func (s *Store) KeywordSearch(ctx context.Context, match, userID, appName string, limit int) ([]Memory, error) {
	if !s.ftsAvailable {
		return nil, nil
	}
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.user_id, m.app_name, m.memory_type, m.text, m.source, m.importance, m.tags_json, m.created_at, m.expires_at
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.memory_id
		WHERE memories_fts MATCH ? AND m.user_id = ? AND m.app_name = ?
		ORDER BY bm25(memories_fts)
		LIMIT ?
	`, match, userID, appName, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// VectorSearch returns the memories nearest to vec by cosine distance, scoped
// to (userID, appName), closest first. Returns empty when sqlite-vec is
// unavailable.
func (s *Store) VectorSearch(ctx context.Context, vec []float32, userID, appName string, limit int) ([]Memory, error) {
	if !s.vecAvailable {
		return nil, nil
	}
	if len(vec) != VectorDim {
		return nil, fmt.Errorf("query vector must have %d dimensions, got %d", VectorDim, len(vec))
	}

	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query vector: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.user_id, m.app_name, m.memory_type, m.text, m.source, m.importance, m.tags_json, m.created_at, m.expires_at,
			vec_distance_cosine(v.embedding, ?) AS distance
		FROM memory_vectors v
		JOIN memories m ON m.id = v.memory_id
		WHERE m.user_id = ? AND m.app_name = ?
		ORDER BY distance ASC
		LIMIT ?
	`, blob, userID, appName, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var memories []Memory
	for rows.Next() {
		var m Memory
		var distance float64
		if err := scanMemoryColumns(rows, &m, &distance); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// DeleteExpired removes every row whose expires_at has passed, cascading to
// both indexes. Returns the number of rows removed.
func (s *Store) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired memories: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var removed int64
	for _, id := range ids {
		ok, err := s.Delete(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// Count returns the total number of stored memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var memories []Memory
	for rows.Next() {
		var m Memory
		if err := scanMemoryColumns(rows, &m); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// scanMemoryColumns scans the canonical column list into m, plus any trailing
// columns (e.g. a distance) into extra.
func scanMemoryColumns(rows *sql.Rows, m *Memory, extra ...any) error {
	var (
		memType   string
		source    sql.NullString
		tagsJSON  string
		expiresAt sql.NullInt64
	)

	dest := []any{&m.ID, &m.UserID, &m.AppName, &memType, &m.Text, &source, &m.Importance, &tagsJSON, &m.CreatedAt, &expiresAt}
	dest = append(dest, extra...)
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("failed to scan memory row: %w", err)
	}

	m.Type = MemoryType(memType)
	if source.Valid {
		m.Source = source.String
	}
	if expiresAt.Valid {
		v := expiresAt.Int64
		m.ExpiresAt = &v
	}
	if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
		return fmt.Errorf("failed to decode tags for memory %d: %w", m.ID, err)
	}
	return nil
}
