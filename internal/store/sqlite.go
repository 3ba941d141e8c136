package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/minimind-ai/minimind/internal/domain"
)

// SQLiteStore is the zero-config storage driver: one file on disk, vectors
// and metadata serialized as JSON text. Suitable for single-process runs.
type SQLiteStore struct {
	db *sql.DB
}

var _ domain.Storage = (*SQLiteStore)(nil)

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "minimind.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single writer connection avoids lock contention between goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS memory_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}'
		);`,
		`CREATE INDEX IF NOT EXISTS memory_log_agent_idx ON memory_log(agent_id, id);`,
		`CREATE TABLE IF NOT EXISTS summaries (
			agent_id TEXT PRIMARY KEY,
			mid_term TEXT NOT NULL DEFAULT '',
			long_term TEXT NOT NULL DEFAULT '',
			last_compaction_ms INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS summary_snapshots (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding_json TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS summary_snapshots_agent_idx ON summary_snapshots(agent_id, created_at_ms);`,
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			vectors_json TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			UNIQUE(agent_id, title)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) ReadSummaries(ctx context.Context, agentID string) (*domain.SummaryState, error) {
	state := &domain.SummaryState{}
	var lastMS int64
	err := s.db.QueryRowContext(ctx,
		`SELECT mid_term, long_term, last_compaction_ms FROM summaries WHERE agent_id = ?`,
		agentID,
	).Scan(&state.MidTerm, &state.LongTerm, &lastMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.SummaryState{}, nil
		}
		return nil, fmt.Errorf("read summaries: %w", err)
	}
	state.LastCompaction = timeFromMS(lastMS)
	return state, nil
}

func (s *SQLiteStore) WriteSummaries(ctx context.Context, agentID string, state domain.SummaryState) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO summaries(agent_id, mid_term, long_term, last_compaction_ms)
VALUES(?, ?, ?, ?)
ON CONFLICT(agent_id) DO UPDATE SET
	mid_term = excluded.mid_term,
	long_term = excluded.long_term,
	last_compaction_ms = excluded.last_compaction_ms`,
		agentID, state.MidTerm, state.LongTerm, msFromTime(state.LastCompaction))
	if err != nil {
		return fmt.Errorf("write summaries: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendHistoricalSummary(ctx context.Context, snap *domain.SummarySnapshot) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO summary_snapshots(id, agent_id, content, embedding_json, created_at_ms)
VALUES(?, ?, ?, ?, ?)`,
		snap.ID.String(), snap.AgentID, snap.Content,
		encodeEmbedding(snap.Embedding), msFromTime(snap.CreatedAt))
	if err != nil {
		return fmt.Errorf("append summary snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListHistoricalSummaries(ctx context.Context, agentID string) ([]domain.SummarySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, agent_id, content, embedding_json, created_at_ms
FROM summary_snapshots
WHERE agent_id = ?
ORDER BY created_at_ms ASC, rowid ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list summary snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.SummarySnapshot
	for rows.Next() {
		var snap domain.SummarySnapshot
		var id, embeddingRaw string
		var createdMS int64
		if err := rows.Scan(&id, &snap.AgentID, &snap.Content, &embeddingRaw, &createdMS); err != nil {
			return nil, fmt.Errorf("scan summary snapshot: %w", err)
		}
		snap.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse snapshot id: %w", err)
		}
		snap.Embedding = decodeEmbedding(embeddingRaw)
		snap.CreatedAt = timeFromMS(createdMS)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary snapshots: %w", err)
	}
	return snaps, nil
}

func (s *SQLiteStore) SetSummaryEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE summary_snapshots SET embedding_json = ? WHERE id = ?`,
		encodeEmbedding(embedding), id.String())
	if err != nil {
		return fmt.Errorf("set summary embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set summary embedding: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ReadMemoryLog(ctx context.Context, agentID string, maxCount int) ([]domain.MemoryEntry, error) {
	query := `SELECT content, created_at_ms, metadata_json
FROM memory_log WHERE agent_id = ? ORDER BY id ASC`
	args := []any{agentID}
	if maxCount > 0 {
		query = `SELECT content, created_at_ms, metadata_json FROM (
	SELECT id, content, created_at_ms, metadata_json
	FROM memory_log WHERE agent_id = ?
	ORDER BY id DESC LIMIT ?
) newest ORDER BY id ASC`
		args = append(args, maxCount)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read memory log: %w", err)
	}
	defer rows.Close()

	var entries []domain.MemoryEntry
	for rows.Next() {
		var e domain.MemoryEntry
		var createdMS int64
		var metaRaw string
		if err := rows.Scan(&e.Content, &createdMS, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan memory entry: %w", err)
		}
		e.Timestamp = timeFromMS(createdMS)
		e.Metadata = decodeMetadata(metaRaw)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory log: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) AppendMemoryEntry(ctx context.Context, agentID string, e domain.MemoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO memory_log(agent_id, content, created_at_ms, metadata_json)
VALUES(?, ?, ?, ?)`,
		agentID, e.Content, msFromTime(e.Timestamp), encodeMetadata(e.Metadata))
	if err != nil {
		return fmt.Errorf("append memory entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveNote(ctx context.Context, agentID string, n *domain.Note, vectors map[string][]float32) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO notes(id, agent_id, title, content, vectors_json, created_at_ms, updated_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(agent_id, title) DO UPDATE SET
	content = excluded.content,
	vectors_json = excluded.vectors_json,
	updated_at_ms = excluded.updated_at_ms`,
		n.ID.String(), agentID, n.Title, n.Content,
		encodeVectors(vectors), msFromTime(n.CreatedAt), msFromTime(n.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListNotes(ctx context.Context, agentID string) ([]domain.NoteRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, content, vectors_json, created_at_ms, updated_at_ms
FROM notes
WHERE agent_id = ?
ORDER BY created_at_ms ASC, rowid ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var records []domain.NoteRecord
	for rows.Next() {
		var rec domain.NoteRecord
		var id, vectorsRaw string
		var createdMS, updatedMS int64
		if err := rows.Scan(&id, &rec.Title, &rec.Content, &vectorsRaw, &createdMS, &updatedMS); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		rec.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse note id: %w", err)
		}
		rec.Vectors = decodeVectors(vectorsRaw)
		rec.CreatedAt = timeFromMS(createdMS)
		rec.UpdatedAt = timeFromMS(updatedMS)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func msFromTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timeFromMS(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func encodeMetadata(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeMetadata(raw string) map[string]any {
	if raw == "" || raw == "{}" {
		return nil
	}
	out := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeEmbedding(vec []float32) string {
	if len(vec) == 0 {
		return ""
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeEmbedding(raw string) []float32 {
	if raw == "" {
		return nil
	}
	out := []float32{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeVectors(vectors map[string][]float32) string {
	if len(vectors) == 0 {
		return "{}"
	}
	b, err := json.Marshal(vectors)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeVectors(raw string) map[string][]float32 {
	if raw == "" || raw == "{}" {
		return nil
	}
	out := map[string][]float32{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
