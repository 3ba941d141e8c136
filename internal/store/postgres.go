package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/minimind-ai/minimind/internal/domain"
)

const defaultEmbeddingDims = 384

// PostgresStore persists agent state in Postgres, with pgvector columns for
// every embedding so recall indexes can be rebuilt without re-embedding.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ domain.Storage = (*PostgresStore)(nil)

func OpenPostgres(ctx context.Context, databaseURL string, embeddingDims int) (*PostgresStore, error) {
	if embeddingDims <= 0 {
		embeddingDims = defaultEmbeddingDims
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: pool}
	if err := s.ensureSchema(ctx, embeddingDims); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context, dims int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS memory_log (
			id BIGSERIAL PRIMARY KEY,
			agent_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			metadata JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS memory_log_agent_idx ON memory_log (agent_id, id)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			agent_id TEXT PRIMARY KEY,
			mid_term TEXT NOT NULL DEFAULT '',
			long_term TEXT NOT NULL DEFAULT '',
			last_compaction TIMESTAMPTZ
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS summary_snapshots (
			id UUID PRIMARY KEY,
			agent_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL
		)`, dims),
		`CREATE INDEX IF NOT EXISTS summary_snapshots_agent_idx ON summary_snapshots (agent_id, created_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS notes (
			id UUID PRIMARY KEY,
			agent_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			title_vec vector(%d),
			content_vec vector(%d),
			combined_vec vector(%d),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (agent_id, title)
		)`, dims, dims, dims),
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// ReadSummaries returns the stored summary state; an agent with no row yet
// gets an empty state, not an error.
func (s *PostgresStore) ReadSummaries(ctx context.Context, agentID string) (*domain.SummaryState, error) {
	state := &domain.SummaryState{}
	var lastCompaction *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT mid_term, long_term, last_compaction
		 FROM summaries WHERE agent_id = $1`,
		agentID,
	).Scan(&state.MidTerm, &state.LongTerm, &lastCompaction)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.SummaryState{}, nil
		}
		return nil, err
	}
	if lastCompaction != nil {
		state.LastCompaction = *lastCompaction
	}
	return state, nil
}

func (s *PostgresStore) WriteSummaries(ctx context.Context, agentID string, state domain.SummaryState) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO summaries (agent_id, mid_term, long_term, last_compaction)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (agent_id) DO UPDATE
		 SET mid_term = EXCLUDED.mid_term,
		     long_term = EXCLUDED.long_term,
		     last_compaction = EXCLUDED.last_compaction`,
		agentID, state.MidTerm, state.LongTerm, nullableTime(state.LastCompaction),
	)
	return err
}

func (s *PostgresStore) AppendHistoricalSummary(ctx context.Context, snap *domain.SummarySnapshot) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO summary_snapshots (id, agent_id, content, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		snap.ID, snap.AgentID, snap.Content, nullableVector(snap.Embedding), snap.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListHistoricalSummaries(ctx context.Context, agentID string) ([]domain.SummarySnapshot, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, content, embedding, created_at
		 FROM summary_snapshots WHERE agent_id = $1
		 ORDER BY created_at ASC, id ASC`,
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []domain.SummarySnapshot
	for rows.Next() {
		var snap domain.SummarySnapshot
		var embedding *pgvector.Vector
		if err := rows.Scan(&snap.ID, &snap.AgentID, &snap.Content, &embedding, &snap.CreatedAt); err != nil {
			return nil, err
		}
		if embedding != nil {
			snap.Embedding = embedding.Slice()
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *PostgresStore) SetSummaryEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE summary_snapshots SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(embedding), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReadMemoryLog returns the newest maxCount entries oldest-to-newest;
// maxCount <= 0 returns everything.
func (s *PostgresStore) ReadMemoryLog(ctx context.Context, agentID string, maxCount int) ([]domain.MemoryEntry, error) {
	query := `SELECT content, created_at, metadata
	          FROM memory_log WHERE agent_id = $1 ORDER BY id ASC`
	args := []any{agentID}
	if maxCount > 0 {
		query = `SELECT content, created_at, metadata FROM (
		           SELECT id, content, created_at, metadata
		           FROM memory_log WHERE agent_id = $1
		           ORDER BY id DESC LIMIT $2
		         ) newest ORDER BY id ASC`
		args = append(args, maxCount)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.MemoryEntry
	for rows.Next() {
		var e domain.MemoryEntry
		if err := rows.Scan(&e.Content, &e.Timestamp, &e.Metadata); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) AppendMemoryEntry(ctx context.Context, agentID string, e domain.MemoryEntry) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO memory_log (agent_id, content, created_at, metadata)
		 VALUES ($1, $2, $3, $4)`,
		agentID, e.Content, e.Timestamp, e.Metadata,
	)
	return err
}

func (s *PostgresStore) SaveNote(ctx context.Context, agentID string, n *domain.Note, vectors map[string][]float32) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO notes (id, agent_id, title, content, title_vec, content_vec, combined_vec, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (agent_id, title) DO UPDATE
		 SET content = EXCLUDED.content,
		     title_vec = EXCLUDED.title_vec,
		     content_vec = EXCLUDED.content_vec,
		     combined_vec = EXCLUDED.combined_vec,
		     updated_at = EXCLUDED.updated_at`,
		n.ID, agentID, n.Title, n.Content,
		nullableVector(vectors[domain.VectorKindTitle]),
		nullableVector(vectors[domain.VectorKindContent]),
		nullableVector(vectors[domain.VectorKindCombined]),
		n.CreatedAt, n.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) ListNotes(ctx context.Context, agentID string) ([]domain.NoteRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, title, content, title_vec, content_vec, combined_vec, created_at, updated_at
		 FROM notes WHERE agent_id = $1
		 ORDER BY created_at ASC, id ASC`,
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.NoteRecord
	for rows.Next() {
		var rec domain.NoteRecord
		var titleVec, contentVec, combinedVec *pgvector.Vector
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Content,
			&titleVec, &contentVec, &combinedVec,
			&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Vectors = vectorMap(titleVec, contentVec, combinedVec)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableVector(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

func vectorMap(title, content, combined *pgvector.Vector) map[string][]float32 {
	m := make(map[string][]float32, 3)
	if title != nil {
		m[domain.VectorKindTitle] = title.Slice()
	}
	if content != nil {
		m[domain.VectorKindContent] = content.Slice()
	}
	if combined != nil {
		m[domain.VectorKindCombined] = combined.Slice()
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
