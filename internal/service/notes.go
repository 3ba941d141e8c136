package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minimind-ai/minimind/internal/domain"
	"github.com/minimind-ai/minimind/internal/embedding"
)

// NoteService holds one agent's title-keyed notes. Notes are never
// auto-pruned; the in-memory list is authoritative and storage follows. Each
// note carries title, content and combined vectors in the agent's note index
// so it can be found both by term frequency and by semantic search.
type NoteService struct {
	agentID       string
	storage       domain.Storage
	embedder      domain.EmbeddingClient
	index         *embedding.Index
	minSimilarity float32
	logger        *zap.Logger

	mu      sync.Mutex
	records []domain.NoteRecord
	byTitle map[string]int
}

func NewNoteService(agentID string, storage domain.Storage, embedder domain.EmbeddingClient, minSimilarity float32, logger *zap.Logger) *NoteService {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	return &NoteService{
		agentID:       agentID,
		storage:       storage,
		embedder:      embedder,
		index:         embedding.NewIndex(),
		minSimilarity: minSimilarity,
		logger:        logger,
		byTitle:       make(map[string]int),
	}
}

func (s *NoteService) AgentID() string { return s.agentID }

// Save creates or updates the note with the given title. The combined vector
// blends title and content so short titles still anchor retrieval. Embedding
// failure degrades to an unindexed note; the indexer worker re-embeds it
// later.
func (s *NoteService) Save(ctx context.Context, title, content string) (*domain.Note, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" {
		return nil, fmt.Errorf("note title is required")
	}

	now := time.Now()

	s.mu.Lock()
	idx, exists := s.byTitle[title]
	if exists {
		s.records[idx].Content = content
		s.records[idx].UpdatedAt = now
	} else {
		idx = len(s.records)
		s.records = append(s.records, domain.NoteRecord{Note: domain.Note{
			ID:        uuid.New(),
			Title:     title,
			Content:   content,
			CreatedAt: now,
			UpdatedAt: now,
		}})
		s.byTitle[title] = idx
	}
	note := s.records[idx].Note
	s.mu.Unlock()

	vectors := s.embedNote(ctx, title, content)

	s.mu.Lock()
	s.records[idx].Vectors = vectors
	s.mu.Unlock()

	if err := s.storage.SaveNote(ctx, s.agentID, &note, vectors); err != nil {
		s.logger.Warn("failed to persist note",
			zap.String("agent_id", s.agentID),
			zap.String("title", title),
			zap.Error(err))
	}
	if vectors != nil {
		s.indexNote(note.ID, title, vectors)
	}

	s.logger.Info("note saved",
		zap.String("agent_id", s.agentID),
		zap.String("title", title),
		zap.Bool("updated", exists))
	return &note, nil
}

func (s *NoteService) embedNote(ctx context.Context, title, content string) map[string][]float32 {
	vecs, err := s.embedder.Embed(ctx, []string{title, content})
	if err != nil || len(vecs) != 2 {
		s.logger.Warn("failed to embed note, leaving it unindexed",
			zap.String("agent_id", s.agentID),
			zap.String("title", title),
			zap.Error(err))
		return nil
	}
	return map[string][]float32{
		domain.VectorKindTitle:   vecs[0],
		domain.VectorKindContent: vecs[1],
		domain.VectorKindCombined: embedding.Combine(
			vecs[0], domain.CombinedTitleWeight,
			vecs[1], domain.CombinedContentWeight),
	}
}

func (s *NoteService) indexNote(id uuid.UUID, title string, vectors map[string][]float32) {
	if err := s.index.Upsert(id.String(), vectors, map[string]any{"title": title}); err != nil {
		s.logger.Warn("failed to index note",
			zap.String("agent_id", s.agentID),
			zap.String("title", title),
			zap.Error(err))
	}
}

// RelevantNotes scores notes by how often each term occurs in the title and
// content, case-insensitively, and returns the best scorers. Zero-score notes
// are excluded; ties keep insertion order. maxResults <= 0 means no cap. Pure
// read, no I/O.
func (s *NoteService) RelevantNotes(terms []string, maxResults int) []domain.Note {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}
	if len(lowered) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		note  domain.Note
		score int
		seq   int
	}
	var hits []scored
	for i, rec := range s.records {
		haystack := strings.ToLower(rec.Title + " " + rec.Content)
		score := 0
		for _, term := range lowered {
			score += strings.Count(haystack, term)
		}
		if score == 0 {
			continue
		}
		hits = append(hits, scored{note: rec.Note, score: score, seq: i})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].seq < hits[j].seq
	})
	if maxResults > 0 && len(hits) > maxResults {
		hits = hits[:maxResults]
	}

	out := make([]domain.Note, len(hits))
	for i, h := range hits {
		out[i] = h.note
	}
	return out
}

// Search ranks notes by semantic similarity of the phrase to their combined
// vectors.
func (s *NoteService) Search(ctx context.Context, phrase string, topK int) ([]domain.Note, error) {
	if strings.TrimSpace(phrase) == "" || s.index.Len() == 0 {
		return nil, nil
	}

	vecs, err := s.embedder.Embed(ctx, []string{phrase})
	if err != nil {
		return nil, fmt.Errorf("embed search phrase: %w", err)
	}
	if len(vecs) == 0 {
		return nil, nil
	}

	matches := s.index.Query(vecs[0], domain.VectorKindCombined, topK, s.minSimilarity)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Note, 0, len(matches))
	for _, m := range matches {
		title, ok := m.Metadata["title"].(string)
		if !ok {
			continue
		}
		if idx, found := s.byTitle[title]; found {
			out = append(out, s.records[idx].Note)
		}
	}
	return out, nil
}

// Load rebuilds the in-memory list and the index from storage without
// re-embedding. Notes persisted before their vectors were computed stay
// unindexed until ReembedPending runs.
func (s *NoteService) Load(ctx context.Context) error {
	records, err := s.storage.ListNotes(ctx, s.agentID)
	if err != nil {
		return fmt.Errorf("list notes: %w", err)
	}

	s.mu.Lock()
	s.records = records
	s.byTitle = make(map[string]int, len(records))
	for i, rec := range records {
		s.byTitle[rec.Title] = i
	}
	s.mu.Unlock()

	for _, rec := range records {
		if len(rec.Vectors) > 0 {
			s.indexNote(rec.ID, rec.Title, rec.Vectors)
		}
	}
	return nil
}

// ReembedPending embeds any notes that were saved without vectors and
// persists the result. Called periodically by the indexer worker; safe to
// re-run.
func (s *NoteService) ReembedPending(ctx context.Context) error {
	s.mu.Lock()
	var pending []domain.Note
	for _, rec := range s.records {
		if len(rec.Vectors) == 0 {
			pending = append(pending, rec.Note)
		}
	}
	s.mu.Unlock()

	for _, note := range pending {
		vectors := s.embedNote(ctx, note.Title, note.Content)
		if vectors == nil {
			return fmt.Errorf("re-embed note %q: embedding unavailable", note.Title)
		}

		s.mu.Lock()
		if idx, ok := s.byTitle[note.Title]; ok {
			s.records[idx].Vectors = vectors
		}
		s.mu.Unlock()

		if err := s.storage.SaveNote(ctx, s.agentID, &note, vectors); err != nil {
			s.logger.Warn("failed to persist re-embedded note",
				zap.String("agent_id", s.agentID),
				zap.String("title", note.Title),
				zap.Error(err))
		}
		s.indexNote(note.ID, note.Title, vectors)
	}
	return nil
}

// List returns all notes in insertion order.
func (s *NoteService) List() []domain.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Note, len(s.records))
	for i, rec := range s.records {
		out[i] = rec.Note
	}
	return out
}

// Count reports how many notes the agent holds.
func (s *NoteService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Index exposes the note index for inspection.
func (s *NoteService) Index() *embedding.Index { return s.index }
