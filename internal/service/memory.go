package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minimind-ai/minimind/internal/domain"
	"github.com/minimind-ai/minimind/internal/embedding"
)

const (
	// DefaultImmediateWindow is how many entries stay verbatim in context.
	DefaultImmediateWindow = 64
	// DefaultMidTermWindow is how many entries one mid-term summary covers.
	DefaultMidTermWindow = 64
	// DefaultMaxMemories caps the in-memory log; older entries live only in
	// durable storage and the summaries.
	DefaultMaxMemories = 1024
	// DefaultMinSimilarity filters semantic recall of historical summaries.
	DefaultMinSimilarity = 0.3
)

// MemoryConfig tunes one agent's tiered store.
type MemoryConfig struct {
	ImmediateWindow int
	MidTermWindow   int
	MaxMemories     int
	MinSimilarity   float32
}

func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.ImmediateWindow <= 0 {
		c.ImmediateWindow = DefaultImmediateWindow
	}
	if c.MidTermWindow <= 0 {
		c.MidTermWindow = DefaultMidTermWindow
	}
	if c.MaxMemories <= 0 {
		c.MaxMemories = DefaultMaxMemories
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = DefaultMinSimilarity
	}
	return c
}

// MemoryService is one agent's tiered memory: an append-only chronological
// log plus two rolling summaries. The log is bounded in memory and unbounded
// in storage; compaction folds aging history through the summary waterfall so
// context stays inside the attention budget without dropping history
// outright.
type MemoryService struct {
	agentID    string
	storage    domain.Storage
	summarizer domain.Summarizer
	embedder   domain.EmbeddingClient
	index      *embedding.Index
	cfg        MemoryConfig
	logger     *zap.Logger

	mu            sync.Mutex
	entries       []domain.MemoryEntry
	totalAppended int
	summaries     domain.SummaryState
	compacting    bool
}

func NewMemoryService(agentID string, storage domain.Storage, summarizer domain.Summarizer, embedder domain.EmbeddingClient, cfg MemoryConfig, logger *zap.Logger) *MemoryService {
	return &MemoryService{
		agentID:    agentID,
		storage:    storage,
		summarizer: summarizer,
		embedder:   embedder,
		index:      embedding.NewIndex(),
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

func (s *MemoryService) AgentID() string { return s.agentID }

// Index exposes the per-agent summary index, used by recall and the indexer
// worker.
func (s *MemoryService) Index() *embedding.Index { return s.index }

// Append records a new entry with the current timestamp, enriching its
// metadata with the supplied ambient context. The in-memory log is trimmed
// from the front past MaxMemories; durable storage keeps everything. When the
// append crosses a compaction threshold the waterfall starts on its own
// goroutine.
func (s *MemoryService) Append(content string, ambient domain.Ambient, metadata map[string]any) {
	entry := domain.MemoryEntry{
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  enrichMetadata(metadata, ambient),
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.totalAppended++
	if len(s.entries) > s.cfg.MaxMemories {
		s.entries = s.entries[len(s.entries)-s.cfg.MaxMemories:]
	}
	trigger := s.shouldCompactLocked()
	s.mu.Unlock()

	if err := s.storage.AppendMemoryEntry(context.Background(), s.agentID, entry); err != nil {
		s.logger.Warn("failed to persist memory entry",
			zap.String("agent_id", s.agentID),
			zap.Error(err))
	}

	if trigger {
		go s.Compact(context.Background())
	}
}

func enrichMetadata(metadata map[string]any, ambient domain.Ambient) map[string]any {
	out := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		out[k] = v
	}
	if ambient.Location != "" {
		out[domain.MetaWhere] = ambient.Location
	}
	if len(ambient.Actors) > 0 {
		out[domain.MetaWho] = append([]string(nil), ambient.Actors...)
	}
	return out
}

// GetContext returns the last windowSize entries verbatim plus the current
// summaries. windowSize <= 0 means the configured immediate window. Pure
// read.
func (s *MemoryService) GetContext(windowSize int) domain.MemoryContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := windowSize
	if k <= 0 {
		k = s.cfg.ImmediateWindow
	}
	if k > len(s.entries) {
		k = len(s.entries)
	}
	immediate := make([]domain.MemoryEntry, k)
	copy(immediate, s.entries[len(s.entries)-k:])

	return domain.MemoryContext{
		Immediate:    immediate,
		MidTerm:      s.summaries.MidTerm,
		LongTerm:     s.summaries.LongTerm,
		HasSummaries: s.summaries.MidTerm != "" || s.summaries.LongTerm != "",
	}
}

// ShouldCompact reports whether the lifetime entry count sits on a compaction
// threshold: first at ImmediateWindow+MidTermWindow+1, then every
// MidTermWindow entries after that.
func (s *MemoryService) ShouldCompact() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shouldCompactLocked()
}

func (s *MemoryService) shouldCompactLocked() bool {
	threshold := s.cfg.ImmediateWindow + s.cfg.MidTermWindow + 1
	if s.totalAppended < threshold {
		return false
	}
	return (s.totalAppended-threshold)%s.cfg.MidTermWindow == 0
}

// Compact runs the summary waterfall: fold the existing mid-term summary into
// the long-term one, then re-summarize the entries just behind the immediate
// window into a fresh mid-term summary. Only one waterfall runs per agent; a
// second call while one is in flight is a no-op and returns false. On
// summarizer failure the in-memory state is left untouched so a later trigger
// redoes the whole fold.
func (s *MemoryService) Compact(ctx context.Context) bool {
	s.mu.Lock()
	if s.compacting {
		s.mu.Unlock()
		return false
	}
	s.compacting = true
	prior := s.summaries
	window := s.midTermWindowLocked()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.compacting = false
		s.mu.Unlock()
	}()

	if len(window) == 0 {
		// out-of-cadence call; folding without a replacement mid-term
		// would double-count it in the long-term summary
		s.logger.Debug("compaction skipped, no entries behind the immediate window",
			zap.String("agent_id", s.agentID))
		return true
	}

	next := prior

	if prior.MidTerm != "" {
		merged, err := s.summarizer.MergeSummaries(ctx, prior.LongTerm, prior.MidTerm)
		if err != nil {
			s.logger.Warn("long-term fold failed",
				zap.String("agent_id", s.agentID),
				zap.Error(err))
			return true
		}
		next.LongTerm = strings.TrimSpace(merged)
	}

	summary, err := s.summarizer.SummarizeEntries(ctx, window)
	if err != nil {
		s.logger.Warn("mid-term summarization failed",
			zap.String("agent_id", s.agentID),
			zap.Error(err))
		return true
	}
	next.MidTerm = strings.TrimSpace(summary)

	next.LastCompaction = time.Now()

	s.mu.Lock()
	s.summaries = next
	s.mu.Unlock()

	s.logger.Info("compaction complete",
		zap.String("agent_id", s.agentID),
		zap.Int("window_entries", len(window)))

	if err := s.storage.WriteSummaries(ctx, s.agentID, next); err != nil {
		s.logger.Warn("failed to persist summaries",
			zap.String("agent_id", s.agentID),
			zap.Error(err))
	}
	if next.MidTerm != "" {
		snap := &domain.SummarySnapshot{
			ID:        uuid.New(),
			AgentID:   s.agentID,
			Content:   next.MidTerm,
			CreatedAt: time.Now(),
		}
		if err := s.storage.AppendHistoricalSummary(ctx, snap); err != nil {
			s.logger.Warn("failed to persist historical summary",
				zap.String("agent_id", s.agentID),
				zap.Error(err))
		}
	}
	return true
}

// midTermWindowLocked copies the entries in
// [total-immediate-midTerm, total-immediate), clamped to what the in-memory
// log still holds.
func (s *MemoryService) midTermWindowLocked() []domain.MemoryEntry {
	start := s.totalAppended - s.cfg.ImmediateWindow - s.cfg.MidTermWindow
	end := s.totalAppended - s.cfg.ImmediateWindow
	if start < 0 {
		start = 0
	}
	if end <= start {
		return nil
	}

	base := s.totalAppended - len(s.entries)
	lo := start - base
	hi := end - base
	if lo < 0 {
		lo = 0
	}
	if hi > len(s.entries) {
		hi = len(s.entries)
	}
	if hi <= lo {
		return nil
	}

	out := make([]domain.MemoryEntry, hi-lo)
	copy(out, s.entries[lo:hi])
	return out
}

// Bootstrap loads the durable log and summaries. An agent that returns with
// a long history but no summaries gets one waterfall up front instead of
// waiting to re-accumulate entries.
func (s *MemoryService) Bootstrap(ctx context.Context) error {
	entries, err := s.storage.ReadMemoryLog(ctx, s.agentID, s.cfg.MaxMemories)
	if err != nil {
		return fmt.Errorf("read memory log: %w", err)
	}
	state, err := s.storage.ReadSummaries(ctx, s.agentID)
	if err != nil {
		s.logger.Warn("failed to read summaries, starting empty",
			zap.String("agent_id", s.agentID),
			zap.Error(err))
		state = &domain.SummaryState{}
	}

	s.mu.Lock()
	s.entries = entries
	s.totalAppended = len(entries)
	s.summaries = *state
	needsWaterfall := state.Empty() &&
		len(entries) >= s.cfg.ImmediateWindow+s.cfg.MidTermWindow+1
	s.mu.Unlock()

	if needsWaterfall {
		s.logger.Info("bootstrapping summaries from history",
			zap.String("agent_id", s.agentID),
			zap.Int("entries", len(entries)))
		s.Compact(ctx)
	}
	return nil
}

// RelevantSummaries returns historical summary snapshots semantically close
// to the query, best first.
func (s *MemoryService) RelevantSummaries(ctx context.Context, query string, topK int) ([]domain.SummarySnapshot, error) {
	if strings.TrimSpace(query) == "" || s.index.Len() == 0 {
		return nil, nil
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, nil
	}

	matches := s.index.Query(vecs[0], domain.VectorKindSummary, topK, s.cfg.MinSimilarity)
	out := make([]domain.SummarySnapshot, 0, len(matches))
	for _, m := range matches {
		snap := domain.SummarySnapshot{AgentID: s.agentID}
		if id, parseErr := uuid.Parse(m.ID); parseErr == nil {
			snap.ID = id
		}
		if content, ok := m.Metadata["content"].(string); ok {
			snap.Content = content
		}
		if created, ok := m.Metadata["created_at"].(time.Time); ok {
			snap.CreatedAt = created
		}
		out = append(out, snap)
	}
	return out, nil
}

// IndexPendingSummaries hydrates the in-memory index from storage and embeds
// any snapshots that do not have a vector yet. Called periodically by the
// indexer worker; safe to re-run.
func (s *MemoryService) IndexPendingSummaries(ctx context.Context) error {
	snaps, err := s.storage.ListHistoricalSummaries(ctx, s.agentID)
	if err != nil {
		return fmt.Errorf("list historical summaries: %w", err)
	}

	var (
		toEmbed []*domain.SummarySnapshot
		texts   []string
	)
	for i := range snaps {
		snap := &snaps[i]
		if len(snap.Embedding) == 0 {
			toEmbed = append(toEmbed, snap)
			texts = append(texts, snap.Content)
			continue
		}
		s.indexSnapshot(snap)
	}
	if len(toEmbed) == 0 {
		return nil
	}

	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed summaries: %w", err)
	}
	if len(vecs) != len(toEmbed) {
		return fmt.Errorf("embedder returned %d vectors for %d summaries", len(vecs), len(toEmbed))
	}

	for i, snap := range toEmbed {
		snap.Embedding = vecs[i]
		if err := s.storage.SetSummaryEmbedding(ctx, snap.ID, vecs[i]); err != nil {
			s.logger.Warn("failed to persist summary embedding",
				zap.String("agent_id", s.agentID),
				zap.Error(err))
		}
		s.indexSnapshot(snap)
	}
	return nil
}

func (s *MemoryService) indexSnapshot(snap *domain.SummarySnapshot) {
	if err := s.index.Upsert(snap.ID.String(),
		map[string][]float32{domain.VectorKindSummary: snap.Embedding},
		map[string]any{"content": snap.Content, "created_at": snap.CreatedAt}); err != nil {
		s.logger.Warn("failed to index summary snapshot",
			zap.String("agent_id", s.agentID),
			zap.String("snapshot_id", snap.ID.String()),
			zap.Error(err))
	}
}

// EntryCount is the number of entries currently held in memory.
func (s *MemoryService) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// TotalAppended is the lifetime entry count driving the compaction cadence.
// It restarts at the loaded log length after Bootstrap.
func (s *MemoryService) TotalAppended() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalAppended
}

// Summaries returns a copy of the current summary state.
func (s *MemoryService) Summaries() domain.SummaryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaries
}

// Compacting reports whether a waterfall is in flight.
func (s *MemoryService) Compacting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compacting
}
