package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrBackendUnavailable marks a job that failed because the inference
	// backend could not be reached, including after retries.
	ErrBackendUnavailable = errors.New("inference backend unavailable")
	// ErrPromptProducerFailed marks a job whose deferred prompt producer
	// returned an error or panicked. Programmer error; never retried.
	ErrPromptProducerFailed = errors.New("prompt producer failed")
)

// EmbeddingClient is the embedding side of the backend. Embeds bypass the
// completion queue: they are cheap relative to generation and callers batch
// them.
type EmbeddingClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// InferenceClient is the backend collaborator: one completion call in flight
// at a time (the scheduler enforces this), embeddings on the side. All
// implementations honor stop sequences and temperature.
type InferenceClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	EmbeddingClient
}

// Summarizer compresses memory. Both operations are expected to route
// through the shared inference scheduler so compaction respects the single
// completion slot.
type Summarizer interface {
	// SummarizeEntries compresses a window of entries into one summary.
	SummarizeEntries(ctx context.Context, entries []MemoryEntry) (string, error)
	// MergeSummaries folds an aging mid-term summary into the long-term
	// summary.
	MergeSummaries(ctx context.Context, longTerm, midTerm string) (string, error)
}

// Storage is the durable persistence collaborator. Failures are logged and
// soft: in-memory state stays authoritative for a running agent.
type Storage interface {
	ReadSummaries(ctx context.Context, agentID string) (*SummaryState, error)
	WriteSummaries(ctx context.Context, agentID string, s SummaryState) error

	// AppendHistoricalSummary persists an immutable timestamped snapshot.
	// Snapshots are never overwritten.
	AppendHistoricalSummary(ctx context.Context, snap *SummarySnapshot) error
	ListHistoricalSummaries(ctx context.Context, agentID string) ([]SummarySnapshot, error)
	SetSummaryEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error

	// ReadMemoryLog returns up to maxCount of the newest entries, ordered
	// oldest to newest. maxCount <= 0 means no cap.
	ReadMemoryLog(ctx context.Context, agentID string, maxCount int) ([]MemoryEntry, error)
	AppendMemoryEntry(ctx context.Context, agentID string, e MemoryEntry) error

	SaveNote(ctx context.Context, agentID string, n *Note, vectors map[string][]float32) error
	ListNotes(ctx context.Context, agentID string) ([]NoteRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// WorldSnapshot is what the world collaborator reports about an agent's
// surroundings at prompt-build time.
type WorldSnapshot struct {
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Exits       []string `json:"exits,omitempty"`
	Actors      []string `json:"actors,omitempty"`
}

// WorldProvider supplies world state synchronously and carries observable
// activity markers (an agent visibly pausing to think) to other observers.
type WorldProvider interface {
	Snapshot(agentID string) (WorldSnapshot, error)
	Announce(agentID string, activity string)
}

// ActionExecutor applies an accepted decision to the world.
type ActionExecutor interface {
	Execute(agentID string, d Decision) ActionResult
}
