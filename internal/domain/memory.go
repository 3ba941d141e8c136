package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntryKind string

const (
	EntryKindAction      EntryKind = "action"
	EntryKindObservation EntryKind = "observation"
	EntryKindSpeech      EntryKind = "speech"
	EntryKindThought     EntryKind = "thought"
)

func ValidEntryKind(k string) bool {
	switch EntryKind(k) {
	case EntryKindAction, EntryKindObservation, EntryKindSpeech, EntryKindThought:
		return true
	}
	return false
}

// Metadata keys enriched onto entries at append time.
const (
	MetaKind  = "kind"
	MetaWhere = "where"
	MetaWho   = "who"
	MetaWhy   = "why"
)

// MemoryEntry is one record in an agent's chronological log. Immutable once
// appended; insertion order is chronological order. Owned by exactly one
// agent's store.
type MemoryEntry struct {
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Ambient is the situational context merged into entry metadata at append
// time: where the agent is and who else is present.
type Ambient struct {
	Location string
	Actors   []string
}

// SummaryState holds the two rolling summaries for an agent. Mutated only by
// the compaction waterfall; at most one compaction runs per agent at a time.
type SummaryState struct {
	MidTerm        string    `json:"mid_term"`
	LongTerm       string    `json:"long_term"`
	LastCompaction time.Time `json:"last_compaction"`
}

func (s SummaryState) Empty() bool {
	return s.MidTerm == "" && s.LongTerm == ""
}

// MemoryContext is the bounded view handed to prompt construction: the
// immediate window verbatim plus the two summaries.
type MemoryContext struct {
	Immediate    []MemoryEntry `json:"immediate"`
	MidTerm      string        `json:"mid_term_summary"`
	LongTerm     string        `json:"long_term_summary"`
	HasSummaries bool          `json:"has_summaries"`
}

// SummarySnapshot is an immutable timestamped copy of a mid-term summary,
// kept forever for later analysis and semantic recall. Embedding stays nil
// until the snapshot has been indexed.
type SummarySnapshot struct {
	ID        uuid.UUID `json:"id"`
	AgentID   string    `json:"agent_id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Note is a title-keyed document an agent writes for itself. Never
// auto-pruned.
type Note struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteRecord pairs a note with its persisted vectors so an index can be
// rebuilt without re-embedding.
type NoteRecord struct {
	Note
	Vectors map[string][]float32 `json:"-"`
}

// Vector kinds stored per indexed item. A combined vector is produced
// externally as a weighted re-normalized blend of title and content.
const (
	VectorKindTitle    = "title"
	VectorKindContent  = "content"
	VectorKindCombined = "combined"
	VectorKindSummary  = "summary"
)

// Weights for the combined note vector.
const (
	CombinedTitleWeight   = 0.3
	CombinedContentWeight = 0.7
)
