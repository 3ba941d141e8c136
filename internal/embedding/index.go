// Package embedding provides the in-memory similarity index agents use for
// semantic recall, plus the vector math shared with the rest of the system.
package embedding

import (
	"errors"
	"sort"
	"sync"
)

var ErrDimensionMismatch = errors.New("vector dimensionality mismatch")

// Match is one query hit, ordered by similarity descending.
type Match struct {
	ID         string         `json:"id"`
	Similarity float32        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type record struct {
	vectors  map[string][]float32
	metadata map[string]any
	seq      int
}

// Index stores vectors keyed by item id and vector kind and answers cosine
// top-K queries. All vectors share one dimensionality, fixed by the first
// upsert. Safe for concurrent use. One index per agent; never shared.
type Index struct {
	mu      sync.RWMutex
	records map[string]*record
	nextSeq int
	dims    int
}

func NewIndex() *Index {
	return &Index{records: make(map[string]*record)}
}

// Upsert stores vectors for id, replacing any existing record with the same
// id. A replaced record keeps its original insertion position for tie
// ordering.
func (ix *Index) Upsert(id string, vectors map[string][]float32, metadata map[string]any) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if ix.dims == 0 {
			ix.dims = len(v)
		}
		if len(v) != ix.dims {
			return ErrDimensionMismatch
		}
	}

	if existing, ok := ix.records[id]; ok {
		existing.vectors = vectors
		existing.metadata = metadata
		return nil
	}

	ix.records[id] = &record{vectors: vectors, metadata: metadata, seq: ix.nextSeq}
	ix.nextSeq++
	return nil
}

func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.records, id)
}

// Query ranks all records carrying the given vector kind by cosine similarity
// to vector, descending, ties broken by insertion order. Results below
// minSimilarity are dropped; topK truncates after filtering, and topK <= 0
// means no truncation.
func (ix *Index) Query(vector []float32, kind string, topK int, minSimilarity float32) []Match {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type scored struct {
		Match
		seq int
	}

	var hits []scored
	for id, rec := range ix.records {
		v, ok := rec.vectors[kind]
		if !ok {
			continue
		}
		sim := CosineSimilarity(vector, v)
		if sim < minSimilarity {
			continue
		}
		hits = append(hits, scored{
			Match: Match{ID: id, Similarity: sim, Metadata: rec.metadata},
			seq:   rec.seq,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].seq < hits[j].seq
	})

	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]Match, len(hits))
	for i, h := range hits {
		out[i] = h.Match
	}
	return out
}

// Len reports how many records the index holds.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// Dims reports the index dimensionality, 0 until the first upsert.
func (ix *Index) Dims() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dims
}
