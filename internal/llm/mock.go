package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/minimind-ai/minimind/internal/domain"
)

// MockClient is a configurable inference client for tests and offline runs.
// Set the response fields to control what each method returns.
type MockClient struct {
	mu sync.Mutex

	CompleteResponse  string
	CompleteResponses []string // consumed in order; the last one repeats
	CompleteError     error
	EmbedError        error
	EmbedDims         int

	// Call tracking for assertions
	CompleteCalls []domain.CompletionRequest
	EmbedCalls    [][]string

	completeIdx int
}

func NewMockClient(embedDims int) *MockClient {
	if embedDims <= 0 {
		embedDims = 384
	}
	return &MockClient{
		CompleteResponse: "look | taking stock of the room",
		EmbedDims:        embedDims,
	}
}

func (c *MockClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CompleteCalls = append(c.CompleteCalls, req)
	if c.CompleteError != nil {
		return "", c.CompleteError
	}
	if len(c.CompleteResponses) > 0 {
		i := c.completeIdx
		if i >= len(c.CompleteResponses) {
			i = len(c.CompleteResponses) - 1
		}
		c.completeIdx++
		return c.CompleteResponses[i], nil
	}
	return c.CompleteResponse, nil
}

// Embed returns deterministic pseudo-embeddings derived from the text so that
// identical inputs always map to identical vectors.
func (c *MockClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EmbedCalls = append(c.EmbedCalls, texts)
	if c.EmbedError != nil {
		return nil, c.EmbedError
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = pseudoEmbedding(t, c.EmbedDims)
	}
	return vectors, nil
}

// pseudoEmbedding folds every token of the text into its own hash-seeded
// direction and normalizes the sum. Texts sharing words land measurably
// closer than unrelated ones, so recall over mock vectors ranks sensibly.
func pseudoEmbedding(text string, dims int) []float32 {
	v := make([]float32, dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		seed := h.Sum64()
		for i := range v {
			seed = seed*6364136223846793005 + 1442695040888963407
			v[i] += float32(int64(seed>>33)%2001-1000) / 1000
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

// Reset clears all recorded calls and restores the default responses.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CompleteResponse = "look | taking stock of the room"
	c.CompleteResponses = nil
	c.CompleteError = nil
	c.EmbedError = nil
	c.CompleteCalls = nil
	c.EmbedCalls = nil
	c.completeIdx = 0
}
