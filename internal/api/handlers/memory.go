package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/minimind-ai/minimind/internal/domain"
	"github.com/minimind-ai/minimind/internal/service"
)

// MemoryHandler exposes one agent's memory: the assembled context window,
// external observations, manual compaction and semantic recall over
// historical summaries.
type MemoryHandler struct {
	registry *service.Registry
}

func NewMemoryHandler(registry *service.Registry) *MemoryHandler {
	return &MemoryHandler{registry: registry}
}

type contextResponse struct {
	AgentID string               `json:"agent_id"`
	Context domain.MemoryContext `json:"context"`
}

func (h *MemoryHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	a, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	window := 0
	if s := r.URL.Query().Get("window"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid window parameter")
			return
		}
		window = n
	}

	writeJSON(w, http.StatusOK, contextResponse{
		AgentID: a.ID,
		Context: a.Memory.GetContext(window),
	})
}

type observeRequest struct {
	Content string `json:"content"`
}

// Observe injects an external observation into the agent's memory log, as if
// the agent had perceived it in the world.
func (h *MemoryHandler) Observe(w http.ResponseWriter, r *http.Request) {
	a, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	var req observeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	a.Loop.Observe(content)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

type compactResponse struct {
	Compacted bool `json:"compacted"`
}

// Compact runs the summary waterfall immediately instead of waiting for the
// entry-count threshold. Answers compacted=false while one is already in
// flight.
func (h *MemoryHandler) Compact(w http.ResponseWriter, r *http.Request) {
	a, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	writeJSON(w, http.StatusOK, compactResponse{
		Compacted: a.Memory.Compact(r.Context()),
	})
}

type recallResponse struct {
	Query     string                   `json:"query"`
	Summaries []domain.SummarySnapshot `json:"summaries"`
	Count     int                      `json:"count"`
}

// Recall runs semantic search over the agent's historical summaries.
func (h *MemoryHandler) Recall(w http.ResponseWriter, r *http.Request) {
	a, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	topK := 5
	if s := r.URL.Query().Get("top_k"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			topK = n
		}
	}

	summaries, err := a.Memory.RelevantSummaries(r.Context(), query, topK)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to recall summaries")
		return
	}
	if summaries == nil {
		summaries = []domain.SummarySnapshot{}
	}

	writeJSON(w, http.StatusOK, recallResponse{
		Query:     query,
		Summaries: summaries,
		Count:     len(summaries),
	})
}
