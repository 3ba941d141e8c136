package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/minimind-ai/minimind/internal/service"
)

// AgentHandler exposes the live agents and their loop state.
type AgentHandler struct {
	registry *service.Registry
}

func NewAgentHandler(registry *service.Registry) *AgentHandler {
	return &AgentHandler{registry: registry}
}

type agentSummary struct {
	AgentID  string `json:"agent_id"`
	Thinking bool   `json:"thinking"`
	Degraded bool   `json:"degraded"`
	Memories int    `json:"memories"`
	Notes    int    `json:"notes"`
}

type listAgentsResponse struct {
	Agents []agentSummary `json:"agents"`
	Count  int            `json:"count"`
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents := h.registry.All()
	summaries := make([]agentSummary, 0, len(agents))
	for _, a := range agents {
		status := a.Loop.Status()
		summaries = append(summaries, agentSummary{
			AgentID:  a.ID,
			Thinking: status.Thinking,
			Degraded: status.Degraded,
			Memories: a.Memory.EntryCount(),
			Notes:    a.Notes.Count(),
		})
	}

	writeJSON(w, http.StatusOK, listAgentsResponse{
		Agents: summaries,
		Count:  len(summaries),
	})
}

// Status reports one agent's loop state: think countdown, last decision,
// guard retries and degraded flag.
func (h *AgentHandler) Status(w http.ResponseWriter, r *http.Request) {
	a, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	writeJSON(w, http.StatusOK, a.Loop.Status())
}
