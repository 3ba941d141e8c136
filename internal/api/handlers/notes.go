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

// NoteHandler exposes an agent's notebook: the durable, titled notes the
// agent writes for itself, plus semantic search over them.
type NoteHandler struct {
	registry *service.Registry
}

func NewNoteHandler(registry *service.Registry) *NoteHandler {
	return &NoteHandler{registry: registry}
}

type listNotesResponse struct {
	Notes []domain.Note `json:"notes"`
	Count int           `json:"count"`
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	notes := a.Notes.List()
	writeJSON(w, http.StatusOK, listNotesResponse{
		Notes: notes,
		Count: len(notes),
	})
}

type createNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Create writes a note on the agent's behalf. A note with the same title is
// updated in place.
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	var req createNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	note, err := a.Notes.Save(r.Context(), req.Title, req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, note)
}

// Search ranks the agent's notes by semantic similarity to the query phrase.
func (h *NoteHandler) Search(w http.ResponseWriter, r *http.Request) {
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

	notes, err := a.Notes.Search(r.Context(), query, topK)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to search notes")
		return
	}
	if notes == nil {
		notes = []domain.Note{}
	}

	writeJSON(w, http.StatusOK, listNotesResponse{
		Notes: notes,
		Count: len(notes),
	})
}
