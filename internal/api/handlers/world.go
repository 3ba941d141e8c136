package handlers

import (
	"net/http"

	"github.com/minimind-ai/minimind/internal/world"
)

// WorldHandler exposes a read-only view of the room graph and who is where.
type WorldHandler struct {
	world *world.World
}

func NewWorldHandler(w *world.World) *WorldHandler {
	return &WorldHandler{world: w}
}

type worldResponse struct {
	Rooms []world.RoomView `json:"rooms"`
	Count int              `json:"count"`
}

func (h *WorldHandler) Rooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.world.Rooms()
	writeJSON(w, http.StatusOK, worldResponse{
		Rooms: rooms,
		Count: len(rooms),
	})
}
