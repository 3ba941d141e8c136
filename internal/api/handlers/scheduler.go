package handlers

import (
	"net/http"

	"github.com/minimind-ai/minimind/internal/service"
)

// SchedulerHandler reports the shared inference scheduler's state.
type SchedulerHandler struct {
	sched *service.Scheduler
}

func NewSchedulerHandler(sched *service.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{sched: sched}
}

func (h *SchedulerHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status())
}
