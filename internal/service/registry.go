package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Agent bundles one agent's cognition pieces. The scheduler is shared; these
// are not.
type Agent struct {
	ID     string
	Loop   *AgentLoop
	Memory *MemoryService
	Notes  *NoteService
}

// Registry is the process-wide set of live agents, iterated by the runner,
// the indexer and the API.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

func (r *Registry) Add(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.ID]; exists {
		return fmt.Errorf("agent %q already registered", a.ID)
	}
	r.agents[a.ID] = a
	r.order = append(r.order, a.ID)
	return nil
}

func (r *Registry) Get(id string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// Remove unregisters an agent and cancels its in-flight work.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	a, ok := r.agents[id]
	if ok {
		delete(r.agents, id)
		for i, existing := range r.order {
			if existing == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if ok && a.Loop != nil {
		a.Loop.Close()
	}
	return ok
}

// All returns the agents in registration order.
func (r *Registry) All() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// LoadProfile reads <dir>/<agentID>.txt. A missing file or empty dir yields
// "", which makes the loop fall back to the default persona.
func LoadProfile(dir, agentID string) string {
	if dir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(dir, agentID+".txt"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
