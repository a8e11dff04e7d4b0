package app

import (
	"slices"
	"strings"
	"sync"

	"dictation-orchestrator/internal/service/orchestrator"
)

// Registry tracks live sessions by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*orchestrator.RealtimeSessionHandle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*orchestrator.RealtimeSessionHandle)}
}

// Add registers a session.
func (r *Registry) Add(h *orchestrator.RealtimeSessionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[h.ID()] = h
}

// Remove forgets a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns a live session.
func (r *Registry) Get(id string) (*orchestrator.RealtimeSessionHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[id]
	return h, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshots returns the state of every live session ordered by start time.
func (r *Registry) Snapshots() []orchestrator.Snapshot {
	r.mu.RLock()
	out := make([]orchestrator.Snapshot, 0, len(r.sessions))
	for _, h := range r.sessions {
		out = append(out, h.Snapshot())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b orchestrator.Snapshot) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// CloseAll aborts every live session and returns how many there were.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	handles := make([]*orchestrator.RealtimeSessionHandle, 0, len(r.sessions))
	for _, h := range r.sessions {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	for _, h := range handles {
		h.Close()
	}
	return len(handles)
}
