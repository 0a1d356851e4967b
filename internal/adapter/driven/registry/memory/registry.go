package memory

import (
	"sync"

	"github.com/glimmerapp/glimmer/internal/core/domain"
	"github.com/glimmerapp/glimmer/internal/core/port"
)

// Registry is the in-memory ConnectionRegistry. A new connection for an
// identity supersedes the previous one; unregister only drops the mapping
// when the departing handle is still current, so a stale disconnect event
// cannot evict a fresh reconnect.
type Registry struct {
	mu      sync.RWMutex
	handles map[domain.UserID]port.ConnectionHandle
}

func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[domain.UserID]port.ConnectionHandle),
	}
}

func (r *Registry) Register(handle port.ConnectionHandle) (port.ConnectionHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.handles[handle.UserID()]
	r.handles[handle.UserID()] = handle
	if !ok || prev == handle {
		return nil, false
	}
	return prev, true
}

func (r *Registry) Resolve(id domain.UserID) (port.ConnectionHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[id]
	return h, ok
}

func (r *Registry) Unregister(handle port.ConnectionHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.handles[handle.UserID()]
	if !ok || current != handle {
		return false
	}
	delete(r.handles, handle.UserID())
	return true
}
