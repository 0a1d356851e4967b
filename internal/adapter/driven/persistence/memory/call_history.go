package memory

import (
	"context"
	"sync"

	"github.com/glimmerapp/glimmer/internal/core/port"
)

// CallHistoryRepository keeps finished call attempts in memory only. It
// exists for the fire-and-forget logging hook; nothing reads it back over
// the wire.
type CallHistoryRepository struct {
	mu      sync.Mutex
	entries []port.CallHistoryEntry
}

func NewCallHistoryRepository() *CallHistoryRepository {
	return &CallHistoryRepository{}
}

func (r *CallHistoryRepository) Log(ctx context.Context, entry port.CallHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of everything logged so far.
func (r *CallHistoryRepository) Entries() []port.CallHistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]port.CallHistoryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
