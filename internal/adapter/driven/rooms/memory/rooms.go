package memory

import (
	"sync"
	"time"

	"github.com/glimmerapp/glimmer/internal/core/domain"
)

const maxMembers = 2

type room struct {
	mu        sync.Mutex
	members   []domain.UserID // ordered by join time
	createdAt time.Time
	gone      bool
}

// Table is the in-memory RoomTable. The table-level mutex only guards the
// map; membership mutations are serialized per room so unrelated calls never
// contend with each other.
type Table struct {
	mu    sync.Mutex
	rooms map[domain.RoomKey]*room
}

func NewTable() *Table {
	return &Table{
		rooms: make(map[domain.RoomKey]*room),
	}
}

// acquire returns the locked room for key, creating it if asked. Rooms are
// flagged gone under their own lock before removal from the map, so a caller
// that raced a deletion retries against a fresh entry.
func (t *Table) acquire(key domain.RoomKey, create bool) (*room, bool) {
	for {
		t.mu.Lock()
		r, ok := t.rooms[key]
		if !ok {
			if !create {
				t.mu.Unlock()
				return nil, false
			}
			r = &room{createdAt: time.Now()}
			t.rooms[key] = r
		}
		t.mu.Unlock()

		r.mu.Lock()
		if r.gone {
			r.mu.Unlock()
			continue
		}
		return r, true
	}
}

func (t *Table) Join(key domain.RoomKey, id domain.UserID) (domain.JoinResult, error) {
	r, _ := t.acquire(key, true)
	defer r.mu.Unlock()

	others := make([]domain.UserID, 0, len(r.members))
	for _, m := range r.members {
		if m != id {
			others = append(others, m)
		}
	}

	// Rejoin by an existing member is a replace-on-reconnect, never a
	// third seat.
	if len(others) == len(r.members) && len(r.members) >= maxMembers {
		return domain.JoinResult{}, domain.ErrRoomFull
	}

	r.members = append(others, id)
	return domain.JoinResult{
		First:  len(r.members) == 1,
		Others: others,
	}, nil
}

func (t *Table) Leave(key domain.RoomKey, id domain.UserID) ([]domain.UserID, bool, error) {
	r, ok := t.acquire(key, false)
	if !ok {
		return nil, false, nil
	}
	defer r.mu.Unlock()

	removed := false
	kept := r.members[:0]
	for _, m := range r.members {
		if m == id {
			removed = true
			continue
		}
		kept = append(kept, m)
	}
	r.members = kept

	if len(r.members) == 0 {
		r.gone = true
		t.mu.Lock()
		delete(t.rooms, key)
		t.mu.Unlock()
		return nil, removed, nil
	}

	remaining := make([]domain.UserID, len(r.members))
	copy(remaining, r.members)
	return remaining, removed, nil
}

func (t *Table) Members(key domain.RoomKey) ([]domain.UserID, bool) {
	r, ok := t.acquire(key, false)
	if !ok {
		return nil, false
	}
	defer r.mu.Unlock()

	members := make([]domain.UserID, len(r.members))
	copy(members, r.members)
	return members, true
}

func (t *Table) Recipients(key domain.RoomKey, sender domain.UserID) []domain.UserID {
	r, ok := t.acquire(key, false)
	if !ok {
		return nil
	}
	defer r.mu.Unlock()

	var targets []domain.UserID
	for _, m := range r.members {
		if m != sender {
			targets = append(targets, m)
		}
	}
	return targets
}
