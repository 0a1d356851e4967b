package memory

import (
	"sync"
	"time"

	"github.com/glimmerapp/glimmer/internal/core/domain"
)

// Store is the in-memory CallStore. Records are keyed by the deterministic
// pair room key, which is what makes the one-active-call-per-pair invariant
// a plain map check under one lock.
type Store struct {
	mu      sync.Mutex
	records map[domain.RoomKey]domain.CallRecord
}

func NewStore() *Store {
	return &Store{
		records: make(map[domain.RoomKey]domain.CallRecord),
	}
}

func (s *Store) Create(caller, target domain.UserID) (domain.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.PairRoomKey(caller, target)
	if existing, ok := s.records[key]; ok && existing.Status.Active() {
		return domain.CallRecord{}, domain.ErrPairBusy
	}

	rec := domain.NewCallRecord(caller, target)
	s.records[key] = rec
	return rec, nil
}

func (s *Store) Accept(key domain.RoomKey, target domain.UserID) (domain.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return domain.CallRecord{}, domain.ErrCallNotFound
	}
	if rec.Target != target {
		return domain.CallRecord{}, domain.ErrWrongParty
	}
	if rec.Status != domain.CallStatusCalling {
		return domain.CallRecord{}, domain.ErrInvalidTransition
	}

	now := time.Now()
	rec.Status = domain.CallStatusConnected
	rec.AcceptedAt = &now
	s.records[key] = rec
	return rec, nil
}

func (s *Store) Get(key domain.RoomKey) (domain.CallRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	return rec, ok
}

func (s *Store) Delete(key domain.RoomKey) (domain.CallRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if ok {
		delete(s.records, key)
	}
	return rec, ok
}

func (s *Store) FindActiveByUser(id domain.UserID) (domain.CallRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.Status.Active() && rec.Involves(id) {
			return rec, true
		}
	}
	return domain.CallRecord{}, false
}
