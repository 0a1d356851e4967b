package memory

import (
	"errors"
	"testing"

	"github.com/glimmerapp/glimmer/internal/core/domain"
)

func TestCreateEnforcesSingleActivePerPair(t *testing.T) {
	s := NewStore()

	rec, err := s.Create("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.CallStatusCalling {
		t.Fatalf("fresh record must be calling, got %s", rec.Status)
	}

	// Same pair, both directions.
	if _, err := s.Create("alice", "bob"); !errors.Is(err, domain.ErrPairBusy) {
		t.Fatalf("expected ErrPairBusy, got %v", err)
	}
	if _, err := s.Create("bob", "alice"); !errors.Is(err, domain.ErrPairBusy) {
		t.Fatalf("reverse direction must also be busy, got %v", err)
	}

	// The original record is untouched.
	got, ok := s.Get(rec.RoomKey)
	if !ok || got.Caller != "alice" || got.Target != "bob" {
		t.Fatalf("existing record mutated: %+v", got)
	}

	// A different pair is unaffected.
	if _, err := s.Create("alice", "carol"); err != nil {
		t.Fatalf("unrelated pair must not be blocked: %v", err)
	}
}

func TestAcceptChecksRoleAndStatus(t *testing.T) {
	s := NewStore()
	rec, _ := s.Create("alice", "bob")

	if _, err := s.Accept(rec.RoomKey, "alice"); !errors.Is(err, domain.ErrWrongParty) {
		t.Fatalf("caller must not be able to accept, got %v", err)
	}
	if _, err := s.Accept("nope", "bob"); !errors.Is(err, domain.ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound, got %v", err)
	}

	accepted, err := s.Accept(rec.RoomKey, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if accepted.Status != domain.CallStatusConnected || accepted.AcceptedAt == nil {
		t.Fatalf("accept must connect and stamp the time: %+v", accepted)
	}

	if _, err := s.Accept(rec.RoomKey, "bob"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("double accept must fail, got %v", err)
	}
}

func TestDeleteFreesThePair(t *testing.T) {
	s := NewStore()
	rec, _ := s.Create("alice", "bob")

	deleted, ok := s.Delete(rec.RoomKey)
	if !ok || deleted.ID != rec.ID {
		t.Fatal("expected the record back from delete")
	}
	if _, ok := s.Delete(rec.RoomKey); ok {
		t.Fatal("second delete must report absence")
	}

	if _, err := s.Create("bob", "alice"); err != nil {
		t.Fatalf("pair must be callable again after delete: %v", err)
	}
}

func TestFindActiveByUser(t *testing.T) {
	s := NewStore()
	rec, _ := s.Create("alice", "bob")

	for _, id := range []domain.UserID{"alice", "bob"} {
		got, ok := s.FindActiveByUser(id)
		if !ok || got.ID != rec.ID {
			t.Fatalf("expected the active record for %s", id)
		}
	}
	if _, ok := s.FindActiveByUser("carol"); ok {
		t.Fatal("carol has no active call")
	}

	s.Delete(rec.RoomKey)
	if _, ok := s.FindActiveByUser("alice"); ok {
		t.Fatal("deleted record must not be found")
	}
}
