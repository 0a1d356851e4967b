package port

import "github.com/glimmerapp/glimmer/internal/core/domain"

// CallStore holds the ephemeral call records. Create enforces atomically
// that at most one active record exists per unordered pair of users.
type CallStore interface {
	// Create inserts a fresh calling-status record for the pair, or
	// domain.ErrPairBusy when an active one already exists.
	Create(caller, target domain.UserID) (domain.CallRecord, error)
	// Accept transitions the record for key to connected, stamping the
	// accepted-at time. Only the recorded target may accept, and only
	// while the record is in calling status.
	Accept(key domain.RoomKey, target domain.UserID) (domain.CallRecord, error)
	// Get returns the record for key, if any.
	Get(key domain.RoomKey) (domain.CallRecord, bool)
	// Delete removes the record for key and returns it, if it existed.
	Delete(key domain.RoomKey) (domain.CallRecord, bool)
	// FindActiveByUser returns the active record id is a party of, if any.
	FindActiveByUser(id domain.UserID) (domain.CallRecord, bool)
}
