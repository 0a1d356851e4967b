package port

import "github.com/glimmerapp/glimmer/internal/core/domain"

// ConnectionHandle is the live transport currently bound to a user. At most
// one handle per identity is authoritative at any instant.
type ConnectionHandle interface {
	UserID() domain.UserID
	Send(event domain.Event) error
	SendEnvelope(env domain.Envelope) error
	SendText(msg domain.Message) error
	Close() error
}

// ConnectionRegistry maps stable identities to their current transport.
type ConnectionRegistry interface {
	// Register binds handle as the authoritative transport for its user
	// and returns the superseded handle, if any, so the caller can decide
	// whether to notify it.
	Register(handle ConnectionHandle) (prev ConnectionHandle, superseded bool)
	// Resolve returns the current handle for id, or false when offline.
	Resolve(id domain.UserID) (ConnectionHandle, bool)
	// Unregister removes the mapping only if handle is still current for
	// its user. A stale disconnect racing a reconnect is a no-op; the
	// return value reports whether the mapping was actually removed.
	Unregister(handle ConnectionHandle) bool
}
