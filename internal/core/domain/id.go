package domain

import (
	"errors"

	"github.com/google/uuid"
)

// UserID is the opaque, application-assigned identity of a user. It is
// stable across reconnects; the live transport session is tracked separately
// by the connection registry.
type UserID string

func ParseUserID(s string) (UserID, error) {
	if s == "" {
		return "", errors.New("user id cannot be empty")
	}
	return UserID(s), nil
}

func (id UserID) String() string {
	return string(id)
}

type MessageID uuid.UUID

func NewMessageID() MessageID {
	return MessageID(uuid.New())
}

func (id MessageID) String() string {
	return uuid.UUID(id).String()
}

type CallID uuid.UUID

func NewCallID() CallID {
	return CallID(uuid.New())
}

func (id CallID) String() string {
	return uuid.UUID(id).String()
}
