package domain

import "errors"

var (
	// ErrTargetOffline means the callee has no live connection.
	ErrTargetOffline = errors.New("target is not connected")
	// ErrPairBusy means an active call already exists for the pair.
	ErrPairBusy = errors.New("call already active for this pair")
	// ErrCallNotFound means no call record matches the room key.
	ErrCallNotFound = errors.New("no call record for room")
	// ErrWrongParty means the sender is not the recorded party for the
	// attempted lifecycle transition.
	ErrWrongParty = errors.New("sender is not a party of this call")
	// ErrInvalidTransition means the record is not in a status that
	// permits the attempted transition.
	ErrInvalidTransition = errors.New("call record does not permit this transition")
	// ErrRoomFull means a third distinct identity tried to join a room.
	ErrRoomFull = errors.New("room already has two members")
	// ErrInvalidRoomKey means a blank or unusable room key was supplied.
	ErrInvalidRoomKey = errors.New("invalid room key")
)
