package domain

import "strings"

// RoomKey identifies the rendezvous scope through which signaling payloads
// for one call are relayed. A room never holds more than two members.
type RoomKey string

func (k RoomKey) String() string {
	return string(k)
}

// PairRoomKey derives the deterministic room key for a call between two
// users. Both sides compute the same key independently, so neither needs to
// be told it out of band.
func PairRoomKey(a, b UserID) RoomKey {
	if b < a {
		a, b = b, a
	}
	return RoomKey(string(a) + "#" + string(b))
}

// NewRoomKeyFromString accepts a caller-chosen key for ad-hoc rooms.
func NewRoomKeyFromString(s string) (RoomKey, error) {
	if strings.TrimSpace(s) == "" {
		return "", ErrInvalidRoomKey
	}
	return RoomKey(s), nil
}

// JoinResult tells a joiner whether it opened the room and who was already
// there, so the caller can notify both sides symmetrically.
type JoinResult struct {
	First  bool
	Others []UserID
}
