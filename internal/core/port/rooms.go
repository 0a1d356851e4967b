package port

import "github.com/glimmerapp/glimmer/internal/core/domain"

// RoomTable maps room keys to the ordered set of members currently joined.
// Joins and leaves for the same key are serialized: no two concurrent joins
// may both observe First.
type RoomTable interface {
	// Join adds id to the room, creating it on first join. A rejoin by an
	// existing member is a replace-on-reconnect; a third distinct
	// identity gets domain.ErrRoomFull.
	Join(key domain.RoomKey, id domain.UserID) (domain.JoinResult, error)
	// Leave removes id and returns the remaining members. The removed
	// flag is false when id was not a member; an empty room is deleted
	// within the same operation.
	Leave(key domain.RoomKey, id domain.UserID) (remaining []domain.UserID, removed bool, err error)
	// Members returns the current member set, or false if the room does
	// not exist.
	Members(key domain.RoomKey) ([]domain.UserID, bool)
	// Recipients returns all members except sender, for relay fan-out.
	Recipients(key domain.RoomKey, sender domain.UserID) []domain.UserID
}
