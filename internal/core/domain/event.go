package domain

// EventKind is a call-lifecycle or room-membership notification the hub
// pushes to a specific user, independent of room membership.
type EventKind string

const (
	EventIncomingCall      EventKind = "incoming-call"
	EventCallAccepted      EventKind = "call-accepted"
	EventCallRejected      EventKind = "call-rejected"
	EventCallFailed        EventKind = "call-failed"
	EventCallEnded         EventKind = "call-ended"
	EventUserJoined        EventKind = "user-joined"
	EventUserLeft          EventKind = "user-left"
	EventUserAlreadyInRoom EventKind = "user-already-in-room"
)

// Event describes what happened to the user it is delivered to.
type Event struct {
	Kind    EventKind
	RoomKey RoomKey
	// From is the counterpart the event is about: the caller on
	// incoming-call, the leaver on user-left, and so on.
	From   UserID
	Reason EndReason
	// Members carries the current member list on user-already-in-room.
	Members []UserID
}
