package domain

import "time"

// CallStatus is the lifecycle state of a server-held call record.
type CallStatus string

const (
	CallStatusCalling   CallStatus = "calling"
	CallStatusConnected CallStatus = "connected"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusEnded     CallStatus = "ended"
)

// Active reports whether the record still claims its pair of users.
func (s CallStatus) Active() bool {
	return s == CallStatusCalling || s == CallStatusConnected
}

// EndReason is attached to terminal call events so the remote side can show
// exactly one user-facing message.
type EndReason string

const (
	ReasonOffline          EndReason = "offline"
	ReasonBusy             EndReason = "busy"
	ReasonRejected         EndReason = "rejected"
	ReasonNoAnswer         EndReason = "no-answer"
	ReasonHangup           EndReason = "hangup"
	ReasonPeerDisconnected EndReason = "peer-disconnected"
	ReasonTransportFailed  EndReason = "connection-failed"
)

// CallRecord is the ephemeral server-side description of one call attempt
// between exactly two users. At most one record with an active status exists
// per unordered pair at any instant.
type CallRecord struct {
	ID         CallID
	RoomKey    RoomKey
	Caller     UserID
	Target     UserID
	Status     CallStatus
	StartedAt  time.Time
	AcceptedAt *time.Time
}

func NewCallRecord(caller, target UserID) CallRecord {
	return CallRecord{
		ID:        NewCallID(),
		RoomKey:   PairRoomKey(caller, target),
		Caller:    caller,
		Target:    target,
		Status:    CallStatusCalling,
		StartedAt: time.Now(),
	}
}

// Other returns the member of the pair that is not id. The zero UserID is
// returned when id is not part of the call.
func (c CallRecord) Other(id UserID) UserID {
	switch id {
	case c.Caller:
		return c.Target
	case c.Target:
		return c.Caller
	}
	return ""
}

// Involves reports whether id is one of the two parties.
func (c CallRecord) Involves(id UserID) bool {
	return id == c.Caller || id == c.Target
}
