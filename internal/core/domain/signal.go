package domain

type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

// Signal is an opaque negotiation payload. The server routes it by room key
// and never inspects the body.
type Signal struct {
	Kind    SignalKind
	Payload string
}

func NewSignal(kind SignalKind, payload string) Signal {
	return Signal{
		Kind:    kind,
		Payload: payload,
	}
}

// Envelope is the unit relayed between room members: a signal plus the
// routing information the hub needs.
type Envelope struct {
	RoomKey RoomKey
	Sender  UserID
	Signal  Signal
}
