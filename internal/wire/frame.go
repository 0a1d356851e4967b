// Package wire defines the websocket frames exchanged between clients and
// the signaling server. Both the server adapter and the Go client speak
// exactly this vocabulary; signal bodies stay opaque strings end to end.
package wire

import "github.com/glimmerapp/glimmer/internal/core/domain"

const (
	// client → server
	TypeJoinRoom   = "join-room"
	TypeLeaveRoom  = "leave-room"
	TypeStartCall  = "start-call"
	TypeAcceptCall = "accept-call"
	TypeRejectCall = "reject-call"
	TypeChat       = "chat"

	// bidirectional
	TypeSignal  = "signal"
	TypeEndCall = "end-call"

	// server → client
	TypeIncomingCall      = "incoming-call"
	TypeCallAccepted      = "call-accepted"
	TypeCallRejected      = "call-rejected"
	TypeCallFailed        = "call-failed"
	TypeCallEnded         = "call-ended"
	TypeUserJoined        = "user-joined"
	TypeUserLeft          = "user-left"
	TypeUserAlreadyInRoom = "user-already-in-room"
)

// Frame is the single message shape on the socket. Unused fields are
// omitted per type.
type Frame struct {
	Type    string   `json:"type"`
	RoomKey string   `json:"room_key,omitempty"`
	From    string   `json:"from,omitempty"`
	Target  string   `json:"target,omitempty"`
	Kind    string   `json:"kind,omitempty"`
	Body    string   `json:"body,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Members []string `json:"members,omitempty"`
	Content string   `json:"content,omitempty"`
}

// FromEvent renders a lifecycle or membership event for the socket.
func FromEvent(ev domain.Event) Frame {
	f := Frame{
		Type:    string(ev.Kind),
		RoomKey: ev.RoomKey.String(),
		From:    ev.From.String(),
		Reason:  string(ev.Reason),
	}
	for _, m := range ev.Members {
		f.Members = append(f.Members, m.String())
	}
	return f
}

// FromEnvelope renders a relayed signal for the socket.
func FromEnvelope(env domain.Envelope) Frame {
	return Frame{
		Type:    TypeSignal,
		RoomKey: env.RoomKey.String(),
		From:    env.Sender.String(),
		Kind:    string(env.Signal.Kind),
		Body:    env.Signal.Payload,
	}
}

// FromMessage renders a chat message for the socket.
func FromMessage(msg domain.Message) Frame {
	return Frame{
		Type:    TypeChat,
		RoomKey: msg.RoomKey.String(),
		From:    msg.SenderID.String(),
		Content: msg.Content,
	}
}

// Event parses a server-sent lifecycle frame back into a domain event.
func (f Frame) Event() domain.Event {
	ev := domain.Event{
		Kind:    domain.EventKind(f.Type),
		RoomKey: domain.RoomKey(f.RoomKey),
		From:    domain.UserID(f.From),
		Reason:  domain.EndReason(f.Reason),
	}
	for _, m := range f.Members {
		ev.Members = append(ev.Members, domain.UserID(m))
	}
	return ev
}

// Envelope parses a signal frame. The sender field is filled by the server
// on relay; clients must not trust a peer-supplied value.
func (f Frame) Envelope() domain.Envelope {
	return domain.Envelope{
		RoomKey: domain.RoomKey(f.RoomKey),
		Sender:  domain.UserID(f.From),
		Signal:  domain.NewSignal(domain.SignalKind(f.Kind), f.Body),
	}
}
