package service

import (
	"context"
	"errors"
	"time"

	"github.com/glimmerapp/glimmer/internal/core/domain"
	"github.com/glimmerapp/glimmer/internal/core/port"
	"github.com/rs/zerolog/log"
)

// SignalingHub drives the server-side call lifecycle: it creates and tears
// down call records, relays opaque negotiation payloads between room
// members, and turns disconnects into the same cleanup as an explicit
// end-call. Business failures (offline target, busy pair) are answered with
// call-failed events; protocol-integrity failures are dropped and logged,
// never forwarded.
type SignalingHub struct {
	registry port.ConnectionRegistry
	rooms    port.RoomTable
	calls    port.CallStore
	gateway  port.EventGateway
	history  port.CallHistoryRepository
}

func NewSignalingHub(
	registry port.ConnectionRegistry,
	rooms port.RoomTable,
	calls port.CallStore,
	gateway port.EventGateway,
	history port.CallHistoryRepository,
) *SignalingHub {
	return &SignalingHub{
		registry: registry,
		rooms:    rooms,
		calls:    calls,
		gateway:  gateway,
		history:  history,
	}
}

// Register binds handle as the authoritative transport for its user. The
// superseded handle, if any, is returned so the transport layer can close it.
func (h *SignalingHub) Register(handle port.ConnectionHandle) (port.ConnectionHandle, bool) {
	return h.registry.Register(handle)
}

// StartCall initiates a call from caller to target. The target is notified
// with incoming-call; the caller only hears back on acceptance, rejection,
// or failure. Offline and busy outcomes are delivered to the caller as
// call-failed and create no record.
func (h *SignalingHub) StartCall(ctx context.Context, caller, target domain.UserID) error {
	if caller == target {
		return h.failCall(ctx, caller, domain.PairRoomKey(caller, target), domain.ReasonBusy)
	}

	key := domain.PairRoomKey(caller, target)

	if _, ok := h.registry.Resolve(target); !ok {
		log.Info().Str("caller", caller.String()).Str("target", target.String()).Msg("Call failed, target offline")
		return h.failCall(ctx, caller, key, domain.ReasonOffline)
	}

	rec, err := h.calls.Create(caller, target)
	if err != nil {
		if errors.Is(err, domain.ErrPairBusy) {
			log.Info().Str("caller", caller.String()).Str("target", target.String()).Msg("Call failed, pair busy")
			return h.failCall(ctx, caller, key, domain.ReasonBusy)
		}
		return err
	}

	log.Info().Str("caller", caller.String()).Str("target", target.String()).Str("room", rec.RoomKey.String()).Msg("Call started")

	return h.gateway.Notify(ctx, target, domain.Event{
		Kind:    domain.EventIncomingCall,
		RoomKey: rec.RoomKey,
		From:    caller,
	})
}

// AcceptCall transitions the record to connected and tells the caller. Only
// the recorded target may accept; anything else is dropped and logged.
func (h *SignalingHub) AcceptCall(ctx context.Context, target domain.UserID, key domain.RoomKey) error {
	rec, err := h.calls.Accept(key, target)
	if err != nil {
		log.Warn().Err(err).Str("user_id", target.String()).Str("room", key.String()).Msg("Accept dropped")
		return err
	}

	log.Info().Str("room", key.String()).Msg("Call accepted")

	return h.gateway.Notify(ctx, rec.Caller, domain.Event{
		Kind:    domain.EventCallAccepted,
		RoomKey: key,
		From:    target,
	})
}

// RejectCall deletes the record and tells the caller. The room, if either
// side already joined it, is emptied within the same operation.
func (h *SignalingHub) RejectCall(ctx context.Context, target domain.UserID, key domain.RoomKey) error {
	rec, ok := h.calls.Get(key)
	if !ok || rec.Target != target || rec.Status != domain.CallStatusCalling {
		log.Warn().Str("user_id", target.String()).Str("room", key.String()).Msg("Reject dropped")
		return domain.ErrCallNotFound
	}

	h.calls.Delete(key)
	h.emptyRoom(key, rec)
	h.logHistory(ctx, rec, domain.ReasonRejected)

	log.Info().Str("room", key.String()).Msg("Call rejected")

	return h.gateway.Notify(ctx, rec.Caller, domain.Event{
		Kind:    domain.EventCallRejected,
		RoomKey: key,
		From:    target,
		Reason:  domain.ReasonRejected,
	})
}

// EndCall tears down an active call from either side. The other party is
// notified if still connected; the room is emptied either way.
func (h *SignalingHub) EndCall(ctx context.Context, id domain.UserID, key domain.RoomKey) error {
	rec, ok := h.calls.Get(key)
	if !ok || !rec.Involves(id) {
		log.Warn().Str("user_id", id.String()).Str("room", key.String()).Msg("End-call dropped")
		return domain.ErrCallNotFound
	}

	h.calls.Delete(key)
	h.emptyRoom(key, rec)
	h.logHistory(ctx, rec, domain.ReasonHangup)

	log.Info().Str("room", key.String()).Str("user_id", id.String()).Msg("Call ended")

	return h.gateway.Notify(ctx, rec.Other(id), domain.Event{
		Kind:    domain.EventCallEnded,
		RoomKey: key,
		From:    id,
		Reason:  domain.ReasonHangup,
	})
}

// Relay forwards an opaque signal to the other room members. Payloads for a
// room with no connected-status record are stale leftovers of a torn-down
// call and must never leak into a new one reusing the same pair key.
func (h *SignalingHub) Relay(ctx context.Context, env domain.Envelope) error {
	rec, ok := h.calls.Get(env.RoomKey)
	if !ok || rec.Status != domain.CallStatusConnected || !rec.Involves(env.Sender) {
		log.Warn().
			Str("room", env.RoomKey.String()).
			Str("sender", env.Sender.String()).
			Str("kind", string(env.Signal.Kind)).
			Msg("Stale or unauthorized signal dropped")
		return domain.ErrCallNotFound
	}

	for _, target := range h.rooms.Recipients(env.RoomKey, env.Sender) {
		if err := h.gateway.Forward(ctx, target, env); err != nil {
			log.Error().Err(err).Str("user_id", target.String()).Msg("Signal forward failed")
		}
	}
	return nil
}

// JoinRoom adds id to the room and notifies existing members. A full room
// answers the joiner with user-already-in-room instead.
func (h *SignalingHub) JoinRoom(ctx context.Context, key domain.RoomKey, id domain.UserID) error {
	res, err := h.rooms.Join(key, id)
	if err != nil {
		if errors.Is(err, domain.ErrRoomFull) {
			members, _ := h.rooms.Members(key)
			return h.gateway.Notify(ctx, id, domain.Event{
				Kind:    domain.EventUserAlreadyInRoom,
				RoomKey: key,
				Members: members,
			})
		}
		return err
	}

	log.Debug().Str("room", key.String()).Str("user_id", id.String()).Bool("first", res.First).Msg("Joined room")

	for _, other := range res.Others {
		if err := h.gateway.Notify(ctx, other, domain.Event{
			Kind:    domain.EventUserJoined,
			RoomKey: key,
			From:    id,
		}); err != nil {
			log.Error().Err(err).Str("user_id", other.String()).Msg("Join notification failed")
		}
	}
	return nil
}

// LeaveRoom removes id and tells whoever stayed behind. A leave for a room
// id never joined is dropped, so a spoofed frame cannot announce the
// departure of someone who was never there.
func (h *SignalingHub) LeaveRoom(ctx context.Context, key domain.RoomKey, id domain.UserID) error {
	remaining, removed, err := h.rooms.Leave(key, id)
	if err != nil {
		return err
	}
	if !removed {
		log.Warn().Str("room", key.String()).Str("user_id", id.String()).Msg("Leave by non-member dropped")
		return nil
	}
	for _, other := range remaining {
		if err := h.gateway.Notify(ctx, other, domain.Event{
			Kind:    domain.EventUserLeft,
			RoomKey: key,
			From:    id,
		}); err != nil {
			log.Error().Err(err).Str("user_id", other.String()).Msg("Leave notification failed")
		}
	}
	return nil
}

// Disconnect handles a dropped transport. A stale disconnect racing a
// reconnect is a no-op. Otherwise the user's active call, if any, is torn
// down exactly as an explicit end-call or reject would have, and the user is
// removed from every room it had joined.
func (h *SignalingHub) Disconnect(ctx context.Context, handle port.ConnectionHandle, joined []domain.RoomKey) error {
	if !h.registry.Unregister(handle) {
		log.Debug().Str("user_id", handle.UserID().String()).Msg("Stale disconnect ignored")
		return nil
	}

	id := handle.UserID()
	var callKey domain.RoomKey

	if rec, ok := h.calls.FindActiveByUser(id); ok {
		callKey = rec.RoomKey
		h.calls.Delete(rec.RoomKey)
		h.emptyRoom(rec.RoomKey, rec)

		switch {
		case rec.Status == domain.CallStatusCalling && rec.Caller == id:
			// Caller gave up before anyone answered: a missed call.
			// The target never accepted, so nobody is notified.
			h.logHistory(ctx, rec, domain.ReasonNoAnswer)
			log.Info().Str("room", rec.RoomKey.String()).Msg("Caller disconnected while ringing, record dropped")

		case rec.Status == domain.CallStatusCalling && rec.Target == id:
			h.logHistory(ctx, rec, domain.ReasonOffline)
			h.notifyEnded(ctx, rec.Caller, rec.RoomKey, id, domain.EventCallFailed, domain.ReasonOffline)

		default:
			h.logHistory(ctx, rec, domain.ReasonPeerDisconnected)
			h.notifyEnded(ctx, rec.Other(id), rec.RoomKey, id, domain.EventCallEnded, domain.ReasonPeerDisconnected)
		}
	}

	for _, key := range joined {
		if key == callKey {
			continue // already torn down with the call
		}
		if err := h.LeaveRoom(ctx, key, id); err != nil {
			log.Error().Err(err).Str("room", key.String()).Msg("Room cleanup failed on disconnect")
		}
	}

	log.Info().Str("user_id", id.String()).Msg("Client disconnected")
	return nil
}

func (h *SignalingHub) failCall(ctx context.Context, caller domain.UserID, key domain.RoomKey, reason domain.EndReason) error {
	return h.gateway.Notify(ctx, caller, domain.Event{
		Kind:    domain.EventCallFailed,
		RoomKey: key,
		Reason:  reason,
	})
}

func (h *SignalingHub) notifyEnded(ctx context.Context, to domain.UserID, key domain.RoomKey, from domain.UserID, kind domain.EventKind, reason domain.EndReason) {
	if err := h.gateway.Notify(ctx, to, domain.Event{
		Kind:    kind,
		RoomKey: key,
		From:    from,
		Reason:  reason,
	}); err != nil {
		log.Error().Err(err).Str("user_id", to.String()).Msg("Teardown notification failed")
	}
}

// emptyRoom removes both call parties from the room so the entry is deleted
// within the same logical operation as the record.
func (h *SignalingHub) emptyRoom(key domain.RoomKey, rec domain.CallRecord) {
	if _, _, err := h.rooms.Leave(key, rec.Caller); err != nil {
		log.Error().Err(err).Str("room", key.String()).Msg("Room cleanup failed")
	}
	if _, _, err := h.rooms.Leave(key, rec.Target); err != nil {
		log.Error().Err(err).Str("room", key.String()).Msg("Room cleanup failed")
	}
}

// logHistory is fire-and-forget: a slow or failing history sink must never
// delay teardown.
func (h *SignalingHub) logHistory(ctx context.Context, rec domain.CallRecord, reason domain.EndReason) {
	if h.history == nil {
		return
	}
	entry := port.CallHistoryEntry{Record: rec, Reason: reason, LoggedAt: time.Now()}
	go func() {
		if err := h.history.Log(context.WithoutCancel(ctx), entry); err != nil {
			log.Error().Err(err).Str("room", rec.RoomKey.String()).Msg("Call history write failed")
		}
	}()
}
