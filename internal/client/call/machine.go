// Package call drives the client-side call lifecycle. All transitions run
// on one goroutine: user actions, server frames, negotiator callbacks and
// the guard timer are serialized into a single event queue, so no two
// transitions ever race against a stale state snapshot.
package call

import (
	"context"
	"sync"
	"time"

	"github.com/glimmerapp/glimmer/internal/core/domain"
	"github.com/glimmerapp/glimmer/internal/wire"
	"github.com/rs/zerolog/log"
)

// State is the closed set of call lifecycle states.
type State string

const (
	StateIdle        State = "idle"
	StateOutgoing    State = "outgoing"
	StateIncoming    State = "incoming"
	StateNegotiating State = "negotiating"
	StateConnected   State = "connected"
)

// Sender pushes frames to the signaling server.
type Sender interface {
	Send(frame wire.Frame) error
}

// Negotiator is the slice of the peer adapter the machine drives.
type Negotiator interface {
	CreateOffer(ctx context.Context) (domain.Signal, error)
	CreateAnswer(ctx context.Context, offer domain.Signal) (domain.Signal, error)
	ApplyRemote(sig domain.Signal) error
	Close() error
}

// NegotiatorFactory builds a negotiator wired to the machine's callbacks.
// Acquiring local media happens inside the factory; the machine guarantees
// at most one live negotiator and always closes it on teardown, which gives
// capture its at-most-one-active discipline.
type NegotiatorFactory func(onLocalSignal func(domain.Signal), onConnected, onDisconnected func()) (Negotiator, error)

// Notifier is the user-facing surface. Every call attempt that leaves idle
// produces exactly one OnEnded, never zero and never two.
type Notifier interface {
	OnIncoming(from domain.UserID, key domain.RoomKey)
	OnOutgoing(target domain.UserID)
	OnConnected()
	OnEnded(reason domain.EndReason)
}

type evKind int

const (
	evDial evKind = iota
	evAnswer
	evDecline
	evHangup
	evFrame
	evLocalSignal
	evTransportUp
	evTransportDown
	evTimeout
	evStop
)

type event struct {
	kind    evKind
	target  domain.UserID
	frame   wire.Frame
	sig     domain.Signal
	attempt uint64
}

// Machine owns the local call state.
type Machine struct {
	self         domain.UserID
	sender       Sender
	negotiators  NegotiatorFactory
	notifier     Notifier
	setupTimeout time.Duration

	events chan event
	done   chan struct{}
	stop   sync.Once

	// Mutated only by the loop goroutine; the mutex exists so State()
	// can be read from outside.
	mu      sync.Mutex
	state   State
	roomKey domain.RoomKey
	remote  domain.UserID

	neg        Negotiator
	timer      *time.Timer
	attempt    uint64
	endedFired bool
}

func NewMachine(self domain.UserID, sender Sender, negotiators NegotiatorFactory, notifier Notifier, setupTimeout time.Duration) *Machine {
	m := &Machine{
		self:         self,
		sender:       sender,
		negotiators:  negotiators,
		notifier:     notifier,
		setupTimeout: setupTimeout,
		events:       make(chan event, 64),
		done:         make(chan struct{}),
		state:        StateIdle,
	}
	go m.loop()
	return m
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RoomKey returns the active call's room key, empty when idle.
func (m *Machine) RoomKey() domain.RoomKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomKey
}

// Dial starts an outgoing call to target.
func (m *Machine) Dial(target domain.UserID) {
	m.enqueue(event{kind: evDial, target: target})
}

// Answer accepts the ringing incoming call.
func (m *Machine) Answer() {
	m.enqueue(event{kind: evAnswer})
}

// Decline rejects the ringing incoming call.
func (m *Machine) Decline() {
	m.enqueue(event{kind: evDecline})
}

// HangUp ends the current call. Safe to invoke repeatedly; once idle it is
// a no-op.
func (m *Machine) HangUp() {
	m.enqueue(event{kind: evHangup})
}

// HandleFrame feeds one server frame into the event queue.
func (m *Machine) HandleFrame(frame wire.Frame) {
	m.enqueue(event{kind: evFrame, frame: frame})
}

// Close stops the loop and tears down any in-flight call.
func (m *Machine) Close() {
	m.stop.Do(func() {
		select {
		case m.events <- event{kind: evStop}:
		case <-m.done:
		}
	})
}

func (m *Machine) loop() {
	defer close(m.done)
	for ev := range m.events {
		if ev.kind == evStop {
			m.teardown(domain.ReasonHangup, false)
			return
		}
		m.handle(ev)
	}
}

func (m *Machine) handle(ev event) {
	// Timer and negotiator callbacks from an earlier attempt must not
	// touch the current one.
	switch ev.kind {
	case evLocalSignal, evTransportUp, evTransportDown, evTimeout:
		if ev.attempt != m.attempt {
			return
		}
	}

	switch ev.kind {
	case evDial:
		m.onDial(ev.target)
	case evAnswer:
		m.onAnswer()
	case evDecline:
		m.onDecline()
	case evHangup:
		m.onHangup()
	case evFrame:
		m.onFrame(ev.frame)
	case evLocalSignal:
		m.onLocalSignal(ev.sig)
	case evTransportUp:
		m.onTransportUp()
	case evTransportDown:
		m.onTransportDown()
	case evTimeout:
		m.onTimeout(ev.attempt)
	}
}

func (m *Machine) onDial(target domain.UserID) {
	if m.state != StateIdle {
		log.Warn().Str("state", string(m.state)).Msg("Dial ignored, call in progress")
		return
	}

	m.beginAttempt(StateOutgoing, target, domain.PairRoomKey(m.self, target))
	m.send(wire.Frame{Type: wire.TypeStartCall, Target: target.String()})

	if m.notifier != nil {
		m.notifier.OnOutgoing(target)
	}
	m.armTimer()
}

func (m *Machine) onAnswer() {
	if m.state != StateIncoming {
		return
	}
	if !m.openNegotiator() {
		return
	}

	// Join before accepting: frames on one socket are ordered, so the
	// server sees us in the room before the caller's first offer can be
	// relayed.
	m.send(wire.Frame{Type: wire.TypeJoinRoom, RoomKey: m.roomKey.String()})
	m.send(wire.Frame{Type: wire.TypeAcceptCall, RoomKey: m.roomKey.String()})
	m.setState(StateNegotiating)
	m.armTimer()
}

func (m *Machine) onDecline() {
	if m.state != StateIncoming {
		return
	}
	m.send(wire.Frame{Type: wire.TypeRejectCall, RoomKey: m.roomKey.String()})
	m.teardown(domain.ReasonRejected, true)
}

func (m *Machine) onHangup() {
	switch m.state {
	case StateIdle:
		// Second hang-up of the same call lands here and does nothing.
		return
	case StateIncoming:
		m.onDecline()
	default:
		m.send(wire.Frame{Type: wire.TypeEndCall, RoomKey: m.roomKey.String()})
		m.teardown(domain.ReasonHangup, true)
	}
}

func (m *Machine) onFrame(frame wire.Frame) {
	switch frame.Type {
	case wire.TypeIncomingCall:
		m.onIncomingCall(frame)

	case wire.TypeCallAccepted:
		m.onCallAccepted(frame)

	case wire.TypeCallRejected, wire.TypeCallFailed:
		if m.state != StateOutgoing || domain.RoomKey(frame.RoomKey) != m.roomKey {
			return
		}
		reason := domain.EndReason(frame.Reason)
		if reason == "" {
			reason = domain.ReasonRejected
		}
		m.teardown(reason, true)

	case wire.TypeCallEnded:
		if m.state == StateIdle || domain.RoomKey(frame.RoomKey) != m.roomKey {
			return
		}
		reason := domain.EndReason(frame.Reason)
		if reason == "" {
			reason = domain.ReasonHangup
		}
		m.teardown(reason, true)

	case wire.TypeSignal:
		m.onRemoteSignal(frame)
	}
}

func (m *Machine) onIncomingCall(frame wire.Frame) {
	if m.state != StateIdle {
		// Already busy with another call: decline without disturbing it.
		log.Info().Str("from", frame.From).Msg("Busy, auto-rejecting incoming call")
		m.send(wire.Frame{Type: wire.TypeRejectCall, RoomKey: frame.RoomKey})
		return
	}

	m.beginAttempt(StateIncoming, domain.UserID(frame.From), domain.RoomKey(frame.RoomKey))
	if m.notifier != nil {
		m.notifier.OnIncoming(m.remote, m.roomKey)
	}
}

func (m *Machine) onCallAccepted(frame wire.Frame) {
	// A late or duplicate acceptance after this call already ended must
	// not resurrect it.
	if m.state != StateOutgoing || domain.RoomKey(frame.RoomKey) != m.roomKey {
		log.Debug().Str("room", frame.RoomKey).Msg("Stale call-accepted ignored")
		return
	}

	if !m.openNegotiator() {
		return
	}

	m.send(wire.Frame{Type: wire.TypeJoinRoom, RoomKey: m.roomKey.String()})
	m.setState(StateNegotiating)
	// The ringing timer is replaced, not stopped: negotiation is bounded
	// by the machine too, so a lost answer or a transport that never
	// reports cannot strand the call.
	m.armTimer()

	offer, err := m.neg.CreateOffer(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Offer creation failed")
		m.abortTransport()
		return
	}
	m.sendSignal(offer)
}

func (m *Machine) onRemoteSignal(frame wire.Frame) {
	if m.state != StateNegotiating && m.state != StateConnected {
		return
	}
	if domain.RoomKey(frame.RoomKey) != m.roomKey || m.neg == nil {
		return
	}

	sig := domain.NewSignal(domain.SignalKind(frame.Kind), frame.Body)

	if sig.Kind == domain.SignalOffer {
		answer, err := m.neg.CreateAnswer(context.Background(), sig)
		if err != nil {
			log.Error().Err(err).Msg("Answer creation failed")
			m.abortTransport()
			return
		}
		m.sendSignal(answer)
		return
	}

	if err := m.neg.ApplyRemote(sig); err != nil {
		log.Warn().Err(err).Str("kind", string(sig.Kind)).Msg("Remote signal rejected")
	}
}

func (m *Machine) onLocalSignal(sig domain.Signal) {
	if m.state != StateNegotiating && m.state != StateConnected {
		return
	}
	m.sendSignal(sig)
}

func (m *Machine) onTransportUp() {
	if m.state != StateNegotiating {
		return
	}
	m.stopTimer()
	m.setState(StateConnected)
	if m.notifier != nil {
		m.notifier.OnConnected()
	}
}

func (m *Machine) onTransportDown() {
	if m.state != StateNegotiating && m.state != StateConnected {
		return
	}
	m.abortTransport()
}

func (m *Machine) onTimeout(attempt uint64) {
	if attempt != m.attempt {
		return
	}
	switch m.state {
	case StateOutgoing:
		m.send(wire.Frame{Type: wire.TypeEndCall, RoomKey: m.roomKey.String()})
		m.teardown(domain.ReasonNoAnswer, true)
	case StateNegotiating:
		// Negotiation never converged: the relayed answer was lost or the
		// transport never reported a state.
		m.abortTransport()
	}
}

// beginAttempt seeds a fresh call attempt. The attempt counter fences off
// timers from earlier attempts.
func (m *Machine) beginAttempt(state State, remote domain.UserID, key domain.RoomKey) {
	m.attempt++
	m.endedFired = false
	m.mu.Lock()
	m.state = state
	m.remote = remote
	m.roomKey = key
	m.mu.Unlock()
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Machine) openNegotiator() bool {
	attempt := m.attempt
	neg, err := m.negotiators(
		func(sig domain.Signal) {
			m.enqueue(event{kind: evLocalSignal, sig: sig, attempt: attempt})
		},
		func() { m.enqueue(event{kind: evTransportUp, attempt: attempt}) },
		func() { m.enqueue(event{kind: evTransportDown, attempt: attempt}) },
	)
	if err != nil {
		log.Error().Err(err).Msg("Negotiator setup failed")
		m.send(wire.Frame{Type: wire.TypeEndCall, RoomKey: m.roomKey.String()})
		m.teardown(domain.ReasonTransportFailed, true)
		return false
	}
	m.neg = neg
	return true
}

func (m *Machine) abortTransport() {
	m.send(wire.Frame{Type: wire.TypeEndCall, RoomKey: m.roomKey.String()})
	m.teardown(domain.ReasonTransportFailed, true)
}

// teardown performs the full unconditional cleanup: cancel the setup timer,
// discard the negotiator (releasing media capture), clear the room key and
// return to idle. The notifier hears about it exactly once.
func (m *Machine) teardown(reason domain.EndReason, notify bool) {
	m.stopTimer()

	if m.neg != nil {
		if err := m.neg.Close(); err != nil {
			log.Warn().Err(err).Msg("Negotiator close failed")
		}
		m.neg = nil
	}

	wasActive := m.state != StateIdle

	m.mu.Lock()
	m.state = StateIdle
	m.roomKey = ""
	m.remote = ""
	m.mu.Unlock()

	if notify && wasActive && !m.endedFired && m.notifier != nil {
		m.endedFired = true
		m.notifier.OnEnded(reason)
	}
}

// enqueue must never block: the loop may already have stopped by the time a
// late timer or transport callback fires, or a caller keeps using the
// machine after Close.
func (m *Machine) enqueue(ev event) {
	select {
	case <-m.done:
		return
	default:
	}
	select {
	case m.events <- ev:
	default:
		log.Warn().Int("kind", int(ev.kind)).Msg("Event queue full, event dropped")
	}
}

// armTimer (re)starts the attempt-fenced guard timer. The same bound covers
// ringing and negotiation; the state it fires in picks the reason.
func (m *Machine) armTimer() {
	m.stopTimer()
	attempt := m.attempt
	m.timer = time.AfterFunc(m.setupTimeout, func() {
		m.enqueue(event{kind: evTimeout, attempt: attempt})
	})
}

func (m *Machine) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) send(frame wire.Frame) {
	if err := m.sender.Send(frame); err != nil {
		log.Error().Err(err).Str("type", frame.Type).Msg("Frame send failed")
	}
}

func (m *Machine) sendSignal(sig domain.Signal) {
	m.send(wire.Frame{
		Type:    wire.TypeSignal,
		RoomKey: m.roomKey.String(),
		Kind:    string(sig.Kind),
		Body:    sig.Payload,
	})
}
