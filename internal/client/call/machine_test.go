package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glimmerapp/glimmer/internal/core/domain"
	"github.com/glimmerapp/glimmer/internal/wire"
)

type fakeSender struct {
	mu     sync.Mutex
	frames []wire.Frame
}

func (s *fakeSender) Send(f wire.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSender) all() []wire.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *fakeSender) count(frameType string) int {
	n := 0
	for _, f := range s.all() {
		if f.Type == frameType {
			n++
		}
	}
	return n
}

func (s *fakeSender) last(frameType string) (wire.Frame, bool) {
	var found wire.Frame
	ok := false
	for _, f := range s.all() {
		if f.Type == frameType {
			found, ok = f, true
		}
	}
	return found, ok
}

type fakeNotifier struct {
	mu        sync.Mutex
	incoming  []domain.UserID
	outgoing  []domain.UserID
	connected int
	ended     []domain.EndReason
}

func (n *fakeNotifier) OnIncoming(from domain.UserID, _ domain.RoomKey) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.incoming = append(n.incoming, from)
}

func (n *fakeNotifier) OnOutgoing(target domain.UserID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outgoing = append(n.outgoing, target)
}

func (n *fakeNotifier) OnConnected() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected++
}

func (n *fakeNotifier) OnEnded(reason domain.EndReason) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, reason)
}

func (n *fakeNotifier) endedReasons() []domain.EndReason {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.EndReason, len(n.ended))
	copy(out, n.ended)
	return out
}

type fakeNeg struct {
	mu      sync.Mutex
	offers  int
	answers int
	applied []domain.Signal
	closed  bool
}

func (n *fakeNeg) CreateOffer(context.Context) (domain.Signal, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offers++
	return domain.NewSignal(domain.SignalOffer, "local-offer"), nil
}

func (n *fakeNeg) CreateAnswer(_ context.Context, offer domain.Signal) (domain.Signal, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.answers++
	n.applied = append(n.applied, offer)
	return domain.NewSignal(domain.SignalAnswer, "local-answer"), nil
}

func (n *fakeNeg) ApplyRemote(sig domain.Signal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.applied = append(n.applied, sig)
	return nil
}

func (n *fakeNeg) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

func (n *fakeNeg) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// machineHarness wires a machine to fakes and keeps hold of the negotiator
// callbacks so tests can fire transport events.
type machineHarness struct {
	sender *fakeSender
	notif  *fakeNotifier
	m      *Machine

	mu             sync.Mutex
	negs           []*fakeNeg
	onConnected    func()
	onDisconnected func()
}

func newMachineHarness(t *testing.T, setupTimeout time.Duration) *machineHarness {
	t.Helper()
	h := &machineHarness{
		sender: &fakeSender{},
		notif:  &fakeNotifier{},
	}
	factory := func(onLocal func(domain.Signal), onConnected, onDisconnected func()) (Negotiator, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		neg := &fakeNeg{}
		h.negs = append(h.negs, neg)
		h.onConnected = onConnected
		h.onDisconnected = onDisconnected
		return neg, nil
	}
	h.m = NewMachine("alice", h.sender, factory, h.notif, setupTimeout)
	t.Cleanup(h.m.Close)
	return h
}

func (h *machineHarness) negCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.negs)
}

func (h *machineHarness) lastNeg() *fakeNeg {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.negs) == 0 {
		return nil
	}
	return h.negs[len(h.negs)-1]
}

func (h *machineHarness) fireConnected() {
	h.mu.Lock()
	fn := h.onConnected
	h.mu.Unlock()
	fn()
}

func (h *machineHarness) fireDisconnected() {
	h.mu.Lock()
	fn := h.onDisconnected
	h.mu.Unlock()
	fn()
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func (h *machineHarness) waitState(t *testing.T, want State) {
	t.Helper()
	waitFor(t, "never reached state "+string(want), func() bool {
		return h.m.State() == want
	})
}

// dialAndAccept drives the machine to the negotiating state as the caller.
func (h *machineHarness) dialAndAccept(t *testing.T) domain.RoomKey {
	t.Helper()
	key := domain.PairRoomKey("alice", "bob")
	h.m.Dial("bob")
	h.waitState(t, StateOutgoing)
	h.m.HandleFrame(wire.Frame{Type: wire.TypeCallAccepted, RoomKey: key.String(), From: "bob"})
	h.waitState(t, StateNegotiating)
	return key
}

func TestDialSendsStartCall(t *testing.T) {
	h := newMachineHarness(t, time.Minute)

	h.m.Dial("bob")
	h.waitState(t, StateOutgoing)

	f, ok := h.sender.last(wire.TypeStartCall)
	if !ok || f.Target != "bob" {
		t.Fatalf("expected start-call for bob, got %+v", f)
	}
	h.notif.mu.Lock()
	outgoing := len(h.notif.outgoing)
	h.notif.mu.Unlock()
	if outgoing != 1 {
		t.Fatalf("expected one outgoing notification, got %d", outgoing)
	}
}

func TestDialWhileBusyIgnored(t *testing.T) {
	h := newMachineHarness(t, time.Minute)

	h.m.Dial("bob")
	h.waitState(t, StateOutgoing)
	h.m.Dial("carol")

	waitFor(t, "second dial leaked a start-call", func() bool {
		return h.sender.count(wire.TypeStartCall) == 1
	})
	if key := h.m.RoomKey(); key != domain.PairRoomKey("alice", "bob") {
		t.Fatalf("room key must still point at bob, got %s", key)
	}
}

func TestNoAnswerTimeout(t *testing.T) {
	h := newMachineHarness(t, 25*time.Millisecond)

	h.m.Dial("bob")
	waitFor(t, "timeout never fired", func() bool {
		return len(h.notif.endedReasons()) == 1
	})

	if reasons := h.notif.endedReasons(); len(reasons) != 1 || reasons[0] != domain.ReasonNoAnswer {
		t.Fatalf("expected exactly one no-answer, got %v", reasons)
	}
	if h.sender.count(wire.TypeEndCall) != 1 {
		t.Fatal("timeout must tell the server to drop the attempt")
	}
}

func TestCallAcceptedStartsNegotiation(t *testing.T) {
	h := newMachineHarness(t, time.Minute)
	key := h.dialAndAccept(t)

	if h.negCount() != 1 {
		t.Fatalf("expected one negotiator, got %d", h.negCount())
	}

	// join-room must hit the wire before the first offer.
	var joinIdx, signalIdx = -1, -1
	for i, f := range h.sender.all() {
		switch f.Type {
		case wire.TypeJoinRoom:
			joinIdx = i
		case wire.TypeSignal:
			if signalIdx == -1 {
				signalIdx = i
			}
		}
	}
	if joinIdx == -1 || signalIdx == -1 || joinIdx > signalIdx {
		t.Fatalf("join-room must precede the offer, got %+v", h.sender.all())
	}

	f, _ := h.sender.last(wire.TypeSignal)
	if f.Kind != string(domain.SignalOffer) || f.RoomKey != key.String() {
		t.Fatalf("expected an offer for %s, got %+v", key, f)
	}
}

func TestStaleCallAcceptedIgnored(t *testing.T) {
	h := newMachineHarness(t, time.Minute)
	key := domain.PairRoomKey("alice", "bob")

	h.m.Dial("bob")
	h.waitState(t, StateOutgoing)
	h.m.HangUp()
	h.waitState(t, StateIdle)

	// The acceptance crossed the hang-up on the wire.
	h.m.HandleFrame(wire.Frame{Type: wire.TypeCallAccepted, RoomKey: key.String(), From: "bob"})

	waitFor(t, "late acceptance resurrected the call", func() bool {
		return h.m.State() == StateIdle && h.negCount() == 0
	})
	if reasons := h.notif.endedReasons(); len(reasons) != 1 || reasons[0] != domain.ReasonHangup {
		t.Fatalf("expected one hangup, got %v", reasons)
	}
}

func TestConnectAndHangUpOnce(t *testing.T) {
	h := newMachineHarness(t, time.Minute)
	h.dialAndAccept(t)

	h.fireConnected()
	h.waitState(t, StateConnected)

	h.m.HangUp()
	h.m.HangUp()
	h.waitState(t, StateIdle)

	if h.sender.count(wire.TypeEndCall) != 1 {
		t.Fatalf("expected one end-call, got %d", h.sender.count(wire.TypeEndCall))
	}
	if reasons := h.notif.endedReasons(); len(reasons) != 1 || reasons[0] != domain.ReasonHangup {
		t.Fatalf("expected exactly one hangup, got %v", reasons)
	}
	if !h.lastNeg().isClosed() {
		t.Fatal("negotiator must be closed on teardown")
	}
}

func TestTransportDownAbortsCall(t *testing.T) {
	h := newMachineHarness(t, time.Minute)
	h.dialAndAccept(t)
	h.fireConnected()
	h.waitState(t, StateConnected)

	h.fireDisconnected()
	h.waitState(t, StateIdle)

	if reasons := h.notif.endedReasons(); len(reasons) != 1 || reasons[0] != domain.ReasonTransportFailed {
		t.Fatalf("expected connection-failed, got %v", reasons)
	}
	if h.sender.count(wire.TypeEndCall) != 1 {
		t.Fatal("transport loss must notify the server")
	}
}

func TestNegotiationIsTimeBounded(t *testing.T) {
	h := newMachineHarness(t, 30*time.Millisecond)
	key := domain.PairRoomKey("alice", "bob")

	h.m.Dial("bob")
	h.m.HandleFrame(wire.Frame{Type: wire.TypeCallAccepted, RoomKey: key.String(), From: "bob"})

	// The transport never reports up; the machine must give up on its own.
	waitFor(t, "negotiation was never bounded", func() bool {
		return h.m.State() == StateIdle
	})
	if reasons := h.notif.endedReasons(); len(reasons) != 1 || reasons[0] != domain.ReasonTransportFailed {
		t.Fatalf("expected one connection-failed, got %v", reasons)
	}
	if h.sender.count(wire.TypeEndCall) != 1 {
		t.Fatal("the stuck attempt must be ended on the server too")
	}
	if !h.lastNeg().isClosed() {
		t.Fatal("negotiator must be closed when negotiation times out")
	}
}

func TestAnswererNegotiationIsTimeBounded(t *testing.T) {
	h := newMachineHarness(t, 30*time.Millisecond)
	key := domain.PairRoomKey("alice", "bob")

	h.m.HandleFrame(wire.Frame{Type: wire.TypeIncomingCall, RoomKey: key.String(), From: "bob"})
	h.waitState(t, StateIncoming)
	h.m.Answer()

	// The caller's offer never arrives.
	waitFor(t, "answerer negotiation was never bounded", func() bool {
		return h.m.State() == StateIdle
	})
	if reasons := h.notif.endedReasons(); len(reasons) != 1 || reasons[0] != domain.ReasonTransportFailed {
		t.Fatalf("expected one connection-failed, got %v", reasons)
	}
}

func TestConnectedCallOutlivesTheGuardTimer(t *testing.T) {
	h := newMachineHarness(t, 150*time.Millisecond)
	h.dialAndAccept(t)
	h.fireConnected()
	h.waitState(t, StateConnected)

	time.Sleep(300 * time.Millisecond)

	if h.m.State() != StateConnected {
		t.Fatalf("established call was torn down, state %s", h.m.State())
	}
	if reasons := h.notif.endedReasons(); len(reasons) != 0 {
		t.Fatalf("no terminal event may fire while connected, got %v", reasons)
	}
}

func TestCallsAfterCloseDoNotBlock(t *testing.T) {
	h := newMachineHarness(t, time.Minute)

	h.m.Close()

	// Well past the queue capacity; every call must return immediately.
	for i := 0; i < 200; i++ {
		h.m.Dial("bob")
		h.m.HangUp()
		h.m.HandleFrame(wire.Frame{Type: wire.TypeIncomingCall, RoomKey: "alice#bob", From: "bob"})
	}

	if h.m.State() != StateIdle {
		t.Fatalf("closed machine must stay idle, got %s", h.m.State())
	}
}

func TestAnswerIncomingCall(t *testing.T) {
	h := newMachineHarness(t, time.Minute)
	key := domain.PairRoomKey("alice", "bob")

	h.m.HandleFrame(wire.Frame{Type: wire.TypeIncomingCall, RoomKey: key.String(), From: "bob"})
	h.waitState(t, StateIncoming)

	h.m.Answer()
	h.waitState(t, StateNegotiating)

	// join-room strictly before accept-call, so the relay of the caller's
	// offer already finds us in the room.
	var joinIdx, acceptIdx = -1, -1
	for i, f := range h.sender.all() {
		switch f.Type {
		case wire.TypeJoinRoom:
			joinIdx = i
		case wire.TypeAcceptCall:
			acceptIdx = i
		}
	}
	if joinIdx == -1 || acceptIdx == -1 || joinIdx > acceptIdx {
		t.Fatalf("join-room must precede accept-call, got %+v", h.sender.all())
	}

	// The caller's offer arrives; we answer it.
	h.m.HandleFrame(wire.Frame{
		Type:    wire.TypeSignal,
		RoomKey: key.String(),
		From:    "bob",
		Kind:    string(domain.SignalOffer),
		Body:    "remote-offer",
	})
	waitFor(t, "offer was never answered", func() bool {
		f, ok := h.sender.last(wire.TypeSignal)
		return ok && f.Kind == string(domain.SignalAnswer)
	})

	h.fireConnected()
	h.waitState(t, StateConnected)

	h.m.HandleFrame(wire.Frame{Type: wire.TypeCallEnded, RoomKey: key.String(), From: "bob", Reason: string(domain.ReasonHangup)})
	h.waitState(t, StateIdle)

	if reasons := h.notif.endedReasons(); len(reasons) != 1 || reasons[0] != domain.ReasonHangup {
		t.Fatalf("expected one hangup, got %v", reasons)
	}
	if !h.lastNeg().isClosed() {
		t.Fatal("negotiator must be closed when the peer hangs up")
	}
}

func TestDeclineIncomingCall(t *testing.T) {
	h := newMachineHarness(t, time.Minute)
	key := domain.PairRoomKey("alice", "bob")

	h.m.HandleFrame(wire.Frame{Type: wire.TypeIncomingCall, RoomKey: key.String(), From: "bob"})
	h.waitState(t, StateIncoming)

	h.m.Decline()
	h.waitState(t, StateIdle)

	f, ok := h.sender.last(wire.TypeRejectCall)
	if !ok || f.RoomKey != key.String() {
		t.Fatalf("expected reject-call for %s, got %+v", key, f)
	}
	if h.negCount() != 0 {
		t.Fatal("declining must not open a negotiator")
	}
}

func TestBusyAutoRejectsSecondCaller(t *testing.T) {
	h := newMachineHarness(t, time.Minute)
	otherKey := domain.PairRoomKey("alice", "carol")

	h.m.Dial("bob")
	h.waitState(t, StateOutgoing)

	h.m.HandleFrame(wire.Frame{Type: wire.TypeIncomingCall, RoomKey: otherKey.String(), From: "carol"})

	waitFor(t, "second caller was never rejected", func() bool {
		f, ok := h.sender.last(wire.TypeRejectCall)
		return ok && f.RoomKey == otherKey.String()
	})
	if h.m.State() != StateOutgoing {
		t.Fatalf("the first call must be undisturbed, got %s", h.m.State())
	}
	h.notif.mu.Lock()
	incoming := len(h.notif.incoming)
	h.notif.mu.Unlock()
	if incoming != 0 {
		t.Fatal("the user must not be told about the auto-rejected call")
	}
}

func TestRejectionWhileRinging(t *testing.T) {
	h := newMachineHarness(t, time.Minute)
	key := domain.PairRoomKey("alice", "bob")

	h.m.Dial("bob")
	h.waitState(t, StateOutgoing)

	h.m.HandleFrame(wire.Frame{Type: wire.TypeCallRejected, RoomKey: key.String(), From: "bob", Reason: string(domain.ReasonRejected)})
	h.waitState(t, StateIdle)

	if reasons := h.notif.endedReasons(); len(reasons) != 1 || reasons[0] != domain.ReasonRejected {
		t.Fatalf("expected rejected, got %v", reasons)
	}
	// The timer was cancelled with the call; nothing else may fire.
	time.Sleep(40 * time.Millisecond)
	if reasons := h.notif.endedReasons(); len(reasons) != 1 {
		t.Fatalf("a second terminal event fired: %v", reasons)
	}
}

func TestSignalForWrongRoomIgnored(t *testing.T) {
	h := newMachineHarness(t, time.Minute)
	h.dialAndAccept(t)

	h.m.HandleFrame(wire.Frame{
		Type:    wire.TypeSignal,
		RoomKey: "other#room",
		From:    "mallory",
		Kind:    string(domain.SignalCandidate),
		Body:    "cand",
	})

	waitFor(t, "machine stopped processing", func() bool {
		return h.m.State() == StateNegotiating
	})
	neg := h.lastNeg()
	neg.mu.Lock()
	applied := len(neg.applied)
	neg.mu.Unlock()
	if applied != 0 {
		t.Fatalf("signal for a foreign room reached the negotiator: %d", applied)
	}
}
