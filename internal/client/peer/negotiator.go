// Package peer wraps a Pion peer connection behind the three operations the
// call state machine needs: create an offer, answer one, and apply remote
// payloads. It owns ICE-candidate buffering: the server makes no ordering
// promise between the answer and trickled candidates, so candidates that
// arrive before the remote description are queued here and flushed once it
// is applied.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/glimmerapp/glimmer/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Config carries everything a negotiator needs at construction time.
type Config struct {
	STUNServers []string

	// Tracks are the local media handles, owned by the media layer. When
	// empty the negotiator still produces a valid offer by adding
	// recvonly audio and video transceivers.
	Tracks []webrtc.TrackLocal

	// OnLocalSignal delivers payloads to be sent through the signaling
	// hub: the trickled candidates and nothing else (descriptions are
	// returned from CreateOffer/CreateAnswer directly).
	OnLocalSignal func(domain.Signal)

	// OnConnected and OnDisconnected report the media transport state.
	OnConnected    func()
	OnDisconnected func()
}

// Negotiator performs the offer/answer/candidate exchange against one local
// peer connection.
type Negotiator struct {
	pc *webrtc.PeerConnection

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	closed    bool
}

func NewNegotiator(cfg Config) (*Negotiator, error) {
	var iceServers []webrtc.ICEServer
	if len(cfg.STUNServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: cfg.STUNServers})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	n := &Negotiator{pc: pc}

	if len(cfg.Tracks) == 0 {
		// Recvonly transceivers guarantee the offer carries m=audio and
		// m=video sections even before any local capture is attached.
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return nil, err
		}
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return nil, err
		}
	}
	for _, track := range cfg.Tracks {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add track: %w", err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || cfg.OnLocalSignal == nil {
			return
		}
		candidateJSON, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal candidate")
			return
		}
		cfg.OnLocalSignal(domain.NewSignal(domain.SignalCandidate, string(candidateJSON)))
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("state", s.String()).Msg("Peer connection state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			if cfg.OnConnected != nil {
				cfg.OnConnected()
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			if cfg.OnDisconnected != nil {
				cfg.OnDisconnected()
			}
		}
	})

	return n, nil
}

// CreateOffer builds the initial offer as the initiating role.
func (n *Negotiator) CreateOffer(ctx context.Context) (domain.Signal, error) {
	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("create offer: %w", err)
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return domain.Signal{}, fmt.Errorf("set local description: %w", err)
	}
	return domain.NewSignal(domain.SignalOffer, offer.SDP), nil
}

// CreateAnswer applies the remote offer and builds the answer as the
// responding role. Any candidates buffered before the offer arrived are
// flushed afterwards.
func (n *Negotiator) CreateAnswer(ctx context.Context, offer domain.Signal) (domain.Signal, error) {
	if offer.Kind != domain.SignalOffer {
		return domain.Signal{}, fmt.Errorf("cannot answer a %q signal", offer.Kind)
	}

	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.Payload}
	if err := n.pc.SetRemoteDescription(desc); err != nil {
		return domain.Signal{}, fmt.Errorf("set remote description: %w", err)
	}
	n.flushCandidates()

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("create answer: %w", err)
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return domain.Signal{}, fmt.Errorf("set local description: %w", err)
	}
	return domain.NewSignal(domain.SignalAnswer, answer.SDP), nil
}

// ApplyRemote feeds a relayed answer or candidate into the connection.
func (n *Negotiator) ApplyRemote(sig domain.Signal) error {
	switch sig.Kind {
	case domain.SignalAnswer:
		desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sig.Payload}
		if err := n.pc.SetRemoteDescription(desc); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		n.flushCandidates()
		return nil

	case domain.SignalCandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(sig.Payload), &candidate); err != nil {
			return fmt.Errorf("bad candidate payload: %w", err)
		}

		n.mu.Lock()
		if !n.remoteSet {
			n.pending = append(n.pending, candidate)
			n.mu.Unlock()
			return nil
		}
		n.mu.Unlock()

		return n.pc.AddICECandidate(candidate)

	default:
		return errors.New("unexpected signal kind " + string(sig.Kind))
	}
}

// flushCandidates drains the pre-description buffer. Called after a remote
// description has been applied.
func (n *Negotiator) flushCandidates() {
	n.mu.Lock()
	n.remoteSet = true
	pending := n.pending
	n.pending = nil
	n.mu.Unlock()

	for _, c := range pending {
		if err := n.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Msg("Buffered candidate rejected")
		}
	}
}

// PendingCandidates reports how many candidates are still waiting for the
// remote description.
func (n *Negotiator) PendingCandidates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// Close tears down the peer connection. Safe to call more than once.
func (n *Negotiator) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	return n.pc.Close()
}
