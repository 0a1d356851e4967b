package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/glimmerapp/glimmer/internal/client/call"
	"github.com/glimmerapp/glimmer/internal/client/peer"
	"github.com/glimmerapp/glimmer/internal/client/signaling"
	"github.com/glimmerapp/glimmer/internal/config"
	"github.com/glimmerapp/glimmer/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// consoleNotifier prints the one user-facing line per lifecycle edge.
type consoleNotifier struct {
	machine *call.Machine
	auto    bool
}

func (n *consoleNotifier) OnIncoming(from domain.UserID, key domain.RoomKey) {
	fmt.Printf("Incoming call from %s\n", from)
	if n.auto {
		n.machine.Answer()
	}
}

func (n *consoleNotifier) OnOutgoing(target domain.UserID) {
	fmt.Printf("Calling %s...\n", target)
}

func (n *consoleNotifier) OnConnected() {
	fmt.Println("Call connected")
}

func (n *consoleNotifier) OnEnded(reason domain.EndReason) {
	fmt.Printf("Call ended (%s)\n", reason)
}

// runSession connects as identity and runs the call loop until interrupted.
// When target is non-empty the session dials it immediately; otherwise it
// waits for incoming calls.
func runSession(target string, autoAnswer bool) error {
	cfg := config.Load(config.Options{ServerURL: flagServerURL})

	identity, err := domain.ParseUserID(flagIdentity)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := signaling.NewClient(cfg.ServerURL, identity)
	if err := sig.Connect(ctx); err != nil {
		return err
	}
	defer sig.Close()

	notifier := &consoleNotifier{auto: autoAnswer}

	factory := func(onLocal func(domain.Signal), onConnected, onDisconnected func()) (call.Negotiator, error) {
		return peer.NewNegotiator(peer.Config{
			STUNServers:    cfg.STUNServers,
			OnLocalSignal:  onLocal,
			OnConnected:    onConnected,
			OnDisconnected: onDisconnected,
		})
	}

	machine := call.NewMachine(identity, sig, factory, notifier, cfg.SetupTimeout)
	notifier.machine = machine
	defer machine.Close()

	if target != "" {
		machine.Dial(domain.UserID(target))
	} else {
		fmt.Printf("Waiting for calls as %s...\n", identity)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)

	for {
		select {
		case frame, ok := <-sig.Incoming():
			if !ok {
				return fmt.Errorf("connection to signaling server lost")
			}
			machine.HandleFrame(frame)

		case <-quit:
			log.Info().Msg("Interrupted, hanging up")
			machine.HangUp()
			return nil
		}
	}
}
