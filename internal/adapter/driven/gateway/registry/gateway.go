package registry

import (
	"context"

	"github.com/glimmerapp/glimmer/internal/core/domain"
	"github.com/glimmerapp/glimmer/internal/core/port"
	"github.com/rs/zerolog/log"
)

// Gateway implements port.EventGateway on top of the connection registry:
// every push resolves the recipient's current handle first, so a user who
// reconnected mid-call still gets the event on the fresh socket.
type Gateway struct {
	registry port.ConnectionRegistry
}

func NewGateway(reg port.ConnectionRegistry) *Gateway {
	return &Gateway{registry: reg}
}

func (g *Gateway) Notify(ctx context.Context, to domain.UserID, event domain.Event) error {
	handle, ok := g.registry.Resolve(to)
	if !ok {
		log.Debug().Str("user_id", to.String()).Str("event", string(event.Kind)).Msg("Recipient offline, event dropped")
		return nil
	}
	return handle.Send(event)
}

func (g *Gateway) Forward(ctx context.Context, to domain.UserID, env domain.Envelope) error {
	handle, ok := g.registry.Resolve(to)
	if !ok {
		log.Debug().Str("user_id", to.String()).Str("room", env.RoomKey.String()).Msg("Recipient offline, signal dropped")
		return nil
	}
	return handle.SendEnvelope(env)
}

func (g *Gateway) BroadcastMessage(ctx context.Context, to []domain.UserID, msg domain.Message) error {
	for _, id := range to {
		handle, ok := g.registry.Resolve(id)
		if !ok {
			continue
		}
		if err := handle.SendText(msg); err != nil {
			log.Error().Err(err).Str("user_id", id.String()).Msg("Error sending message")
		}
	}
	return nil
}
