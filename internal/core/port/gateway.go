package port

import (
	"context"

	"github.com/glimmerapp/glimmer/internal/core/domain"
)

// EventGateway pushes notifications and relayed payloads to specific users.
// Delivery to an offline user is not an error for best-effort calls; the
// signaling hub checks liveness itself where the contract demands it.
type EventGateway interface {
	Notify(ctx context.Context, to domain.UserID, event domain.Event) error
	Forward(ctx context.Context, to domain.UserID, env domain.Envelope) error
	BroadcastMessage(ctx context.Context, to []domain.UserID, msg domain.Message) error
}
