package port

import (
	"context"
	"time"

	"github.com/glimmerapp/glimmer/internal/core/domain"
)

type MessageRepository interface {
	Save(ctx context.Context, msg domain.Message) error
}

// CallHistoryEntry is a fire-and-forget log line about a finished call
// attempt. Nothing on the critical path waits for it and nothing reads it
// back over the wire.
type CallHistoryEntry struct {
	Record   domain.CallRecord
	Reason   domain.EndReason
	LoggedAt time.Time
}

type CallHistoryRepository interface {
	Log(ctx context.Context, entry CallHistoryEntry) error
}
