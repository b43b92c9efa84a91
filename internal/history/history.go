package history

import (
	"context"
	"time"
)

// Actor identifies which write path drove a status transition.
type Actor string

const (
	ActorOperator  Actor = "operator"
	ActorHeartbeat Actor = "heartbeat"
	ActorScheduler Actor = "scheduler"
)

// Event records one committed status transition of a setup. Events are
// append-only facts exported to external systems; they never feed back
// into transition validation.
type Event struct {
	Setup      string    `json:"setup"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Actor      Actor     `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for transition events (audit/analytics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
