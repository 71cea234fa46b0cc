package push

import "context"

// Outcome is the abstract result of one per-device send. Every device in a
// batch resolves to exactly one outcome; provider errors never propagate
// beyond the channel client.
type Outcome int

const (
	// OutcomeSent means the provider accepted the notification.
	OutcomeSent Outcome = iota
	// OutcomePending means the attempt failed for a transient reason
	// (transport failure, provider unavailable, rate limit) and is left
	// for a later retry pass.
	OutcomePending
	// OutcomeFailed means the provider rejected the notification
	// permanently for a reason unrelated to the token.
	OutcomeFailed
	// OutcomeFailedDelete means the provider declared the token dead;
	// the device registration must be removed.
	OutcomeFailedDelete
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomePending:
		return "pending"
	case OutcomeFailed:
		return "failed"
	case OutcomeFailedDelete:
		return "failed_delete"
	}
	return "unknown"
}

// Result is what a channel client reports back for one device. Err carries
// the provider detail for logging only; the Outcome is authoritative.
type Result struct {
	Outcome    Outcome
	ProviderID string
	Err        error
}

// Channel is the contract one upstream provider integration fulfils.
// Implementations must be safe for concurrent use: the dispatch engine
// fans out many Send calls against the same client.
type Channel interface {
	Send(ctx context.Context, token string, msg *Message) Result
}

// Counters aggregates per-platform send outcomes for one dispatch call.
type Counters struct {
	Sent    int `json:"sent"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// BatchResult is the aggregate returned by the dispatch engine. Only
// platforms the application has a configured channel for appear as keys.
type BatchResult struct {
	Platforms map[Platform]Counters `json:"platforms"`
}
