package interfaces

import (
	"context"
	"errors"

	"leadengage/internal/entities"
)

// ErrMalformedChannelEvent is returned by Ingest when a raw provider
// event cannot be mapped to the canonical model. Malformed events are
// dropped and logged; they never mutate conversation state.
var ErrMalformedChannelEvent = errors.New("malformed channel event")

// ChannelEvent is the normalized result of ingesting one provider event.
type ChannelEvent struct {
	LeadID   string
	LeadName string
	// Message is nil for pure lifecycle events (call started, mute).
	Message *entities.Message
	// EndOfSession signals the channel-level disconnect (voice hangup);
	// the store treats it like an operator-initiated end of conversation.
	EndOfSession bool
}

// ChannelAdapter translates provider-specific payloads into the
// canonical message/session model for one channel.
type ChannelAdapter interface {
	Channel() entities.Channel
	Ingest(raw []byte) (ChannelEvent, error)
	// SessionState returns channel-specific sub-state for a lead's live
	// session (call duration, mute flag). The store holds it opaquely.
	SessionState(leadID string) map[string]any
}

// Annotator assigns behavioral signals to inbound lead messages.
// Implementations must be deterministic for the same input; they may be
// swapped for a learned classifier without touching session logic.
type Annotator interface {
	Annotate(ctx context.Context, msg entities.Message) (entities.Annotation, error)
}

// Responder generates the automated reply for an inbound lead message.
// Implementations may call external services; an error means "no reply".
type Responder interface {
	Respond(ctx context.Context, conv entities.Conversation, history []entities.Message, incoming entities.Message) (string, error)
}

// RuleSource supplies the configured disposition rules, ordered, by type.
type RuleSource interface {
	RulesByType(ctx context.Context, t entities.RuleType) ([]entities.RegistryRule, error)
}

// AgentDirectory reads operator records from the external presence source.
type AgentDirectory interface {
	GetAgent(ctx context.Context, id string) (entities.Agent, error)
}

// HistoryWriter persists the projection of a closed conversation.
type HistoryWriter interface {
	Record(ctx context.Context, entry entities.HistoryEntry) error
}
