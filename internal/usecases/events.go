package usecases

import "leadengage/internal/entities"

// Event types published by the conversation store.
const (
	EventMessage  = "message"
	EventStatus   = "status"
	EventAssigned = "assigned"
	EventMode     = "mode"
	EventClosed   = "closed"
)

// Event is a read-only notification for presentation layers. It carries
// copies; consumers never mutate store state through it.
type Event struct {
	Type           string                      `json:"type"`
	ConversationID string                      `json:"conversation_id"`
	Conversation   *entities.Conversation      `json:"conversation,omitempty"`
	Message        *entities.Message           `json:"message,omitempty"`
	Disposition    *entities.DispositionResult `json:"disposition,omitempty"`
}

// EventSink receives store events. Publish must not block.
type EventSink interface {
	Publish(Event)
}
