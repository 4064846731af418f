package usecases

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"leadengage/internal/entities"
	"leadengage/internal/interfaces"
)

// ResponseOrchestrator decides, for each inbound lead message on an
// automated conversation, whether to emit a reply. Generation may call
// an external service, so it runs as its own task with a mandatory
// timeout; any failure degrades to "no reply" and the conversation
// stays waiting for an operator.
type ResponseOrchestrator struct {
	store     *ConversationStore
	responder interfaces.Responder

	// ReplyTimeout bounds a single generation attempt.
	ReplyTimeout time.Duration
}

func NewResponseOrchestrator(store *ConversationStore, responder interfaces.Responder) *ResponseOrchestrator {
	return &ResponseOrchestrator{
		store:        store,
		responder:    responder,
		ReplyTimeout: 10 * time.Second,
	}
}

// HandleInbound schedules at most one automated reply for one inbound
// lead message. The mode check happens here, before scheduling: a
// conversation switched to human never generates a reply for messages
// that arrive after the switch. Returns whether a reply was scheduled.
func (o *ResponseOrchestrator) HandleInbound(msg entities.Message) bool {
	if o.responder == nil || msg.Origin != entities.OriginLead {
		return false
	}
	conv, err := o.store.Get(msg.ConversationID)
	if err != nil {
		return false
	}
	if conv.Mode != entities.ModeAutomated || conv.Status == entities.StatusClosed {
		return false
	}
	go o.Dispatch(msg)
	return true
}

// Dispatch runs one generation attempt synchronously. Deliberately no
// mode re-check here: switching to human mode does not cancel a reply
// already in flight. A reply for a conversation closed in the meantime
// is discarded.
func (o *ResponseOrchestrator) Dispatch(msg entities.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), o.ReplyTimeout)
	defer cancel()

	conv, err := o.store.Get(msg.ConversationID)
	if err != nil {
		return
	}
	if conv.Status == entities.StatusClosed {
		return
	}

	history, err := o.store.Transcript(msg.ConversationID)
	if err != nil {
		return
	}

	content, err := o.responder.Respond(ctx, conv, history, msg)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", msg.ConversationID).Msg("automated reply failed, leaving conversation for an operator")
		return
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	reply := entities.Message{
		ID:             uuid.NewString(),
		ConversationID: msg.ConversationID,
		Content:        content,
		Timestamp:      time.Now(),
		Origin:         entities.OriginAutomated,
	}
	if err := o.store.Append(reply); err != nil {
		// Closed while generating; the result is dropped.
		log.Debug().Err(err).Str("conversation_id", msg.ConversationID).Msg("automated reply discarded")
	}
}
