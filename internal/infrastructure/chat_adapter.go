package infrastructure

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"leadengage/internal/entities"
	"leadengage/internal/interfaces"
)

// chatWebhookPayload is the provider-side shape of one chat message
// event (webhook body).
type chatWebhookPayload struct {
	LeadID   string `json:"lead_id"`
	LeadName string `json:"lead_name"`
	Text     string `json:"text"`
	SentAt   string `json:"sent_at"` // RFC3339, optional
}

// ChatAdapter maps chat webhook payloads to canonical messages. Chat
// sessions carry no channel-specific sub-state.
type ChatAdapter struct{}

func NewChatAdapter() *ChatAdapter {
	return &ChatAdapter{}
}

func (a *ChatAdapter) Channel() entities.Channel {
	return entities.ChannelChat
}

func (a *ChatAdapter) Ingest(raw []byte) (interfaces.ChannelEvent, error) {
	var p chatWebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return interfaces.ChannelEvent{}, fmt.Errorf("%w: %v", interfaces.ErrMalformedChannelEvent, err)
	}
	if p.LeadID == "" {
		return interfaces.ChannelEvent{}, fmt.Errorf("%w: missing lead_id", interfaces.ErrMalformedChannelEvent)
	}
	if strings.TrimSpace(p.Text) == "" {
		return interfaces.ChannelEvent{}, fmt.Errorf("%w: empty text", interfaces.ErrMalformedChannelEvent)
	}

	return interfaces.ChannelEvent{
		LeadID:   p.LeadID,
		LeadName: p.LeadName,
		Message: &entities.Message{
			ID:        uuid.NewString(),
			Content:   p.Text,
			Timestamp: parseEventTime(p.SentAt),
			Origin:    entities.OriginLead,
		},
	}, nil
}

func (a *ChatAdapter) SessionState(leadID string) map[string]any {
	return nil
}

// parseEventTime falls back to arrival time when the provider omits or
// mangles the timestamp.
func parseEventTime(value string) time.Time {
	if value == "" {
		return time.Now()
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Now()
	}
	return t
}
