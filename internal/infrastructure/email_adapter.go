package infrastructure

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"leadengage/internal/entities"
	"leadengage/internal/interfaces"
)

type emailWebhookPayload struct {
	LeadID     string `json:"lead_id"`
	LeadName   string `json:"lead_name"`
	From       string `json:"from"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	ReceivedAt string `json:"received_at"` // RFC3339, optional
}

// EmailAdapter maps inbound email payloads to canonical messages.
// Subject and body are folded into one content block.
type EmailAdapter struct{}

func NewEmailAdapter() *EmailAdapter {
	return &EmailAdapter{}
}

func (a *EmailAdapter) Channel() entities.Channel {
	return entities.ChannelEmail
}

func (a *EmailAdapter) Ingest(raw []byte) (interfaces.ChannelEvent, error) {
	var p emailWebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return interfaces.ChannelEvent{}, fmt.Errorf("%w: %v", interfaces.ErrMalformedChannelEvent, err)
	}
	if p.LeadID == "" {
		return interfaces.ChannelEvent{}, fmt.Errorf("%w: missing lead_id", interfaces.ErrMalformedChannelEvent)
	}

	subject := strings.TrimSpace(p.Subject)
	body := strings.TrimSpace(p.Body)
	if subject == "" && body == "" {
		return interfaces.ChannelEvent{}, fmt.Errorf("%w: empty subject and body", interfaces.ErrMalformedChannelEvent)
	}

	content := body
	if subject != "" {
		content = subject
		if body != "" {
			content = subject + "\n\n" + body
		}
	}

	return interfaces.ChannelEvent{
		LeadID:   p.LeadID,
		LeadName: p.LeadName,
		Message: &entities.Message{
			ID:        uuid.NewString(),
			Content:   content,
			Timestamp: parseEventTime(p.ReceivedAt),
			Origin:    entities.OriginLead,
		},
	}, nil
}

func (a *EmailAdapter) SessionState(leadID string) map[string]any {
	return nil
}
