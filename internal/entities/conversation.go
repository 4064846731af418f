package entities

import "time"

type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelEmail Channel = "email"
	ChannelVoice Channel = "voice"
)

type Status string

const (
	StatusNew     Status = "new"
	StatusActive  Status = "active"
	StatusWaiting Status = "waiting"
	StatusClosed  Status = "closed"
)

type Mode string

const (
	ModeAutomated Mode = "automated"
	ModeHuman     Mode = "human"
)

// Session-state keys the channel adapters publish. The store treats the
// whole map as opaque; only rule predicates read these keys back.
const (
	SessionCallSeconds = "call_seconds"
	SessionMuted       = "muted"
)

// Conversation is one engagement session between the institution and a
// lead on one channel.
type Conversation struct {
	ID                 string         `json:"id"`
	LeadID             string         `json:"lead_id"`
	LeadName           string         `json:"lead_name"`
	Channel            Channel        `json:"channel"`
	Status             Status         `json:"status"`
	Mode               Mode           `json:"mode"`
	AssignedOperatorID string         `json:"assigned_operator_id,omitempty"`
	UnreadCount        int            `json:"unread_count"`
	LastMessageSummary string         `json:"last_message_summary,omitempty"`
	LastMessageTime    time.Time      `json:"last_message_time"`
	CreatedAt          time.Time      `json:"created_at"`
	SessionState       map[string]any `json:"session_state,omitempty"`
}

// DispositionResult is the closing classification of a conversation.
type DispositionResult struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// HistoryEntry is the read-only projection of one closed conversation.
// Voice entries carry the call duration and flattened transcript text.
type HistoryEntry struct {
	ConversationID string            `json:"conversation_id"`
	LeadID         string            `json:"lead_id"`
	Channel        Channel           `json:"channel"`
	OperatorID     string            `json:"operator_id,omitempty"`
	OpenedAt       time.Time         `json:"opened_at"`
	ClosedAt       time.Time         `json:"closed_at"`
	Disposition    DispositionResult `json:"disposition"`
	CallSeconds    int               `json:"call_seconds,omitempty"`
	Transcript     string            `json:"transcript,omitempty"`
}
