package infrastructure

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"leadengage/internal/entities"
	"leadengage/internal/interfaces"
)

const (
	voiceActionStarted    = "started"
	voiceActionTranscript = "transcript"
	voiceActionMuted      = "muted"
	voiceActionUnmuted    = "unmuted"
	voiceActionEnded      = "ended"
)

type voiceEventPayload struct {
	LeadID          string `json:"lead_id"`
	LeadName        string `json:"lead_name"`
	Action          string `json:"action"`
	Transcript      string `json:"transcript"`
	DurationSeconds int    `json:"duration_seconds"`
	OccurredAt      string `json:"occurred_at"` // RFC3339, optional
}

type callState struct {
	seconds     int
	muted       bool
	transcribed bool
}

// VoiceAdapter maps call lifecycle events to the canonical model and
// owns the per-call sub-state (duration, mute flag). A call disconnect
// produces an end-of-session trigger that the store handles like an
// operator-initiated end of conversation.
type VoiceAdapter struct {
	mu    sync.RWMutex
	calls map[string]*callState
}

func NewVoiceAdapter() *VoiceAdapter {
	return &VoiceAdapter{calls: make(map[string]*callState)}
}

func (a *VoiceAdapter) Channel() entities.Channel {
	return entities.ChannelVoice
}

func (a *VoiceAdapter) Ingest(raw []byte) (interfaces.ChannelEvent, error) {
	var p voiceEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return interfaces.ChannelEvent{}, fmt.Errorf("%w: %v", interfaces.ErrMalformedChannelEvent, err)
	}
	if p.LeadID == "" {
		return interfaces.ChannelEvent{}, fmt.Errorf("%w: missing lead_id", interfaces.ErrMalformedChannelEvent)
	}

	ev := interfaces.ChannelEvent{LeadID: p.LeadID, LeadName: p.LeadName}

	switch p.Action {
	case voiceActionStarted:
		a.mu.Lock()
		a.calls[p.LeadID] = &callState{}
		a.mu.Unlock()

	case voiceActionTranscript:
		if strings.TrimSpace(p.Transcript) == "" {
			return interfaces.ChannelEvent{}, fmt.Errorf("%w: empty transcript fragment", interfaces.ErrMalformedChannelEvent)
		}
		ev.Message = &entities.Message{
			ID:        uuid.NewString(),
			Content:   p.Transcript,
			Timestamp: parseEventTime(p.OccurredAt),
			Origin:    entities.OriginLead,
		}
		a.touch(p.LeadID, p.DurationSeconds)
		a.markTranscribed(p.LeadID)

	case voiceActionMuted, voiceActionUnmuted:
		a.setMuted(p.LeadID, p.Action == voiceActionMuted)

	case voiceActionEnded:
		// A completed call must carry its transcript; otherwise the
		// provider sent us something unusable.
		if strings.TrimSpace(p.Transcript) == "" {
			return interfaces.ChannelEvent{}, fmt.Errorf("%w: empty transcript for a completed call", interfaces.ErrMalformedChannelEvent)
		}
		// Some providers deliver the consolidated transcript only on
		// hangup; if no fragment arrived during the call, store it now.
		if !a.hasTranscript(p.LeadID) {
			ev.Message = &entities.Message{
				ID:        uuid.NewString(),
				Content:   p.Transcript,
				Timestamp: parseEventTime(p.OccurredAt),
				Origin:    entities.OriginLead,
			}
		}
		a.touch(p.LeadID, p.DurationSeconds)
		ev.EndOfSession = true

	default:
		return interfaces.ChannelEvent{}, fmt.Errorf("%w: unknown voice action %q", interfaces.ErrMalformedChannelEvent, p.Action)
	}

	return ev, nil
}

// SessionState exposes the live call sub-state for a lead. The store
// keeps it opaquely and never interprets it.
func (a *VoiceAdapter) SessionState(leadID string) map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	call, ok := a.calls[leadID]
	if !ok {
		return nil
	}
	return map[string]any{
		entities.SessionCallSeconds: call.seconds,
		entities.SessionMuted:       call.muted,
	}
}

// EndSession drops the call state once its final snapshot has been
// merged into the conversation.
func (a *VoiceAdapter) EndSession(leadID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.calls, leadID)
}

func (a *VoiceAdapter) touch(leadID string, seconds int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	call, ok := a.calls[leadID]
	if !ok {
		call = &callState{}
		a.calls[leadID] = call
	}
	if seconds > call.seconds {
		call.seconds = seconds
	}
}

func (a *VoiceAdapter) markTranscribed(leadID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	call, ok := a.calls[leadID]
	if !ok {
		call = &callState{}
		a.calls[leadID] = call
	}
	call.transcribed = true
}

func (a *VoiceAdapter) hasTranscript(leadID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	call, ok := a.calls[leadID]
	return ok && call.transcribed
}

func (a *VoiceAdapter) setMuted(leadID string, muted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	call, ok := a.calls[leadID]
	if !ok {
		call = &callState{}
		a.calls[leadID] = call
	}
	call.muted = muted
}
