package usecases

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"leadengage/internal/entities"
	"leadengage/internal/interfaces"
)

var (
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrConversationClosed  = errors.New("conversation closed")
	ErrOperatorUnavailable = errors.New("operator unavailable")
	// ErrNoDisposition is not a hard failure: no configured rule matched,
	// so an operator must supply a code before the conversation can close.
	ErrNoDisposition = errors.New("no disposition rule matched")
)

// conversationState is one live session. Every mutation takes mu, so
// operations on a single conversation are serialized while different
// conversations proceed independently.
type conversationState struct {
	mu          sync.Mutex
	conv        entities.Conversation
	messages    []entities.Message
	viewers     map[string]int
	disposition *entities.DispositionResult
}

// ConversationStore is the single writer of conversation/session state.
// All other components only read conversation state and return results
// the store applies.
type ConversationStore struct {
	mu    sync.RWMutex
	convs map[string]*conversationState

	rules     interfaces.RuleSource
	agents    interfaces.AgentDirectory
	history   interfaces.HistoryWriter
	annotator interfaces.Annotator
	events    EventSink

	// AnnotateTimeout bounds a single annotation attempt; on timeout the
	// message keeps its neutral annotation.
	AnnotateTimeout time.Duration
}

func NewConversationStore(rules interfaces.RuleSource, agents interfaces.AgentDirectory, history interfaces.HistoryWriter, annotator interfaces.Annotator, events EventSink) *ConversationStore {
	return &ConversationStore{
		convs:           make(map[string]*conversationState),
		rules:           rules,
		agents:          agents,
		history:         history,
		annotator:       annotator,
		events:          events,
		AnnotateTimeout: 3 * time.Second,
	}
}

func newConversationState(leadID, leadName string, channel entities.Channel, mode entities.Mode) *conversationState {
	return &conversationState{
		conv: entities.Conversation{
			ID:           uuid.NewString(),
			LeadID:       leadID,
			LeadName:     leadName,
			Channel:      channel,
			Status:       entities.StatusNew,
			Mode:         mode,
			CreatedAt:    time.Now(),
			SessionState: make(map[string]any),
		},
		viewers: make(map[string]int),
	}
}

// Open creates a new conversation for a lead on a channel. Closed
// conversations are never reopened; callers open a fresh one that
// references the same lead id.
func (s *ConversationStore) Open(leadID, leadName string, channel entities.Channel, mode entities.Mode) entities.Conversation {
	cs := newConversationState(leadID, leadName, channel, mode)
	conv := copyConv(cs.conv)

	s.mu.Lock()
	s.convs[cs.conv.ID] = cs
	s.mu.Unlock()

	log.Info().Str("conversation_id", conv.ID).Str("lead_id", leadID).Str("channel", string(channel)).Msg("conversation opened")
	s.publish(Event{Type: EventStatus, ConversationID: conv.ID, Conversation: conv})
	return *conv
}

// FindOrOpen resolves the live (non-closed) conversation for a lead on
// a channel, opening a fresh one when none exists. Lookup and insert
// happen under one lock, so concurrent first-contact deliveries for the
// same lead always converge on a single conversation.
func (s *ConversationStore) FindOrOpen(leadID, leadName string, channel entities.Channel, mode entities.Mode) entities.Conversation {
	s.mu.Lock()
	for _, cs := range s.convs {
		cs.mu.Lock()
		live := cs.conv.LeadID == leadID && cs.conv.Channel == channel && cs.conv.Status != entities.StatusClosed
		conv := *copyConv(cs.conv)
		cs.mu.Unlock()
		if live {
			s.mu.Unlock()
			return conv
		}
	}

	cs := newConversationState(leadID, leadName, channel, mode)
	s.convs[cs.conv.ID] = cs
	conv := copyConv(cs.conv)
	s.mu.Unlock()

	log.Info().Str("conversation_id", conv.ID).Str("lead_id", leadID).Str("channel", string(channel)).Msg("conversation opened")
	s.publish(Event{Type: EventStatus, ConversationID: conv.ID, Conversation: conv})
	return *conv
}

func (s *ConversationStore) get(conversationID string) (*conversationState, error) {
	s.mu.RLock()
	cs, ok := s.convs[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownConversation
	}
	return cs, nil
}

// Append stores one message in arrival order and recomputes session
// state: an inbound lead message moves the conversation to waiting, any
// reply moves it back to active. The unread counter grows only when no
// viewer currently has the conversation open.
func (s *ConversationStore) Append(msg entities.Message) error {
	cs, err := s.get(msg.ConversationID)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	if cs.conv.Status == entities.StatusClosed {
		cs.mu.Unlock()
		return ErrConversationClosed
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Origin == entities.OriginLead && msg.Annotation == nil {
		neutral := entities.NeutralAnnotation()
		msg.Annotation = &neutral
	}

	cs.messages = append(cs.messages, msg)
	cs.conv.LastMessageSummary = summarize(msg.Content)
	cs.conv.LastMessageTime = msg.Timestamp

	if msg.Origin == entities.OriginLead {
		cs.conv.Status = entities.StatusWaiting
		if len(cs.viewers) == 0 {
			cs.conv.UnreadCount++
		}
	} else {
		cs.conv.Status = entities.StatusActive
	}

	conv := copyConv(cs.conv)
	cs.mu.Unlock()

	s.publish(Event{Type: EventMessage, ConversationID: msg.ConversationID, Conversation: conv, Message: &msg})

	if msg.Origin == entities.OriginLead && s.annotator != nil {
		go s.annotate(msg)
	}
	return nil
}

// annotate runs the best-effort enrichment for one stored lead message.
// The result is attached by message id, never by position, so late
// completions cannot reorder anything. A result for an already-closed
// conversation is discarded.
func (s *ConversationStore) annotate(msg entities.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.AnnotateTimeout)
	defer cancel()

	ann, err := s.annotator.Annotate(ctx, msg)
	if err != nil {
		log.Warn().Err(err).Str("message_id", msg.ID).Msg("annotation failed, keeping neutral defaults")
		return
	}

	cs, err := s.get(msg.ConversationID)
	if err != nil {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.conv.Status == entities.StatusClosed {
		log.Debug().Str("message_id", msg.ID).Msg("annotation discarded, conversation already closed")
		return
	}
	for i := range cs.messages {
		if cs.messages[i].ID == msg.ID {
			cs.messages[i].Annotation = &ann
			return
		}
	}
}

// Assign gives exclusive ownership of a conversation to one operator.
func (s *ConversationStore) Assign(ctx context.Context, conversationID, operatorID string) error {
	cs, err := s.get(conversationID)
	if err != nil {
		return err
	}

	if s.agents != nil {
		agent, err := s.agents.GetAgent(ctx, operatorID)
		if err != nil {
			return fmt.Errorf("lookup operator %s: %w", operatorID, err)
		}
		if agent.Availability == entities.AvailabilityOffline {
			return ErrOperatorUnavailable
		}
	}

	cs.mu.Lock()
	if cs.conv.Status == entities.StatusClosed {
		cs.mu.Unlock()
		return ErrConversationClosed
	}
	cs.conv.AssignedOperatorID = operatorID
	conv := copyConv(cs.conv)
	cs.mu.Unlock()

	s.publish(Event{Type: EventAssigned, ConversationID: conversationID, Conversation: conv})
	return nil
}

// SetMode toggles automated/human handling. It takes effect for the next
// inbound message; an automated reply already in flight is not cancelled.
func (s *ConversationStore) SetMode(conversationID string, mode entities.Mode) error {
	cs, err := s.get(conversationID)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	if cs.conv.Status == entities.StatusClosed {
		cs.mu.Unlock()
		return ErrConversationClosed
	}
	cs.conv.Mode = mode
	conv := copyConv(cs.conv)
	cs.mu.Unlock()

	s.publish(Event{Type: EventMode, ConversationID: conversationID, Conversation: conv})
	return nil
}

// OpenView marks the conversation as open in a viewer's context and
// clears the unread counter. Inbound messages don't count as unread
// while at least one viewer has it open.
func (s *ConversationStore) OpenView(conversationID, viewerID string) error {
	cs, err := s.get(conversationID)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.viewers[viewerID]++
	cs.conv.UnreadCount = 0
	return nil
}

func (s *ConversationStore) CloseView(conversationID, viewerID string) error {
	cs, err := s.get(conversationID)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.viewers[viewerID] <= 1 {
		delete(cs.viewers, viewerID)
	} else {
		cs.viewers[viewerID]--
	}
	return nil
}

// MergeSessionState stores channel-specific sub-state (call duration,
// mute flag) opaquely on the conversation.
func (s *ConversationStore) MergeSessionState(conversationID string, state map[string]any) error {
	cs, err := s.get(conversationID)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.conv.Status == entities.StatusClosed {
		return ErrConversationClosed
	}
	for k, v := range state {
		cs.conv.SessionState[k] = v
	}
	return nil
}

// Close terminates the conversation and tabulates it against the rules
// configured for its current mode. Idempotent: closing an already-closed
// conversation returns the recorded disposition without re-evaluating.
// When no rule matches, ErrNoDisposition is returned and the
// conversation stays open, untouched.
func (s *ConversationStore) Close(ctx context.Context, conversationID string) (entities.DispositionResult, error) {
	cs, err := s.get(conversationID)
	if err != nil {
		return entities.DispositionResult{}, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.conv.Status == entities.StatusClosed {
		return *cs.disposition, nil
	}

	var rules []entities.RegistryRule
	if s.rules != nil {
		rules, err = s.rules.RulesByType(ctx, ruleTypeFor(cs.conv.Mode))
		if err != nil {
			return entities.DispositionResult{}, fmt.Errorf("load registry rules: %w", err)
		}
	}

	transcript := Transcript{Messages: cs.messages, SessionState: cs.conv.SessionState}
	result, ok := EvaluateRules(transcript, cs.conv.Mode, rules)
	if !ok {
		return entities.DispositionResult{}, ErrNoDisposition
	}

	s.finalizeLocked(ctx, cs, result)
	return result, nil
}

// CloseWith records an operator-chosen disposition. A human can always
// supply a code directly, so this never depends on the rule engine.
func (s *ConversationStore) CloseWith(ctx context.Context, conversationID, code, description string) (entities.DispositionResult, error) {
	if strings.TrimSpace(code) == "" {
		return entities.DispositionResult{}, fmt.Errorf("disposition code required")
	}

	cs, err := s.get(conversationID)
	if err != nil {
		return entities.DispositionResult{}, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.conv.Status == entities.StatusClosed {
		return *cs.disposition, nil
	}

	result := entities.DispositionResult{Code: code, Description: description}
	s.finalizeLocked(ctx, cs, result)
	return result, nil
}

// finalizeLocked transitions to closed, appends the synthetic closing
// message and persists the history projection. Caller holds cs.mu.
func (s *ConversationStore) finalizeLocked(ctx context.Context, cs *conversationState, result entities.DispositionResult) {
	now := time.Now()

	origin := entities.OriginHuman
	if cs.conv.Mode == entities.ModeAutomated {
		origin = entities.OriginAutomated
	}
	closing := entities.Message{
		ID:                     uuid.NewString(),
		ConversationID:         cs.conv.ID,
		Content:                result.Description,
		Timestamp:              now,
		Origin:                 origin,
		DispositionCode:        result.Code,
		DispositionDescription: result.Description,
	}
	cs.messages = append(cs.messages, closing)

	cs.conv.Status = entities.StatusClosed
	cs.conv.LastMessageSummary = summarize(closing.Content)
	cs.conv.LastMessageTime = now
	cs.disposition = &result

	entry := entities.HistoryEntry{
		ConversationID: cs.conv.ID,
		LeadID:         cs.conv.LeadID,
		Channel:        cs.conv.Channel,
		OperatorID:     cs.conv.AssignedOperatorID,
		OpenedAt:       cs.conv.CreatedAt,
		ClosedAt:       now,
		Disposition:    result,
	}
	if secs, ok := callSeconds(cs.conv.SessionState); ok {
		entry.CallSeconds = secs
	}
	if cs.conv.Channel == entities.ChannelVoice {
		entry.Transcript = flattenTranscript(cs.messages)
	}
	if s.history != nil {
		if err := s.history.Record(ctx, entry); err != nil {
			log.Error().Err(err).Str("conversation_id", cs.conv.ID).Msg("failed to persist conversation history")
		}
	}

	log.Info().Str("conversation_id", cs.conv.ID).Str("code", result.Code).Msg("conversation closed")
	s.publish(Event{Type: EventClosed, ConversationID: cs.conv.ID, Conversation: copyConv(cs.conv), Message: &closing, Disposition: &result})
}

// Get returns a copy of the conversation header.
func (s *ConversationStore) Get(conversationID string) (entities.Conversation, error) {
	cs, err := s.get(conversationID)
	if err != nil {
		return entities.Conversation{}, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return *copyConv(cs.conv), nil
}

// Transcript returns a copy of the message history in storage order.
func (s *ConversationStore) Transcript(conversationID string) ([]entities.Message, error) {
	cs, err := s.get(conversationID)
	if err != nil {
		return nil, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]entities.Message, len(cs.messages))
	copy(out, cs.messages)
	return out, nil
}

// Disposition returns the recorded result for a closed conversation.
func (s *ConversationStore) Disposition(conversationID string) (entities.DispositionResult, bool, error) {
	cs, err := s.get(conversationID)
	if err != nil {
		return entities.DispositionResult{}, false, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.disposition == nil {
		return entities.DispositionResult{}, false, nil
	}
	return *cs.disposition, true, nil
}

// List returns all conversation headers, most recently active first.
func (s *ConversationStore) List() []entities.Conversation {
	s.mu.RLock()
	states := make([]*conversationState, 0, len(s.convs))
	for _, cs := range s.convs {
		states = append(states, cs)
	}
	s.mu.RUnlock()

	out := make([]entities.Conversation, 0, len(states))
	for _, cs := range states {
		cs.mu.Lock()
		out = append(out, *copyConv(cs.conv))
		cs.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out
}

func (s *ConversationStore) publish(e Event) {
	if s.events != nil {
		s.events.Publish(e)
	}
}

func copyConv(c entities.Conversation) *entities.Conversation {
	out := c
	out.SessionState = make(map[string]any, len(c.SessionState))
	for k, v := range c.SessionState {
		out.SessionState[k] = v
	}
	return &out
}

func summarize(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= 80 {
		return string(runes)
	}
	return string(runes[:77]) + "..."
}

func flattenTranscript(messages []entities.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(string(m.Origin))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
