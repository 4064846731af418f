package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadengage/internal/entities"
)

type fakeRuleSource struct {
	mu    sync.Mutex
	rules []entities.RegistryRule
	calls int
}

func (f *fakeRuleSource) RulesByType(ctx context.Context, t entities.RuleType) ([]entities.RegistryRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var out []entities.RegistryRule
	for _, r := range f.rules {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAgentDirectory struct {
	agents map[string]entities.Agent
}

func (f *fakeAgentDirectory) GetAgent(ctx context.Context, id string) (entities.Agent, error) {
	agent, ok := f.agents[id]
	if !ok {
		return entities.Agent{}, fmt.Errorf("agent %s not found", id)
	}
	return agent, nil
}

type fakeHistoryWriter struct {
	mu      sync.Mutex
	entries []entities.HistoryEntry
}

func (f *fakeHistoryWriter) Record(ctx context.Context, entry entities.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeHistoryWriter) recorded() []entities.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entities.HistoryEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

// slowAnnotator completes out of order on purpose: short messages take
// longer, so late completions must still land on the right message.
type slowAnnotator struct{}

func (slowAnnotator) Annotate(ctx context.Context, msg entities.Message) (entities.Annotation, error) {
	if len(msg.Content) < 10 {
		time.Sleep(30 * time.Millisecond)
	}
	ann := entities.NeutralAnnotation()
	ann.Intent = "information"
	return ann, nil
}

type failingAnnotator struct{}

func (failingAnnotator) Annotate(ctx context.Context, msg entities.Message) (entities.Annotation, error) {
	return entities.Annotation{}, errors.New("classifier unavailable")
}

// stalledAnnotator never answers before the store's deadline.
type stalledAnnotator struct{}

func (stalledAnnotator) Annotate(ctx context.Context, msg entities.Message) (entities.Annotation, error) {
	<-ctx.Done()
	return entities.Annotation{}, ctx.Err()
}

func newTestStore(t *testing.T) (*ConversationStore, *fakeRuleSource, *fakeHistoryWriter) {
	t.Helper()
	rules := &fakeRuleSource{}
	history := &fakeHistoryWriter{}
	agents := &fakeAgentDirectory{agents: map[string]entities.Agent{
		"op-1": {ID: "op-1", Name: "Ana", Availability: entities.AvailabilityOnline},
		"op-2": {ID: "op-2", Name: "Bruno", Availability: entities.AvailabilityOffline},
	}}
	store := NewConversationStore(rules, agents, history, nil, nil)
	return store, rules, history
}

func leadMessage(conversationID, content string) entities.Message {
	return entities.Message{ConversationID: conversationID, Content: content, Origin: entities.OriginLead}
}

func TestAppendOrdersMessagesFIFO(t *testing.T) {
	store, _, _ := newTestStore(t)
	store.annotator = slowAnnotator{}
	conv := store.Open("lead-1", "Maria", entities.ChannelChat, entities.ModeAutomated)

	contents := []string{"oi", "quero informações sobre o curso de engenharia", "ok", "qual o valor da mensalidade por favor", "sim"}
	for _, content := range contents {
		require.NoError(t, store.Append(leadMessage(conv.ID, content)))
	}

	transcript, err := store.Transcript(conv.ID)
	require.NoError(t, err)
	require.Len(t, transcript, len(contents))
	for i, msg := range transcript {
		assert.Equal(t, contents[i], msg.Content)
	}
	for i := 1; i < len(transcript); i++ {
		assert.False(t, transcript[i].Before(transcript[i-1]), "timestamps must be monotonic in storage order")
	}

	// Annotations complete out of order but attach by id, so the stored
	// order never changes and every message ends up annotated.
	assert.Eventually(t, func() bool {
		transcript, err := store.Transcript(conv.ID)
		if err != nil {
			return false
		}
		for i, msg := range transcript {
			if contents[i] != msg.Content {
				return false
			}
			if msg.Annotation == nil || msg.Annotation.Intent != "information" {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestLeadMessageThenAutomatedReply(t *testing.T) {
	store, _, _ := newTestStore(t)
	conv := store.Open("lead-1", "Maria", entities.ChannelChat, entities.ModeAutomated)
	assert.Equal(t, entities.StatusNew, conv.Status)

	require.NoError(t, store.Append(leadMessage(conv.ID, "Quero informações sobre o curso")))

	got, err := store.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusWaiting, got.Status)
	assert.Equal(t, 1, got.UnreadCount)
	assert.Equal(t, "Quero informações sobre o curso", got.LastMessageSummary)

	reply := entities.Message{ConversationID: conv.ID, Content: "Olá! Temos turmas abertas.", Origin: entities.OriginAutomated}
	require.NoError(t, store.Append(reply))

	got, err = store.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusActive, got.Status)

	transcript, err := store.Transcript(conv.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, entities.OriginAutomated, transcript[1].Origin)
}

func TestFindOrOpenConvergesOnOneConversation(t *testing.T) {
	store, _, _ := newTestStore(t)

	// Simultaneous first-contact deliveries (provider retries, rapid
	// double-texts) must all land on the same conversation.
	start := make(chan struct{})
	ids := make(chan string, 32)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			conv := store.FindOrOpen("lead-1", "Maria", entities.ChannelChat, entities.ModeAutomated)
			ids <- conv.ID
		}()
	}
	close(start)
	wg.Wait()
	close(ids)

	first := <-ids
	for id := range ids {
		assert.Equal(t, first, id)
	}
	assert.Len(t, store.List(), 1)
}

func TestFindOrOpenReopensAfterClose(t *testing.T) {
	store, _, _ := newTestStore(t)

	conv := store.FindOrOpen("lead-1", "Maria", entities.ChannelChat, entities.ModeAutomated)
	same := store.FindOrOpen("lead-1", "Maria", entities.ChannelChat, entities.ModeAutomated)
	assert.Equal(t, conv.ID, same.ID)

	// A different channel gets its own session.
	other := store.FindOrOpen("lead-1", "Maria", entities.ChannelEmail, entities.ModeAutomated)
	assert.NotEqual(t, conv.ID, other.ID)

	// Closed conversations are never reopened; a new contact on the
	// same channel starts fresh.
	_, err := store.CloseWith(context.Background(), conv.ID, "DES001", "Desistiu")
	require.NoError(t, err)
	fresh := store.FindOrOpen("lead-1", "Maria", entities.ChannelChat, entities.ModeAutomated)
	assert.NotEqual(t, conv.ID, fresh.ID)
}

func TestAnnotationErrorKeepsNeutralDefaults(t *testing.T) {
	store, _, _ := newTestStore(t)
	store.annotator = failingAnnotator{}
	conv := store.Open("lead-1", "Maria", entities.ChannelChat, entities.ModeAutomated)
	require.NoError(t, store.Append(leadMessage(conv.ID, "Quero informações sobre o curso")))

	neutral := entities.NeutralAnnotation()
	assert.Never(t, func() bool {
		transcript, err := store.Transcript(conv.ID)
		if err != nil || len(transcript) != 1 || transcript[0].Annotation == nil {
			return true
		}
		return *transcript[0].Annotation != neutral
	}, 100*time.Millisecond, 10*time.Millisecond, "a failed annotation must leave the neutral defaults in place")
}

func TestAnnotationTimeoutKeepsNeutralDefaults(t *testing.T) {
	store, _, _ := newTestStore(t)
	store.annotator = stalledAnnotator{}
	store.AnnotateTimeout = 10 * time.Millisecond
	conv := store.Open("lead-1", "Maria", entities.ChannelChat, entities.ModeAutomated)
	require.NoError(t, store.Append(leadMessage(conv.ID, "oi")))

	neutral := entities.NeutralAnnotation()
	assert.Never(t, func() bool {
		transcript, err := store.Transcript(conv.ID)
		if err != nil || len(transcript) != 1 || transcript[0].Annotation == nil {
			return true
		}
		return *transcript[0].Annotation != neutral
	}, 100*time.Millisecond, 10*time.Millisecond, "an annotation timeout must leave the neutral defaults in place")
}

func TestOpenViewSuppressesUnread(t *testing.T) {
	store, _, _ := newTestStore(t)
	conv := store.Open("lead-1", "Maria", entities.ChannelChat, entities.ModeHuman)

	require.NoError(t, store.Append(leadMessage(conv.ID, "primeira")))
	require.NoError(t, store.OpenView(conv.ID, "op-1"))

	got, _ := store.Get(conv.ID)
	assert.Equal(t, 0, got.UnreadCount)

	// While the operator has the conversation open, new inbound
	// messages don't count as unread.
	require.NoError(t, store.Append(leadMessage(conv.ID, "segunda")))
	got, _ = store.Get(conv.ID)
	assert.Equal(t, 0, got.UnreadCount)

	require.NoError(t, store.CloseView(conv.ID, "op-1"))
	require.NoError(t, store.Append(leadMessage(conv.ID, "terceira")))
	got, _ = store.Get(conv.ID)
	assert.Equal(t, 1, got.UnreadCount)
}

func TestAppendToClosedConversationFails(t *testing.T) {
	store, _, _ := newTestStore(t)
	conv := store.Open("lead-1", "Maria", entities.ChannelChat, entities.ModeHuman)
	require.NoError(t, store.Append(leadMessage(conv.ID, "oi")))

	_, err := store.CloseWith(context.Background(), conv.ID, "DES001", "Desistiu")
	require.NoError(t, err)

	before, err := store.Transcript(conv.ID)
	require.NoError(t, err)

	err = store.Append(leadMessage(conv.ID, "ainda estou aqui"))
	assert.ErrorIs(t, err, ErrConversationClosed)

	after, err := store.Transcript(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after), "message sequence of a closed conversation must not change")
}

func TestCloseIsIdempotent(t *testing.T) {
	store, rules, _ := newTestStore(t)
	rules.rules = []entities.RegistryRule{
		{Code: "INT001", Description: "Interessado", Type: entities.RuleTypeAutomated,
			Predicate: entities.MatchPredicate{AnyKeywords: []string{"curso"}}},
	}
	conv := store.Open("lead-1", "Maria", entities.ChannelChat, entities.ModeAutomated)
	require.NoError(t, store.Append(leadMessage(conv.ID, "quero saber do curso")))

	first, err := store.Close(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "INT001", first.Code)
	evaluations := rules.callCount()

	second, err := store.Close(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, evaluations, rules.callCount(), "second close must not re-run rule evaluation")
}

func TestCloseNoMatchLeavesConversationOpen(t *testing.T) {
	store, _, _ := newTestStore(t)
	conv := store.Open("lead-1", "Maria", entities.ChannelChat, entities.ModeAutomated)
	require.NoError(t, store.Append(leadMessage(conv.ID, "oi")))

	_, err := store.Close(context.Background(), conv.ID)
	assert.ErrorIs(t, err, ErrNoDisposition)

	got, err := store.Get(conv.ID)
	require.NoError(t, err)
	assert.NotEqual(t, entities.StatusClosed, got.Status, "NoMatch must not close the conversation")

	_, recorded, err := store.Disposition(conv.ID)
	require.NoError(t, err)
	assert.False(t, recorded)

	// A human can always supply a code directly.
	result, err := store.CloseWith(context.Background(), conv.ID, "MAN001", "Tabulação manual")
	require.NoError(t, err)
	assert.Equal(t, "MAN001", result.Code)

	stored, recorded, err := store.Disposition(conv.ID)
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, result, stored)
}

func TestCloseHumanModeMatchesConfiguredRule(t *testing.T) {
	store, rules, history := newTestStore(t)
	rules.rules = []entities.RegistryRule{
		{Code: "AUTO01", Description: "Resolvido pelo bot", Type: entities.RuleTypeAutomated,
			Predicate: entities.MatchPredicate{AnyKeywords: []string{"matrícula"}}},
		{Code: "MAT002", Description: "Matrícula efetivada", Type: entities.RuleTypeHuman,
			Predicate: entities.MatchPredicate{AnyKeywords: []string{"matrícula confirmada"}}},
	}
	conv := store.Open("lead-1", "Maria", entities.ChannelChat, entities.ModeHuman)
	require.NoError(t, store.Append(leadMessage(conv.ID, "Recebi o boleto, matrícula confirmada!")))

	result, err := store.Close(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.DispositionResult{Code: "MAT002", Description: "Matrícula efetivada"}, result)

	transcript, err := store.Transcript(conv.ID)
	require.NoError(t, err)
	final := transcript[len(transcript)-1]
	assert.Equal(t, "MAT002", final.DispositionCode)
	assert.Equal(t, "Matrícula efetivada", final.DispositionDescription)

	entries := history.recorded()
	require.Len(t, entries, 1)
	assert.Equal(t, "MAT002", entries[0].Disposition.Code)
	assert.Equal(t, "lead-1", entries[0].LeadID)
}

func TestAssignGuardsOnAvailability(t *testing.T) {
	store, _, _ := newTestStore(t)
	conv := store.Open("lead-1", "Maria", entities.ChannelChat, entities.ModeHuman)

	err := store.Assign(context.Background(), conv.ID, "op-2")
	assert.ErrorIs(t, err, ErrOperatorUnavailable)

	got, _ := store.Get(conv.ID)
	assert.Empty(t, got.AssignedOperatorID, "failed assign must not partially apply")

	require.NoError(t, store.Assign(context.Background(), conv.ID, "op-1"))
	got, _ = store.Get(conv.ID)
	assert.Equal(t, "op-1", got.AssignedOperatorID)
}

func TestOperationsOnUnknownConversation(t *testing.T) {
	store, _, _ := newTestStore(t)

	assert.ErrorIs(t, store.Append(leadMessage("missing", "oi")), ErrUnknownConversation)
	assert.ErrorIs(t, store.SetMode("missing", entities.ModeHuman), ErrUnknownConversation)
	_, err := store.Close(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownConversation)
}

func TestSetModeOnClosedConversationFails(t *testing.T) {
	store, _, _ := newTestStore(t)
	conv := store.Open("lead-1", "Maria", entities.ChannelChat, entities.ModeHuman)
	_, err := store.CloseWith(context.Background(), conv.ID, "DES001", "Desistiu")
	require.NoError(t, err)

	assert.ErrorIs(t, store.SetMode(conv.ID, entities.ModeAutomated), ErrConversationClosed)
}

func TestVoiceCloseRecordsDurationAndTranscript(t *testing.T) {
	store, rules, history := newTestStore(t)
	rules.rules = []entities.RegistryRule{
		{Code: "VOZ001", Description: "Ligação concluída", Type: entities.RuleTypeAutomated,
			Predicate: entities.MatchPredicate{MinCallSeconds: intPtr(30)}},
	}
	conv := store.Open("lead-9", "João", entities.ChannelVoice, entities.ModeAutomated)
	require.NoError(t, store.Append(leadMessage(conv.ID, "Alô, quero falar sobre o curso")))
	require.NoError(t, store.MergeSessionState(conv.ID, map[string]any{entities.SessionCallSeconds: 95}))

	result, err := store.Close(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "VOZ001", result.Code)

	entries := history.recorded()
	require.Len(t, entries, 1)
	assert.Equal(t, 95, entries[0].CallSeconds)
	assert.Contains(t, entries[0].Transcript, "Alô, quero falar sobre o curso")
}

func TestConcurrentAppendsAcrossConversations(t *testing.T) {
	store, _, _ := newTestStore(t)
	convA := store.Open("lead-a", "A", entities.ChannelChat, entities.ModeHuman)
	convB := store.Open("lead-b", "B", entities.ChannelChat, entities.ModeHuman)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.Append(leadMessage(convA.ID, fmt.Sprintf("a-%d", n)))
		}(i)
		go func(n int) {
			defer wg.Done()
			_ = store.Append(leadMessage(convB.ID, fmt.Sprintf("b-%d", n)))
		}(i)
	}
	wg.Wait()

	ta, err := store.Transcript(convA.ID)
	require.NoError(t, err)
	tb, err := store.Transcript(convB.ID)
	require.NoError(t, err)
	assert.Len(t, ta, 50)
	assert.Len(t, tb, 50)
}

func intPtr(v int) *int { return &v }
