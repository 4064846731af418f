package usecases

import (
	"strings"

	"leadengage/internal/entities"
)

// Transcript is the read-only view of a conversation handed to rule
// evaluation: the full message history plus the opaque channel session
// state (call duration for voice).
type Transcript struct {
	Messages     []entities.Message
	SessionState map[string]any
}

func ruleTypeFor(mode entities.Mode) entities.RuleType {
	if mode == entities.ModeHuman {
		return entities.RuleTypeHuman
	}
	return entities.RuleTypeAutomated
}

// EvaluateRules selects a disposition for a transcript. Rules whose type
// does not match the conversation mode are skipped; the rest are tried
// in their configured order and the first match wins. Returns false when
// no rule matched, so the caller must require an operator-chosen code.
func EvaluateRules(t Transcript, mode entities.Mode, rules []entities.RegistryRule) (entities.DispositionResult, bool) {
	want := ruleTypeFor(mode)
	for _, rule := range rules {
		if rule.Type != want {
			continue
		}
		if predicateMatches(rule.Predicate, t) {
			return entities.DispositionResult{Code: rule.Code, Description: rule.Description}, true
		}
	}
	return entities.DispositionResult{}, false
}

func predicateMatches(p entities.MatchPredicate, t Transcript) bool {
	text := transcriptText(t)

	if len(p.AnyKeywords) > 0 && !containsAny(text, p.AnyKeywords) {
		return false
	}
	for _, kw := range p.AllKeywords {
		if !strings.Contains(text, strings.ToLower(kw)) {
			return false
		}
	}

	if len(p.Emotions) > 0 && !hasEmotion(t.Messages, p.Emotions) {
		return false
	}
	if len(p.Intents) > 0 && !hasIntent(t.Messages, p.Intents) {
		return false
	}
	if len(p.Objections) > 0 && !hasObjection(t.Messages, p.Objections) {
		return false
	}

	if p.MinCallSeconds != nil || p.MaxCallSeconds != nil {
		secs, ok := callSeconds(t.SessionState)
		if !ok {
			return false
		}
		if p.MinCallSeconds != nil && secs < *p.MinCallSeconds {
			return false
		}
		if p.MaxCallSeconds != nil && secs > *p.MaxCallSeconds {
			return false
		}
	}

	return true
}

// transcriptText flattens all message content to lower case for keyword
// containment checks.
func transcriptText(t Transcript) string {
	var sb strings.Builder
	for _, m := range t.Messages {
		sb.WriteString(strings.ToLower(m.Content))
		sb.WriteString("\n")
	}
	return sb.String()
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func hasEmotion(messages []entities.Message, wanted []entities.Emotion) bool {
	for _, m := range messages {
		if m.Annotation == nil {
			continue
		}
		for _, e := range wanted {
			if m.Annotation.Emotion == e {
				return true
			}
		}
	}
	return false
}

func hasIntent(messages []entities.Message, wanted []string) bool {
	for _, m := range messages {
		if m.Annotation == nil {
			continue
		}
		for _, in := range wanted {
			if strings.EqualFold(m.Annotation.Intent, in) {
				return true
			}
		}
	}
	return false
}

func hasObjection(messages []entities.Message, wanted []entities.Objection) bool {
	for _, m := range messages {
		if m.Annotation == nil {
			continue
		}
		for _, o := range wanted {
			if m.Annotation.Objection == o {
				return true
			}
		}
	}
	return false
}

// callSeconds reads the voice call duration from the session state.
// Values arrive as int from the adapter or float64 after a JSON round
// trip.
func callSeconds(state map[string]any) (int, bool) {
	v, ok := state[entities.SessionCallSeconds]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
