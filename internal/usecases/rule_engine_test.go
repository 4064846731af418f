package usecases

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadengage/internal/entities"
)

func transcriptOf(contents ...string) Transcript {
	t := Transcript{}
	for i, c := range contents {
		t.Messages = append(t.Messages, entities.Message{
			ID:        string(rune('a' + i)),
			Content:   c,
			Origin:    entities.OriginLead,
			Timestamp: time.Now(),
		})
	}
	return t
}

func TestFirstMatchWins(t *testing.T) {
	// Both rules match this transcript; the one listed first must win.
	rules := []entities.RegistryRule{
		{Code: "R1", Description: "Primeira", Type: entities.RuleTypeHuman,
			Predicate: entities.MatchPredicate{AnyKeywords: []string{"curso"}}},
		{Code: "R2", Description: "Segunda", Type: entities.RuleTypeHuman,
			Predicate: entities.MatchPredicate{AnyKeywords: []string{"matrícula"}}},
	}
	tr := transcriptOf("quero fazer a matrícula no curso de direito")

	result, ok := EvaluateRules(tr, entities.ModeHuman, rules)
	require.True(t, ok)
	assert.Equal(t, "R1", result.Code)

	// Swapping the order flips the outcome: ordering is authoring intent.
	result, ok = EvaluateRules(tr, entities.ModeHuman, []entities.RegistryRule{rules[1], rules[0]})
	require.True(t, ok)
	assert.Equal(t, "R2", result.Code)
}

func TestEmptyRulesetYieldsNoMatch(t *testing.T) {
	_, ok := EvaluateRules(transcriptOf("qualquer coisa"), entities.ModeAutomated, nil)
	assert.False(t, ok)
}

func TestRuleTypeMustMatchMode(t *testing.T) {
	rules := []entities.RegistryRule{
		{Code: "A1", Type: entities.RuleTypeAutomated, Predicate: entities.MatchPredicate{AnyKeywords: []string{"curso"}}},
	}
	tr := transcriptOf("informações do curso")

	_, ok := EvaluateRules(tr, entities.ModeHuman, rules)
	assert.False(t, ok, "automated rules must not match a human-mode close")

	result, ok := EvaluateRules(tr, entities.ModeAutomated, rules)
	require.True(t, ok)
	assert.Equal(t, "A1", result.Code)
}

func TestKeywordPredicates(t *testing.T) {
	tr := transcriptOf("Bom dia", "Quero saber o VALOR do curso")

	all := entities.MatchPredicate{AllKeywords: []string{"valor", "curso"}}
	assert.True(t, predicateMatches(all, tr))

	all.AllKeywords = append(all.AllKeywords, "matrícula")
	assert.False(t, predicateMatches(all, tr))

	any := entities.MatchPredicate{AnyKeywords: []string{"matrícula", "valor"}}
	assert.True(t, predicateMatches(any, tr))

	none := entities.MatchPredicate{AnyKeywords: []string{"reclamação"}}
	assert.False(t, predicateMatches(none, tr))
}

func TestAnnotationPredicates(t *testing.T) {
	tr := transcriptOf("mensagem")
	tr.Messages[0].Annotation = &entities.Annotation{
		Emotion:   entities.EmotionHesitant,
		Intent:    "pricing",
		Objection: entities.ObjectionPriceTooHigh,
	}

	assert.True(t, predicateMatches(entities.MatchPredicate{Emotions: []entities.Emotion{entities.EmotionHesitant}}, tr))
	assert.True(t, predicateMatches(entities.MatchPredicate{Intents: []string{"Pricing"}}, tr))
	assert.True(t, predicateMatches(entities.MatchPredicate{Objections: []entities.Objection{entities.ObjectionPriceTooHigh}}, tr))
	assert.False(t, predicateMatches(entities.MatchPredicate{Emotions: []entities.Emotion{entities.EmotionEnthusiastic}}, tr))
}

func TestCallDurationPredicates(t *testing.T) {
	tr := transcriptOf("alô")
	min, max := 30, 120

	// No session state: duration-bound predicates cannot match.
	assert.False(t, predicateMatches(entities.MatchPredicate{MinCallSeconds: &min}, tr))

	tr.SessionState = map[string]any{entities.SessionCallSeconds: 95}
	assert.True(t, predicateMatches(entities.MatchPredicate{MinCallSeconds: &min, MaxCallSeconds: &max}, tr))

	// After a JSON round trip the duration arrives as float64.
	tr.SessionState = map[string]any{entities.SessionCallSeconds: float64(20)}
	assert.False(t, predicateMatches(entities.MatchPredicate{MinCallSeconds: &min}, tr))
}
