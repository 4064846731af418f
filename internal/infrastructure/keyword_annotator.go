package infrastructure

import (
	"context"
	"strings"

	"leadengage/internal/entities"
)

// lexicon entries are checked in order; the first hit decides. Keeping
// the slices ordered makes annotation deterministic for the same input.
type lexiconEntry[T ~string] struct {
	value    T
	keywords []string
}

var emotionLexicon = []lexiconEntry[entities.Emotion]{
	{entities.EmotionEnthusiastic, []string{"adorei", "amei", "perfeito", "incrível", "awesome", "love it", "can't wait"}},
	{entities.EmotionNegative, []string{"não quero", "pare de", "péssimo", "horrível", "cancelar", "stop contacting", "not interested"}},
	{entities.EmotionConfused, []string{"não entendi", "como assim", "confuso", "what do you mean", "i don't understand"}},
	{entities.EmotionHesitant, []string{"vou pensar", "talvez", "não sei ainda", "not sure", "maybe later"}},
	{entities.EmotionInterested, []string{"quero saber", "quero informações", "me interessa", "tenho interesse", "tell me more", "interested"}},
	{entities.EmotionPositive, []string{"obrigado", "obrigada", "ótimo", "legal", "bom", "thanks", "great"}},
}

var intentLexicon = []lexiconEntry[string]{
	{"enrollment", []string{"matrícula", "matricular", "inscrição", "inscrever", "enroll", "sign up"}},
	{"pricing", []string{"preço", "valor", "quanto custa", "mensalidade", "price", "how much"}},
	{"scheduling", []string{"horário", "agendar", "visita", "quando começa", "schedule", "visit"}},
	{"support", []string{"problema", "ajuda", "não consigo", "help", "issue"}},
	{"information", []string{"informações", "curso", "grade", "detalhes", "information", "details"}},
}

var objectionLexicon = []lexiconEntry[entities.Objection]{
	{entities.ObjectionPriceTooHigh, []string{"muito caro", "caro demais", "não tenho dinheiro", "too expensive", "can't afford"}},
	{entities.ObjectionNoTime, []string{"não tenho tempo", "sem tempo", "muito ocupado", "no time", "too busy"}},
	{entities.ObjectionNeedsToThink, []string{"vou pensar", "preciso pensar", "depois eu vejo", "think about it", "need to think"}},
	{entities.ObjectionCompetitor, []string{"outra escola", "outra instituição", "concorrente", "another school", "other provider"}},
}

// KeywordAnnotator is the default deterministic annotator: plain
// lexicon containment over the lowercased message text. It can be
// swapped for a learned classifier behind the same port.
type KeywordAnnotator struct{}

func NewKeywordAnnotator() *KeywordAnnotator {
	return &KeywordAnnotator{}
}

func (a *KeywordAnnotator) Annotate(ctx context.Context, msg entities.Message) (entities.Annotation, error) {
	if err := ctx.Err(); err != nil {
		return entities.Annotation{}, err
	}

	content := strings.ToLower(msg.Content)
	ann := entities.NeutralAnnotation()

	for _, entry := range emotionLexicon {
		if containsAnyKeyword(content, entry.keywords) {
			ann.Emotion = entry.value
			break
		}
	}
	for _, entry := range intentLexicon {
		if containsAnyKeyword(content, entry.keywords) {
			ann.Intent = entry.value
			break
		}
	}
	for _, entry := range objectionLexicon {
		if containsAnyKeyword(content, entry.keywords) {
			ann.Objection = entry.value
			break
		}
	}

	return ann, nil
}

func containsAnyKeyword(content string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}
