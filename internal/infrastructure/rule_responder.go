package infrastructure

import (
	"context"
	"strings"

	"leadengage/internal/entities"
)

// RuleBasedResponder is the default automated responder: a fixed
// priority chain over the inbound text, no external calls. Priority:
// 1. greeting -> 2. pricing -> 3. enrollment -> 4. price objection ->
// 5. information -> 6. fallback.
type RuleBasedResponder struct {
	// WelcomeMessage overrides the default greeting reply when set.
	WelcomeMessage string
}

func NewRuleBasedResponder() *RuleBasedResponder {
	return &RuleBasedResponder{}
}

func (r *RuleBasedResponder) Respond(ctx context.Context, conv entities.Conversation, history []entities.Message, incoming entities.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	content := strings.ToLower(strings.TrimSpace(incoming.Content))

	if isGreeting(content) {
		if r.WelcomeMessage != "" {
			return r.WelcomeMessage, nil
		}
		return "Olá! 👋 Sou o assistente virtual. Posso enviar informações sobre cursos, valores e matrículas. Como posso ajudar?", nil
	}

	if containsAnyKeyword(content, []string{"preço", "valor", "quanto custa", "mensalidade", "price"}) {
		return "Nossos valores variam por curso e turno. Me diga qual curso te interessa que eu envio a tabela completa. 💰", nil
	}

	if containsAnyKeyword(content, []string{"matrícula", "matricular", "inscrição", "enroll"}) {
		return "Ótimo! Para iniciar sua matrícula preciso apenas do seu nome completo e do curso escolhido. Pode me enviar?", nil
	}

	if containsAnyKeyword(content, []string{"muito caro", "caro demais", "too expensive"}) {
		return "Entendo! Temos opções de bolsas e parcelamento que podem ajudar. Quer que um consultor apresente as condições?", nil
	}

	if containsAnyKeyword(content, []string{"informações", "curso", "saber mais", "details", "information"}) {
		return "Claro! Temos turmas abertas em vários cursos. Me conta qual área te interessa que eu envio a grade e os horários. 📚", nil
	}

	return "Recebi sua mensagem! Um de nossos consultores pode te atender em instantes, ou me diga o que procura: cursos, valores ou matrícula.", nil
}

func isGreeting(content string) bool {
	greetings := []string{"olá", "ola", "oi", "bom dia", "boa tarde", "boa noite", "hello", "hi"}
	for _, g := range greetings {
		if content == g || strings.HasPrefix(content, g+" ") || strings.HasPrefix(content, g+",") || strings.HasPrefix(content, g+"!") {
			return true
		}
	}
	return false
}
