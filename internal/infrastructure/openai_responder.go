package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"leadengage/internal/entities"
)

const responderSystemPrompt = `Você é um assistente de atendimento de uma instituição de ensino.
Responda a mensagem do lead de forma curta, cordial e objetiva, em português.
Use o histórico da conversa como contexto. Não invente valores ou datas.`

// OpenAIResponder generates automated replies through the OpenAI
// Responses API. Any API failure surfaces as an error so the
// orchestrator degrades to "no reply".
type OpenAIResponder struct {
	client openai.Client
}

func NewOpenAIResponder(apiKey string) *OpenAIResponder {
	return &OpenAIResponder{client: openai.NewClient(option.WithAPIKey(apiKey))}
}

func (r *OpenAIResponder) Respond(ctx context.Context, conv entities.Conversation, history []entities.Message, incoming entities.Message) (string, error) {
	resp, err := r.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: openai.ChatModelGPT4o,
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(buildPrompt(conv, history, incoming)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai responder: %w", err)
	}

	answer := strings.TrimSpace(resp.OutputText())
	if answer == "" {
		return "", fmt.Errorf("openai responder: empty completion")
	}
	return answer, nil
}

func buildPrompt(conv entities.Conversation, history []entities.Message, incoming entities.Message) string {
	var sb strings.Builder
	sb.WriteString(responderSystemPrompt)
	sb.WriteString("\n\nLead: ")
	sb.WriteString(conv.LeadName)
	sb.WriteString("\nCanal: ")
	sb.WriteString(string(conv.Channel))
	sb.WriteString("\n\nHistórico:\n")
	for _, m := range history {
		sb.WriteString(string(m.Origin))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("\nNova mensagem do lead: ")
	sb.WriteString(incoming.Content)
	sb.WriteString("\n\nResposta:")
	return sb.String()
}
