package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/castaldi/frank/internal/config"
	"github.com/castaldi/frank/internal/domain"
	"github.com/castaldi/frank/internal/llm"
	"github.com/castaldi/frank/internal/logging"
)

// Responder produces free-form conversational answers. It is the path a
// turn takes when no tool session claims it.
type Responder struct {
	client      llm.Client
	name        string
	extraPrompt string
	temperature *float64
	maxTokens   int
	log         *logging.Logger
}

func NewResponder(client llm.Client, cfg config.AgentConfig, maxTokens int, log *logging.Logger) *Responder {
	r := &Responder{
		client:      client,
		name:        cfg.Name,
		extraPrompt: cfg.ExtraPrompt,
		maxTokens:   maxTokens,
		log:         log.Sub("responder"),
	}
	if cfg.Temperature != nil {
		t := *cfg.Temperature
		r.temperature = &t
	}
	if r.name == "" {
		r.name = "Frank"
	}
	if r.maxTokens <= 0 {
		r.maxTokens = 1024
	}
	return r
}

func (r *Responder) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sei %s, l'assistente di bordo di un camper. ", r.name)
	b.WriteString("Rispondi in italiano, in modo conciso e concreto. ")
	b.WriteString("Non inventare dati su veicolo, percorso o meteo: se non li conosci, dillo.")
	if r.extraPrompt != "" {
		b.WriteString("\n\n")
		b.WriteString(r.extraPrompt)
	}
	return b.String()
}

func (r *Responder) request(convCtx *domain.Context, utterance string) llm.CompletionRequest {
	var messages []llm.Message
	if convCtx != nil {
		for _, turn := range convCtx.PriorTurns {
			messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Text})
		}
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: utterance})
	return llm.CompletionRequest{
		System:      r.systemPrompt(),
		Messages:    messages,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	}
}

// Respond returns one complete conversational answer.
func (r *Responder) Respond(ctx context.Context, convCtx *domain.Context, utterance string) (string, error) {
	resp, err := r.client.Complete(ctx, r.request(convCtx, utterance))
	if err != nil {
		return "", fmt.Errorf("conversational completion: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// RespondStream starts a streaming conversational answer.
func (r *Responder) RespondStream(ctx context.Context, convCtx *domain.Context, utterance string) (<-chan llm.StreamEvent, error) {
	return r.client.Stream(ctx, r.request(convCtx, utterance))
}
