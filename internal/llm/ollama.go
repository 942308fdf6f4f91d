package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaEndpoint = "http://localhost:11434"

// OllamaClient talks to a local Ollama server over its generate API.
type OllamaClient struct {
	endpoint string
	model    string
	http     *http.Client
}

// NewOllamaClient creates a client for the given endpoint and default model.
// An empty endpoint falls back to localhost.
func NewOllamaClient(endpoint, model string) *OllamaClient {
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	return &OllamaClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		http:     &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// buildPrompt flattens the message history into a single prompt string.
// Ollama's generate endpoint takes one prompt rather than a message list.
func buildPrompt(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			b.WriteString("User: ")
		case RoleAssistant:
			b.WriteString("Assistant: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("Assistant: ")
	return b.String()
}

func (c *OllamaClient) newRequest(req CompletionRequest, stream bool) ollamaGenerateRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	out := ollamaGenerateRequest{
		Model:  model,
		Prompt: buildPrompt(req.Messages),
		System: req.System,
		Stream: stream,
	}
	opts := map[string]any{}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) > 0 {
		out.Options = opts
	}
	return out
}

// Complete performs a blocking completion.
func (c *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	body, err := json.Marshal(c.newRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Message: err.Error(), Code: 503}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{Provider: "ollama", Message: strings.TrimSpace(string(data)), Code: resp.StatusCode}
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}

	return &CompletionResponse{
		Content: out.Response,
		Model:   out.Model,
		Usage: Usage{
			InputTokens:  out.PromptEvalCount,
			OutputTokens: out.EvalCount,
		},
		Duration: time.Since(start),
	}, nil
}

// Stream performs a streaming completion. Ollama streams newline-delimited
// JSON objects, one per token batch.
func (c *OllamaClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	start := time.Now()
	body, err := json.Marshal(c.newRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Message: err.Error(), Code: 503}
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &ProviderError{Provider: "ollama", Message: strings.TrimSpace(string(data)), Code: resp.StatusCode}
	}

	events := make(chan StreamEvent, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		var content strings.Builder
		var usage Usage
		model := ""

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var chunk ollamaGenerateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}
			if chunk.Model != "" {
				model = chunk.Model
			}
			if chunk.Response != "" {
				content.WriteString(chunk.Response)
				select {
				case events <- StreamEvent{Type: EventDelta, Content: chunk.Response}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				usage.InputTokens = chunk.PromptEvalCount
				usage.OutputTokens = chunk.EvalCount
			}
		}
		if err := scanner.Err(); err != nil {
			events <- StreamEvent{Type: EventError, Error: err.Error()}
			return
		}

		events <- StreamEvent{Type: EventDone, Response: &CompletionResponse{
			Content:  content.String(),
			Model:    model,
			Usage:    usage,
			Duration: time.Since(start),
		}}
	}()

	return events, nil
}
