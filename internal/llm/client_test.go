package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castaldi/frank/internal/config"
	"github.com/castaldi/frank/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "error")
}

func TestRegistryResolveOrder(t *testing.T) {
	reg := NewRegistry(testLogger())
	primary := &MockClient{NameValue: "ollama"}
	other := &MockClient{NameValue: "claude"}

	reg.Register("ollama", primary)
	reg.Register("claude", other)
	reg.Alias("llama3.1", "ollama")
	reg.SetFallback("claude")

	c, err := reg.Resolve("ollama")
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.Name())

	c, err = reg.Resolve("llama3.1")
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.Name())

	c, err = reg.Resolve("something-unknown")
	require.NoError(t, err)
	assert.Equal(t, "claude", c.Name())
}

func TestRegistryResolveNoProviders(t *testing.T) {
	reg := NewRegistry(testLogger())
	_, err := reg.Resolve("anything")
	assert.Error(t, err)
}

func TestNewRegistryFromConfigOllama(t *testing.T) {
	cfg := config.LLMConfig{Provider: "ollama", Model: "llama3.1", Endpoint: "http://localhost:11434"}
	reg := NewRegistryFromConfig(cfg, testLogger())

	c, err := reg.Resolve("llama3.1")
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.Name())
}

func TestFailoverRetriesOnServerError(t *testing.T) {
	primary := &MockClient{
		NameValue: "primary",
		CompleteFunc: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return nil, &ProviderError{Provider: "primary", Message: "overloaded", Code: 529}
		},
	}
	backup := &MockClient{NameValue: "backup"}

	fc := NewFailoverClient(primary, []Client{backup}, testLogger())
	resp, err := fc.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)
	assert.Len(t, backup.CompleteCalls, 1)
}

func TestFailoverDoesNotRetryBadRequest(t *testing.T) {
	primary := &MockClient{
		NameValue: "primary",
		CompleteFunc: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return nil, &ProviderError{Provider: "primary", Message: "invalid request", Code: 400}
		},
	}
	backup := &MockClient{NameValue: "backup"}

	fc := NewFailoverClient(primary, []Client{backup}, testLogger())
	_, err := fc.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.Empty(t, backup.CompleteCalls)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 400, pe.Code)
}

func TestFailoverExhaustsFallbacks(t *testing.T) {
	fail := func(provider string) *MockClient {
		return &MockClient{
			NameValue: provider,
			CompleteFunc: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
				return nil, &ProviderError{Provider: provider, Message: "down", Code: 503}
			},
		}
	}

	fc := NewFailoverClient(fail("a"), []Client{fail("b"), fail("c")}, testLogger())
	_, err := fc.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "c", pe.Provider)
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"llama3.1","response":"ciao","done":true,"prompt_eval_count":12,"eval_count":3}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.1")
	resp, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "saluta"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ciao", resp.Content)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)
}

func TestOllamaCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.1")
	_, err := c.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusNotFound, pe.Code)
	assert.False(t, isRetryable(err))
}

func TestOllamaStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"model":"llama3.1","response":"ci","done":false}` + "\n"))
		w.Write([]byte(`{"model":"llama3.1","response":"ao","done":false}` + "\n"))
		w.Write([]byte(`{"model":"llama3.1","response":"","done":true,"prompt_eval_count":5,"eval_count":2}` + "\n"))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.1")
	events, err := c.Stream(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "saluta"}},
	})
	require.NoError(t, err)

	var deltas string
	var final *CompletionResponse
	for ev := range events {
		switch ev.Type {
		case EventDelta:
			deltas += ev.Content
		case EventDone:
			final = ev.Response
		case EventError:
			t.Fatalf("unexpected stream error: %v", ev.Error)
		}
	}
	assert.Equal(t, "ciao", deltas)
	require.NotNil(t, final)
	assert.Equal(t, "ciao", final.Content)
}

func TestClaudeStreamParsesSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("x-api-key"))
		assert.Equal(t, claudeAPIVersion, r.Header.Get("anthropic-version"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: message_start\n"))
		w.Write([]byte(`data: {"type":"message_start","message":{"model":"claude-test","usage":{"input_tokens":7}}}` + "\n\n"))
		w.Write([]byte(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"buon"}}` + "\n\n"))
		w.Write([]byte(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"giorno"}}` + "\n\n"))
		w.Write([]byte(`data: {"type":"message_delta","usage":{"output_tokens":4}}` + "\n\n"))
	}))
	defer srv.Close()

	c := NewClaudeClient("test-key", "claude-test")
	c.http = srv.Client()

	// Point the request at the test server by swapping the transport.
	c.http.Transport = rewriteTransport{base: srv.Client().Transport, target: srv.URL}

	events, err := c.Stream(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "saluta"}},
	})
	require.NoError(t, err)

	var deltas string
	var final *CompletionResponse
	for ev := range events {
		switch ev.Type {
		case EventDelta:
			deltas += ev.Content
		case EventDone:
			final = ev.Response
		}
	}
	assert.Equal(t, "buongiorno", deltas)
	require.NotNil(t, final)
	assert.Equal(t, "claude-test", final.Model)
	assert.Equal(t, 7, final.Usage.InputTokens)
	assert.Equal(t, 4, final.Usage.OutputTokens)
}

type rewriteTransport struct {
	base   http.RoundTripper
	target string
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rewritten, err := http.NewRequestWithContext(req.Context(), req.Method, t.target, req.Body)
	if err != nil {
		return nil, err
	}
	rewritten.Header = req.Header
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(rewritten)
}

func TestOllamaStreamTruncatedBodyEmitsErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, buf, err := hj.Hijack()
		require.NoError(t, err)
		defer conn.Close()

		// Announce more body than is sent, so the client's read fails
		// mid-stream and the scanner surfaces the error.
		buf.WriteString("HTTP/1.1 200 OK\r\nContent-Type: application/x-ndjson\r\nContent-Length: 500\r\n\r\n")
		buf.WriteString(`{"model":"llama3.1","response":"ci","done":false}` + "\n")
		buf.Flush()
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.1")
	events, err := c.Stream(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "saluta"}},
	})
	require.NoError(t, err)

	var deltas, errMsg string
	for ev := range events {
		switch ev.Type {
		case EventDelta:
			deltas += ev.Content
		case EventError:
			errMsg = ev.Error
		}
	}
	assert.Equal(t, "ci", deltas)
	assert.NotEmpty(t, errMsg, "truncated stream must end with an error event")
}
