package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/castaldi/frank/internal/catalog"
	"github.com/castaldi/frank/internal/config"
	"github.com/castaldi/frank/internal/domain"
	"github.com/castaldi/frank/internal/events"
	"github.com/castaldi/frank/internal/intent"
	"github.com/castaldi/frank/internal/llm"
	"github.com/castaldi/frank/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	router    *Router
	catalog   *catalog.Registry
	recorder  *events.Recorder
	responder *llm.MockClient
	executed  *[]map[string]any
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.New(nil, "error")

	var executed []map[string]any
	reg := catalog.NewRegistry(log)
	require.NoError(t, reg.Register(&catalog.Descriptor{
		Name:        "set_route",
		Category:    catalog.CategoryNavigation,
		Description: "Imposta un percorso",
		Parameters: map[string]catalog.ParamSpec{
			"destination": {Type: "string", Required: true},
			"avoid_tolls": {Type: "bool"},
		},
		Execute: func(ctx context.Context, params map[string]any) (*catalog.ExecResult, error) {
			executed = append(executed, params)
			return &catalog.ExecResult{Status: catalog.ExecSuccess, Message: "Percorso impostato"}, nil
		},
	}, true))
	require.NoError(t, reg.Register(&catalog.Descriptor{
		Name:        "get_weather",
		Category:    catalog.CategoryWeather,
		Description: "Previsioni meteo",
		Parameters: map[string]catalog.ParamSpec{
			"location": {Type: "string", Required: true},
		},
		Execute: func(ctx context.Context, params map[string]any) (*catalog.ExecResult, error) {
			executed = append(executed, params)
			return &catalog.ExecResult{Status: catalog.ExecSuccess, Message: "Sereno"}, nil
		},
	}, true))

	// Pattern-only classification keeps turns deterministic.
	detector := intent.NewDetector(nil, config.IntentConfig{
		ConfidenceHighThreshold: config.DefaultHighThreshold,
		ConfidenceLowThreshold:  config.DefaultLowThreshold,
		ClassificationTimeout:   config.DefaultTimeoutSeconds,
		CacheMaxEntries:         config.DefaultCacheMaxEntries,
		CacheTTL:                config.DefaultCacheTTLSeconds,
	}, log)

	responderClient := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "Tutto bene, grazie!"}, nil
		},
	}

	recorder := &events.Recorder{}
	router := NewRouter(Options{
		Detector:  detector,
		Catalog:   reg,
		Responder: NewResponder(responderClient, config.AgentConfig{Name: "Frank"}, 1024, log),
		Emitter:   recorder,
	}, log)

	return &fixture{
		router:    router,
		catalog:   reg,
		recorder:  recorder,
		responder: responderClient,
		executed:  &executed,
	}
}

func TestConversationalTurnNeverCreatesSession(t *testing.T) {
	f := newFixture(t)

	reply := f.router.Handle(context.Background(), "conv-1", "raccontami qualcosa di bello", nil)
	assert.Equal(t, domain.ReplyConversational, reply.Kind)
	assert.Equal(t, "Tutto bene, grazie!", reply.Text)
	assert.Zero(t, f.router.Sessions().Len())
	assert.Len(t, f.responder.CompleteCalls, 1)
}

func TestToolTurnWithAllParamsRunsWithinTurn(t *testing.T) {
	f := newFixture(t)

	reply := f.router.Handle(context.Background(), "conv-1", "imposta un percorso per Milano", nil)
	require.Equal(t, domain.ReplyToolResult, reply.Kind)
	assert.True(t, reply.Success)
	assert.Contains(t, reply.Text, "Percorso impostato")

	require.Len(t, *f.executed, 1)
	assert.Equal(t, "Milano", (*f.executed)[0]["destination"])

	// Slot cleared by the completion callback: next turn is conversation again.
	assert.Zero(t, f.router.Sessions().Len())
	assert.Empty(t, f.responder.CompleteCalls, "one terminal reply per turn, no extra responder call")

	assert.Equal(t, []string{
		events.SessionStarted,
		events.SessionRunning,
		events.SessionFinished,
	}, f.recorder.Names())
}

func TestToolTurnWithMissingParamAsksQuestion(t *testing.T) {
	f := newFixture(t)

	reply := f.router.Handle(context.Background(), "conv-1", "imposta un percorso", nil)
	require.Equal(t, domain.ReplyClarification, reply.Kind)
	assert.Equal(t, "Qual è la destinazione?", reply.Text)
	assert.Equal(t, 1, f.router.Sessions().Len())
	assert.Empty(t, *f.executed, "no execution before parameters are complete")

	for _, name := range f.recorder.Names() {
		assert.NotEqual(t, events.SessionRunning, name)
		assert.NotEqual(t, events.SessionFinished, name)
	}
}

func TestActiveSessionOwnsEveryFollowingTurn(t *testing.T) {
	f := newFixture(t)

	f.router.Handle(context.Background(), "conv-1", "imposta un percorso", nil)

	// Unrelated chatter is gated, never answered conversationally.
	reply := f.router.Handle(context.Background(), "conv-1", "come stai?", nil)
	assert.Equal(t, domain.ReplyGating, reply.Kind)
	assert.Contains(t, f.recorder.Names(), events.GatingNotice)
	assert.Empty(t, f.responder.CompleteCalls)
	assert.Equal(t, 1, f.router.Sessions().Len())

	// Answering the question completes the session in the same turn.
	reply = f.router.Handle(context.Background(), "conv-1", "Genova", nil)
	assert.Equal(t, domain.ReplyToolResult, reply.Kind)
	require.Len(t, *f.executed, 1)
	assert.Equal(t, "Genova", (*f.executed)[0]["destination"])
	assert.Zero(t, f.router.Sessions().Len())
}

func TestCancelWordEndsActiveSession(t *testing.T) {
	f := newFixture(t)

	f.router.Handle(context.Background(), "conv-1", "imposta un percorso", nil)
	reply := f.router.Handle(context.Background(), "conv-1", "lascia stare, annulla", nil)

	assert.Equal(t, domain.ReplyCanceled, reply.Kind)
	assert.Zero(t, f.router.Sessions().Len())
	assert.Empty(t, *f.executed)
	assert.Contains(t, f.recorder.Names(), events.SessionCanceled)

	// Conversation is free again.
	reply = f.router.Handle(context.Background(), "conv-1", "grazie mille", nil)
	assert.Equal(t, domain.ReplyConversational, reply.Kind)
}

func TestNoToolForCategoryFallsBackToConversation(t *testing.T) {
	f := newFixture(t)
	f.catalog.SetEnabled("get_weather", false)

	reply := f.router.Handle(context.Background(), "conv-1", "che tempo fa domani", nil)
	assert.Equal(t, domain.ReplyConversational, reply.Kind)
	assert.Zero(t, f.router.Sessions().Len())
}

func TestConversationsAreIsolated(t *testing.T) {
	f := newFixture(t)

	f.router.Handle(context.Background(), "conv-a", "imposta un percorso", nil)
	reply := f.router.Handle(context.Background(), "conv-b", "ciao, tutto bene?", nil)

	assert.Equal(t, domain.ReplyConversational, reply.Kind)
	assert.Equal(t, 1, f.router.Sessions().Len())
}

func TestConcurrentTurnsKeepOneSessionPerConversation(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv := fmt.Sprintf("conv-%d", i%4)
			f.router.Handle(context.Background(), conv, "imposta un percorso", nil)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, f.router.Sessions().Len(), 4)
}

func TestHandleStreamDeliversChunksAndFinalText(t *testing.T) {
	f := newFixture(t)
	f.responder.StreamFunc = func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
		ch := make(chan llm.StreamEvent, 4)
		ch <- llm.StreamEvent{Type: llm.EventDelta, Content: "Va tutto bene qui a bordo, il viaggio procede senza intoppi. "}
		ch <- llm.StreamEvent{Type: llm.EventDelta, Content: "Prossima sosta consigliata tra due ore."}
		ch <- llm.StreamEvent{Type: llm.EventDone}
		close(ch)
		return ch, nil
	}

	var chunks []string
	reply := f.router.HandleStream(context.Background(), "conv-1", "come va?", nil, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})

	assert.Equal(t, domain.ReplyConversational, reply.Kind)
	assert.True(t, reply.Success)
	assert.NotEmpty(t, chunks)
	assert.Contains(t, reply.Text, "Prossima sosta")
	assert.Empty(t, f.responder.CompleteCalls, "streamed turn must not also call the blocking path")
}

func TestHandleStreamFallsBackWhenStreamCannotStart(t *testing.T) {
	f := newFixture(t)
	f.responder.StreamFunc = func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
		return nil, errors.New("stream unavailable")
	}

	var chunks []string
	reply := f.router.HandleStream(context.Background(), "conv-1", "come va?", nil, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})

	assert.Equal(t, domain.ReplyConversational, reply.Kind)
	assert.Equal(t, "Tutto bene, grazie!", reply.Text)
	assert.Empty(t, chunks, "fallback must not double-deliver through the sink")
	assert.Len(t, f.responder.CompleteCalls, 1)
}

func TestHandleStreamMidSequenceFailureWithNothingDelivered(t *testing.T) {
	f := newFixture(t)
	f.responder.StreamFunc = func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
		ch := make(chan llm.StreamEvent, 2)
		ch <- llm.StreamEvent{Type: llm.EventError, Error: "connection reset"}
		close(ch)
		return ch, nil
	}

	reply := f.router.HandleStream(context.Background(), "conv-1", "come va?", nil, func(chunk string) error {
		return nil
	})

	assert.Equal(t, domain.ReplyConversational, reply.Kind)
	assert.Equal(t, "Tutto bene, grazie!", reply.Text)
	assert.Len(t, f.responder.CompleteCalls, 1)
}

func TestHandleStreamToolTurnIsNotStreamed(t *testing.T) {
	f := newFixture(t)

	var chunks []string
	reply := f.router.HandleStream(context.Background(), "conv-1", "imposta un percorso per Milano", nil, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})

	assert.Equal(t, domain.ReplyToolResult, reply.Kind)
	assert.Empty(t, chunks)
	require.Len(t, *f.executed, 1)
}
