package intent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castaldi/frank/internal/catalog"
	"github.com/castaldi/frank/internal/config"
	"github.com/castaldi/frank/internal/domain"
	"github.com/castaldi/frank/internal/llm"
	"github.com/castaldi/frank/internal/logging"
)

func testIntentConfig() config.IntentConfig {
	return config.IntentConfig{
		ConfidenceHighThreshold: config.DefaultHighThreshold,
		ConfidenceLowThreshold:  config.DefaultLowThreshold,
		ClassificationTimeout:   config.DefaultTimeoutSeconds,
		CacheMaxEntries:         config.DefaultCacheMaxEntries,
		CacheTTL:                config.DefaultCacheTTLSeconds,
	}
}

func jsonClient(response string) *llm.MockClient {
	return &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: response}, nil
		},
	}
}

var testTools = []string{"set_route", "get_weather"}

func TestClassifyEmptyInput(t *testing.T) {
	d := NewDetector(nil, testIntentConfig(), logging.New(nil, "error"))

	for _, input := range []string{"", "   ", "\n\t"} {
		r := d.Classify(context.Background(), input, testTools, nil)
		assert.False(t, r.RequiresTool)
		assert.Zero(t, r.Confidence)
	}
}

func TestClassifyLLMDecision(t *testing.T) {
	client := jsonClient(`{
		"requires_tool": true,
		"primary_category": "navigation",
		"confidence": 0.9,
		"extracted_parameters": {"destination": "Milano"},
		"reasoning": "user asked for a route to Milano",
		"clarification_needed": false
	}`)
	d := NewDetector(client, testIntentConfig(), logging.New(nil, "error"))

	r := d.Classify(context.Background(), "portami a Milano", testTools, nil)
	assert.True(t, r.RequiresTool)
	assert.Equal(t, "navigation", r.PrimaryCategory)
	assert.Equal(t, "Milano", r.ExtractedParameters["destination"])
	assert.False(t, r.FallbackUsed)
	// 0.9 boosted by the known-category multiplier, capped at 1.0.
	assert.InDelta(t, 0.99, r.Confidence, 0.0001)
}

func TestClassifyCacheIdempotence(t *testing.T) {
	client := jsonClient(`{"requires_tool": false, "confidence": 0.95, "reasoning": "plain small talk here"}`)
	d := NewDetector(client, testIntentConfig(), logging.New(nil, "error"))

	first := d.Classify(context.Background(), "ciao, come procede il viaggio", testTools, nil)
	second := d.Classify(context.Background(), "ciao, come procede il viaggio", testTools, nil)

	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.RequiresTool, second.RequiresTool)
	assert.Len(t, client.CompleteCalls, 1, "second classification must come from cache")
}

func TestClassifyCacheKeyIncludesToolSetOrderInsensitive(t *testing.T) {
	client := jsonClient(`{"requires_tool": false, "confidence": 0.95, "reasoning": "plain small talk here"}`)
	d := NewDetector(client, testIntentConfig(), logging.New(nil, "error"))

	d.Classify(context.Background(), "ciao", []string{"a", "b"}, nil)
	d.Classify(context.Background(), "ciao", []string{"b", "a"}, nil)
	assert.Len(t, client.CompleteCalls, 1)

	d.Classify(context.Background(), "ciao", []string{"a", "b", "c"}, nil)
	assert.Len(t, client.CompleteCalls, 2, "a different tool set is a different key")
}

func TestCacheExpiredEntryIsAMiss(t *testing.T) {
	c := newResultCache(10, 300*time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.put("k", Result{Confidence: 0.9})
	_, ok := c.get("k")
	require.True(t, ok)

	// Read at exactly insertion time + TTL + ε must be a miss.
	c.now = func() time.Time { return base.Add(300*time.Second + time.Nanosecond) }
	_, ok = c.get("k")
	assert.False(t, ok)
}

func TestCacheEvictsExpiredFirst(t *testing.T) {
	c := newResultCache(2, 100*time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.put("old", Result{})
	c.now = func() time.Time { return base.Add(150 * time.Second) }
	c.put("fresh", Result{})
	c.put("newer", Result{})

	// "old" was expired and must be the evicted one.
	_, ok := c.get("fresh")
	assert.True(t, ok)
	_, ok = c.get("newer")
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestAdjustConfidenceHeuristics(t *testing.T) {
	tests := []struct {
		name string
		in   Result
		want float64
	}{
		{
			name: "clarification flag dampens",
			in:   Result{Confidence: 1.0, ClarificationNeeded: true, Reasoning: "long enough reasoning"},
			want: 0.8,
		},
		{
			name: "short reasoning dampens",
			in:   Result{Confidence: 1.0, Reasoning: "short"},
			want: 0.9,
		},
		{
			name: "tool without parameters dampens",
			in:   Result{Confidence: 1.0, RequiresTool: true, Reasoning: "long enough reasoning"},
			want: 0.7,
		},
		{
			name: "known category boosts capped at one",
			in: Result{
				Confidence: 0.95, RequiresTool: true, PrimaryCategory: "weather",
				ExtractedParameters: map[string]any{"location": "Roma"},
				Reasoning:           "long enough reasoning",
			},
			want: 1.0,
		},
		{
			name: "unknown category gets no boost",
			in: Result{
				Confidence: 0.9, RequiresTool: true, PrimaryCategory: "astrology",
				ExtractedParameters: map[string]any{"sign": "leo"},
				Reasoning:           "long enough reasoning",
			},
			want: 0.9,
		},
		{
			name: "reasoning length counts runes not bytes",
			in:   Result{Confidence: 1.0, Reasoning: "perché sì!"},
			want: 1.0,
		},
		{
			name: "short accented reasoning dampens",
			in:   Result{Confidence: 1.0, Reasoning: "perché ok"},
			want: 0.9,
		},
		{
			name: "multipliers stack",
			in:   Result{Confidence: 1.0, ClarificationNeeded: true, Reasoning: "short", RequiresTool: true},
			want: 1.0 * 0.8 * 0.9 * 0.7,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, adjustConfidence(tt.in).Confidence, 0.0001)
		})
	}
}

func TestAdjustConfidenceClampsOutOfRange(t *testing.T) {
	r := adjustConfidence(Result{Confidence: 7.3, Reasoning: "long enough reasoning"})
	assert.Equal(t, 1.0, r.Confidence)

	r = adjustConfidence(Result{Confidence: -2.0, Reasoning: "long enough reasoning"})
	assert.Equal(t, 0.0, r.Confidence)
}

func TestClassifyUnparseableOutputFallsBack(t *testing.T) {
	client := jsonClient("certamente! ecco la mia analisi in prosa libera")
	d := NewDetector(client, testIntentConfig(), logging.New(nil, "error"))

	r := d.Classify(context.Background(), "imposta un percorso per Genova", testTools, nil)
	assert.True(t, r.RequiresTool)
	assert.Equal(t, "navigation", r.PrimaryCategory)
	assert.True(t, r.FallbackUsed)
}

func TestClassifyMissingFieldsDiscardsLLMResult(t *testing.T) {
	// Valid JSON but no requires_tool field: must be discarded whole.
	client := jsonClient(`{"confidence": 0.99, "reasoning": "looks toolish"}`)
	d := NewDetector(client, testIntentConfig(), logging.New(nil, "error"))

	r := d.Classify(context.Background(), "che tempo fa a Torino", testTools, nil)
	assert.True(t, r.FallbackUsed)
	assert.Equal(t, "weather", r.PrimaryCategory)
}

func TestClassifyLowConfidenceFallsBackToPatterns(t *testing.T) {
	client := jsonClient(`{"requires_tool": true, "primary_category": "navigation", "confidence": 0.3, "reasoning": "not sure about this one"}`)
	d := NewDetector(client, testIntentConfig(), logging.New(nil, "error"))

	r := d.Classify(context.Background(), "portami verso il percorso migliore", testTools, nil)
	assert.True(t, r.FallbackUsed)
	assert.Equal(t, patternConfidence, r.Confidence)
}

func TestClassifyConversationalDefault(t *testing.T) {
	d := NewDetector(nil, testIntentConfig(), logging.New(nil, "error"))

	r := d.Classify(context.Background(), "raccontami una barzelletta", testTools, nil)
	assert.False(t, r.RequiresTool)
	assert.Equal(t, conversationalConfidence, r.Confidence)
	assert.True(t, r.FallbackUsed)
}

func TestPatternExtractionFindsPlaces(t *testing.T) {
	r := classifyByPatterns("imposta un percorso per Reggio Emilia senza pedaggi")
	require.True(t, r.RequiresTool)
	assert.Equal(t, "navigation", r.PrimaryCategory)
	assert.Equal(t, "Reggio Emilia", r.ExtractedParameters["destination"])
	assert.Equal(t, true, r.ExtractedParameters["avoid_tolls"])
}

func TestPatternExtractionSkipsQuestionWords(t *testing.T) {
	r := classifyByPatterns("Dove posso vedere le previsioni meteo")
	require.True(t, r.RequiresTool)
	assert.Equal(t, "weather", r.PrimaryCategory)
	assert.NotContains(t, r.ExtractedParameters, "location")
}

func TestExtractParametersUnparseableYieldsEmpty(t *testing.T) {
	client := jsonClient("ho trovato questi parametri: destinazione Milano")
	d := NewDetector(client, testIntentConfig(), logging.New(nil, "error"))

	params := d.ExtractParameters(context.Background(), "vai a Milano", "set_route",
		map[string]catalog.ParamSpec{"destination": {Type: "string", Required: true}}, nil)
	assert.Empty(t, params)
	assert.NotNil(t, params)
}

func TestExtractParametersParsesFlatMapping(t *testing.T) {
	client := jsonClient("```json\n{\"destination\": \"Milano\", \"avoid_tolls\": true}\n```")
	d := NewDetector(client, testIntentConfig(), logging.New(nil, "error"))

	params := d.ExtractParameters(context.Background(), "vai a Milano senza pedaggi", "set_route",
		map[string]catalog.ParamSpec{"destination": {Type: "string", Required: true}}, nil)
	assert.Equal(t, "Milano", params["destination"])
	assert.Equal(t, true, params["avoid_tolls"])
}

func TestClassifyAnaphoraUsesPriorTurns(t *testing.T) {
	var prompts []string
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			prompts = append(prompts, req.Messages[0].Content)
			return &llm.CompletionResponse{Content: `{"requires_tool": false, "confidence": 0.9, "reasoning": "follow-up small talk"}`}, nil
		},
	}
	d := NewDetector(client, testIntentConfig(), logging.New(nil, "error"))

	convCtx := &domain.Context{
		ConversationID: "c1",
		PriorTurns: []domain.Turn{
			{Role: domain.RoleUser, Text: "che tempo fa a Bologna"},
			{Role: domain.RoleAssistant, Text: "A Bologna è sereno"},
		},
	}
	d.Classify(context.Background(), "e per domani?", testTools, convCtx)

	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Bologna")
}

func TestCacheRepairsNonPositiveCapacity(t *testing.T) {
	c := newResultCache(0, 0)
	assert.Equal(t, config.DefaultCacheMaxEntries, c.maxEntries)
	assert.Equal(t, time.Duration(config.DefaultCacheTTLSeconds*float64(time.Second)), c.ttl)

	done := make(chan struct{})
	go func() {
		c.put("k", Result{Confidence: 0.9})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("put did not return on a cache built from a zero config")
	}

	got, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, 0.9, got.Confidence)
}

func TestExtractParametersAnaphoraUsesPriorTurns(t *testing.T) {
	var prompts []string
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			prompts = append(prompts, req.Messages[0].Content)
			return &llm.CompletionResponse{Content: `{"location": "Bologna", "day": "domani"}`}, nil
		},
	}
	d := NewDetector(client, testIntentConfig(), logging.New(nil, "error"))

	convCtx := &domain.Context{
		ConversationID: "c1",
		PriorTurns: []domain.Turn{
			{Role: domain.RoleUser, Text: "che tempo fa a Bologna"},
			{Role: domain.RoleAssistant, Text: "A Bologna è sereno"},
		},
	}
	params := d.ExtractParameters(context.Background(), "e per domani?", "get_weather",
		map[string]catalog.ParamSpec{"location": {Type: "string", Required: true}}, convCtx)

	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Bologna")
	assert.Equal(t, "Bologna", params["location"])
}
