package intent

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/castaldi/frank/internal/catalog"
	"github.com/castaldi/frank/internal/config"
	"github.com/castaldi/frank/internal/domain"
	"github.com/castaldi/frank/internal/llm"
	"github.com/castaldi/frank/internal/logging"
)

// Detector classifies utterances. The LLM path can be disabled entirely,
// leaving only the deterministic keyword rules.
type Detector struct {
	client        llm.Client
	cache         *resultCache
	llmEnabled    bool
	lowThreshold  float64
	highThreshold float64
	timeout       time.Duration
	log           *logging.Logger
}

// NewDetector builds a Detector from a validated intent config. client may
// be nil, which forces the deterministic path.
func NewDetector(client llm.Client, cfg config.IntentConfig, log *logging.Logger) *Detector {
	return &Detector{
		client:        client,
		cache:         newResultCache(cfg.CacheMaxEntries, time.Duration(cfg.CacheTTL*float64(time.Second))),
		llmEnabled:    cfg.LLMEnabled() && client != nil,
		lowThreshold:  cfg.ConfidenceLowThreshold,
		highThreshold: cfg.ConfidenceHighThreshold,
		timeout:       time.Duration(cfg.ClassificationTimeout * float64(time.Second)),
		log:           log.Sub("intent"),
	}
}

// LowThreshold returns the configured acceptance threshold.
func (d *Detector) LowThreshold() float64 { return d.lowThreshold }

// HighThreshold returns the configured strong-confidence threshold.
func (d *Detector) HighThreshold() float64 { return d.highThreshold }

// Classify decides whether the utterance asks for a tool. It never
// returns an error; every failure mode degrades to the deterministic
// path or the conversational default.
func (d *Detector) Classify(ctx context.Context, utterance string, availableTools []string, convCtx *domain.Context) Result {
	start := time.Now()

	if strings.TrimSpace(utterance) == "" {
		return Result{RequiresTool: false, Confidence: 0, Reasoning: "empty input"}
	}

	key := cacheKey(utterance, availableTools, convCtx)
	if cached, ok := d.cache.get(key); ok {
		d.log.Debug().Str("utterance", utterance).Msg("classification cache hit")
		return cached
	}

	var result Result
	if d.llmEnabled {
		if llmResult, ok := d.classifyWithLLM(ctx, utterance, availableTools, convCtx); ok {
			result = adjustConfidence(llmResult)
			if result.Confidence < d.lowThreshold {
				d.log.Debug().
					Float64("confidence", result.Confidence).
					Float64("threshold", d.lowThreshold).
					Msg("model confidence below threshold, using pattern rules")
				result = classifyByPatterns(utterance)
			}
		} else {
			result = classifyByPatterns(utterance)
		}
	} else {
		result = classifyByPatterns(utterance)
	}

	result.ProcessingTime = time.Since(start)
	d.cache.put(key, result)

	d.log.Debug().
		Bool("requiresTool", result.RequiresTool).
		Str("category", result.PrimaryCategory).
		Float64("confidence", result.Confidence).
		Bool("fallback", result.FallbackUsed).
		Msg("utterance classified")
	return result
}

// classifyWithLLM issues one completion request and parses the structured
// decision. Any failure, timeout or malformed output discards the model
// result entirely.
func (d *Detector) classifyWithLLM(ctx context.Context, utterance string, tools []string, convCtx *domain.Context) (Result, bool) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.Complete(cctx, llm.CompletionRequest{
		System: classifySystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: classifyPrompt(utterance, tools, convCtx)},
		},
		MaxTokens: 512,
	})
	if err != nil {
		d.log.Warn().Err(err).Msg("classification completion failed, falling back")
		return Result{}, false
	}

	decision, ok := parseDecision(resp.Content)
	if !ok {
		d.log.Warn().Str("output", resp.Content).Msg("unparseable classification output, falling back")
		return Result{}, false
	}

	return Result{
		RequiresTool:        *decision.RequiresTool,
		PrimaryCategory:     decision.PrimaryCategory,
		Confidence:          *decision.Confidence,
		ExtractedParameters: decision.ExtractedParameters,
		Reasoning:           decision.Reasoning,
		ClarificationNeeded: decision.ClarificationNeeded,
	}, true
}

// adjustConfidence applies the fixed heuristic multipliers to a model
// decision and clamps the result into [0, 1].
func adjustConfidence(r Result) Result {
	c := r.Confidence
	if r.ClarificationNeeded {
		c *= 0.8
	}
	if utf8.RuneCountInString(strings.TrimSpace(r.Reasoning)) < 10 {
		c *= 0.9
	}
	if r.RequiresTool && len(r.ExtractedParameters) == 0 {
		c *= 0.7
	}
	if r.RequiresTool && r.PrimaryCategory != "" && catalog.IsKnownCategory(r.PrimaryCategory) {
		c *= 1.1
		if c > 1.0 {
			c = 1.0
		}
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	r.Confidence = c
	return r
}

// ExtractParameters asks the model for a flat parameter mapping for an
// already-chosen tool. Anything unparseable yields an empty mapping,
// never a partial guess.
func (d *Detector) ExtractParameters(ctx context.Context, utterance, toolName string, schema map[string]catalog.ParamSpec, convCtx *domain.Context) map[string]any {
	if !d.llmEnabled {
		return map[string]any{}
	}

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.Complete(cctx, llm.CompletionRequest{
		System: extractSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: extractPrompt(utterance, toolName, schema, convCtx)},
		},
		MaxTokens: 256,
	})
	if err != nil {
		d.log.Warn().Err(err).Str("tool", toolName).Msg("parameter extraction failed")
		return map[string]any{}
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &params); err != nil {
		d.log.Warn().Str("tool", toolName).Msg("unparseable extraction output")
		return map[string]any{}
	}
	if params == nil {
		return map[string]any{}
	}
	return params
}
