package llm

import (
	"context"
	"errors"

	"github.com/castaldi/frank/internal/logging"
)

// FailoverClient wraps a primary client and a list of fallbacks. When the
// primary fails with a retryable provider error the next fallback is tried
// in order.
type FailoverClient struct {
	primary   Client
	fallbacks []Client
	log       *logging.Logger
}

func NewFailoverClient(primary Client, fallbacks []Client, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		primary:   primary,
		fallbacks: fallbacks,
		log:       log.Sub("llm.failover"),
	}
}

func (f *FailoverClient) Name() string { return f.primary.Name() }

// isRetryable reports whether a failure on one provider justifies trying
// the next one. Auth failures, rate limits and server errors do; malformed
// requests do not.
func isRetryable(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case 401, 403, 429, 500, 502, 503, 529:
		return true
	}
	return false
}

func (f *FailoverClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := f.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if !isRetryable(err) {
		return nil, err
	}

	lastErr := err
	for _, fb := range f.fallbacks {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.log.Warn().
			Str("failed", providerOf(lastErr, f.primary)).
			Str("trying", fb.Name()).
			Err(lastErr).
			Msg("completion failed, trying fallback provider")

		resp, err := fb.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *FailoverClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	events, err := f.primary.Stream(ctx, req)
	if err == nil {
		return events, nil
	}
	if !isRetryable(err) {
		return nil, err
	}

	lastErr := err
	for _, fb := range f.fallbacks {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.log.Warn().
			Str("trying", fb.Name()).
			Err(lastErr).
			Msg("stream failed to start, trying fallback provider")

		events, err := fb.Stream(ctx, req)
		if err == nil {
			return events, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func providerOf(err error, fallback Client) string {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Provider != "" {
		return pe.Provider
	}
	return fallback.Name()
}
