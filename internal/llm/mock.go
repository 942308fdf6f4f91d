package llm

import "context"

// MockClient is a test double. Each func field, when set, overrides the
// default canned behavior.
type MockClient struct {
	NameValue    string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	StreamFunc   func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)

	// CompleteCalls records every request passed to Complete.
	CompleteCalls []CompletionRequest
}

func (m *MockClient) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "mock"
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.CompleteCalls = append(m.CompleteCalls, req)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response", Model: m.Name()}, nil
}

func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	events := make(chan StreamEvent, 2)
	events <- StreamEvent{Type: EventDelta, Content: "mock response"}
	events <- StreamEvent{Type: EventDone, Response: &CompletionResponse{Content: "mock response", Model: m.Name()}}
	close(events)
	return events, nil
}
