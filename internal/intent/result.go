// Package intent decides whether an utterance asks for a tool or for
// plain conversation, with a confidence score. It combines an LLM-backed
// classifier with deterministic keyword rules and a TTL cache.
package intent

import "time"

// Result is the outcome of one classification. It is never mutated after
// creation; cached hits return the same value.
type Result struct {
	RequiresTool        bool           `json:"requiresTool"`
	PrimaryCategory     string         `json:"primaryCategory,omitempty"`
	Confidence          float64        `json:"confidence"`
	ExtractedParameters map[string]any `json:"extractedParameters,omitempty"`
	Reasoning           string         `json:"reasoning,omitempty"`
	ClarificationNeeded bool           `json:"clarificationNeeded"`
	FallbackUsed        bool           `json:"fallbackUsed"`
	ProcessingTime      time.Duration  `json:"processingTime"`
}
