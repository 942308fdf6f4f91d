package config

// Config is the root configuration for Frank.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	LLM     LLMConfig     `yaml:"llm,omitempty"`
	Intent  IntentConfig  `yaml:"intent,omitempty"`
	Agent   AgentConfig   `yaml:"agent,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// GatewayConfig controls the websocket transport adapter.
type GatewayConfig struct {
	Port  int    `yaml:"port,omitempty"`
	Bind  string `yaml:"bind,omitempty"` // listen host, default 127.0.0.1
	Token string `yaml:"token,omitempty"`
}

// LLMConfig selects and configures the completion providers.
type LLMConfig struct {
	Provider  string   `yaml:"provider,omitempty"` // "ollama" | "claude"
	Model     string   `yaml:"model,omitempty"`
	Fallbacks []string `yaml:"fallbacks,omitempty"`
	APIKey    string   `yaml:"apiKey,omitempty"`
	Endpoint  string   `yaml:"endpoint,omitempty"` // base URL for Ollama
	MaxTokens int      `yaml:"maxTokens,omitempty"`
}

// IntentConfig controls the classifier and its cache.
// Options mirror the recognized configuration block of the detection engine.
type IntentConfig struct {
	Enabled                 *bool   `yaml:"enabled,omitempty"`
	ConfidenceHighThreshold float64 `yaml:"confidenceHighThreshold,omitempty"`
	ConfidenceLowThreshold  float64 `yaml:"confidenceLowThreshold,omitempty"`
	ClassificationTimeout   float64 `yaml:"classificationTimeout,omitempty"` // seconds, hard-capped at 5
	CacheMaxEntries         int     `yaml:"cacheMaxEntries,omitempty"`
	CacheTTL                float64 `yaml:"cacheTtl,omitempty"` // seconds
}

// LLMEnabled reports whether the LLM-backed classification path is on.
// Defaults to true when unset.
func (c IntentConfig) LLMEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// AgentConfig configures the conversational responder persona.
type AgentConfig struct {
	Name        string   `yaml:"name,omitempty"`
	ExtraPrompt string   `yaml:"extraPrompt,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // sqlite file, ":memory:" for tests
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "error" | "warn" | "info" | "debug" | "trace"
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
}
