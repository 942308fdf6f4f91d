package config

import (
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Default thresholds and cache bounds for the intent engine.
const (
	DefaultHighThreshold    = 0.8
	DefaultLowThreshold     = 0.5
	DefaultTimeoutSeconds   = 5.0
	MaxTimeoutSeconds       = 5.0
	DefaultCacheMaxEntries  = 100
	DefaultCacheTTLSeconds  = 300.0
)

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 8765,
			Bind: "127.0.0.1",
		},
		LLM: LLMConfig{
			Provider:  "ollama",
			Model:     "llama3.1",
			Endpoint:  "http://localhost:11434",
			MaxTokens: 1024,
		},
		Intent: IntentConfig{
			ConfidenceHighThreshold: DefaultHighThreshold,
			ConfidenceLowThreshold:  DefaultLowThreshold,
			ClassificationTimeout:   DefaultTimeoutSeconds,
			CacheMaxEntries:         DefaultCacheMaxEntries,
			CacheTTL:                DefaultCacheTTLSeconds,
		},
		Agent: AgentConfig{
			Name: "Frank",
		},
		Store: StoreConfig{
			Path: "frank.db",
		},
		Logging: LoggingConfig{
			Level: "info",
			Style: "pretty",
		},
	}
}

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Token = expandEnvVars(cfg.Gateway.Token)
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
}

// applyEnvOverrides lets a few environment variables override file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FRANK_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("FRANK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FRANK_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
}

// Load reads the config file, applies environment overrides, validates, and
// returns a merged Config. A missing file produces defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			cfg.Validate(nil)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &Error{Message: "failed to parse config: " + err.Error()}
	}

	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	cfg.Validate(nil)
	return cfg, nil
}

// Error is a configuration load/parse error.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }
