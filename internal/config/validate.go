package config

import "github.com/castaldi/frank/internal/logging"

// Validate repairs out-of-range intent settings in place. Misconfigured
// values are corrected rather than rejected so the engine always starts
// with a usable threshold pair. A nil logger silences the warnings.
func (c *Config) Validate(log *logging.Logger) {
	in := &c.Intent

	if in.ConfidenceLowThreshold < 0 || in.ConfidenceLowThreshold > 1 {
		warn(log, "confidenceLowThreshold out of range, using default")
		in.ConfidenceLowThreshold = DefaultLowThreshold
	}
	if in.ConfidenceHighThreshold < 0 || in.ConfidenceHighThreshold > 1 {
		warn(log, "confidenceHighThreshold out of range, using default")
		in.ConfidenceHighThreshold = DefaultHighThreshold
	}

	// The high threshold must always exceed the low one. Repair by raising
	// high to low+0.1, capped at 1.0.
	if in.ConfidenceHighThreshold <= in.ConfidenceLowThreshold {
		warn(log, "confidenceHighThreshold must exceed confidenceLowThreshold, adjusting")
		in.ConfidenceHighThreshold = in.ConfidenceLowThreshold + 0.1
		if in.ConfidenceHighThreshold > 1.0 {
			in.ConfidenceHighThreshold = 1.0
		}
	}

	// Classification is a latency-sensitive inline call; cap the timeout
	// even when the file configures a larger value.
	if in.ClassificationTimeout <= 0 || in.ClassificationTimeout > MaxTimeoutSeconds {
		in.ClassificationTimeout = MaxTimeoutSeconds
	}

	if in.CacheMaxEntries <= 0 {
		in.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if in.CacheTTL <= 0 {
		in.CacheTTL = DefaultCacheTTLSeconds
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		c.Gateway.Port = 8765
	}
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = "127.0.0.1"
	}
}

func warn(log *logging.Logger, msg string) {
	if log != nil {
		log.Warn().Msg(msg)
	}
}
