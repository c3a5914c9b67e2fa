package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	RateLimitChanged bool
	NewRateLimit     RateLimitConfig

	// RestartRequired is set when a field that is only read at startup
	// changed (providers, listen address, retry policy, telemetry).
	RestartRequired bool
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.RateLimitChanged || d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.RateLimit != new.RateLimit {
		d.RateLimitChanged = true
		d.NewRateLimit = new.RateLimit
	}

	switch {
	case old.Server.ListenAddr != new.Server.ListenAddr,
		!sameTLS(old.Server.TLS, new.Server.TLS),
		!sameEntry(old.Providers.Text, new.Providers.Text),
		!sameEntry(old.Providers.Fallback, new.Providers.Fallback),
		!sameEntry(old.Providers.Image, new.Providers.Image),
		!sameEntry(old.Providers.Speech, new.Providers.Speech),
		!sameEntry(old.Providers.Live, new.Providers.Live),
		!sameRetry(old.Retry, new.Retry),
		old.Telemetry != new.Telemetry:
		d.RestartRequired = true
	}
	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		if w, ok := b.Options[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func sameRetry(a, b RetryConfig) bool {
	if a.Delay != b.Delay {
		return false
	}
	if a.MaxRetries == nil || b.MaxRetries == nil {
		return a.MaxRetries == b.MaxRetries
	}
	return *a.MaxRetries == *b.MaxRetries
}
