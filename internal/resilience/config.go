package resilience

import "time"

// Policy is the flat, config-file shape of the retry and breaker settings.
// Zero fields keep the package defaults.
type Policy struct {
	MaxAttempts      int
	InitialBackoffMs int
	MaxBackoffMs     int
	Multiplier       float64
	JitterFraction   float64

	FailureThreshold int
	ResetTimeoutSecs int
}

// Retry returns the retry policy for generation calls.
func (p Policy) Retry() RetryConfig {
	cfg := DefaultRetryConfig()
	if p.MaxAttempts > 0 {
		cfg.MaxAttempts = p.MaxAttempts
	}
	if p.InitialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(p.InitialBackoffMs) * time.Millisecond
	}
	if p.MaxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(p.MaxBackoffMs) * time.Millisecond
	}
	if p.Multiplier > 0 {
		cfg.Multiplier = p.Multiplier
	}
	if p.JitterFraction > 0 {
		cfg.JitterFraction = p.JitterFraction
	}
	return cfg
}

// Breakers returns a breaker registry built from the policy. onChange may
// be nil.
func (p Policy) Breakers(onChange func(provider string, from, to CircuitState)) *ProviderBreakers {
	cfg := DefaultCircuitBreakerConfig()
	if p.FailureThreshold > 0 {
		cfg.FailureThreshold = p.FailureThreshold
	}
	if p.ResetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(p.ResetTimeoutSecs) * time.Second
	}
	cfg.OnStateChange = onChange
	return NewProviderBreakers(cfg)
}
