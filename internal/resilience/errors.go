package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// Kind classifies a failed provider interaction.
type Kind int

const (
	// KindProviderError is any failure that fits no narrower kind.
	KindProviderError Kind = iota
	// KindNoCredential means neither an override nor a default is configured.
	KindNoCredential
	// KindInvalidCredential means the provider rejected the credential.
	KindInvalidCredential
	// KindDailyLimitExceeded means the local daily budget is spent.
	KindDailyLimitExceeded
	// KindRateLimited means the provider asked us to slow down.
	KindRateLimited
	// KindQuotaExceeded means the search provider's quota is exhausted.
	KindQuotaExceeded
	// KindNoConfig means a required non-secret setting (search scope) is missing.
	KindNoConfig
	// KindEmptyResponse means a successful call carried no usable output.
	KindEmptyResponse
	// KindNotFound means a lookup produced no match.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNoCredential:
		return "no_credential"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindDailyLimitExceeded:
		return "daily_limit_exceeded"
	case KindRateLimited:
		return "rate_limited"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindNoConfig:
		return "no_config"
	case KindEmptyResponse:
		return "empty_response"
	case KindNotFound:
		return "not_found"
	default:
		return "provider_error"
	}
}

// ProviderError is the typed failure surfaced by every provider-facing layer.
type ProviderError struct {
	Kind       Kind
	Provider   string
	StatusCode int
	// RetryAfter is the provider's hint for RateLimited, zero when absent.
	RetryAfter time.Duration
	// Origin is the credential origin in use, set for QuotaExceeded.
	Origin  string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the same call may succeed. Budget,
// credential and throttling failures are never transient.
func (e *ProviderError) Transient() bool {
	if e.Kind != KindProviderError {
		return false
	}
	if e.StatusCode != 0 {
		return e.StatusCode != 429 && IsTransientHTTPStatus(e.StatusCode)
	}
	return e.Err != nil && IsTransient(e.Err)
}

// NewError builds a ProviderError of the given kind.
func NewError(kind Kind, provider, message string) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Message: message}
}

// KindOf returns the Kind of the first ProviderError in err's chain, or
// KindProviderError when there is none.
func KindOf(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindProviderError
}

// IsKind reports whether err carries a ProviderError of kind k.
func IsKind(err error, k Kind) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == k
}

// TransientError wraps an error that is safe to retry (e.g., 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient returns true if the error chain holds a TransientError or a
// transient ProviderError, or matches a common network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
