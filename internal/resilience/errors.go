package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
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

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check for explicit TransientError in chain.
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// Check for network-level transient errors.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection reset / refused / DNS.
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// GenerationError is a retryable failure of a single generation call:
// timeouts, throttling, server errors and unparseable completions.
type GenerationError struct {
	Code string
	Err  error
}

func (e *GenerationError) Error() string {
	return "generation (" + e.Code + "): " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError wraps err as a transient generation failure.
func NewGenerationError(code string, err error) *GenerationError {
	return &GenerationError{Code: code, Err: err}
}

// RejectedError means the model declined to produce content. It is never retried.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "generation rejected: " + e.Reason
}

// ConfigurationError is a fatal setup problem detected before any generation.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Msg
}

// ErrCostCapReached is returned when admitting a paid call would exceed the
// run's cost ceiling.
var ErrCostCapReached = errors.New("cost cap reached")

// IsRejected reports whether err carries a RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsRetryableGeneration is the retry predicate for generation calls.
// Rejections, configuration problems and cost-cap refusals are final.
func IsRetryableGeneration(err error) bool {
	if err == nil || IsRejected(err) || IsConfiguration(err) || errors.Is(err, ErrCostCapReached) {
		return false
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return true
	}
	return IsTransient(err)
}
