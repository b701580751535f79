package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped", fmt.Errorf("call: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"regular", errors.New("invalid input"), false},
		{"conn reset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"net timeout", &net.DNSError{Err: "timeout", IsTimeout: true}, true},
		{"string pattern", errors.New("read: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d not to be transient", code)
		}
	}
}

func TestIsRetryableGeneration(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"generation", NewGenerationError("llm_timeout", errors.New("deadline")), true},
		{"wrapped generation", fmt.Errorf("generate: %w", NewGenerationError("llm_invalid_response", errors.New("bad json"))), true},
		{"rejected", &RejectedError{Reason: "refusal"}, false},
		{"wrapped rejected", fmt.Errorf("generate: %w", &RejectedError{Reason: "policy"}), false},
		{"configuration", &ConfigurationError{Msg: "missing key"}, false},
		{"cost cap", fmt.Errorf("ledger: %w", ErrCostCapReached), false},
		{"transient http", NewTransientError(errors.New("503"), 503), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableGeneration(tt.err); got != tt.want {
				t.Errorf("IsRetryableGeneration(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGenerationError_Message(t *testing.T) {
	err := NewGenerationError("llm_timeout", errors.New("deadline exceeded"))
	if err.Error() != "generation (llm_timeout): deadline exceeded" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Error("expected Unwrap to expose cause")
	}
}

func TestTaxonomyMessages(t *testing.T) {
	if got := (&RejectedError{Reason: "refusal"}).Error(); got != "generation rejected: refusal" {
		t.Errorf("unexpected message %q", got)
	}
	if got := (&ConfigurationError{Msg: "no key"}).Error(); got != "configuration: no key" {
		t.Errorf("unexpected message %q", got)
	}
	if !IsConfiguration(fmt.Errorf("run: %w", &ConfigurationError{Msg: "x"})) {
		t.Error("expected wrapped configuration error to be detected")
	}
}
