package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TestCategorizeError verifies that CategorizeError maps refill errors to the
// correct ErrorCategory, including wrapped sentinels and message heuristics.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"wrapped deadline", fmt.Errorf("%w: %w", ErrUpstreamTransport, context.DeadlineExceeded), ErrorCategoryTimeout},
		{"canceled", context.Canceled, ErrorCategoryTimeout},
		{"503", &StatusError{StatusCode: 503}, ErrorCategoryUpstream5xx},
		{"404", &StatusError{StatusCode: 404}, ErrorCategoryUpstream4xx},
		{"wrapped 400", fmt.Errorf("exhausted retries: %w", &StatusError{StatusCode: 400}), ErrorCategoryUpstream4xx},
		{"circuit open", fmt.Errorf("%w: circuit breaker is open", ErrUpstreamUnavailable), ErrorCategoryCircuitOpen},
		{"short response", fmt.Errorf("%w: short response: 3 daily entries, need 8", ErrUpstreamTransport), ErrorCategoryShortData},
		{"parse", fmt.Errorf("%w: parse response: unexpected EOF", ErrUpstreamTransport), ErrorCategoryParsing},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorCategoryNetwork},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
