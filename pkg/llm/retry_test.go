package llm

import (
	"context"
	"errors"
	"net"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "timeout" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

var _ net.Error = fakeTimeoutError{}

func TestIsRetryableAnthropicError(t *testing.T) {
	if isRetryableAnthropicError(nil) {
		t.Error("nil error should not be retryable")
	}
	if isRetryableAnthropicError(context.Canceled) {
		t.Error("context.Canceled should not be retryable")
	}
	if isRetryableAnthropicError(context.DeadlineExceeded) {
		t.Error("context.DeadlineExceeded should not be retryable")
	}
	if !isRetryableAnthropicError(fakeTimeoutError{}) {
		t.Error("a timeout net.Error should be retryable")
	}
	if !isRetryableAnthropicError(&anthropic.Error{StatusCode: 429}) {
		t.Error("a 429 anthropic.Error should be retryable")
	}
	if !isRetryableAnthropicError(&anthropic.Error{StatusCode: 503}) {
		t.Error("a 5xx anthropic.Error should be retryable")
	}
	if isRetryableAnthropicError(&anthropic.Error{StatusCode: 400}) {
		t.Error("a 400 anthropic.Error should not be retryable")
	}
	if isRetryableAnthropicError(errors.New("some other error")) {
		t.Error("an unclassified error should not be retryable")
	}
}
