package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"testing"
)

// =============================================================================
// ErrorType Tests
// =============================================================================

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    string
	}{
		{Unknown, "unknown"},
		{Config, "config"},
		{Network, "network"},
		{Timeout, "timeout"},
		{Protocol, "protocol"},
		{Decode, "decode"},
		{Status, "status"},
		{Storage, "storage"},
		{Cancelled, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.errType.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// CrawlError Tests
// =============================================================================

func TestCrawlError_Error(t *testing.T) {
	err := NewCrawlError(Network, "http://example.com", "connect", "connection failed", nil)

	errStr := err.Error()
	if !strings.Contains(errStr, "network") || !strings.Contains(errStr, "http://example.com") {
		t.Errorf("Error() = %q, want type and URL", errStr)
	}
}

func TestCrawlError_ErrorWithCause(t *testing.T) {
	cause := errors.New("underlying")
	err := NewNetworkError("http://example.com", "connect", cause)

	if !strings.Contains(err.Error(), "underlying") {
		t.Errorf("Error() = %q, want cause included", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}

func TestCrawlError_Reason(t *testing.T) {
	err := NewStatusError("http://example.com/x", 404)
	if err.Reason() != "HTTP 404" {
		t.Errorf("Reason() = %q, want %q", err.Reason(), "HTTP 404")
	}
	if err.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", err.StatusCode)
	}

	withCause := NewDecodeError("http://example.com/x", errors.New("bad size"))
	if !strings.Contains(withCause.Reason(), "bad size") {
		t.Errorf("Reason() = %q, want cause", withCause.Reason())
	}
}

func TestCrawlError_Is(t *testing.T) {
	a := NewTimeoutError("http://a/", "read", nil)
	b := NewTimeoutError("http://b/", "connect", nil)
	c := NewNetworkError("http://a/", "read", nil)

	if !errors.Is(a, b) {
		t.Error("errors of the same type should match")
	}
	if errors.Is(a, c) {
		t.Error("errors of different types should not match")
	}
}

func TestConstructors_Types(t *testing.T) {
	tests := []struct {
		name string
		err  *CrawlError
		want ErrorType
	}{
		{"config", NewConfigError("https://a/", "unsupported scheme"), Config},
		{"network", NewNetworkError("http://a/", "connect", nil), Network},
		{"timeout", NewTimeoutError("http://a/", "read", nil), Timeout},
		{"protocol", NewProtocolError("http://a/", "no header terminator", nil), Protocol},
		{"decode", NewDecodeError("http://a/", nil), Decode},
		{"status", NewStatusError("http://a/", 500), Status},
		{"storage", NewStorageError("http://a/", "/tmp/x", nil), Storage},
		{"cancelled", NewCancelledError("http://a/", "read"), Cancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.want {
				t.Errorf("Type = %v, want %v", tt.err.Type, tt.want)
			}
			if GetErrorType(tt.err) != tt.want {
				t.Errorf("GetErrorType() = %v, want %v", GetErrorType(tt.err), tt.want)
			}
		})
	}
}

// =============================================================================
// Categorize Tests
// =============================================================================

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"cancelled", context.Canceled, Cancelled},
		{"deadline", context.DeadlineExceeded, Timeout},
		{"net timeout", timeoutErr{}, Timeout},
		{"etimedout", syscall.ETIMEDOUT, Timeout},
		{"refused", syscall.ECONNREFUSED, Network},
		{"wrapped errno", fmt.Errorf("connect: %w", syscall.ECONNRESET), Network},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.invalid"}, Network},
		{"other", errors.New("something odd"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize(tt.err, "http://example.com/")
			if got.Type != tt.want {
				t.Errorf("Categorize() type = %v, want %v", got.Type, tt.want)
			}
		})
	}
}

func TestCategorize_Nil(t *testing.T) {
	if Categorize(nil, "http://example.com/") != nil {
		t.Error("Categorize(nil) should return nil")
	}
}

func TestCategorize_KeepsCrawlError(t *testing.T) {
	orig := NewStorageError("http://a/", "/x", nil)
	wrapped := fmt.Errorf("wrapped: %w", orig)

	if got := Categorize(wrapped, "http://other/"); got != orig {
		t.Error("Categorize should return the wrapped CrawlError unchanged")
	}
}

func TestGetStatusCode(t *testing.T) {
	if got := GetStatusCode(NewStatusError("http://a/", 503)); got != 503 {
		t.Errorf("GetStatusCode() = %d, want 503", got)
	}
	if got := GetStatusCode(errors.New("plain")); got != 0 {
		t.Errorf("GetStatusCode(plain) = %d, want 0", got)
	}
}
