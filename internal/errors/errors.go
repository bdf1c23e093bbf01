// Package errors provides the failure taxonomy for the mirror engine.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for reporting.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Config represents a rejected configuration (bad scheme, invalid limits).
	Config
	// Network represents transport errors (DNS, connect, reset).
	Network
	// Timeout represents a connection that outlived its deadline.
	Timeout
	// Protocol represents a malformed HTTP response.
	Protocol
	// Decode represents invalid chunked transfer framing.
	Decode
	// Status represents a status code outside 2xx/3xx.
	Status
	// Storage represents a failure writing the mirrored file.
	Storage
	// Cancelled represents a stop request.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Config:
		return "config"
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case Protocol:
		return "protocol"
	case Decode:
		return "decode"
	case Status:
		return "status"
	case Storage:
		return "storage"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CrawlError represents a categorized fetch or configuration error.
type CrawlError struct {
	Type       ErrorType
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
}

// Error implements the error interface.
func (e *CrawlError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, e.URL, e.Message)
}

// Reason returns a short human readable reason, used in log lines.
func (e *CrawlError) Reason() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *CrawlError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target.
func (e *CrawlError) Is(target error) bool {
	t, ok := target.(*CrawlError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewCrawlError creates a new CrawlError.
func NewCrawlError(errType ErrorType, url, operation, message string, cause error) *CrawlError {
	return &CrawlError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewConfigError creates a configuration rejection.
func NewConfigError(url, message string) *CrawlError {
	return NewCrawlError(Config, url, "start", message, nil)
}

// NewNetworkError creates a network error.
func NewNetworkError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Network, url, operation, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Timeout, url, operation, "timed out", cause)
}

// NewProtocolError creates a malformed response error.
func NewProtocolError(url, message string, cause error) *CrawlError {
	return NewCrawlError(Protocol, url, "parse_response", message, cause)
}

// NewDecodeError creates a chunked decoding error.
func NewDecodeError(url string, cause error) *CrawlError {
	return NewCrawlError(Decode, url, "decode_chunked", "invalid chunked body", cause)
}

// NewStatusError creates an error for an unusable status code.
func NewStatusError(url string, statusCode int) *CrawlError {
	err := NewCrawlError(Status, url, "response", fmt.Sprintf("HTTP %d", statusCode), nil)
	err.StatusCode = statusCode
	return err
}

// NewStorageError creates a file write error.
func NewStorageError(url, path string, cause error) *CrawlError {
	return NewCrawlError(Storage, url, "save", "cannot write "+path, cause)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *CrawlError {
	return NewCrawlError(Cancelled, url, operation, "operation cancelled", nil)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, url string) *CrawlError {
	if err == nil {
		return nil
	}

	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(url, "request")
	}

	if isTimeout(err) {
		return NewTimeoutError(url, "request", err)
	}

	if isNetworkError(err) {
		return NewNetworkError(url, "request", err)
	}

	return NewCrawlError(Unknown, url, "request", err.Error(), err)
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ETIMEDOUT)
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host")
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.StatusCode
	}
	return 0
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Type
	}
	return Unknown
}
