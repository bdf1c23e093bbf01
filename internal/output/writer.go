// Package output writes mirror run reports.
package output

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
)

// Report formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Writer defines the interface for report writers.
type Writer interface {
	// WriteReport writes the complete run report
	WriteReport(report *Report) error

	// Flush flushes any buffered output
	Flush() error

	// Close closes the writer
	Close() error
}

// Config holds output configuration.
type Config struct {
	Format string // "json" (default) or "yaml"
	Pretty bool   // indent JSON
}

// NewWriter creates a report writer for config.Format.
func NewWriter(w io.Writer, config Config) (Writer, error) {
	switch strings.ToLower(config.Format) {
	case "", FormatJSON:
		return NewJSONWriter(w, config.Pretty), nil
	case FormatYAML, "yml":
		return NewYAMLWriter(w), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", config.Format)
	}
}

// FormatFor picks a report format from a file name.
func FormatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// sink serializes writes to w and drops them once closed.
type sink struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func (s *sink) emit(encode func(io.Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	return encode(s.w)
}

// Flush flushes the underlying writer when it supports it.
func (s *sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if flusher, ok := s.w.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close marks the writer closed and closes the underlying writer.
func (s *sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if closer, ok := s.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
