package http

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PentesterFlow/OpenMirror/internal/errors"
	"github.com/PentesterFlow/OpenMirror/internal/netpoll"
)

const (
	fetchChunkSize = 8 * 1024
	// pollSlice bounds one readiness wait so cancellation is noticed.
	pollSlice = 100 * time.Millisecond
)

// ErrResponseTooLarge is returned once a response outgrows the size limit.
var ErrResponseTooLarge = stderrors.New("response exceeds size limit")

// FetchConfig holds configuration for one-shot fetches.
type FetchConfig struct {
	Timeout   time.Duration
	UserAgent string
	// Largest accepted response, headers included
	MaxResponseSize int64
}

// DefaultFetchConfig returns defaults matching the mirror engine.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:         10 * time.Second,
		UserAgent:       DefaultUserAgent,
		MaxResponseSize: 32 * 1024 * 1024,
	}
}

// Fetcher performs single GET requests with the same wire codec as the
// engine. Each request drives one non-blocking socket through a private
// poller. Redirects are not followed.
type Fetcher struct {
	config FetchConfig
	dialer *netpoll.Dialer
}

// NewFetcher creates a Fetcher.
func NewFetcher(config FetchConfig) *Fetcher {
	if config.Timeout <= 0 {
		config.Timeout = DefaultFetchConfig().Timeout
	}
	if config.MaxResponseSize <= 0 {
		config.MaxResponseSize = DefaultFetchConfig().MaxResponseSize
	}
	return &Fetcher{
		config: config,
		dialer: &netpoll.Dialer{Timeout: config.Timeout},
	}
}

// FetchResult is a decoded response plus timing.
type FetchResult struct {
	URL      string
	Response *Response
	Bytes    int
	Duration time.Duration
}

// Get fetches rawURL. Non-2xx/3xx statuses are returned as a status error
// alongside the result.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*FetchResult, error) {
	start := time.Now()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.NewConfigError(rawURL, "invalid URL: "+err.Error())
	}
	if !strings.EqualFold(u.Scheme, "http") || u.Hostname() == "" {
		return nil, errors.NewConfigError(rawURL, "only http:// URLs are supported")
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	conn, connected, err := f.dialer.Dial(ctx, DialAddress(u))
	if err != nil {
		return nil, errors.Categorize(err, rawURL)
	}
	defer conn.Close()

	raw, err := f.exchange(ctx, conn, connected, BuildRequest(u, f.config.UserAgent))
	if err != nil {
		if stderrors.Is(err, ErrResponseTooLarge) {
			return nil, errors.NewProtocolError(rawURL, "response too large", err)
		}
		return nil, errors.Categorize(err, rawURL)
	}

	resp, err := ParseResponse(raw)
	if err != nil {
		return nil, errors.NewProtocolError(rawURL, "invalid response", err)
	}

	result := &FetchResult{
		URL:      rawURL,
		Response: resp,
		Bytes:    len(raw),
	}

	if !resp.IsSuccess() && !resp.IsRedirect() {
		result.Duration = time.Since(start)
		return result, errors.NewStatusError(rawURL, resp.StatusCode)
	}

	if err := resp.DecodeBody(); err != nil {
		return nil, errors.NewDecodeError(rawURL, err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// exchange finishes the connect, writes request and reads until end of
// stream.
func (f *Fetcher) exchange(ctx context.Context, conn netpoll.Conn, connected bool, request []byte) ([]byte, error) {
	poller := netpoll.NewPoller()
	defer poller.Close()

	fd := conn.Fd()
	if err := poller.Register(fd, netpoll.Writable); err != nil {
		return nil, err
	}
	defer poller.Unregister(fd)

	if !connected {
		if err := waitReady(ctx, poller); err != nil {
			return nil, err
		}
		if err := conn.FinishConnect(); err != nil {
			return nil, err
		}
	}

	for written := 0; written < len(request); {
		n, err := conn.Write(request[written:])
		written += n
		switch {
		case err == netpoll.ErrWouldBlock:
			if err := waitReady(ctx, poller); err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		}
	}

	if err := poller.Register(fd, netpoll.Readable); err != nil {
		return nil, err
	}

	var received bytes.Buffer
	chunk := make([]byte, fetchChunkSize)
	for {
		n, err := conn.Read(chunk)
		received.Write(chunk[:n])
		if int64(received.Len()) > f.config.MaxResponseSize {
			return nil, ErrResponseTooLarge
		}
		switch {
		case err == io.EOF:
			return received.Bytes(), nil
		case err == netpoll.ErrWouldBlock:
			if err := waitReady(ctx, poller); err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		}
	}
}

// waitReady blocks until the single registered socket reports readiness or
// ctx ends. Hang-up and error events count as readiness; the next syscall
// reports the failure.
func waitReady(ctx context.Context, poller netpoll.Poller) error {
	for {
		timeout := pollSlice
		if deadline, ok := ctx.Deadline(); ok {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return context.DeadlineExceeded
			}
			if remaining < timeout {
				timeout = remaining
			}
		}

		events, err := poller.Wait(timeout)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Fetch is a convenience wrapper around a default Fetcher.
func Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*FetchResult, error) {
	cfg := DefaultFetchConfig()
	cfg.Timeout = timeout
	result, err := NewFetcher(cfg).Get(ctx, rawURL)
	if err != nil {
		return result, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return result, nil
}
