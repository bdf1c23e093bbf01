package http

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoHeaderTerminator is returned when a response has no blank line
// separating headers from the body.
var ErrNoHeaderTerminator = errors.New("response has no header terminator")

var headerTerminator = []byte("\r\n\r\n")

// Response is a parsed HTTP/1.1 response.
type Response struct {
	StatusCode int
	StatusLine string
	// Header holds lower-cased names; the first occurrence of a name wins.
	Header map[string]string
	Body   []byte

	decoded bool
}

// ParseResponse splits raw into status line, headers and body. The body is
// returned as received; call DecodeBody to undo chunked framing.
func ParseResponse(raw []byte) (*Response, error) {
	split := bytes.Index(raw, headerTerminator)
	if split < 0 {
		return nil, ErrNoHeaderTerminator
	}

	lines := strings.Split(string(raw[:split]), "\r\n")
	resp := &Response{
		StatusLine: lines[0],
		StatusCode: parseStatusCode(lines[0]),
		Header:     make(map[string]string, len(lines)-1),
		Body:       raw[split+len(headerTerminator):],
	}

	for _, line := range lines[1:] {
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:idx]))
		if _, ok := resp.Header[name]; ok {
			continue
		}
		resp.Header[name] = strings.TrimSpace(line[idx+1:])
	}

	return resp, nil
}

// parseStatusCode returns the code from "HTTP/1.1 200 OK", or 0.
func parseStatusCode(statusLine string) int {
	fields := strings.Split(statusLine, " ")
	if len(fields) < 2 {
		return 0
	}
	code, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return 0
	}
	return code
}

// Get returns the value of a header, case-insensitively.
func (r *Response) Get(name string) string {
	return r.Header[strings.ToLower(name)]
}

// Location returns the Location header.
func (r *Response) Location() string {
	return r.Get("location")
}

// ContentType returns the lower-cased media type without parameters.
func (r *Response) ContentType() string {
	ct := r.Get("content-type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// IsChunked reports whether the body uses chunked transfer coding.
func (r *Response) IsChunked() bool {
	return strings.Contains(strings.ToLower(r.Get("transfer-encoding")), "chunked")
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsRedirect reports a 3xx status.
func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// DecodeBody removes chunked framing from the body when the response
// declares it. Calling it again is a no-op.
func (r *Response) DecodeBody() error {
	if r.decoded || !r.IsChunked() {
		r.decoded = true
		return nil
	}
	body, err := DecodeChunked(r.Body)
	if err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	r.Body = body
	r.decoded = true
	return nil
}
