package http

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedChunk is wrapped by every chunked decoding failure.
var ErrMalformedChunk = errors.New("malformed chunked encoding")

var crlf = []byte("\r\n")

// DecodeChunked decodes a chunked transfer-coded body whose headers have
// already been stripped. Chunk extensions are ignored; trailer lines after
// the last chunk are consumed and discarded.
func DecodeChunked(body []byte) ([]byte, error) {
	out := make([]byte, 0, len(body))
	rest := body

	for {
		line, next, ok := readLine(rest)
		if !ok {
			return nil, fmt.Errorf("%w: missing chunk size line", ErrMalformedChunk)
		}
		rest = next

		sizeHex := line
		if i := strings.IndexByte(sizeHex, ';'); i >= 0 {
			sizeHex = sizeHex[:i]
		}
		sizeHex = strings.TrimSpace(sizeHex)
		size, err := strconv.ParseUint(sizeHex, 16, 63)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid chunk size %q", ErrMalformedChunk, sizeHex)
		}

		if size == 0 {
			for {
				trailer, next, ok := readLine(rest)
				if !ok || trailer == "" {
					return out, nil
				}
				rest = next
			}
		}

		if size > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: chunk size %d exceeds remaining %d bytes", ErrMalformedChunk, size, len(rest))
		}
		out = append(out, rest[:size]...)
		rest = rest[size:]

		if !bytes.HasPrefix(rest, crlf) {
			return nil, fmt.Errorf("%w: missing CRLF after chunk data", ErrMalformedChunk)
		}
		rest = rest[len(crlf):]
	}
}

// readLine returns the text before the next CRLF and the bytes after it.
func readLine(b []byte) (string, []byte, bool) {
	i := bytes.Index(b, crlf)
	if i < 0 {
		return "", b, false
	}
	return string(b[:i]), b[i+len(crlf):], true
}
