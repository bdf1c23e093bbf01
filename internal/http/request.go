// Package http implements the HTTP/1.1 wire codec used by the mirror engine:
// request encoding, response parsing and chunked transfer decoding.
package http

import (
	"net"
	"net/url"
	"strings"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0"

// BuildRequest encodes the GET request for u. Every request asks the server
// to close the connection, so the response ends at end of stream.
func BuildRequest(u *url.URL, userAgent string) []byte {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	var b strings.Builder
	b.WriteString("GET ")
	b.WriteString(RequestTarget(u))
	b.WriteString(" HTTP/1.1\r\n")
	b.WriteString("Host: " + HostHeader(u) + "\r\n")
	b.WriteString("User-Agent: " + userAgent + "\r\n")
	b.WriteString("Accept: */*\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("\r\n")

	return []byte(b.String())
}

// RequestTarget returns the escaped path and query of u, "/" when the path
// is empty.
func RequestTarget(u *url.URL) string {
	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target
}

// HostHeader returns the Host header value for u. The port is included
// only when it is not 80.
func HostHeader(u *url.URL) string {
	host := u.Hostname()
	port := u.Port()
	if port != "" && port != "80" {
		return net.JoinHostPort(host, port)
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

// DialAddress returns host:port for connecting to u, defaulting to port 80.
func DialAddress(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "80"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
