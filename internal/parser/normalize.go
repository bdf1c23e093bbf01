// Package parser normalizes URLs and extracts and rewrites links in HTML.
package parser

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Normalize returns a copy of u without its fragment, with the host
// lower-cased (IDNA hosts converted to ASCII) and an empty path set to "/".
func Normalize(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	n := *u
	n.Fragment = ""
	n.RawFragment = ""

	if n.Host != "" {
		n.Host = normalizeHost(n.Hostname(), n.Port())
	}
	if n.Opaque == "" && n.Path == "" {
		n.Path = "/"
		n.RawPath = ""
	}
	return &n
}

// NormalizeString parses raw and returns its normalized form. Unparseable
// input is returned as is.
func NormalizeString(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return Normalize(u).String()
}

func normalizeHost(host, port string) string {
	if !isASCII(host) {
		if ascii, err := idna.Lookup.ToASCII(host); err == nil {
			host = ascii
		}
	}
	host = strings.ToLower(host)

	if port != "" {
		return net.JoinHostPort(host, port)
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// IsSkippable reports whether a link target is not navigable: scripts,
// mail and phone links, data URIs and in-page anchors.
func IsSkippable(link string) bool {
	lower := strings.ToLower(link)
	return strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "#")
}
