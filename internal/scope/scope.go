// Package scope decides which discovered URLs belong to a mirror run.
package scope

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PentesterFlow/OpenMirror/internal/paths"
)

// Decision is the outcome of a scope check.
type Decision int

const (
	// Accept means the URL may be enqueued.
	Accept Decision = iota
	// RejectInvalid is a nil URL or one without a host.
	RejectInvalid
	// RejectScheme is anything other than plain http.
	RejectScheme
	// RejectHost is a different host under same-host-only.
	RejectHost
	// RejectExcluded matched an exclude pattern.
	RejectExcluded
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case RejectInvalid:
		return "invalid"
	case RejectScheme:
		return "scheme"
	case RejectHost:
		return "host"
	case RejectExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// Rules configures a Checker.
type Rules struct {
	SameHostOnly    bool
	ExcludePatterns []string
}

// Checker validates URLs against the start host and exclude patterns.
// It is immutable after construction and safe for concurrent use.
type Checker struct {
	baseHost     string
	sameHostOnly bool
	exclude      []*regexp.Regexp
}

// NewChecker creates a checker anchored at start.
func NewChecker(start *url.URL, rules Rules) (*Checker, error) {
	if start == nil || start.Hostname() == "" {
		return nil, fmt.Errorf("scope: start URL has no host")
	}

	c := &Checker{
		baseHost:     paths.HostNoWWW(start.Hostname()),
		sameHostOnly: rules.SameHostOnly,
	}
	for _, pattern := range rules.ExcludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("scope: exclude pattern %q: %w", pattern, err)
		}
		c.exclude = append(c.exclude, re)
	}
	return c, nil
}

// BaseHost returns the start host without "www.".
func (c *Checker) BaseHost() string {
	return c.baseHost
}

// Check classifies u.
func (c *Checker) Check(u *url.URL) Decision {
	if u == nil || u.Hostname() == "" {
		return RejectInvalid
	}
	if !IsHTTP(u) {
		return RejectScheme
	}
	if c.sameHostOnly && !c.SameHost(u) {
		return RejectHost
	}
	if len(c.exclude) > 0 {
		s := u.String()
		for _, re := range c.exclude {
			if re.MatchString(s) {
				return RejectExcluded
			}
		}
	}
	return Accept
}

// SameHost compares www-stripped hosts.
func (c *Checker) SameHost(u *url.URL) bool {
	return paths.HostNoWWW(u.Hostname()) == c.baseHost
}

// IsHTTP reports a plain http URL.
func IsHTTP(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Scheme, "http")
}

// DedupKey identifies a URL within a run: scheme, lower-cased host, port
// unless default, path and query. The fragment never takes part.
func DedupKey(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	if port != "" {
		b.WriteString(":" + port)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	b.WriteString(path)
	if u.RawQuery != "" {
		b.WriteString("?" + u.RawQuery)
	}
	return b.String()
}
