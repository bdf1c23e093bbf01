package parser

import (
	"net/url"
	"regexp"
	"strings"
)

// Attribute and CSS patterns. A value is captured in group 1 (double
// quoted), 2 (single quoted) or, for url(), 3 (unquoted).
var (
	hrefPattern   = regexp.MustCompile(`(?i)href\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	srcPattern    = regexp.MustCompile(`(?i)src\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	cssURLPattern = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^)"']*))\s*\)`)
)

// ExtractLinks returns the absolute, normalized targets of every href, src
// and CSS url() in html, resolved against base. Duplicates collapse and
// first-seen order is kept.
func ExtractLinks(html string, base *url.URL) []*url.URL {
	links := make([]*url.URL, 0)
	seen := make(map[string]bool)

	for _, pattern := range []*regexp.Regexp{hrefPattern, srcPattern, cssURLPattern} {
		for _, match := range pattern.FindAllStringSubmatch(html, -1) {
			abs := resolve(base, captured(match))
			if abs == nil {
				continue
			}
			key := abs.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			links = append(links, abs)
		}
	}

	return links
}

// captured returns the first non-empty value group of a match.
func captured(match []string) string {
	for _, g := range match[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// resolve trims link, drops skippable targets and resolves the rest
// against base. It returns nil when the link cannot be used.
func resolve(base *url.URL, link string) *url.URL {
	link = strings.TrimSpace(link)
	if link == "" || IsSkippable(link) {
		return nil
	}

	ref, err := url.Parse(link)
	if err != nil {
		return nil
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return Normalize(ref)
}
