package parser

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PentesterFlow/OpenMirror/internal/paths"
)

// RewriteLinksToLocal replaces every href and src whose target passes the
// same-host policy with the relative path to the mirrored file. pageFile is
// the local file the page itself is saved to. Everything else, including CSS
// url() references, is left as it was.
func RewriteLinksToLocal(html string, pageURL *url.URL, pageFile, outDir, baseHost string, sameHostOnly bool) string {
	r := rewriter{
		pageURL:      pageURL,
		pageFile:     pageFile,
		outDir:       outDir,
		baseHost:     paths.HostNoWWW(baseHost),
		sameHostOnly: sameHostOnly,
	}
	html = r.rewriteAttr(html, hrefPattern, "href")
	html = r.rewriteAttr(html, srcPattern, "src")
	return html
}

type rewriter struct {
	pageURL      *url.URL
	pageFile     string
	outDir       string
	baseHost     string
	sameHostOnly bool
}

func (r rewriter) rewriteAttr(html string, pattern *regexp.Regexp, attr string) string {
	matches := pattern.FindAllStringSubmatchIndex(html, -1)
	if len(matches) == 0 {
		return html
	}

	var b strings.Builder
	b.Grow(len(html))
	last := 0

	for _, m := range matches {
		quote, value := `"`, ""
		switch {
		case m[2] >= 0:
			value = html[m[2]:m[3]]
		case m[4] >= 0:
			quote, value = "'", html[m[4]:m[5]]
		}

		b.WriteString(html[last:m[0]])
		if local, ok := r.localTarget(value); ok {
			b.WriteString(attr + "=" + quote + local + quote)
		} else {
			b.WriteString(html[m[0]:m[1]])
		}
		last = m[1]
	}
	b.WriteString(html[last:])

	return b.String()
}

// localTarget returns the page-relative path for link, or false when the
// link must stay untouched.
func (r rewriter) localTarget(link string) (string, bool) {
	abs := resolve(r.pageURL, link)
	if abs == nil || abs.Host == "" {
		return "", false
	}
	if scheme := strings.ToLower(abs.Scheme); scheme != "http" && scheme != "https" {
		return "", false
	}
	if r.sameHostOnly && paths.HostNoWWW(abs.Hostname()) != r.baseHost {
		return "", false
	}

	isHTML := paths.GuessHTMLLike(abs.Path) == paths.KindHTML
	target := paths.LocalPath(r.outDir, abs, isHTML)
	return paths.RelativeLink(r.pageFile, target), true
}
