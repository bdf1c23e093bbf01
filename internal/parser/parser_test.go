package parser

import (
	"net/url"
	"path/filepath"
	"strings"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func linkStrings(links []*url.URL) []string {
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = l.String()
	}
	return out
}

// =============================================================================
// Normalize Tests
// =============================================================================

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://Example.COM", "http://example.com/"},
		{"http://example.com/a#frag", "http://example.com/a"},
		{"http://example.com/a?q=1#x", "http://example.com/a?q=1"},
		{"http://EXAMPLE.com:8080/p", "http://example.com:8080/p"},
		{"http://bücher.example/", "http://xn--bcher-kva.example/"},
		{"http://[::1]:8080", "http://[::1]:8080/"},
		{"http://example.com/Path/Case", "http://example.com/Path/Case"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(mustParse(t, tt.in)).String(); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	u := mustParse(t, "http://Example.com#top")
	Normalize(u)

	if u.Fragment != "top" || u.Host != "Example.com" {
		t.Errorf("input was modified: %+v", u)
	}
}

func TestNormalize_Nil(t *testing.T) {
	if Normalize(nil) != nil {
		t.Error("Normalize(nil) should be nil")
	}
}

func TestNormalizeString(t *testing.T) {
	if got := NormalizeString("http://A.com/x#y"); got != "http://a.com/x" {
		t.Errorf("NormalizeString() = %q", got)
	}
	bad := "http://[::1"
	if got := NormalizeString(bad); got != bad {
		t.Errorf("NormalizeString(%q) = %q, want input back", bad, got)
	}
}

func TestIsSkippable(t *testing.T) {
	tests := []struct {
		link string
		want bool
	}{
		{"javascript:void(0)", true},
		{"JavaScript:alert(1)", true},
		{"mailto:a@b.c", true},
		{"tel:+123", true},
		{"data:image/png;base64,AAAA", true},
		{"#section", true},
		{"/about", false},
		{"about.html", false},
		{"http://example.com/", false},
	}
	for _, tt := range tests {
		if got := IsSkippable(tt.link); got != tt.want {
			t.Errorf("IsSkippable(%q) = %v, want %v", tt.link, got, tt.want)
		}
	}
}

// =============================================================================
// ExtractLinks Tests
// =============================================================================

func TestExtractLinks(t *testing.T) {
	base := mustParse(t, "http://example.com/docs/index.html")
	html := `
		<html><head>
			<link rel="stylesheet" href='/style.css'>
			<style>body { background: url( "img/bg.png" ) } .x { background: url(icons.svg) }</style>
		</head><body>
			<a HREF="about.html#team">About</a>
			<a href = "http://Other.com/">Other</a>
			<a href="javascript:void(0)">JS</a>
			<a href="mailto:me@example.com">Mail</a>
			<a href="#top">Top</a>
			<a href="  ">Empty</a>
			<img src="../logo.png">
			<script src="/app.js"></script>
		</body></html>`

	got := linkStrings(ExtractLinks(html, base))
	want := []string{
		"http://example.com/style.css",
		"http://example.com/docs/about.html",
		"http://other.com/",
		"http://example.com/logo.png",
		"http://example.com/app.js",
		"http://example.com/docs/img/bg.png",
		"http://example.com/docs/icons.svg",
	}

	if len(got) != len(want) {
		t.Fatalf("ExtractLinks() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("link[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractLinks_Duplicates(t *testing.T) {
	base := mustParse(t, "http://example.com/")
	html := `<a href="/a">1</a><a href="/a#x">2</a><a href="http://EXAMPLE.com/a">3</a><img src="/a">`

	got := ExtractLinks(html, base)
	if len(got) != 1 {
		t.Errorf("ExtractLinks() = %v, want a single link", linkStrings(got))
	}
}

func TestExtractLinks_Malformed(t *testing.T) {
	base := mustParse(t, "http://example.com/")
	html := `<a href="/ok">ok</a><a href="/unterminated>broken<div src=>`

	got := linkStrings(ExtractLinks(html, base))
	if len(got) == 0 || got[0] != "http://example.com/ok" {
		t.Errorf("ExtractLinks() = %v, want /ok first", got)
	}
}

func TestExtractLinks_NoLinks(t *testing.T) {
	if got := ExtractLinks("<p>plain text</p>", mustParse(t, "http://example.com/")); len(got) != 0 {
		t.Errorf("ExtractLinks() = %v, want none", linkStrings(got))
	}
}

// =============================================================================
// RewriteLinksToLocal Tests
// =============================================================================

func TestRewriteLinksToLocal(t *testing.T) {
	out := filepath.Join("/tmp", "m")
	page := mustParse(t, "http://example.com/")
	pageFile := filepath.Join(out, "example.com", "index.html")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"relative html", `<a href="about.html">`, `<a href="about.html">`},
		{"directory", `<a href="/docs/">`, `<a href="docs/index.html">`},
		{"extensionless", `<a href='/contact'>`, `<a href='contact.html'>`},
		{"absolute same host", `<a href="http://www.example.com/a/b.png">`, `<a href="a/b.png">`},
		{"src", `<img src="/img/x.png">`, `<img src="img/x.png">`},
		{"spacing normalized", `<a href = "/x.css">`, `<a href="x.css">`},
		{"other host untouched", `<a href = "http://other.com/x">`, `<a href = "http://other.com/x">`},
		{"skippable untouched", `<a href="mailto:x@y.z">`, `<a href="mailto:x@y.z">`},
		{"anchor untouched", `<a href="#top">`, `<a href="#top">`},
		{"https same host", `<a href="https://example.com/s.js">`, `<a href="s.js">`},
		{"ftp untouched", `<a href="ftp://example.com/f">`, `<a href="ftp://example.com/f">`},
		{"css untouched", `<div style="background:url(/bg.png)">`, `<div style="background:url(/bg.png)">`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RewriteLinksToLocal(tt.in, page, pageFile, out, "example.com", true)
			if got != tt.want {
				t.Errorf("RewriteLinksToLocal(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRewriteLinksToLocal_NestedPage(t *testing.T) {
	out := "/tmp/m"
	page := mustParse(t, "http://example.com/blog/post/")
	pageFile := filepath.Join(out, "example.com", "blog", "post", "index.html")

	got := RewriteLinksToLocal(`<a href="/">home</a><img src="../img.png">`, page, pageFile, out, "example.com", true)
	want := `<a href="../../index.html">home</a><img src="../img.png">`
	if got != want {
		t.Errorf("RewriteLinksToLocal() = %q, want %q", got, want)
	}
}

func TestRewriteLinksToLocal_AllHosts(t *testing.T) {
	out := "/tmp/m"
	page := mustParse(t, "http://example.com/")
	pageFile := filepath.Join(out, "example.com", "index.html")

	got := RewriteLinksToLocal(`<a href="http://other.com/x.html">`, page, pageFile, out, "example.com", false)
	if !strings.Contains(got, `href="../other.com/x.html"`) {
		t.Errorf("RewriteLinksToLocal() = %q, want link into other.com mirror", got)
	}
}

func TestRewriteLinksToLocal_Unchanged(t *testing.T) {
	html := "<html><body><p>no links</p></body></html>"
	got := RewriteLinksToLocal(html, mustParse(t, "http://example.com/"), "/tmp/m/example.com/index.html", "/tmp/m", "example.com", true)
	if got != html {
		t.Errorf("RewriteLinksToLocal() changed link-free html: %q", got)
	}
}

// ============================================================================
// Title Tests
// ============================================================================

func TestTitle(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"simple", `<html><head><title>Home</title></head></html>`, "Home"},
		{"collapses whitespace", "<title>\n  About\t us \n</title>", "About us"},
		{"first wins", `<title>One</title><title>Two</title>`, "One"},
		{"entities decoded", `<title>Tom &amp; Jerry</title>`, "Tom & Jerry"},
		{"missing", `<html><body>no title</body></html>`, ""},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Title(tt.html); got != tt.want {
				t.Errorf("Title() = %q, want %q", got, tt.want)
			}
		})
	}
}
