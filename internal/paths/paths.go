// Package paths maps crawled URLs onto files inside the mirror directory.
package paths

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Kind is the content class guessed from a URL path.
type Kind string

const (
	// KindHTML marks paths that are probably HTML documents.
	KindHTML Kind = "html"
	// KindBinary marks paths with a file extension.
	KindBinary Kind = "bin"
)

// HostNoWWW lower-cases host and strips a leading "www.".
func HostNoWWW(host string) string {
	host = strings.ToLower(host)
	return strings.TrimPrefix(host, "www.")
}

// HasExtension reports whether the last path segment contains a dot.
func HasExtension(p string) bool {
	return strings.LastIndexByte(p, '.') > strings.LastIndexByte(p, '/')
}

// GuessHTMLLike classifies a URL path: empty, directory-like or
// extensionless paths are HTML.
func GuessHTMLLike(urlPath string) Kind {
	if urlPath == "" || strings.HasSuffix(urlPath, "/") || !HasExtension(urlPath) {
		return KindHTML
	}
	return KindBinary
}

// LocalPath returns outDir/<host-without-www>/<path>. Query and fragment are
// dropped, a trailing slash maps to index.html and extensionless HTML gets
// ".html". The result never leaves outDir; a path that would escape falls
// back to outDir/<host>/index.html.
func LocalPath(outDir string, u *url.URL, isHTML bool) string {
	root := filepath.Clean(outDir)
	host := safeHost(HostNoWWW(u.Hostname()))

	p := u.Path
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		p = "/"
	}

	if strings.HasSuffix(p, "/") {
		p += "index.html"
	} else if isHTML && !HasExtension(p) {
		p += ".html"
	}

	p = strings.ReplaceAll(p, `\`, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	p = strings.TrimPrefix(p, "/")

	local := filepath.Join(root, host, filepath.FromSlash(p))
	if !within(root, local) {
		return filepath.Join(root, host, "index.html")
	}
	return local
}

// RelativeLink returns the path from fromFile's directory to toFile, with
// forward slashes, suitable for an href.
func RelativeLink(fromFile, toFile string) string {
	rel, err := filepath.Rel(filepath.Dir(fromFile), toFile)
	if err != nil {
		return filepath.ToSlash(toFile)
	}
	return filepath.ToSlash(rel)
}

// within reports whether p is strictly below root.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func safeHost(host string) string {
	if host == "" || host == "." || host == ".." || strings.ContainsAny(host, `/\`) {
		return "_"
	}
	return host
}
