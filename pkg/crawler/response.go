package crawler

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	cerrors "github.com/PentesterFlow/OpenMirror/internal/errors"
	rawhttp "github.com/PentesterFlow/OpenMirror/internal/http"
	"github.com/PentesterFlow/OpenMirror/internal/parser"
	"github.com/PentesterFlow/OpenMirror/internal/paths"
	"github.com/PentesterFlow/OpenMirror/internal/scope"
	"github.com/PentesterFlow/OpenMirror/internal/state"
)

// handleResponse processes a complete response for c: follow a redirect,
// or decode, extract links from, rewrite and save the body.
func (e *Engine) handleResponse(c *connCtx) {
	job := c.job
	rawURL := job.URL.String()
	raw := c.received.Bytes()
	elapsed := e.now().Sub(c.openedAt)

	e.metrics.RecordBytes(int64(len(raw)))
	e.metrics.RecordResponseTime(elapsed)

	resp, err := rawhttp.ParseResponse(raw)
	if err != nil {
		e.fail(job, cerrors.NewProtocolError(rawURL, "invalid response (no headers)", err))
		return
	}
	e.metrics.RecordStatusCode(resp.StatusCode)
	e.log.ResponseEvent(rawURL, resp.StatusCode, len(raw), elapsed)

	if resp.IsRedirect() {
		if target := redirectTarget(job.URL, resp.Location()); target != nil {
			e.listener.OnLog(fmt.Sprintf("-> Redirect %d -> %s", resp.StatusCode, target))
			e.enqueue(target, job.Depth)
			e.metrics.RecordRedirect()
			e.metrics.RecordOK()
			return
		}
	}

	if !resp.IsSuccess() {
		e.fail(job, cerrors.NewStatusError(rawURL, resp.StatusCode))
		return
	}

	if err := resp.DecodeBody(); err != nil {
		e.fail(job, cerrors.NewDecodeError(rawURL, err))
		return
	}

	isHTML := isHTMLResponse(resp, job.URL)
	outFile := paths.LocalPath(e.cfg.OutputDir, job.URL, isHTML)
	body := resp.Body
	title := ""

	if isHTML {
		html := string(body)
		if e.manifest != nil {
			title = parser.Title(html)
		}

		if job.Depth < e.cfg.MaxDepth {
			added := 0
			for _, link := range parser.ExtractLinks(html, job.URL) {
				if e.enqueue(link, job.Depth+1) {
					added++
				}
			}
			e.metrics.RecordLinksEnqueued(added)
		}

		body = []byte(parser.RewriteLinksToLocal(html, job.URL, outFile, e.cfg.OutputDir, e.scope.BaseHost(), e.cfg.SameHostOnly))
	}

	if err := writeFileAtomic(outFile, body); err != nil {
		e.fail(job, cerrors.NewStorageError(rawURL, outFile, err))
		return
	}

	e.metrics.RecordPageSaved(int64(len(body)))
	e.metrics.RecordOK()
	e.listener.OnLog("[OK] Saved: " + outFile)
	e.recordPage(job.URL, job.Depth, outFile, title, resp, len(body))
}

// redirectTarget resolves a Location header against the request URL.
func redirectTarget(base *url.URL, location string) *url.URL {
	if location == "" {
		return nil
	}
	target, err := base.Parse(location)
	if err != nil {
		return nil
	}
	return parser.Normalize(target)
}

// isHTMLResponse classifies by Content-Type, falling back to the path when
// the type is missing or says nothing.
func isHTMLResponse(resp *rawhttp.Response, u *url.URL) bool {
	switch ct := resp.ContentType(); ct {
	case "text/html", "application/xhtml+xml":
		return true
	case "", "application/octet-stream":
		return paths.GuessHTMLLike(u.Path) == paths.KindHTML
	default:
		return false
	}
}

// recordPage stores a saved page in the manifest. Failures are logged only.
func (e *Engine) recordPage(u *url.URL, depth int, localPath, title string, resp *rawhttp.Response, size int) {
	if e.manifest == nil {
		return
	}
	err := e.manifest.PutPage(scope.DedupKey(u), state.PageRecord{
		URL:         u.String(),
		LocalPath:   localPath,
		Title:       title,
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType(),
		Bytes:       size,
		Depth:       depth,
		FetchedAt:   e.now(),
	})
	if err != nil {
		e.log.WithURL(u.String()).WithDepth(depth).WithError(err).Warn("manifest page record")
	}
}

// writeFileAtomic writes data next to path and renames it into place, so
// readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
