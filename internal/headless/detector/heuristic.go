// Package detector decides when a static fetch of a source page came back as
// a JavaScript shell and should be rendered headless instead.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/JakeFAU/govdata-ingest/internal/fetcher"
)

// Heuristic promotes pages that carry little visible text and look like a
// client-side application mount point.
type Heuristic struct {
	// TextThreshold is the visible-text size below which a page is suspect.
	TextThreshold int
}

var _ fetcher.Promoter = (*Heuristic)(nil)

// NewHeuristic creates a new detector. A zero threshold means 2 KiB.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{TextThreshold: threshold}
}

// mountIDs are element ids used by common SPA frameworks as their root.
var mountIDs = map[string]bool{"__next": true, "root": true, "app": true, "__nuxt": true}

// mountAttrs mark framework-managed roots regardless of id.
var mountAttrs = map[string]bool{"data-reactroot": true, "ng-app": true, "ng-version": true, "data-v-app": true}

// ShouldPromote reports whether resp should be fetched again headless.
// Non-HTML bodies, non-200 responses and rendered responses never are.
func (h *Heuristic) ShouldPromote(resp fetcher.Response) bool {
	if resp.StatusCode != http.StatusOK || resp.Rendered {
		return false
	}
	if ct := strings.ToLower(resp.Headers.Get("Content-Type")); ct != "" && !strings.Contains(ct, "html") {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	s := scan(resp.Body)
	if s.dataCells > 0 || s.text >= h.TextThreshold {
		return false
	}
	return s.mount || s.scriptBytes*100/s.total >= 25
}

type pageStats struct {
	total       int
	text        int
	scriptBytes int
	dataCells   int
	mount       bool
}

func scan(body []byte) pageStats {
	stats := pageStats{total: len(body)}
	z := html.NewTokenizer(bytes.NewReader(body))
	inScript, inStyle := false, false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return stats
		}
		raw := len(z.Raw())
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "script":
				inScript = tt == html.StartTagToken
				stats.scriptBytes += raw
			case "style":
				inStyle = tt == html.StartTagToken
			case "td", "li", "dd":
				stats.dataCells++
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if mountAttrs[string(key)] || (string(key) == "id" && mountIDs[string(val)]) {
					stats.mount = true
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script":
				inScript = false
				stats.scriptBytes += raw
			case "style":
				inStyle = false
			}
		case html.TextToken:
			switch {
			case inScript:
				stats.scriptBytes += raw
			case inStyle:
			default:
				stats.text += len(bytes.TrimSpace(z.Text()))
			}
		}
	}
}
