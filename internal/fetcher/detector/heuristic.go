// Package detector recognizes static responses that are client-rendered shells.
package detector

import "strings"

// Heuristic flags listings whose static HTML is unlikely to contain items.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a detector; threshold 0 means 2048 bytes.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = []string{
	`id="__next"`,
	`id="__nuxt"`,
	`id="root"`,
	`id="app"`,
	"data-reactroot",
}

// ClientRendered reports whether body looks like an empty SPA shell and
// which rule matched.
func (h *Heuristic) ClientRendered(body string) (bool, string) {
	if strings.TrimSpace(body) == "" {
		return true, "empty body"
	}
	lower := strings.ToLower(body)
	if len(lower) < h.BodyLengthThreshold && scriptHeavy(lower) {
		return true, "script heavy"
	}
	for _, marker := range spaMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true, "spa marker " + marker
		}
	}
	return false, ""
}

// scriptHeavy reports whether script elements cover at least a quarter of lower.
func scriptHeavy(lower string) bool {
	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	total := len(lower)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			covered += total - start
			break
		}
		contentStart := start + tagEnd + 1
		next := total
		if end := strings.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered > 0 && covered*100/total >= 25
}
