package textnorm

import (
	"regexp"
	"strings"
	"sync"
)

// fieldPatterns caches one compiled matcher per label; extraction runs over
// every bulletin in a batch and labels repeat constantly.
var fieldPatterns sync.Map // label -> *regexp.Regexp

// fieldPattern builds the "Label <sep> value" line matcher for one label.
// The label is matched literally (never as a pattern) and the separator may
// be a colon, hyphen, en dash or em dash. The capture runs to end of line.
func fieldPattern(label string) *regexp.Regexp {
	if p, ok := fieldPatterns.Load(label); ok {
		return p.(*regexp.Regexp)
	}
	p := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(label) + `\s*[:\x{2010}\x{2013}\x{2014}-]\s*(.+)`)
	fieldPatterns.Store(label, p)
	return p
}

// ExtractField scans the body for the first "Label: value" line among the
// given label synonyms, tried in priority order, and returns the trailing
// value whitespace-normalized. Returns nil when no synonym matches or the
// matched value collapses to an empty string. This is the one mechanism
// every event extractor uses for simple labeled fields.
func ExtractField(body string, labels []string) *string {
	for _, label := range labels {
		m := fieldPattern(label).FindStringSubmatch(body)
		if m == nil {
			continue
		}
		value := CollapseSpace(strings.TrimRight(m[1], "\r"))
		if value == "" {
			continue
		}
		return &value
	}
	return nil
}
