package bulletin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jumine/cpc-pipeline/internal/textnorm"
)

// tickerShape is the symbol grammar the exchange uses: 1-6 uppercase
// alphanumerics with an optional class suffix ("ABC", "ABC.A", "ABC.UN").
const tickerShape = `[A-Z][A-Z0-9]{0,5}(?:\.[A-Z]{1,3})?`

var (
	blockDelimiter = regexp.MustCompile(`(?m)^\s*(?:_{3,}|={3,})\s*$`)
	formerlyAside  = regexp.MustCompile(`(?i)\s*\[formerly[^\]]*\]`)
	quotedTicker   = regexp.MustCompile(`"(` + tickerShape + `)"`)
	parenTicker    = regexp.MustCompile(`\((?:TSXV:\s*)?(` + tickerShape + `)\)`)
	allCapsLabel   = regexp.MustCompile(`^[A-Z][A-Z0-9 '&/().-]*:`)
	typeLabel      = regexp.MustCompile(`(?i)^(?:BULLETIN|NOTICE)\s+TYPE\s*:\s*(.*)$`)
	tierPhrase     = regexp.MustCompile(`(?i)\btier\s*([12])\b`)
	nexPhrase      = regexp.MustCompile(`\bNEX\b`)
)

var dateLabels = []string{"BULLETIN DATE", "NOTICE DATE"}

// Segment splits one raw multi-bulletin dump into blocks and extracts header
// metadata from each. Composite keys come from (sourceID, 1-based ordinal)
// alone, so segmenting the same dump twice yields identical blocks. A fragment
// with no recognizable header still becomes a block with nil company and no
// tickers; downstream consumers decide what to do with it.
func Segment(sourceID, raw string) []BulletinBlock {
	text := normalizeText(raw)

	var blocks []BulletinBlock
	ordinal := 0
	for _, fragment := range blockDelimiter.Split(text, -1) {
		body := strings.TrimSpace(fragment)
		if body == "" {
			continue
		}
		ordinal++

		block := BulletinBlock{
			SourceID:     sourceID,
			Ordinal:      ordinal,
			CompositeKey: fmt.Sprintf("%s-%d", sourceID, ordinal),
			BodyText:     body,
		}

		header := firstLine(body)
		header = strings.TrimSpace(formerlyAside.ReplaceAllString(header, ""))

		block.Tickers = extractTickers(header, body)
		if company := extractCompany(header); company != "" {
			block.Company = &company
		}
		if bt := extractBulletinType(body); bt != "" {
			block.BulletinType = &bt
		}
		if raw := textnorm.ExtractField(body, dateLabels); raw != nil {
			block.BulletinDate = textnorm.NormalizeDate(*raw)
		}
		block.Tier = extractTier(body)

		blocks = append(blocks, block)
	}
	return blocks
}

// normalizeText unifies line endings, swaps typographic quotes and
// non-breaking spaces for their ASCII forms, and collapses intra-line
// whitespace runs while preserving line breaks.
func normalizeText(raw string) string {
	r := strings.NewReplacer(
		"\r\n", "\n",
		"\r", "\n",
		" ", " ",
		"“", `"`,
		"”", `"`,
		"’", "'",
	)
	lines := strings.Split(r.Replace(raw), "\n")
	for i, line := range lines {
		lines[i] = textnorm.CollapseSpace(line)
	}
	return strings.Join(lines, "\n")
}

func firstLine(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

// extractTickers pulls every double-quoted symbol-shaped token from the
// header. Older bulletins carry a parenthesized "(ABC)" or "(TSXV: ABC)"
// suffix instead, and the oldest put the symbol only somewhere in the body,
// so those are tried in turn when the header yields nothing.
func extractTickers(header, body string) []string {
	var tickers []string
	for _, m := range quotedTicker.FindAllStringSubmatch(header, -1) {
		tickers = append(tickers, m[1])
	}
	if len(tickers) > 0 {
		return tickers
	}
	if m := parenTicker.FindStringSubmatch(header); m != nil {
		return []string{m[1]}
	}
	if m := quotedTicker.FindStringSubmatch(body); m != nil {
		return []string{m[1]}
	}
	if m := parenTicker.FindStringSubmatch(body); m != nil {
		return []string{m[1]}
	}
	return nil
}

// extractCompany takes the header text before the first quote, or the header
// line minus any legacy "(ABC)" suffix when no quote exists.
func extractCompany(header string) string {
	name := header
	if i := strings.IndexByte(header, '"'); i >= 0 {
		name = header[:i]
	} else {
		name = parenTicker.ReplaceAllString(name, "")
	}
	return strings.Trim(textnorm.CollapseSpace(name), " ,(-")
}

// extractBulletinType returns the text following a BULLETIN TYPE: / NOTICE
// TYPE: label, continuing over wrapped lines until the next all-caps label
// line or a blank line.
func extractBulletinType(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		m := typeLabel.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		parts := []string{strings.TrimSpace(m[1])}
		for _, next := range lines[i+1:] {
			next = strings.TrimSpace(next)
			if next == "" || allCapsLabel.MatchString(next) {
				break
			}
			parts = append(parts, next)
		}
		return textnorm.CollapseSpace(strings.Join(parts, " "))
	}
	return ""
}

// extractTier classifies known tier phrasing anywhere in the body and falls
// back to whatever a TIER: label says, verbatim.
func extractTier(body string) *string {
	if m := tierPhrase.FindStringSubmatch(body); m != nil {
		tier := "Tier " + m[1]
		return &tier
	}
	if nexPhrase.MatchString(body) {
		tier := "NEX"
		return &tier
	}
	return textnorm.ExtractField(body, []string{"TIER"})
}
