// Package textnorm holds the stateless value normalizers shared by every
// bulletin extractor. All functions are pure: the same input always produces
// the same output, and failure to parse is reported as a nil pointer, never
// an error. The bulletin corpus is irregular prose and a missed value is
// normal operation, not a fault.
package textnorm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order; first successful parse wins.
// Unpadded layouts accept both "9" and "09" components.
var dateLayouts = []string{
	"2006-1-2",
	"2-1-2006",
	"2006/1/2",
	"2/1/2006",
	"2-Jan-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"20060102",
}

var (
	spaceRun     = regexp.MustCompile(`\s+`)
	gluedYear    = regexp.MustCompile(`,(\d{4})`)
	numericRun   = regexp.MustCompile(`[-+]?[0-9][0-9,]*\.?[0-9]*`)
	digitRun     = regexp.MustCompile(`[0-9][0-9,]*`)
	pricePerUnit = regexp.MustCompile(`(?i)\$\s*([0-9][0-9,]*\.?[0-9]*)\s*(?:per|/)\s*(?:common\s+)?(?:share|unit)`)
	monthsRun    = regexp.MustCompile(`(?i)([0-9]{1,3})\s*month`)
)

// CollapseSpace squeezes every whitespace run, line breaks included, into a
// single space and trims the ends.
func CollapseSpace(value string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(value, " "))
}

// NormalizeDate parses a free-form bulletin date into ISO YYYY-MM-DD.
// A comma glued to the year ("September 26,2008") is repaired before
// parsing. Returns nil when no known layout matches.
func NormalizeDate(raw string) *string {
	text := CollapseSpace(raw)
	if text == "" {
		return nil
	}
	text = gluedYear.ReplaceAllString(text, ", $1")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			iso := t.Format("2006-01-02")
			return &iso
		}
	}
	return nil
}

// ParseNumericValue extracts the first number from a monetary or numeric
// phrase ("$305,060.00" -> 305060.0). Thousands separators are discarded.
func ParseNumericValue(text string) *float64 {
	m := numericRun.FindString(text)
	if m == "" {
		return nil
	}
	cleaned := strings.ReplaceAll(m, ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseIntegerValue extracts the first digit run as an integer
// ("3,050,600 common shares" -> 3050600). Share and option counts go through
// here rather than a float parse so comma-grouped figures never lose digits.
func ParseIntegerValue(text string) *int64 {
	m := digitRun.FindString(text)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(m, ",", ""), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseCurrencyClass classifies the currency or unit label of a monetary
// phrase. Explicit CAD/USD markers win; a bare dollar sign is taken as CAD
// (exchange bulletins quote in Canadian dollars unless marked). Without any
// currency marker, the text following the first numeric run is returned as a
// generic class label ("3,050,600 common shares" -> "common shares").
func ParseCurrencyClass(text string) *string {
	if CollapseSpace(text) == "" {
		return nil
	}
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "CAD") || strings.Contains(upper, "C$"):
		return strptr("CAD")
	case strings.Contains(upper, "USD") || strings.Contains(upper, "US$") || strings.Contains(upper, "U$"):
		return strptr("USD")
	case strings.Contains(text, "$"):
		return strptr("CAD")
	}
	loc := digitRun.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	rest := CollapseSpace(text[loc[1]:])
	if rest == "" {
		return nil
	}
	return &rest
}

// ExtractPricePerShare finds a dollar amount qualified by "per share" (or
// "per unit") and returns it as a float.
func ExtractPricePerShare(text string) *float64 {
	m := pricePerUnit.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

// ExtractMonths finds an integer qualified by "month"/"months" and returns it.
func ExtractMonths(text string) *int64 {
	m := monthsRun.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func strptr(s string) *string { return &s }
