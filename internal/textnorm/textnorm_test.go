package textnorm

import (
	"strings"
	"testing"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string // "" means nil expected
	}{
		{"long month", "September 26, 2008", "2008-09-26"},
		{"abbreviated month", "Sep 26, 2008", "2008-09-26"},
		{"iso", "2008-09-26", "2008-09-26"},
		{"slash dmy", "26/09/2008", "2008-09-26"},
		{"dash dmy", "26-09-2008", "2008-09-26"},
		{"day-abbrev-year", "26-Sep-2008", "2008-09-26"},
		{"compact iso", "20080926", "2008-09-26"},
		{"glued comma year", "September 26,2008", "2008-09-26"},
		{"extra spaces", "  September   26,  2008 ", "2008-09-26"},
		{"month day no year", "December 24", ""},
		{"garbage", "to be announced", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDate(tt.in)
			if tt.want == "" {
				if got != nil {
					t.Errorf("NormalizeDate(%q) = %q, want nil", tt.in, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("NormalizeDate(%q) = %v, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Whitespace runs must never change the outcome of date normalization.
func TestNormalizeDateWhitespaceInvariant(t *testing.T) {
	inputs := []string{"September 26, 2008", "26-Sep-2008", "not a date"}
	for _, in := range inputs {
		padded := strings.ReplaceAll(in, " ", "   ")
		a, b := NormalizeDate(in), NormalizeDate("  "+padded+"  ")
		switch {
		case a == nil && b == nil:
		case a != nil && b != nil && *a == *b:
		default:
			t.Errorf("NormalizeDate not whitespace-invariant for %q: %v vs %v", in, a, b)
		}
	}
}

func TestParseNumericValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$305,060", 305060, true},
		{"$305,060.00", 305060, true},
		{"$0.10 per share", 0.10, true},
		{"roughly 1,234.5 dollars", 1234.5, true},
		{"no numbers here", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got := ParseNumericValue(tt.in)
		if !tt.ok {
			if got != nil {
				t.Errorf("ParseNumericValue(%q) = %v, want nil", tt.in, *got)
			}
			continue
		}
		if got == nil || *got != tt.want {
			t.Errorf("ParseNumericValue(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseIntegerValue(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"3,050,600 common shares", 3050600, true},
		{"5,390,600", 5390600, true},
		{"100 options", 100, true},
		{"none", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got := ParseIntegerValue(tt.in)
		if !tt.ok {
			if got != nil {
				t.Errorf("ParseIntegerValue(%q) = %v, want nil", tt.in, *got)
			}
			continue
		}
		if got == nil || *got != tt.want {
			t.Errorf("ParseIntegerValue(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseCurrencyClass(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CAD 305,060", "CAD"},
		{"C$305,060", "CAD"},
		{"US$1,000", "USD"},
		{"USD 1,000", "USD"},
		{"$305,060", "CAD"},
		{"3,050,600 common shares", "common shares"},
		{"no value", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got := ParseCurrencyClass(tt.in)
		if tt.want == "" {
			if got != nil {
				t.Errorf("ParseCurrencyClass(%q) = %q, want nil", tt.in, *got)
			}
			continue
		}
		if got == nil || *got != tt.want {
			t.Errorf("ParseCurrencyClass(%q) = %v, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractPricePerShare(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"at $0.10 per share", 0.10, true},
		{"at $1,000.50 per unit", 1000.50, true},
		{"$0.15/share", 0.15, true},
		{"$0.20 per common share", 0.20, true},
		{"$500,000 raised", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got := ExtractPricePerShare(tt.in)
		if !tt.ok {
			if got != nil {
				t.Errorf("ExtractPricePerShare(%q) = %v, want nil", tt.in, *got)
			}
			continue
		}
		if got == nil || *got != tt.want {
			t.Errorf("ExtractPricePerShare(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestExtractMonths(t *testing.T) {
	if got := ExtractMonths("exercisable for 24 months"); got == nil || *got != 24 {
		t.Errorf("ExtractMonths = %v, want 24", got)
	}
	if got := ExtractMonths("for a period of 1 month"); got == nil || *got != 1 {
		t.Errorf("ExtractMonths = %v, want 1", got)
	}
	if got := ExtractMonths("no duration given"); got != nil {
		t.Errorf("ExtractMonths = %v, want nil", *got)
	}
}

func TestExtractField(t *testing.T) {
	body := "Corporate Jurisdiction: British Columbia\n" +
		"Transfer Agent:  Computershare   Investor Services Inc.\n" +
		"Capitalization – 5,390,600 common shares\n" +
		"Empty Label:\n"

	tests := []struct {
		name   string
		labels []string
		want   string
	}{
		{"simple colon", []string{"Corporate Jurisdiction"}, "British Columbia"},
		{"whitespace collapsed", []string{"Transfer Agent"}, "Computershare Investor Services Inc."},
		{"en dash separator", []string{"Capitalization"}, "5,390,600 common shares"},
		{"synonym priority", []string{"Incorporation", "Corporate Jurisdiction"}, "British Columbia"},
		{"case insensitive", []string{"transfer agent"}, "Computershare Investor Services Inc."},
		{"missing label", []string{"CUSIP Number"}, ""},
		{"empty value", []string{"Empty Label"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractField(body, tt.labels)
			if tt.want == "" {
				if got != nil {
					t.Errorf("ExtractField(%v) = %q, want nil", tt.labels, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("ExtractField(%v) = %v, want %q", tt.labels, got, tt.want)
			}
		})
	}
}

// Labels must match literally, not as patterns.
func TestExtractFieldLiteralLabel(t *testing.T) {
	body := "Agent's Options: none\n"
	if got := ExtractField(body, []string{"Agent's Options"}); got == nil || *got != "none" {
		t.Errorf("ExtractField literal label = %v, want %q", got, "none")
	}
	if got := ExtractField("Agentzs Options: yes\n", []string{"Agent.s Options"}); got != nil {
		t.Errorf("label treated as pattern: matched %q", *got)
	}
}
