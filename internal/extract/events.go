package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jumine/cpc-pipeline/internal/bulletin"
	"github.com/jumine/cpc-pipeline/internal/textnorm"
)

// BirthResolver finds the listing record a later event bulletin belongs to.
// A nil id with a nil error means no candidate matched; whether that is
// fatal is decided per category.
type BirthResolver interface {
	Resolve(ctx context.Context, company, ticker string) (*string, error)
}

// effectiveFields is what a category's pattern rules recover from the body.
type effectiveFields struct {
	dateISO *string
	timeVal *string
	text    *string
}

// Rule is one category's grammar: which canonical types it claims, the
// patterns that recover the effective date/time/text, which fields are
// mandatory, and the summary sentence. Categories are added by data, not by
// new control flow.
type Rule struct {
	parseVersion    string
	typeNeedle      string
	eventType       func(rec bulletin.CanonicalRecord) string
	resolveRequired bool
	dateRequired    bool
	effective       func(body string) effectiveFields
	summary         func(body string, eff effectiveFields) string
}

var (
	haltEffective   = regexp.MustCompile(`(?is)Effective\s+at\s+(.+?),\s*([A-Za-z]+\s+\d{1,2},\s*\d{4})`)
	haltAtRequest   = regexp.MustCompile(`(?i)at\s+the\s+request\s+of\s+the\s+Company`)
	resumeWithDay   = regexp.MustCompile(`(?is)effective\s+at\s+the\s+opening\s+([A-Za-z]+)\s*,\s*([A-Za-z]+\s+\d{1,2},\s*\d{4})`)
	resumeNoDay     = regexp.MustCompile(`(?is)effective\s+at\s+the\s+opening\s+([A-Za-z]+\s+\d{1,2},\s*\d{4})`)
	datedAnywhere   = regexp.MustCompile(`(?im)\bdated\s+([A-Za-z]+\s+\d{1,2},\s*\d{4})\b`)
	circularDated   = regexp.MustCompile(`(?i)cpc\s+information\s+circular\s+dated\s+([A-Za-z]{3,9}\s+\d{1,2},\s+\d{4})`)
	circularPurpose = regexp.MustCompile(`(?is)for\s+the\s+purpose\s+of\s+(.+?)(?:\.\s|$)`)
)

// HaltRule matches trading-halt bulletins. The effective clause reads
// "Effective at 12:09 p.m. PST, September 26, 2008"; the summary depends on
// whether the halt was at the company's request. Needs a resolved entity.
var HaltRule = Rule{
	parseVersion: "events_halt_v1",
	typeNeedle:   "HALT",
	eventType: func(rec bulletin.CanonicalRecord) string {
		if t := textnorm.CollapseSpace(rec.CanonicalType); t != "" {
			return t
		}
		return "HALT"
	},
	resolveRequired: true,
	effective: func(body string) effectiveFields {
		m := haltEffective.FindStringSubmatch(body)
		if m == nil {
			return effectiveFields{}
		}
		timeVal := textnorm.CollapseSpace(m[1])
		dateText := textnorm.CollapseSpace(m[2])
		text := timeVal + ", " + dateText
		return effectiveFields{
			dateISO: textnorm.NormalizeDate(dateText),
			timeVal: &timeVal,
			text:    &text,
		}
	},
	summary: func(body string, _ effectiveFields) string {
		if haltAtRequest.MatchString(body) {
			return "Trading halted at the request of the Company, pending an announcement."
		}
		return "Trading halted pending an announcement."
	},
}

// ResumeTradingRule matches resume-trading bulletins. The effective clause
// reads "effective at the opening Monday, December 24, 2008", with a
// fallback that omits the weekday; effective time is always the literal
// "opening" on a match. Needs a resolved entity.
var ResumeTradingRule = Rule{
	parseVersion:    "events_resume_trading_v1",
	typeNeedle:      "RESUME TRADING",
	eventType:       func(bulletin.CanonicalRecord) string { return "RESUME_TRADING" },
	resolveRequired: true,
	effective: func(body string) effectiveFields {
		opening := "opening"
		if m := resumeWithDay.FindStringSubmatch(body); m != nil {
			weekday := textnorm.CollapseSpace(m[1])
			dateText := textnorm.CollapseSpace(m[2])
			text := "opening " + weekday + ", " + dateText
			return effectiveFields{
				dateISO: textnorm.NormalizeDate(dateText),
				timeVal: &opening,
				text:    &text,
			}
		}
		if m := resumeNoDay.FindStringSubmatch(body); m != nil {
			dateText := textnorm.CollapseSpace(m[1])
			text := "opening " + dateText
			return effectiveFields{
				dateISO: textnorm.NormalizeDate(dateText),
				timeVal: &opening,
				text:    &text,
			}
		}
		return effectiveFields{}
	},
	summary: func(string, effectiveFields) string {
		return "Trading resumed in the common shares of the Company."
	},
}

// FilingStatementRule matches CPC filing-statement bulletins. The first
// "dated <Month> <day>, <year>" anywhere in the body is the effective date;
// without one the row is worthless, so the record is rejected. A missing
// entity resolution is tolerated.
var FilingStatementRule = Rule{
	parseVersion: "cpc_filing_statement_v1",
	typeNeedle:   "FILING STATEMENT",
	eventType: func(rec bulletin.CanonicalRecord) string {
		if t := textnorm.CollapseSpace(rec.CanonicalType); t != "" {
			return t
		}
		return "CPC-FILING STATEMENT"
	},
	dateRequired: true,
	effective: func(body string) effectiveFields {
		m := datedAnywhere.FindStringSubmatch(strings.ReplaceAll(body, "\r", ""))
		if m == nil {
			return effectiveFields{}
		}
		return effectiveFields{dateISO: textnorm.NormalizeDate(m[1])}
	},
	summary: func(string, effectiveFields) string {
		return "Exchange accepted for filing the Company's CPC Filing Statement."
	},
}

// InformationCircularRule matches CPC information-circular bulletins. The
// circular date and a "for the purpose of ..." clause (truncated at the
// first sentence boundary) are best-effort, but the owning entity is not:
// without one the summary is meaningless and the record is rejected.
var InformationCircularRule = Rule{
	parseVersion:    "cpc_events_information_circular_v1",
	typeNeedle:      "INFORMATION CIRCULAR",
	eventType:       func(bulletin.CanonicalRecord) string { return "INFORMATION_CIRCULAR" },
	resolveRequired: true,
	effective: func(body string) effectiveFields {
		var fields effectiveFields
		if m := circularDated.FindStringSubmatch(body); m != nil {
			fields.dateISO = textnorm.NormalizeDate(m[1])
		}
		if m := circularPurpose.FindStringSubmatch(body); m != nil {
			purpose := strings.TrimRight(textnorm.CollapseSpace(m[1]), ".")
			if purpose != "" {
				fields.text = &purpose
			}
		}
		return fields
	},
	summary: func(_ string, eff effectiveFields) string {
		if eff.dateISO != nil {
			return fmt.Sprintf("CPC Information Circular accepted for filing (circular dated %s).", *eff.dateISO)
		}
		return "CPC Information Circular accepted for filing."
	},
}

// EventExtractor runs one category rule over classified records.
type EventExtractor struct {
	rule     Rule
	resolver BirthResolver
	now      Clock
}

func NewEventExtractor(rule Rule, resolver BirthResolver) *EventExtractor {
	return &EventExtractor{rule: rule, resolver: resolver, now: time.Now}
}

// WithClock pins the extraction timestamp; used by tests.
func (e *EventExtractor) WithClock(now Clock) *EventExtractor {
	e.now = now
	return e
}

// ParseVersion reports the version tag stamped on emitted rows.
func (e *EventExtractor) ParseVersion() string { return e.rule.parseVersion }

// Extract applies the category rule to one record. Records of other
// categories come back OutcomeNotApplicable; records missing a mandatory
// field or (where required) a resolvable entity come back OutcomeIncomplete.
// Only resolver failures and contract violations return an error.
func (e *EventExtractor) Extract(ctx context.Context, rec bulletin.CanonicalRecord) (*bulletin.EventRow, Outcome, error) {
	if err := checkRecord(rec); err != nil {
		return nil, OutcomeError, err
	}
	if !strings.Contains(strings.ToUpper(rec.CanonicalType), e.rule.typeNeedle) {
		return nil, OutcomeNotApplicable, nil
	}

	eff := e.rule.effective(rec.BodyText)
	if e.rule.dateRequired && eff.dateISO == nil {
		return nil, OutcomeIncomplete, nil
	}

	birthID, err := e.resolver.Resolve(ctx, rec.Company, rec.Ticker)
	if err != nil {
		return nil, OutcomeError, fmt.Errorf("resolving birth entity for %s: %w", rec.CompositeKey, err)
	}
	if e.rule.resolveRequired && birthID == nil {
		return nil, OutcomeIncomplete, nil
	}

	effectiveDate := eff.dateISO
	if effectiveDate == nil {
		effectiveDate = rec.BulletinDate
	}

	row := &bulletin.EventRow{
		BirthID:           birthID,
		EventCompositeKey: rec.CompositeKey,
		EventType:         e.rule.eventType(rec),
		BulletinDate:      rec.BulletinDate,
		EffectiveDate:     effectiveDate,
		EffectiveTime:     eff.timeVal,
		EffectiveText:     eff.text,
		Summary:           e.rule.summary(rec.BodyText, eff),
		BodyRaw:           rec.BodyText,
		ParseVersion:      e.rule.parseVersion,
		SourceHash:        sourceHash(rec.BodyText),
		ParsedAt:          e.now().UTC(),
	}
	return row, OutcomeProduced, nil
}
