package extract

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jumine/cpc-pipeline/internal/bulletin"
	"github.com/jumine/cpc-pipeline/internal/textnorm"
)

// ListingParseVersion tags every row the listing extractor emits.
const ListingParseVersion = "cpc_birth_unico_v1"

const listingType = "NEW LISTING-CPC-SHARES"

var titleCaser = cases.Title(language.English)

var (
	prospectusDated = regexp.MustCompile(`(?is)prospectus(?:.*?)\s+dated\s+([A-Za-z]+\s+\d{1,2},\s*\d{4})`)
	effectiveDate   = regexp.MustCompile(`(?i)effective\s+([A-Za-z]+\s+\d{1,2},\s*\d{4})`)
	commenceLine    = regexp.MustCompile(`(?im)^\s*Commence Date:(.*)$`)

	// commence-date fallbacks, tried in order: weekday-prefixed full date,
	// bare full date, month+day with no year (the year-less capture keeps the
	// raw text; its ISO form stays nil).
	commenceWithDay = regexp.MustCompile(`(?i)(?:on\s+)?(?:Mon|Tues|Tue|Wed|Thu|Thur|Fri|Sat|Sun|Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)\s*,?\s*([A-Za-z]+\s+\d{1,2}(?:,\s*\d{4}| \d{4}))`)
	commenceFull    = regexp.MustCompile(`(?i)([A-Za-z]+\s+\d{1,2}(?:,\s*\d{4}| \d{4}))`)
	commenceNoYear  = regexp.MustCompile(`(?i)([A-Za-z]+\s+\d{1,2})`)

	grossProceedsRe = regexp.MustCompile(`(?is)gross proceeds.*?(?:were|was)\s*(\$\s?[\d,]+(?:\.\d{2})?)`)
	sharesAtPrice   = regexp.MustCompile(`(?is)\(([\d,]+)\s+common shares at \$?([\d.]+)\s+per share\)`)
	issuedOutstand  = regexp.MustCompile(`(?i)([\d,]+)\s+common shares are issued and outstanding`)

	transferAgentLn = regexp.MustCompile(`(?im)^\s*Transfer Agent:\s*(.+)$`)
	trailingParen   = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
	tradingSymbolLn = regexp.MustCompile(`(?im)^\s*Trading Symbol:\s*([A-Z0-9.-]+)`)
	cusipLn         = regexp.MustCompile(`(?im)^\s*CUSIP Number:\s*([A-Z0-9 ]+)`)
	sponsoringLn    = regexp.MustCompile(`(?im)^\s*Sponsoring Member:\s*(.+)$`)
	agentLn         = regexp.MustCompile(`(?im)^\s*Agent:\s*(.+)$`)

	optionsNone  = regexp.MustCompile(`(?i)Agent's Options:\s*none`)
	optionsBlock = regexp.MustCompile(`(?is)Agent's Options:\s*(.+?)(?:\n\n|$)`)
	optionQty    = regexp.MustCompile(`(?i)([\d,]+)\s+(?:non[ -]?transferable|transferable)\s+(?:stock options|options|Agent's Options)`)
	optionClass  = regexp.MustCompile(`(?i)\b((?:non[ -]?transferable|transferable)\s+(?:stock options|options|Agent's Options))`)
	optionPrice  = regexp.MustCompile(`(?i)(?:one|each)\s+(?:common\s+)?share\s+(?:at an exercise price of|exercisable at|at)\s*\$([\d.]+)\s+per\s+(?:common\s+)?share`)
	optionMonths = regexp.MustCompile(`(?i)(?:for a period of|for up to|exercisable for|for|up to)(?:\s+a\s+period\s+of)?\s+(\d{1,3})\s*months?`)
)

// ListingExtractor builds one ListingRow per CPC birth bulletin. It accepts
// only records classified NEW LISTING-CPC-SHARES with the single-class
// ("Unico") sub-classification; everything else is OutcomeNotApplicable.
type ListingExtractor struct {
	Now Clock
}

func NewListingExtractor() *ListingExtractor {
	return &ListingExtractor{Now: time.Now}
}

// Extract parses one classified record into a listing row. Every sub-field
// is independently optional: a missing value leaves its pointer nil and
// never blocks extraction of the others.
func (e *ListingExtractor) Extract(rec bulletin.CanonicalRecord) (*bulletin.ListingRow, Outcome, error) {
	if err := checkRecord(rec); err != nil {
		return nil, OutcomeError, err
	}
	ctype := strings.ToUpper(rec.CanonicalType)
	cclass := titleCaser.String(strings.ToLower(strings.TrimSpace(rec.CanonicalClass)))
	if !strings.Contains(ctype, listingType) || cclass != "Unico" {
		return nil, OutcomeNotApplicable, nil
	}

	body := rec.BodyText
	row := &bulletin.ListingRow{
		CompositeKey:  rec.CompositeKey,
		CanonicalType: listingType,
		BulletinDate:  rec.BulletinDate,
		ParseVersion:  ListingParseVersion,
		SourceHash:    sourceHash(body),
		ParsedAt:      e.Now().UTC(),
	}
	if name := textnorm.CollapseSpace(rec.Company); name != "" {
		row.CompanyName = &name
	}
	if tk := textnorm.CollapseSpace(rec.Ticker); tk != "" {
		row.Ticker = &tk
	}
	if tier := textnorm.CollapseSpace(rec.Tier); tier != "" {
		row.Tier = &tier
	}

	e.extractDates(body, row)
	e.extractProceeds(body, row)
	e.extractCapitalization(body, row)
	e.extractLabeledFields(body, row)
	e.extractAgentOptions(body, row)

	return row, OutcomeProduced, nil
}

func (e *ListingExtractor) extractDates(body string, row *bulletin.ListingRow) {
	if m := prospectusDated.FindStringSubmatch(body); m != nil {
		raw := textnorm.CollapseSpace(m[1])
		row.ProspectusDate = &raw
		row.ProspectusDateISO = textnorm.NormalizeDate(raw)
	}

	// Multiple "effective <date>" mentions are common; the last one is
	// authoritative.
	if all := effectiveDate.FindAllStringSubmatch(body, -1); len(all) > 0 {
		raw := textnorm.CollapseSpace(all[len(all)-1][1])
		row.EffectiveDate = &raw
		row.EffectiveDateISO = textnorm.NormalizeDate(raw)
	}

	if line := commenceLine.FindStringSubmatch(body); line != nil {
		for _, p := range []*regexp.Regexp{commenceWithDay, commenceFull, commenceNoYear} {
			if m := p.FindStringSubmatch(line[1]); m != nil {
				raw := textnorm.CollapseSpace(m[1])
				row.CommenceDate = &raw
				row.CommenceDateISO = textnorm.NormalizeDate(raw)
				break
			}
		}
	}
}

func (e *ListingExtractor) extractProceeds(body string, row *bulletin.ListingRow) {
	var gross *string
	if m := grossProceedsRe.FindStringSubmatch(body); m != nil {
		g := textnorm.CollapseSpace(m[1])
		gross = &g
		row.GrossProceeds = gross
		row.GrossProceedsValue = textnorm.ParseNumericValue(g)
	}

	// "(N common shares at $P per share)" is the authoritative breakdown when
	// present; the generic currency-class fallback only runs without it.
	if m := sharesAtPrice.FindStringSubmatch(body); m != nil {
		class := "common shares"
		row.GrossProceedsClass = &class
		row.GrossProceedsClassVolume = textnorm.ParseIntegerValue(m[1])
		row.GrossProceedsVolumeValue = textnorm.ParseIntegerValue(m[1])
		row.GrossProceedsValuePerShare = textnorm.ParseNumericValue(m[2])
		return
	}
	if gross != nil {
		row.GrossProceedsClass = textnorm.ParseCurrencyClass(*gross)
		row.GrossProceedsClassVolume = textnorm.ParseIntegerValue(*gross)
		row.GrossProceedsVolumeValue = textnorm.ParseIntegerValue(*gross)
		row.GrossProceedsValuePerShare = textnorm.ExtractPricePerShare(*gross)
	}
}

func (e *ListingExtractor) extractCapitalization(body string, row *bulletin.ListingRow) {
	capitalization := textnorm.ExtractField(body, []string{"Capitalization"})
	row.Capitalization = capitalization

	if m := issuedOutstand.FindStringSubmatch(body); m != nil {
		class := "common shares"
		row.CapitalizationVolume = textnorm.ParseIntegerValue(m[1])
		row.CapitalizationVolumeValue = textnorm.ParseIntegerValue(m[1])
		row.CapitalizationClass = &class
	} else if capitalization != nil {
		row.CapitalizationVolume = textnorm.ParseIntegerValue(*capitalization)
		row.CapitalizationVolumeValue = textnorm.ParseIntegerValue(*capitalization)
		row.CapitalizationClass = textnorm.ParseCurrencyClass(*capitalization)
	}

	if escrow := textnorm.ExtractField(body, []string{"Escrowed Shares"}); escrow != nil {
		row.EscrowedShares = escrow
		row.EscrowedSharesValue = textnorm.ParseIntegerValue(*escrow)
		row.EscrowedSharesClass = textnorm.ParseCurrencyClass(*escrow)
	}
}

func (e *ListingExtractor) extractLabeledFields(body string, row *bulletin.ListingRow) {
	if m := transferAgentLn.FindStringSubmatch(body); m != nil {
		ta := strings.TrimSpace(trailingParen.ReplaceAllString(strings.TrimSpace(m[1]), ""))
		if ta != "" {
			row.TransferAgent = &ta
		}
	}
	if m := tradingSymbolLn.FindStringSubmatch(body); m != nil {
		ts := m[1]
		row.TradingSymbol = &ts
	} else {
		row.TradingSymbol = row.Ticker
	}
	if m := cusipLn.FindStringSubmatch(body); m != nil {
		cu := strings.TrimSpace(m[1])
		row.CUSIPNumber = &cu
	}
	if m := sponsoringLn.FindStringSubmatch(body); m != nil {
		sm := strings.TrimSpace(m[1])
		row.SponsoringMember = &sm
	}
	if m := agentLn.FindStringSubmatch(body); m != nil {
		ag := strings.TrimSpace(m[1])
		row.Agent = &ag
	}
}

// extractAgentOptions mines the bounded text block after the Agent's Options
// label. An explicit "none" sentinel produces a zero-valued row; otherwise
// count, class phrase, exercise price, and duration are extracted
// independently, with the duration falling back to a generic months scan
// over the whole body when the block lacks one.
func (e *ListingExtractor) extractAgentOptions(body string, row *bulletin.ListingRow) {
	if optionsNone.MatchString(body) {
		none := "none"
		zero := int64(0)
		row.AgentOption = &none
		row.AgentOptionValue = &zero
		durZero := int64(0)
		row.AgentOptionDurationMonths = &durZero
		return
	}

	blockMatch := optionsBlock.FindStringSubmatch(body)
	if blockMatch == nil {
		return
	}
	block := blockMatch[1]
	if text := textnorm.CollapseSpace(block); text != "" {
		row.AgentOption = &text
	}

	if m := optionQty.FindStringSubmatch(block); m != nil {
		row.AgentOptionValue = textnorm.ParseIntegerValue(m[1])
	}
	if m := optionClass.FindStringSubmatch(block); m != nil {
		class := strings.TrimSpace(m[1])
		row.AgentOptionClass = &class
	}
	if m := optionPrice.FindStringSubmatch(block); m != nil {
		row.AgentOptionPricePerShare = textnorm.ParseNumericValue(m[1])
	}
	if m := optionMonths.FindStringSubmatch(block); m != nil {
		row.AgentOptionDurationMonths = textnorm.ParseIntegerValue(m[1])
	} else if v := textnorm.ExtractMonths(block); v != nil {
		row.AgentOptionDurationMonths = v
	} else {
		row.AgentOptionDurationMonths = textnorm.ExtractMonths(body)
	}
}
