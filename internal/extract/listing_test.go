package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jumine/cpc-pipeline/internal/bulletin"
)

var fixedClock = func() time.Time {
	return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
}

const birthBody = `ACME CAPITAL CORP. ("ACM.P")
BULLETIN TYPE: New Listing-CPC-Shares
BULLETIN DATE: December 18, 2008
TSX Venture Tier 2 Company

The Company's Capital Pool Company prospectus dated September 26, 2008 has been
filed with and accepted by TSX Venture Exchange and the British Columbia
Securities Commission effective September 26, 2008. The prospectus was declared
effective September 29, 2008.

The gross proceeds received by the Company for the Offering were $305,060
(3,050,600 common shares at $0.10 per share).

Commence Date: At the opening Wednesday, December 24, 2008, the common shares
will commence trading on TSX Venture Exchange.

Corporate Jurisdiction: British Columbia
Capitalization: 5,390,600 common shares are issued and outstanding
Escrowed Shares: 2,340,000 common shares
Transfer Agent: Computershare Investor Services Inc. (Vancouver)
Trading Symbol: ACM.P
CUSIP Number: 004813 10 9
Sponsoring Member: Canaccord Capital Corporation
Agent: Canaccord Capital Corporation

Agent's Options: 305,060 non-transferable stock options. Each option entitles
the Agent to purchase one common share at an exercise price of $0.10 per share
for a period of 24 months from the date of listing.

Company Contact: John Smith`

func listingRecord(body string) bulletin.CanonicalRecord {
	date := "2008-12-18"
	return bulletin.CanonicalRecord{
		ID:             41,
		Company:        "ACME CAPITAL CORP.",
		Ticker:         "ACM.P",
		CompositeKey:   "dump-2008-12-1",
		CanonicalType:  "NEW LISTING-CPC-SHARES",
		CanonicalClass: "unico",
		BulletinDate:   &date,
		Tier:           "Tier 2",
		BodyText:       body,
	}
}

func TestListingExtract(t *testing.T) {
	e := NewListingExtractor()
	e.Now = fixedClock

	row, outcome, err := e.Extract(listingRecord(birthBody))
	require.NoError(t, err)
	require.Equal(t, OutcomeProduced, outcome)
	require.NotNil(t, row)

	assert.Equal(t, "dump-2008-12-1", row.CompositeKey)
	assert.Equal(t, "NEW LISTING-CPC-SHARES", row.CanonicalType)
	require.NotNil(t, row.CompanyName)
	assert.Equal(t, "ACME CAPITAL CORP.", *row.CompanyName)

	require.NotNil(t, row.ProspectusDateISO)
	assert.Equal(t, "2008-09-26", *row.ProspectusDateISO)

	// Two effective-date mentions; the last one is authoritative.
	require.NotNil(t, row.EffectiveDateISO)
	assert.Equal(t, "2008-09-29", *row.EffectiveDateISO)

	require.NotNil(t, row.CommenceDate)
	assert.Equal(t, "December 24, 2008", *row.CommenceDate)
	require.NotNil(t, row.CommenceDateISO)
	assert.Equal(t, "2008-12-24", *row.CommenceDateISO)

	require.NotNil(t, row.GrossProceeds)
	assert.Equal(t, "$305,060", *row.GrossProceeds)
	require.NotNil(t, row.GrossProceedsValue)
	assert.Equal(t, 305060.0, *row.GrossProceedsValue)
	require.NotNil(t, row.GrossProceedsClass)
	assert.Equal(t, "common shares", *row.GrossProceedsClass)
	require.NotNil(t, row.GrossProceedsClassVolume)
	assert.Equal(t, int64(3050600), *row.GrossProceedsClassVolume)
	require.NotNil(t, row.GrossProceedsValuePerShare)
	assert.Equal(t, 0.10, *row.GrossProceedsValuePerShare)

	require.NotNil(t, row.CapitalizationVolume)
	assert.Equal(t, int64(5390600), *row.CapitalizationVolume)
	require.NotNil(t, row.CapitalizationClass)
	assert.Equal(t, "common shares", *row.CapitalizationClass)

	require.NotNil(t, row.EscrowedSharesValue)
	assert.Equal(t, int64(2340000), *row.EscrowedSharesValue)

	require.NotNil(t, row.TransferAgent)
	assert.Equal(t, "Computershare Investor Services Inc.", *row.TransferAgent)
	require.NotNil(t, row.TradingSymbol)
	assert.Equal(t, "ACM.P", *row.TradingSymbol)
	require.NotNil(t, row.CUSIPNumber)
	assert.Equal(t, "004813 10 9", *row.CUSIPNumber)
	require.NotNil(t, row.SponsoringMember)
	assert.Equal(t, "Canaccord Capital Corporation", *row.SponsoringMember)

	require.NotNil(t, row.AgentOptionValue)
	assert.Equal(t, int64(305060), *row.AgentOptionValue)
	require.NotNil(t, row.AgentOptionClass)
	assert.Equal(t, "non-transferable stock options", *row.AgentOptionClass)
	require.NotNil(t, row.AgentOptionPricePerShare)
	assert.Equal(t, 0.10, *row.AgentOptionPricePerShare)
	require.NotNil(t, row.AgentOptionDurationMonths)
	assert.Equal(t, int64(24), *row.AgentOptionDurationMonths)

	assert.Equal(t, ListingParseVersion, row.ParseVersion)
	assert.Len(t, row.SourceHash, 40)
	assert.Equal(t, fixedClock(), row.ParsedAt)
}

func TestListingExtractOptionsNone(t *testing.T) {
	e := NewListingExtractor()
	rec := listingRecord("Some preamble.\nAgent's Options: none\n")

	row, outcome, err := e.Extract(rec)
	require.NoError(t, err)
	require.Equal(t, OutcomeProduced, outcome)

	require.NotNil(t, row.AgentOption)
	assert.Equal(t, "none", *row.AgentOption)
	require.NotNil(t, row.AgentOptionValue)
	assert.Equal(t, int64(0), *row.AgentOptionValue)
	assert.Nil(t, row.AgentOptionClass)
	assert.Nil(t, row.AgentOptionPricePerShare)
	require.NotNil(t, row.AgentOptionDurationMonths)
	assert.Equal(t, int64(0), *row.AgentOptionDurationMonths)
}

func TestListingExtractNotApplicable(t *testing.T) {
	e := NewListingExtractor()

	rec := listingRecord(birthBody)
	rec.CanonicalType = "HALT"
	row, outcome, err := e.Extract(rec)
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.Equal(t, OutcomeNotApplicable, outcome)

	rec = listingRecord(birthBody)
	rec.CanonicalClass = "Duplo"
	row, outcome, err = e.Extract(rec)
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.Equal(t, OutcomeNotApplicable, outcome)
}

// A sparse body still yields a row; missing values stay nil.
func TestListingExtractSparseBody(t *testing.T) {
	e := NewListingExtractor()
	row, outcome, err := e.Extract(listingRecord("ACME CAPITAL CORP.\nnothing parseable here\n"))
	require.NoError(t, err)
	require.Equal(t, OutcomeProduced, outcome)

	assert.Nil(t, row.ProspectusDate)
	assert.Nil(t, row.GrossProceeds)
	assert.Nil(t, row.CapitalizationVolume)
	assert.Nil(t, row.AgentOption)
	// trading symbol falls back to the record's ticker
	require.NotNil(t, row.TradingSymbol)
	assert.Equal(t, "ACM.P", *row.TradingSymbol)
}

func TestListingExtractMalformed(t *testing.T) {
	e := NewListingExtractor()
	rec := listingRecord(birthBody)
	rec.CompositeKey = ""

	row, outcome, err := e.Extract(rec)
	assert.Nil(t, row)
	assert.Equal(t, OutcomeError, outcome)
	require.ErrorIs(t, err, ErrMalformedRecord)
}
