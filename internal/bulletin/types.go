package bulletin

import "time"

// BulletinBlock is one exchange notice carved out of a raw multi-bulletin
// dump. The composite key is derived from the source document and the block's
// 1-based position only, never from content, so re-segmenting the same dump
// is idempotent: the same keys come out and upserts overwrite in place.
type BulletinBlock struct {
	SourceID     string   `json:"source_id"`
	Ordinal      int      `json:"ordinal"`
	CompositeKey string   `json:"composite_key"`
	Company      *string  `json:"company"`
	Tickers      []string `json:"tickers"`
	BulletinType *string  `json:"bulletin_type"`
	BulletinDate *string  `json:"bulletin_date"` // ISO YYYY-MM-DD
	Tier         *string  `json:"tier"`
	BodyText     string   `json:"body_text"`
}

// CanonicalRecord is a bulletin block enriched with the externally assigned
// canonical classification. Extractors read from this shape and route on
// CanonicalType/CanonicalClass; they never mutate it.
type CanonicalRecord struct {
	ID             int64   `json:"id"`
	Company        string  `json:"company"`
	Ticker         string  `json:"ticker"`
	CompositeKey   string  `json:"composite_key"`
	CanonicalType  string  `json:"canonical_type"`
	CanonicalClass string  `json:"canonical_class"`
	BulletinDate   *string `json:"bulletin_date"` // ISO YYYY-MM-DD
	Tier           string  `json:"tier"`
	BodyText       string  `json:"body_text"`
}

// ListingRow is the canonical output of the CPC listing ("Unico") extractor,
// one row per birth bulletin. Every declared field is present; a nil pointer
// means the value was not found in the prose, which is expected steady state.
// Share and option counts are typed int64 — comma-grouped figures like
// "3,050,600" are recovered digit-by-digit, never through a float parse.
type ListingRow struct {
	CompanyName   *string `json:"company_name"`
	Ticker        *string `json:"ticker"`
	CompositeKey  string  `json:"composite_key"`
	CanonicalType string  `json:"canonical_type"`
	BulletinDate  *string `json:"bulletin_date"`
	Tier          *string `json:"tier"`

	ProspectusDate    *string `json:"prospectus_date"`
	ProspectusDateISO *string `json:"prospectus_date_iso"`
	EffectiveDate     *string `json:"effective_date"`
	EffectiveDateISO  *string `json:"effective_date_iso"`
	CommenceDate      *string `json:"commence_date"`
	CommenceDateISO   *string `json:"commence_date_iso"`

	CorporateJurisdiction *string `json:"corporate_jurisdiction"`

	GrossProceeds              *string  `json:"gross_proceeds"`
	GrossProceedsValue         *float64 `json:"gross_proceeds_value"`
	GrossProceedsClass         *string  `json:"gross_proceeds_class"`
	GrossProceedsClassVolume   *int64   `json:"gross_proceeds_class_volume"`
	GrossProceedsVolumeValue   *int64   `json:"gross_proceeds_volume_value"`
	GrossProceedsValuePerShare *float64 `json:"gross_proceeds_value_per_share"`

	Capitalization            *string `json:"capitalization"`
	CapitalizationVolume      *int64  `json:"capitalization_volume"`
	CapitalizationVolumeValue *int64  `json:"capitalization_volume_value"`
	CapitalizationClass       *string `json:"capitalization_class"`

	EscrowedShares      *string `json:"escrowed_shares"`
	EscrowedSharesValue *int64  `json:"escrowed_shares_value"`
	EscrowedSharesClass *string `json:"escrowed_shares_class"`

	TransferAgent    *string `json:"transfer_agent"`
	TradingSymbol    *string `json:"trading_symbol"`
	CUSIPNumber      *string `json:"cusip_number"`
	SponsoringMember *string `json:"sponsoring_member"`
	Agent            *string `json:"agent"`

	AgentOption               *string  `json:"agent_option"`
	AgentOptionValue          *int64   `json:"agent_option_value"`
	AgentOptionClass          *string  `json:"agent_option_class"`
	AgentOptionPricePerShare  *float64 `json:"agent_option_price_per_share"`
	AgentOptionDurationMonths *int64   `json:"agent_option_duration_months"`

	ParseVersion string    `json:"parse_version"`
	SourceHash   string    `json:"source_hash"`
	ParsedAt     time.Time `json:"parsed_at"`
}

// EventRow is the canonical output of the event extractors (halt, resume
// trading, filing statement, information circular). BirthID links the event
// back to the originating listing record; whether a nil BirthID is tolerated
// is category policy, decided by the extractor that built the row.
type EventRow struct {
	BirthID           *string   `json:"birth_id"`
	EventCompositeKey string    `json:"event_composite_key"`
	EventType         string    `json:"event_type"`
	BulletinDate      *string   `json:"bulletin_date"`
	EffectiveDate     *string   `json:"effective_date"` // ISO, falls back to the bulletin date
	EffectiveTime     *string   `json:"effective_time"`
	EffectiveText     *string   `json:"effective_text"`
	Summary           string    `json:"summary"`
	BodyRaw           string    `json:"body_raw"`
	ParseVersion      string    `json:"parse_version"`
	SourceHash        string    `json:"source_hash"`
	ParsedAt          time.Time `json:"parsed_at"`
}
