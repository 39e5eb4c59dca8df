package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/jumine/cpc-pipeline/internal/bulletin"
	"github.com/jumine/cpc-pipeline/internal/resolver"
)

// BirthRepo persists CPC listing rows and serves as the birth directory the
// entity resolver queries.
type BirthRepo struct{ db *sql.DB }

func NewBirthRepo(db *sql.DB) *BirthRepo { return &BirthRepo{db: db} }

// Upsert writes listing rows keyed by composite key, so re-running a parse
// merges into the same birth records.
func (r *BirthRepo) Upsert(ctx context.Context, rows []bulletin.ListingRow) error {
	for _, row := range rows {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO cpc_birth
				(id, company_name, ticker, composite_key, canonical_type,
				 bulletin_date, tier,
				 prospectus_date, prospectus_date_iso,
				 effective_date, effective_date_iso,
				 commence_date, commence_date_iso,
				 corporate_jurisdiction,
				 gross_proceeds, gross_proceeds_value, gross_proceeds_class,
				 gross_proceeds_class_volume, gross_proceeds_volume_value,
				 gross_proceeds_value_per_share,
				 capitalization, capitalization_volume, capitalization_volume_value,
				 capitalization_class,
				 escrowed_shares, escrowed_shares_value, escrowed_shares_class,
				 transfer_agent, trading_symbol, cusip_number, sponsoring_member, agent,
				 agent_option, agent_option_value, agent_option_class,
				 agent_option_price_per_share, agents_options_duration_months,
				 parse_version, source_hash, parsed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
				$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27,
				$28, $29, $30, $31, $32, $33, $34, $35, $36, $37, $38, $39, $40)
			ON CONFLICT (composite_key) DO UPDATE SET
				company_name = EXCLUDED.company_name,
				ticker = EXCLUDED.ticker,
				canonical_type = EXCLUDED.canonical_type,
				bulletin_date = EXCLUDED.bulletin_date,
				tier = EXCLUDED.tier,
				prospectus_date = EXCLUDED.prospectus_date,
				prospectus_date_iso = EXCLUDED.prospectus_date_iso,
				effective_date = EXCLUDED.effective_date,
				effective_date_iso = EXCLUDED.effective_date_iso,
				commence_date = EXCLUDED.commence_date,
				commence_date_iso = EXCLUDED.commence_date_iso,
				corporate_jurisdiction = EXCLUDED.corporate_jurisdiction,
				gross_proceeds = EXCLUDED.gross_proceeds,
				gross_proceeds_value = EXCLUDED.gross_proceeds_value,
				gross_proceeds_class = EXCLUDED.gross_proceeds_class,
				gross_proceeds_class_volume = EXCLUDED.gross_proceeds_class_volume,
				gross_proceeds_volume_value = EXCLUDED.gross_proceeds_volume_value,
				gross_proceeds_value_per_share = EXCLUDED.gross_proceeds_value_per_share,
				capitalization = EXCLUDED.capitalization,
				capitalization_volume = EXCLUDED.capitalization_volume,
				capitalization_volume_value = EXCLUDED.capitalization_volume_value,
				capitalization_class = EXCLUDED.capitalization_class,
				escrowed_shares = EXCLUDED.escrowed_shares,
				escrowed_shares_value = EXCLUDED.escrowed_shares_value,
				escrowed_shares_class = EXCLUDED.escrowed_shares_class,
				transfer_agent = EXCLUDED.transfer_agent,
				trading_symbol = EXCLUDED.trading_symbol,
				cusip_number = EXCLUDED.cusip_number,
				sponsoring_member = EXCLUDED.sponsoring_member,
				agent = EXCLUDED.agent,
				agent_option = EXCLUDED.agent_option,
				agent_option_value = EXCLUDED.agent_option_value,
				agent_option_class = EXCLUDED.agent_option_class,
				agent_option_price_per_share = EXCLUDED.agent_option_price_per_share,
				agents_options_duration_months = EXCLUDED.agents_options_duration_months,
				parse_version = EXCLUDED.parse_version,
				source_hash = EXCLUDED.source_hash,
				parsed_at = EXCLUDED.parsed_at
		`, uuid.New().String(), row.CompanyName, row.Ticker, row.CompositeKey,
			row.CanonicalType, row.BulletinDate, row.Tier,
			row.ProspectusDate, row.ProspectusDateISO,
			row.EffectiveDate, row.EffectiveDateISO,
			row.CommenceDate, row.CommenceDateISO,
			row.CorporateJurisdiction,
			row.GrossProceeds, row.GrossProceedsValue, row.GrossProceedsClass,
			row.GrossProceedsClassVolume, row.GrossProceedsVolumeValue,
			row.GrossProceedsValuePerShare,
			row.Capitalization, row.CapitalizationVolume, row.CapitalizationVolumeValue,
			row.CapitalizationClass,
			row.EscrowedShares, row.EscrowedSharesValue, row.EscrowedSharesClass,
			row.TransferAgent, row.TradingSymbol, row.CUSIPNumber,
			row.SponsoringMember, row.Agent,
			row.AgentOption, row.AgentOptionValue, row.AgentOptionClass,
			row.AgentOptionPricePerShare, row.AgentOptionDurationMonths,
			row.ParseVersion, row.SourceHash, row.ParsedAt)
		if err != nil {
			return fmt.Errorf("upsert birth %s: %w", row.CompositeKey, err)
		}
	}
	return nil
}

const candidateSelect = `SELECT id, COALESCE(company_name,''), COALESCE(ticker,''), bulletin_date FROM cpc_birth`

func (r *BirthRepo) FindByTicker(ctx context.Context, ticker string) ([]resolver.Candidate, error) {
	return r.candidates(ctx, candidateSelect+` WHERE UPPER(ticker) = $1`, ticker)
}

func (r *BirthRepo) FindByCompanyTicker(ctx context.Context, company, ticker string) ([]resolver.Candidate, error) {
	return r.candidates(ctx, candidateSelect+` WHERE UPPER(company_name) = $1 AND UPPER(ticker) = $2`, company, ticker)
}

func (r *BirthRepo) FindByCompanyLike(ctx context.Context, company string) ([]resolver.Candidate, error) {
	return r.candidates(ctx, candidateSelect+` WHERE company_name ILIKE $1`, "%"+company+"%")
}

func (r *BirthRepo) candidates(ctx context.Context, q string, args ...interface{}) ([]resolver.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query birth candidates: %w", err)
	}
	defer rows.Close()

	var out []resolver.Candidate
	for rows.Next() {
		var c resolver.Candidate
		if err := rows.Scan(&c.ID, &c.CompanyName, &c.Ticker, &c.BulletinDate); err != nil {
			return nil, fmt.Errorf("scan birth candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// List returns listing rows newest first for the API.
func (r *BirthRepo) List(ctx context.Context, limit, offset int) ([]bulletin.ListingRow, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cpc_birth`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count births: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT company_name, ticker, composite_key, canonical_type, bulletin_date,
		       tier, prospectus_date_iso, effective_date_iso, commence_date_iso,
		       gross_proceeds_value, capitalization_volume, parse_version
		FROM cpc_birth
		ORDER BY bulletin_date DESC NULLS LAST, composite_key
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list births: %w", err)
	}
	defer rows.Close()

	var out []bulletin.ListingRow
	for rows.Next() {
		var row bulletin.ListingRow
		if err := rows.Scan(
			&row.CompanyName, &row.Ticker, &row.CompositeKey, &row.CanonicalType,
			&row.BulletinDate, &row.Tier, &row.ProspectusDateISO,
			&row.EffectiveDateISO, &row.CommenceDateISO,
			&row.GrossProceedsValue, &row.CapitalizationVolume, &row.ParseVersion,
		); err != nil {
			return nil, 0, fmt.Errorf("scan birth: %w", err)
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}
