package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jumine/cpc-pipeline/internal/bulletin"
)

// EventRepo persists halt/resume/filing/circular event rows.
type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Upsert writes event rows keyed by event composite key.
func (r *EventRepo) Upsert(ctx context.Context, rows []bulletin.EventRow) error {
	for _, row := range rows {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO cpc_events
				(cpc_birth_id, event_composite_key, event_type, bulletin_date,
				 event_effective_date, event_effective_time, event_effective_text,
				 event_summary, event_body_raw, parse_version, source_hash, parsed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (event_composite_key) DO UPDATE SET
				cpc_birth_id = EXCLUDED.cpc_birth_id,
				event_type = EXCLUDED.event_type,
				bulletin_date = EXCLUDED.bulletin_date,
				event_effective_date = EXCLUDED.event_effective_date,
				event_effective_time = EXCLUDED.event_effective_time,
				event_effective_text = EXCLUDED.event_effective_text,
				event_summary = EXCLUDED.event_summary,
				event_body_raw = EXCLUDED.event_body_raw,
				parse_version = EXCLUDED.parse_version,
				source_hash = EXCLUDED.source_hash,
				parsed_at = EXCLUDED.parsed_at
		`, row.BirthID, row.EventCompositeKey, row.EventType, row.BulletinDate,
			row.EffectiveDate, row.EffectiveTime, row.EffectiveText,
			row.Summary, row.BodyRaw, row.ParseVersion, row.SourceHash, row.ParsedAt)
		if err != nil {
			return fmt.Errorf("upsert event %s: %w", row.EventCompositeKey, err)
		}
	}
	return nil
}

// List returns event rows newest first for the API.
func (r *EventRepo) List(ctx context.Context, eventType string, limit, offset int) ([]bulletin.EventRow, int, error) {
	if limit <= 0 {
		limit = 50
	}

	countQ := `SELECT COUNT(*) FROM cpc_events`
	countArgs := []interface{}{}
	if eventType != "" {
		countQ += ` WHERE event_type = $1`
		countArgs = append(countArgs, eventType)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	q := `
		SELECT cpc_birth_id, event_composite_key, event_type, bulletin_date,
		       event_effective_date, event_effective_time, event_effective_text,
		       event_summary, parse_version
		FROM cpc_events`
	args := []interface{}{}
	idx := 1
	if eventType != "" {
		q += fmt.Sprintf(" WHERE event_type = $%d", idx)
		args = append(args, eventType)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY event_effective_date DESC NULLS LAST, event_composite_key LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []bulletin.EventRow
	for rows.Next() {
		var row bulletin.EventRow
		if err := rows.Scan(
			&row.BirthID, &row.EventCompositeKey, &row.EventType, &row.BulletinDate,
			&row.EffectiveDate, &row.EffectiveTime, &row.EffectiveText,
			&row.Summary, &row.ParseVersion,
		); err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}
