package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/jumine/cpc-pipeline/internal/bulletin"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// BulletinRepo persists segmented bulletin blocks and drives the
// parser-status state machine (ready -> running -> done|error) that keeps
// every record's disposition unambiguous.
type BulletinRepo struct{ db *sql.DB }

func NewBulletinRepo(db *sql.DB) *BulletinRepo { return &BulletinRepo{db: db} }

// UpsertBlocks writes segmenter output. The composite key is the idempotency
// key: re-segmenting the same dump overwrites the same rows in place.
func (r *BulletinRepo) UpsertBlocks(ctx context.Context, blocks []bulletin.BulletinBlock) error {
	for _, b := range blocks {
		var ticker *string
		if len(b.Tickers) > 0 {
			ticker = &b.Tickers[0]
		}
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO bulletins
				(composite_key, source_id, ordinal, company, ticker, tickers,
				 bulletin_type, bulletin_date, tier, body_text, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
			ON CONFLICT (composite_key) DO UPDATE SET
				company = EXCLUDED.company,
				ticker = EXCLUDED.ticker,
				tickers = EXCLUDED.tickers,
				bulletin_type = EXCLUDED.bulletin_type,
				bulletin_date = EXCLUDED.bulletin_date,
				tier = EXCLUDED.tier,
				body_text = EXCLUDED.body_text,
				updated_at = NOW()
		`, b.CompositeKey, b.SourceID, b.Ordinal, b.Company, ticker,
			pq.Array(b.Tickers), b.BulletinType, b.BulletinDate, b.Tier, b.BodyText)
		if err != nil {
			return fmt.Errorf("upsert bulletin %s: %w", b.CompositeKey, err)
		}
	}
	return nil
}

// Classify assigns the canonical classification used for extractor routing.
func (r *BulletinRepo) Classify(ctx context.Context, compositeKey, canonicalType, canonicalClass string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bulletins
		SET canonical_type = $2, canonical_class = $3, updated_at = NOW()
		WHERE composite_key = $1
	`, compositeKey, canonicalType, canonicalClass)
	if err != nil {
		return fmt.Errorf("classify bulletin %s: %w", compositeKey, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FetchReady returns the records marked ready for one parser profile whose
// canonical type matches the profile's pattern, oldest first. A non-empty
// compositeKey narrows the run to a single bulletin.
func (r *BulletinRepo) FetchReady(ctx context.Context, profile, typePattern, compositeKey string) ([]bulletin.CanonicalRecord, error) {
	q := `
		SELECT id, COALESCE(company,''), COALESCE(ticker,''), composite_key,
		       COALESCE(canonical_type,''), COALESCE(canonical_class,''),
		       bulletin_date, COALESCE(tier,''), body_text
		FROM bulletins
		WHERE parser_profile = $1 AND parser_status = 'ready' AND canonical_type ILIKE $2`
	args := []interface{}{profile, typePattern}
	if compositeKey != "" {
		q += " AND composite_key = $3"
		args = append(args, compositeKey)
	}
	q += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch ready bulletins: %w", err)
	}
	defer rows.Close()

	var out []bulletin.CanonicalRecord
	for rows.Next() {
		var rec bulletin.CanonicalRecord
		if err := rows.Scan(
			&rec.ID, &rec.Company, &rec.Ticker, &rec.CompositeKey,
			&rec.CanonicalType, &rec.CanonicalClass,
			&rec.BulletinDate, &rec.Tier, &rec.BodyText,
		); err != nil {
			return nil, fmt.Errorf("scan bulletin: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkReady queues one bulletin for a parser profile.
func (r *BulletinRepo) MarkReady(ctx context.Context, compositeKey, profile string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bulletins
		SET parser_profile = $2, parser_status = 'ready', updated_at = NOW()
		WHERE composite_key = $1
	`, compositeKey, profile)
	if err != nil {
		return fmt.Errorf("mark ready %s: %w", compositeKey, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllReady queues every bulletin whose canonical type matches the
// profile's pattern and returns how many were queued. Already-done records
// are re-queued on purpose: re-parsing is idempotent by composite key.
func (r *BulletinRepo) MarkAllReady(ctx context.Context, profile, typePattern string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bulletins
		SET parser_profile = $1, parser_status = 'ready', updated_at = NOW()
		WHERE canonical_type ILIKE $2
	`, profile, typePattern)
	if err != nil {
		return 0, fmt.Errorf("mark all ready for %s: %w", profile, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MarkRunning claims a batch at the start of a parse cycle.
func (r *BulletinRepo) MarkRunning(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE bulletins SET parser_status = 'running', updated_at = NOW()
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	return nil
}

// MarkDone records successful extraction and stamps the parse time.
func (r *BulletinRepo) MarkDone(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE bulletins
		SET parser_status = 'done', parser_parsed_at = NOW(), updated_at = NOW()
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// MarkError resolves a record that produced no row, so nothing sticks in
// ready or running.
func (r *BulletinRepo) MarkError(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bulletins SET parser_status = 'error', updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark error %d: %w", id, err)
	}
	return nil
}

// StatusCounts tallies parser status per profile for the status endpoint.
func (r *BulletinRepo) StatusCounts(ctx context.Context, profile string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(parser_status,'unclassified'), COUNT(*)
		FROM bulletins
		WHERE parser_profile = $1 OR $1 = ''
		GROUP BY 1
	`, profile)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

// List returns bulletins newest first for the API.
func (r *BulletinRepo) List(ctx context.Context, limit, offset int) ([]bulletin.CanonicalRecord, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bulletins`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bulletins: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(company,''), COALESCE(ticker,''), composite_key,
		       COALESCE(canonical_type,''), COALESCE(canonical_class,''),
		       bulletin_date, COALESCE(tier,''), body_text
		FROM bulletins
		ORDER BY id DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list bulletins: %w", err)
	}
	defer rows.Close()

	var out []bulletin.CanonicalRecord
	for rows.Next() {
		var rec bulletin.CanonicalRecord
		if err := rows.Scan(
			&rec.ID, &rec.Company, &rec.Ticker, &rec.CompositeKey,
			&rec.CanonicalType, &rec.CanonicalClass,
			&rec.BulletinDate, &rec.Tier, &rec.BodyText,
		); err != nil {
			return nil, 0, fmt.Errorf("scan bulletin: %w", err)
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}
