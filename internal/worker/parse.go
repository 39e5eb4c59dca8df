package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jumine/cpc-pipeline/internal/bulletin"
	"github.com/jumine/cpc-pipeline/internal/extract"
)

// Parser profiles. The profile names double as the parse_version tag stamped
// on output rows.
const (
	ProfileBirthUnico = "cpc_birth_unico_v1"
	ProfileHalt       = "events_halt_v1"
	ProfileResume     = "events_resume_trading_v1"
	ProfileFiling     = "cpc_filing_statement_v1"
	ProfileCircular   = "cpc_events_information_circular_v1"
)

// profileTypePatterns maps each profile to the canonical-type ILIKE pattern
// its fetch is narrowed by.
var profileTypePatterns = map[string]string{
	ProfileBirthUnico: "%new listing-cpc-shares%",
	ProfileHalt:       "%halt%",
	ProfileResume:     "%resume trading%",
	ProfileFiling:     "%filing statement%",
	ProfileCircular:   "%information circular%",
}

// Profiles lists every registered parser profile in run order: the listing
// profile first, because event profiles resolve against its output.
func Profiles() []string {
	return []string{ProfileBirthUnico, ProfileHalt, ProfileResume, ProfileFiling, ProfileCircular}
}

// TypePattern returns the canonical-type pattern a profile fetches by, and
// whether the profile is known at all.
func TypePattern(profile string) (string, bool) {
	pattern, ok := profileTypePatterns[profile]
	return pattern, ok
}

// RecordSource is the bulletin repository surface the parse worker drives.
type RecordSource interface {
	FetchReady(ctx context.Context, profile, typePattern, compositeKey string) ([]bulletin.CanonicalRecord, error)
	MarkRunning(ctx context.Context, ids []int64) error
	MarkDone(ctx context.Context, ids []int64) error
	MarkError(ctx context.Context, id int64) error
}

// ListingWriter persists listing rows.
type ListingWriter interface {
	Upsert(ctx context.Context, rows []bulletin.ListingRow) error
}

// EventWriter persists event rows.
type EventWriter interface {
	Upsert(ctx context.Context, rows []bulletin.EventRow) error
}

// Stats tallies one parse cycle. Rejections and errors are counted
// independently per record; one bad record never blocks the batch.
type Stats struct {
	Profile       string `json:"profile"`
	Fetched       int    `json:"fetched"`
	Produced      int    `json:"produced"`
	NotApplicable int    `json:"not_applicable"`
	Incomplete    int    `json:"incomplete"`
	Errors        int    `json:"errors"`
}

// progressKey is where a cycle's live stats live in Redis.
func progressKey(profile string) string { return "parse:progress:" + profile }

const progressTTL = time.Hour

// ParseWorker runs parser profiles over ready bulletins: mark the batch
// running, extract each record, batch-upsert the rows, then mark each record
// done or error so nothing stays ambiguous.
type ParseWorker struct {
	bulletins RecordSource
	births    ListingWriter
	events    EventWriter
	listing   *extract.ListingExtractor
	byProfile map[string]*extract.EventExtractor
	redis     *redis.Client
}

// NewParseWorker wires the worker. redisClient may be nil; progress
// publishing is then skipped.
func NewParseWorker(bulletins RecordSource, births ListingWriter, events EventWriter, resolver extract.BirthResolver, redisClient *redis.Client) *ParseWorker {
	return &ParseWorker{
		bulletins: bulletins,
		births:    births,
		events:    events,
		listing:   extract.NewListingExtractor(),
		byProfile: map[string]*extract.EventExtractor{
			ProfileHalt:     extract.NewEventExtractor(extract.HaltRule, resolver),
			ProfileResume:   extract.NewEventExtractor(extract.ResumeTradingRule, resolver),
			ProfileFiling:   extract.NewEventExtractor(extract.FilingStatementRule, resolver),
			ProfileCircular: extract.NewEventExtractor(extract.InformationCircularRule, resolver),
		},
		redis: redisClient,
	}
}

// RunAll runs every profile once, listing first so event extraction resolves
// against fresh birth rows.
func (w *ParseWorker) RunAll(ctx context.Context) []Stats {
	var out []Stats
	for _, profile := range Profiles() {
		stats, err := w.RunProfile(ctx, profile, "")
		if err != nil {
			log.Printf("[parse] profile %s: %v", profile, err)
		}
		out = append(out, stats)
	}
	return out
}

// RunProfile runs one profile over its ready records. A non-empty
// compositeKey narrows the cycle to a single bulletin.
func (w *ParseWorker) RunProfile(ctx context.Context, profile, compositeKey string) (Stats, error) {
	stats := Stats{Profile: profile}

	pattern, ok := profileTypePatterns[profile]
	if !ok {
		return stats, fmt.Errorf("unknown parser profile %q", profile)
	}

	records, err := w.bulletins.FetchReady(ctx, profile, pattern, compositeKey)
	if err != nil {
		return stats, fmt.Errorf("fetch ready for %s: %w", profile, err)
	}
	stats.Fetched = len(records)
	if len(records) == 0 {
		return stats, nil
	}
	log.Printf("[parse] %d records marked for %s", len(records), profile)

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	if err := w.bulletins.MarkRunning(ctx, ids); err != nil {
		return stats, fmt.Errorf("mark running for %s: %w", profile, err)
	}

	var listingRows []bulletin.ListingRow
	var eventRows []bulletin.EventRow
	var doneIDs []int64

	for i, rec := range records {
		outcome, listingRow, eventRow, err := w.extractOne(ctx, profile, rec)
		switch outcome {
		case extract.OutcomeProduced:
			stats.Produced++
			doneIDs = append(doneIDs, rec.ID)
			if listingRow != nil {
				listingRows = append(listingRows, *listingRow)
			}
			if eventRow != nil {
				eventRows = append(eventRows, *eventRow)
			}
		case extract.OutcomeNotApplicable:
			stats.NotApplicable++
			w.markError(ctx, rec.ID)
		case extract.OutcomeIncomplete:
			stats.Incomplete++
			w.markError(ctx, rec.ID)
		default:
			stats.Errors++
			log.Printf("[parse] record %s: %v", rec.CompositeKey, err)
			w.markError(ctx, rec.ID)
		}
		w.publishProgress(ctx, stats, i+1)
	}

	if len(listingRows) > 0 {
		if err := w.births.Upsert(ctx, listingRows); err != nil {
			return stats, fmt.Errorf("upsert births for %s: %w", profile, err)
		}
	}
	if len(eventRows) > 0 {
		if err := w.events.Upsert(ctx, eventRows); err != nil {
			return stats, fmt.Errorf("upsert events for %s: %w", profile, err)
		}
	}

	if err := w.bulletins.MarkDone(ctx, doneIDs); err != nil {
		return stats, fmt.Errorf("mark done for %s: %w", profile, err)
	}

	log.Printf("[parse] %s: produced=%d not_applicable=%d incomplete=%d errors=%d",
		profile, stats.Produced, stats.NotApplicable, stats.Incomplete, stats.Errors)
	return stats, nil
}

func (w *ParseWorker) extractOne(ctx context.Context, profile string, rec bulletin.CanonicalRecord) (extract.Outcome, *bulletin.ListingRow, *bulletin.EventRow, error) {
	if profile == ProfileBirthUnico {
		row, outcome, err := w.listing.Extract(rec)
		return outcome, row, nil, err
	}
	row, outcome, err := w.byProfile[profile].Extract(ctx, rec)
	return outcome, nil, row, err
}

func (w *ParseWorker) markError(ctx context.Context, id int64) {
	if err := w.bulletins.MarkError(ctx, id); err != nil {
		log.Printf("[parse] mark error %d: %v", id, err)
	}
}

// progress is the payload the status endpoint reads back from Redis.
type progress struct {
	Stats
	Processed int       `json:"processed"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w *ParseWorker) publishProgress(ctx context.Context, stats Stats, processed int) {
	if w.redis == nil {
		return
	}
	payload, err := json.Marshal(progress{Stats: stats, Processed: processed, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return
	}
	if err := w.redis.Set(ctx, progressKey(stats.Profile), payload, progressTTL).Err(); err != nil {
		log.Printf("[parse] publish progress: %v", err)
	}
}

// Progress reads a profile's last published cycle stats from Redis. A nil
// return with nil error means no cycle has run within the TTL.
func (w *ParseWorker) Progress(ctx context.Context, profile string) (*Stats, int, error) {
	if w.redis == nil {
		return nil, 0, nil
	}
	data, err := w.redis.Get(ctx, progressKey(profile)).Bytes()
	if err == redis.Nil {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read progress for %s: %w", profile, err)
	}
	var p progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, 0, fmt.Errorf("decode progress for %s: %w", profile, err)
	}
	return &p.Stats, p.Processed, nil
}
