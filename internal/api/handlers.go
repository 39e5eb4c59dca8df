package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/jumine/cpc-pipeline/internal/bulletin"
	"github.com/jumine/cpc-pipeline/internal/repository/postgres"
	"github.com/jumine/cpc-pipeline/internal/worker"
)

// maxDumpBytes caps one uploaded dump. Weekly dumps run a few MB; anything
// bigger is a mistake.
const maxDumpBytes = 64 << 20

// BulletinStore is the bulletin repository surface the API serves from.
type BulletinStore interface {
	Classify(ctx context.Context, compositeKey, canonicalType, canonicalClass string) error
	MarkReady(ctx context.Context, compositeKey, profile string) error
	MarkAllReady(ctx context.Context, profile, typePattern string) (int64, error)
	StatusCounts(ctx context.Context, profile string) (map[string]int, error)
	List(ctx context.Context, limit, offset int) ([]bulletin.CanonicalRecord, int, error)
}

// BirthStore lists extracted listing rows.
type BirthStore interface {
	List(ctx context.Context, limit, offset int) ([]bulletin.ListingRow, int, error)
}

// EventStore lists extracted event rows.
type EventStore interface {
	List(ctx context.Context, eventType string, limit, offset int) ([]bulletin.EventRow, int, error)
}

// DumpUploader lands raw dumps in the bucket.
type DumpUploader interface {
	Put(ctx context.Context, key string, body []byte) error
}

// ParseRunner drives parse cycles and reports their progress.
type ParseRunner interface {
	RunProfile(ctx context.Context, profile, compositeKey string) (worker.Stats, error)
	RunAll(ctx context.Context) []worker.Stats
	Progress(ctx context.Context, profile string) (*worker.Stats, int, error)
}

// IngestTrigger kicks an out-of-band ingest cycle.
type IngestTrigger interface {
	RunOnce()
}

// Handlers contains all HTTP handlers
type Handlers struct {
	bulletins BulletinStore
	births    BirthStore
	events    EventStore
	store     DumpUploader
	parser    ParseRunner
	ingestor  IngestTrigger
	db        *sql.DB
	startedAt time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(bulletins BulletinStore, births BirthStore, events EventStore, db *sql.DB) *Handlers {
	return &Handlers{
		bulletins: bulletins,
		births:    births,
		events:    events,
		db:        db,
		startedAt: time.Now(),
	}
}

// SetDumpStore sets the dump store for the upload endpoint
func (h *Handlers) SetDumpStore(store DumpUploader) {
	h.store = store
}

// SetParser sets the parse worker
func (h *Handlers) SetParser(parser ParseRunner) {
	h.parser = parser
}

// SetIngestor sets the ingest worker so uploads are picked up immediately
func (h *Handlers) SetIngestor(ingestor IngestTrigger) {
	h.ingestor = ingestor
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthCheck reports liveness
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"time":           time.Now().UTC().Format(time.RFC3339),
	})
}

// UploadDump accepts a raw bulletin dump, lands it in the bucket, and queues
// it for ingestion. The key comes from the ?key= query param; without one a
// timestamped key is generated.
func (h *Handlers) UploadDump(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "dump storage not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDumpBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) == 0 {
		respondError(w, http.StatusBadRequest, "empty dump")
		return
	}
	if len(body) > maxDumpBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "dump exceeds size limit")
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		key = fmt.Sprintf("upload-%s.txt", time.Now().UTC().Format("20060102-150405"))
	}
	key = path.Clean(strings.TrimPrefix(key, "/"))
	if !strings.HasSuffix(strings.ToLower(key), ".txt") {
		key += ".txt"
	}

	if err := h.store.Put(r.Context(), key, body); err != nil {
		respondError(w, http.StatusBadGateway, "store dump: "+err.Error())
		return
	}

	if _, err := h.db.ExecContext(r.Context(),
		`INSERT INTO dump_import_log (source_key, status)
		 VALUES ($1, 'pending')
		 ON CONFLICT (source_key) DO NOTHING`, key); err != nil {
		respondError(w, http.StatusInternalServerError, "queue dump: "+err.Error())
		return
	}

	if h.ingestor != nil {
		go h.ingestor.RunOnce()
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"key":    key,
		"bytes":  len(body),
		"status": "pending",
	})
}

// DumpImportEntry is one row of the import log.
type DumpImportEntry struct {
	SourceKey    string     `json:"source_key"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	BlockCount   int        `json:"block_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// ListDumps returns the dump import log, newest first.
func (h *Handlers) ListDumps(w http.ResponseWriter, r *http.Request) {
	params := ParsePagination(r, 50, 500)

	var total int64
	if err := h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM dump_import_log`).Scan(&total); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rows, err := h.db.QueryContext(r.Context(),
		`SELECT source_key, status, retry_count, COALESCE(block_count, 0),
		        COALESCE(error_message, ''), created_at, processed_at
		 FROM dump_import_log
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`, params.Limit, params.Offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	entries := []DumpImportEntry{}
	for rows.Next() {
		var e DumpImportEntry
		if err := rows.Scan(&e.SourceKey, &e.Status, &e.RetryCount, &e.BlockCount,
			&e.ErrorMessage, &e.CreatedAt, &e.ProcessedAt); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries = append(entries, e)
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(entries, params, total))
}

type classifyRequest struct {
	CompositeKey   string `json:"composite_key"`
	CanonicalType  string `json:"canonical_type"`
	CanonicalClass string `json:"canonical_class"`
}

// ClassifyBulletin records the canonical classification for one bulletin.
// Classification happens outside the pipeline; this is its write-back path.
func (h *Handlers) ClassifyBulletin(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.CompositeKey == "" || req.CanonicalType == "" {
		respondError(w, http.StatusBadRequest, "composite_key and canonical_type are required")
		return
	}

	err := h.bulletins.Classify(r.Context(), req.CompositeKey, req.CanonicalType, req.CanonicalClass)
	if errors.Is(err, postgres.ErrNotFound) {
		respondError(w, http.StatusNotFound, "unknown composite key")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"composite_key":  req.CompositeKey,
		"canonical_type": req.CanonicalType,
		"status":         "classified",
	})
}

type parseRequest struct {
	Profile      string `json:"profile"`
	CompositeKey string `json:"composite_key"`
	All          bool   `json:"all"`
}

// TriggerParse marks bulletins ready for a profile and kicks the parse cycle
// in the background. With all=true and no profile, every profile runs.
func (h *Handlers) TriggerParse(w http.ResponseWriter, r *http.Request) {
	if h.parser == nil {
		respondError(w, http.StatusServiceUnavailable, "parser not configured")
		return
	}

	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if req.Profile == "" && req.All {
		var marked int64
		for _, profile := range worker.Profiles() {
			pattern, _ := worker.TypePattern(profile)
			n, err := h.bulletins.MarkAllReady(r.Context(), profile, pattern)
			if err != nil {
				respondError(w, http.StatusInternalServerError, err.Error())
				return
			}
			marked += n
		}
		go h.parser.RunAll(context.Background())
		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"marked": marked,
			"status": "running",
		})
		return
	}

	pattern, ok := worker.TypePattern(req.Profile)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown profile: "+req.Profile)
		return
	}

	var marked int64
	if req.CompositeKey != "" {
		err := h.bulletins.MarkReady(r.Context(), req.CompositeKey, req.Profile)
		if errors.Is(err, postgres.ErrNotFound) {
			respondError(w, http.StatusNotFound, "unknown composite key")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		marked = 1
	} else {
		n, err := h.bulletins.MarkAllReady(r.Context(), req.Profile, pattern)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		marked = n
	}

	profile, compositeKey := req.Profile, req.CompositeKey
	go func() {
		if _, err := h.parser.RunProfile(context.Background(), profile, compositeKey); err != nil {
			log.Printf("[api] parse %s: %v", profile, err)
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"profile": req.Profile,
		"marked":  marked,
		"status":  "running",
	})
}

// GetParseStatus returns per-status bulletin counts plus the last published
// cycle progress for a profile. An empty profile aggregates every profile.
func (h *Handlers) GetParseStatus(w http.ResponseWriter, r *http.Request) {
	profile := r.URL.Query().Get("profile")

	counts, err := h.bulletins.StatusCounts(r.Context(), profile)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"profile": profile,
		"counts":  counts,
	}

	if h.parser != nil && profile != "" {
		stats, processed, err := h.parser.Progress(r.Context(), profile)
		if err != nil {
			log.Printf("[api] read progress %s: %v", profile, err)
		} else if stats != nil {
			resp["progress"] = map[string]interface{}{
				"stats":     stats,
				"processed": processed,
			}
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// ListBulletins returns segmented bulletins, newest first.
func (h *Handlers) ListBulletins(w http.ResponseWriter, r *http.Request) {
	params := ParsePagination(r, 50, 500)
	records, total, err := h.bulletins.List(r.Context(), params.Limit, params.Offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(records, params, int64(total)))
}

// ListBirths returns extracted listing rows.
func (h *Handlers) ListBirths(w http.ResponseWriter, r *http.Request) {
	params := ParsePagination(r, 50, 500)
	rows, total, err := h.births.List(r.Context(), params.Limit, params.Offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(rows, params, int64(total)))
}

// ListEvents returns extracted event rows, optionally filtered by event_type.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	params := ParsePagination(r, 50, 500)
	eventType := r.URL.Query().Get("event_type")
	rows, total, err := h.events.List(r.Context(), eventType, params.Limit, params.Offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(rows, params, int64(total)))
}
