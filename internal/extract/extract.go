// Package extract turns classified bulletin records into canonical rows.
// Every extractor is a pure function over the record it is handed: same
// record, same clock, same output. Prose irregularity is not an error —
// a record that does not belong to an extractor, or that lacks a field the
// category cannot live without, is reported through the Outcome so callers
// can tally it, and only a broken input contract surfaces as a Go error.
package extract

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jumine/cpc-pipeline/internal/bulletin"
)

// Outcome is the disposition of one record. Exactly one outcome is reported
// per input record; callers map these onto their own status vocabulary.
type Outcome string

const (
	// OutcomeProduced means a canonical row was emitted.
	OutcomeProduced Outcome = "produced"
	// OutcomeNotApplicable means the record's classification does not belong
	// to this extractor. Silent skip, never an error.
	OutcomeNotApplicable Outcome = "not_applicable"
	// OutcomeIncomplete means a category-mandatory field was missing, so no
	// row was emitted.
	OutcomeIncomplete Outcome = "incomplete"
	// OutcomeError means the input record violated the upstream contract or
	// a collaborator failed; the accompanying error says how.
	OutcomeError Outcome = "error"
)

// ErrMalformedRecord marks an input record that violates the upstream
// contract (e.g. a missing composite key). Unlike prose variability this is
// never swallowed.
var ErrMalformedRecord = errors.New("malformed canonical record")

// Clock supplies extraction timestamps; tests pin it.
type Clock func() time.Time

func sourceHash(body string) string {
	sum := sha1.Sum([]byte(body))
	return hex.EncodeToString(sum[:])
}

func checkRecord(rec bulletin.CanonicalRecord) error {
	if rec.CompositeKey == "" {
		return fmt.Errorf("%w: empty composite key", ErrMalformedRecord)
	}
	return nil
}
