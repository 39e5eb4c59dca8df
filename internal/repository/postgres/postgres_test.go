package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jumine/cpc-pipeline/internal/bulletin"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func strp(s string) *string { return &s }

func TestBulletinRepoUpsertBlocks(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO bulletins").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewBulletinRepo(db)
	err := repo.UpsertBlocks(context.Background(), []bulletin.BulletinBlock{{
		SourceID:     "dump-2008-10",
		Ordinal:      1,
		CompositeKey: "dump-2008-10-1",
		Company:      strp("ACME CAPITAL CORP."),
		Tickers:      []string{"ACM.P"},
		BodyText:     "body",
	}})
	if err != nil {
		t.Errorf("UpsertBlocks: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestBulletinRepoFetchReady(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{
		"id", "company", "ticker", "composite_key", "canonical_type",
		"canonical_class", "bulletin_date", "tier", "body_text",
	}).AddRow(int64(7), "ACME CAPITAL CORP.", "ACM.P", "dump-2008-10-1",
		"NEW LISTING-CPC-SHARES", "Unico", strp("2008-12-18"), "Tier 2", "body")

	mock.ExpectQuery("FROM bulletins").
		WithArgs("cpc_birth_unico_v1", "%NEW LISTING-CPC-SHARES%").
		WillReturnRows(rows)

	repo := NewBulletinRepo(db)
	recs, err := repo.FetchReady(context.Background(), "cpc_birth_unico_v1", "%NEW LISTING-CPC-SHARES%", "")
	if err != nil {
		t.Fatalf("FetchReady: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].ID != 7 || recs[0].CanonicalClass != "Unico" {
		t.Errorf("record = %+v", recs[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestBulletinRepoMarkReadyNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE bulletins").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewBulletinRepo(db)
	err := repo.MarkReady(context.Background(), "missing-1", "events_halt_v1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBulletinRepoStatusTransitions(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE bulletins SET parser_status = 'running'").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE bulletins").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE bulletins SET parser_status = 'error'").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewBulletinRepo(db)
	ctx := context.Background()
	if err := repo.MarkRunning(ctx, []int64{1, 2}); err != nil {
		t.Errorf("MarkRunning: %v", err)
	}
	if err := repo.MarkDone(ctx, []int64{1}); err != nil {
		t.Errorf("MarkDone: %v", err)
	}
	if err := repo.MarkError(ctx, 2); err != nil {
		t.Errorf("MarkError: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}

	// empty batches touch nothing
	if err := repo.MarkRunning(ctx, nil); err != nil {
		t.Errorf("MarkRunning(nil): %v", err)
	}
}

func TestBirthRepoUpsert(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO cpc_birth").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewBirthRepo(db)
	err := repo.Upsert(context.Background(), []bulletin.ListingRow{{
		CompanyName:   strp("ACME CAPITAL CORP."),
		Ticker:        strp("ACM.P"),
		CompositeKey:  "dump-2008-12-1",
		CanonicalType: "NEW LISTING-CPC-SHARES",
		ParseVersion:  "cpc_birth_unico_v1",
		SourceHash:    "abc",
		ParsedAt:      time.Now().UTC(),
	}})
	if err != nil {
		t.Errorf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestBirthRepoFindByTicker(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "company_name", "ticker", "bulletin_date"}).
		AddRow("b-1", "ACME CAPITAL CORP.", "ACM", strp("2008-12-18"))
	mock.ExpectQuery("SELECT (.+) FROM cpc_birth WHERE UPPER\\(ticker\\)").
		WithArgs("ACM").
		WillReturnRows(rows)

	repo := NewBirthRepo(db)
	cands, err := repo.FindByTicker(context.Background(), "ACM")
	if err != nil {
		t.Fatalf("FindByTicker: %v", err)
	}
	if len(cands) != 1 || cands[0].ID != "b-1" {
		t.Errorf("candidates = %+v", cands)
	}
}

func TestEventRepoUpsert(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO cpc_events").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewEventRepo(db)
	err := repo.Upsert(context.Background(), []bulletin.EventRow{{
		BirthID:           strp("b-1"),
		EventCompositeKey: "dump-2008-09-3",
		EventType:         "HALT",
		Summary:           "Trading halted pending an announcement.",
		BodyRaw:           "body",
		ParseVersion:      "events_halt_v1",
		SourceHash:        "abc",
		ParsedAt:          time.Now().UTC(),
	}})
	if err != nil {
		t.Errorf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
