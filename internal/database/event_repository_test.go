package database_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/database"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
)

var eventColumns = []string{
	"id", "source_id", "venue_id", "title", "description", "start_date", "start_time",
	"end_date", "end_time", "is_all_day", "venue_name", "venue_address", "venue_key", "price_min", "price_max",
	"is_free", "ticket_url", "source_url", "image_url", "tags", "confidence", "source_priority", "content_hash",
	"canonical_event_id", "first_seen_at", "last_seen_at", "created_at", "updated_at",
}

const testHash = "3f0a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8"

func eventRow(rows *sqlmock.Rows, id, title string, now time.Time) *sqlmock.Rows {
	day := time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC)
	return rows.AddRow(
		id, "src-1", nil, title, "", day, "20:00",
		nil, nil, false, "The Eastern", "", "the eastern", 20.0, 20.0,
		nil, "", "https://venue.example/jazz", "", "{jazz}", 0.9, 30, testHash,
		nil, now, now, now, now,
	)
}

func TestEventRepository_FindByFingerprint(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewEventRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM events\\s+WHERE content_hash = \\$1 AND canonical_event_id IS NULL").
		WithArgs(testHash).
		WillReturnRows(eventRow(sqlmock.NewRows(eventColumns), "evt-1", "Jazz Night", now))

	e, err := repo.FindByFingerprint(context.Background(), testHash)
	if err != nil {
		t.Fatalf("FindByFingerprint() error = %v", err)
	}
	if e.ID != "evt-1" || e.Title != "Jazz Night" {
		t.Errorf("unexpected event %s %q", e.ID, e.Title)
	}
	if e.StartTime == nil || *e.StartTime != "20:00" {
		t.Errorf("expected StartTime=20:00, got %v", e.StartTime)
	}
	if len(e.Tags) != 1 || e.Tags[0] != "jazz" {
		t.Errorf("expected tags [jazz], got %v", e.Tags)
	}
	if !e.IsCanonical() {
		t.Error("expected canonical event")
	}

	expectationsMet(t, mock)
}

func TestEventRepository_FindByFingerprint_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewEventRepository(db)

	mock.ExpectQuery("SELECT .+ FROM events").
		WithArgs(testHash).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByFingerprint(context.Background(), testHash)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	expectationsMet(t, mock)
}

func TestEventRepository_FindCanonicalByAlias(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewEventRepository(db)

	mock.ExpectQuery("SELECT c\\.id, c\\.source_id, .+ FROM events d\\s+JOIN events c ON c\\.id = d\\.canonical_event_id").
		WithArgs(testHash).
		WillReturnRows(eventRow(sqlmock.NewRows(eventColumns), "evt-canon", "Jazz Night", time.Now()))

	e, err := repo.FindCanonicalByAlias(context.Background(), testHash)
	if err != nil {
		t.Fatalf("FindCanonicalByAlias() error = %v", err)
	}
	if e.ID != "evt-canon" {
		t.Errorf("expected evt-canon, got %s", e.ID)
	}

	expectationsMet(t, mock)
}

func TestEventRepository_Insert(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewEventRepository(db)
	now := time.Now()

	driverArgs := make([]driver.Value, 26)
	for i := range driverArgs {
		driverArgs[i] = sqlmock.AnyArg()
	}

	mock.ExpectQuery("INSERT INTO events .+ON CONFLICT \\(content_hash\\) WHERE canonical_event_id IS NULL DO NOTHING").
		WithArgs(driverArgs...).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	e := &domain.Event{
		SourceID:    "src-1",
		Title:       "Jazz Night",
		StartDate:   time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC),
		ContentHash: testHash,
	}
	if err := repo.Insert(context.Background(), e); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if e.ID == "" {
		t.Error("expected generated ID")
	}
	if !e.CreatedAt.Equal(now) {
		t.Errorf("expected CreatedAt=%v, got %v", now, e.CreatedAt)
	}

	expectationsMet(t, mock)
}

func TestEventRepository_Insert_Conflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "do nothing returns no row", err: sql.ErrNoRows},
		{name: "unique violation", err: &pq.Error{Code: "23505"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := newMockDB(t)
			defer cleanup()
			repo := database.NewEventRepository(db)

			mock.ExpectQuery("INSERT INTO events").WillReturnError(tt.err)

			err := repo.Insert(context.Background(), &domain.Event{ContentHash: testHash})
			if !errors.Is(err, crawlerr.ErrStoreConflict) {
				t.Fatalf("expected ErrStoreConflict, got %v", err)
			}
			if crawlerr.KindOf(err) != crawlerr.KindStoreConflict {
				t.Errorf("expected kind store_conflict, got %s", crawlerr.KindOf(err))
			}

			expectationsMet(t, mock)
		})
	}
}

func TestEventRepository_Update(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewEventRepository(db)

	mock.ExpectExec("UPDATE events SET confidence = \\$1, title = \\$2, updated_at = NOW\\(\\) WHERE id = \\$3").
		WithArgs(0.9, "Jazz Night", "evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "evt-1", store.Patch{
		store.ColTitle:      "Jazz Night",
		store.ColConfidence: 0.9,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestEventRepository_Update_RejectsUnknownColumn(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewEventRepository(db)

	err := repo.Update(context.Background(), "evt-1", store.Patch{"content_hash": "x"})
	if err == nil {
		t.Fatal("expected error for non-patchable column")
	}

	expectationsMet(t, mock)
}

func TestEventRepository_Update_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewEventRepository(db)

	mock.ExpectExec("UPDATE events SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), "missing", store.Patch{store.ColTitle: "x"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	expectationsMet(t, mock)
}

func TestEventRepository_FindSameDay(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewEventRepository(db)
	now := time.Now()
	day := time.Date(2026, 2, 6, 20, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(eventColumns)
	eventRow(rows, "evt-old", "Jazz Night", now)
	eventRow(rows, "evt-new", "Jazz Night!", now)

	mock.ExpectQuery("SELECT .+ FROM events\\s+WHERE venue_key = \\$1 AND start_date = \\$2 .+ORDER BY created_at, id").
		WithArgs("the eastern", domain.DateOnly(day)).
		WillReturnRows(rows)

	events, err := repo.FindSameDay(context.Background(), "the eastern", day)
	if err != nil {
		t.Fatalf("FindSameDay() error = %v", err)
	}
	if len(events) != 2 || events[0].ID != "evt-old" {
		t.Errorf("expected oldest first, got %d events", len(events))
	}

	expectationsMet(t, mock)
}

func TestEventRepository_MarkDuplicate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewEventRepository(db)

	mock.ExpectExec("UPDATE events SET canonical_event_id = \\$2").
		WithArgs("evt-dup", "evt-canon").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkDuplicate(context.Background(), "evt-dup", "evt-canon"); err != nil {
		t.Fatalf("MarkDuplicate() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestEventRepository_MarkDuplicate_NotCanonical(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewEventRepository(db)

	mock.ExpectExec("(?s)UPDATE events SET canonical_event_id = \\$2.+WHERE id = \\$1 AND canonical_event_id IS NULL").
		WithArgs("evt-dup", "evt-canon").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkDuplicate(context.Background(), "evt-dup", "evt-canon")
	if !errors.Is(err, store.ErrNotCanonical) {
		t.Errorf("expected ErrNotCanonical, got %v", err)
	}

	expectationsMet(t, mock)
}

func TestEventRepository_ListUpcoming_Empty(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewEventRepository(db)

	mock.ExpectQuery("SELECT .+ FROM events\\s+WHERE start_date >= \\$1 .+LIMIT \\$2").
		WithArgs(sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows(eventColumns))

	events, err := repo.ListUpcoming(context.Background(), time.Now(), 10)
	if err != nil {
		t.Fatalf("ListUpcoming() error = %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", events)
	}

	expectationsMet(t, mock)
}

func TestEventRepository_PurgeBefore(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewEventRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM events\\s+WHERE canonical_event_id IN").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM events WHERE start_date < \\$1").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	n, err := repo.PurgeBefore(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("PurgeBefore() error = %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7 purged, got %d", n)
	}

	expectationsMet(t, mock)
}
