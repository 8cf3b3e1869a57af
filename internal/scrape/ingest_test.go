package scrape

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/gather/internal/db"
	"horse.fit/gather/internal/dedup"
	"horse.fit/gather/internal/globaltime"
)

type fakeChecker struct {
	match     *db.Event
	err       error
	candidate db.Event
	calls     int
}

func (f *fakeChecker) CheckBeforeInsert(_ context.Context, candidate db.Event, _ dedup.Config) (*db.Event, error) {
	f.calls++
	f.candidate = candidate
	return f.match, f.err
}

type fakeWriter struct {
	inserted  []db.Event
	updated   []db.Event
	insertErr error
	updateErr error
}

func (f *fakeWriter) InsertEvent(_ context.Context, e db.Event) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.inserted = append(f.inserted, e)
	return int64(len(f.inserted)), nil
}

func (f *fakeWriter) UpdateEvent(_ context.Context, e db.Event) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, e)
	return nil
}

func testIngestor(checker *fakeChecker, writer *fakeWriter) *Ingestor {
	return &Ingestor{
		store:    writer,
		dedup:    checker,
		cfg:      dedup.DefaultConfig(),
		location: time.UTC,
		logger:   zerolog.Nop(),
	}
}

func ingestFixture(title string) db.Event {
	return db.Event{
		Title:      title,
		StartTime:  time.Date(2026, 3, 12, 16, 15, 0, 0, time.UTC),
		SourceName: "peoply.app",
	}
}

func TestIngestLookupFailureFallsBackToInsert(t *testing.T) {
	checker := &fakeChecker{err: fmt.Errorf("connection reset")}
	writer := &fakeWriter{}
	ing := testIngestor(checker, writer)

	merged, err := ing.Ingest(context.Background(), ingestFixture("Quiz Night"))
	if err != nil {
		t.Fatalf("a failed lookup must not fail the record: %v", err)
	}
	if merged {
		t.Fatalf("a failed lookup must not report a merge")
	}
	if len(writer.inserted) != 1 {
		t.Fatalf("the record should be inserted as new, got %d inserts", len(writer.inserted))
	}
	if writer.inserted[0].Title != "Quiz Night" {
		t.Fatalf("unexpected inserted title %q", writer.inserted[0].Title)
	}
}

func TestIngestInsertErrorPropagates(t *testing.T) {
	checker := &fakeChecker{}
	writer := &fakeWriter{insertErr: fmt.Errorf("disk full")}
	ing := testIngestor(checker, writer)

	if _, err := ing.Ingest(context.Background(), ingestFixture("Quiz Night")); err == nil {
		t.Fatalf("an insert failure must propagate")
	}
}

func TestIngestUpdateErrorPropagates(t *testing.T) {
	stored := ingestFixture("Quiz Night")
	stored.EventID = 7
	checker := &fakeChecker{match: &stored}
	writer := &fakeWriter{updateErr: fmt.Errorf("row gone")}
	ing := testIngestor(checker, writer)

	if _, err := ing.Ingest(context.Background(), ingestFixture("Quiz Night!")); err == nil {
		t.Fatalf("an update failure must propagate")
	}
}

func TestIngestMatchedRecordIsUpdated(t *testing.T) {
	stored := ingestFixture("Quiz Night")
	stored.EventID = 7
	checker := &fakeChecker{match: &stored}
	writer := &fakeWriter{}
	ing := testIngestor(checker, writer)

	merged, err := ing.Ingest(context.Background(), ingestFixture("Quiz Night!"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !merged {
		t.Fatalf("a stored match should be reported as merged")
	}
	if len(writer.updated) != 1 || writer.updated[0].EventID != 7 {
		t.Fatalf("the stored row should be updated in place, got %+v", writer.updated)
	}
	if len(writer.inserted) != 0 {
		t.Fatalf("a merged record must not also be inserted")
	}
}

func TestIngestBackfillsCreatedAndFetched(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	defer globaltime.ResetTime()

	checker := &fakeChecker{}
	writer := &fakeWriter{}
	ing := testIngestor(checker, writer)

	if _, err := ing.Ingest(context.Background(), ingestFixture("Quiz Night")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := writer.inserted[0]
	if got.CreatedAt == nil || !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at should be backfilled with the current time, got %v", got.CreatedAt)
	}
	if got.FetchedAt == nil || !got.FetchedAt.Equal(now) {
		t.Fatalf("fetched_at should be backfilled with the current time, got %v", got.FetchedAt)
	}
	if checker.candidate.CreatedAt == nil {
		t.Fatalf("the duplicate check should already see the backfilled created_at")
	}

	// A scraper-supplied announcement time survives the backfill.
	posted := now.Add(-48 * time.Hour)
	event := ingestFixture("Quiz Night")
	event.CreatedAt = &posted
	if _, err := ing.Ingest(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got = writer.inserted[1]
	if got.CreatedAt == nil || !got.CreatedAt.Equal(posted) {
		t.Fatalf("a supplied created_at must be kept, got %v", got.CreatedAt)
	}
}
