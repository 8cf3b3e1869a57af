package db

import (
	"context"
	"fmt"
	"time"
)

// eventColumns is the canonical column list for event reads and writes. The
// dedup core stays decoupled from the schema; this list is the single place
// that enumerates it.
const eventColumns = `
	event_id,
	event_uuid::text,
	title,
	description,
	start_time,
	end_time,
	location,
	source_url,
	source_name,
	language,
	created_at,
	fetched_at,
	capacity,
	spots_left,
	registration_opens,
	registration_url,
	food,
	attachment,
	author`

func scanEvent(scan func(dest ...any) error) (Event, error) {
	var e Event
	err := scan(
		&e.EventID,
		&e.EventUUID,
		&e.Title,
		&e.Description,
		&e.StartTime,
		&e.EndTime,
		&e.Location,
		&e.SourceURL,
		&e.SourceName,
		&e.Language,
		&e.CreatedAt,
		&e.FetchedAt,
		&e.Capacity,
		&e.SpotsLeft,
		&e.RegistrationOpens,
		&e.RegistrationURL,
		&e.Food,
		&e.Attachment,
		&e.Author,
	)
	return e, err
}

func collectEvents(rows *Rows, sizeHint int) ([]Event, error) {
	if sizeHint <= 0 {
		sizeHint = 16
	}
	events := make([]Event, 0, sizeHint)
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

// ListEvents returns events ordered by created_at ascending with unknown
// creation times sorted last. An empty source returns the whole collection.
func (p *Pool) ListEvents(ctx context.Context, source string) ([]Event, error) {
	q := fmt.Sprintf(`
SELECT%s
FROM events
WHERE ($1 = '' OR source_name = $1)
ORDER BY created_at ASC NULLS LAST, event_id ASC
`, eventColumns)

	rows, err := p.Query(ctx, q, source)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows, 64)
}

// ListEventsTx is ListEvents inside an open transaction, used by the bulk
// reconciliation driver so the read and the rewrite see one snapshot.
func ListEventsTx(ctx context.Context, tx Tx, source string) ([]Event, error) {
	q := fmt.Sprintf(`
SELECT%s
FROM events
WHERE ($1 = '' OR source_name = $1)
ORDER BY created_at ASC NULLS LAST, event_id ASC
`, eventColumns)

	rows, err := tx.Query(ctx, q, source)
	if err != nil {
		return nil, fmt.Errorf("query events in tx: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows, 64)
}

// EventsInWindow returns events whose start_time lies in the closed interval
// [from, to], ordered by created_at ascending.
func (p *Pool) EventsInWindow(ctx context.Context, from, to time.Time) ([]Event, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("window end precedes window start")
	}

	q := fmt.Sprintf(`
SELECT%s
FROM events
WHERE start_time >= $1
  AND start_time <= $2
ORDER BY created_at ASC NULLS LAST, event_id ASC
`, eventColumns)

	rows, err := p.Query(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("query events in window: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows, 16)
}

// InsertEventTx inserts one event. An event carrying a positive EventID keeps
// it (identity carried forward by bulk reconciliation); otherwise the store
// assigns the next id.
func InsertEventTx(ctx context.Context, tx Tx, e Event) (int64, error) {
	if e.EventID > 0 {
		const q = `
INSERT INTO events (
	event_id, title, description, start_time, end_time, location, source_url,
	source_name, language, created_at, fetched_at, capacity, spots_left,
	registration_opens, registration_url, food, attachment, author
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
RETURNING event_id
`
		var id int64
		err := tx.QueryRow(ctx, q,
			e.EventID, e.Title, e.Description, e.StartTime, e.EndTime, e.Location,
			e.SourceURL, e.SourceName, e.Language, e.CreatedAt, e.FetchedAt,
			e.Capacity, e.SpotsLeft, e.RegistrationOpens, e.RegistrationURL,
			e.Food, e.Attachment, e.Author,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert event with id %d: %w", e.EventID, err)
		}
		return id, nil
	}

	const q = `
INSERT INTO events (
	title, description, start_time, end_time, location, source_url,
	source_name, language, created_at, fetched_at, capacity, spots_left,
	registration_opens, registration_url, food, attachment, author
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
RETURNING event_id
`
	var id int64
	err := tx.QueryRow(ctx, q,
		e.Title, e.Description, e.StartTime, e.EndTime, e.Location,
		e.SourceURL, e.SourceName, e.Language, e.CreatedAt, e.FetchedAt,
		e.Capacity, e.SpotsLeft, e.RegistrationOpens, e.RegistrationURL,
		e.Food, e.Attachment, e.Author,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return id, nil
}

// InsertEvent inserts one event outside a transaction and returns its id.
func (p *Pool) InsertEvent(ctx context.Context, e Event) (int64, error) {
	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	id, err := InsertEventTx(ctx, tx, e)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return id, nil
}

// UpdateEvent overwrites the row identified by e.EventID with the merged
// record produced by the incremental duplicate check.
func (p *Pool) UpdateEvent(ctx context.Context, e Event) error {
	if e.EventID <= 0 {
		return fmt.Errorf("event id is required for update")
	}

	const q = `
UPDATE events
SET
	title = $2,
	description = $3,
	start_time = $4,
	end_time = $5,
	location = $6,
	source_url = $7,
	source_name = $8,
	language = $9,
	created_at = $10,
	fetched_at = $11,
	capacity = $12,
	spots_left = $13,
	registration_opens = $14,
	registration_url = $15,
	food = $16,
	attachment = $17,
	author = $18
WHERE event_id = $1
`
	tag, err := p.Exec(ctx, q,
		e.EventID, e.Title, e.Description, e.StartTime, e.EndTime, e.Location,
		e.SourceURL, e.SourceName, e.Language, e.CreatedAt, e.FetchedAt,
		e.Capacity, e.SpotsLeft, e.RegistrationOpens, e.RegistrationURL,
		e.Food, e.Attachment, e.Author,
	)
	if err != nil {
		return fmt.Errorf("update event %d: %w", e.EventID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// DeleteEventsTx deletes all events matching the optional source filter.
func DeleteEventsTx(ctx context.Context, tx Tx, source string) (int64, error) {
	const q = `
DELETE FROM events
WHERE ($1 = '' OR source_name = $1)
`
	tag, err := tx.Exec(ctx, q, source)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClearEvents removes every event and reports how many rows were deleted.
func (p *Pool) ClearEvents(ctx context.Context) (int64, error) {
	tag, err := p.Exec(ctx, `DELETE FROM events`)
	if err != nil {
		return 0, fmt.Errorf("clear events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetEventByID fetches a single event or ErrNoRows.
func (p *Pool) GetEventByID(ctx context.Context, eventID int64) (*Event, error) {
	q := fmt.Sprintf(`
SELECT%s
FROM events
WHERE event_id = $1
`, eventColumns)

	e, err := scanEvent(p.QueryRow(ctx, q, eventID).Scan)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// NextEvent returns the first event starting after the given instant, or
// ErrNoRows when nothing is upcoming.
func (p *Pool) NextEvent(ctx context.Context, after time.Time) (*Event, error) {
	q := fmt.Sprintf(`
SELECT%s
FROM events
WHERE start_time > $1
ORDER BY start_time ASC, event_id ASC
LIMIT 1
`, eventColumns)

	e, err := scanEvent(p.QueryRow(ctx, q, after).Scan)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EventFilter narrows the paged event listing.
type EventFilter struct {
	Source   string
	Query    string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// SearchEvents returns one page of events matching the filter plus the total
// match count, ordered by start_time ascending.
func (p *Pool) SearchEvents(ctx context.Context, f EventFilter) (int64, []Event, error) {
	search := ""
	if f.Query != "" {
		search = "%" + f.Query + "%"
	}

	const countQuery = `
SELECT COUNT(*)
FROM events
WHERE ($1 = '' OR source_name = $1)
  AND ($2 = '' OR title ILIKE $2 OR description ILIKE $2)
  AND ($3::timestamptz IS NULL OR start_time >= $3)
  AND ($4::timestamptz IS NULL OR start_time <= $4)
`
	var total int64
	if err := p.QueryRow(ctx, countQuery, f.Source, search, f.From, f.To).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("count events: %w", err)
	}

	offset := (f.Page - 1) * f.PageSize

	q := fmt.Sprintf(`
SELECT%s
FROM events
WHERE ($1 = '' OR source_name = $1)
  AND ($2 = '' OR title ILIKE $2 OR description ILIKE $2)
  AND ($3::timestamptz IS NULL OR start_time >= $3)
  AND ($4::timestamptz IS NULL OR start_time <= $4)
ORDER BY start_time ASC, event_id ASC
LIMIT $5
OFFSET $6
`, eventColumns)

	rows, err := p.Query(ctx, q, f.Source, search, f.From, f.To, f.PageSize, offset)
	if err != nil {
		return 0, nil, fmt.Errorf("query events page: %w", err)
	}
	defer rows.Close()

	events, err := collectEvents(rows, f.PageSize)
	if err != nil {
		return 0, nil, err
	}
	return total, events, nil
}

// GetEventByUUID fetches a single event by its public identifier or ErrNoRows.
func (p *Pool) GetEventByUUID(ctx context.Context, eventUUID string) (*Event, error) {
	q := fmt.Sprintf(`
SELECT%s
FROM events
WHERE event_uuid = $1::uuid
`, eventColumns)

	e, err := scanEvent(p.QueryRow(ctx, q, eventUUID).Scan)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// SourceCount is one row of the per-source collection summary.
type SourceCount struct {
	SourceName    string     `json:"source_name"`
	EventCount    int64      `json:"event_count"`
	EarliestStart *time.Time `json:"earliest_start,omitempty"`
	LatestStart   *time.Time `json:"latest_start,omitempty"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
}

// CountEventsBySource returns per-source totals for the stats surfaces.
func (p *Pool) CountEventsBySource(ctx context.Context) ([]SourceCount, error) {
	const q = `
SELECT
	source_name,
	COUNT(*)::BIGINT AS event_count,
	MIN(start_time) AS earliest_start,
	MAX(start_time) AS latest_start,
	MAX(fetched_at) AS last_fetched_at
FROM events
GROUP BY source_name
ORDER BY source_name
`
	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query source counts: %w", err)
	}
	defer rows.Close()

	items := make([]SourceCount, 0, 8)
	for rows.Next() {
		var row SourceCount
		if err := rows.Scan(&row.SourceName, &row.EventCount, &row.EarliestStart, &row.LatestStart, &row.LastFetchedAt); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source counts: %w", err)
	}
	return items, nil
}
