package dedup

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/gather/internal/db"
	"horse.fit/gather/internal/globaltime"
	"horse.fit/gather/internal/metrics"
)

// Service runs the two operational modes of the dedup engine against the
// store: bulk reconciliation over the whole collection, and the per-record
// duplicate check used at ingest time.
type Service struct {
	pool   *db.Pool
	logger zerolog.Logger
}

func NewService(pool *db.Pool, logger zerolog.Logger) *Service {
	return &Service{
		pool:   pool,
		logger: logger,
	}
}

// DeduplicateAll loads every event (optionally scoped to one source), reduces
// duplicate groups via ClusterMerge, and atomically replaces the scoped rows
// with the reduced set. The read, delete, and re-insert all happen inside one
// transaction: a failure anywhere leaves the collection untouched.
//
// Records carrying a known id keep it across the rewrite; records that never
// had one get a fresh id from the store. Running twice with the same config
// reports zero duplicates the second time.
func (s *Service) DeduplicateAll(ctx context.Context, cfg Config, source string) (int, []db.Event, error) {
	if s == nil || s.pool == nil {
		return 0, nil, fmt.Errorf("dedup service is not initialized")
	}

	source = strings.TrimSpace(source)
	started := globaltime.Now()

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return 0, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	events, err := db.ListEventsTx(ctx, tx, source)
	if err != nil {
		return 0, nil, fmt.Errorf("load events: %w", err)
	}
	s.logger.Info().Int("events", len(events)).Str("source", source).Msg("reconciliation pass started")

	merged, duplicates := ClusterMerge(events, cfg)

	// Guard against a config that let cross-source merges rewrite the
	// source of scoped records.
	if source != "" {
		for i := range merged {
			merged[i].SourceName = source
		}
	}

	deleted, err := db.DeleteEventsTx(ctx, tx, source)
	if err != nil {
		return 0, nil, fmt.Errorf("delete scoped events: %w", err)
	}

	for i := range merged {
		id, err := db.InsertEventTx(ctx, tx, merged[i])
		if err != nil {
			return 0, nil, fmt.Errorf("re-insert event %q: %w", merged[i].Title, err)
		}
		merged[i].EventID = id
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, nil, fmt.Errorf("commit transaction: %w", err)
	}

	metrics.DedupRuns.Inc()
	metrics.DuplicatesFound.Add(float64(duplicates))
	metrics.DedupRunDuration.Observe(globaltime.Now().Sub(started).Seconds())

	s.logger.Info().
		Int("duplicates", duplicates).
		Int64("deleted", deleted).
		Int("remaining", len(merged)).
		Str("source", source).
		Dur("elapsed", globaltime.Now().Sub(started)).
		Msg("reconciliation pass completed")

	return duplicates, merged, nil
}

// CheckBeforeInsert looks for an already-stored duplicate of the candidate
// record. It returns the merge of the stored record and the candidate when a
// match is found, or nil when the candidate is new and should be inserted
// as-is. A lookup failure is returned to the caller, which may choose to fall
// back to a plain insert.
func (s *Service) CheckBeforeInsert(ctx context.Context, candidate db.Event, cfg Config) (*db.Event, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("dedup service is not initialized")
	}

	from := candidate.StartTime.Add(-cfg.TimeWindow)
	to := candidate.StartTime.Add(cfg.TimeWindow)

	stored, err := s.pool.EventsInWindow(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query duplicate candidates: %w", err)
	}

	for _, existing := range stored {
		if IsDuplicate(candidate, existing, cfg) {
			merged := Merge(existing, candidate)
			s.logger.Debug().
				Str("title", candidate.Title).
				Int64("event_id", merged.EventID).
				Time("start_time", merged.StartTime).
				Msg("incoming event matched stored record")
			return &merged, nil
		}
	}

	return nil, nil
}
