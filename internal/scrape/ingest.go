package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/gather/internal/db"
	"horse.fit/gather/internal/dedup"
	"horse.fit/gather/internal/globaltime"
	"horse.fit/gather/internal/langdetect"
	"horse.fit/gather/internal/language"
	"horse.fit/gather/internal/metrics"
)

// duplicateChecker is the slice of the dedup service the ingestor needs.
type duplicateChecker interface {
	CheckBeforeInsert(ctx context.Context, candidate db.Event, cfg dedup.Config) (*db.Event, error)
}

// eventWriter is the slice of the store the ingestor needs.
type eventWriter interface {
	InsertEvent(ctx context.Context, e db.Event) (int64, error)
	UpdateEvent(ctx context.Context, e db.Event) error
}

// Ingestor writes fetched events into the store, merging each one into its
// stored duplicate when the dedup engine finds a match.
type Ingestor struct {
	store    eventWriter
	dedup    duplicateChecker
	cfg      dedup.Config
	location *time.Location
	logger   zerolog.Logger
}

// IngestStats summarizes one ingest pass.
type IngestStats struct {
	Inserted int
	Merged   int
	Failed   int
}

func NewIngestor(pool *db.Pool, service *dedup.Service, cfg dedup.Config, location *time.Location, logger zerolog.Logger) *Ingestor {
	if location == nil {
		location = time.UTC
	}
	return &Ingestor{
		store:    pool,
		dedup:    service,
		cfg:      cfg,
		location: location,
		logger:   logger,
	}
}

// IngestAll stores a batch of fetched events one at a time. Failures are
// counted and logged but do not stop the batch.
func (ing *Ingestor) IngestAll(ctx context.Context, events []db.Event) IngestStats {
	var stats IngestStats
	for i := range events {
		merged, err := ing.Ingest(ctx, events[i])
		if err != nil {
			stats.Failed++
			ing.logger.Error().Err(err).Str("title", events[i].Title).Msg("ingest failed")
			continue
		}
		if merged {
			stats.Merged++
		} else {
			stats.Inserted++
		}
	}
	ing.logger.Info().
		Int("inserted", stats.Inserted).
		Int("merged", stats.Merged).
		Int("failed", stats.Failed).
		Msg("ingest pass completed")
	return stats
}

// Ingest stores one event, reporting whether it was merged into an existing
// row rather than inserted as new.
func (ing *Ingestor) Ingest(ctx context.Context, event db.Event) (merged bool, err error) {
	if event.Language != nil {
		// Sources report tags like "en-US" or "nb_NO"; store the primary subtag.
		if code := language.NormalizeCode(*event.Language); code != "" {
			event.Language = &code
		} else {
			event.Language = nil
		}
	}
	if event.Language == nil {
		if code := langdetect.DetectISO6391(event.Title + "\n" + event.Description); code != "" {
			event.Language = &code
		}
	}
	if event.FetchedAt == nil {
		now := globaltime.UTC()
		event.FetchedAt = &now
	}
	// created_at anchors merge identity and orders reconciliation, so every
	// record gets one. Scrapers that know the announcement time set it first.
	if event.CreatedAt == nil {
		now := globaltime.Now().In(ing.location)
		event.CreatedAt = &now
	}

	match, err := ing.dedup.CheckBeforeInsert(ctx, event, ing.cfg)
	if err != nil {
		// A failed lookup means unknown, not duplicate. Losing the record is
		// worse than a duplicate the next reconciliation pass will absorb.
		ing.logger.Warn().Err(err).Str("title", event.Title).Msg("duplicate lookup failed, inserting as new")
		match = nil
	}

	if match != nil && match.EventID > 0 {
		if err := ing.store.UpdateEvent(ctx, *match); err != nil {
			return false, fmt.Errorf("update merged event: %w", err)
		}
		metrics.EventsMerged.WithLabelValues(event.SourceName).Inc()
		return true, nil
	}

	// No stored match, or the match was never persisted: insert fresh.
	toInsert := event
	if match != nil {
		toInsert = *match
	}
	if _, err := ing.store.InsertEvent(ctx, toInsert); err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	metrics.EventsInserted.WithLabelValues(event.SourceName).Inc()
	return false, nil
}
