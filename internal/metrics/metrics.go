package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gather_events_fetched_total",
		Help: "Total number of event records fetched, labelled by source.",
	}, []string{"source"})

	EventsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gather_events_inserted_total",
		Help: "Total number of new event rows inserted, labelled by source.",
	}, []string{"source"})

	EventsMerged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gather_events_merged_total",
		Help: "Total number of incoming events merged into existing rows, labelled by source.",
	}, []string{"source"})

	ScrapeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gather_scrape_errors_total",
		Help: "Total number of scrape failures, labelled by source.",
	}, []string{"source"})

	DedupRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gather_dedup_runs_total",
		Help: "Total number of completed bulk reconciliation runs.",
	})

	DuplicatesFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gather_duplicates_found_total",
		Help: "Total number of duplicate records absorbed by reconciliation.",
	})

	DedupRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gather_dedup_run_duration_seconds",
		Help:    "Wall-clock duration of bulk reconciliation runs.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
)
