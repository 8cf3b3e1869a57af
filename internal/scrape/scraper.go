package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/gather/internal/db"
	"horse.fit/gather/internal/fetchcache"
	"horse.fit/gather/internal/globaltime"
	"horse.fit/gather/internal/metrics"
	"horse.fit/gather/internal/sources"
)

const (
	defaultFetchTimeout = 20 * time.Second
	maxResponseBytes    = 4 * 1024 * 1024

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

// Scraper fetches the current event listing of one source.
type Scraper interface {
	Name() string
	Fetch(ctx context.Context) ([]db.Event, error)
}

// Manager builds scrapers from the source registry and runs them with
// per-source error isolation: one broken site never blocks the others.
type Manager struct {
	registry *sources.Registry
	fetcher  *Fetcher
	logger   zerolog.Logger
	location *time.Location

	// builders maps a source kind to its scraper constructor.
	builders map[string]func(sources.Source) (Scraper, error)
}

func NewManager(registry *sources.Registry, fetcher *Fetcher, location *time.Location, logger zerolog.Logger) *Manager {
	m := &Manager{
		registry: registry,
		fetcher:  fetcher,
		logger:   logger,
		location: location,
		builders: make(map[string]func(sources.Source) (Scraper, error)),
	}
	m.builders["peoply"] = func(src sources.Source) (Scraper, error) {
		return NewPeoplyScraper(src, fetcher, logger), nil
	}
	m.builders["navet"] = func(src sources.Source) (Scraper, error) {
		return NewNavetScraper(src, fetcher, location, logger), nil
	}
	return m
}

// RegisterKind adds a scraper constructor for a source kind. Used to wire
// scrapers with extra dependencies, like the social media one.
func (m *Manager) RegisterKind(kind string, build func(sources.Source) (Scraper, error)) {
	m.builders[kind] = build
}

// Build resolves a configured source to its scraper.
func (m *Manager) Build(src sources.Source) (Scraper, error) {
	build, ok := m.builders[src.Kind]
	if !ok {
		return nil, fmt.Errorf("no scraper registered for source kind %q", src.Kind)
	}
	return build(src)
}

// FetchAll runs every enabled scraper, or only the named one when source is
// non-empty. Failures are logged and counted; the combined slice holds
// whatever the healthy sources produced.
func (m *Manager) FetchAll(ctx context.Context, source string) []db.Event {
	runID := uuid.NewString()
	logger := m.logger.With().Str("run_id", runID).Logger()

	targets := m.registry.Enabled()
	if source != "" {
		src, ok := m.registry.Lookup(source)
		if !ok {
			logger.Error().Str("source", source).Msg("unknown source requested")
			return nil
		}
		targets = []sources.Source{src}
	}

	var all []db.Event
	for _, src := range targets {
		scraper, err := m.Build(src)
		if err != nil {
			metrics.ScrapeErrors.WithLabelValues(src.Name).Inc()
			logger.Error().Err(err).Str("source", src.Name).Msg("cannot build scraper")
			continue
		}

		events, err := scraper.Fetch(ctx)
		if err != nil {
			metrics.ScrapeErrors.WithLabelValues(src.Name).Inc()
			logger.Error().Err(err).Str("source", src.Name).Msg("fetch failed")
			continue
		}

		metrics.EventsFetched.WithLabelValues(src.Name).Add(float64(len(events)))
		logger.Info().Str("source", src.Name).Int("events", len(events)).Msg("fetched source")
		all = append(all, events...)
	}
	return all
}

// Fetcher performs HTTP GETs through the on-disk cache.
type Fetcher struct {
	cache  *fetchcache.Cache
	client *http.Client
}

func NewFetcher(cache *fetchcache.Cache) *Fetcher {
	return &Fetcher{
		cache:  cache,
		client: &http.Client{Timeout: defaultFetchTimeout},
	}
}

// Get returns the body for url and the time it was fetched, serving from the
// cache when a fresh entry exists.
func (f *Fetcher) Get(ctx context.Context, source, url, accept string) ([]byte, time.Time, error) {
	if body, fetchedAt, ok := f.cache.Get(source, url); ok {
		return body, fetchedAt, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, time.Time{}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read %s: %w", url, err)
	}

	// A broken cache should not fail the fetch.
	_ = f.cache.Put(source, url, body)
	return body, globaltime.UTC(), nil
}
