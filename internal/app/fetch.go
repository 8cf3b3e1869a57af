package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/gather/internal/cli"
	"horse.fit/gather/internal/config"
	"horse.fit/gather/internal/db"
	"horse.fit/gather/internal/dedup"
	"horse.fit/gather/internal/fetchcache"
	"horse.fit/gather/internal/llm"
	"horse.fit/gather/internal/logging"
	"horse.fit/gather/internal/scrape"
	"horse.fit/gather/internal/sources"
)

// Cached listing pages go stale within the hour; detail pages rarely change
// faster than that either.
const defaultCacheTTL = time.Hour

// pipeline bundles the pieces a fetch pass needs.
type pipeline struct {
	registry *sources.Registry
	manager  *scrape.Manager
	ingestor *scrape.Ingestor
}

// buildPipeline wires the source registry, the caching fetcher, every scraper
// kind, and the dedup-aware ingestor from the loaded config.
func buildPipeline(cfg *config.Config, pool *db.Pool, logger zerolog.Logger, forceLive bool) (*pipeline, error) {
	registry, err := sources.NewRegistry(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}

	cache := fetchcache.New(cfg.CacheDir, defaultCacheTTL)
	cache.ForceLive = forceLive
	fetcher := scrape.NewFetcher(cache)

	location := cfg.Location()
	manager := scrape.NewManager(registry, fetcher, location, logger)

	model := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	social := scrape.SocialConfig{
		APIKey:    cfg.BrightDataAPIKey,
		DatasetID: cfg.BrightDataDatasetID,
	}
	manager.RegisterKind("social", func(src sources.Source) (scrape.Scraper, error) {
		return scrape.NewSocialScraper(src, social, fetcher, model, location, logger)
	})

	service := dedup.NewService(pool, logger)
	ingestor := scrape.NewIngestor(pool, service, dedupConfigFromEnv(cfg), location, logger)

	return &pipeline{
		registry: registry,
		manager:  manager,
		ingestor: ingestor,
	}, nil
}

// run fetches events, optionally scoped to one source, and stores them.
func (p *pipeline) run(ctx context.Context, source string) ([]db.Event, scrape.IngestStats) {
	events := p.manager.FetchAll(ctx, source)
	stats := p.ingestor.IngestAll(ctx, events)
	return events, stats
}

func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	source := fs.String("source", "", "Fetch only this source (default: all enabled)")
	forceLive := fs.Bool("force-live", false, "Skip the fetch cache and hit every site")
	dryRun := fs.Bool("dry-run", false, "Fetch and print events without storing them")
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall fetch timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "fetch does not accept positional args")
		return 2
	}

	ctx, cancel, cfg, pool, err := connect(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	pipe, err := buildPipeline(cfg, pool, logger, *forceLive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build fetch pipeline: %v\n", err)
		return 1
	}

	if *dryRun {
		events := pipe.manager.FetchAll(ctx, *source)
		for _, event := range events {
			fmt.Println(event.Summary())
		}
		fmt.Printf("\nFetched %d events (dry run, nothing stored)\n", len(events))
		return 0
	}

	events, stats := pipe.run(ctx, *source)
	for _, event := range events {
		fmt.Println(event.Summary())
	}
	fmt.Printf("\nFetched %d events: %d inserted, %d merged, %d failed\n",
		len(events), stats.Inserted, stats.Merged, stats.Failed)

	if stats.Failed > 0 {
		return 1
	}
	return 0
}
