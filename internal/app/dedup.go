package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/gather/internal/cli"
	"horse.fit/gather/internal/dedup"
	"horse.fit/gather/internal/logging"
)

func runDedup(args []string) int {
	fs := flag.NewFlagSet("dedup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	source := fs.String("source", "", "Reconcile only this source (default: all)")
	titleSimilarity := fs.Float64("title-similarity", -1, "Minimum title similarity in [0,1] (default: from env)")
	timeWindow := fs.Duration("time-window", -1, "Maximum start time gap, e.g. 2h (default: from env)")
	requireLocation := fs.Bool("require-location", false, "Require matching locations")
	requireExactTime := fs.Bool("require-exact-time", false, "Require identical start and end times")
	crossSource := fs.Bool("cross-source", false, "Allow merging events from different sources")
	dryRun := fs.Bool("dry-run", false, "Report duplicates without rewriting the store")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "dedup does not accept positional args")
		return 2
	}
	if *titleSimilarity > 1 {
		fmt.Fprintln(os.Stderr, "--title-similarity must be in [0,1]")
		return 2
	}

	ctx, cancel, cfg, pool, err := connect(5*time.Minute, envLoader)
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

	dcfg := dedupConfigFromEnv(cfg)
	if *titleSimilarity >= 0 {
		dcfg.TitleSimilarityThreshold = *titleSimilarity
	}
	if *timeWindow >= 0 {
		dcfg.TimeWindow = *timeWindow
	}
	if *requireLocation {
		dcfg.RequireSameLocation = true
	}
	if *requireExactTime {
		dcfg.RequireExactTime = true
	}
	if *crossSource {
		dcfg.RequireSameSource = false
	}

	if *dryRun {
		events, err := pool.ListEvents(ctx, *source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load events: %v\n", err)
			return 1
		}
		merged, duplicates := dedup.ClusterMerge(events, dcfg)
		fmt.Printf("Would remove %d duplicates, leaving %d events (dry run)\n", duplicates, len(merged))
		return 0
	}

	duplicates, remaining, err := dedup.NewService(pool, logger).DeduplicateAll(ctx, dcfg, *source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Deduplication failed: %v\n", err)
		return 1
	}

	fmt.Printf("Removed %d duplicates, %d events remain\n", duplicates, len(remaining))
	return 0
}
