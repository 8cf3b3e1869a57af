package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/gather/internal/cli"
	"horse.fit/gather/internal/fetchcache"
)

func runClear(args []string) int {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	yes := fs.Bool("yes", false, "Confirm deleting every stored event")
	clearCache := fs.Bool("cache", false, "Also clear the on-disk fetch cache")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "clear does not accept positional args")
		return 2
	}
	if !*yes {
		fmt.Fprintln(os.Stderr, "clear deletes every stored event; pass --yes to confirm")
		return 2
	}

	ctx, cancel, cfg, pool, err := connect(time.Minute, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	deleted, err := pool.ClearEvents(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to clear events: %v\n", err)
		return 1
	}
	fmt.Printf("Deleted %d events\n", deleted)

	if *clearCache {
		if err := fetchcache.New(cfg.CacheDir, defaultCacheTTL).Clear(""); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to clear fetch cache: %v\n", err)
			return 1
		}
		fmt.Println("Cleared fetch cache")
	}
	return 0
}
