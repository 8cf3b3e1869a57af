package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/gather/internal/cli"
	"horse.fit/gather/internal/db"
)

func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	source := fs.String("source", "", "Only events from this source")
	query := fs.String("q", "", "Filter on title or description substring")
	fromRaw := fs.String("from", "", "Only events starting on or after this date (YYYY-MM-DD)")
	toRaw := fs.String("to", "", "Only events starting on or before this date (YYYY-MM-DD)")
	page := fs.Int("page", 1, "Page number")
	pageSize := fs.Int("page-size", 50, "Events per page")
	formatRaw := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "list does not accept positional args")
		return 2
	}

	format, err := parseOutputFormat(*formatRaw, outputFormatTable)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *page < 1 || *pageSize < 1 || *pageSize > 500 {
		fmt.Fprintln(os.Stderr, "--page must be >= 1 and --page-size in [1,500]")
		return 2
	}

	filter := db.EventFilter{
		Source:   *source,
		Query:    *query,
		Page:     *page,
		PageSize: *pageSize,
	}
	if *fromRaw != "" {
		from, err := parseUTCDate(*fromRaw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --from: %v\n", err)
			return 2
		}
		filter.From = &from
	}
	if *toRaw != "" {
		to, err := parseUTCDate(*toRaw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --to: %v\n", err)
			return 2
		}
		endOfDay := to.Add(24*time.Hour - time.Nanosecond)
		filter.To = &endOfDay
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		fmt.Fprintln(os.Stderr, "--from must be <= --to")
		return 2
	}

	ctx, cancel, _, pool, err := connect(30*time.Second, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	total, events, err := pool.SearchEvents(ctx, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load events: %v\n", err)
		return 1
	}

	if format == outputFormatJSON {
		if err := printJSON(map[string]any{
			"total_items": total,
			"page":        *page,
			"page_size":   *pageSize,
			"events":      events,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode events: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(events))
	for _, event := range events {
		rows = append(rows, []string{
			event.EventUUID,
			truncateForTable(event.Title, 48),
			event.StartTime.Format("2006-01-02 15:04"),
			truncateForTable(pointerStringOrEmpty(event.Location), 32),
			event.SourceName,
		})
	}
	if err := writeTable([]string{"UUID", "TITLE", "START", "LOCATION", "SOURCE"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	fmt.Printf("\n%d of %d events (page %d)\n", len(events), total, *page)
	return 0
}
