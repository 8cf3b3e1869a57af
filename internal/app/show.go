package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/gather/internal/cli"
	"horse.fit/gather/internal/db"
	"horse.fit/gather/internal/globaltime"
)

func runShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	formatRaw := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: gather show [flags] <event_uuid>")
		return 2
	}
	eventUUID := strings.TrimSpace(fs.Arg(0))
	if eventUUID == "" {
		fmt.Fprintln(os.Stderr, "event UUID must not be empty")
		return 2
	}

	format, err := parseOutputFormat(*formatRaw, outputFormatTable)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, cancel, _, pool, err := connect(30*time.Second, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	event, err := pool.GetEventByUUID(ctx, eventUUID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			fmt.Fprintf(os.Stderr, "No event with UUID %s\n", eventUUID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load event: %v\n", err)
		return 1
	}

	return printEvent(event, format)
}

func runNext(args []string) int {
	fs := flag.NewFlagSet("next", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	formatRaw := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "next does not accept positional args")
		return 2
	}

	format, err := parseOutputFormat(*formatRaw, outputFormatTable)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, cancel, _, pool, err := connect(30*time.Second, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	event, err := pool.NextEvent(ctx, globaltime.UTC())
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			fmt.Println("No upcoming events")
			return 0
		}
		fmt.Fprintf(os.Stderr, "Failed to load next event: %v\n", err)
		return 1
	}

	return printEvent(event, format)
}

func printEvent(event *db.Event, format string) int {
	if format == outputFormatJSON {
		if err := printJSON(event); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode event: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Println(event.Detailed())
	return 0
}
