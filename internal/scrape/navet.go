package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"horse.fit/gather/internal/db"
	"horse.fit/gather/internal/globaltime"
	"horse.fit/gather/internal/reader"
	"horse.fit/gather/internal/sources"
)

const (
	defaultNavetBaseURL     = "https://ifinavet.no"
	defaultNavetListingPath = "/arrangementer/"

	// Listing cards show no end time; company presentations run about this long.
	navetDefaultDuration = 2 * time.Hour

	navetFallbackDescription = "Mer info kommer"
)

// NavetScraper reads events from the ifinavet.no listing page and enriches
// each one from its detail page.
type NavetScraper struct {
	source      sources.Source
	baseURL     string
	listingPath string
	fetcher     *Fetcher
	location    *time.Location
	logger      zerolog.Logger
}

func NewNavetScraper(src sources.Source, fetcher *Fetcher, location *time.Location, logger zerolog.Logger) *NavetScraper {
	baseURL := strings.TrimRight(src.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultNavetBaseURL
	}
	if location == nil {
		location = time.UTC
	}
	return &NavetScraper{
		source:      src,
		baseURL:     baseURL,
		listingPath: src.Option("listing_path", defaultNavetListingPath),
		fetcher:     fetcher,
		location:    location,
		logger:      logger.With().Str("scraper", src.Name).Logger(),
	}
}

func (s *NavetScraper) Name() string {
	return s.source.Name
}

func (s *NavetScraper) Fetch(ctx context.Context) ([]db.Event, error) {
	listingURL := s.baseURL + s.listingPath
	body, fetchedAt, err := s.fetcher.Get(ctx, s.Name(), listingURL, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing HTML: %w", err)
	}

	container := findFirst(doc, elementWithClass("div", "event-list-container"))
	if container == nil {
		return nil, fmt.Errorf("listing page has no event list container")
	}

	cards := findAll(container, elementWithClass("div", "event-list-item-wrapper"))
	s.logger.Info().Int("cards", len(cards)).Msg("listing fetched")

	events := make([]db.Event, 0, len(cards))
	for _, card := range cards {
		event, err := s.parseCard(card)
		if err != nil {
			s.logger.Error().Err(err).Msg("skipping card")
			continue
		}
		event.FetchedAt = &fetchedAt

		if event.SourceURL != nil {
			if err := s.enrichFromDetails(ctx, &event); err != nil {
				s.logger.Warn().Err(err).Str("title", event.Title).Msg("detail page unavailable")
			}
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *NavetScraper) parseCard(card *html.Node) (db.Event, error) {
	desc := findFirst(card, elementWithClass("div", "event-list-item-description"))
	if desc == nil {
		return db.Event{}, fmt.Errorf("card has no description container")
	}

	titleElem := findFirst(desc, elementWithClass("h3", "event-list-item-title"))
	if titleElem == nil {
		return db.Event{}, fmt.Errorf("card has no title")
	}
	titleLink := findFirst(titleElem, func(n *html.Node) bool { return n.Data == "a" })
	if titleLink == nil {
		return db.Event{}, fmt.Errorf("card title has no link")
	}
	title := nodeText(titleLink)

	description := navetFallbackDescription
	if p := findFirst(desc, func(n *html.Node) bool { return n.Data == "p" }); p != nil {
		description = nodeText(p)
	}

	details := findFirst(desc, elementWithClass("div", "event-list-item-details"))
	if details == nil {
		return db.Event{}, fmt.Errorf("card %q has no details section", title)
	}

	var dateStr, timeStr, capacityStr string
	for _, meta := range findAll(details, elementWithClass("div", "event-list-item-meta")) {
		value := metaValue(meta)
		if value == "" {
			continue
		}
		switch {
		case findFirst(meta, iconMatcher("icon-clock2")) != nil:
			timeStr = value
		case findFirst(meta, iconMatcher("icon-calendar")) != nil:
			dateStr = value
		case findFirst(meta, iconMatcher("icon-users")) != nil:
			capacityStr = value
		}
	}
	if dateStr == "" || timeStr == "" {
		return db.Event{}, fmt.Errorf("card %q is missing date or time", title)
	}

	start, err := s.parseDateTime(dateStr, timeStr)
	if err != nil {
		return db.Event{}, fmt.Errorf("card %q: %w", title, err)
	}
	end := start.Add(navetDefaultDuration)

	event := db.Event{
		Title:       title,
		Description: description,
		StartTime:   start,
		EndTime:     &end,
		SourceName:  s.Name(),
	}

	if capacity, ok := parseDigits(capacityStr); ok {
		event.Capacity = &capacity
	}

	// The card links to the detail page through an onclick handler, like
	// onclick="location.href='/arrangementer/2026/var/dnb'".
	if onclick := attrValue(card, "onclick"); onclick != "" {
		if parts := strings.Split(onclick, "'"); len(parts) >= 2 {
			detailURL := s.resolveURL(parts[1])
			event.SourceURL = &detailURL
		}
	}

	if logo := findFirst(card, func(n *html.Node) bool { return n.Data == "img" }); logo != nil {
		if company := strings.TrimSpace(attrValue(logo, "alt")); company != "" {
			event.Author = &company
		}
	}

	return event, nil
}

// enrichFromDetails fills location, food, and spots left from the detail page
// meta icons and swaps the one-line teaser for the full readable description.
func (s *NavetScraper) enrichFromDetails(ctx context.Context, event *db.Event) error {
	body, _, err := s.fetcher.Get(ctx, s.Name(), *event.SourceURL, "text/html,application/xhtml+xml")
	if err != nil {
		return err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse detail HTML: %w", err)
	}

	card := findFirst(doc, elementWithClass("div", "card"))

	if text, err := reader.ExtractText(body, *event.SourceURL); err == nil && text != "" {
		event.Description = text
	} else if card != nil {
		// Short pages fall below the readability content threshold; build the
		// description from the card markup instead.
		if text := cardDescription(card); text != "" {
			event.Description = text
		}
	}

	if card != nil {
		for _, meta := range findAll(card, elementWithClass("div", "event-meta")) {
			value := metaValue(meta)
			if value == "" {
				continue
			}
			switch {
			case findFirst(meta, iconMatcher("icon-location")) != nil:
				location := value
				event.Location = &location
			case findFirst(meta, iconMatcher("icon-spoon-knife")) != nil:
				food := value
				event.Food = &food
			case findFirst(meta, iconMatcher("icon-users")) != nil:
				if spots, ok := parseDigits(value); ok {
					event.SpotsLeft = &spots
				}
			}
		}

		if status := findFirst(card, elementWithClass("h3", "event-status")); status != nil {
			if text := nodeText(status); strings.Contains(strings.ToLower(text), "påmelding") {
				event.Description += "\n\nPåmeldingsstatus: " + text
			}
		}
	}
	return nil
}

// cardDescription joins the card heading with its following paragraphs and
// list items.
func cardDescription(card *html.Node) string {
	h2 := findFirst(card, func(n *html.Node) bool { return n.Data == "h2" })
	if h2 == nil {
		return ""
	}

	parts := []string{nodeText(h2)}
	for sib := h2.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode {
			continue
		}
		switch sib.Data {
		case "p":
			if text := nodeText(sib); text != "" {
				parts = append(parts, text)
			}
		case "ul":
			for _, li := range findAll(sib, func(n *html.Node) bool { return n.Data == "li" }) {
				if text := nodeText(li); text != "" {
					parts = append(parts, "- "+text)
				}
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// parseDateTime turns a Norwegian listing date like "tirsdag 28.01" plus a
// clock value like "16:15" into a start time in the configured zone. Cards
// carry no year; events are announced at most a season ahead, so the current
// year is assumed.
func (s *NavetScraper) parseDateTime(dateStr, timeStr string) (time.Time, error) {
	fields := strings.Fields(dateStr)
	if len(fields) == 0 {
		return time.Time{}, fmt.Errorf("empty date %q", dateStr)
	}
	dayMonth := strings.Split(fields[len(fields)-1], ".")
	if len(dayMonth) != 2 {
		return time.Time{}, fmt.Errorf("invalid date %q", dateStr)
	}
	day, err := strconv.Atoi(strings.TrimSpace(dayMonth[0]))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day in %q", dateStr)
	}
	month, err := strconv.Atoi(strings.TrimSpace(dayMonth[1]))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month in %q", dateStr)
	}

	clock := strings.Split(strings.TrimSpace(timeStr), ":")
	if len(clock) != 2 {
		return time.Time{}, fmt.Errorf("invalid time %q", timeStr)
	}
	hour, err := strconv.Atoi(clock[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(clock[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid minute in %q", timeStr)
	}

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("out of range date/time %q %q", dateStr, timeStr)
	}

	year := globaltime.Now().In(s.location).Year()
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, s.location), nil
}

func (s *NavetScraper) resolveURL(path string) string {
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return s.baseURL + path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return s.baseURL + path
	}
	return base.ResolveReference(ref).String()
}

// metaValue returns the text of the value span inside a meta block, skipping
// the screen-reader-only label span.
func metaValue(meta *html.Node) string {
	span := findFirst(meta, func(n *html.Node) bool {
		return n.Data == "span" && attrValue(n, "class") == ""
	})
	if span == nil {
		return ""
	}
	return nodeText(span)
}

func iconMatcher(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Data == "span" && hasClass(n, class)
	}
}

func parseDigits(s string) (int, bool) {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0, false
	}
	return n, true
}
