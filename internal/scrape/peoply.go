package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/gather/internal/db"
	"horse.fit/gather/internal/globaltime"
	"horse.fit/gather/internal/sources"
)

const defaultPeoplyBaseURL = "https://api.peoply.app"

// PeoplyScraper reads upcoming events from the peoply.app JSON API.
type PeoplyScraper struct {
	source  sources.Source
	baseURL string
	fetcher *Fetcher
	logger  zerolog.Logger
}

func NewPeoplyScraper(src sources.Source, fetcher *Fetcher, logger zerolog.Logger) *PeoplyScraper {
	baseURL := strings.TrimRight(src.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultPeoplyBaseURL
	}
	return &PeoplyScraper{
		source:  src,
		baseURL: baseURL,
		fetcher: fetcher,
		logger:  logger.With().Str("scraper", src.Name).Logger(),
	}
}

func (s *PeoplyScraper) Name() string {
	return s.source.Name
}

type peoplyEvent struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	LocationName    string `json:"locationName"`
	FreeformAddress string `json:"freeformAddress"`
	URLID           string `json:"urlId"`
	EventCategories []struct {
		Category struct {
			Name string `json:"name"`
		} `json:"category"`
	} `json:"eventCategories"`
	EventArrangers []struct {
		Role     string `json:"role"`
		Arranger struct {
			Organization *struct {
				Name string `json:"name"`
			} `json:"organization"`
			User *struct {
				FirstName string `json:"firstName"`
				LastName  string `json:"lastName"`
			} `json:"user"`
		} `json:"arranger"`
	} `json:"eventArrangers"`
}

func (s *PeoplyScraper) Fetch(ctx context.Context) ([]db.Event, error) {
	body, fetchedAt, err := s.fetcher.Get(ctx, s.Name(), s.listingURL(), "application/json")
	if err != nil {
		return nil, err
	}

	var apiEvents []peoplyEvent
	if err := json.Unmarshal(body, &apiEvents); err != nil {
		return nil, fmt.Errorf("decode peoply listing: %w", err)
	}
	s.logger.Info().Int("events", len(apiEvents)).Msg("listing fetched")

	events := make([]db.Event, 0, len(apiEvents))
	for _, api := range apiEvents {
		event, err := s.convert(api, fetchedAt)
		if err != nil {
			s.logger.Error().Err(err).Str("title", api.Title).Msg("skipping event")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// listingURL asks for upcoming events only, ordered by start date.
func (s *PeoplyScraper) listingURL() string {
	after := globaltime.UTC().Format("2006-01-02T15:04:05.000Z")
	query := url.Values{}
	query.Set("afterDate", after)
	query.Set("orderBy", "startDate")
	query.Set("take", "99")
	return s.baseURL + "/events?" + query.Encode()
}

func (s *PeoplyScraper) convert(api peoplyEvent, fetchedAt time.Time) (db.Event, error) {
	start, err := time.Parse(time.RFC3339, api.StartDate)
	if err != nil {
		return db.Event{}, fmt.Errorf("parse startDate %q: %w", api.StartDate, err)
	}

	event := db.Event{
		Title:       api.Title,
		Description: api.Description,
		StartTime:   start,
		SourceName:  s.Name(),
		FetchedAt:   &fetchedAt,
	}

	if api.EndDate != "" {
		end, err := time.Parse(time.RFC3339, api.EndDate)
		if err != nil {
			return db.Event{}, fmt.Errorf("parse endDate %q: %w", api.EndDate, err)
		}
		event.EndTime = &end
	}

	if api.URLID != "" {
		sourceURL := "https://peoply.app/events/" + api.URLID
		event.SourceURL = &sourceURL
	}

	location := api.LocationName
	if api.FreeformAddress != "" {
		location = api.LocationName + ", " + api.FreeformAddress
	}
	if location != "" {
		event.Location = &location
	}

	categories := make([]string, 0, len(api.EventCategories))
	for _, c := range api.EventCategories {
		if c.Category.Name != "" {
			categories = append(categories, c.Category.Name)
		}
	}
	if len(categories) > 0 {
		event.Description = event.Description + "\n\nCategories: " + strings.Join(categories, ", ")
	}

	// The admin arranger names the organizer, an organization when present.
	for _, arranger := range api.EventArrangers {
		if arranger.Role != "ADMIN" {
			continue
		}
		switch {
		case arranger.Arranger.Organization != nil:
			name := arranger.Arranger.Organization.Name
			event.Author = &name
		case arranger.Arranger.User != nil:
			name := arranger.Arranger.User.FirstName + " " + arranger.Arranger.User.LastName
			event.Author = &name
		}
		break
	}

	return event, nil
}
