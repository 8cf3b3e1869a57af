package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/gather/internal/db"
	"horse.fit/gather/internal/globaltime"
	"horse.fit/gather/internal/llm"
	"horse.fit/gather/internal/sources"
	eventschema "horse.fit/gather/schema"
)

const (
	defaultBrightDataBaseURL = "https://api.brightdata.com/datasets/v3"

	socialInitialWait  = 90 * time.Second
	socialPollInterval = 30 * time.Second
	socialMaxPolls     = 20
)

// SocialScraper fetches group posts through the BrightData dataset API and
// runs them through the language model to find event announcements. Posts
// rarely state timezone offsets, so extracted times without one are read in
// the configured default zone.
type SocialScraper struct {
	source   sources.Source
	baseURL  string
	apiKey   string
	dataset  string
	groupURL string
	numPosts int

	fetcher  *Fetcher
	client   *http.Client
	llm      *llm.Client
	location *time.Location
	logger   zerolog.Logger
}

type SocialConfig struct {
	APIKey    string
	DatasetID string
}

func NewSocialScraper(src sources.Source, cfg SocialConfig, fetcher *Fetcher, model *llm.Client, location *time.Location, logger zerolog.Logger) (*SocialScraper, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.DatasetID) == "" {
		return nil, fmt.Errorf("source %q needs BRIGHTDATA_API_KEY and BRIGHTDATA_DATASET_ID", src.Name)
	}
	if !model.Enabled() {
		return nil, fmt.Errorf("source %q needs the llm client configured", src.Name)
	}
	groupURL := src.Option("group_url", "")
	if groupURL == "" {
		return nil, fmt.Errorf("source %q needs a group_url option", src.Name)
	}

	numPosts := 20
	if raw := src.Option("num_posts", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("source %q has invalid num_posts %q", src.Name, raw)
		}
		numPosts = n
	}

	baseURL := strings.TrimRight(src.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBrightDataBaseURL
	}
	if location == nil {
		location = time.UTC
	}

	return &SocialScraper{
		source:   src,
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		dataset:  cfg.DatasetID,
		groupURL: groupURL,
		numPosts: numPosts,
		fetcher:  fetcher,
		client:   &http.Client{Timeout: defaultFetchTimeout},
		llm:      model,
		location: location,
		logger:   logger.With().Str("scraper", src.Name).Logger(),
	}, nil
}

func (s *SocialScraper) Name() string {
	return s.source.Name
}

type socialPost struct {
	URL        string `json:"url"`
	Content    string `json:"content"`
	DatePosted string `json:"date_posted"`
}

func (s *SocialScraper) Fetch(ctx context.Context) ([]db.Event, error) {
	posts, fetchedAt, err := s.fetchPosts(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int("posts", len(posts)).Msg("posts fetched")

	var events []db.Event
	for _, post := range posts {
		event, err := s.parsePost(ctx, post)
		if err != nil {
			s.logger.Error().Err(err).Str("post_url", post.URL).Msg("skipping post")
			continue
		}
		if event == nil {
			continue
		}
		event.FetchedAt = &fetchedAt
		events = append(events, *event)
	}
	s.logger.Info().Int("events", len(events)).Int("posts", len(posts)).Msg("posts parsed")
	return events, nil
}

// fetchPosts serves the cached snapshot when present, otherwise triggers a
// dataset run and polls it to completion. Runs take minutes, which is why the
// result is cached aggressively.
func (s *SocialScraper) fetchPosts(ctx context.Context) ([]socialPost, time.Time, error) {
	cacheKey := s.baseURL + "/posts/" + s.groupURL
	if body, fetchedAt, ok := s.fetcher.cache.Get(s.Name(), cacheKey); ok {
		var posts []socialPost
		if err := json.Unmarshal(body, &posts); err == nil {
			return posts, fetchedAt, nil
		}
	}

	snapshotID, err := s.triggerRun(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	s.logger.Info().Str("snapshot_id", snapshotID).Msg("dataset run triggered")

	if err := s.awaitRun(ctx, snapshotID); err != nil {
		return nil, time.Time{}, err
	}

	body, err := s.apiGet(ctx, s.baseURL+"/snapshot/"+snapshotID+"?format=json")
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("download snapshot %s: %w", snapshotID, err)
	}

	var posts []socialPost
	if err := json.Unmarshal(body, &posts); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode snapshot %s: %w", snapshotID, err)
	}

	_ = s.fetcher.cache.Put(s.Name(), cacheKey, body)
	return posts, globaltime.UTC(), nil
}

func (s *SocialScraper) triggerRun(ctx context.Context) (string, error) {
	payload, err := json.Marshal([]map[string]any{{
		"url":          s.groupURL,
		"num_of_posts": s.numPosts,
		"start_date":   "",
		"end_date":     "",
	}})
	if err != nil {
		return "", fmt.Errorf("marshal trigger payload: %w", err)
	}

	url := s.baseURL + "/trigger?dataset_id=" + s.dataset + "&include_errors=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("trigger dataset run: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read trigger response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("trigger status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode trigger response: %w", err)
	}
	if result.SnapshotID == "" {
		return "", fmt.Errorf("trigger response has no snapshot_id")
	}
	return result.SnapshotID, nil
}

func (s *SocialScraper) awaitRun(ctx context.Context, snapshotID string) error {
	if err := sleepCtx(ctx, socialInitialWait); err != nil {
		return err
	}

	for attempt := 0; attempt < socialMaxPolls; attempt++ {
		body, err := s.apiGet(ctx, s.baseURL+"/progress/"+snapshotID)
		if err == nil {
			var progress struct {
				Status string `json:"status"`
			}
			if json.Unmarshal(body, &progress) == nil && progress.Status == "ready" {
				return nil
			}
		}
		s.logger.Debug().Str("snapshot_id", snapshotID).Int("attempt", attempt+1).Msg("dataset run not ready")
		if err := sleepCtx(ctx, socialPollInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("dataset run %s did not finish within %d polls", snapshotID, socialMaxPolls)
}

func (s *SocialScraper) apiGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// parsePost classifies a post and, when it announces an event, extracts and
// validates the structured payload. Returns (nil, nil) for non-event posts.
func (s *SocialScraper) parsePost(ctx context.Context, post socialPost) (*db.Event, error) {
	if strings.TrimSpace(post.Content) == "" {
		return nil, nil
	}

	isEvent, err := s.llm.IsEventPost(ctx, post.Content)
	if err != nil {
		return nil, fmt.Errorf("classify post: %w", err)
	}
	if !isEvent {
		return nil, nil
	}

	raw, err := s.llm.ParseEvent(ctx, post.Content)
	if err != nil {
		return nil, fmt.Errorf("extract event: %w", err)
	}

	payload, err := eventschema.ValidateEventPayload(raw)
	if err != nil {
		return nil, fmt.Errorf("validate extracted payload: %w", err)
	}

	start, err := s.parseLocalTime(payload.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}

	event := db.Event{
		Title:      payload.Title,
		StartTime:  start,
		SourceName: s.Name(),
	}
	if payload.Description != nil {
		event.Description = *payload.Description
	}
	if payload.EndTime != nil {
		end, err := s.parseLocalTime(*payload.EndTime)
		if err != nil {
			return nil, fmt.Errorf("parse end_time: %w", err)
		}
		event.EndTime = &end
	}
	event.Location = payload.Location
	event.RegistrationURL = payload.RegistrationURL
	if post.URL != "" {
		postURL := post.URL
		event.SourceURL = &postURL
	}
	// The post's publish time is the announcement time, which anchors merge
	// identity against later re-announcements.
	if posted, err := time.Parse(time.RFC3339, strings.TrimSpace(post.DatePosted)); err == nil {
		event.CreatedAt = &posted
	}
	return &event, nil
}

func (s *SocialScraper) parseLocalTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", value, s.location)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
