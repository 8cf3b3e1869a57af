package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"horse.fit/gather/internal/db"
	"horse.fit/gather/internal/dedup"
	"horse.fit/gather/internal/globaltime"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// APIKey guards the mutating endpoints. Empty disables them entirely.
	APIKey string
}

// FetchResult summarizes a fetch-and-ingest pass triggered over the API.
type FetchResult struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Merged   int `json:"merged"`
	Failed   int `json:"failed"`
}

// FetchFunc runs a fetch-and-ingest pass, optionally scoped to one source.
type FetchFunc func(ctx context.Context, source string) (FetchResult, error)

type Server struct {
	pool     *db.Pool
	dedup    *dedup.Service
	dedupCfg dedup.Config
	fetch    FetchFunc
	logger   zerolog.Logger
	opts     Options
}

type eventView struct {
	EventUUID         string     `json:"event_uuid"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	Location          *string    `json:"location,omitempty"`
	SourceURL         *string    `json:"source_url,omitempty"`
	SourceName        string     `json:"source_name"`
	Language          *string    `json:"language,omitempty"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
	FetchedAt         *time.Time `json:"fetched_at,omitempty"`
	Capacity          *int       `json:"capacity,omitempty"`
	SpotsLeft         *int       `json:"spots_left,omitempty"`
	RegistrationOpens *time.Time `json:"registration_opens,omitempty"`
	RegistrationURL   *string    `json:"registration_url,omitempty"`
	Food              *string    `json:"food,omitempty"`
	Attachment        *string    `json:"attachment,omitempty"`
	Author            *string    `json:"author,omitempty"`
}

func toEventView(e db.Event) eventView {
	return eventView{
		EventUUID:         e.EventUUID,
		Title:             e.Title,
		Description:       e.Description,
		StartTime:         e.StartTime,
		EndTime:           e.EndTime,
		Location:          e.Location,
		SourceURL:         e.SourceURL,
		SourceName:        e.SourceName,
		Language:          e.Language,
		CreatedAt:         e.CreatedAt,
		FetchedAt:         e.FetchedAt,
		Capacity:          e.Capacity,
		SpotsLeft:         e.SpotsLeft,
		RegistrationOpens: e.RegistrationOpens,
		RegistrationURL:   e.RegistrationURL,
		Food:              e.Food,
		Attachment:        e.Attachment,
		Author:            e.Author,
	}
}

func NewServer(pool *db.Pool, dedupService *dedup.Service, dedupCfg dedup.Config, fetch FetchFunc, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:     pool,
		dedup:    dedupService,
		dedupCfg: dedupCfg,
		fetch:    fetch,
		logger:   logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			APIKey:          strings.TrimSpace(opts.APIKey),
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "X-API-Key"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/events", s.handleEvents)
	api.GET("/events/next", s.handleNextEvent)
	api.GET("/events/:event_uuid", s.handleEventDetail)
	api.POST("/deduplicate", s.handleDeduplicate, s.requireAPIKey)
	api.POST("/fetch", s.handleFetch, s.requireAPIKey)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("gather api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("gather api server stopped")
	return nil
}

// requireAPIKey guards the mutating endpoints with a constant-time key check.
func (s *Server) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.opts.APIKey == "" {
			return failUnauthorized(c, "Mutating endpoints are disabled, set API_KEY")
		}
		provided := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.opts.APIKey)) != 1 {
			return failUnauthorized(c, "Invalid API key")
		}
		return next(c)
	}
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.pool.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("health check database ping failed")
		return internalError(c, "Database is unreachable")
	}
	return success(c, map[string]any{
		"service": "gather",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	counts, err := s.pool.CountEventsBySource(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}

	var total int64
	for _, row := range counts {
		total += row.EventCount
	}

	return success(c, map[string]any{
		"total_events": total,
		"sources":      counts,
		"dedup": map[string]any{
			"title_similarity":      s.dedupCfg.TitleSimilarityThreshold,
			"time_window_minutes":   int(s.dedupCfg.TimeWindow.Minutes()),
			"require_same_location": s.dedupCfg.RequireSameLocation,
			"require_exact_time":    s.dedupCfg.RequireExactTime,
			"require_same_source":   s.dedupCfg.RequireSameSource,
		},
	})
}

func (s *Server) handleEvents(c echo.Context) error {
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	from, err := parseTimeFilter(c.QueryParam("from"), false)
	if err != nil {
		return failValidation(c, map[string]string{"from": "must be RFC3339 or YYYY-MM-DD"})
	}
	to, err := parseTimeFilter(c.QueryParam("to"), true)
	if err != nil {
		return failValidation(c, map[string]string{"to": "must be RFC3339 or YYYY-MM-DD"})
	}
	if from != nil && to != nil && from.After(*to) {
		return failValidation(c, map[string]string{"time_range": "from must be <= to"})
	}

	filter := db.EventFilter{
		Source:   strings.TrimSpace(c.QueryParam("source")),
		Query:    strings.TrimSpace(c.QueryParam("q")),
		From:     from,
		To:       to,
		Page:     page,
		PageSize: pageSize,
	}

	total, events, err := s.pool.SearchEvents(c.Request().Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("query events failed")
		return internalError(c, "Failed to load events")
	}

	items := make([]eventView, 0, len(events))
	for _, event := range events {
		items = append(items, toEventView(event))
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return success(c, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":        page,
			"page_size":   pageSize,
			"total_items": total,
			"total_pages": totalPages,
		},
		"filters": map[string]any{
			"source": filter.Source,
			"q":      filter.Query,
			"from":   filter.From,
			"to":     filter.To,
		},
	})
}

func (s *Server) handleNextEvent(c echo.Context) error {
	event, err := s.pool.NextEvent(c.Request().Context(), globaltime.UTC())
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "No upcoming events")
		}
		s.logger.Error().Err(err).Msg("query next event failed")
		return internalError(c, "Failed to load next event")
	}
	return success(c, toEventView(*event))
}

func (s *Server) handleEventDetail(c echo.Context) error {
	eventUUID := strings.TrimSpace(c.Param("event_uuid"))
	if eventUUID == "" {
		return failValidation(c, map[string]string{"event_uuid": "is required"})
	}

	event, err := s.pool.GetEventByUUID(c.Request().Context(), eventUUID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "Event not found")
		}
		s.logger.Error().Err(err).Str("event_uuid", eventUUID).Msg("query event failed")
		return internalError(c, "Failed to load event")
	}
	return success(c, toEventView(*event))
}

func (s *Server) handleDeduplicate(c echo.Context) error {
	if s.dedup == nil {
		return internalError(c, "Dedup engine is not wired")
	}

	source := strings.TrimSpace(c.QueryParam("source"))
	duplicates, remaining, err := s.dedup.DeduplicateAll(c.Request().Context(), s.dedupCfg, source)
	if err != nil {
		s.logger.Error().Err(err).Str("source", source).Msg("reconciliation over api failed")
		return internalError(c, "Deduplication failed")
	}

	return success(c, map[string]any{
		"duplicates_removed": duplicates,
		"events_remaining":   len(remaining),
		"source":             source,
	})
}

func (s *Server) handleFetch(c echo.Context) error {
	if s.fetch == nil {
		return internalError(c, "Fetching is not wired")
	}

	source := strings.TrimSpace(c.QueryParam("source"))
	result, err := s.fetch(c.Request().Context(), source)
	if err != nil {
		s.logger.Error().Err(err).Str("source", source).Msg("fetch over api failed")
		return internalError(c, "Fetch failed")
	}
	return successWithStatus(c, http.StatusAccepted, result)
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseTimeFilter(raw string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		utc := ts.UTC()
		return &utc, nil
	}

	if day, err := time.Parse("2006-01-02", trimmed); err == nil {
		utc := day.UTC()
		if endOfDay {
			utc = utc.Add((24 * time.Hour) - time.Nanosecond)
		}
		return &utc, nil
	}

	return nil, fmt.Errorf("invalid time format")
}
