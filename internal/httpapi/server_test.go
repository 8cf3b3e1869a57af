package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestParsePositiveInt(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "empty uses default", raw: "", want: 25},
		{name: "valid value", raw: "3", want: 3},
		{name: "surrounding whitespace", raw: " 7 ", want: 7},
		{name: "not an integer", raw: "seven", wantErr: true},
		{name: "below minimum", raw: "0", wantErr: true},
		{name: "above maximum", raw: "201", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := parsePositiveInt(tc.raw, 25, 1, 200)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error for %q", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestParseTimeFilter(t *testing.T) {
	t.Parallel()

	empty, err := parseTimeFilter("", false)
	if err != nil || empty != nil {
		t.Fatalf("empty input should yield nil filter, got %v, %v", empty, err)
	}

	rfc, err := parseTimeFilter("2026-03-12T16:15:00+01:00", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, time.March, 12, 15, 15, 0, 0, time.UTC)
	if !rfc.Equal(want) {
		t.Fatalf("RFC3339 value should be normalized to UTC, got %v", rfc)
	}

	dayStart, err := parseTimeFilter("2026-03-12", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dayStart.Equal(time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date lower bound should be midnight UTC, got %v", dayStart)
	}

	dayEnd, err := parseTimeFilter("2026-03-12", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dayEnd.After(*dayStart) || !dayEnd.Before(dayStart.Add(24*time.Hour)) {
		t.Fatalf("date upper bound should fall inside the day, got %v", dayEnd)
	}

	if _, err := parseTimeFilter("12.03.2026", false); err == nil {
		t.Fatalf("expected an error for an unsupported format")
	}
}

func TestRequireAPIKey(t *testing.T) {
	t.Parallel()

	invoke := func(s *Server, key string) (*httptest.ResponseRecorder, error) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/deduplicate", nil)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		handler := s.requireAPIKey(func(c echo.Context) error {
			return c.NoContent(http.StatusNoContent)
		})
		return rec, handler(c)
	}

	guarded := &Server{opts: Options{APIKey: "secret"}}

	rec, err := invoke(guarded, "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("valid key should reach the handler, got status %d", rec.Code)
	}

	rec, err = invoke(guarded, "wrong")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("invalid key should be rejected, got status %d", rec.Code)
	}
	var body jsendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("rejection body should be JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Fatalf("rejection status should be fail, got %q", body.Status)
	}

	unconfigured := &Server{opts: Options{}}
	rec, err = invoke(unconfigured, "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing server key should disable the endpoint, got status %d", rec.Code)
	}
}
