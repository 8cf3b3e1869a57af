package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare object",
			response: `{"title":"Quiz Night"}`,
			want:     `{"title":"Quiz Night"}`,
		},
		{
			name:     "fenced with language tag",
			response: "```json\n{\"title\":\"Quiz Night\"}\n```",
			want:     `{"title":"Quiz Night"}`,
		},
		{
			name:     "fenced without language tag",
			response: "```\n{\"title\":\"Quiz Night\"}\n```",
			want:     `{"title":"Quiz Night"}`,
		},
		{
			name:     "surrounding prose",
			response: "Here is the event:\n{\"title\":\"Quiz Night\"}\nLet me know if you need more.",
			want:     `{"title":"Quiz Night"}`,
		},
		{
			name:     "nested braces",
			response: `{"title":"Quiz Night","extra":{"a":1}}`,
			want:     `{"title":"Quiz Night","extra":{"a":1}}`,
		},
		{
			name:     "no object",
			response: "I could not find an event.",
			want:     "",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractJSON(tc.response); got != tc.want {
				t.Fatalf("ExtractJSON(%q) = %q, want %q", tc.response, got, tc.want)
			}
		})
	}
}

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestIsEventPost(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, "YES")
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	isEvent, err := c.IsEventPost(context.Background(), "Quiz night this Thursday at 18:00!")
	if err != nil {
		t.Fatalf("IsEventPost: %v", err)
	}
	if !isEvent {
		t.Fatal("expected a YES classification")
	}
}

func TestIsEventPostRejectsAmbiguousAnswer(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, "Maybe, it depends.")
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	if _, err := c.IsEventPost(context.Background(), "some post"); err == nil {
		t.Fatal("an answer other than YES/NO should be an error")
	}
}

func TestParseEventUnwrapsFences(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, "```json\n{\"title\":\"Quiz Night\",\"start_time\":\"2026-03-12T18:00:00+01:00\"}\n```")
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	raw, err := c.ParseEvent(context.Background(), "Quiz night this Thursday!")
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}

	var payload struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal extracted payload: %v", err)
	}
	if payload.Title != "Quiz Night" {
		t.Fatalf("unexpected title %q", payload.Title)
	}
}

func TestDisabledClientFailsCleanly(t *testing.T) {
	t.Parallel()

	c := NewClient("", "", "")
	if c.Enabled() {
		t.Fatal("client without a base URL must report disabled")
	}
	if _, err := c.IsEventPost(context.Background(), "text"); err == nil {
		t.Fatal("calls on a disabled client must fail")
	}
}
