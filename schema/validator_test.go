package eventschema

import (
	"encoding/json"
	"testing"
)

func TestValidateEventPayloadAccepted(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{
		"title": "Quiz Night",
		"description": "Doors open at 18.",
		"start_time": "2026-03-12T18:00:00+01:00",
		"end_time": "2026-03-12T21:00:00+01:00",
		"location": "Escape",
		"registration_url": "https://peoply.app/events/123"
	}`)

	item, err := ValidateEventPayload(payload)
	if err != nil {
		t.Fatalf("ValidateEventPayload: %v", err)
	}
	if item.Title != "Quiz Night" {
		t.Fatalf("unexpected title %q", item.Title)
	}
	if item.Location == nil || *item.Location != "Escape" {
		t.Fatalf("unexpected location %v", item.Location)
	}
}

func TestValidateEventPayloadMinimal(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{
		"title": "Quiz Night",
		"start_time": "2026-03-12T18:00:00+01:00",
		"end_time": null,
		"location": null
	}`)

	item, err := ValidateEventPayload(payload)
	if err != nil {
		t.Fatalf("ValidateEventPayload: %v", err)
	}
	if item.EndTime != nil || item.Location != nil {
		t.Fatal("explicit nulls should decode to nil")
	}
}

func TestValidateEventPayloadNaiveLocalTime(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{
		"title": "Quiz Night",
		"start_time": "2026-03-12T18:00:00"
	}`)

	if _, err := ValidateEventPayload(payload); err != nil {
		t.Fatalf("timestamps without an offset should be accepted: %v", err)
	}
}

func TestValidateEventPayloadRejected(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
	}{
		{"empty payload", ``},
		{"not an object", `[1, 2]`},
		{"missing title", `{"start_time": "2026-03-12T18:00:00+01:00"}`},
		{"blank title", `{"title": "   ", "start_time": "2026-03-12T18:00:00+01:00"}`},
		{"missing start_time", `{"title": "Quiz Night"}`},
		{"malformed start_time", `{"title": "Quiz Night", "start_time": "tomorrow at 6"}`},
		{"end before start", `{"title": "Quiz Night", "start_time": "2026-03-12T18:00:00+01:00", "end_time": "2026-03-12T17:00:00+01:00"}`},
		{"bad registration url", `{"title": "Quiz Night", "start_time": "2026-03-12T18:00:00+01:00", "registration_url": "not a url"}`},
		{"unknown field", `{"title": "Quiz Night", "start_time": "2026-03-12T18:00:00+01:00", "price": 50}`},
		{"trailing content", `{"title": "Quiz Night", "start_time": "2026-03-12T18:00:00+01:00"} extra`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ValidateEventPayload(json.RawMessage(tc.payload)); err == nil {
				t.Fatalf("payload %q should be rejected", tc.payload)
			}
		})
	}
}
