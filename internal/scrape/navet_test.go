package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/gather/internal/sources"
)

const navetListing = `<!DOCTYPE html>
<html><body>
<div class="event-list-container">
  <div class="event-list-item-wrapper" onclick="location.href='/arrangementer/2026/var/bedriftspresentasjon-med-dnb'">
    <img src="/logos/dnb.png" alt="DNB">
    <div class="event-list-item-description">
      <h3 class="event-list-item-title"><a href="#">Bedriftspresentasjon med DNB</a></h3>
      <p>Bli med på bedriftspresentasjon!</p>
      <div class="event-list-item-details">
        <div class="event-list-item-meta">
          <span class="icon-calendar"></span><span class="sr-only">Dato</span><span>tirsdag 28.01</span>
        </div>
        <div class="event-list-item-meta">
          <span class="icon-clock2"></span><span class="sr-only">Tid</span><span>16:15</span>
        </div>
        <div class="event-list-item-meta">
          <span class="icon-users"></span><span class="sr-only">Plasser</span><span>60 plasser</span>
        </div>
      </div>
    </div>
  </div>
  <div class="event-list-item-wrapper">
    <div class="event-list-item-description">
      <h3 class="event-list-item-title"><a href="#">Ødelagt kort</a></h3>
    </div>
  </div>
</div>
</body></html>`

const navetDetail = `<!DOCTYPE html>
<html><body>
<div class="container">
  <div class="card">
    <div class="row center-xs">
      <div class="event-meta">
        <span class="icon-location"></span><span class="sr-only">Sted</span><span>Ole-Johan Dahls hus</span>
      </div>
      <div class="event-meta">
        <span class="icon-spoon-knife"></span><span class="sr-only">Mat</span><span>Pizza 🍕</span>
      </div>
      <div class="event-meta">
        <span class="icon-users"></span><span class="sr-only">Plasser igjen</span><span>42 plasser igjen</span>
      </div>
    </div>
    <h3 class="event-status">Påmelding åpner 20.01 kl. 12:00</h3>
    <h2>Bedriftspresentasjon med DNB</h2>
    <p>DNB inviterer informatikkstudenter til en hyggelig kveld med faglig innhold og mingling etterpå.</p>
    <p>Det blir servering og gode muligheter til å bli kjent med oss.</p>
  </div>
</div>
</body></html>`

func TestNavetFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/arrangementer/":
			if _, err := w.Write([]byte(navetListing)); err != nil {
				t.Errorf("write listing: %v", err)
			}
		case "/arrangementer/2026/var/bedriftspresentasjon-med-dnb":
			if _, err := w.Write([]byte(navetDetail)); err != nil {
				t.Errorf("write detail: %v", err)
			}
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := sources.Source{Name: "ifinavet.no", Kind: "navet", BaseURL: srv.URL}
	scraper := NewNavetScraper(src, testFetcher(t), time.UTC, zerolog.Nop())

	events, err := scraper.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event (the card without details is skipped), got %d", len(events))
	}

	event := events[0]
	if event.Title != "Bedriftspresentasjon med DNB" {
		t.Fatalf("unexpected title %q", event.Title)
	}
	if event.StartTime.Month() != time.January || event.StartTime.Day() != 28 {
		t.Fatalf("unexpected start date %v", event.StartTime)
	}
	if event.StartTime.Hour() != 16 || event.StartTime.Minute() != 15 {
		t.Fatalf("unexpected start clock %v", event.StartTime)
	}
	if event.EndTime == nil || !event.EndTime.Equal(event.StartTime.Add(2*time.Hour)) {
		t.Fatalf("end time should default to start plus two hours, got %v", event.EndTime)
	}
	if event.Capacity == nil || *event.Capacity != 60 {
		t.Fatalf("unexpected capacity %v", event.Capacity)
	}
	if event.Author == nil || *event.Author != "DNB" {
		t.Fatalf("author should come from the logo alt text, got %v", event.Author)
	}
	if event.SourceURL == nil || !strings.HasSuffix(*event.SourceURL, "/arrangementer/2026/var/bedriftspresentasjon-med-dnb") {
		t.Fatalf("unexpected source url %v", event.SourceURL)
	}

	// Detail page enrichment.
	if event.Location == nil || *event.Location != "Ole-Johan Dahls hus" {
		t.Fatalf("unexpected location %v", event.Location)
	}
	if event.Food == nil || *event.Food != "Pizza 🍕" {
		t.Fatalf("unexpected food %v", event.Food)
	}
	if event.SpotsLeft == nil || *event.SpotsLeft != 42 {
		t.Fatalf("unexpected spots left %v", event.SpotsLeft)
	}
	if !strings.Contains(event.Description, "Påmeldingsstatus: Påmelding åpner 20.01 kl. 12:00") {
		t.Fatalf("registration status missing from description %q", event.Description)
	}
	if !strings.Contains(event.Description, "faglig innhold") {
		t.Fatalf("detail text missing from description %q", event.Description)
	}
}

func TestNavetParseDateTime(t *testing.T) {
	t.Parallel()

	src := sources.Source{Name: "ifinavet.no", Kind: "navet"}
	scraper := NewNavetScraper(src, testFetcher(t), time.UTC, zerolog.Nop())

	start, err := scraper.parseDateTime("tirsdag 28.01", "16:15")
	if err != nil {
		t.Fatalf("parseDateTime: %v", err)
	}
	if start.Day() != 28 || start.Month() != time.January || start.Hour() != 16 || start.Minute() != 15 {
		t.Fatalf("unexpected parse result %v", start)
	}

	for _, bad := range [][2]string{
		{"", "16:15"},
		{"tirsdag", "16:15"},
		{"tirsdag 28.13", "16:15"},
		{"tirsdag 28.01", "16"},
		{"tirsdag 28.01", "25:00"},
	} {
		if _, err := scraper.parseDateTime(bad[0], bad[1]); err == nil {
			t.Fatalf("parseDateTime(%q, %q) should fail", bad[0], bad[1])
		}
	}
}
