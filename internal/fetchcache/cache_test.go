package fetchcache

import (
	"testing"
	"time"

	"horse.fit/gather/internal/globaltime"
)

func TestCacheRoundTrip(t *testing.T) {
	c := New(t.TempDir(), time.Hour)

	url := "https://api.peoply.app/events?after=2026-03-12"
	if _, _, ok := c.Get("peoply.app", url); ok {
		t.Fatal("empty cache should miss")
	}

	if err := c.Put("peoply.app", url, []byte(`[{"title":"Quiz Night"}]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	payload, fetchedAt, ok := c.Get("peoply.app", url)
	if !ok {
		t.Fatal("expected a hit after Put")
	}
	if string(payload) != `[{"title":"Quiz Night"}]` {
		t.Fatalf("payload mismatch: %q", payload)
	}
	if fetchedAt.IsZero() {
		t.Fatal("fetched_at should be recorded")
	}

	if _, _, ok := c.Get("ifinavet.no", url); ok {
		t.Fatal("entries are scoped per source")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New(t.TempDir(), 30*time.Minute)

	now := time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	defer globaltime.ResetTime()

	if err := c.Put("peoply.app", "https://api.peoply.app/events", []byte("body")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	globaltime.SetMockTime(now.Add(29 * time.Minute))
	if _, _, ok := c.Get("peoply.app", "https://api.peoply.app/events"); !ok {
		t.Fatal("entry inside the TTL should hit")
	}

	globaltime.SetMockTime(now.Add(31 * time.Minute))
	if _, _, ok := c.Get("peoply.app", "https://api.peoply.app/events"); ok {
		t.Fatal("entry past the TTL should miss")
	}
}

func TestCacheForceLive(t *testing.T) {
	c := New(t.TempDir(), time.Hour)

	if err := c.Put("peoply.app", "https://api.peoply.app/events", []byte("body")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	c.ForceLive = true
	if _, _, ok := c.Get("peoply.app", "https://api.peoply.app/events"); ok {
		t.Fatal("force-live must bypass cached entries")
	}

	c.ForceLive = false
	if _, _, ok := c.Get("peoply.app", "https://api.peoply.app/events"); !ok {
		t.Fatal("entry should still be on disk after a force-live run")
	}
}

func TestCacheClearScopedToSource(t *testing.T) {
	c := New(t.TempDir(), time.Hour)

	if err := c.Put("peoply.app", "https://api.peoply.app/events", []byte("a")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put("ifinavet.no", "https://ifinavet.no/arrangementer", []byte("b")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := c.Clear("peoply.app"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, _, ok := c.Get("peoply.app", "https://api.peoply.app/events"); ok {
		t.Fatal("cleared source should miss")
	}
	if _, _, ok := c.Get("ifinavet.no", "https://ifinavet.no/arrangementer"); !ok {
		t.Fatal("other sources must survive a scoped clear")
	}

	if err := c.Clear(""); err != nil {
		t.Fatalf("Clear all: %v", err)
	}
	if _, _, ok := c.Get("ifinavet.no", "https://ifinavet.no/arrangementer"); ok {
		t.Fatal("clear-all should remove every source")
	}
}
