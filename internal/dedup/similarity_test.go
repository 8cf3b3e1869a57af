package dedup

import (
	"testing"
	"time"

	"horse.fit/gather/internal/db"
)

var testStart = time.Date(2026, 3, 12, 16, 15, 0, 0, time.UTC)

func testEvent(title, source string, start time.Time) db.Event {
	return db.Event{
		Title:      title,
		StartTime:  start,
		SourceName: source,
	}
}

func TestTitleSimilarityIdentical(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if got := TitleSimilarity("IFI Career Day", "IFI Career Day", cfg); got != 1.0 {
		t.Fatalf("identical titles should score 1.0, got %f", got)
	}
	if got := TitleSimilarity("IFI  Career   Day", "ifi career day", cfg); got != 1.0 {
		t.Fatalf("normalization should make titles identical, got %f", got)
	}
}

func TestTitleSimilarityEmptyTitles(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if got := TitleSimilarity("", "", cfg); got != 1.0 {
		t.Fatalf("two empty titles should score 1.0, got %f", got)
	}
	if got := TitleSimilarity("Workshop", "", cfg); got != 0.0 {
		t.Fatalf("empty against non-empty should score 0.0, got %f", got)
	}
}

func TestTitleSimilarityDissimilar(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	got := TitleSimilarity("Pizza Night", "Board Games Night", cfg)
	if got >= cfg.TitleSimilarityThreshold {
		t.Fatalf("dissimilar titles scored %f, expected below threshold %f", got, cfg.TitleSimilarityThreshold)
	}
}

func TestTitleSimilarityCaseSensitiveConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.IgnoreCase = false
	if got := TitleSimilarity("WORKSHOP", "workshop", cfg); got == 1.0 {
		t.Fatalf("case-sensitive comparison should not score 1.0, got %f", got)
	}
}

func TestIsDuplicateExactTitleWithinWindow(t *testing.T) {
	t.Parallel()

	a := testEvent("IFI Career Day", "ifinavet.no", testStart)
	b := testEvent("IFI Career Day", "ifinavet.no", testStart.Add(30*time.Minute))

	if !IsDuplicate(a, b, DefaultConfig()) {
		t.Fatal("same title 30 minutes apart from the same source should be duplicate")
	}
}

func TestIsDuplicateCrossSourceRejected(t *testing.T) {
	t.Parallel()

	a := testEvent("IFI Career Day", "peoply.app", testStart)
	b := testEvent("IFI Career Day", "ifinavet.no", testStart)

	if IsDuplicate(a, b, DefaultConfig()) {
		t.Fatal("records from different sources must never be duplicates under the default config")
	}

	cfg := DefaultConfig()
	cfg.RequireSameSource = false
	if !IsDuplicate(a, b, cfg) {
		t.Fatal("cross-source matching should succeed once the source check is disabled")
	}
}

func TestIsDuplicateEmptySourceRejected(t *testing.T) {
	t.Parallel()

	a := testEvent("IFI Career Day", "", testStart)
	b := testEvent("IFI Career Day", "", testStart)

	if IsDuplicate(a, b, DefaultConfig()) {
		t.Fatal("records with empty source names must not match when same-source is required")
	}
}

func TestIsDuplicateTimeWindowBoundary(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	a := testEvent("Quiz Night", "peoply.app", testStart)

	onBoundary := testEvent("Quiz Night", "peoply.app", testStart.Add(cfg.TimeWindow))
	if !IsDuplicate(a, onBoundary, cfg) {
		t.Fatal("a gap of exactly the time window is inside the inclusive boundary")
	}

	pastBoundary := testEvent("Quiz Night", "peoply.app", testStart.Add(cfg.TimeWindow+time.Nanosecond))
	if IsDuplicate(a, pastBoundary, cfg) {
		t.Fatal("a gap beyond the time window must not match")
	}
}

func TestIsDuplicateExactTimeRequired(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RequireExactTime = true

	a := testEvent("Quiz Night", "peoply.app", testStart)
	b := testEvent("Quiz Night", "peoply.app", testStart.Add(time.Minute))
	if IsDuplicate(a, b, cfg) {
		t.Fatal("exact-time matching must reject differing start times")
	}

	c := testEvent("Quiz Night", "peoply.app", testStart)
	if !IsDuplicate(a, c, cfg) {
		t.Fatal("identical start times with both end times unset should match")
	}

	end := testStart.Add(2 * time.Hour)
	c.EndTime = &end
	if IsDuplicate(a, c, cfg) {
		t.Fatal("one set and one unset end time must not match under exact-time")
	}

	a.EndTime = &end
	if !IsDuplicate(a, c, cfg) {
		t.Fatal("identical start and end times should match under exact-time")
	}
}

func TestIsDuplicateLocationRequired(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RequireSameLocation = true

	a := testEvent("Quiz Night", "peoply.app", testStart)
	b := testEvent("Quiz Night", "peoply.app", testStart)

	if !IsDuplicate(a, b, cfg) {
		t.Fatal("two unset locations compare equal")
	}

	ole := "Ole-Johan Dahls hus"
	b.Location = &ole
	if IsDuplicate(a, b, cfg) {
		t.Fatal("unset against set location must not match when location is required")
	}

	oleUpper := "OLE-JOHAN  DAHLS HUS"
	a.Location = &oleUpper
	if !IsDuplicate(a, b, cfg) {
		t.Fatal("locations differing only in case and whitespace should match")
	}
}

func TestIsDuplicateEmptyTitlesSameWindow(t *testing.T) {
	t.Parallel()

	a := testEvent("", "peoply.app", testStart)
	b := testEvent("", "peoply.app", testStart.Add(10*time.Minute))

	if !IsDuplicate(a, b, DefaultConfig()) {
		t.Fatal("two bare records in the window from one source are duplicates")
	}
}

func TestThresholdMonotonicity(t *testing.T) {
	t.Parallel()

	events := []db.Event{
		testEvent("Workshop", "peoply.app", testStart),
		testEvent("Workshop!", "peoply.app", testStart.Add(5*time.Minute)),
		testEvent("Board Games Night", "peoply.app", testStart.Add(10*time.Minute)),
		testEvent("Board Game Night", "peoply.app", testStart.Add(15*time.Minute)),
	}

	previous := -1
	for _, threshold := range []float64{0.99, 0.9, 0.8, 0.5, 0.1} {
		cfg := DefaultConfig()
		cfg.TitleSimilarityThreshold = threshold
		_, duplicates := ClusterMerge(events, cfg)
		if duplicates < previous {
			t.Fatalf("lowering threshold to %f reduced duplicate count from %d to %d", threshold, previous, duplicates)
		}
		previous = duplicates
	}
}
