package language

import "testing"

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	if got := NormalizeTag(" NB_no "); got != "nb-no" {
		t.Fatalf("unexpected normalized tag: %q", got)
	}
	if got := NormalizeTag("nn-NO"); got != "nn-no" {
		t.Fatalf("unexpected normalized tag: %q", got)
	}
	if got := NormalizeTag("en--GB"); got != "en-gb" {
		t.Fatalf("unexpected collapsed tag: %q", got)
	}
	if got := NormalizeTag("nb_123"); got != "" {
		t.Fatalf("expected invalid tag to normalize to empty string, got %q", got)
	}
}

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	// Sources report region-qualified tags; only the primary subtag is stored.
	if got := NormalizeCode(" NB-no "); got != "nb" {
		t.Fatalf("unexpected normalized code: %q", got)
	}
	if got := NormalizeCode("en"); got != "en" {
		t.Fatalf("unexpected normalized code: %q", got)
	}
	if got := NormalizeCode(" "); got != "" {
		t.Fatalf("expected empty code for blank input, got %q", got)
	}
}
