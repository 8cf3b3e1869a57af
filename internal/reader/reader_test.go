package reader

import (
	"strings"
	"testing"
)

func TestExtractText(t *testing.T) {
	t.Parallel()

	page := `<!DOCTYPE html>
<html><head><title>Bedriftspresentasjon med DNB</title></head>
<body>
<nav><a href="/">Hjem</a><a href="/arrangementer">Arrangementer</a></nav>
<article>
<h1>Bedriftspresentasjon med DNB</h1>
<p>DNB inviterer til bedriftspresentasjon for informatikkstudenter.
Det blir faglig innhold, mingling og servering.</p>
<p>Påmelding åpner en uke før arrangementet.</p>
</article>
<footer>Kontakt oss</footer>
</body></html>`

	text, err := ExtractText([]byte(page), "https://ifinavet.no/arrangementer/2026/var/dnb")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if !strings.Contains(text, "bedriftspresentasjon for informatikkstudenter") {
		t.Fatalf("extracted text is missing the article body: %q", text)
	}
}

func TestExtractTextEmptyPage(t *testing.T) {
	t.Parallel()

	if _, err := ExtractText([]byte("<html><body></body></html>"), "https://ifinavet.no/"); err == nil {
		t.Fatal("a page without content should fail")
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	raw := "  Quiz   Night \r\n\r\n Doors\topen\r at 18. \n\n\n"
	want := "Quiz Night\n\nDoors open\n\nat 18."
	if got := CleanText(raw); got != want {
		t.Fatalf("CleanText = %q, want %q", got, want)
	}
}

func TestTruncateText(t *testing.T) {
	t.Parallel()

	got, truncated := TruncateText("Bedriftspresentasjon", 10)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if got != "Bedriftsp…" {
		t.Fatalf("TruncateText = %q", got)
	}

	got, truncated = TruncateText("Quiz", 10)
	if truncated || got != "Quiz" {
		t.Fatalf("short text should pass through, got %q (%v)", got, truncated)
	}
}
