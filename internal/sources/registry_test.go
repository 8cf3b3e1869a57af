package sources

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSourcesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestRegistryLoad(t *testing.T) {
	t.Parallel()

	path := writeSourcesFile(t, `
sources:
  - name: peoply.app
    kind: peoply
    base_url: https://api.peoply.app
  - name: ifinavet.no
    kind: navet
    enabled: false
    base_url: https://ifinavet.no
    options:
      listing_path: /arrangementer
`)

	reg, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if got := len(reg.All()); got != 2 {
		t.Fatalf("expected 2 sources, got %d", got)
	}
	if got := len(reg.Enabled()); got != 1 {
		t.Fatalf("expected 1 enabled source, got %d", got)
	}

	navet, ok := reg.Lookup("IFINAVET.NO")
	if !ok {
		t.Fatal("lookup should be case-insensitive")
	}
	if navet.IsEnabled() {
		t.Fatal("navet is explicitly disabled")
	}
	if got := navet.Option("listing_path", "/events"); got != "/arrangementer" {
		t.Fatalf("option lookup returned %q", got)
	}
	if got := navet.Option("detail_path", "/events"); got != "/events" {
		t.Fatalf("missing option should return the fallback, got %q", got)
	}
}

func TestRegistryDefaultsKindToName(t *testing.T) {
	t.Parallel()

	path := writeSourcesFile(t, `
sources:
  - name: Peoply
    base_url: https://api.peoply.app
`)

	reg, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	src, ok := reg.Lookup("peoply")
	if !ok {
		t.Fatal("source not found")
	}
	if src.Kind != "peoply" {
		t.Fatalf("kind should default to the lowercased name, got %q", src.Kind)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	path := writeSourcesFile(t, `
sources:
  - name: peoply.app
  - name: PEOPLY.APP
`)

	if _, err := NewRegistry(path); err == nil {
		t.Fatal("duplicate source names should fail to load")
	}
}

func TestRegistryRejectsUnnamedSource(t *testing.T) {
	t.Parallel()

	path := writeSourcesFile(t, `
sources:
  - base_url: https://api.peoply.app
`)

	if _, err := NewRegistry(path); err == nil {
		t.Fatal("a source without a name should fail to load")
	}
}
