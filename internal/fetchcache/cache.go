package fetchcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"horse.fit/gather/internal/globaltime"
)

// Cache stores raw fetch responses on disk so repeated development runs do
// not hammer the upstream sites. Each entry is a payload file plus a
// .meta.json sidecar recording the URL and fetch time, laid out per source:
//
//	<dir>/<source>/<sha256(url)[:16]>
//	<dir>/<source>/<sha256(url)[:16]>.meta.json
type Cache struct {
	dir string
	ttl time.Duration

	// ForceLive bypasses reads so every Get misses. Writes still happen.
	ForceLive bool
}

type meta struct {
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
}

func New(dir string, ttl time.Duration) *Cache {
	return &Cache{dir: dir, ttl: ttl}
}

// Get returns the cached payload for url and the time it was fetched, or
// ok=false on a miss. Expired and unreadable entries count as misses.
func (c *Cache) Get(source, url string) (payload []byte, fetchedAt time.Time, ok bool) {
	if c == nil || c.dir == "" || c.ForceLive {
		return nil, time.Time{}, false
	}

	base := c.entryPath(source, url)
	metaBytes, err := os.ReadFile(base + ".meta.json")
	if err != nil {
		return nil, time.Time{}, false
	}
	var m meta
	if err := json.Unmarshal(metaBytes, &m); err != nil {
		return nil, time.Time{}, false
	}
	if c.ttl > 0 && globaltime.Now().Sub(m.FetchedAt) > c.ttl {
		return nil, time.Time{}, false
	}

	payload, err = os.ReadFile(base)
	if err != nil {
		return nil, time.Time{}, false
	}
	return payload, m.FetchedAt, true
}

// Put writes the payload and its sidecar. The payload lands first so a crash
// between the two writes leaves a miss, never a payload with a stale sidecar.
func (c *Cache) Put(source, url string, payload []byte) error {
	if c == nil || c.dir == "" {
		return nil
	}

	base := c.entryPath(source, url)
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(base, payload, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}

	m := meta{URL: url, FetchedAt: globaltime.Now().UTC()}
	metaBytes, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal cache meta: %w", err)
	}
	if err := os.WriteFile(base+".meta.json", metaBytes, 0o644); err != nil {
		return fmt.Errorf("write cache meta: %w", err)
	}
	return nil
}

// Clear removes every entry for the source, or all sources when empty.
func (c *Cache) Clear(source string) error {
	if c == nil || c.dir == "" {
		return nil
	}
	target := c.dir
	if source != "" {
		target = filepath.Join(c.dir, sanitize(source))
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("clear cache %s: %w", target, err)
	}
	return nil
}

func (c *Cache) entryPath(source, url string) string {
	sum := sha256.Sum256([]byte(url))
	name := hex.EncodeToString(sum[:])[:16]
	return filepath.Join(c.dir, sanitize(source), name)
}

func sanitize(source string) string {
	out := make([]rune, 0, len(source))
	for _, r := range source {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
