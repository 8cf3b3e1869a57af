package sources

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Source describes one configured event source.
type Source struct {
	Name    string            `yaml:"name"`
	Kind    string            `yaml:"kind"`
	Enabled *bool             `yaml:"enabled"`
	BaseURL string            `yaml:"base_url"`
	Options map[string]string `yaml:"options"`
}

// IsEnabled treats a missing enabled field as enabled.
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Option returns a per-source setting or the given fallback.
func (s Source) Option(key, fallback string) string {
	if v, ok := s.Options[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

type registryFile struct {
	Sources []Source `yaml:"sources"`
}

// Registry reads the source list from a YAML file and watches it for changes,
// so sources can be toggled without restarting the daemon.
type Registry struct {
	path     string
	mu       sync.RWMutex
	current  []Source
	onChange []func([]Source)
	watcher  *fsnotify.Watcher
}

// NewRegistry creates a Registry and performs the initial load.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	list, err := r.load()
	if err != nil {
		return nil, err
	}
	r.current = list
	return r, nil
}

// All returns every configured source, enabled or not.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, len(r.current))
	copy(out, r.current)
	return out
}

// Enabled returns the sources that should be fetched.
func (r *Registry) Enabled() []Source {
	all := r.All()
	enabled := make([]Source, 0, len(all))
	for _, s := range all {
		if s.IsEnabled() {
			enabled = append(enabled, s)
		}
	}
	return enabled
}

// Lookup finds a source by name, case-insensitively.
func (r *Registry) Lookup(name string) (Source, bool) {
	for _, s := range r.All() {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Source{}, false
}

// OnChange registers a callback invoked whenever the registry reloads.
func (r *Registry) OnChange(fn func([]Source)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the source list on
// file changes. Call the returned stop function to clean up.
func (r *Registry) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("sources watcher: %w", err)
	}
	if err := w.Add(r.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("sources watcher add %s: %w", r.path, err)
	}
	r.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					list, err := r.load()
					if err != nil {
						// Keep serving the old list until the file parses again.
						continue
					}
					r.mu.Lock()
					r.current = list
					callbacks := make([]func([]Source), len(r.onChange))
					copy(callbacks, r.onChange)
					r.mu.Unlock()
					for _, fn := range callbacks {
						fn(list)
					}
				}
			case <-w.Errors:
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

func (r *Registry) load() ([]Source, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read sources %s: %w", r.path, err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sources %s: %w", r.path, err)
	}

	seen := make(map[string]struct{}, len(file.Sources))
	for i, s := range file.Sources {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("sources %s: entry %d has no name", r.path, i)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("sources %s: duplicate source %q", r.path, name)
		}
		seen[key] = struct{}{}
		if strings.TrimSpace(s.Kind) == "" {
			file.Sources[i].Kind = key
		}
	}
	return file.Sources, nil
}
