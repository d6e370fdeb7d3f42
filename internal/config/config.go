// Package config holds the agent's mutable runtime settings, backed by a
// YAML file that is reloaded wholesale on a timer. Last read wins; a reload
// swaps the entire mapping so readers never observe a partial update.
package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Setting names recognised by the agent. Unknown keys are preserved in the
// file but have no effect.
const (
	KeyScreenshotInterval = "screenshot_interval"
	KeyCaptureScreenshots = "capture_screenshots"
	KeyBlurScreenshots    = "blur_screenshots"
)

// Defaults applied when a setting is absent from the file.
const (
	DefaultScreenshotInterval = 300 * time.Second
	DefaultCaptureScreenshots = true
	DefaultBlurScreenshots    = false
)

// Snapshot is an immutable copy of the effective settings, taken once per
// loop iteration by readers.
type Snapshot struct {
	ScreenshotInterval time.Duration
	CaptureScreenshots bool
	BlurScreenshots    bool
}

// Store is a reloadable key/value settings store. A single refresh loop
// writes it; any number of goroutines read it.
type Store struct {
	path string

	mu     sync.RWMutex
	values map[string]any
}

// Open loads the store from path. A missing file is tolerated: the store
// initialises to an empty mapping and writes it back.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: map[string]any{}}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the in-memory mapping with the file contents. If the file
// does not exist it is created with the current (possibly empty) mapping.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.persistLocked()
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if values == nil {
		values = map[string]any{}
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// Get returns the raw value for key, or nil when absent.
func (s *Store) Get(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Set stores a value and persists the whole mapping immediately. The lock is
// held across the file write so concurrent Sets cannot persist stale state
// out of order.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.persistLocked()
}

// Snapshot resolves the typed settings with defaults applied.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ScreenshotInterval: DefaultScreenshotInterval,
		CaptureScreenshots: DefaultCaptureScreenshots,
		BlurScreenshots:    DefaultBlurScreenshots,
	}
	if secs, ok := asInt(s.values[KeyScreenshotInterval]); ok && secs > 0 {
		snap.ScreenshotInterval = time.Duration(secs) * time.Second
	}
	if b, ok := s.values[KeyCaptureScreenshots].(bool); ok {
		snap.CaptureScreenshots = b
	}
	if b, ok := s.values[KeyBlurScreenshots].(bool); ok {
		snap.BlurScreenshots = b
	}
	return snap
}

// Keys returns the setting names currently present in the file, for the
// config CLI surface.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// persistLocked writes the mapping to disk. Callers must hold mu.
func (s *Store) persistLocked() error {
	data, err := yaml.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
