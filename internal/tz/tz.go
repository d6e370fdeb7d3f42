// Package tz resolves the host's local timezone and watches it for changes.
// The zone is re-resolved on a fixed cadence; a change triggers a one-time
// notification to every registered callback so timestamp-producing
// components can swap their clock location.
package tz

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultInterval is how often the host timezone is re-resolved.
const DefaultInterval = 60 * time.Second

// Resolve returns the host's current timezone. Resolution order: the TZ
// environment variable, the /etc/localtime symlink target, then time.Local.
func Resolve() *time.Location {
	if name := strings.TrimSpace(os.Getenv("TZ")); name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if name := localtimeZoneName(); name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.Local
}

// localtimeZoneName extracts a zone name like "Europe/Berlin" from the
// /etc/localtime symlink, or "" when unavailable.
func localtimeZoneName() string {
	target, err := os.Readlink("/etc/localtime")
	if err != nil {
		return ""
	}
	return zoneNameFromPath(target)
}

func zoneNameFromPath(target string) string {
	target = filepath.ToSlash(target)
	const marker = "zoneinfo/"
	idx := strings.LastIndex(target, marker)
	if idx < 0 {
		return ""
	}
	name := target[idx+len(marker):]
	// Some distros nest the database one level deeper (zoneinfo/posix/...).
	name = strings.TrimPrefix(name, "posix/")
	name = strings.TrimPrefix(name, "right/")
	if name == "" {
		return ""
	}
	return name
}

// Watcher polls the host timezone and fans out change notifications.
type Watcher struct {
	interval  time.Duration
	resolve   func() *time.Location
	logger    *log.Logger
	current   *time.Location
	callbacks []func(*time.Location)
}

// NewWatcher resolves the initial zone and returns a watcher polling at
// DefaultInterval.
func NewWatcher(logger *log.Logger) *Watcher {
	w := &Watcher{
		interval: DefaultInterval,
		resolve:  Resolve,
		logger:   logger,
	}
	w.current = w.resolve()
	return w
}

// SetInterval overrides the poll cadence, for tests.
func (w *Watcher) SetInterval(d time.Duration) { w.interval = d }

// SetResolver overrides zone resolution, for tests.
func (w *Watcher) SetResolver(resolve func() *time.Location) { w.resolve = resolve }

// Current returns the most recently resolved zone.
func (w *Watcher) Current() *time.Location { return w.current }

// OnChange registers a callback invoked with the new zone after a change is
// observed. Callbacks run on the watcher goroutine; they must be cheap.
// Registration must finish before Run starts.
func (w *Watcher) OnChange(fn func(*time.Location)) {
	w.callbacks = append(w.callbacks, fn)
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	latest := w.resolve()
	if latest.String() == w.current.String() {
		return
	}
	w.current = latest
	w.logger.Printf("INFO timezone changed to %s", latest)
	for _, fn := range w.callbacks {
		fn(latest)
	}
}
