// Package artifact materialises captured evidence as local spool files
// pending delivery. Files are named with a local-timezone timestamp and are
// deleted by the delivery worker only after confirmed remote acceptance or a
// permanent-failure classification.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates artifact types.
type Kind int

const (
	// Screenshot is a captured screen frame.
	Screenshot Kind = iota
	// DetectionLog is a scripted-activity detection record.
	DetectionLog
)

func (k Kind) String() string {
	switch k {
	case Screenshot:
		return "screenshot"
	case DetectionLog:
		return "detection_log"
	default:
		return "unknown"
	}
}

// Artifact is one unit of evidence to deliver.
type Artifact struct {
	ID        uuid.UUID
	Kind      Kind
	LocalPath string
	CreatedAt time.Time
}

const (
	screenshotPrefix = "screenshot_"
	logPrefix        = "log_"
	stampLayout      = "20060102_150405"
	messageLayout    = "2006-01-02 15-04-05 MST"
)

// Producer writes artifacts into a spool directory, stamping them in the
// agent's current local timezone. The timezone is swapped by the refresh
// loop; readers always see a complete location value.
type Producer struct {
	dir   string
	clock func() time.Time
	loc   atomic.Pointer[time.Location]
}

// NewProducer ensures the spool directory exists and returns a Producer
// stamping timestamps in loc.
func NewProducer(dir string, loc *time.Location) (*Producer, error) {
	if dir == "" {
		return nil, fmt.Errorf("spool directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	p := &Producer{dir: dir, clock: time.Now}
	if loc == nil {
		loc = time.Local
	}
	p.loc.Store(loc)
	return p, nil
}

// SetClock overrides the time source, for tests.
func (p *Producer) SetClock(clock func() time.Time) { p.clock = clock }

// SetLocation swaps the timezone used for timestamp stamping.
func (p *Producer) SetLocation(loc *time.Location) {
	if loc != nil {
		p.loc.Store(loc)
	}
}

// Location returns the currently configured timezone.
func (p *Producer) Location() *time.Location { return p.loc.Load() }

// Dir returns the spool directory.
func (p *Producer) Dir() string { return p.dir }

func (p *Producer) now() time.Time { return p.clock().In(p.loc.Load()) }

// WriteScreenshot persists encoded PNG bytes as a screenshot artifact.
func (p *Producer) WriteScreenshot(data []byte) (Artifact, error) {
	now := p.now()
	name := screenshotPrefix + now.Format(stampLayout) + ".png"
	path := filepath.Join(p.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write screenshot: %w", err)
	}
	return Artifact{ID: uuid.New(), Kind: Screenshot, LocalPath: path, CreatedAt: now}, nil
}

// WriteDetectionLog persists a human-readable detection record for the given
// activity type ("mouse movement", "keyboard input") and returns both the
// artifact and the logged message.
func (p *Producer) WriteDetectionLog(activityType string) (Artifact, string, error) {
	now := p.now()
	message := fmt.Sprintf("%s - Suspicious %s detected and flagged!", now.Format(messageLayout), activityType)
	name := logPrefix + now.Format(stampLayout) + ".txt"
	path := filepath.Join(p.dir, name)
	if err := os.WriteFile(path, []byte(message), 0o644); err != nil {
		return Artifact{}, "", fmt.Errorf("write detection log: %w", err)
	}
	return Artifact{ID: uuid.New(), Kind: DetectionLog, LocalPath: path, CreatedAt: now}, message, nil
}

// Rescan returns artifacts left in the spool directory by a previous run,
// so an interrupted backlog re-enters the delivery queue at startup.
func (p *Producer) Rescan() ([]Artifact, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("scan spool dir: %w", err)
	}

	var found []Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		var kind Kind
		switch {
		case strings.HasPrefix(name, screenshotPrefix) && strings.HasSuffix(name, ".png"):
			kind = Screenshot
		case strings.HasPrefix(name, logPrefix) && strings.HasSuffix(name, ".txt"):
			kind = DetectionLog
		default:
			continue
		}

		created := time.Time{}
		if info, err := entry.Info(); err == nil {
			created = info.ModTime()
		}
		found = append(found, Artifact{
			ID:        uuid.New(),
			Kind:      kind,
			LocalPath: filepath.Join(p.dir, name),
			CreatedAt: created,
		})
	}
	return found, nil
}
