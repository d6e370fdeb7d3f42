// Package logging provides a JSON-line logger for agent components.
//
// Log lines written through the returned *log.Logger are parsed for a
// leading level token ("INFO listening on ...", "ERROR upload failed: ...")
// and emitted as one JSON object per line with a timestamp and the owning
// service name.
package logging

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// New returns a logger whose output is serialised as JSON lines to out.
// A nil out defaults to stdout.
func New(service string, out io.Writer) *log.Logger {
	return log.New(NewWriter(service, out), "", 0)
}

// Writer converts plain log lines into JSON entries.
type Writer struct {
	mu      sync.Mutex
	service string
	out     io.Writer
}

// NewWriter constructs a Writer for the given service name.
func NewWriter(service string, out io.Writer) *Writer {
	if out == nil {
		out = os.Stdout
	}
	return &Writer{service: service, out: out}
}

func (w *Writer) Write(p []byte) (int, error) {
	level, message := parseLevel(strings.TrimSpace(string(p)))
	if err := w.Log(level, message); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Log emits a single entry at the given level.
func (w *Writer) Log(level, message string) error {
	entry := map[string]string{
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"level":   level,
		"service": w.service,
		"msg":     message,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func parseLevel(message string) (string, string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "INFO", ""
	}

	fields := strings.Fields(trimmed)
	if len(fields) > 0 {
		level := strings.ToUpper(fields[0])
		if isLevel(level) {
			return level, strings.TrimSpace(trimmed[len(fields[0]):])
		}
	}

	return "INFO", trimmed
}

func isLevel(candidate string) bool {
	switch candidate {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "FATAL":
		return true
	default:
		return false
	}
}
