package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLevel string
		wantMsg   string
	}{
		{name: "empty", input: "", wantLevel: "INFO", wantMsg: ""},
		{name: "leading token", input: "ERROR upload failed", wantLevel: "ERROR", wantMsg: "upload failed"},
		{name: "lowercase token", input: "warn queue growing", wantLevel: "WARN", wantMsg: "queue growing"},
		{name: "no token", input: "listening on :9090", wantLevel: "INFO", wantMsg: "listening on :9090"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, msg := parseLevel(tt.input)
			if level != tt.wantLevel || msg != tt.wantMsg {
				t.Fatalf("parseLevel(%q) = (%q, %q), want (%q, %q)", tt.input, level, msg, tt.wantLevel, tt.wantMsg)
			}
		})
	}
}

func TestLoggerEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := New("vigild", &buf)

	logger.Printf("ERROR upload failed: %v", "timeout")

	line := strings.TrimSpace(buf.String())
	var entry map[string]string
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, line)
	}
	if entry["level"] != "ERROR" {
		t.Fatalf("level = %q, want ERROR", entry["level"])
	}
	if entry["service"] != "vigild" {
		t.Fatalf("service = %q, want vigild", entry["service"])
	}
	if entry["msg"] != "upload failed: timeout" {
		t.Fatalf("msg = %q", entry["msg"])
	}
	if entry["ts"] == "" {
		t.Fatal("missing timestamp")
	}
}
