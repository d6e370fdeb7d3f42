package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestOpenMissingFileWritesEmptyMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file was not written back: %v", err)
	}

	snap := s.Snapshot()
	if snap.ScreenshotInterval != DefaultScreenshotInterval {
		t.Fatalf("interval = %v, want default %v", snap.ScreenshotInterval, DefaultScreenshotInterval)
	}
	if !snap.CaptureScreenshots || snap.BlurScreenshots {
		t.Fatalf("defaults not applied: %+v", snap)
	}
}

func TestSetPersistsAndSnapshotReflects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := s.Set(KeyScreenshotInterval, 60); err != nil {
		t.Fatalf("Set interval: %v", err)
	}
	if err := s.Set(KeyBlurScreenshots, true); err != nil {
		t.Fatalf("Set blur: %v", err)
	}

	snap := s.Snapshot()
	if snap.ScreenshotInterval != 60*time.Second {
		t.Fatalf("interval = %v, want 60s", snap.ScreenshotInterval)
	}
	if !snap.BlurScreenshots {
		t.Fatal("blur not applied")
	}

	// A second store opened on the same file sees the persisted values.
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Snapshot(); got != snap {
		t.Fatalf("reopened snapshot = %+v, want %+v", got, snap)
	}
}

func TestConcurrentSetsPersistEveryKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := s.Set(fmt.Sprintf("extra_%d", n), n); err != nil {
				t.Errorf("Set extra_%d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	// The last persist must reflect every Set; a write raced outside the
	// lock could leave a stale mapping on disk.
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	for i := 0; i < 8; i++ {
		key := fmt.Sprintf("extra_%d", i)
		if reopened.Get(key) == nil {
			t.Fatalf("key %q missing from persisted file", key)
		}
	}
}

func TestReloadUnchangedFileIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Set(KeyCaptureScreenshots, false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	before := s.Snapshot()
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if after := s.Snapshot(); after != before {
		t.Fatalf("reload changed settings: %+v -> %+v", before, after)
	}
}

func TestReloadPicksUpExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("screenshot_interval: 5\ncapture_screenshots: false\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	snap := s.Snapshot()
	if snap.ScreenshotInterval != 5*time.Second {
		t.Fatalf("interval = %v, want 5s", snap.ScreenshotInterval)
	}
	if snap.CaptureScreenshots {
		t.Fatal("capture_screenshots should be false after reload")
	}
}

func TestSnapshotIgnoresMalformedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte("screenshot_interval: soon\nblur_screenshots: maybe\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	snap := s.Snapshot()
	if snap.ScreenshotInterval != DefaultScreenshotInterval || snap.BlurScreenshots != DefaultBlurScreenshots {
		t.Fatalf("malformed values should fall back to defaults, got %+v", snap)
	}
}
