package uploader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"

	"vigil/internal/artifact"
	"vigil/internal/metrics"
	"vigil/pkg/objstore"
)

type recordedPut struct {
	key      string
	body     []byte
	encoding string
}

// fakeStore returns queued errors in order, then succeeds.
type fakeStore struct {
	mu   sync.Mutex
	errs []error
	puts []recordedPut
}

func (f *fakeStore) Put(ctx context.Context, key string, body []byte, encoding string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, recordedPut{key: key, body: append([]byte(nil), body...), encoding: encoding})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeStore) attempts() []recordedPut {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedPut(nil), f.puts...)
}

func newTestWorker(t *testing.T, q *Queue, store Transmitter) *Worker {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	w := NewWorker(q, store, log.New(io.Discard, "", 0), m)
	w.SetBackoff(time.Millisecond)
	return w
}

func spoolFile(t *testing.T, content string) artifact.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log_20260101_000000.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write spool file: %v", err)
	}
	return artifact.Artifact{Kind: artifact.DetectionLog, LocalPath: path}
}

func TestProcessDeliveredRemovesFileAndRoundTrips(t *testing.T) {
	q := NewQueue()
	store := &fakeStore{}
	w := newTestWorker(t, q, store)

	art := spoolFile(t, "suspicious activity record")
	if pause := w.process(context.Background(), art); pause {
		t.Fatal("successful delivery must not pause the worker")
	}

	if _, err := os.Stat(art.LocalPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("local file still present after delivery: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("queue length = %d, want 0", q.Len())
	}

	puts := store.attempts()
	if len(puts) != 1 {
		t.Fatalf("put attempts = %d, want 1", len(puts))
	}
	if puts[0].key != "uploads/log_20260101_000000.txt" {
		t.Fatalf("key = %q", puts[0].key)
	}
	if puts[0].encoding != "gzip" {
		t.Fatalf("content encoding = %q", puts[0].encoding)
	}

	zr, err := gzip.NewReader(bytes.NewReader(puts[0].body))
	if err != nil {
		t.Fatalf("payload is not gzip: %v", err)
	}
	decompressed, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(decompressed) != "suspicious activity record" {
		t.Fatalf("decompressed = %q", decompressed)
	}
}

func TestProcessMissingFileDroppedWithoutRetry(t *testing.T) {
	q := NewQueue()
	store := &fakeStore{}
	w := newTestWorker(t, q, store)

	art := artifact.Artifact{Kind: artifact.Screenshot, LocalPath: filepath.Join(t.TempDir(), "screenshot_gone.png")}
	if pause := w.process(context.Background(), art); pause {
		t.Fatal("missing file must not pause the worker")
	}
	if q.Len() != 0 {
		t.Fatal("missing file must not be re-enqueued")
	}
	if len(store.attempts()) != 0 {
		t.Fatal("no transmit should happen for a missing file")
	}
}

func TestProcessTransientFailuresRequeueAtTail(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "network", err: objstore.ErrNetwork},
		{name: "credentials missing", err: objstore.ErrCredentialsMissing},
		{name: "unexpected", err: errors.New("disk exploded")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue()
			store := &fakeStore{errs: []error{tt.err}}
			w := newTestWorker(t, q, store)

			q.Enqueue(testArtifact("earlier"))
			art := spoolFile(t, "payload")
			if pause := w.process(context.Background(), art); !pause {
				t.Fatal("transient failure must pause the worker")
			}

			if _, err := os.Stat(art.LocalPath); err != nil {
				t.Fatalf("local file must survive a transient failure: %v", err)
			}
			paths := q.Paths()
			if len(paths) != 2 || paths[1] != art.LocalPath {
				t.Fatalf("artifact not re-enqueued at tail: %v", paths)
			}
		})
	}
}

func TestProcessIncompleteCredentialsDropsFromQueueKeepsFile(t *testing.T) {
	q := NewQueue()
	store := &fakeStore{errs: []error{objstore.ErrCredentialsIncomplete}}
	w := newTestWorker(t, q, store)

	art := spoolFile(t, "payload")
	if pause := w.process(context.Background(), art); pause {
		t.Fatal("incomplete credentials must not pause the worker")
	}
	if q.Len() != 0 {
		t.Fatal("incomplete credentials must not re-enqueue")
	}
	if _, err := os.Stat(art.LocalPath); err != nil {
		t.Fatalf("local file must be kept for operator recovery: %v", err)
	}
}

func TestProcessRejectionDropsAndDeletesFile(t *testing.T) {
	q := NewQueue()
	store := &fakeStore{errs: []error{&objstore.RejectedError{Code: "AccessDenied", Message: "no"}}}
	w := newTestWorker(t, q, store)

	art := spoolFile(t, "payload")
	if pause := w.process(context.Background(), art); pause {
		t.Fatal("rejection must not pause the worker")
	}
	if q.Len() != 0 {
		t.Fatal("rejected artifact must not be re-enqueued")
	}
	if _, err := os.Stat(art.LocalPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("rejected artifact file should be removed: %v", err)
	}
}

func TestRunRetriesUntilDelivered(t *testing.T) {
	q := NewQueue()
	store := &fakeStore{errs: []error{objstore.ErrNetwork, objstore.ErrNetwork}}
	w := newTestWorker(t, q, store)

	art := spoolFile(t, "payload")
	q.Enqueue(art)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		if _, err := os.Stat(art.LocalPath); errors.Is(err, os.ErrNotExist) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("artifact never delivered after transient failures")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	if attempts := len(store.attempts()); attempts != 3 {
		t.Fatalf("put attempts = %d, want 3 (two failures, one success)", attempts)
	}
}

func TestRunStopsOnCancelWhileIdle(t *testing.T) {
	q := NewQueue()
	w := newTestWorker(t, q, &fakeStore{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit on cancellation")
	}
}
