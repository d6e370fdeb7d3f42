// Package uploader drains the delivery queue, compressing and transmitting
// each artifact to remote object storage. Failures are classified at exactly
// one decision point: transient classes re-enqueue the artifact at the tail
// and pause the worker for a fixed backoff; permanent classes drop it. The
// worker never terminates on a delivery error, so indefinite connectivity
// loss accumulates a local backlog instead of killing the agent.
package uploader

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"vigil/internal/artifact"
	"vigil/internal/metrics"
	"vigil/pkg/objstore"
)

const (
	// KeyPrefix is prepended to the local filename to form the remote key.
	KeyPrefix = "uploads/"

	// DefaultBackoff is the fixed pause before the queue resumes draining
	// after a retryable failure.
	DefaultBackoff = 10 * time.Second

	contentEncoding = "gzip"
)

// Transmitter ships a compressed payload to remote storage. Errors must be
// classified per the objstore taxonomy.
type Transmitter interface {
	Put(ctx context.Context, key string, body []byte, contentEncoding string) error
}

// Worker drains a Queue through a Transmitter.
type Worker struct {
	queue   *Queue
	store   Transmitter
	logger  *log.Logger
	metrics *metrics.Set
	backoff time.Duration
	sleep   func(context.Context, time.Duration)
}

// NewWorker constructs a Worker with the fixed default backoff.
func NewWorker(queue *Queue, store Transmitter, logger *log.Logger, m *metrics.Set) *Worker {
	return &Worker{
		queue:   queue,
		store:   store,
		logger:  logger,
		metrics: m,
		backoff: DefaultBackoff,
		sleep:   sleepCtx,
	}
}

// SetBackoff overrides the retry pause, for tests.
func (w *Worker) SetBackoff(d time.Duration) { w.backoff = d }

// Run processes artifacts in FIFO order until ctx is cancelled. An in-flight
// transmission is not interrupted; cancellation is observed at the next
// dequeue or backoff wait.
func (w *Worker) Run(ctx context.Context) error {
	for {
		art, err := w.queue.Pop(ctx)
		if err != nil {
			return err
		}
		if w.process(ctx, art) {
			w.sleep(ctx, w.backoff)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// process delivers one artifact and reports whether the worker should pause
// before draining further.
func (w *Worker) process(ctx context.Context, art artifact.Artifact) bool {
	data, err := os.ReadFile(art.LocalPath)
	if errors.Is(err, fs.ErrNotExist) {
		w.logger.Printf("WARN artifact file %s not found, dropping", art.LocalPath)
		w.metrics.Uploads.WithLabelValues(metrics.OutcomeDroppedMissingFile).Inc()
		return false
	}
	if err != nil {
		w.logger.Printf("ERROR read artifact %s: %v, will retry", art.LocalPath, err)
		w.metrics.Uploads.WithLabelValues(metrics.OutcomeRetriedUnexpected).Inc()
		w.queue.Enqueue(art)
		return true
	}

	compressed, err := compress(data)
	if err != nil {
		w.logger.Printf("ERROR compress artifact %s: %v, will retry", art.LocalPath, err)
		w.metrics.Uploads.WithLabelValues(metrics.OutcomeRetriedUnexpected).Inc()
		w.queue.Enqueue(art)
		return true
	}

	key := KeyPrefix + filepath.Base(art.LocalPath)
	err = w.store.Put(ctx, key, compressed, contentEncoding)

	switch {
	case err == nil:
		if err := os.Remove(art.LocalPath); err != nil {
			w.logger.Printf("WARN delivered %s but could not remove local file: %v", key, err)
		} else {
			w.logger.Printf("INFO uploaded %s as %s", art.LocalPath, key)
		}
		w.metrics.Uploads.WithLabelValues(metrics.OutcomeDelivered).Inc()
		return false

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Shutdown, not a delivery failure. Keep the artifact queued so the
		// spool rescan or a later run picks it up.
		w.queue.Enqueue(art)
		return false

	case errors.Is(err, objstore.ErrCredentialsMissing):
		w.logger.Printf("WARN storage credentials not available, queuing %s for retry", art.LocalPath)
		w.metrics.Uploads.WithLabelValues(metrics.OutcomeRetriedCredentials).Inc()
		w.queue.Enqueue(art)
		return true

	case errors.Is(err, objstore.ErrCredentialsIncomplete):
		// Operator configuration problem: not retried, but the local file is
		// kept so the backlog survives until the credentials are fixed.
		w.logger.Printf("ERROR storage credentials incomplete, dropping %s from queue (file kept)", art.LocalPath)
		w.metrics.Uploads.WithLabelValues(metrics.OutcomeDroppedCredentials).Inc()
		return false

	case errors.Is(err, objstore.ErrNetwork):
		w.logger.Printf("WARN no connectivity uploading %s, queuing for retry: %v", art.LocalPath, err)
		w.metrics.Uploads.WithLabelValues(metrics.OutcomeRetriedNetwork).Inc()
		w.queue.Enqueue(art)
		return true

	default:
		var rejected *objstore.RejectedError
		if errors.As(err, &rejected) {
			w.logger.Printf("ERROR upload of %s rejected (%s), dropping artifact: %v", art.LocalPath, rejected.Code, err)
			w.metrics.Uploads.WithLabelValues(metrics.OutcomeDroppedRejected).Inc()
			if err := os.Remove(art.LocalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				w.logger.Printf("WARN could not remove rejected artifact %s: %v", art.LocalPath, err)
			}
			return false
		}

		w.logger.Printf("ERROR unexpected failure uploading %s, queuing for retry: %v", art.LocalPath, err)
		w.metrics.Uploads.WithLabelValues(metrics.OutcomeRetriedUnexpected).Inc()
		w.queue.Enqueue(art)
		return true
	}
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
