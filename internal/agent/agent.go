// Package agent supervises the sensing and delivery loops. Four periodic
// loops (capture, housekeeping, config refresh, timezone refresh), two input
// listeners, and the delivery worker are started together and joined on
// shutdown; cancellation is cooperative, observed at each loop's wake-up.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"vigil/internal/artifact"
	"vigil/internal/capture"
	"vigil/internal/config"
	"vigil/internal/detect"
	"vigil/internal/input"
	"vigil/internal/metrics"
	"vigil/internal/tz"
	"vigil/internal/uploader"
)

const (
	// DefaultConfigRefreshInterval is how often the runtime config file is
	// reloaded.
	DefaultConfigRefreshInterval = 10 * time.Second

	// DefaultHousekeepingInterval is the heartbeat cadence of the
	// housekeeping loop.
	DefaultHousekeepingInterval = time.Second
)

// Options wire an Agent's collaborators. Config, Producer, Queue, Worker,
// Metrics and Logger are required; the rest default to platform-neutral
// implementations.
type Options struct {
	Config   *config.Store
	Producer *artifact.Producer
	Queue    *uploader.Queue
	Worker   *uploader.Worker
	Metrics  *metrics.Set
	Logger   *log.Logger

	Screen   capture.Provider
	Mouse    input.Source
	Keyboard input.Source
	TZ       *tz.Watcher

	ConfigRefreshInterval time.Duration
	HousekeepingInterval  time.Duration
}

// Agent owns the lifecycle of the sensing-and-delivery pipeline.
type Agent struct {
	cfg      *config.Store
	producer *artifact.Producer
	queue    *uploader.Queue
	worker   *uploader.Worker
	metrics  *metrics.Set
	logger   *log.Logger

	screen   capture.Provider
	mouse    input.Source
	keyboard input.Source
	tzWatch  *tz.Watcher

	configRefresh time.Duration
	housekeeping  time.Duration
}

// New validates options and returns an Agent ready to Run.
func New(opts Options) (*Agent, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("config store is required")
	case opts.Producer == nil:
		return nil, errors.New("artifact producer is required")
	case opts.Queue == nil:
		return nil, errors.New("delivery queue is required")
	case opts.Worker == nil:
		return nil, errors.New("delivery worker is required")
	case opts.Metrics == nil:
		return nil, errors.New("metrics set is required")
	case opts.Logger == nil:
		return nil, errors.New("logger is required")
	}

	a := &Agent{
		cfg:           opts.Config,
		producer:      opts.Producer,
		queue:         opts.Queue,
		worker:        opts.Worker,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		screen:        opts.Screen,
		mouse:         opts.Mouse,
		keyboard:      opts.Keyboard,
		tzWatch:       opts.TZ,
		configRefresh: opts.ConfigRefreshInterval,
		housekeeping:  opts.HousekeepingInterval,
	}
	if a.screen == nil {
		a.screen = capture.Synthetic{}
	}
	if a.mouse == nil {
		a.mouse = input.Null{}
	}
	if a.keyboard == nil {
		a.keyboard = input.Null{}
	}
	if a.configRefresh <= 0 {
		a.configRefresh = DefaultConfigRefreshInterval
	}
	if a.housekeeping <= 0 {
		a.housekeeping = DefaultHousekeepingInterval
	}
	return a, nil
}

// Run starts every loop and blocks until ctx is cancelled and all loops have
// exited. The returned error is ctx's error on a clean shutdown.
func (a *Agent) Run(ctx context.Context) error {
	if a.tzWatch != nil {
		a.tzWatch.OnChange(a.producer.SetLocation)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.worker.Run(ctx) })
	g.Go(func() error { return a.captureLoop(ctx) })
	g.Go(func() error { return a.housekeepingLoop(ctx) })
	g.Go(func() error { return a.configRefreshLoop(ctx) })
	if a.tzWatch != nil {
		g.Go(func() error { return a.tzWatch.Run(ctx) })
	}
	g.Go(func() error { return a.listen(ctx, a.mouse, "mouse") })
	g.Go(func() error { return a.listen(ctx, a.keyboard, "keyboard") })

	return g.Wait()
}

// EnqueueBacklog rescans the spool directory and re-queues artifacts left by
// a previous run.
func (a *Agent) EnqueueBacklog() error {
	backlog, err := a.producer.Rescan()
	if err != nil {
		return fmt.Errorf("rescan spool: %w", err)
	}
	for _, art := range backlog {
		a.queue.Enqueue(art)
	}
	if len(backlog) > 0 {
		a.logger.Printf("INFO re-queued %d artifact(s) from previous run", len(backlog))
	}
	return nil
}

// captureLoop drives the screenshot path. The interval and flags are
// re-read from the config store every iteration, so changes take effect on
// the next cycle.
func (a *Agent) captureLoop(ctx context.Context) error {
	for {
		snap := a.cfg.Snapshot()
		if snap.CaptureScreenshots {
			a.captureOnce(ctx, snap.BlurScreenshots)
		}
		if err := sleep(ctx, snap.ScreenshotInterval); err != nil {
			return err
		}
	}
}

func (a *Agent) captureOnce(ctx context.Context, blur bool) {
	frame, err := a.screen.Grab(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Printf("ERROR capture screen: %v", err)
		}
		return
	}
	data, err := capture.Process(frame, blur)
	if err != nil {
		a.logger.Printf("ERROR process screenshot: %v", err)
		return
	}
	art, err := a.producer.WriteScreenshot(data)
	if err != nil {
		a.logger.Printf("ERROR persist screenshot: %v", err)
		return
	}
	a.logger.Printf("INFO screenshot saved: %s", art.LocalPath)
	a.metrics.ArtifactsCreated.WithLabelValues(art.Kind.String()).Inc()
	a.queue.Enqueue(art)
}

func (a *Agent) housekeepingLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.housekeeping)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.metrics.QueueDepth.Set(float64(a.queue.Len()))
		}
	}
}

func (a *Agent) configRefreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.configRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.cfg.Reload(); err != nil {
				a.logger.Printf("WARN reload config: %v", err)
			}
		}
	}
}

// listen streams one input device into its detector. Each listener owns its
// detector state; verdicts are produced synchronously on the event path.
func (a *Agent) listen(ctx context.Context, source input.Source, device string) error {
	var mouse detect.Mouse
	var keyboard detect.Keyboard

	err := source.Stream(ctx, func(ev input.Event) error {
		at := ev.At
		if at.IsZero() {
			at = time.Now()
		}
		switch ev.Kind {
		case input.MouseMove:
			flagged := mouse.Observe(ev.X, ev.Y, at)
			a.logger.Printf("DEBUG mouse speed: %.2f px/s", mouse.Speed())
			if flagged {
				a.flag("mouse movement", "mouse")
			}
		case input.KeyPress:
			flagged := keyboard.Observe(at)
			if spread, ok := keyboard.Spread(); ok {
				a.logger.Printf("DEBUG keyboard timing spread: %s", spread)
			}
			if flagged {
				a.flag("keyboard input", "keyboard")
			}
		}
		return nil
	})

	if errors.Is(err, input.ErrUnsupported) {
		a.logger.Printf("WARN %s listener unavailable: %v", device, err)
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		a.logger.Printf("ERROR %s listener stopped: %v", device, err)
	}
	if err == nil {
		// Source drained (e.g. closed channel); hold until shutdown so the
		// group does not unwind the other loops.
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

// flag turns an anomaly verdict into a detection-log artifact.
func (a *Agent) flag(activityType, device string) {
	a.metrics.Anomalies.WithLabelValues(device).Inc()
	art, message, err := a.producer.WriteDetectionLog(activityType)
	if err != nil {
		a.logger.Printf("ERROR persist detection log: %v", err)
		return
	}
	a.logger.Printf("WARN %s", message)
	a.metrics.ArtifactsCreated.WithLabelValues(art.Kind.String()).Inc()
	a.queue.Enqueue(art)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
