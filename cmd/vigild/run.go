package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vigil/internal/agent"
	"vigil/internal/artifact"
	"vigil/internal/config"
	"vigil/internal/debug"
	"vigil/internal/metrics"
	"vigil/internal/tz"
	"vigil/internal/uploader"
	"vigil/pkg/logging"
	"vigil/pkg/objstore"
)

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vigil"
	}
	return filepath.Join(home, ".vigil")
}

func newRunCommand() *cobra.Command {
	var (
		configPath string
		spoolDir   string
		debugAddr  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the agent and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := logging.New("vigild", os.Stdout)

			store, err := objstore.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("init object storage client: %w", err)
			}

			cfg, err := config.Open(configPath)
			if err != nil {
				return fmt.Errorf("open config store: %w", err)
			}

			watcher := tz.NewWatcher(logger)
			producer, err := artifact.NewProducer(spoolDir, watcher.Current())
			if err != nil {
				return fmt.Errorf("init artifact producer: %w", err)
			}

			m := metrics.NewDefault()
			queue := uploader.NewQueue()
			worker := uploader.NewWorker(queue, store, logger, m)

			a, err := agent.New(agent.Options{
				Config:   cfg,
				Producer: producer,
				Queue:    queue,
				Worker:   worker,
				Metrics:  m,
				Logger:   logger,
				TZ:       watcher,
			})
			if err != nil {
				return fmt.Errorf("init agent: %w", err)
			}

			if err := a.EnqueueBacklog(); err != nil {
				logger.Printf("WARN %v", err)
			}

			logger.Printf("INFO vigild %s starting (spool=%s bucket=%s)", version, spoolDir, store.Bucket())

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.Run(ctx) })
			if debugAddr != "" {
				srv := debug.NewServer(debugAddr, queue, logger)
				g.Go(func() error { return srv.Run(ctx) })
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Printf("INFO vigild stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", filepath.Join(defaultDataDir(), "agent.yaml"), "Path to the runtime configuration file")
	cmd.Flags().StringVar(&spoolDir, "spool-dir", filepath.Join(defaultDataDir(), "spool"), "Directory holding artifacts pending delivery")
	cmd.Flags().StringVar(&debugAddr, "debug-addr", "127.0.0.1:9090", "Listen address for health and metrics endpoints (empty disables)")
	return cmd
}
