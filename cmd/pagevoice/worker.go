package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pagevoice/pagevoice/internal/blobstore"
	"github.com/pagevoice/pagevoice/internal/config"
	"github.com/pagevoice/pagevoice/internal/docstore"
	"github.com/pagevoice/pagevoice/internal/home"
	"github.com/pagevoice/pagevoice/internal/jobs"
	"github.com/pagevoice/pagevoice/internal/taskqueue"
	"github.com/pagevoice/pagevoice/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a page processing worker",
	Long: `Run a worker that consumes page and notification tasks.

Workers join a shared queue group on the task stream, so running more of
them scales page throughput horizontally. Each page task extracts the
page's text from the source PDF, synthesizes it through the configured TTS
engine, and stores the resulting WAV segment.

Examples:
  pagevoice worker                   # Run with config defaults
  pagevoice worker --config prod.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		docs, err := docstore.OpenSQLite(h.ResolveDatabasePath(cfg.Store.SQLitePath))
		if err != nil {
			return fmt.Errorf("open document store: %w", err)
		}
		defer docs.Close()

		logger.Info("connecting to NATS", "url", cfg.NATS.URL)
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("pagevoice-worker"))
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer nc.Close()

		js, err := nc.JetStream()
		if err != nil {
			return fmt.Errorf("get JetStream context: %w", err)
		}

		blobs, err := blobstore.NewNATSStore(js, cfg.NATS.BlobBucket)
		if err != nil {
			return fmt.Errorf("create blob store: %w", err)
		}

		queue, err := taskqueue.NewNATSQueue(js, logger)
		if err != nil {
			return fmt.Errorf("create task queue: %w", err)
		}

		synth := worker.NewHTTPSynthesizer(
			cfg.TTS.URL,
			cfg.TTS.Language,
			cfg.TTS.Temperature,
			time.Duration(cfg.TTS.TimeoutSec)*time.Second,
		)
		if err := synth.HealthCheck(ctx); err != nil {
			logger.Warn("TTS engine not reachable yet", "url", cfg.TTS.URL, "error", err)
		}

		w := worker.New(jobs.NewStore(docs), blobs, synth, nil, logger)

		logger.Info("worker started", "tts_url", cfg.TTS.URL)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return queue.Consume(gctx, taskqueue.TaskProcessPage, w.HandlePage)
		})
		g.Go(func() error {
			return queue.Consume(gctx, taskqueue.TaskSendEmail, w.HandleEmail)
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
