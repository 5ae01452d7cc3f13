package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/groundwork/internal/api/handlers"
	"github.com/cloo-solutions/groundwork/internal/jobs"
	"github.com/cloo-solutions/groundwork/internal/server"
	"github.com/cloo-solutions/groundwork/internal/telemetry"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and indexing worker",
		Long:  "Start the groundwork API server on the specified port together with the background indexing worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (defaults to GROUNDWORK_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-worker", false, "Serve the API without running the indexing worker")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	rt, err := openRuntime(ctx, runtimeOptions{migrate: !noMigrate})
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logger := rt.cfg, rt.logger

	if cfg.HasSentry() {
		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			logger.Warn("telemetry init failed, continuing without tracing", "error", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	healthSvc := rt.healthService()
	if err := healthSvc.EnsureRetrievalReady(ctx); err != nil {
		logger.Warn("retrieval is not ready; indexing and answers will fail until this is fixed", "error", err)
	}

	noWorker, _ := cmd.Flags().GetBool("no-worker")
	var worker *jobs.Worker
	var indexingWorker *jobs.IndexingWorker
	if !noWorker {
		indexingWorker, err = jobs.NewIndexingWorker(rt.jobs, rt.indexingService(), jobs.IndexingWorkerOptions{
			Concurrency: cfg.IndexConcurrency,
			JobTimeout:  cfg.IndexTimeout,
			MaxRetries:  cfg.IndexMaxRetries,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create indexing worker: %w", err)
		}
		defer indexingWorker.Release()

		worker = jobs.NewWorker(indexingWorker, cfg.WorkerPollInterval, logger)
		go worker.Start(ctx)
	}

	router := server.NewRouter(server.RouterConfig{
		Logger:        logger,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		EntryHandler:  handlers.NewEntryHandler(rt.entryService()),
		AskHandler:    handlers.NewAskHandler(rt.answerService(), logger),
		HealthHandler: handlers.NewHealthHandler(healthSvc),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "vector_store", cfg.VectorStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	if worker != nil {
		worker.Stop()
		indexingWorker.Wait()
	}

	logger.Info("server exited")
	return nil
}
