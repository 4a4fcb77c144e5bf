// Package main is the entrypoint for the seatwatch API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/seatmetrics/seatwatch/internal/api"
	"github.com/seatmetrics/seatwatch/internal/api/handler"
	mw "github.com/seatmetrics/seatwatch/internal/api/middleware"
	"github.com/seatmetrics/seatwatch/internal/cache"
	"github.com/seatmetrics/seatwatch/internal/config"
	"github.com/seatmetrics/seatwatch/internal/detector"
	"github.com/seatmetrics/seatwatch/internal/events"
	"github.com/seatmetrics/seatwatch/internal/jobs"
	"github.com/seatmetrics/seatwatch/internal/live"
	"github.com/seatmetrics/seatwatch/internal/occupancy"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; .env is optional and real env vars win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "detector_provider", cfg.Detector.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database and migrate
	pool, err := jobs.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := jobs.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 3. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 4. Create detection pipeline
	pipeline, err := detector.New(cfg.Detector)
	if err != nil {
		return fmt.Errorf("create detector: %w", err)
	}
	// A pipeline that cannot be reached would accept jobs only to fail
	// them inside workers; refuse to start instead.
	if err := verifyPipeline(ctx, pipeline); err != nil {
		return err
	}
	slog.Info("detector initialized", "provider", pipeline.Name())

	// 5. Seat transition publisher; AMQP is optional
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Events.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Queue)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		publisher = amqpPub
		slog.Info("amqp publisher connected", "queue", cfg.Events.Queue)
	}
	defer publisher.Close()

	// 6. Stores, recorder, job manager
	jobStore := jobs.NewPostgresStore(pool)
	seatStore := occupancy.NewPostgresStore(pool)
	recorder := occupancy.NewRecorder(seatStore, publisher, cfg.Occupancy.SnapshotEvery)

	manager := jobs.NewManager(jobs.ManagerOptions{
		Store:     jobStore,
		Pipeline:  pipeline,
		Cache:     redisCache,
		Detector:  cfg.Detector,
		Occupancy: cfg.Occupancy,
		Jobs:      cfg.Jobs,
		Storage:   cfg.Storage,
	})

	if err := manager.RecoverOrphans(ctx); err != nil {
		return fmt.Errorf("recover orphaned jobs: %w", err)
	}
	if removed, err := manager.RetentionSweep(ctx); err != nil {
		slog.Warn("startup retention sweep failed", "error", err)
	} else if removed > 0 {
		slog.Info("startup retention sweep", "removed", removed)
	}

	// 7. Live session; the capture runner only exists when a camera is configured
	session := live.NewSession(live.SessionOptions{
		Pipeline:  pipeline,
		Recorder:  recorder,
		Cache:     redisCache,
		Detector:  cfg.Detector,
		Occupancy: cfg.Occupancy,
	})

	var runner *live.Runner
	if cfg.Live.SnapshotURL != "" {
		source := live.NewHTTPSource(cfg.Live.SnapshotURL, cfg.Live.CaptureInterval)
		runner = live.NewRunner(session, source, cfg.Live.CaptureInterval)
		slog.Info("live capture configured", "interval", cfg.Live.CaptureInterval)
	}

	// 8. Build router with dependencies
	auth := mw.NewAuth(cfg.Auth.APIKeyHash)
	rateLimit := mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMin)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(handler.HealthDeps{
			Store:    jobStore,
			Cache:    redisCache,
			Detector: pipeline,
			Jobs:     manager,
		}),

		DetectHandler:    handler.NewDetectHandler(manager, cfg.Storage),
		GetJobHandler:    handler.NewGetJobHandler(manager),
		ListJobsHandler:  handler.NewListJobsHandler(manager),
		DeleteJobHandler: handler.NewDeleteJobHandler(manager),
		DownloadHandler:  handler.NewDownloadHandler(manager),
		CleanupHandler:   handler.NewCleanupHandler(manager),

		ProcessFrameHandler: handler.NewProcessFrameHandler(session),
		UploadFrameHandler:  handler.NewUploadFrameHandler(session),
		FrameStatsHandler:   handler.NewFrameStatsHandler(session),
		ResetFramesHandler:  handler.NewResetFramesHandler(session),

		StartLiveHandler:     startLiveHandler(runner),
		StopLiveHandler:      stopLiveHandler(runner),
		LiveStatusHandler:    liveStatusHandler(runner),
		LiveOccupancyHandler: handler.NewLiveOccupancyHandler(session),

		ListSeatsHandler:   handler.NewListSeatsHandler(seatStore),
		GetSeatHandler:     handler.NewGetSeatHandler(seatStore),
		HistoryHandler:     handler.NewHistoryHandler(seatStore),
		StatsHandler:       handler.NewStatsHandler(seatStore),
		LatestStatsHandler: handler.NewLatestStatsHandler(redisCache, seatStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// 10. Graceful shutdown: stop accepting requests, stop live capture,
	// then drain queued jobs.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}
	if runner != nil {
		if err := runner.Stop(); err != nil && !errors.Is(err, live.ErrNotRunning) {
			slog.Warn("live capture stop failed", "error", err)
		}
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		slog.Warn("job drain incomplete", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// verifyPipeline confirms the detection backend is reachable before the
// server starts accepting submissions.
func verifyPipeline(ctx context.Context, p detector.Pipeline) error {
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("detector %s not reachable: %w", p.Name(), err)
	}
	return nil
}

// The live capture handlers take the handler.CaptureController interface; a
// nil *live.Runner wrapped in the interface would not compare equal to nil,
// so the untyped case is handled here.
func startLiveHandler(runner *live.Runner) http.HandlerFunc {
	if runner == nil {
		return handler.NewStartLiveHandler(nil)
	}
	return handler.NewStartLiveHandler(runner)
}

func stopLiveHandler(runner *live.Runner) http.HandlerFunc {
	if runner == nil {
		return handler.NewStopLiveHandler(nil)
	}
	return handler.NewStopLiveHandler(runner)
}

func liveStatusHandler(runner *live.Runner) http.HandlerFunc {
	if runner == nil {
		return handler.NewLiveStatusHandler(nil)
	}
	return handler.NewLiveStatusHandler(runner)
}
