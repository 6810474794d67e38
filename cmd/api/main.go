// Package main is the entry point for the rowlab API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/swdrow/rowlab/internal/api"
	"github.com/swdrow/rowlab/internal/config"
	"github.com/swdrow/rowlab/internal/db"
	"github.com/swdrow/rowlab/internal/idempotency"
	"github.com/swdrow/rowlab/internal/jobs"
	"github.com/swdrow/rowlab/internal/middleware"
	"github.com/swdrow/rowlab/internal/passive"
	"github.com/swdrow/rowlab/internal/ranking"
	"github.com/swdrow/rowlab/internal/rating"
	"github.com/swdrow/rowlab/internal/seatrace"
	"github.com/swdrow/rowlab/internal/stats"
	"github.com/swdrow/rowlab/internal/tracing"
)

// ratingApplier adapts the batch updater to the recorder's narrower
// auto-apply hook.
type ratingApplier struct {
	updater *rating.BatchUpdater
}

func (a *ratingApplier) ApplyPending(ctx context.Context, teamID string) error {
	_, err := a.updater.ApplyPendingObservations(ctx, teamID, rating.ApplyOptions{})
	return err
}

// redisChecker adapts a redis client to the readiness probe.
type redisChecker struct {
	client *redis.Client
}

func (c *redisChecker) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Rowlab Ranking API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	tracer, err := tracing.NewProvider(context.Background(), tracing.Config{
		ServiceName:  "rowlab-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporterType,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracing", "error", err)
		}
	}()
	if tracer.IsEnabled() {
		logger.Info("tracing enabled", "exporter", cfg.TracingExporterType, "sampling_rate", cfg.TracingSamplingRate)
	}

	// Storage. An empty database URL selects in-memory stores.
	var (
		conn         *sql.DB
		observations passive.ObservationRepository
		ratingStore  rating.Store
		dbChecker    api.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		conn, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		observations = passive.NewPostgresObservationRepository(conn, logger)
		ratingStore = rating.NewPostgresStore(conn, logger)
		dbChecker = db.NewChecker(conn)
		logger.Info("using postgres storage")
	} else {
		observations = passive.NewInMemoryObservationRepository()
		ratingStore = rating.NewInMemoryStore()
		logger.Warn("no database configured, using in-memory storage")
	}

	// Rate limiting. Redis shares counters across replicas, the
	// in-memory store is per-process.
	var (
		rateLimitStore middleware.RateLimitStore
		memLimiter     *middleware.InMemoryRateLimitStore
		cacheChecker   api.HealthChecker
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		rateLimitStore = middleware.NewRedisRateLimitStore(client)
		cacheChecker = &redisChecker{client: client}
		logger.Info("using redis rate limit store")
	} else {
		memLimiter = middleware.NewInMemoryRateLimitStore()
		rateLimitStore = memLimiter
	}
	rateLimitConfig := middleware.DefaultGlobalLimit()
	rateLimitConfig.RequestsPerWindow = cfg.RateLimitRequestsPerMinute

	// Session data is owned by the scheduling system; this service only
	// reads lineups and results out of it.
	sessions := seatrace.NewInMemorySessionStore()
	ergStore := ranking.NewInMemoryErgStore()
	attendanceStore := ranking.NewInMemoryAttendanceStore()

	// Domain services.
	applyStats := stats.NewApplyStats()
	eloUpdater := rating.NewEloUpdater(ratingStore, rating.DefaultKFactor, logger)
	batchUpdater := rating.NewBatchUpdater(observations, eloUpdater, ratingStore, applyStats, logger)
	extractor := seatrace.NewExtractor(sessions, logger)
	recorder := passive.NewRecorder(observations, sessions, &ratingApplier{updater: batchUpdater}, passive.RecorderConfig{
		MinSplitDifference: cfg.MinSplitDifferenceSeconds,
		DefaultWeight:      cfg.DefaultPassiveWeight,
		Logger:             logger,
	})

	calibrated, err := ranking.LoadCalibration(cfg.RankingCalibrationPath)
	if err != nil {
		logger.Warn("failed to load ranking calibration, using defaults", "error", err)
	}
	calculator := ranking.NewCalculator(ratingStore, ergStore, attendanceStore, calibrated, logger)

	// Metrics.
	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	// Background auto-apply.
	tracker := jobs.NewDirtyTracker()
	var autoApply *jobs.AutoApplyJob
	if cfg.AutoApplyEnabled {
		autoApply = jobs.NewAutoApplyJob(jobs.AutoApplyJobConfig{
			Interval:   time.Duration(cfg.AutoApplyIntervalSeconds) * time.Second,
			BatchLimit: cfg.ApplyBatchLimit,
			Logger:     logger,
			Metrics:    jobMetrics,
		}, tracker, batchUpdater)
	}

	// Handlers.
	comparisonHandlers := api.NewComparisonHandlers(extractor)
	observationHandlers := api.NewObservationHandlers(recorder, tracker)
	ratingHandlers := api.NewRatingHandlers(batchUpdater, ratingStore, tracker)
	rankingHandlers := api.NewRankingHandlers(calculator)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:      dbChecker,
		CacheChecker:   cacheChecker,
		MetricsEnabled: true,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandlers.Health)
	mux.HandleFunc("GET /ready", healthHandlers.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Ingestion writes durable records, so it gets a tighter per-IP cap
	// on top of the global limit. The key prefix keeps the two windows
	// from sharing counters.
	ingestKey := func(r *http.Request) string { return "ingest:" + middleware.IPKeyFunc()(r) }
	ingestLimiter := middleware.RateLimiter(rateLimitStore, middleware.DefaultIngestLimit(), ingestKey)
	mux.Handle("POST /v1/observations", ingestLimiter(http.HandlerFunc(observationHandlers.RecordObservation)))
	mux.Handle("POST /v1/observations/split", ingestLimiter(http.HandlerFunc(observationHandlers.RecordSplitObservation)))
	mux.HandleFunc("POST /v1/sessions/{sessionID}/passive-tracking", observationHandlers.ProcessSession)
	mux.HandleFunc("GET /v1/teams/{teamID}/passive-stats", observationHandlers.TeamStats)
	mux.HandleFunc("GET /v1/teams/{teamID}/comparisons", comparisonHandlers.ExtractComparisons)
	mux.HandleFunc("GET /v1/teams/{teamID}/ratings", ratingHandlers.ListRatings)
	mux.HandleFunc("POST /v1/teams/{teamID}/ratings/apply", ratingHandlers.ApplyRatings)
	mux.HandleFunc("GET /v1/teams/{teamID}/rankings", rankingHandlers.GetRankings)

	// Ingestion POSTs are retryable via Idempotency-Key.
	idempotencyRepo := idempotency.NewInMemoryRepository()
	idempotentRoutes := map[string]bool{
		"/v1/observations":       true,
		"/v1/observations/split": true,
	}

	// Middleware: RequestID -> Tracing -> Logging -> RateLimiter -> HTTPMetrics -> Idempotency.
	limiter := middleware.RateLimiter(rateLimitStore, rateLimitConfig, middleware.IPKeyFunc())
	dedupe := middleware.Idempotency(idempotencyRepo, idempotentRoutes)
	handler := middleware.Logging(logger)(limiter(middleware.HTTPMetrics(httpMetrics)(dedupe(mux))))
	if tracer.IsEnabled() {
		handler = middleware.Tracing("rowlab-api")(handler)
	}
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	go idempotency.RunPeriodicCleanup(jobCtx, idempotencyRepo, time.Hour, idempotency.DefaultExpiry)
	if memLimiter != nil {
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-jobCtx.Done():
					return
				case <-ticker.C:
					memLimiter.Cleanup()
				}
			}
		}()
	}
	if autoApply != nil {
		if err := autoApply.Start(jobCtx); err != nil {
			logger.Error("failed to start auto-apply job", "error", err)
			os.Exit(1)
		}
		logger.Info("auto-apply job started", "interval_seconds", cfg.AutoApplyIntervalSeconds)
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	if autoApply != nil {
		autoApply.Stop()
	}
	cancelJobs()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
