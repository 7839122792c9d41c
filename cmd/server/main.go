package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/clock"
	"github.com/stemsi/exam-engine/internal/config"
	"github.com/stemsi/exam-engine/internal/database"
	"github.com/stemsi/exam-engine/internal/events"
	"github.com/stemsi/exam-engine/internal/handler"
	"github.com/stemsi/exam-engine/internal/logger"
	"github.com/stemsi/exam-engine/internal/middleware"
	"github.com/stemsi/exam-engine/internal/repository"
	"github.com/stemsi/exam-engine/internal/router"
	"github.com/stemsi/exam-engine/internal/sampling"
	"github.com/stemsi/exam-engine/internal/service"
	"github.com/stemsi/exam-engine/internal/validator"
	"github.com/stemsi/exam-engine/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting exam engine")

	// ─── Initialize Validator ──────────────────────────────────────────
	if err := validator.Setup(); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up request validation")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Event Publishing ──────────────────────────────────────────────
	publisher, err := events.NewPublisher(events.PublisherConfig{
		KafkaBrokers: cfg.KafkaBrokers,
		Topic:        cfg.EventsTopic,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create event publisher")
	}
	redisNotifier := events.NewRedisNotifier(rdb)

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	resultRepo := repository.NewExamResultRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	clk := clock.Real{}
	authService := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiry)
	examService := service.NewExamService(examRepo, questionRepo, rdb, cfg.CatalogCacheTTL, cfg.StoreTimeout, log)
	sessionService := service.NewExamSessionService(
		sessionRepo,
		examService,
		worker.NewAnswerQueue(rdb),
		clk,
		sampling.New(cfg.QuestionSampleSeed),
		service.SessionOptions{QuestionCount: cfg.AttemptQuestionCount, StoreTimeout: cfg.StoreTimeout},
		log,
	)
	submissionService := service.NewSubmissionService(
		sessionService,
		sessionRepo,
		resultRepo,
		events.Fanout{redisNotifier, publisher},
		clk,
		cfg.DefaultPassingScore,
		cfg.StoreTimeout,
		log,
	)
	resultService := service.NewResultService(sessionRepo, resultRepo, examService, cfg.DefaultPassingScore, cfg.StoreTimeout)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Exam:    handler.NewExamHandler(examService),
		Attempt: handler.NewAttemptHandler(sessionService, submissionService, resultService),
		WS:      handler.NewWSHandler(sessionService, submissionService, redisNotifier, log, cfg.AllowedOrigins),
		Health: handler.NewHealthHandler(map[string]handler.Check{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}, sessionService.Live, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	autosaveWorker := worker.NewAutosaveWorker(sessionRepo, rdb, log)
	expiryWorker := worker.NewExpiryWorker(sessionRepo, submissionService, clk, cfg.ExpirySweepInterval, log)

	workers.Add(2)
	go func() { defer workers.Done(); autosaveWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); expiryWorker.Start(workerCtx) }()

	if local := publisher.Local(); local != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := events.LogSubmissions(workerCtx, local, publisher.Topic(), log); err != nil {
				log.Error().Err(err).Msg("Submission log subscriber stopped")
			}
		}()
	}

	answerLimiter := middleware.NewRateLimiter(cfg.AnswerRateLimit, time.Minute)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				answerLimiter.Cleanup()
			}
		}
	}()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load the catalog into Redis before accepting traffic.
	if _, err := examService.ActiveExams(ctx); err != nil {
		log.Warn().Err(err).Msg("Catalog prewarm failed")
	}
	if _, err := examService.QuestionPool(ctx); err != nil {
		log.Warn().Err(err).Msg("Question pool prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, answerLimiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop countdowns. Open attempts are resumed on the next start, and
	// the expiry sweep submits any that ran out meanwhile.
	sessionService.Shutdown()

	// 3. Stop background workers and wait for the autosave queue to drain.
	workerCancel()
	workers.Wait()

	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Event publisher close error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
