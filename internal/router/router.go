package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/config"
	"github.com/stemsi/exam-engine/internal/handler"
	"github.com/stemsi/exam-engine/internal/middleware"
	"github.com/stemsi/exam-engine/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam    *handler.ExamHandler
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
	Health  *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	auth middleware.TokenParser,
	handlers *Handlers,
	answerLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware(log))

	router.Use(middleware.Brotli())

	router.GET("/health", handlers.Health.Health)

	// ─── 1. Catalog (JWT) ──────────────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireJWT(auth))
	{
		api.GET("/exams", middleware.CacheControl(30), handlers.Exam.ListExams)
	}

	// ─── 2. Attempts (JWT, no-store) ───────────────────────────────────
	attempts := api.Group("")
	attempts.Use(middleware.NoStore())
	{
		attempts.POST("/exams/:exam_id/attempts", handlers.Attempt.StartAttempt)
		attempts.GET("/attempts/:attempt_id", handlers.Attempt.GetAttempt)
		attempts.GET("/attempts/:attempt_id/questions/:index", handlers.Attempt.GetQuestion)
		attempts.PUT("/attempts/:attempt_id/answers", answerLimiter.Middleware(), handlers.Attempt.RecordAnswer)
		attempts.POST("/attempts/:attempt_id/submit", handlers.Attempt.Submit)
		attempts.GET("/attempts/:attempt_id/result", handlers.Attempt.GetResult)
	}

	// ─── 3. WebSocket (token query param) ──────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(auth))
	{
		ws.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
