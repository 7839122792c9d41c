package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/logger"
	"github.com/stemsi/exam-engine/internal/response"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	checks    map[string]Check
	live      func() int
	startTime time.Time
	log       zerolog.Logger
}

// NewHealthHandler creates a HealthHandler. live reports the number of
// attempts held in memory.
func NewHealthHandler(checks map[string]Check, live func() int, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		live:      live,
		startTime: time.Now(),
		log:       logger.Component(log, "health_handler"),
	}
}

type healthReport struct {
	Status       string            `json:"status"`
	Uptime       string            `json:"uptime"`
	Goroutines   int               `json:"goroutines"`
	LiveAttempts int               `json:"live_attempts"`
	Checks       map[string]string `json:"checks"`
}

// Health godoc
// GET /health
// Returns 200 when every dependency answers, 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	report := healthReport{
		Status:     "ok",
		Uptime:     time.Since(h.startTime).Truncate(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		Checks:     make(map[string]string, len(h.checks)),
	}
	if h.live != nil {
		report.LiveAttempts = h.live()
	}

	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn().Err(err).Str("check", name).Msg("Health check failed")
			report.Checks[name] = "down"
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		report.Checks[name] = "up"
	}

	response.Success(c, status, report)
}
