package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/clock"
	"github.com/stemsi/exam-engine/internal/logger"
	"github.com/stemsi/exam-engine/internal/model"
)

const (
	ExpiryBatchSize = 100
	// ExpiryGrace leaves attempts with a live countdown to expire on their own.
	ExpiryGrace = 5 * time.Second
)

// ExpiredLister finds open attempts whose time budget ended before now.
type ExpiredLister interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// AutoSubmitter submits an attempt whose time ran out.
type AutoSubmitter interface {
	AutoSubmit(ctx context.Context, attemptID uuid.UUID) (*model.SubmissionOutcome, error)
}

// ExpiryWorker periodically auto-submits attempts that expired while no
// process was running their countdown (restart, crash, abandoned tab).
type ExpiryWorker struct {
	sessions  ExpiredLister
	submitter AutoSubmitter
	clock     clock.Clock
	interval  time.Duration
	log       zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(sessions ExpiredLister, submitter AutoSubmitter, clk clock.Clock, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		sessions:  sessions,
		submitter: submitter,
		clock:     clk,
		interval:  interval,
		log:       logger.Component(log, "expiry_worker"),
	}
}

// Start sweeps once per interval until ctx is done. Call in a goroutine.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	w.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C():
			w.Sweep(ctx)
		}
	}
}

// Sweep submits one batch of expired attempts and returns how many succeeded.
func (w *ExpiryWorker) Sweep(ctx context.Context) int {
	ids, err := w.sessions.ListExpired(ctx, w.clock.Now().Add(-ExpiryGrace), ExpiryBatchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("List expired attempts failed")
		}
		return 0
	}

	submitted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		out, err := w.submitter.AutoSubmit(ctx, id)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", id.String()).Msg("Auto-submit of expired attempt failed")
			continue
		}
		if !out.Duplicate {
			submitted++
		}
	}
	if submitted > 0 {
		w.log.Info().Int("count", submitted).Msg("Expired attempts submitted")
	}
	return submitted
}
