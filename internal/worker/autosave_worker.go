package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/config"
	"github.com/stemsi/exam-engine/internal/logger"
	"github.com/stemsi/exam-engine/internal/model"
	"github.com/stemsi/exam-engine/internal/repository"
)

const (
	AutosaveBatchSize   = 50
	AutosavePollTimeout = 1 * time.Second // Must be >= 1s to satisfy Redis
	AutosaveRetryDelay  = 5 * time.Second
)

// AnswerStore writes answer snapshots. Stale revisions are ignored by the
// store; a completed attempt yields repository.ErrConflict.
type AnswerStore interface {
	SaveAnswers(ctx context.Context, id uuid.UUID, answers model.Answers, revision int64) error
}

// AutosaveWorker consumes persist_answers_queue and writes the newest
// snapshot of each attempt to PostgreSQL.
type AutosaveWorker struct {
	store AnswerStore
	rdb   redis.Cmdable
	log   zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(store AnswerStore, rdb redis.Cmdable, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		store: store,
		rdb:   rdb,
		log:   logger.Component(log, "autosave_worker"),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or the poll timeout passes.
	result, err := w.rdb.BLPop(ctx, AutosavePollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	raws := []string{result[1]}
	// Pick up whatever else is waiting so bursts collapse into one write per attempt.
	more, err := w.rdb.LPopCount(ctx, config.WorkerKey.PersistAnswersQueue, AutosaveBatchSize-1).Result()
	if err == nil {
		raws = append(raws, more...)
	}

	failed := w.persist(ctx, decodeSnapshots(raws, w.log))
	if len(failed) == 0 {
		return
	}
	w.requeue(ctx, failed)
	select {
	case <-ctx.Done():
	case <-time.After(AutosaveRetryDelay):
	}
}

// persist writes the newest snapshot per attempt and returns the ones that
// should be retried.
func (w *AutosaveWorker) persist(ctx context.Context, snaps []model.AnswerSnapshot) []model.AnswerSnapshot {
	var failed []model.AnswerSnapshot
	for _, snap := range latestPerAttempt(snaps) {
		err := w.store.SaveAnswers(ctx, snap.AttemptID, snap.Answers, snap.Revision)
		switch {
		case err == nil:
		case errors.Is(err, repository.ErrConflict):
			w.log.Debug().
				Str("attempt_id", snap.AttemptID.String()).
				Msg("Attempt already submitted, snapshot dropped")
		case errors.Is(err, repository.ErrNotFound):
			w.log.Warn().
				Str("attempt_id", snap.AttemptID.String()).
				Msg("Snapshot for unknown attempt dropped")
		default:
			w.log.Error().Err(err).
				Str("attempt_id", snap.AttemptID.String()).
				Int64("revision", snap.Revision).
				Msg("Persist error, retrying")
			failed = append(failed, snap)
		}
	}
	return failed
}

func (w *AutosaveWorker) requeue(ctx context.Context, snaps []model.AnswerSnapshot) {
	for _, snap := range snaps {
		raw, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		if err := w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw).Err(); err != nil {
			w.log.Error().Err(err).Str("attempt_id", snap.AttemptID.String()).Msg("Requeue failed")
		}
	}
}

// drain processes all remaining items in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	var raws []string
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}
		raws = append(raws, result)
	}
	if len(raws) == 0 {
		return
	}

	snaps := decodeSnapshots(raws, w.log)
	failed := w.persist(ctx, snaps)
	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
	w.log.Info().Int("count", len(snaps)-len(failed)).Msg("Drained remaining items")
}

func decodeSnapshots(raws []string, log zerolog.Logger) []model.AnswerSnapshot {
	snaps := make([]model.AnswerSnapshot, 0, len(raws))
	for _, raw := range raws {
		var snap model.AnswerSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			log.Error().Err(err).Msg("Unmarshal error")
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// latestPerAttempt keeps the highest revision of each attempt, in first-seen order.
func latestPerAttempt(snaps []model.AnswerSnapshot) []model.AnswerSnapshot {
	index := make(map[uuid.UUID]int, len(snaps))
	out := make([]model.AnswerSnapshot, 0, len(snaps))
	for _, s := range snaps {
		i, ok := index[s.AttemptID]
		if !ok {
			index[s.AttemptID] = len(out)
			out = append(out, s)
			continue
		}
		if s.Revision > out[i].Revision {
			out[i] = s
		}
	}
	return out
}
