package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exam-engine/internal/config"
	"github.com/stemsi/exam-engine/internal/model"
)

// AnswerQueue is the producer side of the autosave pipeline.
type AnswerQueue struct {
	rdb redis.Cmdable
}

// NewAnswerQueue creates a new AnswerQueue.
func NewAnswerQueue(rdb redis.Cmdable) *AnswerQueue {
	return &AnswerQueue{rdb: rdb}
}

// Enqueue appends a snapshot to persist_answers_queue.
func (q *AnswerQueue) Enqueue(ctx context.Context, snap model.AnswerSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := q.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue answers of %s: %w", snap.AttemptID, err)
	}
	return nil
}
