package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exam-engine/internal/config"
	"github.com/stemsi/exam-engine/internal/model"
)

// Message is what attempt subscribers receive on the per-attempt channel.
type Message struct {
	Event   string                   `json:"event"`
	Outcome *model.SubmissionOutcome `json:"outcome,omitempty"`
}

// EventSubmitted is the Message.Event for a completed submission.
const EventSubmitted = "submitted"

// RedisNotifier publishes submission outcomes on each attempt's Pub/Sub
// channel so every server holding a socket for the attempt hears about it.
type RedisNotifier struct {
	rdb redis.UniversalClient
}

// NewRedisNotifier creates a new RedisNotifier.
func NewRedisNotifier(rdb redis.UniversalClient) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

// Publish sends the outcome to the attempt's channel.
func (n *RedisNotifier) Publish(ctx context.Context, outcome model.SubmissionOutcome) error {
	payload, err := json.Marshal(Message{Event: EventSubmitted, Outcome: &outcome})
	if err != nil {
		return err
	}
	channel := config.CacheKey.AttemptChannel(outcome.AttemptID.String())
	if err := n.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe listens on the attempt's channel. Callers close the returned PubSub.
func (n *RedisNotifier) Subscribe(ctx context.Context, attemptID uuid.UUID) *redis.PubSub {
	return n.rdb.Subscribe(ctx, config.CacheKey.AttemptChannel(attemptID.String()))
}

// DecodeMessage parses a payload received from an attempt channel.
func DecodeMessage(payload string) (Message, error) {
	var m Message
	err := json.Unmarshal([]byte(payload), &m)
	return m, err
}
