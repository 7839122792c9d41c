package service

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/config"
	"github.com/stemsi/exam-engine/internal/logger"
	"github.com/stemsi/exam-engine/internal/model"
)

// ExamReader reads exams from the system of record.
type ExamReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListActive(ctx context.Context) ([]model.Exam, error)
}

// QuestionReader reads the active question pool.
type QuestionReader interface {
	ListActive(ctx context.Context) ([]model.Question, error)
}

// ExamService serves the read-only catalog, caching it in Redis as JSON.
// A nil Redis client disables caching.
type ExamService struct {
	exams        ExamReader
	questions    QuestionReader
	rdb          redis.Cmdable
	ttl          time.Duration
	storeTimeout time.Duration
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	exams ExamReader,
	questions QuestionReader,
	rdb redis.Cmdable,
	ttl time.Duration,
	storeTimeout time.Duration,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		exams:        exams,
		questions:    questions,
		rdb:          rdb,
		ttl:          ttl,
		storeTimeout: storeTimeout,
		log:          logger.Component(log, "exam_service"),
	}
}

// GetExam returns an exam by id.
func (s *ExamService) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	var exam model.Exam
	err := s.cached(ctx, config.CacheKey.ExamKey(id.String()), &exam, func(ctx context.Context) (any, error) {
		return s.exams.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

// ActiveExams lists exams open for attempts, newest first.
func (s *ExamService) ActiveExams(ctx context.Context) ([]model.Exam, error) {
	exams := []model.Exam{}
	err := s.cached(ctx, config.CacheKey.ActiveExamsKey(), &exams, func(ctx context.Context) (any, error) {
		return s.exams.ListActive(ctx)
	})
	return exams, err
}

// QuestionPool returns every active question, answer keys included.
func (s *ExamService) QuestionPool(ctx context.Context) ([]model.Question, error) {
	pool := []model.Question{}
	err := s.cached(ctx, config.CacheKey.QuestionPoolKey(), &pool, func(ctx context.Context) (any, error) {
		return s.questions.ListActive(ctx)
	})
	return pool, err
}

// Invalidate drops every cached catalog entry for the given exams plus the listings.
func (s *ExamService) Invalidate(ctx context.Context, examIDs ...uuid.UUID) error {
	if s.rdb == nil {
		return nil
	}
	keys := []string{config.CacheKey.ActiveExamsKey(), config.CacheKey.QuestionPoolKey()}
	for _, id := range examIDs {
		keys = append(keys, config.CacheKey.ExamKey(id.String()))
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// cached decodes key into dst, loading and storing it on a miss. Cache
// failures fall through to the store.
func (s *ExamService) cached(ctx context.Context, key string, dst any, load func(context.Context) (any, error)) error {
	if s.rdb != nil {
		data, err := s.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			if err := json.Unmarshal(data, dst); err == nil {
				return nil
			}
			s.log.Warn().Str("key", key).Msg("Corrupt cache entry, reloading")
		case !errors.Is(err, redis.Nil):
			s.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
	}

	lctx, cancel := withTimeout(ctx, s.storeTimeout)
	v, err := load(lctx)
	cancel()
	if err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return err
	}
	// Empty listings are not cached so a catalog seeded after startup shows up at once.
	if s.rdb != nil && !emptyList(v) {
		if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}
	return nil
}

func emptyList(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Slice && rv.Len() == 0
}
