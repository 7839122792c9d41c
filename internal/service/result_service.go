package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exam-engine/internal/apperror"
	"github.com/stemsi/exam-engine/internal/model"
	"github.com/stemsi/exam-engine/internal/scoring"
)

// ResultService builds the read-only view of a completed attempt.
type ResultService struct {
	sessions            SessionStore
	results             ResultStore
	catalog             Catalog
	defaultPassingScore int
	storeTimeout        time.Duration
}

// NewResultService creates a new ResultService.
func NewResultService(sessions SessionStore, results ResultStore, catalog Catalog, defaultPassingScore int, storeTimeout time.Duration) *ResultService {
	return &ResultService{
		sessions:            sessions,
		results:             results,
		catalog:             catalog,
		defaultPassingScore: defaultPassingScore,
		storeTimeout:        storeTimeout,
	}
}

// Get returns the result of the user's attempt with a per-question breakdown.
// An attempt that is still open has no result yet and reports NotFound.
func (s *ResultService) Get(ctx context.Context, attemptID, userID uuid.UUID) (*model.ResultView, error) {
	const op = "ResultService.Get"

	if attemptID == uuid.Nil {
		return nil, apperror.InvalidArgument(op, "attempt id is required")
	}

	sctx, cancel := withTimeout(ctx, s.storeTimeout)
	sess, err := s.sessions.GetByID(sctx, attemptID)
	cancel()
	if err != nil {
		return nil, storeError(op, "attempt", err)
	}
	if sess.UserID != userID || !sess.IsCompleted {
		return nil, apperror.NotFound(op, "result")
	}

	rctx, cancel := withTimeout(ctx, s.storeTimeout)
	result, err := s.results.GetBySession(rctx, attemptID)
	cancel()
	if err != nil {
		return nil, storeError(op, "result", err)
	}

	exam, err := s.catalog.GetExam(ctx, sess.ExamID)
	if err != nil {
		return nil, storeError(op, "exam", err)
	}
	passing := s.defaultPassingScore
	if exam.PassingScore != nil {
		passing = *exam.PassingScore
	}

	return &model.ResultView{
		Result:       *result,
		ExamTitle:    exam.Title,
		Description:  exam.Description,
		PassingScore: passing,
		Breakdown:    scoring.Breakdown(sess.Questions, sess.Answers),
	}, nil
}
