package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exam-engine/internal/apperror"
	"github.com/stemsi/exam-engine/internal/model"
	"github.com/stemsi/exam-engine/internal/repository"
)

// SessionStore is the system of record for attempts.
// Implementations return repository.ErrNotFound, ErrDuplicate and ErrConflict.
type SessionStore interface {
	FindIncomplete(ctx context.Context, examID, userID uuid.UUID) (*model.ExamSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	Create(ctx context.Context, s *model.ExamSession) error
	Complete(ctx context.Context, id uuid.UUID, answers model.Answers, score int, submittedAt time.Time) error
}

// ResultStore persists the one result of a completed attempt.
type ResultStore interface {
	Create(ctx context.Context, r *model.ExamResult) error
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error)
}

// Catalog is the read-only view of exams and the question pool.
type Catalog interface {
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ActiveExams(ctx context.Context) ([]model.Exam, error)
	QuestionPool(ctx context.Context) ([]model.Question, error)
}

// AnswerSink accepts answer snapshots for asynchronous persistence.
type AnswerSink interface {
	Enqueue(ctx context.Context, snap model.AnswerSnapshot) error
}

// Notifier publishes submission outcomes to interested parties.
type Notifier interface {
	Publish(ctx context.Context, outcome model.SubmissionOutcome) error
}

// withTimeout bounds a single store call.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// storeError converts a store failure into the caller-facing taxonomy.
func storeError(op, what string, err error) error {
	var appErr *apperror.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperror.NotFound(op, what)
	default:
		return apperror.Storage(op, err)
	}
}
