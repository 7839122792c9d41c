package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exam-engine/internal/model"
)

// ExamResultRepository stores the single result of each completed attempt.
type ExamResultRepository struct {
	pool *pgxpool.Pool
}

// NewExamResultRepository creates a new ExamResultRepository.
func NewExamResultRepository(pool *pgxpool.Pool) *ExamResultRepository {
	return &ExamResultRepository{pool: pool}
}

// Create inserts a result. A second result for the same attempt is rejected
// with ErrDuplicate by the unique constraint on exam_session_id.
func (r *ExamResultRepository) Create(ctx context.Context, res *model.ExamResult) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_results
		     (exam_session_id, user_id, exam_id, score, total_questions,
		      correct_answers, time_taken_minutes, passed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (exam_session_id) DO NOTHING
		 RETURNING id, created_at`,
		res.ExamSessionID, res.UserID, res.ExamID, res.Score, res.TotalQuestions,
		res.CorrectAnswers, res.TimeTakenMinutes, res.Passed,
	).Scan(&res.ID, &res.CreatedAt)
	if err := translate(err); err != nil {
		if err == ErrNotFound {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetBySession returns the result of an attempt.
func (r *ExamResultRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	res := &model.ExamResult{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_session_id, user_id, exam_id, score, total_questions,
		        correct_answers, time_taken_minutes, passed, created_at
		 FROM exam_results
		 WHERE exam_session_id = $1`, sessionID,
	).Scan(&res.ID, &res.ExamSessionID, &res.UserID, &res.ExamID, &res.Score, &res.TotalQuestions,
		&res.CorrectAnswers, &res.TimeTakenMinutes, &res.Passed, &res.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}
