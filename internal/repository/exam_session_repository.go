package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exam-engine/internal/model"
)

const sessionColumns = `id, exam_id, user_id, questions, answers, answers_revision,
	started_at, submitted_at, score, is_completed`

// ExamSessionRepository is the system of record for attempts.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

func scanSession(row rowScanner) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var questions, answers []byte
	if err := row.Scan(&s.ID, &s.ExamID, &s.UserID, &questions, &answers, &s.AnswersRevision,
		&s.StartedAt, &s.SubmittedAt, &s.Score, &s.IsCompleted); err != nil {
		return nil, translate(err)
	}
	if err := json.Unmarshal(questions, &s.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of session %s: %w", s.ID, err)
	}
	s.Answers = model.Answers{}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &s.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of session %s: %w", s.ID, err)
		}
	}
	return s, nil
}

// FindIncomplete returns the open attempt for an exam-user pair.
func (r *ExamSessionRepository) FindIncomplete(ctx context.Context, examID, userID uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE exam_id = $1 AND user_id = $2 AND NOT is_completed`, examID, userID))
}

// GetByID retrieves an attempt by id.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// Create inserts a new attempt with its frozen question list. If another open
// attempt for the same exam-user pair already exists it returns ErrDuplicate.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	questions, err := json.Marshal(s.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, user_id, questions, answers, started_at, is_completed)
		 VALUES ($1, $2, $3, $4, $5, FALSE)
		 ON CONFLICT (exam_id, user_id) WHERE NOT is_completed DO NOTHING
		 RETURNING id`,
		s.ExamID, s.UserID, questions, answers, s.StartedAt,
	).Scan(&s.ID)
	if err := translate(err); err != nil {
		if err == ErrNotFound {
			// DO NOTHING returned no row: a concurrent create won.
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// SaveAnswers stores an answer snapshot if the attempt is still open and the
// snapshot is newer than the stored one. Stale snapshots are ignored silently;
// a completed attempt yields ErrConflict.
func (r *ExamSessionRepository) SaveAnswers(ctx context.Context, id uuid.UUID, answers model.Answers, revision int64) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	var completed bool
	err = r.pool.QueryRow(ctx,
		`WITH upd AS (
		     UPDATE exam_sessions
		     SET answers = $2, answers_revision = $3
		     WHERE id = $1 AND NOT is_completed AND answers_revision < $3
		     RETURNING is_completed
		 )
		 SELECT COALESCE((SELECT is_completed FROM upd),
		                 (SELECT is_completed FROM exam_sessions WHERE id = $1))`,
		id, raw, revision,
	).Scan(&completed)
	if err != nil {
		return translate(err)
	}
	if completed {
		return ErrConflict
	}
	return nil
}

// Complete closes an open attempt with its final answers and score.
// It returns ErrConflict if the attempt is already completed.
func (r *ExamSessionRepository) Complete(ctx context.Context, id uuid.UUID, answers model.Answers, score int, submittedAt time.Time) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET is_completed = TRUE, submitted_at = $2, answers = $3, score = $4
		 WHERE id = $1 AND NOT is_completed`,
		id, submittedAt, raw, score)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// ListExpired returns ids of open attempts whose time budget ended before now.
func (r *ExamSessionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id
		 FROM exam_sessions s
		 JOIN exams e ON e.id = s.exam_id
		 WHERE NOT s.is_completed
		   AND s.started_at + make_interval(mins => e.duration_minutes) <= $1
		 ORDER BY s.started_at
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
