package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamResult is written exactly once, when an attempt is submitted.
type ExamResult struct {
	ID               uuid.UUID `json:"id"`
	ExamSessionID    uuid.UUID `json:"exam_session_id"`
	UserID           uuid.UUID `json:"user_id"`
	ExamID           uuid.UUID `json:"exam_id"`
	Score            int       `json:"score"`
	TotalQuestions   int       `json:"total_questions"`
	CorrectAnswers   int       `json:"correct_answers"`
	TimeTakenMinutes int       `json:"time_taken_minutes"`
	Passed           bool      `json:"passed"`
	CreatedAt        time.Time `json:"created_at"`
}

// QuestionReview is one line of the post-submission breakdown.
type QuestionReview struct {
	Index         int       `json:"index"`
	QuestionID    uuid.UUID `json:"question_id"`
	Question      string    `json:"question"`
	Selected      *int      `json:"selected,omitempty"`
	SelectedText  string    `json:"selected_text"`
	CorrectOption int       `json:"correct_option"`
	CorrectText   string    `json:"correct_text"`
	IsCorrect     bool      `json:"is_correct"`
}

// ResultView is the read-only view of a completed attempt.
type ResultView struct {
	Result       ExamResult       `json:"result"`
	ExamTitle    string           `json:"exam_title"`
	Description  string           `json:"description"`
	PassingScore int              `json:"passing_score"`
	Breakdown    []QuestionReview `json:"breakdown"`
}

// SubmissionOutcome is returned by a submit call and published on the notification channel.
type SubmissionOutcome struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	UserID     uuid.UUID `json:"user_id"`
	ExamID     uuid.UUID `json:"exam_id"`
	AutoSubmit bool      `json:"auto_submit"`
	// Duplicate is set when the attempt had already been submitted and this call was a no-op.
	Duplicate   bool       `json:"duplicate"`
	Result      ExamResult `json:"result"`
	SubmittedAt time.Time  `json:"submitted_at"`
}
