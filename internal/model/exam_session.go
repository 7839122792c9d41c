package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptState enumerates the lifecycle of an attempt.
type AttemptState string

const (
	AttemptStateCreated   AttemptState = "CREATED"
	AttemptStateActive    AttemptState = "ACTIVE"
	AttemptStateSubmitted AttemptState = "SUBMITTED"
)

// Answers maps a question id to the selected option index.
type Answers map[uuid.UUID]int

// Clone returns an independent copy.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ExamSession is one user's attempt at an exam. Once IsCompleted is set the
// record is never written again.
type ExamSession struct {
	ID        uuid.UUID  `json:"id"`
	ExamID    uuid.UUID  `json:"exam_id"`
	UserID    uuid.UUID  `json:"user_id"`
	Questions []Question `json:"questions"`
	Answers   Answers    `json:"answers"`
	// AnswersRevision increases with every recorded answer; the store ignores
	// snapshots older than the one it holds.
	AnswersRevision int64      `json:"answers_revision"`
	StartedAt       time.Time  `json:"started_at"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	Score           *int       `json:"score,omitempty"`
	IsCompleted     bool       `json:"is_completed"`
}

// AttemptView is what callers see of an open or finished attempt.
type AttemptView struct {
	ID               uuid.UUID         `json:"id"`
	ExamID           uuid.UUID         `json:"exam_id"`
	State            AttemptState      `json:"state"`
	StartedAt        time.Time         `json:"started_at"`
	BudgetSeconds    int               `json:"budget_seconds"`
	RemainingSeconds int               `json:"remaining_seconds"`
	Answers          Answers           `json:"answers"`
	Questions        []QuestionForUser `json:"questions"`
	Unanswered       int               `json:"unanswered"`
	Resumed          bool              `json:"resumed"`
}

// RecordAnswerRequest is the payload for selecting an option.
type RecordAnswerRequest struct {
	QuestionID  string `json:"question_id" binding:"required,uuid"`
	OptionIndex *int   `json:"option_index" binding:"required,min=0"`
}

// AnswerSnapshot is the full answer mapping of an attempt at a given revision,
// queued for persistence after every recorded answer.
type AnswerSnapshot struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	Answers   Answers   `json:"answers"`
	Revision  int64     `json:"revision"`
}
