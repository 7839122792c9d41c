package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is a catalog entry. It is read-only to the attempt lifecycle.
type Exam struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"duration_minutes"`
	TotalQuestions  int       `json:"total_questions"`
	// PassingScore is a percentage threshold. Nil means the exam carries none
	// and the configured default applies.
	PassingScore *int      `json:"passing_score,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Budget returns the exam's time budget.
func (e *Exam) Budget() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}
