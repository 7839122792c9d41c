package model

import (
	"time"

	"github.com/google/uuid"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is a single multiple-choice item from the question pool.
type Question struct {
	ID            uuid.UUID  `json:"id"`
	Question      string     `json:"question"`
	Options       []string   `json:"options"`
	CorrectOption int        `json:"correct_option"`
	Category      string     `json:"category"`
	Difficulty    Difficulty `json:"difficulty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// QuestionForUser is a question without its correct option, sent while an attempt is open.
type QuestionForUser struct {
	ID         uuid.UUID  `json:"id"`
	Question   string     `json:"question"`
	Options    []string   `json:"options"`
	Category   string     `json:"category"`
	Difficulty Difficulty `json:"difficulty"`
}

// ForUser strips the answer key.
func (q *Question) ForUser() QuestionForUser {
	return QuestionForUser{
		ID:         q.ID,
		Question:   q.Question,
		Options:    q.Options,
		Category:   q.Category,
		Difficulty: q.Difficulty,
	}
}

// OptionText returns the option at idx, or "" when idx is out of range.
func (q *Question) OptionText(idx int) string {
	if idx < 0 || idx >= len(q.Options) {
		return ""
	}
	return q.Options[idx]
}
