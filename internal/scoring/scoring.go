// Package scoring grades a finished attempt. Everything here is pure.
package scoring

import (
	"github.com/google/uuid"
	"github.com/stemsi/exam-engine/internal/apperror"
	"github.com/stemsi/exam-engine/internal/model"
)

// Tally is the raw outcome of grading.
type Tally struct {
	Correct    int `json:"correct"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Evaluation is a Tally judged against a passing threshold.
type Evaluation struct {
	Tally
	PassingScore int  `json:"passing_score"`
	Passed       bool `json:"passed"`
}

// Score counts the questions whose recorded answer equals the correct option.
// A missing answer is wrong. An empty question list is a programming error.
func Score(questions []model.Question, answers map[uuid.UUID]int) (Tally, error) {
	total := len(questions)
	if total == 0 {
		return Tally{}, apperror.InvalidArgument("scoring.Score", "question list is empty")
	}

	correct := 0
	for i := range questions {
		if ans, ok := answers[questions[i].ID]; ok && ans == questions[i].CorrectOption {
			correct++
		}
	}

	return Tally{
		Correct:    correct,
		Total:      total,
		Percentage: Percentage(correct, total),
	}, nil
}

// Evaluate grades and applies the passing threshold (inclusive).
func Evaluate(questions []model.Question, answers map[uuid.UUID]int, passingScore int) (Evaluation, error) {
	s, err := Score(questions, answers)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{
		Tally:        s,
		PassingScore: passingScore,
		Passed:       s.Percentage >= passingScore,
	}, nil
}

// Percentage returns round(correct/total*100) rounding halves up. total must be positive.
func Percentage(correct, total int) int {
	return divRoundHalfUp(correct*100, total)
}

// TimeTakenMinutes is round((budget - remaining) / 60), both in seconds.
func TimeTakenMinutes(budgetSeconds, remainingSeconds int) int {
	used := budgetSeconds - remainingSeconds
	if used < 0 {
		used = 0
	}
	return divRoundHalfUp(used, 60)
}

// Breakdown lists every frozen question with the user's choice next to the key.
func Breakdown(questions []model.Question, answers map[uuid.UUID]int) []model.QuestionReview {
	out := make([]model.QuestionReview, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		r := model.QuestionReview{
			Index:         i,
			QuestionID:    q.ID,
			Question:      q.Question,
			SelectedText:  "Not answered",
			CorrectOption: q.CorrectOption,
			CorrectText:   q.OptionText(q.CorrectOption),
		}
		if ans, ok := answers[q.ID]; ok {
			sel := ans
			r.Selected = &sel
			r.SelectedText = q.OptionText(ans)
			r.IsCorrect = ans == q.CorrectOption
		}
		out = append(out, r)
	}
	return out
}

func divRoundHalfUp(num, den int) int {
	return (2*num + den) / (2 * den)
}
