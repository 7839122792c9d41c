package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exam-engine/internal/model"
)

const (
	// EventTypeAttemptSubmitted is published once per completed attempt.
	EventTypeAttemptSubmitted = "exam.attempt.submitted"

	eventSource  = "exam-engine"
	eventVersion = "1"
)

// SubmissionEvent is the envelope sent to downstream consumers.
type SubmissionEvent struct {
	ID        string                  `json:"id"`
	Type      string                  `json:"type"`
	Source    string                  `json:"source"`
	Version   string                  `json:"version"`
	Timestamp time.Time               `json:"timestamp"`
	Data      model.SubmissionOutcome `json:"data"`
}

// NewSubmissionEvent wraps an outcome in an event envelope.
func NewSubmissionEvent(outcome model.SubmissionOutcome) SubmissionEvent {
	return SubmissionEvent{
		ID:        uuid.NewString(),
		Type:      EventTypeAttemptSubmitted,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: outcome.SubmittedAt,
		Data:      outcome,
	}
}
