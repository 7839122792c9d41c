package events

import (
	"context"
	"errors"

	"github.com/stemsi/exam-engine/internal/model"
)

// Sink receives submission outcomes.
type Sink interface {
	Publish(ctx context.Context, outcome model.SubmissionOutcome) error
}

// Fanout delivers every outcome to all sinks, even when some fail.
type Fanout []Sink

// Publish returns the joined errors of the failing sinks.
func (f Fanout) Publish(ctx context.Context, outcome model.SubmissionOutcome) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, outcome); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
