package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/apperror"
	"github.com/stemsi/exam-engine/internal/clock"
	"github.com/stemsi/exam-engine/internal/logger"
	"github.com/stemsi/exam-engine/internal/model"
	"github.com/stemsi/exam-engine/internal/repository"
	"github.com/stemsi/exam-engine/internal/scoring"
	"golang.org/x/sync/singleflight"
)

// SubmissionService scores an attempt, writes its result and closes it.
// Concurrent submissions of one attempt collapse into a single sequence.
type SubmissionService struct {
	sessions            *ExamSessionService
	store               SessionStore
	results             ResultStore
	notifier            Notifier
	clock               clock.Clock
	defaultPassingScore int
	storeTimeout        time.Duration
	log                 zerolog.Logger

	group singleflight.Group
}

// NewSubmissionService creates a new SubmissionService and registers it as
// the expiry handler of the session manager.
func NewSubmissionService(
	sessions *ExamSessionService,
	store SessionStore,
	results ResultStore,
	notifier Notifier,
	clk clock.Clock,
	defaultPassingScore int,
	storeTimeout time.Duration,
	log zerolog.Logger,
) *SubmissionService {
	s := &SubmissionService{
		sessions:            sessions,
		store:               store,
		results:             results,
		notifier:            notifier,
		clock:               clk,
		defaultPassingScore: defaultPassingScore,
		storeTimeout:        storeTimeout,
		log:                 logger.Component(log, "submission_service"),
	}
	sessions.OnExpire(s.onExpire)
	return s
}

func (s *SubmissionService) onExpire(attemptID uuid.UUID) {
	if _, err := s.AutoSubmit(context.Background(), attemptID); err != nil {
		s.log.Error().Err(err).
			Str("attempt_id", attemptID.String()).
			Msg("Auto-submit failed, attempt left open")
	}
}

// Submit is a manual submission by the attempt's owner.
func (s *SubmissionService) Submit(ctx context.Context, attemptID, userID uuid.UUID) (*model.SubmissionOutcome, error) {
	if userID == uuid.Nil {
		return nil, apperror.InvalidArgument("SubmissionService.Submit", "user id is required")
	}
	return s.submit(ctx, attemptID, userID, false)
}

// AutoSubmit submits an attempt whose time ran out.
func (s *SubmissionService) AutoSubmit(ctx context.Context, attemptID uuid.UUID) (*model.SubmissionOutcome, error) {
	return s.submit(ctx, attemptID, uuid.Nil, true)
}

func (s *SubmissionService) submit(ctx context.Context, attemptID, userID uuid.UUID, auto bool) (*model.SubmissionOutcome, error) {
	// Ownership is checked before joining a flight so a stranger cannot
	// piggyback on someone else's submission.
	la, err := s.sessions.acquire(ctx, "SubmissionService.Submit", attemptID, userID)
	if err != nil {
		return nil, err
	}

	// The sequence outlives any single caller once started.
	fctx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(attemptID.String(), func() (any, error) {
		return s.run(fctx, la, auto)
	})
	if err != nil {
		return nil, err
	}
	out := *v.(*model.SubmissionOutcome)
	return &out, nil
}

func (s *SubmissionService) run(ctx context.Context, la *liveAttempt, auto bool) (*model.SubmissionOutcome, error) {
	const op = "SubmissionService.Submit"

	sub, err := s.sessions.beginSubmit(la)
	if errors.Is(err, errAlreadySubmitted) {
		return s.existing(ctx, la, auto)
	}
	if err != nil {
		return nil, apperror.Submission(op, err)
	}
	sess := sub.session

	passing := s.defaultPassingScore
	if sub.exam.PassingScore != nil {
		passing = *sub.exam.PassingScore
	}
	eval, err := scoring.Evaluate(sess.Questions, sub.answers, passing)
	if err != nil {
		s.sessions.abortSubmit(la)
		s.log.Error().Err(err).Str("attempt_id", sess.ID.String()).Msg("Attempt cannot be scored")
		return nil, err
	}

	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	result := &model.ExamResult{
		ExamSessionID:    sess.ID,
		UserID:           sess.UserID,
		ExamID:           sess.ExamID,
		Score:            eval.Percentage,
		TotalQuestions:   eval.Total,
		CorrectAnswers:   eval.Correct,
		TimeTakenMinutes: scoring.TimeTakenMinutes(sub.exam.DurationMinutes*60, sub.remaining),
		Passed:           eval.Passed,
	}

	duplicate := false
	cctx, cancel := withTimeout(ctx, s.storeTimeout)
	err = s.results.Create(cctx, result)
	cancel()
	if errors.Is(err, repository.ErrDuplicate) {
		// A result already exists, written by an earlier sequence that failed
		// to close the attempt or by another process. It wins.
		gctx, cancel := withTimeout(ctx, s.storeTimeout)
		result, err = s.results.GetBySession(gctx, sess.ID)
		cancel()
		duplicate = true
	}
	if err != nil {
		s.sessions.abortSubmit(la)
		return nil, apperror.Submission(op, err)
	}

	cctx, cancel = withTimeout(ctx, s.storeTimeout)
	err = s.store.Complete(cctx, sess.ID, sub.answers, result.Score, now)
	cancel()
	if err != nil && !errors.Is(err, repository.ErrConflict) {
		s.sessions.abortSubmit(la)
		return nil, apperror.Submission(op, err)
	}
	s.sessions.finishSubmit(la, now, result.Score)

	outcome := &model.SubmissionOutcome{
		AttemptID:   sess.ID,
		UserID:      sess.UserID,
		ExamID:      sess.ExamID,
		AutoSubmit:  auto,
		Duplicate:   duplicate,
		Result:      *result,
		SubmittedAt: now,
	}

	s.log.Info().
		Str("attempt_id", sess.ID.String()).
		Bool("auto_submit", auto).
		Int("score", result.Score).
		Int("correct", result.CorrectAnswers).
		Int("total", result.TotalQuestions).
		Bool("passed", result.Passed).
		Msg("Attempt submitted")

	s.notify(ctx, outcome)
	return outcome, nil
}

// existing returns the stored outcome of an already submitted attempt.
func (s *SubmissionService) existing(ctx context.Context, la *liveAttempt, auto bool) (*model.SubmissionOutcome, error) {
	const op = "SubmissionService.Submit"

	la.mu.Lock()
	sess := la.session
	la.mu.Unlock()

	gctx, cancel := withTimeout(ctx, s.storeTimeout)
	result, err := s.results.GetBySession(gctx, sess.ID)
	cancel()
	if err != nil {
		return nil, storeError(op, "result", err)
	}

	submittedAt := result.CreatedAt
	if sess.SubmittedAt != nil {
		submittedAt = *sess.SubmittedAt
	}
	return &model.SubmissionOutcome{
		AttemptID:   sess.ID,
		UserID:      sess.UserID,
		ExamID:      sess.ExamID,
		AutoSubmit:  auto,
		Duplicate:   true,
		Result:      *result,
		SubmittedAt: submittedAt,
	}, nil
}

func (s *SubmissionService) notify(ctx context.Context, outcome *model.SubmissionOutcome) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.notifier.Publish(nctx, *outcome); err != nil {
		s.log.Warn().Err(err).
			Str("attempt_id", outcome.AttemptID.String()).
			Msg("Failed to publish submission outcome")
	}
}
