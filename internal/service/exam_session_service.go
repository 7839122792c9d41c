package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/apperror"
	"github.com/stemsi/exam-engine/internal/clock"
	"github.com/stemsi/exam-engine/internal/countdown"
	"github.com/stemsi/exam-engine/internal/logger"
	"github.com/stemsi/exam-engine/internal/model"
	"github.com/stemsi/exam-engine/internal/repository"
	"github.com/stemsi/exam-engine/internal/sampling"
)

// SessionOptions tunes the session manager.
type SessionOptions struct {
	// QuestionCount is the size of every frozen question list.
	QuestionCount int
	// StoreTimeout bounds each store call.
	StoreTimeout time.Duration
}

// ExamSessionService creates, resumes and mutates attempts. It keeps the
// attempts this process is serving in memory, each with its own countdown.
type ExamSessionService struct {
	sessions SessionStore
	catalog  Catalog
	sink     AnswerSink
	clock    clock.Clock
	sampler  *sampling.Sampler
	opts     SessionOptions
	log      zerolog.Logger

	mu       sync.Mutex
	live     map[uuid.UUID]*liveAttempt
	onExpire func(attemptID uuid.UUID)
}

// liveAttempt is the in-memory copy of an attempt. Its answers are
// authoritative while the attempt is open in this process.
type liveAttempt struct {
	mu         sync.Mutex
	session    *model.ExamSession
	exam       *model.Exam
	state      model.AttemptState
	submitting bool
	scheduler  *countdown.Scheduler
	// guard is shared by every scheduler created for this attempt.
	guard countdown.Guard
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	sessions SessionStore,
	catalog Catalog,
	sink AnswerSink,
	clk clock.Clock,
	sampler *sampling.Sampler,
	opts SessionOptions,
	log zerolog.Logger,
) *ExamSessionService {
	if opts.QuestionCount <= 0 {
		opts.QuestionCount = 10
	}
	return &ExamSessionService{
		sessions: sessions,
		catalog:  catalog,
		sink:     sink,
		clock:    clk,
		sampler:  sampler,
		opts:     opts,
		log:      logger.Component(log, "exam_session_service"),
		live:     make(map[uuid.UUID]*liveAttempt),
	}
}

// OnExpire registers the callback run when an attempt's countdown reaches zero.
// It is called at most once per attempt, from the countdown goroutine.
func (s *ExamSessionService) OnExpire(fn func(attemptID uuid.UUID)) {
	s.mu.Lock()
	s.onExpire = fn
	s.mu.Unlock()
}

// CreateOrResume returns the user's open attempt for the exam, creating one
// with a freshly drawn question list if none exists.
func (s *ExamSessionService) CreateOrResume(ctx context.Context, examID, userID uuid.UUID) (*model.AttemptView, error) {
	const op = "ExamSessionService.CreateOrResume"

	if examID == uuid.Nil {
		return nil, apperror.InvalidArgument(op, "exam id is required")
	}
	if userID == uuid.Nil {
		return nil, apperror.InvalidArgument(op, "user id is required")
	}

	exam, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return nil, storeError(op, "exam", err)
	}
	if !exam.IsActive {
		return nil, apperror.NotFound(op, "exam")
	}

	existing, err := s.findIncomplete(ctx, examID, userID)
	switch {
	case err == nil:
		return s.resume(existing, exam), nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperror.Storage(op, err)
	}

	pool, err := s.catalog.QuestionPool(ctx)
	if err != nil {
		return nil, storeError(op, "question pool", err)
	}
	questions := sampling.Draw(s.sampler, pool, s.opts.QuestionCount)
	if len(questions) == 0 {
		return nil, apperror.NoContent(op, "active questions")
	}

	sess := &model.ExamSession{
		ExamID:    examID,
		UserID:    userID,
		Questions: questions,
		Answers:   model.Answers{},
		// Postgres keeps microseconds.
		StartedAt: s.clock.Now().UTC().Truncate(time.Microsecond),
	}

	sctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	err = s.sessions.Create(sctx, sess)
	cancel()
	if errors.Is(err, repository.ErrDuplicate) {
		// Another request for the same pair won the race; serve its attempt.
		existing, err := s.findIncomplete(ctx, examID, userID)
		if err != nil {
			return nil, apperror.Storage(op, err)
		}
		return s.resume(existing, exam), nil
	}
	if err != nil {
		return nil, apperror.Storage(op, err)
	}

	la := s.activate(sess, exam)
	s.log.Info().
		Str("attempt_id", sess.ID.String()).
		Str("exam_id", examID.String()).
		Str("user_id", userID.String()).
		Int("questions", len(questions)).
		Msg("Attempt created")
	return s.view(la, false), nil
}

// findIncomplete looks up the open attempt with a bounded timeout and a single
// retry. A missing attempt is not retried.
func (s *ExamSessionService) findIncomplete(ctx context.Context, examID, userID uuid.UUID) (*model.ExamSession, error) {
	var (
		sess *model.ExamSession
		err  error
	)
	for try := 0; try < 2; try++ {
		sctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
		sess, err = s.sessions.FindIncomplete(sctx, examID, userID)
		cancel()
		if err == nil || errors.Is(err, repository.ErrNotFound) || ctx.Err() != nil {
			return sess, err
		}
		s.log.Warn().Err(err).Int("try", try+1).Msg("Incomplete attempt lookup failed")
	}
	return nil, err
}

func (s *ExamSessionService) resume(sess *model.ExamSession, exam *model.Exam) *model.AttemptView {
	la := s.activate(sess, exam)
	v := s.view(la, true)
	s.log.Info().
		Str("attempt_id", sess.ID.String()).
		Int("remaining_seconds", v.RemainingSeconds).
		Msg("Attempt resumed")
	return v
}

// activate registers the attempt as live and (re)arms its countdown from the
// wall-clock time left. When the attempt is already live its in-memory answers
// are kept.
func (s *ExamSessionService) activate(sess *model.ExamSession, exam *model.Exam) *liveAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	la, ok := s.live[sess.ID]
	if !ok {
		if sess.Answers == nil {
			sess.Answers = model.Answers{}
		}
		la = &liveAttempt{session: sess, exam: exam, state: model.AttemptStateCreated}
		s.live[sess.ID] = la
	}

	la.mu.Lock()
	defer la.mu.Unlock()
	if la.submitting || la.state == model.AttemptStateSubmitted {
		return la
	}
	if la.scheduler != nil {
		la.scheduler.Cancel()
	}
	id := sess.ID
	remaining := clock.Remaining(s.clock, la.session.StartedAt, exam.Budget())
	la.scheduler = countdown.Start(s.clock, remaining, la.guard.Wrap(func() { s.expired(id) }))
	la.state = model.AttemptStateActive
	return la
}

func (s *ExamSessionService) expired(attemptID uuid.UUID) {
	s.mu.Lock()
	fn := s.onExpire
	s.mu.Unlock()

	s.log.Info().Str("attempt_id", attemptID.String()).Msg("Attempt time is up")
	if fn != nil {
		fn(attemptID)
	}
}

// acquire returns the attempt, rehydrating it from the store when this process
// does not hold it. Completed attempts come back in the Submitted state and are
// not registered as live. userID is checked against the owner unless it is Nil.
func (s *ExamSessionService) acquire(ctx context.Context, op string, attemptID, userID uuid.UUID) (*liveAttempt, error) {
	if attemptID == uuid.Nil {
		return nil, apperror.InvalidArgument(op, "attempt id is required")
	}

	s.mu.Lock()
	la, ok := s.live[attemptID]
	s.mu.Unlock()
	if ok {
		if userID != uuid.Nil && la.owner() != userID {
			return nil, apperror.NotFound(op, "attempt")
		}
		return la, nil
	}

	sctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	sess, err := s.sessions.GetByID(sctx, attemptID)
	cancel()
	if err != nil {
		return nil, storeError(op, "attempt", err)
	}
	if userID != uuid.Nil && sess.UserID != userID {
		return nil, apperror.NotFound(op, "attempt")
	}

	exam, err := s.catalog.GetExam(ctx, sess.ExamID)
	if err != nil {
		return nil, storeError(op, "exam", err)
	}
	if sess.IsCompleted {
		return &liveAttempt{session: sess, exam: exam, state: model.AttemptStateSubmitted}, nil
	}
	return s.activate(sess, exam), nil
}

// View returns the current state of an attempt, resuming it if needed.
func (s *ExamSessionService) View(ctx context.Context, attemptID, userID uuid.UUID) (*model.AttemptView, error) {
	la, err := s.acquire(ctx, "ExamSessionService.View", attemptID, userID)
	if err != nil {
		return nil, err
	}
	return s.view(la, false), nil
}

func (s *ExamSessionService) view(la *liveAttempt, resumed bool) *model.AttemptView {
	la.mu.Lock()
	defer la.mu.Unlock()

	sess := la.session
	questions := make([]model.QuestionForUser, len(sess.Questions))
	for i := range sess.Questions {
		questions[i] = sess.Questions[i].ForUser()
	}

	remaining := 0
	if la.state == model.AttemptStateActive {
		remaining = clock.RemainingSeconds(s.clock, sess.StartedAt, la.exam.Budget())
	}

	return &model.AttemptView{
		ID:               sess.ID,
		ExamID:           sess.ExamID,
		State:            la.state,
		StartedAt:        sess.StartedAt,
		BudgetSeconds:    la.exam.DurationMinutes * 60,
		RemainingSeconds: remaining,
		Answers:          sess.Answers.Clone(),
		Questions:        questions,
		Unanswered:       len(sess.Questions) - len(sess.Answers),
		Resumed:          resumed,
	}
}

// RecordedAnswer acknowledges an answer update.
type RecordedAnswer struct {
	QuestionID  uuid.UUID `json:"question_id"`
	OptionIndex int       `json:"option_index"`
	Revision    int64     `json:"revision"`
	// Queued is false when the snapshot could not be handed to the persistence
	// queue. The answer is still held in memory and goes out with the next one.
	Queued bool `json:"queued"`
}

// RecordAnswer sets the selected option for one question (last write wins)
// and queues the whole answer mapping for persistence.
func (s *ExamSessionService) RecordAnswer(ctx context.Context, attemptID, userID, questionID uuid.UUID, optionIndex int) (*RecordedAnswer, error) {
	const op = "ExamSessionService.RecordAnswer"

	if questionID == uuid.Nil {
		return nil, apperror.InvalidArgument(op, "question id is required")
	}
	la, err := s.acquire(ctx, op, attemptID, userID)
	if err != nil {
		return nil, err
	}

	la.mu.Lock()
	if la.state != model.AttemptStateActive || la.submitting {
		la.mu.Unlock()
		return nil, apperror.AttemptClosed(op)
	}
	// Past the deadline the attempt only waits for auto-submit.
	if clock.Remaining(s.clock, la.session.StartedAt, la.exam.Budget()) <= 0 {
		la.mu.Unlock()
		return nil, apperror.AttemptClosed(op)
	}
	q := la.question(questionID)
	if q == nil {
		la.mu.Unlock()
		return nil, apperror.InvalidArgument(op, "question %s is not part of this attempt", questionID)
	}
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		la.mu.Unlock()
		return nil, apperror.InvalidArgument(op, "option index %d out of range [0, %d)", optionIndex, len(q.Options))
	}
	la.session.Answers[questionID] = optionIndex
	la.session.AnswersRevision++
	snap := model.AnswerSnapshot{
		AttemptID: attemptID,
		Answers:   la.session.Answers.Clone(),
		Revision:  la.session.AnswersRevision,
	}
	la.mu.Unlock()

	rec := &RecordedAnswer{QuestionID: questionID, OptionIndex: optionIndex, Revision: snap.Revision, Queued: true}
	if s.sink != nil {
		sctx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
		err := s.sink.Enqueue(sctx, snap)
		cancel()
		if err != nil {
			rec.Queued = false
			s.log.Error().Err(err).
				Str("attempt_id", attemptID.String()).
				Int64("revision", snap.Revision).
				Msg("Failed to queue answer snapshot")
		}
	}
	return rec, nil
}

// QuestionAt returns the question at index in the frozen list, without its answer key.
func (s *ExamSessionService) QuestionAt(ctx context.Context, attemptID, userID uuid.UUID, index int) (*model.QuestionForUser, error) {
	const op = "ExamSessionService.QuestionAt"

	la, err := s.acquire(ctx, op, attemptID, userID)
	if err != nil {
		return nil, err
	}

	la.mu.Lock()
	defer la.mu.Unlock()
	if index < 0 || index >= len(la.session.Questions) {
		return nil, apperror.InvalidArgument(op, "question index %d out of range [0, %d)", index, len(la.session.Questions))
	}
	q := la.session.Questions[index].ForUser()
	return &q, nil
}

// submission is what the coordinator needs from a closed attempt.
type submission struct {
	session   *model.ExamSession
	exam      *model.Exam
	answers   model.Answers
	remaining int
}

var errAlreadySubmitted = errors.New("attempt already submitted")

// beginSubmit stops the countdown and closes the attempt to further answers.
func (s *ExamSessionService) beginSubmit(la *liveAttempt) (*submission, error) {
	la.mu.Lock()
	defer la.mu.Unlock()

	if la.state == model.AttemptStateSubmitted {
		return nil, errAlreadySubmitted
	}
	la.submitting = true
	if la.scheduler != nil {
		la.scheduler.Cancel()
	}
	return &submission{
		session:   la.session,
		exam:      la.exam,
		answers:   la.session.Answers.Clone(),
		remaining: clock.RemainingSeconds(s.clock, la.session.StartedAt, la.exam.Budget()),
	}, nil
}

// abortSubmit reopens the attempt for answers after a failed submission.
// The countdown is not re-armed.
func (s *ExamSessionService) abortSubmit(la *liveAttempt) {
	la.mu.Lock()
	la.submitting = false
	la.mu.Unlock()
}

// finishSubmit marks the attempt Submitted and drops it from the live set.
func (s *ExamSessionService) finishSubmit(la *liveAttempt, submittedAt time.Time, score int) {
	la.mu.Lock()
	la.state = model.AttemptStateSubmitted
	la.submitting = false
	la.session.IsCompleted = true
	la.session.SubmittedAt = &submittedAt
	la.session.Score = &score
	id := la.session.ID
	la.mu.Unlock()

	s.mu.Lock()
	if s.live[id] == la {
		delete(s.live, id)
	}
	s.mu.Unlock()
}

// Live reports how many attempts this process is serving.
func (s *ExamSessionService) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Shutdown cancels every running countdown. Attempts stay open in the store
// and are resumed or swept later.
func (s *ExamSessionService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, la := range s.live {
		la.mu.Lock()
		if la.scheduler != nil {
			la.scheduler.Cancel()
		}
		la.mu.Unlock()
		delete(s.live, id)
	}
}

func (la *liveAttempt) owner() uuid.UUID {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.session.UserID
}

// question returns the frozen question with id. Callers hold la.mu.
func (la *liveAttempt) question(id uuid.UUID) *model.Question {
	for i := range la.session.Questions {
		if la.session.Questions[i].ID == id {
			return &la.session.Questions[i]
		}
	}
	return nil
}
