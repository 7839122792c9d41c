package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/clock"
	"github.com/stemsi/exam-engine/internal/model"
	"github.com/stemsi/exam-engine/internal/repository"
	"github.com/stemsi/exam-engine/internal/sampling"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store    *MockSessionStore
	results  *MockResultStore
	catalog  *MockCatalog
	sink     *MockAnswerSink
	notifier *MockNotifier
	clk      *clock.Manual

	sessions    *ExamSessionService
	submissions *SubmissionService

	exam   *model.Exam
	pool   []model.Question
	userID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	passing := 70
	f := &fixture{
		store:    new(MockSessionStore),
		results:  new(MockResultStore),
		catalog:  new(MockCatalog),
		sink:     new(MockAnswerSink),
		notifier: new(MockNotifier),
		clk:      clock.NewManual(epoch),
		exam: &model.Exam{
			ID:              uuid.New(),
			Title:           "General Knowledge",
			DurationMinutes: 30,
			TotalQuestions:  50,
			PassingScore:    &passing,
			IsActive:        true,
		},
		pool:   testQuestions(20),
		userID: uuid.New(),
	}

	log := zerolog.Nop()
	f.sessions = NewExamSessionService(f.store, f.catalog, f.sink, f.clk, sampling.New(1),
		SessionOptions{QuestionCount: 10, StoreTimeout: time.Second}, log)
	f.submissions = NewSubmissionService(f.sessions, f.store, f.results, f.notifier, f.clk, 60, time.Second, log)

	f.catalog.On("GetExam", mock.Anything, f.exam.ID).Return(f.exam, nil).Maybe()
	f.catalog.On("QuestionPool", mock.Anything).Return(f.pool, nil).Maybe()
	f.sink.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Maybe()

	t.Cleanup(f.sessions.Shutdown)
	return f
}

func testQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:            uuid.New(),
			Question:      fmt.Sprintf("Question %d", i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectOption: i % 4,
			Category:      "general",
			Difficulty:    model.DifficultyEasy,
		}
	}
	return qs
}

// create runs CreateOrResume against an empty store and returns the stored attempt.
func (f *fixture) create(t *testing.T) (*model.AttemptView, *model.ExamSession) {
	t.Helper()

	var created *model.ExamSession
	f.store.On("FindIncomplete", mock.Anything, f.exam.ID, f.userID).
		Return(nil, repository.ErrNotFound).Once()
	f.store.On("Create", mock.Anything, mock.AnythingOfType("*model.ExamSession")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*model.ExamSession)
			created.ID = uuid.New()
		}).
		Return(nil).Once()

	view, err := f.sessions.CreateOrResume(t.Context(), f.exam.ID, f.userID)
	require.NoError(t, err)
	require.NotNil(t, created)
	return view, created
}

// answerCorrectly answers the first n frozen questions correctly and the rest wrongly.
func (f *fixture) answerCorrectly(t *testing.T, sess *model.ExamSession, n int) {
	t.Helper()
	for i, q := range sess.Questions {
		opt := q.CorrectOption
		if i >= n {
			opt = (q.CorrectOption + 1) % len(q.Options)
		}
		_, err := f.sessions.RecordAnswer(t.Context(), sess.ID, f.userID, q.ID, opt)
		require.NoError(t, err)
	}
}

// completed returns a copy of sess as the store holds it after submission.
func completed(sess *model.ExamSession, score int, at time.Time) *model.ExamSession {
	c := *sess
	c.Answers = sess.Answers.Clone()
	c.IsCompleted = true
	c.SubmittedAt = &at
	c.Score = &score
	return &c
}

// submitting reports whether a submission sequence currently holds the attempt.
func (f *fixture) submitting(id uuid.UUID) bool {
	f.sessions.mu.Lock()
	la := f.sessions.live[id]
	f.sessions.mu.Unlock()
	if la == nil {
		return false
	}
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.submitting
}
