package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exam-engine/internal/model"
	"github.com/stretchr/testify/mock"
)

// MockSessionStore is a mock implementation of SessionStore
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) FindIncomplete(ctx context.Context, examID, userID uuid.UUID) (*model.ExamSession, error) {
	args := m.Called(ctx, examID, userID)
	sess, _ := args.Get(0).(*model.ExamSession)
	return sess, args.Error(1)
}

func (m *MockSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	args := m.Called(ctx, id)
	sess, _ := args.Get(0).(*model.ExamSession)
	return sess, args.Error(1)
}

func (m *MockSessionStore) Create(ctx context.Context, s *model.ExamSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSessionStore) Complete(ctx context.Context, id uuid.UUID, answers model.Answers, score int, submittedAt time.Time) error {
	args := m.Called(ctx, id, answers, score, submittedAt)
	return args.Error(0)
}

// MockResultStore is a mock implementation of ResultStore
type MockResultStore struct {
	mock.Mock
}

func (m *MockResultStore) Create(ctx context.Context, r *model.ExamResult) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockResultStore) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	args := m.Called(ctx, sessionID)
	res, _ := args.Get(0).(*model.ExamResult)
	return res, args.Error(1)
}

// MockCatalog is a mock implementation of Catalog
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	args := m.Called(ctx, id)
	exam, _ := args.Get(0).(*model.Exam)
	return exam, args.Error(1)
}

func (m *MockCatalog) ActiveExams(ctx context.Context) ([]model.Exam, error) {
	args := m.Called(ctx)
	exams, _ := args.Get(0).([]model.Exam)
	return exams, args.Error(1)
}

func (m *MockCatalog) QuestionPool(ctx context.Context) ([]model.Question, error) {
	args := m.Called(ctx)
	pool, _ := args.Get(0).([]model.Question)
	return pool, args.Error(1)
}

// MockAnswerSink is a mock implementation of AnswerSink
type MockAnswerSink struct {
	mock.Mock
}

func (m *MockAnswerSink) Enqueue(ctx context.Context, snap model.AnswerSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Publish(ctx context.Context, outcome model.SubmissionOutcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

// MockExamReader is a mock implementation of ExamReader
type MockExamReader struct {
	mock.Mock
}

func (m *MockExamReader) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	args := m.Called(ctx, id)
	exam, _ := args.Get(0).(*model.Exam)
	return exam, args.Error(1)
}

func (m *MockExamReader) ListActive(ctx context.Context) ([]model.Exam, error) {
	args := m.Called(ctx)
	exams, _ := args.Get(0).([]model.Exam)
	return exams, args.Error(1)
}

// MockQuestionReader is a mock implementation of QuestionReader
type MockQuestionReader struct {
	mock.Mock
}

func (m *MockQuestionReader) ListActive(ctx context.Context) ([]model.Question, error) {
	args := m.Called(ctx)
	pool, _ := args.Get(0).([]model.Question)
	return pool, args.Error(1)
}
