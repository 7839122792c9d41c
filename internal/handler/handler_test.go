package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/apperror"
	"github.com/stemsi/exam-engine/internal/middleware"
	"github.com/stemsi/exam-engine/internal/model"
	"github.com/stemsi/exam-engine/internal/response"
	"github.com/stemsi/exam-engine/internal/service"
	"github.com/stemsi/exam-engine/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := validator.Setup(); err != nil {
		panic(err)
	}
	m.Run()
}

type MockAttempts struct{ mock.Mock }

func (m *MockAttempts) CreateOrResume(ctx context.Context, examID, userID uuid.UUID) (*model.AttemptView, error) {
	args := m.Called(ctx, examID, userID)
	v, _ := args.Get(0).(*model.AttemptView)
	return v, args.Error(1)
}

func (m *MockAttempts) View(ctx context.Context, attemptID, userID uuid.UUID) (*model.AttemptView, error) {
	args := m.Called(ctx, attemptID, userID)
	v, _ := args.Get(0).(*model.AttemptView)
	return v, args.Error(1)
}

func (m *MockAttempts) RecordAnswer(ctx context.Context, attemptID, userID, questionID uuid.UUID, optionIndex int) (*service.RecordedAnswer, error) {
	args := m.Called(ctx, attemptID, userID, questionID, optionIndex)
	v, _ := args.Get(0).(*service.RecordedAnswer)
	return v, args.Error(1)
}

func (m *MockAttempts) QuestionAt(ctx context.Context, attemptID, userID uuid.UUID, index int) (*model.QuestionForUser, error) {
	args := m.Called(ctx, attemptID, userID, index)
	v, _ := args.Get(0).(*model.QuestionForUser)
	return v, args.Error(1)
}

type MockSubmitter struct{ mock.Mock }

func (m *MockSubmitter) Submit(ctx context.Context, attemptID, userID uuid.UUID) (*model.SubmissionOutcome, error) {
	args := m.Called(ctx, attemptID, userID)
	v, _ := args.Get(0).(*model.SubmissionOutcome)
	return v, args.Error(1)
}

type MockResults struct{ mock.Mock }

func (m *MockResults) Get(ctx context.Context, attemptID, userID uuid.UUID) (*model.ResultView, error) {
	args := m.Called(ctx, attemptID, userID)
	v, _ := args.Get(0).(*model.ResultView)
	return v, args.Error(1)
}

type MockExams struct{ mock.Mock }

func (m *MockExams) ActiveExams(ctx context.Context) ([]model.Exam, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]model.Exam)
	return v, args.Error(1)
}

type harness struct {
	engine    *gin.Engine
	attempts  *MockAttempts
	submitter *MockSubmitter
	results   *MockResults
	exams     *MockExams
	userID    uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		engine:    gin.New(),
		attempts:  new(MockAttempts),
		submitter: new(MockSubmitter),
		results:   new(MockResults),
		exams:     new(MockExams),
		userID:    uuid.New(),
	}
	h.engine.Use(response.RequestIDMiddleware(zerolog.Nop()), func(c *gin.Context) {
		if c.GetHeader("X-Anonymous") == "" {
			c.Set(middleware.ContextKeyUserID, h.userID)
		}
		c.Next()
	})

	attempt := NewAttemptHandler(h.attempts, h.submitter, h.results)
	h.engine.GET("/exams", NewExamHandler(h.exams).ListExams)
	h.engine.POST("/exams/:exam_id/attempts", attempt.StartAttempt)
	h.engine.GET("/attempts/:attempt_id", attempt.GetAttempt)
	h.engine.GET("/attempts/:attempt_id/questions/:index", attempt.GetQuestion)
	h.engine.PUT("/attempts/:attempt_id/answers", attempt.RecordAnswer)
	h.engine.POST("/attempts/:attempt_id/submit", attempt.Submit)
	h.engine.GET("/attempts/:attempt_id/result", attempt.GetResult)
	h.engine.GET("/health", NewHealthHandler(map[string]Check{
		"postgres": func(context.Context) error { return nil },
	}, func() int { return 3 }, zerolog.Nop()).Health)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestStartAttempt(t *testing.T) {
	h := newHarness(t)
	examID := uuid.New()

	view := &model.AttemptView{ID: uuid.New(), ExamID: examID, State: model.AttemptStateActive, RemainingSeconds: 1800}
	h.attempts.On("CreateOrResume", mock.Anything, examID, h.userID).Return(view, nil).Once()

	rec, resp := h.do(t, http.MethodPost, "/exams/"+examID.String()+"/attempts", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, resp.Error)
	assert.NotEmpty(t, resp.Metadata.RequestID)

	resumed := *view
	resumed.Resumed = true
	h.attempts.On("CreateOrResume", mock.Anything, examID, h.userID).Return(&resumed, nil).Once()
	rec, _ = h.do(t, http.MethodPost, "/exams/"+examID.String()+"/attempts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartAttempt_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      response.ErrCode
		retryable bool
	}{
		{"no questions", apperror.NoContent("create", "question pool"), http.StatusNotFound, response.ErrNoQuestions, false},
		{"unknown exam", apperror.NotFound("create", "exam"), http.StatusNotFound, response.ErrNotFound, false},
		{"store down", apperror.Storage("create", errors.New("dial tcp")), http.StatusServiceUnavailable, response.ErrStorageUnavailable, true},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, response.ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			examID := uuid.New()
			h.attempts.On("CreateOrResume", mock.Anything, examID, h.userID).Return(nil, tt.err)

			rec, resp := h.do(t, http.MethodPost, "/exams/"+examID.String()+"/attempts", nil)
			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
		})
	}
}

func TestRequestsNeedUserAndValidIDs(t *testing.T) {
	h := newHarness(t)

	rec, resp := h.do(t, http.MethodGet, "/attempts/"+uuid.NewString(), nil, "X-Anonymous", "1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, response.ErrTokenRequired, resp.Error.Code)

	rec, resp = h.do(t, http.MethodGet, "/attempts/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.ErrInvalidID, resp.Error.Code)

	rec, resp = h.do(t, http.MethodGet, "/attempts/"+uuid.NewString()+"/questions/first", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.ErrValidation, resp.Error.Code)

	h.attempts.AssertNotCalled(t, "View", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordAnswer(t *testing.T) {
	h := newHarness(t)
	attemptID, questionID := uuid.New(), uuid.New()

	h.attempts.On("RecordAnswer", mock.Anything, attemptID, h.userID, questionID, 2).
		Return(&service.RecordedAnswer{QuestionID: questionID, OptionIndex: 2, Revision: 4, Queued: true}, nil)

	rec, resp := h.do(t, http.MethodPut, "/attempts/"+attemptID.String()+"/answers",
		gin.H{"question_id": questionID.String(), "option_index": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 4, data["revision"])
	assert.Equal(t, true, data["queued"])
}

func TestRecordAnswer_RejectsBadPayloads(t *testing.T) {
	h := newHarness(t)
	path := "/attempts/" + uuid.NewString() + "/answers"

	for name, body := range map[string]gin.H{
		"missing option":  {"question_id": uuid.NewString()},
		"negative option": {"question_id": uuid.NewString(), "option_index": -1},
		"bad question id": {"question_id": "q1", "option_index": 0},
	} {
		t.Run(name, func(t *testing.T) {
			rec, resp := h.do(t, http.MethodPut, path, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, response.ErrValidation, resp.Error.Code)
		})
	}
	h.attempts.AssertNotCalled(t, "RecordAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordAnswer_OutOfRangeCarriesDetail(t *testing.T) {
	h := newHarness(t)
	attemptID, questionID := uuid.New(), uuid.New()
	h.attempts.On("RecordAnswer", mock.Anything, attemptID, h.userID, questionID, 7).
		Return(nil, apperror.InvalidArgument("record answer", "option index 7 out of range"))

	rec, resp := h.do(t, http.MethodPut, "/attempts/"+attemptID.String()+"/answers",
		gin.H{"question_id": questionID.String(), "option_index": 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "option index 7 out of range", resp.Error.Fields["detail"])
}

func TestRecordAnswer_ClosedAttempt(t *testing.T) {
	h := newHarness(t)
	attemptID, questionID := uuid.New(), uuid.New()
	h.attempts.On("RecordAnswer", mock.Anything, attemptID, h.userID, questionID, 0).
		Return(nil, apperror.AttemptClosed("record answer"))

	rec, resp := h.do(t, http.MethodPut, "/attempts/"+attemptID.String()+"/answers",
		gin.H{"question_id": questionID.String(), "option_index": 0})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, response.ErrAttemptClosed, resp.Error.Code)
}

func TestSubmit(t *testing.T) {
	h := newHarness(t)
	attemptID := uuid.New()
	h.submitter.On("Submit", mock.Anything, attemptID, h.userID).Return(&model.SubmissionOutcome{
		AttemptID:   attemptID,
		Result:      model.ExamResult{Score: 80, Passed: true},
		SubmittedAt: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}, nil).Once()

	rec, resp := h.do(t, http.MethodPost, "/attempts/"+attemptID.String()+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, false, data["auto_submit"])
	assert.EqualValues(t, 80, data["result"].(map[string]any)["score"])

	h.submitter.On("Submit", mock.Anything, attemptID, h.userID).
		Return(nil, apperror.Submission("submit", errors.New("deadlock"))).Once()
	rec, resp = h.do(t, http.MethodPost, "/attempts/"+attemptID.String()+"/submit", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, response.ErrSubmissionFailed, resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

func TestGetQuestionAndResult(t *testing.T) {
	h := newHarness(t)
	attemptID := uuid.New()

	q := &model.QuestionForUser{ID: uuid.New(), Question: "2+2?", Options: []string{"3", "4"}}
	h.attempts.On("QuestionAt", mock.Anything, attemptID, h.userID, 1).Return(q, nil)
	h.attempts.On("QuestionAt", mock.Anything, attemptID, h.userID, 10).
		Return(nil, apperror.InvalidArgument("question", "index 10 out of range"))

	rec, resp := h.do(t, http.MethodGet, "/attempts/"+attemptID.String()+"/questions/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "correct_option")
	assert.EqualValues(t, 1, resp.Data.(map[string]any)["index"])

	rec, _ = h.do(t, http.MethodGet, "/attempts/"+attemptID.String()+"/questions/10", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.results.On("Get", mock.Anything, attemptID, h.userID).Return(nil, apperror.NotFound("result", "attempt"))
	rec, resp = h.do(t, http.MethodGet, "/attempts/"+attemptID.String()+"/result", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.ErrNotFound, resp.Error.Code)
}

func TestListExams(t *testing.T) {
	h := newHarness(t)
	h.exams.On("ActiveExams", mock.Anything).Return(nil, nil)

	rec, resp := h.do(t, http.MethodGet, "/exams", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, resp.Data.(map[string]any)["exams"])
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec, resp := h.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "ok", data["status"])
	assert.EqualValues(t, 3, data["live_attempts"])
}

func TestHealth_Degraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/health", NewHealthHandler(map[string]Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}, nil, zerolog.Nop()).Health)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"down"`)
}
