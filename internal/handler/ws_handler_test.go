package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/apperror"
	"github.com/stemsi/exam-engine/internal/middleware"
	"github.com/stemsi/exam-engine/internal/model"
	"github.com/stemsi/exam-engine/internal/service"
	ws "github.com/stemsi/exam-engine/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type wsHarness struct {
	attempts  *MockAttempts
	submitter *MockSubmitter
	userID    uuid.UUID
	attemptID uuid.UUID
	server    *httptest.Server
}

func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	h := &wsHarness{
		attempts:  new(MockAttempts),
		submitter: new(MockSubmitter),
		userID:    uuid.New(),
		attemptID: uuid.New(),
	}

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, h.userID)
		c.Next()
	})
	handler := NewWSHandler(h.attempts, h.submitter, nil, zerolog.Nop(), nil)
	engine.GET("/ws/attempts/:attempt_id/stream", handler.AttemptStream)

	h.server = httptest.NewServer(engine)
	t.Cleanup(h.server.Close)
	return h
}

func (h *wsHarness) dial(t *testing.T, attemptID uuid.UUID) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/attempts/" + attemptID.String() + "/stream"
	return websocket.DefaultDialer.Dial(url, nil)
}

func (h *wsHarness) connect(t *testing.T) *websocket.Conn {
	t.Helper()
	h.attempts.On("View", mock.Anything, h.attemptID, h.userID).
		Return(&model.AttemptView{ID: h.attemptID, State: model.AttemptStateActive}, nil)
	conn, _, err := h.dial(t, h.attemptID)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out map[string]any
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestAttemptStream_RejectsForeignAttemptBeforeUpgrade(t *testing.T) {
	h := newWSHarness(t)
	other := uuid.New()
	h.attempts.On("View", mock.Anything, other, h.userID).Return(nil, apperror.NotFound("view", "attempt"))

	_, resp, err := h.dial(t, other)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAttemptStream_Autosave(t *testing.T) {
	h := newWSHarness(t)
	conn := h.connect(t)
	questionID := uuid.New()

	h.attempts.On("RecordAnswer", mock.Anything, h.attemptID, h.userID, questionID, 1).
		Return(&service.RecordedAnswer{QuestionID: questionID, OptionIndex: 1, Revision: 2, Queued: true}, nil)

	opt := 1
	require.NoError(t, conn.WriteJSON(ws.Request{Action: ws.ActionAutosave, QuestionID: questionID.String(), OptionIndex: &opt}))
	ev := readEvent(t, conn)
	assert.Equal(t, "saved", ev["event"])
	assert.Equal(t, questionID.String(), ev["question_id"])
	assert.EqualValues(t, 2, ev["revision"])

	require.NoError(t, conn.WriteJSON(ws.Request{Action: ws.ActionAutosave, QuestionID: questionID.String()}))
	ev = readEvent(t, conn)
	assert.Equal(t, "error", ev["event"])
	assert.Equal(t, "VALIDATION_ERROR", ev["code"])
}

func TestAttemptStream_SubmitAndErrors(t *testing.T) {
	h := newWSHarness(t)
	conn := h.connect(t)

	h.submitter.On("Submit", mock.Anything, h.attemptID, h.userID).
		Return(nil, apperror.Submission("submit", assert.AnError)).Once()
	require.NoError(t, conn.WriteJSON(ws.Request{Action: ws.ActionSubmit}))
	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev["event"])
	assert.Equal(t, "SUBMISSION_FAILED", ev["code"])
	assert.Equal(t, true, ev["retryable"])

	h.submitter.On("Submit", mock.Anything, h.attemptID, h.userID).
		Return(&model.SubmissionOutcome{AttemptID: h.attemptID, Result: model.ExamResult{Score: 60}}, nil).Once()
	require.NoError(t, conn.WriteJSON(ws.Request{Action: ws.ActionSubmit}))
	ev = readEvent(t, conn)
	assert.Equal(t, "submitted", ev["event"])
	assert.Equal(t, false, ev["auto_submit"])
	assert.EqualValues(t, 60, ev["result"].(map[string]any)["score"])

	require.NoError(t, conn.WriteJSON(ws.Request{Action: ws.ActionPing}))
	assert.Equal(t, "pong", readEvent(t, conn)["event"])

	require.NoError(t, conn.WriteJSON(ws.Request{Action: "teleport"}))
	ev = readEvent(t, conn)
	assert.Equal(t, "INVALID_PAYLOAD", ev["code"])
}

func TestStreamForward(t *testing.T) {
	gin.SetMode(gin.TestMode)
	feed := make(chan *redis.Message, 4)
	ctx, cancel := context.WithCancel(context.Background())

	upgrader := buildUpgrader(nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := &stream{conn: ws.Wrap(raw), log: zerolog.Nop()}
		s.submitted.Store(true)
		s.forward(ctx, feed)
	}))
	t.Cleanup(server.Close)
	t.Cleanup(cancel)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	feed <- &redis.Message{Payload: "{not json"}
	// Own manual submission is not echoed back.
	feed <- &redis.Message{Payload: `{"event":"submitted","outcome":{"auto_submit":false,"result":{"score":10}}}`}
	feed <- &redis.Message{Payload: `{"event":"submitted","outcome":{"auto_submit":true,"result":{"score":40}}}`}

	ev := readEvent(t, conn)
	assert.Equal(t, "submitted", ev["event"])
	assert.Equal(t, true, ev["auto_submit"])
	assert.EqualValues(t, 40, ev["result"].(map[string]any)["score"])
}
