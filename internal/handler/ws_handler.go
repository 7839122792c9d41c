package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/apperror"
	"github.com/stemsi/exam-engine/internal/events"
	"github.com/stemsi/exam-engine/internal/logger"
	"github.com/stemsi/exam-engine/internal/response"
	ws "github.com/stemsi/exam-engine/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// AttemptFeed delivers submission notifications for one attempt.
type AttemptFeed interface {
	Subscribe(ctx context.Context, attemptID uuid.UUID) *redis.PubSub
}

// WSHandler streams an attempt over a WebSocket.
type WSHandler struct {
	attempts  Attempts
	submitter Submitter
	feed      AttemptFeed
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. A nil feed disables forwarding of
// submissions made elsewhere (expiry, other tabs).
func NewWSHandler(attempts Attempts, submitter Submitter, feed AttemptFeed, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts:  attempts,
		submitter: submitter,
		feed:      feed,
		log:       logger.Component(log, "ws_handler"),
		upgrader:  buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream
// Upgrades to WebSocket for autosave, submit and expiry notification.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	attemptID, ok := paramID(c, "attempt_id")
	if !ok {
		return
	}

	// Ownership is checked before the upgrade so the client gets a plain HTTP error.
	if _, err := h.attempts.View(c.Request.Context(), attemptID, userID); err != nil {
		response.Error(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	wsLog := h.log.With().
		Str("user_id", userID.String()).
		Str("attempt_id", attemptID.String()).
		Logger()
	wsLog.Info().Msg("Client connected")

	s := &stream{h: h, conn: conn, log: wsLog, attemptID: attemptID, userID: userID}
	if h.feed != nil {
		sub := h.feed.Subscribe(ctx, attemptID)
		defer sub.Close()
		go s.forward(ctx, sub.Channel())
	}

	for {
		var msg ws.Request
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAutosave:
			s.autosave(ctx, &msg)
		case ws.ActionSubmit:
			s.submit(ctx)
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action), false)
		}
	}
}

// stream is the per-connection state.
type stream struct {
	h         *WSHandler
	conn      *ws.Conn
	log       zerolog.Logger
	attemptID uuid.UUID
	userID    uuid.UUID
	// submitted suppresses the echo of this connection's own submission.
	submitted atomic.Bool
}

func (s *stream) autosave(ctx context.Context, msg *ws.Request) {
	if msg.QuestionID == "" || msg.OptionIndex == nil {
		_ = s.conn.WriteError(string(response.ErrValidation), "question_id and option_index are required", false)
		return
	}
	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil {
		_ = s.conn.WriteError(string(response.ErrInvalidID), "invalid question_id format", false)
		return
	}

	rec, err := s.h.attempts.RecordAnswer(ctx, s.attemptID, s.userID, questionID, *msg.OptionIndex)
	if err != nil {
		s.fail(err)
		return
	}
	_ = s.conn.WriteTyped(ws.SavedResponse{
		Event:       ws.EventSaved,
		QuestionID:  rec.QuestionID.String(),
		OptionIndex: rec.OptionIndex,
		Revision:    rec.Revision,
		Queued:      rec.Queued,
	})
}

func (s *stream) submit(ctx context.Context) {
	s.submitted.Store(true)
	outcome, err := s.h.submitter.Submit(ctx, s.attemptID, s.userID)
	if err != nil {
		s.submitted.Store(false)
		s.fail(err)
		return
	}
	s.log.Info().
		Int("score", outcome.Result.Score).
		Bool("duplicate", outcome.Duplicate).
		Msg("Attempt submitted")
	_ = s.conn.WriteTyped(ws.Submitted(outcome))
}

// forward relays submissions published for the attempt, such as an expiry
// on whichever server held the countdown.
func (s *stream) forward(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg, err := events.DecodeMessage(m.Payload)
			if err != nil || msg.Event != events.EventSubmitted || msg.Outcome == nil {
				s.log.Warn().Err(err).Msg("Dropping malformed attempt notification")
				continue
			}
			if !msg.Outcome.AutoSubmit && s.submitted.Load() {
				continue
			}
			_ = s.conn.WriteTyped(ws.Submitted(msg.Outcome))
		}
	}
}

func (s *stream) fail(err error) {
	_, code := response.Status(err)
	msg := response.GetMessage(code)
	var appErr *apperror.Error
	if code == response.ErrValidation && errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	if code == response.ErrInternal || apperror.IsRetryable(err) {
		s.log.Error().Err(err).Msg("Attempt operation failed")
	}
	_ = s.conn.WriteError(string(code), msg, apperror.IsRetryable(err))
}
