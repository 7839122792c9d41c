package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exam-engine/internal/middleware"
	"github.com/stemsi/exam-engine/internal/model"
	"github.com/stemsi/exam-engine/internal/response"
	"github.com/stemsi/exam-engine/internal/service"
)

// Attempts is the attempt lifecycle used by the HTTP and WebSocket handlers.
type Attempts interface {
	CreateOrResume(ctx context.Context, examID, userID uuid.UUID) (*model.AttemptView, error)
	View(ctx context.Context, attemptID, userID uuid.UUID) (*model.AttemptView, error)
	RecordAnswer(ctx context.Context, attemptID, userID, questionID uuid.UUID, optionIndex int) (*service.RecordedAnswer, error)
	QuestionAt(ctx context.Context, attemptID, userID uuid.UUID, index int) (*model.QuestionForUser, error)
}

// Submitter closes attempts on behalf of their owner.
type Submitter interface {
	Submit(ctx context.Context, attemptID, userID uuid.UUID) (*model.SubmissionOutcome, error)
}

// Results reads finished attempts.
type Results interface {
	Get(ctx context.Context, attemptID, userID uuid.UUID) (*model.ResultView, error)
}

// Exams lists the catalog.
type Exams interface {
	ActiveExams(ctx context.Context) ([]model.Exam, error)
}

// currentUser returns the authenticated user, writing a 401 when absent.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return uuid.Nil, false
	}
	return userID, true
}

// paramID parses a UUID path parameter, writing a 400 when malformed.
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
