package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exam-engine/internal/model"
	"github.com/stemsi/exam-engine/internal/response"
	"github.com/stemsi/exam-engine/internal/validator"
)

// AttemptHandler handles the attempt lifecycle over plain HTTP.
type AttemptHandler struct {
	attempts  Attempts
	submitter Submitter
	results   Results
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts Attempts, submitter Submitter, results Results) *AttemptHandler {
	return &AttemptHandler{
		attempts:  attempts,
		submitter: submitter,
		results:   results,
	}
}

// StartAttempt godoc
// POST /api/v1/exams/:exam_id/attempts
// Creates an attempt, or resumes the caller's open one (idempotent).
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	examID, ok := paramID(c, "exam_id")
	if !ok {
		return
	}

	view, err := h.attempts.CreateOrResume(c.Request.Context(), examID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusCreated
	if view.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, view)
}

// GetAttempt godoc
// GET /api/v1/attempts/:attempt_id
// Returns the current state, covering page reloads.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	attemptID, ok := paramID(c, "attempt_id")
	if !ok {
		return
	}

	view, err := h.attempts.View(c.Request.Context(), attemptID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// GetQuestion godoc
// GET /api/v1/attempts/:attempt_id/questions/:index
// Returns one question of the attempt by zero-based position.
func (h *AttemptHandler) GetQuestion(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	attemptID, ok := paramID(c, "attempt_id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"index": "index must be an integer"})
		return
	}

	q, err := h.attempts.QuestionAt(c.Request.Context(), attemptID, userID, index)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"index": index, "question": q})
}

// RecordAnswer godoc
// PUT /api/v1/attempts/:attempt_id/answers
// Selects an option for a question; the last write wins.
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	attemptID, ok := paramID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	rec, err := h.attempts.RecordAnswer(c.Request.Context(), attemptID, userID, questionID, *req.OptionIndex)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rec)
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
// Scores and closes the attempt. Repeated calls return the stored result.
func (h *AttemptHandler) Submit(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	attemptID, ok := paramID(c, "attempt_id")
	if !ok {
		return
	}

	outcome, err := h.submitter.Submit(c.Request.Context(), attemptID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, outcome)
}

// GetResult godoc
// GET /api/v1/attempts/:attempt_id/result
// Returns the per-question breakdown of a submitted attempt.
func (h *AttemptHandler) GetResult(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	attemptID, ok := paramID(c, "attempt_id")
	if !ok {
		return
	}

	view, err := h.results.Get(c.Request.Context(), attemptID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}
