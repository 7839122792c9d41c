package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exam-engine/internal/model"
	"github.com/stemsi/exam-engine/internal/response"
)

// ExamHandler serves the read-only exam catalog.
type ExamHandler struct {
	exams Exams
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(exams Exams) *ExamHandler {
	return &ExamHandler{exams: exams}
}

// ListExams godoc
// GET /api/v1/exams
// Lists active exams.
func (h *ExamHandler) ListExams(c *gin.Context) {
	exams, err := h.exams.ActiveExams(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}
