package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/apperror"
)

// Status maps an application error to its HTTP status and error code.
func Status(err error) (int, ErrCode) {
	switch apperror.KindOf(err) {
	case apperror.KindInvalidArgument:
		return http.StatusBadRequest, ErrValidation
	case apperror.KindNoContent:
		return http.StatusNotFound, ErrNoQuestions
	case apperror.KindNotFound:
		return http.StatusNotFound, ErrNotFound
	case apperror.KindAttemptClosed:
		return http.StatusConflict, ErrAttemptClosed
	case apperror.KindStorage:
		return http.StatusServiceUnavailable, ErrStorageUnavailable
	case apperror.KindSubmission:
		return http.StatusServiceUnavailable, ErrSubmissionFailed
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}

// Error sends the error response for err. Invalid arguments carry their
// message as a detail field. Server-side failures are logged with the
// request-scoped logger.
func Error(c *gin.Context, err error) {
	status, code := Status(err)
	body := &ErrorBody{
		Code:      code,
		Message:   GetMessage(code),
		Retryable: apperror.IsRetryable(err),
	}

	var appErr *apperror.Error
	if code == ErrValidation && errors.As(err, &appErr) && appErr.Message != "" {
		body.Fields = map[string]string{"detail": appErr.Message}
	}

	if status >= http.StatusInternalServerError && c.Request != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).
			Str("code", string(code)).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}

	c.JSON(status, Response{
		Data:     nil,
		Error:    body,
		Metadata: buildMetadata(c),
	})
}
