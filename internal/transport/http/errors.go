package http

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"live-quiz-service/internal/domain"
)

type errorPayload struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrAnswerNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQuizClosed),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrQuizLocked),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrCodeTaken),
		errors.Is(err, domain.ErrAlreadySubmitted),
		errors.Is(err, domain.ErrSessionWaiting),
		errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrQuizEmpty):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func toPayload(err error) errorPayload {
	payload := errorPayload{Message: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		payload.Field = verr.Field
	}
	return payload
}

// abortWithError writes err as a JSON body. Internal errors are logged and
// not echoed to the client.
func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	payload := toPayload(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		payload = errorPayload{Message: "internal error"}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": payload})
}
