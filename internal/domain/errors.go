package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input; nothing was changed.
	ErrValidation = errors.New("validation failed")
	// ErrQuizNotFound indicates the quiz id or join code could not be resolved.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question id is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAnswerNotFound indicates an answer id could not be resolved for the quiz and student.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrSessionNotFound is returned when a participant has no live session.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrProfileNotFound is returned for unknown user ids.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrQuizClosed is returned when joining a finished quiz.
	ErrQuizClosed = errors.New("quiz is closed")
	// ErrInvalidTransition is returned for any lifecycle change other than pending->active->finished.
	ErrInvalidTransition = errors.New("invalid quiz state transition")
	// ErrQuizLocked is returned when editing the question bank of a quiz that already started.
	ErrQuizLocked = errors.New("quiz questions can only change while pending")
	// ErrConflict means a concurrent write won the race; the caller should re-read and retry.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrCodeTaken means the join code is already used by a quiz that is not finished.
	ErrCodeTaken = errors.New("join code already in use")
	// ErrNotificationDelivery means a change subscription dropped.
	ErrNotificationDelivery = errors.New("notification subscription lost")
	// ErrForbidden is returned when the caller does not own the quiz or lacks the role.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated is returned for missing or invalid credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrAlreadySubmitted is returned when a question has already been submitted.
	ErrAlreadySubmitted = errors.New("question already submitted")
	// ErrSessionWaiting is returned when answering before the quiz started.
	ErrSessionWaiting = errors.New("quiz has not started yet")
	// ErrSessionClosed is returned when acting on a finished, blocked or abandoned session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrQuizEmpty is reported when an active quiz has no questions.
	ErrQuizEmpty = errors.New("quiz has no questions")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
