package postgres

import (
	"errors"

	"github.com/uptrace/bun/driver/pgdriver"
	"live-quiz-service/internal/domain"
)

const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// translate maps driver errors onto domain errors. Serialization failures
// and deadlocks become domain.ErrConflict so callers re-read and retry.
func translate(err error, onUnique error) error {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Field('C') {
	case uniqueViolation:
		if onUnique != nil {
			return onUnique
		}
	case serializationFailure, deadlockDetected:
		return domain.ErrConflict
	}
	return err
}
