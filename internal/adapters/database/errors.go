package database

import (
	"errors"

	"github.com/lib/pq"

	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

const (
	pqUniqueViolation      = "23505"
	pqExclusionViolation   = "23P01"
	pqSerializationFailure = "40001"
)

// mapWriteError translates driver errors into application errors. Unique and
// exclusion violations, and serialization failures under SERIALIZABLE, are
// conflicts the caller may retry or report.
func mapWriteError(msg string, err error, ids ...string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation, pqExclusionViolation, pqSerializationFailure:
			return apperrors.NewConflictError(msg+": "+pqErr.Message, ids...)
		}
	}
	return apperrors.NewInternalError(msg, err)
}
