package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"prorab/internal/core/apperror"
)

// PostgreSQL error codes the report layer cares about.
const (
	codeUndefinedTable    = "42P01"
	codeUndefinedFunction = "42883"
	codeQueryCanceled     = "57014"
)

// IsUndefinedTable reports whether err is a missing relation.
func IsUndefinedTable(err error) bool {
	return hasCode(err, codeUndefinedTable)
}

// IsUndefinedFunction reports whether err is a missing procedure.
func IsUndefinedFunction(err error) bool {
	return hasCode(err, codeUndefinedFunction)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// ClassifyError maps a database error to an AppError.
func ClassifyError(err error) *apperror.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) || hasCode(err, codeQueryCanceled) {
		return apperror.NewTimeout(err)
	}
	return apperror.NewDatabase(err)
}
