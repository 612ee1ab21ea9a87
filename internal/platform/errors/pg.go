package errors

import (
	"context"
	stderrs "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE classes the publish path distinguishes
var sqlStates = map[string]ErrorCode{
	"23505": ErrorCodeDuplicateKey, // unique_violation
	"23503": ErrorCodeValidation,   // foreign_key_violation
	"23502": ErrorCodeValidation,   // not_null_violation
	"23514": ErrorCodeValidation,   // check_violation
	"22001": ErrorCodeValidation,   // string_data_right_truncation
	"22P02": ErrorCodeValidation,   // invalid_text_representation
	"25006": ErrorCodeUnavailable,  // read_only_sql_transaction
	"57P03": ErrorCodeUnavailable,  // cannot_connect_now
}

// contention states; a fresh attempt of the same transaction may succeed
var retryStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available, raised by lock_timeout
}

// messages pgx surfaces without a PgError, mostly on commit
var retryText = []string{
	"commit unexpectedly resulted in rollback",
	"could not serialize access",
	"deadlock detected",
	"canceling statement due to lock timeout",
	"canceling statement due to statement timeout",
}

// PgError finds the postgres error in err's chain
func PgError(err error) (*pgconn.PgError, bool) {
	var pe *pgconn.PgError
	ok := stderrs.As(err, &pe)
	return pe, ok
}

// IsDuplicateKey reports a unique constraint violation
func IsDuplicateKey(err error) bool {
	pe, ok := PgError(err)
	return ok && pe.Code == "23505"
}

// DBErrorCode classifies a postgres error; ok is false for anything else
func DBErrorCode(err error) (ErrorCode, bool) {
	var pe *pgconn.PgError
	if !stderrs.As(err, &pe) {
		return ErrorCodeUnknown, false
	}
	if c, known := sqlStates[pe.Code]; known {
		return c, true
	}
	return ErrorCodeDB, true
}

// FromPostgres wraps err under the code DBErrorCode picks; nil stays nil
func FromPostgres(err error, msg string) error {
	if err == nil {
		return nil
	}
	code, ok := DBErrorCode(err)
	if !ok {
		code = ErrorCodeDB
	}
	return Wrap(err, code, msg)
}

// FromPostgresWithField is FromPostgres plus the offending column when postgres names one,
// falling back to the last segment of the constraint name unless it is a bare suffix like key
func FromPostgresWithField(err error, msg string) error {
	out := FromPostgres(err, msg)
	pe, ok := PgError(err)
	if !ok {
		return out
	}
	if col := strings.TrimSpace(pe.ColumnName); col != "" {
		return WithField(out, col)
	}
	c := strings.TrimSpace(pe.ConstraintName)
	if i := strings.LastIndex(c, "_"); i >= 0 {
		c = c[i+1:]
	}
	switch c {
	case "", "key", "fkey", "pkey", "check":
		return out
	}
	return WithField(out, c)
}

// IsRetryable reports contention a whole-transaction retry can resolve.
// Context cancellation and deadlines never are.
func IsRetryable(err error) bool {
	if err == nil || stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pe, ok := PgError(err); ok {
		return retryStates[pe.Code]
	}
	s := strings.ToLower(err.Error())
	for _, t := range retryText {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
