package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrBadRequest          = errors.New("bad request")
	ErrInternal            = errors.New("internal server error")
	ErrInvalidInput        = errors.New("invalid input")
	ErrValidation          = errors.New("validation failed")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrMigration           = errors.New("migration failed")
	ErrSchedulerDesync     = errors.New("periodic task out of sync")
)

// AppError is a custom error type that can hold an HTTP status code
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ConstraintKind names the storage rule that rejected a write.
type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintCheck      ConstraintKind = "check"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintNotNull    ConstraintKind = "not_null"
)

// ConstraintError is returned when the store refuses a write. It always
// matches ErrConstraintViolation with errors.Is.
type ConstraintError struct {
	Kind       ConstraintKind
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s constraint %q violated: %v", e.Kind, e.Constraint, e.Err)
	}
	return fmt.Sprintf("%s constraint violated: %v", e.Kind, e.Err)
}

func (e *ConstraintError) Unwrap() []error {
	return []error{ErrConstraintViolation, e.Err}
}

var pgConstraintCodes = map[string]ConstraintKind{
	"23505": ConstraintUnique,
	"23514": ConstraintCheck,
	"23503": ConstraintForeignKey,
	"23502": ConstraintNotNull,
	"23001": ConstraintForeignKey,
}

var sqliteConstraintMessages = map[string]ConstraintKind{
	"UNIQUE constraint failed":      ConstraintUnique,
	"CHECK constraint failed":       ConstraintCheck,
	"FOREIGN KEY constraint failed": ConstraintForeignKey,
	"NOT NULL constraint failed":    ConstraintNotNull,
}

// FromDB classifies an error coming back from gorm. Constraint failures become
// *ConstraintError, missing rows become ErrNotFound, anything else is returned
// unchanged.
func FromDB(err error) error {
	if err == nil {
		return nil
	}
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if kind, ok := pgConstraintCodes[pgErr.Code]; ok {
			return &ConstraintError{Kind: kind, Constraint: pgErr.ConstraintName, Err: err}
		}
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &ConstraintError{Kind: ConstraintUnique, Err: err}
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return &ConstraintError{Kind: ConstraintForeignKey, Err: err}
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return &ConstraintError{Kind: ConstraintCheck, Err: err}
	}

	msg := err.Error()
	for prefix, kind := range sqliteConstraintMessages {
		if idx := strings.Index(msg, prefix); idx >= 0 {
			name := strings.TrimSpace(strings.TrimPrefix(msg[idx+len(prefix):], ":"))
			return &ConstraintError{Kind: kind, Constraint: name, Err: err}
		}
	}
	return err
}

// MapErrorToStatus maps common errors to HTTP status codes
func MapErrorToStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrConstraintViolation) {
		return http.StatusConflict
	}
	// Default to internal server error
	return http.StatusInternalServerError
}
