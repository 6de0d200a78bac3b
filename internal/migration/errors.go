package migration

import (
	"errors"
	"fmt"

	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
)

var (
	ErrInvalidGraph     = errors.New("invalid migration graph")
	ErrUnknownMigration = errors.New("unknown migration")
	ErrUnknownColumn    = errors.New("column does not exist at this point in history")
)

// MigrationError reports the migration and operation that failed. The
// migration's transaction has been rolled back by the time it is returned.
type MigrationError struct {
	Key Key
	Op  string
	Err error
}

func (e *MigrationError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("migration %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("migration %s: %s: %v", e.Key, e.Op, e.Err)
}

func (e *MigrationError) Unwrap() []error {
	return []error{apperror.ErrMigration, e.Err}
}
