package jobs

import (
	"errors"
	"fmt"

	"github.com/iota-uz/registrar/pkg/serrors"
)

var (
	ErrInvalidConfig = serrors.NewError("JOBS_INVALID_CONFIG", "invalid jobs configuration", "")
	ErrJobNotFound   = serrors.NewError("JOBS_NOT_FOUND", "job not found", "")
	ErrUnknownTask   = serrors.NewError("JOBS_UNKNOWN_TASK", "no task registered for slug", "")
	// ErrSuspended parks the job until something outside the runner
	// requeues or deletes it.
	ErrSuspended = serrors.NewError("JOBS_SUSPENDED", "job suspended", "")
)

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Suspend returns an error that moves the job to StatusSuspended.
func Suspend(reason string) error {
	return fmt.Errorf("%w: %s", ErrSuspended, reason)
}
