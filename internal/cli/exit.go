package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/relicta-tech/ci-tools/internal/domain/release"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitSanity   = 2
	ExitNoTarget = 3
	ExitCanceled = 130
)

// errNothingToDo stops a command before it runs; Execute reports success.
var errNothingToDo = errors.New("nothing to do")

// ExitError carries a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitf(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	if errors.Is(err, context.Canceled) {
		return ExitCanceled
	}
	return ExitFailure
}

// finish turns a release outcome into the command's return value.
func finish(logger *log.Logger, o release.Outcome) error {
	switch {
	case o.IsSkip():
		logger.Warn(o.Reason)
		return nil
	case o.IsAbort():
		return &ExitError{Code: ExitFailure, Err: errors.New(o.Reason)}
	default:
		return nil
	}
}
