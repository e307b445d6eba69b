package cli

import "fmt"

const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitPartial = 2
)

// ExitError carries the process exit code. A nil Err means the outcome was
// already reported.
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

func fatal(err error) error {
	return &ExitError{Code: ExitFatal, Err: err}
}
