package generation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrGeneration matches every *Error.
var ErrGeneration = errors.New("generation error")

// ErrEmptyInput is returned for items without text.
var ErrEmptyInput = errors.New("input text is empty")

type Kind string

const (
	// KindSchemaViolation means the output stayed structurally invalid after
	// every corrective attempt.
	KindSchemaViolation Kind = "SchemaViolation"
	// KindUnavailable means the capability could not be reached.
	KindUnavailable Kind = "Unavailable"
)

// Error is a per-item generation failure.
type Error struct {
	Kind     Kind
	Attempts int
	Issues   []string
	Err      error
}

func (e *Error) Error() string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "GenerationError(%s)", e.Kind)
	if e.Attempts > 0 {
		fmt.Fprintf(b, " after %d attempts", e.Attempts)
	}
	if len(e.Issues) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Issues, "; "))
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Is(target error) bool {
	return target == ErrGeneration
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind of a generation error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
