package schema

import (
	"errors"
	"fmt"
)

// ErrSchema matches every *Error through errors.Is.
var ErrSchema = errors.New("schema error")

type Kind string

const (
	KindUnresolvedReference      Kind = "UnresolvedReference"
	KindCyclicReference          Kind = "CyclicReference"
	KindEnumOverrideTypeMismatch Kind = "EnumOverrideTypeMismatch"
	KindUnknownPath              Kind = "UnknownPath"
	KindPathConflict             Kind = "PathConflict"
	KindInvalidDocument          Kind = "InvalidDocument"
	KindInvalidInstruction       Kind = "InvalidInstruction"
	KindUndefinedRequired        Kind = "UndefinedRequired"
)

// Error is a fatal compilation failure. No partial artifact is produced
// when one is returned.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Err     error
}

func newError(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("SchemaError(%s)", e.Kind)
	if e.Path != "" {
		msg += " at " + e.Path
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == ErrSchema
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
