package types

import "fmt"

// Kind classifies a store error so callers can branch on failure category
// without parsing messages.
type Kind string

func (k Kind) Error() string {
	return string(k)
}

const (
	// Validation means a candidate event or query failed a field-level check
	// before anything was written.
	Validation Kind = "validation"
	// ConditionNotMet means an optimistic append condition observed at least
	// one matching event and the batch was not staged.
	ConditionNotMet Kind = "condition_not_met"
	// Io means the underlying keyspace failed to read or write; the
	// underlying error is preserved via Unwrap.
	Io Kind = "io"
	// DataIntegrity means an index or reference was found inconsistent with
	// the primary event record it should describe.
	DataIntegrity Kind = "data_integrity"
)

// Error wraps an underlying cause with a Kind, so errors.As(err, *Error)
// recovers both the category and, via Unwrap, the original error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the same Kind, so callers can write
// errors.Is(err, types.ConditionNotMet) directly against the sentinel Kind
// values above.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validationf(format string, args ...any) *Error {
	return New(Validation, fmt.Sprintf(format, args...))
}

func DataIntegrityf(format string, args ...any) *Error {
	return New(DataIntegrity, fmt.Sprintf(format, args...))
}

func IoWrap(cause error, message string) *Error {
	return Wrap(Io, message, cause)
}
