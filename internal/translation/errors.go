package translation

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents a failure raised by registration, inlining or direct
// evaluation.
//
// Only MetadataLookupFailed is ever recovered inside the package (the enum
// formatter logs it and leaves ToString untranslated). Every other code
// affects the correctness of a rewritten tree and is returned to the caller.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Symbol names the offending entry, e.g. "Order.Total".
	Symbol string

	// Path lists the entries being expanded when the error was raised,
	// outermost first. Set for circular references.
	Path []string
}

// ErrorCode categorizes translation errors.
type ErrorCode string

const (
	// ErrCodeDuplicateRegistration indicates a symbol was registered twice
	// with different bodies.
	ErrCodeDuplicateRegistration ErrorCode = "DUPLICATE_REGISTRATION"

	// ErrCodeCircularReference indicates an entry was reached again while
	// it was still being expanded.
	ErrCodeCircularReference ErrorCode = "CIRCULAR_REFERENCE"

	// ErrCodeUnsupportedTranslation indicates a call form that cannot be
	// rewritten into translator-safe nodes.
	ErrCodeUnsupportedTranslation ErrorCode = "UNSUPPORTED_TRANSLATION"

	// ErrCodeMetadataLookupFailed indicates an enum caption lookup failed.
	ErrCodeMetadataLookupFailed ErrorCode = "METADATA_LOOKUP_FAILED"

	// ErrCodeNullInstance indicates direct evaluation without an instance.
	ErrCodeNullInstance ErrorCode = "NULL_INSTANCE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("%s: %s (path=%s)", e.Code, e.Message, strings.Join(e.Path, " -> "))
	}
	if e.Symbol != "" {
		return fmt.Sprintf("%s: %s (symbol=%s)", e.Code, e.Message, e.Symbol)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code ErrorCode) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// IsDuplicate returns true if err is a duplicate registration error.
// Uses errors.As to handle wrapped errors.
func IsDuplicate(err error) bool { return hasCode(err, ErrCodeDuplicateRegistration) }

// IsCircularReference returns true if err is a circular reference error.
func IsCircularReference(err error) bool { return hasCode(err, ErrCodeCircularReference) }

// IsUnsupported returns true if err is an unsupported translation error.
func IsUnsupported(err error) bool { return hasCode(err, ErrCodeUnsupportedTranslation) }

// IsMetadataLookupFailed returns true if err is a failed caption lookup.
func IsMetadataLookupFailed(err error) bool { return hasCode(err, ErrCodeMetadataLookupFailed) }

// IsNullInstance returns true if err reports a missing instance.
func IsNullInstance(err error) bool { return hasCode(err, ErrCodeNullInstance) }

// NewDuplicateError creates an Error for a conflicting registration.
func NewDuplicateError(sym Symbol) *Error {
	return &Error{
		Code:    ErrCodeDuplicateRegistration,
		Message: "symbol already registered with a different body",
		Symbol:  sym.String(),
	}
}

// NewCircularError creates an Error for an entry reached while it is still
// being expanded. path holds the entries on the expansion stack.
func NewCircularError(sym Symbol, path []Symbol) *Error {
	names := make([]string, 0, len(path)+1)
	for _, p := range path {
		names = append(names, p.String())
	}
	names = append(names, sym.String())
	return &Error{
		Code:    ErrCodeCircularReference,
		Message: fmt.Sprintf("%s references itself", sym),
		Symbol:  sym.String(),
		Path:    names,
	}
}

// NewUnsupportedError creates an Error for an untranslatable form.
func NewUnsupportedError(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeUnsupportedTranslation,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewNullInstanceError creates an Error for evaluation without an instance.
func NewNullInstanceError(sym Symbol) *Error {
	return &Error{
		Code:    ErrCodeNullInstance,
		Message: "cannot evaluate without an instance",
		Symbol:  sym.String(),
	}
}

// NewMetadataError wraps a failed caption lookup.
func NewMetadataError(enum string, err error) *Error {
	return &Error{
		Code:    ErrCodeMetadataLookupFailed,
		Message: err.Error(),
		Symbol:  enum,
	}
}
