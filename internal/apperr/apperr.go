// Package apperr defines the error taxonomy reported at the request and
// startup boundaries.
//
// Errors carry a Kind. Callers branch on the kind with errors.Is against
// the exported sentinels or with KindOf; the HTTP layer maps kinds onto
// status codes with HTTPStatus.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes boundary errors.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindOptimisticConflict Kind = "OPTIMISTIC_CONFLICT"
	KindVerificationFailed Kind = "VERIFICATION_FAILED"
	KindPersistenceFailed  Kind = "PERSISTENCE_FAILED"
	KindInvalidField       Kind = "INVALID_FIELD"
	KindTypeCoercion       Kind = "TYPE_COERCION_FAILED"
	KindBadRequest         Kind = "BAD_REQUEST"
	KindStartupFailure     Kind = "STARTUP_FAILURE"
)

// Error is a boundary error with a kind and optional field/detail context.
type Error struct {
	Kind    Kind
	Message string
	Field   string // offending property for InvalidField / TypeCoercionFailed
	Detail  string // verifier message for VerificationFailed
	Err     error  // wrapped cause, optional
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.Field)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind, so the exported sentinels work
// with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "instance not found"}
	ErrOptimisticConflict = &Error{Kind: KindOptimisticConflict, Message: "optimistic locking failed"}
	ErrVerificationFailed = &Error{Kind: KindVerificationFailed, Message: "failed to verify change"}
	ErrPersistenceFailed  = &Error{Kind: KindPersistenceFailed, Message: "failed to persist change"}
	ErrInvalidField       = &Error{Kind: KindInvalidField, Message: "invalid field name"}
	ErrTypeCoercion       = &Error{Kind: KindTypeCoercion, Message: "cannot read field value"}
	ErrBadRequest         = &Error{Kind: KindBadRequest, Message: "bad request"}
	ErrStartupFailure     = &Error{Kind: KindStartupFailure, Message: "startup failed"}
)

// NotFound reports a missing instance of the given entity type.
func NotFound(alias string, id int64) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %d not found", alias, id)}
}

// OptimisticConflict reports a version mismatch.
func OptimisticConflict(err error) *Error {
	return &Error{Kind: KindOptimisticConflict, Message: "optimistic locking failed", Err: err}
}

// VerificationFailed reports a change rejected by a verifier.
func VerificationFailed(detail string) *Error {
	return &Error{Kind: KindVerificationFailed, Message: "failed to verify change", Detail: detail}
}

// PersistenceFailed reports a storage failure.
func PersistenceFailed(err error) *Error {
	return &Error{Kind: KindPersistenceFailed, Message: "failed to persist change", Err: err}
}

// InvalidField reports a property name not declared by the entity.
func InvalidField(name string) *Error {
	return &Error{Kind: KindInvalidField, Message: "invalid field name", Field: name}
}

// TypeCoercionFailed reports a value that does not fit its declared type.
func TypeCoercionFailed(name string, err error) *Error {
	return &Error{Kind: KindTypeCoercion, Message: "cannot read field value", Field: name, Err: err}
}

// BadRequest reports a malformed request.
func BadRequest(message string, err error) *Error {
	return &Error{Kind: KindBadRequest, Message: message, Err: err}
}

// StartupFailure reports a fatal composition failure.
func StartupFailure(step string, err error) *Error {
	return &Error{Kind: KindStartupFailure, Message: step, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsOptimisticConflict reports whether err is an OptimisticConflict error.
func IsOptimisticConflict(err error) bool {
	return errors.Is(err, ErrOptimisticConflict)
}

// IsValidation reports whether err was raised by request validation and
// never reached storage.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case KindInvalidField, KindTypeCoercion, KindBadRequest:
		return true
	}
	return false
}

// HTTPStatus maps a kind onto the boundary status code.
// Conflicts are reported as 500 like other storage outcomes.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidField, KindTypeCoercion, KindBadRequest:
		return http.StatusBadRequest
	case KindOptimisticConflict, KindVerificationFailed, KindPersistenceFailed, KindStartupFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
