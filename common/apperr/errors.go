// Package apperr defines the error taxonomy shared by every platform service.
// Errors carry a Kind (for classification with errors.Is) and a stable Code
// that is safe to return to HTTP callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error independently of where it was raised.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindAuth            Kind = "auth"
	KindForbidden       Kind = "forbidden"
	KindIntegrity       Kind = "integrity"
	KindIO              Kind = "io"
	KindDelivery        Kind = "delivery"
	KindExternalService Kind = "external_service"
	KindInternal        Kind = "internal"
)

// Stable codes returned to HTTP callers.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeIntegrity       = "INTEGRITY_ERROR"
	CodeIO              = "IO_ERROR"
	CodeDelivery        = "DELIVERY_ERROR"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
)

var defaultCodes = map[Kind]string{
	KindValidation:      CodeValidation,
	KindNotFound:        CodeNotFound,
	KindConflict:        CodeConflict,
	KindAuth:            CodeUnauthorized,
	KindForbidden:       CodeForbidden,
	KindIntegrity:       CodeIntegrity,
	KindIO:              CodeIO,
	KindDelivery:        CodeDelivery,
	KindExternalService: CodeExternalService,
	KindInternal:        CodeInternal,
}

var httpStatuses = map[Kind]int{
	KindValidation:      http.StatusBadRequest,
	KindNotFound:        http.StatusNotFound,
	KindConflict:        http.StatusConflict,
	KindAuth:            http.StatusUnauthorized,
	KindForbidden:       http.StatusForbidden,
	KindIntegrity:       http.StatusUnprocessableEntity,
	KindIO:              http.StatusInternalServerError,
	KindDelivery:        http.StatusBadGateway,
	KindExternalService: http.StatusBadGateway,
	KindInternal:        http.StatusInternalServerError,
}

// Error is a classified platform error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same Kind, so sentinels such as
// ErrNotFound can be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// WithDetails attaches structured details returned alongside the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Sentinels for errors.Is checks.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrAuth            = &Error{Kind: KindAuth}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrIntegrity       = &Error{Kind: KindIntegrity}
	ErrIO              = &Error{Kind: KindIO}
	ErrDelivery        = &Error{Kind: KindDelivery}
	ErrExternalService = &Error{Kind: KindExternalService}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: defaultCodes[kind], Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed input.
func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

// NotFound reports a missing resource.
func NotFound(resource string, id any) *Error {
	return newf(KindNotFound, "%s not found: %v", resource, id)
}

// Conflict reports a state conflict.
func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, format, args...)
}

// Auth reports an invalid, expired or revoked credential.
func Auth(format string, args ...any) *Error {
	return newf(KindAuth, format, args...)
}

// Forbidden reports an operation the caller may not perform.
func Forbidden(format string, args ...any) *Error {
	return newf(KindForbidden, format, args...)
}

// Integrity reports an attempt to change immutable state.
func Integrity(format string, args ...any) *Error {
	return newf(KindIntegrity, format, args...)
}

// Wrap classifies an underlying error under kind.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Code:    defaultCodes[kind],
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IO wraps a filesystem or database failure.
func IO(err error, format string, args ...any) *Error {
	return Wrap(KindIO, err, format, args...)
}

// Delivery wraps an export delivery failure.
func Delivery(err error, format string, args ...any) *Error {
	return Wrap(KindDelivery, err, format, args...)
}

// External wraps a failure talking to a collaborating service.
func External(service string, err error) *Error {
	return Wrap(KindExternalService, err, "%s request failed", service)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code for err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return defaultCodes[KindOf(err)]
}

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	return httpStatuses[KindOf(err)]
}

// DetailsOf returns the structured details of the first *Error in err's chain.
func DetailsOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
