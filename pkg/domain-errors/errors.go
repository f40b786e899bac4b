// Package domainerrors provides coded errors for the engine's trust boundary.
//
// Services and stores return these (or sentinel errors wrapped into them) so
// that transport code can map failures onto HTTP statuses without inspecting
// error strings. Codes follow the engine's error taxonomy: NotFound,
// InvalidEdge, Calculation, ScenarioBusy, RecalculationInProgress, Cancelled,
// Timeout, plus the generic Validation/Conflict/Internal buckets.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category with a stable wire representation.
type Code string

const (
	CodeNotFound                Code = "not_found"
	CodeInvalidEdge             Code = "invalid_edge"
	CodeCalculation             Code = "calculation_error"
	CodeScenarioBusy            Code = "scenario_busy"
	CodeRecalculationInProgress Code = "recalculation_in_progress"
	CodeCancelled               Code = "cancelled"
	CodeTimeout                 Code = "timeout"
	CodeValidation              Code = "validation_failed"
	CodeInvalidInput            Code = "invalid_input"
	CodeBadRequest              Code = "bad_request"
	CodeConflict                Code = "conflict"
	CodeInvariantViolation      Code = "invariant_violation"
	CodeInternal                Code = "internal_error"
)

// Error is a coded domain error. Message is safe to surface to API clients.
type Error struct {
	Code    Code
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// New creates a coded error with a client-safe message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted client-safe message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for uncoded
// errors so nothing leaks uncategorized across the boundary.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is allows comparison against another *Error by code.
func (e *Error) Is(target error) bool {
	var de *Error
	if errors.As(target, &de) {
		return e.Code == de.Code
	}
	return false
}

// ToHTTPStatus maps an error to the HTTP status the API layer should return.
func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeScenarioBusy, CodeRecalculationInProgress, CodeConflict:
		return http.StatusConflict
	case CodeValidation, CodeInvalidEdge, CodeCalculation, CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeCancelled:
		// Nginx's non-standard "client closed request"; the closest fit.
		return 499
	default:
		return http.StatusInternalServerError
	}
}
