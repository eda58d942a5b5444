package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors. Each maps to one precondition of the attendance engine
// or check-in flow so callers can branch on Code without string matching.
var (
	ErrStudentNotFound    = New("STUDENT_NOT_FOUND", http.StatusNotFound, "student not found")
	ErrStudentInactive    = New("STUDENT_INACTIVE", http.StatusConflict, "student is not active for this date")
	ErrPlanNotStarted     = New("PLAN_NOT_STARTED", http.StatusConflict, "student plan has not started yet")
	ErrPlanExpired        = New("PLAN_EXPIRED", http.StatusConflict, "student plan has expired")
	ErrNotEligible        = New("NOT_ELIGIBLE", http.StatusConflict, "student plan does not include this meal")
	ErrRecordNotFound     = New("RECORD_NOT_FOUND", http.StatusNotFound, "attendance record not found")
	ErrNoFieldsProvided   = New("NO_FIELDS_PROVIDED", http.StatusBadRequest, "no fields provided")
	ErrInvalidQRCode      = New("INVALID_QR_CODE", http.StatusBadRequest, "unrecognized QR code")
	ErrNoActiveMealWindow = New("NO_ACTIVE_MEAL_WINDOW", http.StatusConflict, "no meal is being served right now")
	ErrStorage            = New("STORAGE_ERROR", http.StatusInternalServerError, "storage operation failed")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
