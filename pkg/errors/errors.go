// Package errors provides the coded error taxonomy for the medqa service.
//
// Error Code Format: AABBCCC (7 digits)
//
//	AA  (00-99): Service/Module code - identifies the source service
//	BB  (00-99): Category code - identifies the error category
//	CCC (000-999): Sequence number - specific error within the category
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category codes.
const (
	CategoryRequest  = 1  // 400
	CategoryNotFound = 4  // 404
	CategoryInternal = 7  // 500
	CategoryNetwork  = 10 // 502/503
	CategoryTimeout  = 11 // 504/408
)

// ServiceMedQA is the service code for the medqa service.
const ServiceMedQA = 21

// MakeCode builds a 7-digit error code from service, category and sequence.
func MakeCode(service, category, seq int) int {
	return service*100000 + category*1000 + seq
}

// Errno represents a structured error with code and message.
type Errno struct {
	// Code is the unique error code
	Code int `json:"code"`

	// HTTP is the HTTP status code to return
	HTTP int `json:"-"`

	// Message is the error message
	Message string `json:"message"`

	// cause is the underlying error
	cause error
}

// New creates a new Errno with the given parameters.
func New(code int, httpStatus int, message string) *Errno {
	return &Errno{
		Code:    code,
		HTTP:    httpStatus,
		Message: message,
	}
}

// Error implements the error interface.
func (e *Errno) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("errno %d: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("errno %d: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Errno) Unwrap() error {
	return e.cause
}

// WithCause creates a new Errno with the given cause.
func (e *Errno) WithCause(cause error) *Errno {
	return &Errno{
		Code:    e.Code,
		HTTP:    e.HTTP,
		Message: e.Message,
		cause:   cause,
	}
}

// WithMessage creates a new Errno with a custom message.
func (e *Errno) WithMessage(msg string) *Errno {
	return &Errno{
		Code:    e.Code,
		HTTP:    e.HTTP,
		Message: msg,
		cause:   e.cause,
	}
}

// WithMessagef creates a new Errno with a formatted message.
func (e *Errno) WithMessagef(format string, args ...interface{}) *Errno {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// HTTPStatus returns the HTTP status code.
func (e *Errno) HTTPStatus() int {
	if e.HTTP != 0 {
		return e.HTTP
	}
	return http.StatusInternalServerError
}

// Is checks if this error matches the target error code.
func (e *Errno) Is(target error) bool {
	if t, ok := target.(*Errno); ok {
		return e.Code == t.Code
	}
	return false
}

// FromError converts any error to Errno.
// If err is already an Errno, returns it directly.
// Otherwise, wraps it as ErrInternal.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

// IsCode checks if the error carries the given error code.
func IsCode(err error, code int) bool {
	var e *Errno
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Predefined errors for the answering pipeline.
var (
	// ErrInternal is the generic fallback.
	ErrInternal = New(MakeCode(ServiceMedQA, CategoryInternal, 1), http.StatusInternalServerError, "Internal error")

	// ErrInvalidRequest covers malformed ask requests (empty question, unknown mode).
	ErrInvalidRequest = New(MakeCode(ServiceMedQA, CategoryRequest, 1), http.StatusBadRequest, "Invalid request parameters")

	// ErrRetrieval covers vector store failures and empty queries.
	// Callers retry at most once before propagating.
	ErrRetrieval = New(MakeCode(ServiceMedQA, CategoryNetwork, 1), http.StatusBadGateway, "Evidence retrieval failed")

	// ErrSectionExpansion covers a failed sub-query plan for one section.
	// Non-fatal: the section is skipped and the run continues.
	ErrSectionExpansion = New(MakeCode(ServiceMedQA, CategoryInternal, 2), http.StatusInternalServerError, "Section sub-query expansion failed")

	// ErrGeneration covers language model failures during answer generation.
	// Fatal for the run; never rendered as an insufficiency statement.
	ErrGeneration = New(MakeCode(ServiceMedQA, CategoryNetwork, 2), http.StatusBadGateway, "Answer generation failed")

	// ErrQueryTimeout covers request deadlines exceeded end to end.
	ErrQueryTimeout = New(MakeCode(ServiceMedQA, CategoryTimeout, 1), http.StatusRequestTimeout, "Query timeout")

	// ErrStatsUnavailable covers collection statistics failures.
	ErrStatsUnavailable = New(MakeCode(ServiceMedQA, CategoryInternal, 3), http.StatusInternalServerError, "Statistics unavailable")
)
