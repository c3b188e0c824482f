package util

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Reasons returns the human-readable failure messages. The list is never empty
// and its order is stable.
func (e *DomainError) Reasons() []string {
	reasons := make([]string, 0, 1+len(e.Details))
	if e.Message != "" {
		reasons = append(reasons, e.Message)
	}
	fields := make([]string, 0, len(e.Details))
	for field := range e.Details {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		reasons = append(reasons, fmt.Sprintf("%s: %v", field, e.Details[field]))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "request failed")
	}
	return reasons
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewValidationFailed carries field-level validation messages.
func NewValidationFailed(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusForbidden, nil)
}

func NewUnauthenticated(message string) error {
	return NewDomainError("UNAUTHENTICATED", message, http.StatusUnauthorized, nil)
}

// NewInvalidTransition reports a transition request that matches no row of the
// state machine table. The message names the current state.
func NewInvalidTransition(message string) error {
	return NewDomainError("INVALID_TRANSITION", message, http.StatusUnprocessableEntity, nil)
}

// NewAlreadyAssigned reports the losing side of an assignment race.
func NewAlreadyAssigned(ticketID string) error {
	return NewDomainError("ALREADY_ASSIGNED", "ticket is already assigned to another agent", http.StatusConflict, map[string]any{
		"ticket_id": ticketID,
	})
}

// NewOperationFailed hides infrastructure faults behind a stable message.
// The underlying error stays attached for logging but is never serialized.
func NewOperationFailed(err error) error {
	return &DomainError{
		Code:       "OPERATION_FAILED",
		Message:    "operation failed, please try again",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return NewOperationFailed(err).(*DomainError)
}

// MapError converts generic errors to DomainError.
func MapError(err error) error {
	return ToDomainError(err)
}

// IsCode reports whether err is a DomainError carrying the given code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
