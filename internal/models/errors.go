package models

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is; handlers map them to HTTP status codes.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("validation failed")
	ErrAlreadyClaimed      = errors.New("already claimed")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrGeofenceViolation   = errors.New("outside geofence")
	ErrPreconditionMissing = errors.New("precondition missing")
)

// DomainError carries an error kind plus a machine readable code and
// structured details (current status, distance, available balance...).
type DomainError struct {
	Kind    error                  `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Kind
}

// NewDomainError builds a DomainError of the given kind
func NewDomainError(kind error, code, message string, details map[string]interface{}) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message, Details: details}
}

// NotFoundError reports a missing entity
func NotFoundError(entity string, id fmt.Stringer) *DomainError {
	return NewDomainError(ErrNotFound, "NOT_FOUND", fmt.Sprintf("%s %s not found", entity, id), map[string]interface{}{
		"entity": entity,
		"id":     id.String(),
	})
}

// InvalidStateError reports an operation attempted from a status that does not permit it
func InvalidStateError(operation string, current BookingStatus) *DomainError {
	return NewDomainError(ErrInvalidState, "INVALID_STATE",
		fmt.Sprintf("cannot %s booking in status %s", operation, current),
		map[string]interface{}{
			"operation":      operation,
			"current_status": string(current),
		})
}

// UnauthorizedError reports an actor acting outside their role or ownership
func UnauthorizedError(message string) *DomainError {
	return NewDomainError(ErrUnauthorized, "UNAUTHORIZED", message, nil)
}

// ValidationError reports malformed input
func ValidationError(field, message string) *DomainError {
	return NewDomainError(ErrValidation, "VALIDATION_ERROR", message, map[string]interface{}{
		"field": field,
	})
}

// PreconditionError reports a missing prerequisite such as photos or location
func PreconditionError(code, message string) *DomainError {
	return NewDomainError(ErrPreconditionMissing, code, message, nil)
}

// AlreadyClaimedError is returned to the loser of a claim race
func AlreadyClaimedError() *DomainError {
	return NewDomainError(ErrAlreadyClaimed, "ALREADY_CLAIMED", "booking is no longer available", nil)
}
