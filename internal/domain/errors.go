// Package domain contains the core entities of the stories service.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors. Every error returned by the repository and service layers
// unwraps to exactly one of these kinds; the HTTP layer maps kinds to status codes.

var (
	// ===========================================
	// Request Errors
	// ===========================================

	// ErrValidation indicates malformed input, a bad extension or a schema violation.
	ErrValidation = errors.New("validation failed")

	// ErrPayloadTooLarge indicates the request body exceeds the configured upload size.
	ErrPayloadTooLarge = errors.New("request payload too large")

	// ===========================================
	// Authentication/Authorization Errors
	// ===========================================

	// ErrUnauthorized indicates a missing, invalid or expired bearer token.
	ErrUnauthorized = errors.New("authentication required")

	// ErrForbidden indicates the requester is authenticated but does not own the object.
	ErrForbidden = errors.New("access denied")

	// ===========================================
	// Object Errors
	// ===========================================

	// ErrNotFound indicates no object matches the requested id and type.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded indicates the user is at or over the per-type object limit.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ===========================================
	// Storage Errors
	// ===========================================

	// ErrStorageFailure indicates the object store failed or returned something unexpected.
	ErrStorageFailure = errors.New("storage failure")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., object id or storage key).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// ValidationError describes a single rejected field.
type ValidationError struct {
	// Field is the offending input field; empty for whole-payload problems.
	Field string

	// Reason is a human readable explanation.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// QuotaError is returned when a user already holds the maximum number of objects of a type.
type QuotaError struct {
	Type    ObjectType
	Current int
	Limit   int
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s limit reached: %d/%d", e.Type, e.Current, e.Limit)
}

// Unwrap makes errors.Is(err, ErrQuotaExceeded) hold.
func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// UserMessage returns the explanation shown to the user.
func (e *QuotaError) UserMessage() string {
	noun, plural := "Session", "sessions"
	if e.Type == TypeStory {
		noun, plural = "Story", "stories"
	}
	return fmt.Sprintf("%s limit reached. You have %d %s (limit: %d). Please delete some %s before creating new ones.",
		noun, e.Current, plural, e.Limit, plural)
}

// Details returns the payload attached to the error response.
func (e *QuotaError) Details() map[string]any {
	return map[string]any{
		"current_count": e.Current,
		"limit":         e.Limit,
		"object_type":   string(e.Type),
	}
}

// StorageError wraps an object store failure. The underlying error is kept
// for logging and never rendered to clients.
type StorageError struct {
	Op  string
	Key string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the storage failure kind and the cause.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Err}
}

// PayloadTooLargeError is returned when a request body exceeds the upload ceiling.
type PayloadTooLargeError struct {
	// Limit is the ceiling in bytes.
	Limit int64

	// Received is the declared or observed size in bytes; zero when unknown.
	Received int64
}

// Error implements the error interface.
func (e *PayloadTooLargeError) Error() string {
	if e.Received > 0 {
		return fmt.Sprintf("request payload of %d bytes exceeds %d bytes", e.Received, e.Limit)
	}
	return fmt.Sprintf("request payload exceeds %d bytes", e.Limit)
}

// Unwrap makes errors.Is(err, ErrPayloadTooLarge) hold.
func (e *PayloadTooLargeError) Unwrap() error {
	return ErrPayloadTooLarge
}

// AccessError is returned when the requester is not the creator of an object.
type AccessError struct {
	Type        ObjectType
	ID          string
	CreatorID   string
	RequesterID string

	// Action is "view" or "modify".
	Action string
}

// Error implements the error interface.
func (e *AccessError) Error() string {
	return fmt.Sprintf("Access denied. Only the creator can %s this %s", e.Action, e.Type)
}

// Unwrap makes errors.Is(err, ErrForbidden) hold.
func (e *AccessError) Unwrap() error {
	return ErrForbidden
}

// Details returns the payload attached to the error response.
// Reads only expose the object id.
func (e *AccessError) Details() map[string]any {
	details := map[string]any{string(e.Type) + "_id": e.ID}
	if e.Action != "view" {
		details["creator_id"] = e.CreatorID
		details["requesting_user_id"] = e.RequesterID
	}
	return details
}
