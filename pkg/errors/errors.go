// Package errors provides custom error types for the itemtype system.
// These errors enable better error handling, programmatic error checking,
// and improved debugging throughout the application.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is reports whether any error in err's tree matches target.
var Is = errors.Is

// As finds the first error in err's tree that matches target.
var As = errors.As

// Common sentinel errors for the itemtype system
var (
	// ErrNotFound indicates that a lookup matched no record
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous indicates that a lookup matched more than one record
	ErrAmbiguous = errors.New("ambiguous")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates that the service rejected the credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrServiceUnavailable indicates that the service is temporarily unavailable
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrRateLimited indicates that the API rate limit has been exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// APIError represents an error response from the item-tracking service
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Endpoint   string
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error from %s (status %d): %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error from %s: %s", e.Service, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *APIError) Is(target error) bool {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return target == ErrUnauthorized
	case e.StatusCode == 404:
		return target == ErrNotFound
	case e.StatusCode == 429:
		return target == ErrRateLimited
	case e.StatusCode >= 500:
		return target == ErrServiceUnavailable
	}
	return false
}

// NewAPIError creates a new APIError
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{
		Service:    service,
		StatusCode: statusCode,
		Message:    message,
	}
}

// ConfigError represents a configuration error. Config errors are fatal and
// are always raised before the service is contacted.
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// ResolutionReason says why a lookup did or did not produce an identifier.
type ResolutionReason string

const (
	// ReasonResolved means exactly one record matched.
	ReasonResolved ResolutionReason = "resolved"
	// ReasonNotFound means no record matched.
	ReasonNotFound ResolutionReason = "not_found"
	// ReasonAmbiguous means more than one record matched.
	ReasonAmbiguous ResolutionReason = "ambiguous"
	// ReasonEmptyKey means the key was blank and no lookup was made.
	ReasonEmptyKey ResolutionReason = "empty_key"
	// ReasonLookupFailed means the search request itself failed.
	ReasonLookupFailed ResolutionReason = "lookup_failed"
)

// ResolutionError describes a key that could not be turned into a unique
// record identifier.
type ResolutionError struct {
	Field   string
	Value   string
	Reason  ResolutionReason
	Matches int
	Err     error
}

// Error implements the error interface
func (e *ResolutionError) Error() string {
	switch e.Reason {
	case ReasonAmbiguous:
		return fmt.Sprintf("%s %q is ambiguous: %d records match", e.Field, e.Value, e.Matches)
	case ReasonEmptyKey:
		return fmt.Sprintf("%s has an empty key", e.Field)
	case ReasonLookupFailed:
		return fmt.Sprintf("lookup of %s %q failed: %v", e.Field, e.Value, e.Err)
	default:
		return fmt.Sprintf("%s %q matches no record", e.Field, e.Value)
	}
}

// Unwrap implements errors.Unwrap
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ResolutionError) Is(target error) bool {
	switch e.Reason {
	case ReasonNotFound, ReasonEmptyKey:
		return target == ErrNotFound
	case ReasonAmbiguous:
		return target == ErrAmbiguous
	}
	return false
}

// NewResolutionError creates a new ResolutionError
func NewResolutionError(field, value string, reason ResolutionReason, matches int, err error) *ResolutionError {
	return &ResolutionError{
		Field:   field,
		Value:   value,
		Reason:  reason,
		Matches: matches,
		Err:     err,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAmbiguous checks if an error is an ambiguous lookup
func IsAmbiguous(err error) bool {
	return errors.Is(err, ErrAmbiguous)
}

// IsValidationError checks if an error is a validation or configuration error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConfigError checks if an error is a ConfigError
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// IsUnauthorized checks if an error is an authorization failure
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsServiceUnavailable checks if an error indicates service unavailability
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "csv", "ini", etc.
	File    string
	Line    int
	Column  int
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("parse error in %s at %s:%d:%d: %s", e.Format, e.File, e.Line, e.Column, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "open", "close"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// ResourceError represents an error during resource operations
type ResourceError struct {
	Operation string // "create", "patch", "search"
	Resource  string // "request", "item", "token"
	ID        string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ResourceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %s", e.Operation, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError
func NewResourceError(operation, resource, id string, err error) *ResourceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ResourceError{
		Operation: operation,
		Resource:  resource,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// AuthenticationError represents an authentication/authorization error
type AuthenticationError struct {
	Service string
	Method  string // "basic", "oauth"
	Message string
	Err     error
}

// Error implements the error interface
func (e *AuthenticationError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("authentication error for %s (%s): %s", e.Service, e.Method, e.Message)
	}
	return fmt.Sprintf("authentication error (%s): %s", e.Method, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrUnauthorized
}

// NewAuthenticationError creates a new AuthenticationError
func NewAuthenticationError(service, method, message string, err error) *AuthenticationError {
	return &AuthenticationError{
		Service: service,
		Method:  method,
		Message: message,
		Err:     err,
	}
}

// Helper wrapping functions for common patterns

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapResource wraps an error as a ResourceError
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewResourceError(operation, resource, id, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}
