package sdk

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Common errors returned by the SDK. These can be used with errors.Is()
// to check for specific error conditions.
//
// Example:
//
//	_, err := client.Auth().Login(ctx, creds)
//	if errors.Is(err, sdk.ErrAuthentication) {
//	    // Wrong credentials
//	} else if errors.Is(err, sdk.ErrTimeout) {
//	    // Backend too slow
//	}
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRequest matches every non-2xx response and request timeout
	ErrRequest = errors.New("request failed")

	// ErrAuthentication is returned when login is rejected
	ErrAuthentication = errors.New("authentication failed")

	// ErrValidation is returned when a payload does not satisfy its schema
	ErrValidation = errors.New("validation failed")

	// ErrCapability is returned when the runtime lacks a required primitive
	ErrCapability = errors.New("runtime capability missing")

	// ErrTimeout is returned when a request times out
	ErrTimeout = errors.New("request timeout")

	// ErrNetwork is returned when no response could be obtained
	ErrNetwork = errors.New("network error")

	// ErrStorage is returned when persisted client state cannot be written
	ErrStorage = errors.New("storage error")

	// ErrInvalidResponse is returned when the server response cannot be parsed
	ErrInvalidResponse = errors.New("invalid response from server")

	// ErrClientClosed is returned by every operation after Close
	ErrClientClosed = errors.New("client is closed")
)

// Error codes carried in Error.Code.
const (
	CodeRequestError    = "REQUEST_ERROR"
	CodeAuthError       = "AUTH_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeNetworkError    = "NETWORK_ERROR"
	CodeCapabilityError = "CAPABILITY_ERROR"
	CodeStorageError    = "STORAGE_ERROR"
)

// ErrorType represents the type of error for categorization and handling.
//
// Example:
//
//	var sdkErr *sdk.Error
//	if errors.As(err, &sdkErr) {
//	    switch sdkErr.Type {
//	    case sdk.ErrorTypeRequest:
//	        // Server answered with a non-2xx status
//	    case sdk.ErrorTypeValidation:
//	        // Render sdkErr.Details as inline field errors
//	    }
//	}
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown or unclassified error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRequest represents a non-2xx HTTP response
	ErrorTypeRequest
	// ErrorTypeAuthentication represents a rejected login
	ErrorTypeAuthentication
	// ErrorTypeValidation represents a client or server schema mismatch
	ErrorTypeValidation
	// ErrorTypeStorage represents a failure to persist client state
	ErrorTypeStorage
	// ErrorTypeCapability represents a missing runtime primitive
	ErrorTypeCapability
	// ErrorTypeNetwork represents a failure to reach the server
	ErrorTypeNetwork
	// ErrorTypeTimeout represents a request that exceeded its time limit
	ErrorTypeTimeout
	// ErrorTypeConfig represents invalid client configuration
	ErrorTypeConfig
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRequest:
		return "request"
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeStorage:
		return "storage"
	case ErrorTypeCapability:
		return "capability"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced by the SDK. Request, auth and
// validation failures all arrive through it, so callers need one
// errors.As to handle any of them.
//
// Example:
//
//	var sdkErr *sdk.Error
//	if errors.As(err, &sdkErr) {
//	    fmt.Printf("%s (%d): %s\n", sdkErr.Code, sdkErr.Status, sdkErr.Message)
//	}
type Error struct {
	// Type categorizes the error for handling decisions
	Type ErrorType `json:"type"`
	// Code is a fixed machine readable code such as REQUEST_ERROR
	Code string `json:"code,omitempty"`
	// Message is the server's error text or a fixed fallback
	Message string `json:"message"`
	// Status is the HTTP status, or 0 when no response was received
	Status int `json:"status,omitempty"`
	// Details is the server's details payload, or the field errors of a
	// client-side validation failure
	Details any `json:"details,omitempty"`
	// RequestID is the X-Request-ID sent with the failed request
	RequestID string `json:"request_id,omitempty"`
	// Timestamp is when the error occurred
	Timestamp time.Time `json:"timestamp"`
	// Context describes the failed request
	Context *ErrorContext `json:"context,omitempty"`

	wrapped error
}

// ErrorContext provides additional context about the request that failed.
type ErrorContext struct {
	URL      string        `json:"url,omitempty"`
	Method   string        `json:"method,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s error: %s", e.Type, e.Message)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Context != nil && e.Context.URL != "" {
		fmt.Fprintf(&b, " [%s %s]", e.Context.Method, e.Context.URL)
	}
	return b.String()
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is implements errors.Is. A timed out request matches both ErrTimeout
// and ErrRequest.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrRequest:
		return e.Type == ErrorTypeRequest || e.Code == CodeRequestError
	case ErrAuthentication:
		return e.Type == ErrorTypeAuthentication
	case ErrValidation:
		return e.Type == ErrorTypeValidation
	case ErrCapability:
		return e.Type == ErrorTypeCapability
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrNetwork:
		return e.Type == ErrorTypeNetwork
	case ErrStorage:
		return e.Type == ErrorTypeStorage
	case ErrInvalidConfig:
		return e.Type == ErrorTypeConfig
	}
	return false
}

// WithContext adds error context
func (e *Error) WithContext(ctx *ErrorContext) *Error {
	e.Context = ctx
	return e
}

// NewError creates a new error of the given type
func NewError(errType ErrorType, message string, wrapped error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		wrapped:   wrapped,
	}
}

// NewErrorWithCode creates a new error with a code
func NewErrorWithCode(errType ErrorType, code, message string, wrapped error) *Error {
	err := NewError(errType, message, wrapped)
	err.Code = code
	return err
}

// newRequestError builds the error for a non-2xx response.
func newRequestError(status int, message string, details any) *Error {
	if message == "" {
		message = "Request failed"
	}
	err := NewErrorWithCode(ErrorTypeRequest, CodeRequestError, message, nil)
	err.Status = status
	err.Details = details
	return err
}

// newAuthError builds an authentication error, optionally wrapping the
// request error that caused it.
func newAuthError(message string, cause error) *Error {
	if message == "" {
		message = "Login failed"
	}
	err := NewErrorWithCode(ErrorTypeAuthentication, CodeAuthError, message, cause)
	err.Status = http.StatusUnauthorized
	return err
}

// ValidationError carries per-field messages keyed by dotted path.
type ValidationError struct {
	Fields map[string][]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	paths := make([]string, 0, len(e.Fields))
	for p := range e.Fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		parts = append(parts, p+": "+strings.Join(e.Fields[p], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(path, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[path] = append(e.Fields[path], message)
}

func (e *ValidationError) empty() bool {
	return len(e.Fields) == 0
}

func newValidationError(schema string, ve *ValidationError) *Error {
	err := NewErrorWithCode(ErrorTypeValidation, CodeValidationError,
		fmt.Sprintf("%s: %d invalid field(s)", schema, len(ve.Fields)), ve)
	err.Status = http.StatusBadRequest
	err.Details = ve.Fields
	return err
}

// NetworkError represents a failure to obtain any response, such as a
// refused connection or DNS failure.
type NetworkError struct {
	// Op is the operation that failed
	Op string
	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsRequestError reports whether err is a non-2xx response or a request
// timeout.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrRequest)
}

// IsAuthError reports whether err is a rejected login.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// StatusCode returns the HTTP status carried by err, or 0.
//
// Example:
//
//	if sdk.StatusCode(err) == http.StatusNotFound {
//	    // record gone
//	}
func StatusCode(err error) int {
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.Status
	}
	return 0
}
