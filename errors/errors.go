// Package errors provides standardized error handling for the vision-cell
// coordination core. It defines the error taxonomy shared by the PLC client
// and the robot controller (connection, timeout and tag errors), error
// classification for retry decisions, and helpers for consistent wrapping.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Connection errors
	ErrNotConnected      = errors.New("not connected to PLC")
	ErrConnectionFailed  = errors.New("connection could not be established")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrConnectionLost    = errors.New("connection lost")

	// Protocol deadline errors
	ErrAckTimeout   = errors.New("no robot acknowledge within deadline")
	ErrPickTimeout  = errors.New("pick not completed within deadline")
	ErrPlaceTimeout = errors.New("place not completed within deadline")

	// Tag errors (whitelist violations and failed field I/O)
	ErrTagNotAllowed  = errors.New("tag not in whitelist")
	ErrTagNotReadable = errors.New("tag is not readable")
	ErrTagNotWritable = errors.New("tag is not writable")
	ErrTagValueType   = errors.New("value type does not match tag type")
	ErrTagIOFailed    = errors.New("tag operation failed after retries")

	// Controller errors
	ErrAlreadyRunning     = errors.New("controller already running")
	ErrNotRunning         = errors.New("controller not running")
	ErrInvalidTransition  = errors.New("state transition not allowed")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsConnection reports whether err belongs to the connection taxonomy:
// a session that cannot be established or has been lost.
func IsConnection(err error) bool {
	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost)
}

// IsTag reports whether err belongs to the tag taxonomy: whitelist
// violation, wrong direction, type mismatch, or exhausted-retry I/O failure.
func IsTag(err error) bool {
	return errors.Is(err, ErrTagNotAllowed) ||
		errors.Is(err, ErrTagNotReadable) ||
		errors.Is(err, ErrTagNotWritable) ||
		errors.Is(err, ErrTagValueType) ||
		errors.Is(err, ErrTagIOFailed)
}

// IsTimeout reports whether err is a protocol deadline violation.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrAckTimeout) ||
		errors.Is(err, ErrPickTimeout) ||
		errors.Is(err, ErrPlaceTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrTagIOFailed) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	// Fall back to common transient patterns in the driver's error text
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporary",
		"unavailable",
		"busy",
		"retry",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrTagNotAllowed) ||
		errors.Is(err, ErrTagNotReadable) ||
		errors.Is(err, ErrTagNotWritable) ||
		errors.Is(err, ErrTagValueType)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	// Default to transient for unknown errors to allow retry
	return ErrorTransient
}

// newClassified creates a new classified error.
// Internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
