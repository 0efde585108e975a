package binderfs

import (
	"errors"
	"fmt"
)

// Error types represent different categories of errors

// ValidationError represents a configuration or parameter validation error
type ValidationError struct {
	Field   string // The field or parameter that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// EncryptionError represents an encryption or decryption failure
type EncryptionError struct {
	Operation string // "encrypt", "decrypt", "rewrap"
	Path      string // File path, if applicable
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *EncryptionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s error: %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Operation, e.Message)
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// IOError represents a file system I/O error
type IOError struct {
	Operation string // "read", "write", "stat", "readdir", "remove", "rename"
	Path      string // File path
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("io error: %s %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("io error: %s: %s", e.Operation, e.Message)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// CorruptionError represents content that decrypted but is not a valid document
type CorruptionError struct {
	Path    string // File path
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *CorruptionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("corruption error: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("corruption error: %s", e.Message)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// Sentinel errors. Every failure returned by this package wraps one of these.
var (
	// ErrUnknownVersion reports an unrecognized leading version byte
	ErrUnknownVersion = errors.New("unknown encryption version")
	// ErrInvalidPayloadSize reports a payload whose text or raw length is out of bounds
	ErrInvalidPayloadSize = errors.New("invalid payload size")
	// ErrAuthFailed reports a MAC or AEAD tag mismatch
	ErrAuthFailed = errors.New("authentication failed - data may be corrupted or tampered")
	// ErrInvalidPadding reports a declared length inconsistent with the padded buffer
	ErrInvalidPadding = errors.New("invalid padding")
	// ErrNotFound reports a missing underlying file
	ErrNotFound = errors.New("file not found")
	// ErrMalformedDocument reports content that decrypted but failed JSON or shape validation
	ErrMalformedDocument = errors.New("malformed document")
	// ErrPlaintextSize reports a plaintext outside the NIP-44 bounds
	ErrPlaintextSize = errors.New("invalid plaintext size")
	// ErrInvalidKey reports malformed or destroyed key material
	ErrInvalidKey = errors.New("invalid encryption key")
	// ErrSessionClosed reports use of a session after logout
	ErrSessionClosed = errors.New("session closed")
)

// Helper functions for creating structured errors

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, message string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewEncryptionError creates a new encryption error
func NewEncryptionError(operation, path string, err error) error {
	return &EncryptionError{
		Operation: operation,
		Path:      path,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewIOError creates a new I/O error
func NewIOError(operation, path string, err error) error {
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewCorruptionError creates a new corruption error wrapping ErrMalformedDocument
func NewCorruptionError(path, message string, err error) error {
	wrapped := ErrMalformedDocument
	if err != nil {
		wrapped = fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	return &CorruptionError{
		Path:    path,
		Message: message,
		Err:     wrapped,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsEncryptionError checks if an error is an encryption error
func IsEncryptionError(err error) bool {
	var ee *EncryptionError
	return errors.As(err, &ee)
}

// IsIOError checks if an error is an I/O error
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}

// IsCorruptionError checks if an error is a corruption error
func IsCorruptionError(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// IsNotFound checks if an error reports a missing file
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthFailure checks if an error reports a MAC or tag mismatch
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}
