package binderfs

import (
	"fmt"
	"path"
	"strings"
)

// Input validation helpers

// ValidateKey checks if a key has the correct size
func ValidateKey(key []byte, expectedSize int) error {
	if key == nil {
		return &ValidationError{
			Field:   "key",
			Message: "key cannot be nil",
			Err:     ErrInvalidKey,
		}
	}

	if len(key) != expectedSize {
		return &ValidationError{
			Field:   "key",
			Value:   len(key),
			Message: fmt.Sprintf("invalid key size: got %d bytes, expected %d bytes", len(key), expectedSize),
			Err:     ErrInvalidKey,
		}
	}

	return nil
}

// ValidatePlaintext checks a plaintext against the NIP-44 length bounds
func ValidatePlaintext(plaintext []byte) error {
	if len(plaintext) < MinPlaintextSize || len(plaintext) > MaxPlaintextSize {
		return &ValidationError{
			Field:   "plaintext",
			Value:   len(plaintext),
			Message: fmt.Sprintf("plaintext must be %d-%d bytes, got %d", MinPlaintextSize, MaxPlaintextSize, len(plaintext)),
			Err:     ErrPlaintextSize,
		}
	}
	return nil
}

// ValidateFilePath checks if a file path is valid (not empty, no escape above the root)
func ValidateFilePath(p string) error {
	if p == "" {
		return &ValidationError{
			Field:   "path",
			Message: "file path cannot be empty",
		}
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return &ValidationError{
				Field:   "path",
				Value:   p,
				Message: "file path cannot contain '..'",
			}
		}
	}
	return nil
}

// cleanPath normalizes a binder path to an absolute slash path
func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// relativePath strips the leading slash of a cleaned path; the root is ""
func relativePath(p string) string {
	return strings.TrimPrefix(cleanPath(p), "/")
}
