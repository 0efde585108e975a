package binderfs

import (
	"errors"
	"io"
	"log/slog"
	"runtime"
)

// Payload format versions
const (
	// VersionNIP44 is the leading byte of NIP-44 v2 payloads and of DEK containers
	VersionNIP44 = uint8(0x02)

	// VersionDEK is the leading byte of a DEK container file
	VersionDEK = uint8(0x02)

	// VersionLegacyLarge is the leading byte of pre-DEK large payloads
	VersionLegacyLarge = uint8(0xFF)
)

// NIP-44 sizes and bounds
const (
	// KeySize is the size of conversation keys and DEKs
	KeySize = 32

	// NonceSize is the size of the random per-message NIP-44 nonce
	NonceSize = 32

	// MACSize is the size of the HMAC-SHA256 tag
	MACSize = 32

	// MinPlaintextSize is the smallest plaintext NIP-44 accepts, in bytes
	MinPlaintextSize = 1

	// MaxPlaintextSize is the largest plaintext NIP-44 accepts, in bytes
	MaxPlaintextSize = 65535

	// minPayloadChars and maxPayloadChars bound the base64 payload string
	minPayloadChars = 132
	maxPayloadChars = 87472

	// minPayloadBytes and maxPayloadBytes bound the decoded payload
	minPayloadBytes = 99
	maxPayloadBytes = 65603

	// messageKeysSize is chachaKey(32) | chachaNonce(12) | hmacKey(32)
	messageKeysSize = 76
)

// File names with a meaning inside the binder tree
const (
	// FolderMetaName holds the encrypted display metadata of a folder
	FolderMetaName = ".meta.json"

	// PatientInfoName is surfaced by its own screen and hidden from the root listing
	PatientInfoName = "patient-info.json"

	// SidecarExt marks encrypted binary attachments
	SidecarExt = ".enc"

	// DocumentExt marks encrypted documents
	DocumentExt = ".json"
)

// DefaultRepoDir is the cache namespace used when Config.RepoDir is empty
const DefaultRepoDir = "binder"

// Config contains configuration for a binder session
type Config struct {
	// RepoDir names the working tree; it prefixes every cache key
	RepoDir string

	// Workers bounds concurrent child decrypts in directory listings.
	// If 0, defaults to runtime.NumCPU()
	Workers int

	// Logger receives structured logs. Nil discards them
	Logger *slog.Logger
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}
	if c.Workers < 0 {
		return errors.New("workers cannot be negative")
	}
	if c.Workers > 1024 {
		return errors.New("workers must not exceed 1024")
	}
	return nil
}

// withDefaults returns a copy of the config with empty fields filled in
func (c Config) withDefaults() Config {
	if c.RepoDir == "" {
		c.RepoDir = DefaultRepoDir
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Logger == nil {
		c.Logger = discardLogger()
	}
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
