package binderfs

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// dekHeaderSize is version(1) + wrappedDekLen(2)
	dekHeaderSize = 3

	// dekNonceSize is the ChaCha20-Poly1305 nonce size
	dekNonceSize = chacha20poly1305.NonceSize

	// dekTagSize is the Poly1305 tag appended to the bulk ciphertext
	dekTagSize = chacha20poly1305.Overhead
)

// Sidecar is a decoded .enc file. The leading byte selects the variant:
// 0x02 is a *DEKContainer, anything else a LegacySidecar.
type Sidecar interface {
	// Open decrypts the attachment and returns the original binary
	Open(key *ConversationKey) ([]byte, error)

	// Rewrap returns a DEK container readable with dst
	Rewrap(src, dst *ConversationKey) (*DEKContainer, error)

	sidecar()
}

// ParseSidecar decodes raw sidecar bytes by their leading version byte
func ParseSidecar(data []byte) (Sidecar, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty sidecar", ErrInvalidPayloadSize)
	}
	switch data[0] {
	case VersionDEK:
		c := &DEKContainer{}
		if err := c.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return LegacySidecar{Payload: string(data)}, nil
	}
}

// DEKContainer is the on-disk layout of current sidecars:
// 0x02 || u16be(len(wrappedDek)) || wrappedDek || nonce(12) || ciphertext||tag
type DEKContainer struct {
	WrappedDEK string // NIP-44 payload of the hex DEK
	Nonce      []byte // ChaCha20-Poly1305 nonce
	Ciphertext []byte // Sealed base64 of the attachment, tag included
}

func (*DEKContainer) sidecar() {}

// SealDEK encrypts data under a fresh random DEK and wraps the DEK with key
func SealDEK(data []byte, key *ConversationKey) (*DEKContainer, error) {
	dek, err := randomBytes(KeySize)
	if err != nil {
		return nil, err
	}
	defer zero(dek)

	engine, err := NewChaCha20Poly1305Engine(dek)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(dekNonceSize)
	if err != nil {
		return nil, err
	}

	encoded := []byte(base64.StdEncoding.EncodeToString(data))
	defer zero(encoded)
	ciphertext, err := engine.Encrypt(nonce, encoded)
	if err != nil {
		return nil, err
	}

	wrapped, err := wrapDEK(dek, key)
	if err != nil {
		return nil, err
	}

	return &DEKContainer{
		WrappedDEK: wrapped,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Open unwraps the DEK and decrypts the attachment
func (c *DEKContainer) Open(key *ConversationKey) ([]byte, error) {
	dek, err := c.unwrapDEK(key)
	if err != nil {
		return nil, err
	}
	defer zero(dek)

	engine, err := NewChaCha20Poly1305Engine(dek)
	if err != nil {
		return nil, err
	}
	encoded, err := engine.Decrypt(c.Nonce, c.Ciphertext)
	if err != nil {
		return nil, err
	}
	defer zero(encoded)

	data, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: attachment is not base64: %w", ErrMalformedDocument, err)
	}
	return data, nil
}

// Rewrap re-encrypts only the wrapped DEK. Nonce and ciphertext are carried over unchanged,
// so the cost does not depend on the attachment size.
func (c *DEKContainer) Rewrap(src, dst *ConversationKey) (*DEKContainer, error) {
	dek, err := c.unwrapDEK(src)
	if err != nil {
		return nil, err
	}
	defer zero(dek)

	wrapped, err := wrapDEK(dek, dst)
	if err != nil {
		return nil, err
	}
	return &DEKContainer{
		WrappedDEK: wrapped,
		Nonce:      c.Nonce,
		Ciphertext: c.Ciphertext,
	}, nil
}

func (c *DEKContainer) unwrapDEK(key *ConversationKey) ([]byte, error) {
	dekHex, err := Decrypt(c.WrappedDEK, key)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap DEK: %w", err)
	}
	dek, err := hex.DecodeString(dekHex)
	if err != nil || len(dek) != KeySize {
		zero(dek)
		return nil, fmt.Errorf("%w: wrapped DEK is not a %d-byte hex key", ErrInvalidKey, KeySize)
	}
	return dek, nil
}

func wrapDEK(dek []byte, key *ConversationKey) (string, error) {
	dekHex := hex.EncodeToString(dek)
	wrapped, err := Encrypt(dekHex, key)
	if err != nil {
		return "", fmt.Errorf("failed to wrap DEK: %w", err)
	}
	return wrapped, nil
}

// Size returns the serialized size in bytes
func (c *DEKContainer) Size() int {
	return dekHeaderSize + len(c.WrappedDEK) + len(c.Nonce) + len(c.Ciphertext)
}

// MarshalBinary serializes the container
func (c *DEKContainer) MarshalBinary() ([]byte, error) {
	if len(c.WrappedDEK) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: wrapped DEK is %d bytes", ErrInvalidPayloadSize, len(c.WrappedDEK))
	}
	if len(c.Nonce) != dekNonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", dekNonceSize, len(c.Nonce))
	}

	out := make([]byte, dekHeaderSize, c.Size())
	out[0] = VersionDEK
	binary.BigEndian.PutUint16(out[1:dekHeaderSize], uint16(len(c.WrappedDEK)))
	out = append(out, c.WrappedDEK...)
	out = append(out, c.Nonce...)
	out = append(out, c.Ciphertext...)
	return out, nil
}

// UnmarshalBinary parses a serialized container
func (c *DEKContainer) UnmarshalBinary(data []byte) error {
	if len(data) < dekHeaderSize {
		return fmt.Errorf("%w: container header truncated", ErrInvalidPayloadSize)
	}
	if data[0] != VersionDEK {
		return fmt.Errorf("%w: %#x", ErrUnknownVersion, data[0])
	}

	wrappedLen := int(binary.BigEndian.Uint16(data[1:dekHeaderSize]))
	bodyStart := dekHeaderSize + wrappedLen
	if len(data) < bodyStart+dekNonceSize+dekTagSize {
		return fmt.Errorf("%w: container of %d bytes too short for wrapped DEK of %d bytes",
			ErrInvalidPayloadSize, len(data), wrappedLen)
	}

	c.WrappedDEK = string(data[dekHeaderSize:bodyStart])
	c.Nonce = data[bodyStart : bodyStart+dekNonceSize]
	c.Ciphertext = data[bodyStart+dekNonceSize:]
	return nil
}

// LegacySidecar is the UTF-8 text of a version 0xFF large payload
type LegacySidecar struct {
	Payload string
}

func (LegacySidecar) sidecar() {}

// Open decrypts the legacy payload and decodes the base64 attachment
func (l LegacySidecar) Open(key *ConversationKey) ([]byte, error) {
	encoded, err := DecryptLegacyLarge(l.Payload, key)
	if err != nil {
		return nil, err
	}
	defer zero(encoded)

	data, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: attachment is not base64: %w", ErrMalformedDocument, err)
	}
	return data, nil
}

// Rewrap has no DEK to rewrap, so the attachment is fully decrypted and sealed
// into a new DEK container
func (l LegacySidecar) Rewrap(src, dst *ConversationKey) (*DEKContainer, error) {
	data, err := l.Open(src)
	if err != nil {
		return nil, err
	}
	defer zero(data)
	return SealDEK(data, dst)
}
