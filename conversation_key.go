package binderfs

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/hkdf"
)

// conversationSalt is the HKDF-Extract salt of NIP-44 v2
var conversationSalt = []byte("nip44-v2")

// ConversationKey is the 32-byte symmetric key shared by a key pair.
// It never leaves process memory; Destroy zeroes it.
type ConversationKey struct {
	mu        sync.RWMutex
	key       [KeySize]byte
	destroyed bool
}

// NewConversationKey wraps raw key bytes. The input slice is copied.
func NewConversationKey(raw []byte) (*ConversationKey, error) {
	if err := ValidateKey(raw, KeySize); err != nil {
		return nil, err
	}
	k := &ConversationKey{}
	copy(k.key[:], raw)
	return k, nil
}

// DeriveConversationKey computes HKDF-Extract(SHA-256, "nip44-v2", ecdh_x(privKey, pubKey)).
// pubKeyHex is the 64-character x-only public key of the peer.
// derive(skA, pkB) and derive(skB, pkA) yield the same key.
func DeriveConversationKey(privKey []byte, pubKeyHex string) (*ConversationKey, error) {
	if err := ValidateKey(privKey, KeySize); err != nil {
		return nil, err
	}
	pub, err := parseXOnlyPublicKey(pubKeyHex)
	if err != nil {
		return nil, err
	}

	priv := secp256k1.PrivKeyFromBytes(privKey)
	defer priv.Zero()
	if priv.Key.IsZero() {
		return nil, &ValidationError{
			Field:   "private_key",
			Message: "private key scalar is zero",
			Err:     ErrInvalidKey,
		}
	}

	shared := secp256k1.GenerateSharedSecret(priv, pub)
	defer zero(shared)

	prk := hkdf.Extract(sha256.New, shared, conversationSalt)
	defer zero(prk)

	return NewConversationKey(prk)
}

// parseXOnlyPublicKey lifts a 32-byte x coordinate to the even-y point
func parseXOnlyPublicKey(pubKeyHex string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, &ValidationError{
			Field:   "public_key",
			Message: "public key must be hex encoded",
			Err:     ErrInvalidKey,
		}
	}
	if len(raw) != KeySize {
		return nil, &ValidationError{
			Field:   "public_key",
			Value:   len(raw),
			Message: fmt.Sprintf("invalid public key size: got %d bytes, expected %d bytes", len(raw), KeySize),
			Err:     ErrInvalidKey,
		}
	}

	compressed := make([]byte, 0, KeySize+1)
	compressed = append(compressed, secp256k1.PubKeyFormatCompressedEven)
	compressed = append(compressed, raw...)
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return nil, &ValidationError{
			Field:   "public_key",
			Message: "public key is not a point on secp256k1",
			Err:     fmt.Errorf("%w: %w", ErrInvalidKey, err),
		}
	}
	return pub, nil
}

// bytes returns a copy of the key material for a single operation.
// Callers zero the copy when done.
func (k *ConversationKey) bytes() ([]byte, error) {
	if k == nil {
		return nil, ErrInvalidKey
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.destroyed {
		return nil, fmt.Errorf("%w: key destroyed", ErrInvalidKey)
	}
	out := make([]byte, KeySize)
	copy(out, k.key[:])
	return out, nil
}

// Equal reports whether two keys hold the same material, in constant time
func (k *ConversationKey) Equal(other *ConversationKey) bool {
	a, err := k.bytes()
	if err != nil {
		return false
	}
	defer zero(a)
	b, err := other.bytes()
	if err != nil {
		return false
	}
	defer zero(b)
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Destroy zeroes the key. Later use fails with ErrInvalidKey.
func (k *ConversationKey) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	zero(k.key[:])
	k.destroyed = true
}

// String never reveals key material
func (k *ConversationKey) String() string {
	return "ConversationKey(redacted)"
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
