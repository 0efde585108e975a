package binderfs

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeySource supplies the identity key pair of a session.
// Implementations are typically gated by platform secure storage;
// this package never persists what they return.
type KeySource interface {
	// PrivateKey returns the 32-byte secp256k1 scalar
	PrivateKey() ([]byte, error)

	// PublicKeyHex returns the 64-character x-only public key
	PublicKeyHex() (string, error)
}

// StaticKeySource holds a key pair in memory
type StaticKeySource struct {
	priv []byte
	pub  string
}

// NewStaticKeySource creates a key source from a hex-encoded private key
func NewStaticKeySource(privHex string) (*StaticKeySource, error) {
	priv, err := hex.DecodeString(strings.TrimSpace(privHex))
	if err != nil {
		return nil, &ValidationError{
			Field:   "private_key",
			Message: "private key must be hex encoded",
			Err:     ErrInvalidKey,
		}
	}
	if err := ValidateKey(priv, KeySize); err != nil {
		return nil, err
	}

	key := secp256k1.PrivKeyFromBytes(priv)
	defer key.Zero()
	if key.Key.IsZero() {
		return nil, &ValidationError{
			Field:   "private_key",
			Message: "private key scalar is zero",
			Err:     ErrInvalidKey,
		}
	}

	return &StaticKeySource{
		priv: priv,
		pub:  xOnlyHex(key.PubKey()),
	}, nil
}

// GenerateKeySource creates a key source around a fresh random key
func GenerateKeySource() (*StaticKeySource, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	defer key.Zero()

	return &StaticKeySource{
		priv: key.Serialize(),
		pub:  xOnlyHex(key.PubKey()),
	}, nil
}

// PrivateKey returns a copy of the private scalar
func (s *StaticKeySource) PrivateKey() ([]byte, error) {
	if len(s.priv) != KeySize {
		return nil, ErrInvalidKey
	}
	out := make([]byte, KeySize)
	copy(out, s.priv)
	return out, nil
}

// PublicKeyHex returns the x-only public key
func (s *StaticKeySource) PublicKeyHex() (string, error) {
	return s.pub, nil
}

// PrivateKeyHex returns the hex private key, for export by key generation tools
func (s *StaticKeySource) PrivateKeyHex() string {
	return hex.EncodeToString(s.priv)
}

// Destroy zeroes the private key
func (s *StaticKeySource) Destroy() {
	zero(s.priv)
	s.priv = nil
}

// EnvKeySource reads a hex private key from an environment variable
type EnvKeySource struct {
	envVar string
}

// NewEnvKeySource creates a new environment variable key source
func NewEnvKeySource(envVar string) *EnvKeySource {
	return &EnvKeySource{envVar: envVar}
}

func (e *EnvKeySource) load() (*StaticKeySource, error) {
	privHex := os.Getenv(e.envVar)
	if privHex == "" {
		return nil, fmt.Errorf("environment variable %s not set", e.envVar)
	}
	return NewStaticKeySource(privHex)
}

// PrivateKey returns the private scalar from the environment
func (e *EnvKeySource) PrivateKey() ([]byte, error) {
	s, err := e.load()
	if err != nil {
		return nil, err
	}
	defer s.Destroy()
	return s.PrivateKey()
}

// PublicKeyHex returns the x-only public key of the environment key
func (e *EnvKeySource) PublicKeyHex() (string, error) {
	s, err := e.load()
	if err != nil {
		return "", err
	}
	defer s.Destroy()
	return s.PublicKeyHex()
}

// SelfConversationKey derives the encrypt-to-self key of a key source
func SelfConversationKey(ks KeySource) (*ConversationKey, error) {
	priv, err := ks.PrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	defer zero(priv)

	pub, err := ks.PublicKeyHex()
	if err != nil {
		return nil, fmt.Errorf("failed to load public key: %w", err)
	}
	return DeriveConversationKey(priv, pub)
}

// ConversationKeyWith derives the key shared between a key source and a peer
func ConversationKeyWith(ks KeySource, peerPubKeyHex string) (*ConversationKey, error) {
	priv, err := ks.PrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	defer zero(priv)
	return DeriveConversationKey(priv, peerPubKeyHex)
}

func xOnlyHex(pub *secp256k1.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed()[1:])
}
