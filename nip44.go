package binderfs

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"golang.org/x/crypto/hkdf"
)

// CalcPaddedLen returns the padded length NIP-44 uses for a plaintext of n bytes
func CalcPaddedLen(n int) int {
	if n <= 32 {
		return 32
	}
	nextPower := 1 << bits.Len(uint(n-1))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((n-1)/chunk + 1)
}

// pad builds [len:u16be][plaintext][zeros up to CalcPaddedLen]
func pad(plaintext []byte) ([]byte, error) {
	if err := ValidatePlaintext(plaintext); err != nil {
		return nil, err
	}
	padded := make([]byte, 2+CalcPaddedLen(len(plaintext)))
	binary.BigEndian.PutUint16(padded, uint16(len(plaintext)))
	copy(padded[2:], plaintext)
	return padded, nil
}

// unpad checks that the length prefix and total size agree before returning the plaintext
func unpad(padded []byte) ([]byte, error) {
	if len(padded) < 2 {
		return nil, ErrInvalidPadding
	}
	n := int(binary.BigEndian.Uint16(padded))
	if n < MinPlaintextSize || 2+n > len(padded) || len(padded) != 2+CalcPaddedLen(n) {
		return nil, ErrInvalidPadding
	}
	return padded[2 : 2+n], nil
}

// messageKeys is the per-message key schedule derived from the conversation key and nonce
type messageKeys struct {
	chachaKey   []byte
	chachaNonce []byte
	hmacKey     []byte
	buf         []byte
}

func deriveMessageKeys(conversationKey, nonce []byte) (*messageKeys, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	buf := make([]byte, messageKeysSize)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, conversationKey, nonce), buf); err != nil {
		return nil, fmt.Errorf("failed to expand message keys: %w", err)
	}
	return &messageKeys{
		chachaKey:   buf[0:32],
		chachaNonce: buf[32:44],
		hmacKey:     buf[44:76],
		buf:         buf,
	}, nil
}

func (m *messageKeys) zero() {
	zero(m.buf)
}

// mac computes HMAC-SHA256(hmacKey, nonce || ciphertext)
func (m *messageKeys) mac(nonce, ciphertext []byte) []byte {
	h := hmac.New(sha256.New, m.hmacKey)
	h.Write(nonce)
	h.Write(ciphertext)
	return h.Sum(nil)
}

// sealRaw runs the key schedule, ChaCha20 and HMAC over an already framed plaintext
// and returns version || nonce || ciphertext || mac.
func sealRaw(version uint8, framed []byte, key *ConversationKey, nonce []byte) ([]byte, error) {
	ck, err := key.bytes()
	if err != nil {
		return nil, err
	}
	defer zero(ck)

	keys, err := deriveMessageKeys(ck, nonce)
	if err != nil {
		return nil, err
	}
	defer keys.zero()

	ciphertext, err := xorChaCha20(keys.chachaKey, keys.chachaNonce, framed)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 1+NonceSize+len(ciphertext)+MACSize)
	out = append(out, version)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	out = append(out, keys.mac(nonce, ciphertext)...)
	return out, nil
}

// openRaw authenticates and decrypts version || nonce || ciphertext || mac.
// The MAC is checked before any decryption.
func openRaw(data []byte, key *ConversationKey) ([]byte, error) {
	if len(data) < 1+NonceSize+MACSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPayloadSize, len(data))
	}
	nonce := data[1 : 1+NonceSize]
	ciphertext := data[1+NonceSize : len(data)-MACSize]
	tag := data[len(data)-MACSize:]

	ck, err := key.bytes()
	if err != nil {
		return nil, err
	}
	defer zero(ck)

	keys, err := deriveMessageKeys(ck, nonce)
	if err != nil {
		return nil, err
	}
	defer keys.zero()

	if subtle.ConstantTimeCompare(keys.mac(nonce, ciphertext), tag) != 1 {
		return nil, ErrAuthFailed
	}
	return xorChaCha20(keys.chachaKey, keys.chachaNonce, ciphertext)
}

// Encrypt seals plaintext as a NIP-44 v2 payload under the conversation key.
// The plaintext must be 1-65535 bytes of UTF-8.
func Encrypt(plaintext string, key *ConversationKey) (string, error) {
	nonce, err := randomBytes(NonceSize)
	if err != nil {
		return "", err
	}
	return encryptWithNonce([]byte(plaintext), key, nonce)
}

func encryptWithNonce(plaintext []byte, key *ConversationKey, nonce []byte) (string, error) {
	padded, err := pad(plaintext)
	if err != nil {
		return "", err
	}
	defer zero(padded)

	raw, err := sealRaw(VersionNIP44, padded, key, nonce)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decrypt opens a NIP-44 v2 payload. It never returns plaintext whose MAC did not verify.
func Decrypt(payload string, key *ConversationKey) (string, error) {
	data, err := decodePayload(payload)
	if err != nil {
		return "", err
	}

	padded, err := openRaw(data, key)
	if err != nil {
		return "", err
	}
	defer zero(padded)

	plaintext, err := unpad(padded)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// decodePayload applies the NIP-44 size and version checks to a base64 payload
func decodePayload(payload string) ([]byte, error) {
	n := len(payload)
	if n == 0 || payload[0] == '#' {
		return nil, fmt.Errorf("%w: payload is not NIP-44 v2", ErrUnknownVersion)
	}
	if n < minPayloadChars || n > maxPayloadChars {
		return nil, fmt.Errorf("%w: payload length %d", ErrInvalidPayloadSize, n)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %w", ErrInvalidPayloadSize, err)
	}
	if len(data) < minPayloadBytes || len(data) > maxPayloadBytes {
		return nil, fmt.Errorf("%w: data length %d", ErrInvalidPayloadSize, len(data))
	}
	if data[0] != VersionNIP44 {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownVersion, data[0])
	}
	return data, nil
}
