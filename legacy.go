package binderfs

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecryptLegacyLarge opens a pre-DEK large payload: base64 of
// 0xFF || nonce || ciphertext || mac, unpadded and unbounded.
// Nothing in this package writes the format any more.
func DecryptLegacyLarge(payload string, key *ConversationKey) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty legacy payload", ErrInvalidPayloadSize)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %w", ErrInvalidPayloadSize, err)
	}
	if len(data) < 1+NonceSize+MACSize {
		return nil, fmt.Errorf("%w: data length %d", ErrInvalidPayloadSize, len(data))
	}
	if data[0] != VersionLegacyLarge {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownVersion, data[0])
	}
	return openRaw(data, key)
}
