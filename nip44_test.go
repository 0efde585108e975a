package binderfs

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestCalcPaddedLen(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{1, 32},
		{16, 32},
		{32, 32},
		{33, 64},
		{37, 64},
		{64, 64},
		{65, 96},
		{100, 128},
		{256, 256},
		{257, 320},
		{1000, 1024},
		{65535, 65536},
	}

	for _, tt := range tests {
		if got := CalcPaddedLen(tt.n); got != tt.want {
			t.Errorf("CalcPaddedLen(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestPadUnpad(t *testing.T) {
	for _, n := range []int{1, 32, 33, 64, 65, 1000, 65535} {
		plaintext := bytes.Repeat([]byte{'x'}, n)
		padded, err := pad(plaintext)
		if err != nil {
			t.Fatalf("pad(%d) failed: %v", n, err)
		}
		if len(padded) != 2+CalcPaddedLen(n) {
			t.Errorf("pad(%d) length = %d, want %d", n, len(padded), 2+CalcPaddedLen(n))
		}
		got, err := unpad(padded)
		if err != nil {
			t.Fatalf("unpad(%d) failed: %v", n, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("unpad(pad(x)) != x for length %d", n)
		}
	}
}

func TestUnpadRejectsInconsistentLength(t *testing.T) {
	padded, err := pad([]byte("hello"))
	if err != nil {
		t.Fatalf("pad failed: %v", err)
	}

	tests := map[string][]byte{
		"zero length":     append([]byte{0, 0}, padded[2:]...),
		"length too long": append([]byte{0, 40}, padded[2:]...),
		"truncated":       padded[:20],
		"extra padding":   append(append([]byte{}, padded...), make([]byte, 32)...),
		"too short":       {0},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := unpad(in); !errors.Is(err, ErrInvalidPadding) {
				t.Errorf("unpad error = %v, want ErrInvalidPadding", err)
			}
		})
	}
}

func TestConversationKeyVector(t *testing.T) {
	want := "c41c775356fd92eadc63ff5a0dc1da211b268cbea22316767095b2871ea1412d"

	k12 := pairKey(t, testSec1, testPub2)
	k21 := pairKey(t, testSec2, testPub1)

	raw, err := k12.bytes()
	if err != nil {
		t.Fatalf("bytes failed: %v", err)
	}
	if got := hex.EncodeToString(raw); got != want {
		t.Errorf("conversation key = %s, want %s", got, want)
	}
	if !k12.Equal(k21) {
		t.Error("conversation key is not symmetric")
	}
}

func TestEncryptVector(t *testing.T) {
	key := pairKey(t, testSec1, testPub2)
	nonce, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000001")
	want := "AgAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABee0G5VSK0/9YypIObAtDKfYEAjD35uVkHyB0F4DwrcNaCXlCWZKaArsGrY6M9wnuTMxWfp1RTN9Xga8no+kF5Vsb"

	got, err := encryptWithNonce([]byte("a"), key, nonce)
	if err != nil {
		t.Fatalf("encryptWithNonce failed: %v", err)
	}
	if got != want {
		t.Errorf("payload = %s, want %s", got, want)
	}

	plaintext, err := Decrypt(want, pairKey(t, testSec2, testPub1))
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if plaintext != "a" {
		t.Errorf("Decrypt = %q, want %q", plaintext, "a")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := selfKey(t, testSec1)

	tests := []string{
		"a",
		"hello world",
		`{"value":"# Visit","metadata":{"type":"visit","created":"2024-01-02"}}`,
		"ünïcödé 🩺 text",
		strings.Repeat("x", 1000),
		strings.Repeat("y", MaxPlaintextSize),
	}
	for _, plaintext := range tests {
		payload, err := Encrypt(plaintext, key)
		if err != nil {
			t.Fatalf("Encrypt(%d bytes) failed: %v", len(plaintext), err)
		}
		if len(payload) < minPayloadChars || len(payload) > maxPayloadChars {
			t.Errorf("payload length %d outside bounds", len(payload))
		}
		got, err := Decrypt(payload, key)
		if err != nil {
			t.Fatalf("Decrypt(%d bytes) failed: %v", len(plaintext), err)
		}
		if got != plaintext {
			t.Errorf("round trip mismatch for %d bytes", len(plaintext))
		}
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	key := selfKey(t, testSec1)
	a, err := Encrypt("same", key)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt("same", key)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical payloads")
	}
}

func TestEncryptPlaintextBounds(t *testing.T) {
	key := selfKey(t, testSec1)

	for _, plaintext := range []string{"", strings.Repeat("z", MaxPlaintextSize+1)} {
		_, err := Encrypt(plaintext, key)
		if !errors.Is(err, ErrPlaintextSize) {
			t.Errorf("Encrypt(%d bytes) error = %v, want ErrPlaintextSize", len(plaintext), err)
		}
		if !IsValidationError(err) {
			t.Errorf("Encrypt(%d bytes) error is not a ValidationError", len(plaintext))
		}
	}
}

func TestDecryptDetectsTampering(t *testing.T) {
	key := selfKey(t, testSec1)
	payload, err := Encrypt("tamper target", key)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := base64.StdEncoding.DecodeString(payload)

	// every byte after the version: nonce, ciphertext and MAC
	for i := 1; i < len(raw); i++ {
		tampered := append([]byte(nil), raw...)
		tampered[i] ^= 0x01
		got, err := Decrypt(base64.StdEncoding.EncodeToString(tampered), key)
		if !errors.Is(err, ErrAuthFailed) {
			t.Fatalf("byte %d: error = %v, want ErrAuthFailed", i, err)
		}
		if got != "" {
			t.Fatalf("byte %d: returned plaintext %q", i, got)
		}
	}
}

func TestDecryptWrongKey(t *testing.T) {
	payload, err := Encrypt("private", selfKey(t, testSec1))
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range []*ConversationKey{selfKey(t, testSec2), pairKey(t, testSec1, testPub3)} {
		if _, err := Decrypt(payload, key); !IsAuthFailure(err) {
			t.Errorf("Decrypt with other key error = %v, want ErrAuthFailed", err)
		}
	}
}

func TestDecryptRejectsMalformedPayloads(t *testing.T) {
	key := selfKey(t, testSec1)
	valid, err := Encrypt("x", key)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := base64.StdEncoding.DecodeString(valid)
	wrongVersion := append([]byte(nil), raw...)
	wrongVersion[0] = 0x01

	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"empty", "", ErrUnknownVersion},
		{"hash prefix", "#" + valid[1:], ErrUnknownVersion},
		{"too short", strings.Repeat("A", minPayloadChars-1), ErrInvalidPayloadSize},
		{"too long", strings.Repeat("A", maxPayloadChars+1), ErrInvalidPayloadSize},
		{"not base64", strings.Repeat("!", minPayloadChars), ErrInvalidPayloadSize},
		{"wrong version", base64.StdEncoding.EncodeToString(wrongVersion), ErrUnknownVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.payload, key); !errors.Is(err, tt.want) {
				t.Errorf("Decrypt error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecryptWithDestroyedKey(t *testing.T) {
	key := selfKey(t, testSec1)
	payload, err := Encrypt("x", key)
	if err != nil {
		t.Fatal(err)
	}
	key.Destroy()

	if _, err := Decrypt(payload, key); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Decrypt error = %v, want ErrInvalidKey", err)
	}
	if _, err := Encrypt("x", key); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Encrypt error = %v, want ErrInvalidKey", err)
	}
}
