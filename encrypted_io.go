package binderfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
)

// EncryptedIO is the only path by which document and sidecar bytes reach the
// filesystem. Every write goes through a codec first; no plaintext is handed to
// the underlying file.
type EncryptedIO struct {
	fs     absfs.FileSystem
	key    *ConversationKey
	logger *slog.Logger
}

// NewEncryptedIO binds a filesystem to the session's conversation key
func NewEncryptedIO(base absfs.FileSystem, key *ConversationKey, logger *slog.Logger) (*EncryptedIO, error) {
	if base == nil {
		return nil, fmt.Errorf("base filesystem cannot be nil")
	}
	if key == nil {
		return nil, &ValidationError{Field: "key", Message: "conversation key cannot be nil", Err: ErrInvalidKey}
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &EncryptedIO{fs: base, key: key, logger: logger}, nil
}

// FileSystem returns the underlying filesystem
func (e *EncryptedIO) FileSystem() absfs.FileSystem {
	return e.fs
}

// ReadDocument decrypts and validates a document
func (e *EncryptedIO) ReadDocument(name string) (*MedicalDocument, error) {
	return e.ReadDocumentWithKey(name, e.key)
}

// ReadDocumentWithKey decrypts a document under an explicit key
func (e *EncryptedIO) ReadDocumentWithKey(name string, key *ConversationKey) (*MedicalDocument, error) {
	plaintext, err := e.readPayload(name, key)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument([]byte(plaintext))
	if err != nil {
		return nil, NewCorruptionError(name, "decrypted content is not a valid document", err)
	}
	return doc, nil
}

// WriteDocument validates, encrypts and writes a document
func (e *EncryptedIO) WriteDocument(name string, doc *MedicalDocument) error {
	return e.WriteDocumentWithKey(name, doc, e.key)
}

// WriteDocumentWithKey writes a document under an explicit key
func (e *EncryptedIO) WriteDocumentWithKey(name string, doc *MedicalDocument, key *ConversationKey) error {
	if doc == nil {
		return NewValidationError("document", nil, "document cannot be nil")
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	return e.WriteJSONWithKey(name, doc, key)
}

// ReadJSON decrypts a JSON file into v
func (e *EncryptedIO) ReadJSON(name string, v any) error {
	return e.ReadJSONWithKey(name, v, e.key)
}

// ReadJSONWithKey decrypts a JSON file into v under an explicit key
func (e *EncryptedIO) ReadJSONWithKey(name string, v any, key *ConversationKey) error {
	plaintext, err := e.readPayload(name, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(plaintext), v); err != nil {
		return NewCorruptionError(name, "decrypted content is not valid JSON", err)
	}
	return nil
}

// WriteJSON encrypts the JSON encoding of v
func (e *EncryptedIO) WriteJSON(name string, v any) error {
	return e.WriteJSONWithKey(name, v, e.key)
}

// WriteJSONWithKey encrypts the JSON encoding of v under an explicit key
func (e *EncryptedIO) WriteJSONWithKey(name string, v any, key *ConversationKey) error {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return NewEncryptionError("encrypt", name, fmt.Errorf("failed to encode JSON: %w", err))
	}
	defer zero(plaintext)

	payload, err := encryptWithRandomNonce(plaintext, key)
	if err != nil {
		return NewEncryptionError("encrypt", name, err)
	}
	if err := writeFileAtomic(e.fs, name, []byte(payload)); err != nil {
		return err
	}
	e.logger.Debug("wrote encrypted payload", "path", name, "bytes", len(payload))
	return nil
}

// ReadSidecar decrypts an attachment in either sidecar format
func (e *EncryptedIO) ReadSidecar(name string) ([]byte, error) {
	return e.ReadSidecarWithKey(name, e.key)
}

// ReadSidecarWithKey decrypts an attachment under an explicit key
func (e *EncryptedIO) ReadSidecarWithKey(name string, key *ConversationKey) ([]byte, error) {
	raw, err := readFile(e.fs, name)
	if err != nil {
		return nil, err
	}
	sc, err := ParseSidecar(raw)
	if err != nil {
		return nil, NewEncryptionError("decrypt", name, err)
	}
	data, err := sc.Open(key)
	if err != nil {
		return nil, NewEncryptionError("decrypt", name, err)
	}
	if _, legacy := sc.(LegacySidecar); legacy {
		e.logger.Debug("read legacy sidecar", "path", name)
	}
	return data, nil
}

// WriteSidecar seals an attachment in the current DEK container format
func (e *EncryptedIO) WriteSidecar(name string, data []byte) error {
	return e.WriteSidecarWithKey(name, data, e.key)
}

// WriteSidecarWithKey seals an attachment under an explicit key
func (e *EncryptedIO) WriteSidecarWithKey(name string, data []byte, key *ConversationKey) error {
	c, err := SealDEK(data, key)
	if err != nil {
		return NewEncryptionError("encrypt", name, err)
	}
	return e.writeContainer(e.fs, name, c)
}

// RewrapSidecar makes the attachment at src readable with destKey and writes it to
// dest on destFS (the session filesystem when nil). DEK containers keep their nonce
// and ciphertext; legacy payloads are decrypted and resealed.
func (e *EncryptedIO) RewrapSidecar(src, dest string, srcKey, destKey *ConversationKey, destFS absfs.FileSystem) error {
	if destFS == nil {
		destFS = e.fs
	}
	raw, err := readFile(e.fs, src)
	if err != nil {
		return err
	}
	sc, err := ParseSidecar(raw)
	if err != nil {
		return NewEncryptionError("rewrap", src, err)
	}
	c, err := sc.Rewrap(srcKey, destKey)
	if err != nil {
		return NewEncryptionError("rewrap", src, err)
	}
	return e.writeContainer(destFS, dest, c)
}

// RewrapJSON re-encrypts a NIP-44 file (document or folder metadata) from
// srcKey to destKey and writes it to dest on destFS. The plaintext stays in
// memory.
func (e *EncryptedIO) RewrapJSON(src, dest string, srcKey, destKey *ConversationKey, destFS absfs.FileSystem) error {
	if destFS == nil {
		destFS = e.fs
	}
	plaintext, err := e.readPayload(src, srcKey)
	if err != nil {
		return err
	}
	payload, err := encryptWithRandomNonce([]byte(plaintext), destKey)
	if err != nil {
		return NewEncryptionError("rewrap", src, err)
	}
	if err := writeFileAtomic(destFS, dest, []byte(payload)); err != nil {
		return err
	}
	e.logger.Debug("rewrapped payload", "path", src, "dest", dest)
	return nil
}

func (e *EncryptedIO) writeContainer(target absfs.FileSystem, name string, c *DEKContainer) error {
	raw, err := c.MarshalBinary()
	if err != nil {
		return NewEncryptionError("encrypt", name, err)
	}
	if err := writeFileAtomic(target, name, raw); err != nil {
		return err
	}
	e.logger.Debug("wrote sidecar", "path", name, "bytes", len(raw))
	return nil
}

func (e *EncryptedIO) readPayload(name string, key *ConversationKey) (string, error) {
	raw, err := readFile(e.fs, name)
	if err != nil {
		return "", err
	}
	plaintext, err := Decrypt(string(raw), key)
	if err != nil {
		return "", NewEncryptionError("decrypt", name, err)
	}
	return plaintext, nil
}

func encryptWithRandomNonce(plaintext []byte, key *ConversationKey) (string, error) {
	nonce, err := randomBytes(NonceSize)
	if err != nil {
		return "", err
	}
	return encryptWithNonce(plaintext, key, nonce)
}

// readFile reads a whole file, mapping a missing file to ErrNotFound
func readFile(base absfs.FileSystem, name string) ([]byte, error) {
	if err := ValidateFilePath(name); err != nil {
		return nil, err
	}
	name = cleanPath(name)

	f, err := base.Open(name)
	if err != nil {
		return nil, wrapFSError("read", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, wrapFSError("read", name, err)
	}
	return data, nil
}

// writeFileAtomic writes to a hidden temporary file and renames it into place,
// so readers see either the old ciphertext or the new one
func writeFileAtomic(base absfs.FileSystem, name string, data []byte) error {
	if err := ValidateFilePath(name); err != nil {
		return err
	}
	name = cleanPath(name)
	dir, file := path.Dir(name), path.Base(name)

	if dir != "/" {
		if err := base.MkdirAll(dir, 0755); err != nil {
			return wrapFSError("write", dir, err)
		}
	}

	tmp := path.Join(dir, "."+file+"."+uuid.NewString()+".tmp")
	f, err := base.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return wrapFSError("write", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		base.Remove(tmp)
		return wrapFSError("write", name, err)
	}
	if err := f.Close(); err != nil {
		base.Remove(tmp)
		return wrapFSError("write", name, err)
	}
	if err := base.Rename(tmp, name); err != nil {
		base.Remove(tmp)
		return wrapFSError("rename", name, err)
	}
	return nil
}

func wrapFSError(op, name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
		err = fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return NewIOError(op, name, err)
}
