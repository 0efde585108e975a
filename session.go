package binderfs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
)

// Session is an unlocked binder: the conversation key, the encrypted I/O
// gateway and the decrypted-content cache, all dropped together at Logout.
//
// The cache is only changed after the filesystem has accepted a write, so a
// failed write never leaves a cached value behind.
type Session struct {
	id     string
	cfg    Config
	key    *ConversationKey
	io     *EncryptedIO
	reader *DirectoryReader
	cache  *TwoTierCache
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Login derives the self conversation key from keys and opens a session over base
func Login(base absfs.FileSystem, keys KeySource, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, NewValidationError("keys", nil, "key source cannot be nil")
	}
	cfg = cfg.withDefaults()

	key, err := SelfConversationKey(keys)
	if err != nil {
		return nil, fmt.Errorf("failed to derive conversation key: %w", err)
	}

	id := uuid.NewString()
	logger := cfg.Logger.With("session", id, "repo", cfg.RepoDir)

	eio, err := NewEncryptedIO(base, key, logger)
	if err != nil {
		key.Destroy()
		return nil, err
	}

	s := &Session{
		id:     id,
		cfg:    cfg,
		key:    key,
		io:     eio,
		reader: NewDirectoryReader(eio, cfg.Workers, logger),
		cache:  NewTwoTierCache(),
		logger: logger,
	}
	logger.Info("session opened")
	return s, nil
}

// ID returns the session identifier used in logs
func (s *Session) ID() string {
	return s.id
}

// IO returns the encrypted I/O gateway, for explicit-key operations
func (s *Session) IO() *EncryptedIO {
	return s.io
}

// Cache returns the session cache
func (s *Session) Cache() *TwoTierCache {
	return s.cache
}

// Logout clears the cache and destroys the conversation key. It waits for
// in-flight operations and is safe to call more than once.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cache.Clear()
	s.key.Destroy()
	s.logger.Info("session closed")
}

// enter holds the session open for the duration of one operation
func (s *Session) enter() (func(), error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrSessionClosed
	}
	return s.mu.RUnlock, nil
}

func (s *Session) cacheKey(p string) string {
	return CacheKey(s.cfg.RepoDir, p)
}

// ReadDirectory returns the listing of dir, from the cache when present
func (s *Session) ReadDirectory(dir string) ([]DirItem, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	key := s.cacheKey(dir)
	if items, ok := s.cache.GetDir(key); ok {
		return items, nil
	}

	items, err := s.reader.ReadDirectory(dir)
	if err != nil {
		return nil, err
	}
	s.cache.SetDir(key, items)
	s.logger.Debug("listed directory", "path", dir, "items", len(items))
	return items, nil
}

// ReadDocument decrypts a document, from the cache when present
func (s *Session) ReadDocument(p string) (*MedicalDocument, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	key := s.cacheKey(p)
	if cached, ok := s.cache.GetFile(key); ok {
		if doc, err := documentFromCached(cached); err == nil {
			return doc, nil
		}
	}

	doc, err := s.io.ReadDocument(p)
	if err != nil {
		return nil, err
	}
	s.cache.SetFile(key, doc.Clone())
	return doc, nil
}

// ReadJSON decrypts a JSON file into v, from the cache when present
func (s *Session) ReadJSON(p string, v any) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()

	key := s.cacheKey(p)
	if cached, ok := s.cache.GetFile(key); ok {
		raw, err := json.Marshal(cached)
		if err == nil && json.Unmarshal(raw, v) == nil {
			return nil
		}
	}

	var raw json.RawMessage
	if err := s.io.ReadJSON(p, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return NewCorruptionError(p, "decrypted JSON does not match the target type", err)
	}
	s.cache.SetFile(key, raw)
	return nil
}

// ReadSidecar decrypts an attachment. Attachments are never cached.
func (s *Session) ReadSidecar(p string) ([]byte, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	return s.io.ReadSidecar(p)
}

// WriteDocument encrypts and writes doc, then caches it and drops the
// listings that contain it
func (s *Session) WriteDocument(p string, doc *MedicalDocument) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()

	if err := s.io.WriteDocument(p, doc); err != nil {
		return err
	}
	s.cache.SetFile(s.cacheKey(p), doc.Clone())
	s.evictListings(p)
	s.logger.Debug("wrote document", "path", p)
	return nil
}

// WriteJSON encrypts and writes the JSON encoding of v
func (s *Session) WriteJSON(p string, v any) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()

	raw, err := json.Marshal(v)
	if err != nil {
		return NewEncryptionError("encrypt", p, fmt.Errorf("failed to encode JSON: %w", err))
	}
	if err := s.io.WriteJSON(p, json.RawMessage(raw)); err != nil {
		return err
	}
	s.cache.SetFile(s.cacheKey(p), json.RawMessage(raw))
	s.evictListings(p)
	s.logger.Debug("wrote json", "path", p)
	return nil
}

// WriteSidecar seals an attachment and drops the listings that contain it
func (s *Session) WriteSidecar(p string, data []byte) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()

	if err := s.io.WriteSidecar(p, data); err != nil {
		return err
	}
	s.evictListings(p)
	s.logger.Debug("wrote sidecar", "path", p, "bytes", len(data))
	return nil
}

// DeleteEntry removes a single file and its cached state
func (s *Session) DeleteEntry(p string) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()

	if err := ValidateFilePath(p); err != nil {
		return err
	}
	p = cleanPath(p)
	if err := s.io.FileSystem().Remove(p); err != nil {
		return wrapFSError("remove", p, err)
	}
	s.cache.Evict(s.cacheKey(p))
	s.evictListings(p)
	s.logger.Debug("deleted entry", "path", p)
	return nil
}

// DeleteFolder removes dir with everything below it and evicts the subtree
func (s *Session) DeleteFolder(dir string) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()

	if err := ValidateFilePath(dir); err != nil {
		return err
	}
	dir = cleanPath(dir)
	if dir == "/" {
		return NewValidationError("path", dir, "cannot delete the repository root")
	}
	if err := s.io.FileSystem().RemoveAll(dir); err != nil {
		return wrapFSError("remove", dir, err)
	}
	s.evictSubtree(dir)
	s.evictListings(dir)
	s.logger.Debug("deleted folder", "path", dir)
	return nil
}

// RenameFolder moves a folder and evicts both subtrees
func (s *Session) RenameFolder(oldDir, newDir string) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()

	for _, p := range []string{oldDir, newDir} {
		if err := ValidateFilePath(p); err != nil {
			return err
		}
		if cleanPath(p) == "/" {
			return NewValidationError("path", p, "cannot rename the repository root")
		}
	}
	oldDir, newDir = cleanPath(oldDir), cleanPath(newDir)

	fs := s.io.FileSystem()
	if err := fs.MkdirAll(path.Dir(newDir), 0755); err != nil {
		return wrapFSError("rename", newDir, err)
	}
	if err := fs.Rename(oldDir, newDir); err != nil {
		return wrapFSError("rename", oldDir, err)
	}
	for _, p := range []string{oldDir, newDir} {
		s.evictSubtree(p)
		s.evictListings(p)
	}
	s.logger.Debug("renamed folder", "from", oldDir, "to", newDir)
	return nil
}

// evictSubtree drops dir's own key and every key below it
func (s *Session) evictSubtree(dir string) {
	s.cache.EvictSubtree(s.cacheKey(dir))
}

// evictListings drops the listing of every ancestor of p. The parent lists p
// itself; further ancestors show the child count of the folder holding it.
func (s *Session) evictListings(p string) {
	for dir := path.Dir(cleanPath(p)); ; dir = path.Dir(dir) {
		s.cache.EvictDir(s.cacheKey(dir))
		if dir == "/" {
			return
		}
	}
}

func documentFromCached(v any) (*MedicalDocument, error) {
	switch c := v.(type) {
	case *MedicalDocument:
		return c.Clone(), nil
	case json.RawMessage:
		return ParseDocument(c)
	default:
		return nil, fmt.Errorf("unexpected cached value %T", v)
	}
}
