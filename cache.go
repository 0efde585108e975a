package binderfs

import (
	"strings"
	"sync"
)

// tier is a mutex-guarded map of decrypted values. There is no TTL; entries
// live until evicted or cleared.
type tier[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

func newTier[V any]() *tier[V] {
	return &tier[V]{entries: make(map[string]V)}
}

func (t *tier[V]) Get(key string) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[key]
	return v, ok
}

func (t *tier[V]) Set(key string, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = v
}

func (t *tier[V]) Evict(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// EvictPrefix removes every key starting with prefix and returns how many
func (t *tier[V]) EvictPrefix(prefix string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for key := range t.entries {
		if strings.HasPrefix(key, prefix) {
			delete(t.entries, key)
			n++
		}
	}
	return n
}

func (t *tier[V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *tier[V]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.entries)
}

// TwoTierCache holds decrypted directory listings (tier 1) and decrypted file
// contents (tier 2) for one session. Keys are "{repoDir}:{path}"; see CacheKey.
type TwoTierCache struct {
	dirs  *tier[[]DirItem]
	files *tier[any]
}

// NewTwoTierCache creates an empty cache
func NewTwoTierCache() *TwoTierCache {
	return &TwoTierCache{
		dirs:  newTier[[]DirItem](),
		files: newTier[any](),
	}
}

// CacheKey builds the key of a path inside the working tree repoDir. Paths are
// normalized so "a/b", "/a/b" and "/a/b/" share one key.
func CacheKey(repoDir, p string) string {
	return repoDir + ":" + relativePath(cleanPath(p))
}

// GetDir returns a copy of a cached listing
func (c *TwoTierCache) GetDir(key string) ([]DirItem, bool) {
	items, ok := c.dirs.Get(key)
	if !ok {
		return nil, false
	}
	return cloneItems(items), true
}

// SetDir stores a copy of a listing
func (c *TwoTierCache) SetDir(key string, items []DirItem) {
	c.dirs.Set(key, cloneItems(items))
}

// GetFile returns a cached decrypted value
func (c *TwoTierCache) GetFile(key string) (any, bool) {
	return c.files.Get(key)
}

// SetFile stores a decrypted value
func (c *TwoTierCache) SetFile(key string, v any) {
	c.files.Set(key, v)
}

// Evict removes key from both tiers
func (c *TwoTierCache) Evict(key string) {
	c.dirs.Evict(key)
	c.files.Evict(key)
}

// EvictDir removes only the listing cached under key
func (c *TwoTierCache) EvictDir(key string) {
	c.dirs.Evict(key)
}

// EvictPrefix removes every key starting with prefix from both tiers
func (c *TwoTierCache) EvictPrefix(prefix string) int {
	return c.dirs.EvictPrefix(prefix) + c.files.EvictPrefix(prefix)
}

// EvictSubtree removes key itself and every key below it ("key/...") from
// both tiers. Siblings sharing a name prefix, such as "key-2", are kept.
func (c *TwoTierCache) EvictSubtree(key string) int {
	n := c.EvictPrefix(key + "/")
	if _, ok := c.dirs.Get(key); ok {
		n++
	}
	if _, ok := c.files.Get(key); ok {
		n++
	}
	c.Evict(key)
	return n
}

// Len returns the number of cached entries across both tiers
func (c *TwoTierCache) Len() int {
	return c.dirs.Len() + c.files.Len()
}

// Clear drops everything, used at session teardown
func (c *TwoTierCache) Clear() {
	c.dirs.Clear()
	c.files.Clear()
}
