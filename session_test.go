package binderfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) (*Session, *DirFS) {
	t.Helper()
	base := newTempDirFS(t)
	s, err := Login(base, testKeySource(t, testSec1), Config{Workers: 2})
	require.NoError(t, err)
	t.Cleanup(s.Logout)
	return s, base
}

func itemNames(items []DirItem) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.ItemName())
	}
	return names
}

func TestLoginRejectsBadInput(t *testing.T) {
	base := newTempDirFS(t)

	_, err := Login(base, nil, Config{})
	assert.True(t, IsValidationError(err), "nil key source: %v", err)

	_, err = Login(base, testKeySource(t, testSec1), Config{Workers: -1})
	assert.ErrorContains(t, err, "workers cannot be negative")

	_, err = Login(base, NewEnvKeySource("BINDERFS_TEST_UNSET_KEY"), Config{})
	assert.Error(t, err)
}

func TestSessionReadsThroughCache(t *testing.T) {
	s, base := newTestSession(t)
	doc := testDocument("2024-01-02", "# Visit")

	require.NoError(t, s.WriteDocument("/visits/a.json", doc))
	require.NoError(t, os.Remove(filepath.Join(base.Root(), "visits", "a.json")))

	got, err := s.ReadDocument("visits/a.json")
	require.NoError(t, err, "cached document must be served after the file is gone")
	assert.Equal(t, "# Visit", got.Value)

	got.Value = "mutated"
	again, err := s.ReadDocument("/visits/a.json")
	require.NoError(t, err)
	assert.Equal(t, "# Visit", again.Value, "callers must not mutate the cache")
}

func TestSessionReadJSONCached(t *testing.T) {
	s, base := newTestSession(t)
	require.NoError(t, s.WriteJSON("/c/.meta.json", FolderMeta{DisplayName: "C"}))
	require.NoError(t, os.Remove(filepath.Join(base.Root(), "c", ".meta.json")))

	var meta FolderMeta
	require.NoError(t, s.ReadJSON("/c/.meta.json", &meta))
	assert.Equal(t, "C", meta.DisplayName)
}

func TestSessionReadPopulatesCache(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.IO().WriteDocument("/a.json", testDocument("2024", "direct")))
	assert.Equal(t, 0, s.Cache().Len())

	_, err := s.ReadDocument("/a.json")
	require.NoError(t, err)
	_, ok := s.Cache().GetFile(CacheKey(DefaultRepoDir, "/a.json"))
	assert.True(t, ok)
}

func TestSessionWriteEvictsListings(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.WriteDocument("/conditions/back-acne/a.json", testDocument("2024", "a")))

	root, err := s.ReadDirectory("/")
	require.NoError(t, err)
	require.Len(t, root, 1)
	assert.Equal(t, 1, root[0].(*Folder).ChildCount)

	sub, err := s.ReadDirectory("/conditions/back-acne")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json"}, itemNames(sub))

	require.NoError(t, s.WriteDocument("/conditions/back-acne/b.json", testDocument("2024", "b")))
	require.NoError(t, s.WriteDocument("/conditions/c.json", testDocument("2024", "c")))

	sub, err = s.ReadDirectory("/conditions/back-acne")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, itemNames(sub))

	root, err = s.ReadDirectory("/")
	require.NoError(t, err)
	assert.Equal(t, 2, root[0].(*Folder).ChildCount)

	require.NoError(t, s.WriteSidecar("/photo.enc", []byte("jpg")))
	_, ok := s.Cache().GetDir(CacheKey(DefaultRepoDir, "/"))
	assert.False(t, ok, "sidecar write must evict the parent listing")
}

func TestSessionListingIsCached(t *testing.T) {
	s, _ := newTestSession(t)
	items, err := s.ReadDirectory("/")
	require.NoError(t, err)
	assert.Empty(t, items)

	// writes that bypass the session are not seen until eviction
	require.NoError(t, s.IO().WriteDocument("/outside.json", testDocument("2024", "x")))
	items, err = s.ReadDirectory("/")
	require.NoError(t, err)
	assert.Empty(t, items)

	s.Cache().EvictDir(CacheKey(DefaultRepoDir, "/"))
	items, err = s.ReadDirectory("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"outside.json"}, itemNames(items))
}

func TestSessionFailedWriteKeepsCache(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.WriteDocument("/a.json", testDocument("2024", "original")))
	_, err := s.ReadDirectory("/")
	require.NoError(t, err)

	invalid := &MedicalDocument{Value: "new", Metadata: DocumentMetadata{Type: "note"}}
	assert.True(t, IsValidationError(s.WriteDocument("/a.json", invalid)))

	// the parent of this path is a regular file
	err = s.WriteDocument("/a.json/child.json", testDocument("2024", "x"))
	assert.True(t, IsIOError(err), "error = %v", err)

	got, err := s.ReadDocument("/a.json")
	require.NoError(t, err)
	assert.Equal(t, "original", got.Value)

	_, ok := s.Cache().GetDir(CacheKey(DefaultRepoDir, "/"))
	assert.True(t, ok, "failed writes must not evict listings")
}

func TestSessionDeleteEntry(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.WriteDocument("/x/a.json", testDocument("2024", "a")))
	_, err := s.ReadDirectory("/x")
	require.NoError(t, err)

	require.NoError(t, s.DeleteEntry("/x/a.json"))

	_, err = s.ReadDocument("/x/a.json")
	assert.True(t, IsNotFound(err), "error = %v", err)
	items, err := s.ReadDirectory("/x")
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.True(t, IsNotFound(s.DeleteEntry("/x/a.json")))
}

func TestSessionDeleteFolder(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.WriteDocument("/x/a.json", testDocument("2024", "a")))
	require.NoError(t, s.WriteDocument("/x/y/b.json", testDocument("2024", "b")))
	require.NoError(t, s.WriteDocument("/x-2/c.json", testDocument("2024", "c")))
	_, err := s.ReadDirectory("/x/y")
	require.NoError(t, err)
	_, err = s.ReadDirectory("/")
	require.NoError(t, err)

	require.NoError(t, s.DeleteFolder("/x"))

	_, err = s.ReadDocument("/x/y/b.json")
	assert.True(t, IsNotFound(err), "error = %v", err)
	_, err = s.ReadDocument("/x-2/c.json")
	assert.NoError(t, err)

	root, err := s.ReadDirectory("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"x-2"}, itemNames(root))

	assert.True(t, IsValidationError(s.DeleteFolder("/")))
}

func TestSessionRenameFolder(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.WriteDocument("/old/a.json", testDocument("2024", "a")))
	_, err := s.ReadDirectory("/")
	require.NoError(t, err)

	require.NoError(t, s.RenameFolder("/old", "/archive/new"))

	_, err = s.ReadDocument("/old/a.json")
	assert.True(t, IsNotFound(err), "error = %v", err)
	doc, err := s.ReadDocument("/archive/new/a.json")
	require.NoError(t, err)
	assert.Equal(t, "a", doc.Value)

	root, err := s.ReadDirectory("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"archive"}, itemNames(root))

	assert.True(t, IsValidationError(s.RenameFolder("/", "/elsewhere")))
}

func TestSessionLogout(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.WriteDocument("/a.json", testDocument("2024", "a")))
	require.NotZero(t, s.Cache().Len())

	s.Logout()
	s.Logout()

	assert.Equal(t, 0, s.Cache().Len())
	_, err := s.ReadDocument("/a.json")
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.ReadDirectory("/")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.WriteDocument("/b.json", testDocument("2024", "b")), ErrSessionClosed)
}

func TestSessionCustomRepoDir(t *testing.T) {
	s, err := Login(newTempDirFS(t), testKeySource(t, testSec1), Config{RepoDir: "work"})
	require.NoError(t, err)
	defer s.Logout()

	require.NoError(t, s.WriteDocument("/a.json", testDocument("2024", "a")))
	_, ok := s.Cache().GetFile("work:a.json")
	assert.True(t, ok)
}
