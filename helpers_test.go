package binderfs

import (
	"encoding/base64"
	"os"
	"testing"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
)

const (
	testSec1 = "0000000000000000000000000000000000000000000000000000000000000001"
	testSec2 = "0000000000000000000000000000000000000000000000000000000000000002"
	testSec3 = "0000000000000000000000000000000000000000000000000000000000000003"

	testPub1 = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	testPub2 = "c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"
	testPub3 = "f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f9"
)

func testKeySource(t testing.TB, privHex string) *StaticKeySource {
	t.Helper()
	ks, err := NewStaticKeySource(privHex)
	if err != nil {
		t.Fatalf("NewStaticKeySource failed: %v", err)
	}
	return ks
}

// selfKey returns the encrypt-to-self key of a test private key
func selfKey(t testing.TB, privHex string) *ConversationKey {
	t.Helper()
	key, err := SelfConversationKey(testKeySource(t, privHex))
	if err != nil {
		t.Fatalf("SelfConversationKey failed: %v", err)
	}
	return key
}

// pairKey returns the key shared between a test private key and a peer
func pairKey(t testing.TB, privHex, peerPub string) *ConversationKey {
	t.Helper()
	key, err := ConversationKeyWith(testKeySource(t, privHex), peerPub)
	if err != nil {
		t.Fatalf("ConversationKeyWith failed: %v", err)
	}
	return key
}

func newMemFS(t testing.TB) absfs.FileSystem {
	t.Helper()
	fs, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS failed: %v", err)
	}
	return fs
}

func newTempDirFS(t testing.TB) *DirFS {
	t.Helper()
	fs, err := NewDirFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirFS failed: %v", err)
	}
	return fs
}

// encryptLegacyLarge produces a version 0xFF payload the way old clients did.
// Nothing outside tests writes this format.
func encryptLegacyLarge(t testing.TB, data []byte, key *ConversationKey) string {
	t.Helper()
	nonce, err := randomBytes(NonceSize)
	if err != nil {
		t.Fatalf("randomBytes failed: %v", err)
	}
	raw, err := sealRaw(VersionLegacyLarge, []byte(base64.StdEncoding.EncodeToString(data)), key, nonce)
	if err != nil {
		t.Fatalf("sealRaw failed: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func writeRaw(t testing.TB, fs absfs.FileSystem, name string, data []byte) {
	t.Helper()
	if err := writeFileAtomic(fs, name, data); err != nil {
		t.Fatalf("write %s failed: %v", name, err)
	}
}

func readRaw(t testing.TB, fs absfs.FileSystem, name string) []byte {
	t.Helper()
	data, err := readFile(fs, name)
	if err != nil {
		t.Fatalf("read %s failed: %v", name, err)
	}
	return data
}

func testDocument(created, value string) *MedicalDocument {
	return &MedicalDocument{
		Value: value,
		Metadata: DocumentMetadata{
			Type:    "note",
			Created: created,
		},
	}
}

func mustMkdir(t testing.TB, fs absfs.FileSystem, dir string) {
	t.Helper()
	if err := fs.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll %s failed: %v", dir, err)
	}
}

func mustTouch(t testing.TB, fs absfs.FileSystem, name string) {
	t.Helper()
	f, err := fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		t.Fatalf("create %s failed: %v", name, err)
	}
	f.Close()
}
