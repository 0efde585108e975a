package binderfs

import (
	"bytes"
	"testing"

	"github.com/absfs/memfs"
)

func TestIntegration_MultipleSessions(t *testing.T) {
	base, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("Failed to create base filesystem: %v", err)
	}

	owner, err := Login(base, testKeySource(t, testSec1), Config{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	defer owner.Logout()

	if err := owner.WriteDocument("/visits/2024-01-02.json", testDocument("2024-01-02", "data from owner")); err != nil {
		t.Fatalf("WriteDocument failed: %v", err)
	}

	// another key sees the file but cannot open it
	other, err := Login(base, testKeySource(t, testSec2), Config{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	defer other.Logout()
	if _, err := other.ReadDocument("/visits/2024-01-02.json"); !IsAuthFailure(err) {
		t.Errorf("read with wrong key error = %v, want ErrAuthFailed", err)
	}

	// a second session of the same key reads it from disk
	again, err := Login(base, testKeySource(t, testSec1), Config{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	defer again.Logout()
	doc, err := again.ReadDocument("/visits/2024-01-02.json")
	if err != nil {
		t.Fatalf("ReadDocument failed: %v", err)
	}
	if doc.Value != "data from owner" {
		t.Errorf("Value = %q", doc.Value)
	}
}

func TestIntegration_ShareWithPeer(t *testing.T) {
	ownerFS, err := memfs.NewFS()
	if err != nil {
		t.Fatal(err)
	}
	shareFS, err := memfs.NewFS()
	if err != nil {
		t.Fatal(err)
	}

	owner, err := Login(ownerFS, testKeySource(t, testSec1), Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer owner.Logout()

	photo := bytes.Repeat([]byte("scan"), 20000)
	if err := owner.WriteDocument("/labs/panel.json", testDocument("2024-02-01", "# Panel")); err != nil {
		t.Fatal(err)
	}
	if err := owner.WriteSidecar("/labs/panel.pdf.enc", photo); err != nil {
		t.Fatal(err)
	}

	ownerKey := selfKey(t, testSec1)
	shared := pairKey(t, testSec1, testPub2)
	if err := owner.IO().RewrapJSON("/labs/panel.json", "/panel.json", ownerKey, shared, shareFS); err != nil {
		t.Fatalf("RewrapJSON failed: %v", err)
	}
	if err := owner.IO().RewrapSidecar("/labs/panel.pdf.enc", "/panel.pdf.enc", ownerKey, shared, shareFS); err != nil {
		t.Fatalf("RewrapSidecar failed: %v", err)
	}

	peer, err := NewEncryptedIO(shareFS, pairKey(t, testSec2, testPub1), nil)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := peer.ReadDocument("/panel.json")
	if err != nil {
		t.Fatalf("peer ReadDocument failed: %v", err)
	}
	if doc.Value != "# Panel" {
		t.Errorf("Value = %q", doc.Value)
	}
	data, err := peer.ReadSidecar("/panel.pdf.enc")
	if err != nil {
		t.Fatalf("peer ReadSidecar failed: %v", err)
	}
	if !bytes.Equal(data, photo) {
		t.Error("shared attachment mismatch")
	}

	// a third key gets nothing from the share
	outsider, _ := NewEncryptedIO(shareFS, pairKey(t, testSec3, testPub1), nil)
	if _, err := outsider.ReadSidecar("/panel.pdf.enc"); !IsAuthFailure(err) {
		t.Errorf("outsider error = %v, want ErrAuthFailed", err)
	}
}

func TestIntegration_LegacyMigration(t *testing.T) {
	base, err := memfs.NewFS()
	if err != nil {
		t.Fatal(err)
	}
	s, err := Login(base, testKeySource(t, testSec1), Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Logout()

	key := selfKey(t, testSec1)
	recording := bytes.Repeat([]byte{0x42}, 30000)
	writeRaw(t, base, "/voice.m4a.enc", []byte(encryptLegacyLarge(t, recording, key)))

	got, err := s.ReadSidecar("/voice.m4a.enc")
	if err != nil {
		t.Fatalf("ReadSidecar legacy failed: %v", err)
	}
	if !bytes.Equal(got, recording) {
		t.Fatal("legacy content mismatch")
	}

	// rewrapping to the same key upgrades the format
	if err := s.IO().RewrapSidecar("/voice.m4a.enc", "/migrated/voice.m4a.enc", key, key, nil); err != nil {
		t.Fatalf("RewrapSidecar failed: %v", err)
	}
	if raw := readRaw(t, base, "/migrated/voice.m4a.enc"); raw[0] != VersionDEK {
		t.Errorf("version after migration = %#x, want %#x", raw[0], VersionDEK)
	}
	got, err = s.ReadSidecar("/migrated/voice.m4a.enc")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, recording) {
		t.Error("migrated content mismatch")
	}
}
