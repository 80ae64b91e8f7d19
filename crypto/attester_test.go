package crypto

import (
	"crypto/sha256"
	"path/filepath"
	"testing"
)

func TestAttesterKeySignVerifyRoundTrip(t *testing.T) {
	key, err := GenerateAttesterKey()
	if err != nil {
		t.Fatalf("GenerateAttesterKey: %v", err)
	}
	digest := sha256.Sum256([]byte("bead content"))
	sig, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !key.Verify(digest[:], sig) {
		t.Fatalf("expected signature to verify")
	}

	other := sha256.Sum256([]byte("tampered"))
	if key.Verify(other[:], sig) {
		t.Fatalf("signature unexpectedly verified against a different digest")
	}
}

func TestAttesterKeyBytesRoundTrip(t *testing.T) {
	key, err := GenerateAttesterKey()
	if err != nil {
		t.Fatalf("GenerateAttesterKey: %v", err)
	}
	der, err := key.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	restored, err := AttesterKeyFromBytes(der)
	if err != nil {
		t.Fatalf("AttesterKeyFromBytes: %v", err)
	}
	if restored.NodeID() != key.NodeID() {
		t.Fatalf("node id mismatch after round trip")
	}
}

func TestKeystoreSaveLoadRoundTrip(t *testing.T) {
	key, err := GenerateAttesterKey()
	if err != nil {
		t.Fatalf("GenerateAttesterKey: %v", err)
	}
	path := filepath.Join(t.TempDir(), "attester.keystore")
	if err := SaveToKeystore(path, key, "correct horse battery staple"); err != nil {
		t.Fatalf("SaveToKeystore: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("LoadFromKeystore: %v", err)
	}
	if loaded.NodeID() != key.NodeID() {
		t.Fatalf("node id mismatch after keystore round trip")
	}
}
