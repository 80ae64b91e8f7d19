package signer

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

// writeFakeSigner writes a tiny shell script standing in for the real
// signing binary: it echoes its stdin back, simulating a no-op signature
// for tests that only need to exercise the subprocess plumbing.
func writeFakeSigner(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-signer.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSignRoundTripsBase64Payload(t *testing.T) {
	bin := writeFakeSigner(t, "#!/bin/sh\ncat\n")
	s := NewSubprocess(bin, "/dev/null", t.TempDir())

	unsigned := base64.StdEncoding.EncodeToString([]byte("unsigned-tx"))
	signed, err := s.Sign(context.Background(), unsigned)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signed != unsigned {
		t.Fatalf("expected echoed payload %q, got %q", unsigned, signed)
	}
}

func TestSignFailsOnNonZeroExit(t *testing.T) {
	bin := writeFakeSigner(t, "#!/bin/sh\necho boom >&2\nexit 1\n")
	s := NewSubprocess(bin, "/dev/null", t.TempDir())

	unsigned := base64.StdEncoding.EncodeToString([]byte("unsigned-tx"))
	if _, err := s.Sign(context.Background(), unsigned); err == nil {
		t.Fatal("expected an error on non-zero exit")
	}
}

func TestSignRejectsInvalidBase64Input(t *testing.T) {
	bin := writeFakeSigner(t, "#!/bin/sh\ncat\n")
	s := NewSubprocess(bin, "/dev/null", t.TempDir())

	if _, err := s.Sign(context.Background(), "not-base64!!!"); err == nil {
		t.Fatal("expected rejection of invalid base64 input")
	}
}
