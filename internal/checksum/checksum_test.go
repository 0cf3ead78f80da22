package checksum

import (
	"bytes"
	"crypto/sha256"
	"strings"
	"testing"
)

func TestSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf, sha256.New())

	if _, err := s.Write([]byte("hello ")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := s.Write([]byte("world")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if buf.String() != "hello world" {
		t.Errorf("sink did not pass bytes through: %q", buf.String())
	}
	if s.Size() != 11 {
		t.Errorf("size = %d, want 11", s.Size())
	}

	// sha256 of "hello world"
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got := s.HexDigest(); got != want {
		t.Errorf("digest = %s, want %s", got, want)
	}

	// Finalization is idempotent.
	if got := s.HexDigest(); got != want {
		t.Errorf("second digest = %s, want %s", got, want)
	}
	if s.Size() != 11 {
		t.Errorf("size changed after digest: %d", s.Size())
	}
}

func TestDigest(t *testing.T) {
	n, sum, err := Digest(strings.NewReader("hello world"), sha256.New())
	if err != nil {
		t.Fatalf("digest failed: %v", err)
	}
	if n != 11 {
		t.Errorf("n = %d, want 11", n)
	}
	if sum != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Errorf("unexpected digest %s", sum)
	}
}
