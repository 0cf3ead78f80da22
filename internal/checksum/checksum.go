// Package checksum provides a write-through digest sink used to account for
// the size and checksum of metadata files as they are produced.
package checksum

import (
	"encoding/hex"
	"hash"
	"io"
)

// Sink wraps a writer and records the cumulative size and running digest of
// everything written through it.
type Sink struct {
	w io.Writer
	h hash.Hash
	n int64
}

// NewSink creates a sink writing through to w, digesting with h.
func NewSink(w io.Writer, h hash.Hash) *Sink {
	return &Sink{w: w, h: h}
}

func (s *Sink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if n > 0 {
		s.h.Write(p[:n])
		s.n += int64(n)
	}
	return n, err
}

// Size returns the number of bytes written so far.
func (s *Sink) Size() int64 {
	return s.n
}

// HexDigest returns the hex-encoded digest of the bytes written so far. It
// does not disturb the running hash state, so it may be called repeatedly.
func (s *Sink) HexDigest() string {
	return hex.EncodeToString(s.h.Sum(nil))
}

// Digest consumes r to EOF and returns the byte count and hex digest.
func Digest(r io.Reader, h hash.Hash) (int64, string, error) {
	n, err := io.Copy(h, r)
	if err != nil {
		return n, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
