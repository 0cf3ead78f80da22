// Package compress wraps byte streams in the compression envelopes used by
// RPM repository metadata. The codec for a file is chosen from the extension
// declared in repomd.xml, never sniffed from content.
package compress

import (
	"compress/bzip2"
	"fmt"
	"io"
	"path"

	dsbzip2 "github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Type identifies a compression codec.
type Type int

const (
	None Type = iota
	Gzip
	Bzip2
	Xz
	Zstd
	Zchunk
)

// String returns the canonical name of the codec.
func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Bzip2:
		return "bzip2"
	case Xz:
		return "xz"
	case Zstd:
		return "zstd"
	case Zchunk:
		return "zchunk"
	default:
		return "unknown"
	}
}

// Extension returns the filename extension for the codec, including the
// leading dot, or the empty string for None.
func (t Type) Extension() string {
	switch t {
	case Gzip:
		return ".gz"
	case Bzip2:
		return ".bz2"
	case Xz:
		return ".xz"
	case Zstd:
		return ".zst"
	case Zchunk:
		return ".zck"
	default:
		return ""
	}
}

// UnsupportedError reports a codec that cannot be opened, either because the
// extension is unrecognized or because support is not compiled in.
type UnsupportedError struct {
	Codec string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported compression codec %q", e.Codec)
}

// ParseType maps a codec name to its Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "none", "":
		return None, nil
	case "gzip", "gz":
		return Gzip, nil
	case "bzip2", "bz2":
		return Bzip2, nil
	case "xz":
		return Xz, nil
	case "zstd", "zst":
		return Zstd, nil
	case "zchunk", "zck":
		return Zchunk, nil
	default:
		return None, &UnsupportedError{Codec: s}
	}
}

// TypeForPath determines the codec from the filename extension. Plain ".xml"
// files and extensionless paths map to None; any other extension is an error.
func TypeForPath(p string) (Type, error) {
	switch ext := path.Ext(p); ext {
	case ".gz":
		return Gzip, nil
	case ".bz2":
		return Bzip2, nil
	case ".xz":
		return Xz, nil
	case ".zst":
		return Zstd, nil
	case ".zck":
		return Zchunk, nil
	case ".xml", "":
		return None, nil
	default:
		return None, &UnsupportedError{Codec: ext}
	}
}

type readCloser struct {
	io.Reader
	close func() error
}

func (rc *readCloser) Close() error {
	if rc.close == nil {
		return nil
	}
	return rc.close()
}

// NewReader wraps r in a decompressing reader for the given codec. The
// returned reader owns only the codec state; closing it does not close r.
func NewReader(r io.Reader, t Type) (io.ReadCloser, error) {
	switch t {
	case None:
		return &readCloser{Reader: r}, nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr, nil
	case Bzip2:
		return &readCloser{Reader: bzip2.NewReader(r)}, nil
	case Xz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return &readCloser{Reader: xr}, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, &UnsupportedError{Codec: t.String()}
	}
}

// OpenReader dispatches on the extension of p and wraps r accordingly.
func OpenReader(r io.Reader, p string) (io.ReadCloser, error) {
	t, err := TypeForPath(p)
	if err != nil {
		return nil, err
	}
	return NewReader(r, t)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w in a compressing writer for the given codec. Close must
// be called to flush the codec trailer; it does not close w.
func NewWriter(w io.Writer, t Type) (io.WriteCloser, error) {
	switch t {
	case None:
		return nopWriteCloser{Writer: w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Bzip2:
		bw, err := dsbzip2.NewWriter(w, &dsbzip2.WriterConfig{Level: dsbzip2.BestCompression})
		if err != nil {
			return nil, err
		}
		return bw, nil
	case Xz:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, err
		}
		return xw, nil
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, err
		}
		return zw, nil
	default:
		return nil, &UnsupportedError{Codec: t.String()}
	}
}
