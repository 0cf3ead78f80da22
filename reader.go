package rpmmd

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ralt/rpmmd/backend"
	"github.com/ralt/rpmmd/internal/checksum"
	"github.com/ralt/rpmmd/internal/compress"
)

// RepositoryReader opens a repository root and exposes streaming iteration
// over its packages and advisories.
type RepositoryReader struct {
	b      backend.Backend
	repomd *Repomd
	opts   ReadOptions
}

// OpenRepository reads <root>/repodata/repomd.xml from the local filesystem.
func OpenRepository(root string) (*RepositoryReader, error) {
	return OpenRepositoryBackend(context.Background(), backend.NewFSBackend(root), ReadOptions{})
}

// OpenRepositoryBackend reads repodata/repomd.xml from the given backend.
func OpenRepositoryBackend(ctx context.Context, b backend.Backend, opts ReadOptions) (*RepositoryReader, error) {
	rc, err := b.Open(ctx, "repodata/repomd.xml")
	if err != nil {
		return nil, ioError("repodata/repomd.xml", err)
	}
	defer rc.Close()

	repomd, err := ParseRepomd(rc, opts)
	if err != nil {
		return nil, err
	}
	return &RepositoryReader{b: b, repomd: repomd, opts: opts}, nil
}

// Repomd returns the decoded repository index.
func (r *RepositoryReader) Repomd() *Repomd {
	return r.repomd
}

// resolveHref applies the record's location base, if any, to its href.
func resolveHref(rec *RepomdRecord) string {
	if rec.LocationBase == "" {
		return rec.LocationHref
	}
	return strings.TrimSuffix(rec.LocationBase, "/") + "/" + rec.LocationHref
}

// openRecord opens the raw stream of a record and wraps it in the
// compression envelope selected by the href extension.
func (r *RepositoryReader) openRecord(ctx context.Context, mdtype string) (io.ReadCloser, []io.Closer, error) {
	rec := r.repomd.Record(mdtype)
	if rec == nil {
		return nil, nil, missingMetadata(mdtype)
	}
	href := resolveHref(rec)
	raw, err := r.b.Open(ctx, href)
	if err != nil {
		return nil, nil, ioError(href, err)
	}
	decompressed, err := compress.OpenReader(raw, rec.LocationHref)
	if err != nil {
		raw.Close()
		return nil, nil, wrapCompressError(href, err)
	}
	return decompressed, []io.Closer{decompressed, raw}, nil
}

// IterPackages opens the three package streams and returns their join. The
// iterator owns the streams; Close releases them.
func (r *RepositoryReader) IterPackages(ctx context.Context) (*PackageIterator, error) {
	var closers []io.Closer
	fail := func(err error) (*PackageIterator, error) {
		for _, c := range closers {
			c.Close()
		}
		return nil, err
	}

	primaryStream, cs, err := r.openRecord(ctx, MetadataPrimary)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, cs...)
	filelistsStream, cs, err := r.openRecord(ctx, MetadataFilelists)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, cs...)
	otherStream, cs, err := r.openRecord(ctx, MetadataOther)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, cs...)

	primary, err := NewPrimaryReader(primaryStream, r.opts)
	if err != nil {
		return fail(err)
	}
	filelists, err := NewFilelistsReader(filelistsStream, r.opts)
	if err != nil {
		return fail(err)
	}
	other, err := NewOtherReader(otherStream, r.opts)
	if err != nil {
		return fail(err)
	}

	it, err := NewPackageIterator(primary, filelists, other)
	if err != nil {
		return fail(err)
	}
	it.attachClosers(closers...)
	return it, nil
}

// IterAdvisories opens the updateinfo stream, when the repository has one.
func (r *RepositoryReader) IterAdvisories(ctx context.Context) (*UpdateinfoReader, error) {
	stream, closers, err := r.openRecord(ctx, MetadataUpdateinfo)
	if err != nil {
		return nil, err
	}
	ur, err := NewUpdateinfoReader(stream, r.opts)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, err
	}
	ur.attachClosers(closers...)
	return ur, nil
}

// VerifyMetadata fully consumes every record's stream and compares sizes and
// checksums against the repomd.xml declarations. This precludes streaming,
// so it is separate from IterPackages.
func (r *RepositoryReader) VerifyMetadata(ctx context.Context) error {
	for i := range r.repomd.Records {
		rec := &r.repomd.Records[i]
		if err := r.verifyRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *RepositoryReader) verifyRecord(ctx context.Context, rec *RepomdRecord) error {
	href := resolveHref(rec)

	h, err := rec.Checksum.Type.NewHash()
	if err != nil {
		return err
	}
	raw, err := r.b.Open(ctx, href)
	if err != nil {
		return ioError(href, err)
	}
	defer raw.Close()

	size, digest, err := checksum.Digest(raw, h)
	if err != nil {
		return ioError(href, err)
	}
	if digest != rec.Checksum.Value {
		return &ChecksumMismatchError{Path: href, Expected: rec.Checksum.Value, Actual: digest}
	}
	if rec.Size > 0 && size != rec.Size {
		return &ChecksumMismatchError{Path: href,
			Expected: "size " + itoa64(rec.Size), Actual: "size " + itoa64(size)}
	}

	if rec.OpenChecksum.Type == "" {
		return nil
	}
	oh, err := rec.OpenChecksum.Type.NewHash()
	if err != nil {
		return err
	}
	raw2, err := r.b.Open(ctx, href)
	if err != nil {
		return ioError(href, err)
	}
	defer raw2.Close()
	decompressed, err := compress.OpenReader(raw2, rec.LocationHref)
	if err != nil {
		return wrapCompressError(href, err)
	}
	defer decompressed.Close()

	openSize, openDigest, err := checksum.Digest(decompressed, oh)
	if err != nil {
		return ioError(href, err)
	}
	if openDigest != rec.OpenChecksum.Value {
		return &ChecksumMismatchError{Path: href, Expected: rec.OpenChecksum.Value, Actual: openDigest}
	}
	if rec.OpenSize > 0 && openSize != rec.OpenSize {
		return &ChecksumMismatchError{Path: href,
			Expected: "open-size " + itoa64(rec.OpenSize), Actual: "open-size " + itoa64(openSize)}
	}
	logrus.WithField("path", href).Debug("Metadata checksum verified")
	return nil
}

// VerifyAndIterPackages verifies every metadata file against repomd.xml
// before opening the package iterator.
func (r *RepositoryReader) VerifyAndIterPackages(ctx context.Context) (*PackageIterator, error) {
	if err := r.VerifyMetadata(ctx); err != nil {
		return nil, err
	}
	return r.IterPackages(ctx)
}

func wrapCompressError(path string, err error) error {
	var unsupported *compress.UnsupportedError
	if errors.As(err, &unsupported) {
		return &MetadataError{Kind: ErrUnsupportedCompression, Path: path, Detail: unsupported.Codec}
	}
	return ioError(path, err)
}
