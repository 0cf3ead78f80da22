package rpmmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ralt/rpmmd/internal/checksum"
	"github.com/ralt/rpmmd/internal/compress"
)

// CompressionType selects the envelope applied to metadata files.
type CompressionType = compress.Type

const (
	CompressionNone   = compress.None
	CompressionGzip   = compress.Gzip
	CompressionBzip2  = compress.Bzip2
	CompressionXz     = compress.Xz
	CompressionZstd   = compress.Zstd
	CompressionZchunk = compress.Zchunk
)

// RepositoryOptions configures a RepositoryWriter.
type RepositoryOptions struct {
	// MetadataChecksumType is used for the checksums recorded in
	// repomd.xml. Defaults to sha256.
	MetadataChecksumType ChecksumType

	// PackageChecksumType is the pkgid algorithm packages are expected to
	// carry; records with a different type are rejected. Defaults to sha256.
	PackageChecksumType ChecksumType

	// Compression is applied to each metadata file.
	Compression CompressionType

	// SimpleMetadataFilenames emits "primary.xml.gz" style names instead of
	// prefixing the open checksum.
	SimpleMetadataFilenames bool

	// Revision is stamped into repomd.xml; defaults to the current unix
	// time.
	Revision string

	RepoTags    []string
	ContentTags []string
	DistroTags  []DistroTag
}

// DefaultRepositoryOptions returns the canonical writer configuration:
// sha256 checksums and gzip compression.
func DefaultRepositoryOptions() RepositoryOptions {
	return RepositoryOptions{
		MetadataChecksumType: ChecksumSHA256,
		PackageChecksumType:  ChecksumSHA256,
		Compression:          CompressionGzip,
	}
}

func (o RepositoryOptions) withDefaults() RepositoryOptions {
	if o.MetadataChecksumType == "" {
		o.MetadataChecksumType = ChecksumSHA256
	}
	if o.PackageChecksumType == "" {
		o.PackageChecksumType = ChecksumSHA256
	}
	if o.Revision == "" {
		o.Revision = itoa64(time.Now().Unix())
	}
	return o
}

// mdFile is one metadata output file with its checksum plumbing: the XML
// emitter writes through the open-checksum sink into the compressor, which
// writes through the compressed-checksum sink into the staging file.
type mdFile struct {
	mdtype   string
	path     string
	file     *os.File
	compSink *checksum.Sink
	comp     io.WriteCloser
	openSink *checksum.Sink
	closed   bool
}

func newMDFile(dir, mdtype string, compression CompressionType, ctype ChecksumType) (*mdFile, error) {
	name := mdtype + ".xml" + compression.Extension()
	path := filepath.Join(dir, name)

	compHash, err := ctype.NewHash()
	if err != nil {
		return nil, err
	}
	openHash, err := ctype.NewHash()
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, ioError(path, err)
	}
	compSink := checksum.NewSink(f, compHash)
	comp, err := compress.NewWriter(compSink, compression)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, wrapCompressError(path, err)
	}
	return &mdFile{
		mdtype:   mdtype,
		path:     path,
		file:     f,
		compSink: compSink,
		comp:     comp,
		openSink: checksum.NewSink(comp, openHash),
	}, nil
}

// finalize flushes the codec trailer, syncs the file, and produces the
// repomd record for the finished stream.
func (m *mdFile) finalize(ctype ChecksumType) (RepomdRecord, error) {
	var rec RepomdRecord
	if err := m.comp.Close(); err != nil {
		return rec, ioError(m.path, err)
	}
	if err := m.file.Sync(); err != nil {
		return rec, ioError(m.path, err)
	}
	if err := m.file.Close(); err != nil {
		return rec, ioError(m.path, err)
	}
	m.closed = true

	return RepomdRecord{
		Type:         m.mdtype,
		Timestamp:    time.Now().Unix(),
		Size:         m.compSink.Size(),
		Checksum:     Checksum{Type: ctype, Value: m.compSink.HexDigest()},
		OpenSize:     m.openSink.Size(),
		OpenChecksum: Checksum{Type: ctype, Value: m.openSink.HexDigest()},
	}, nil
}

func (m *mdFile) abort() {
	if !m.closed {
		m.comp.Close()
		m.file.Close()
	}
}

// RepositoryWriter produces a repository under a root directory. Metadata is
// staged in a temporary directory and repomd.xml is published last with a
// rename, so readers polling the repository never observe a partial state.
type RepositoryWriter struct {
	root    string
	staging string
	opts    RepositoryOptions

	declared int
	added    int

	primaryFile   *mdFile
	filelistsFile *mdFile
	otherFile     *mdFile

	primary   *PrimaryWriter
	filelists *FilelistsWriter
	other     *OtherWriter

	updateinfoFile *mdFile
	updateinfo     *UpdateinfoWriter

	extraRecords []RepomdRecord
	finished     bool
}

// NewRepositoryWriter creates a writer with the default options. The package
// count must be known up front; it is written into each stream's root
// element.
func NewRepositoryWriter(root string, numPackages int) (*RepositoryWriter, error) {
	return NewRepositoryWriterOptions(root, numPackages, DefaultRepositoryOptions())
}

// NewRepositoryWriterOptions creates a writer with explicit options.
func NewRepositoryWriterOptions(root string, numPackages int, opts RepositoryOptions) (*RepositoryWriter, error) {
	opts = opts.withDefaults()
	if opts.Compression == CompressionZchunk {
		return nil, &MetadataError{Kind: ErrUnsupportedCompression, Detail: "zchunk"}
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, ioError(root, err)
	}
	staging, err := os.MkdirTemp(root, ".repodata-")
	if err != nil {
		return nil, ioError(root, err)
	}

	w := &RepositoryWriter{
		root:     root,
		staging:  staging,
		opts:     opts,
		declared: numPackages,
	}
	fail := func(err error) (*RepositoryWriter, error) {
		w.discard()
		return nil, err
	}

	if w.primaryFile, err = newMDFile(staging, MetadataPrimary, opts.Compression, opts.MetadataChecksumType); err != nil {
		return fail(err)
	}
	if w.filelistsFile, err = newMDFile(staging, MetadataFilelists, opts.Compression, opts.MetadataChecksumType); err != nil {
		return fail(err)
	}
	if w.otherFile, err = newMDFile(staging, MetadataOther, opts.Compression, opts.MetadataChecksumType); err != nil {
		return fail(err)
	}

	if w.primary, err = NewPrimaryWriter(w.primaryFile.openSink, numPackages); err != nil {
		return fail(err)
	}
	if w.filelists, err = NewFilelistsWriter(w.filelistsFile.openSink, numPackages); err != nil {
		return fail(err)
	}
	if w.other, err = NewOtherWriter(w.otherFile.openSink, numPackages); err != nil {
		return fail(err)
	}
	return w, nil
}

// AddPackage fans one package record out to the three metadata streams.
// Records must arrive in the order a later reader should recover.
func (w *RepositoryWriter) AddPackage(p *Package) error {
	if w.finished {
		return fmt.Errorf("writer is finished")
	}
	if w.added >= w.declared {
		return &CountMismatchError{Record: MetadataPrimary, Declared: w.declared, Observed: w.added + 1}
	}
	if p.Checksum.Value == "" {
		return missingField(MetadataPrimary, "package/checksum")
	}
	if p.Checksum.Type != w.opts.PackageChecksumType {
		return invalidValue(MetadataPrimary, "package/checksum/type", string(p.Checksum.Type), nil)
	}

	if err := w.primary.WritePackage(p); err != nil {
		return err
	}
	if err := w.filelists.WritePackage(p); err != nil {
		return err
	}
	if err := w.other.WritePackage(p); err != nil {
		return err
	}
	w.added++
	return nil
}

// AddAdvisory appends one erratum to updateinfo.xml, creating the stream on
// first use.
func (w *RepositoryWriter) AddAdvisory(rec *UpdateRecord) error {
	if w.finished {
		return fmt.Errorf("writer is finished")
	}
	if w.updateinfo == nil {
		f, err := newMDFile(w.staging, MetadataUpdateinfo, w.opts.Compression, w.opts.MetadataChecksumType)
		if err != nil {
			return err
		}
		uw, err := NewUpdateinfoWriter(f.openSink)
		if err != nil {
			f.abort()
			return err
		}
		w.updateinfoFile = f
		w.updateinfo = uw
	}
	return w.updateinfo.WriteRecord(rec)
}

// AddRepomdRecord registers an auxiliary, externally produced repomd entry
// (e.g. module metadata) to be listed alongside the generated streams.
func (w *RepositoryWriter) AddRepomdRecord(rec RepomdRecord) {
	w.extraRecords = append(w.extraRecords, rec)
}

// Finish closes the three streams, moves them into repodata/ and publishes
// repomd.xml atomically. After Finish the writer cannot be reused.
func (w *RepositoryWriter) Finish() error {
	if w.finished {
		return fmt.Errorf("writer is finished")
	}
	if w.added != w.declared {
		w.discard()
		return &CountMismatchError{Record: MetadataPrimary, Declared: w.declared, Observed: w.added}
	}

	err := w.publish()
	if err != nil {
		w.discard()
		return err
	}
	w.finished = true
	os.RemoveAll(w.staging)
	logrus.WithFields(logrus.Fields{
		"root":     w.root,
		"packages": w.added,
	}).Info("Repository metadata written")
	return nil
}

func (w *RepositoryWriter) publish() error {
	if err := w.primary.Close(); err != nil {
		return err
	}
	if err := w.filelists.Close(); err != nil {
		return err
	}
	if err := w.other.Close(); err != nil {
		return err
	}

	records := make([]RepomdRecord, 0, 4)
	for _, f := range []*mdFile{w.primaryFile, w.filelistsFile, w.otherFile} {
		rec, err := f.finalize(w.opts.MetadataChecksumType)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if w.updateinfo != nil {
		if err := w.updateinfo.Close(); err != nil {
			return err
		}
		rec, err := w.updateinfoFile.finalize(w.opts.MetadataChecksumType)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	repodataDir := filepath.Join(w.root, "repodata")
	if err := os.MkdirAll(repodataDir, 0755); err != nil {
		return ioError(repodataDir, err)
	}

	repomd := &Repomd{
		Revision:    w.opts.Revision,
		RepoTags:    w.opts.RepoTags,
		ContentTags: w.opts.ContentTags,
		DistroTags:  w.opts.DistroTags,
	}
	files := []*mdFile{w.primaryFile, w.filelistsFile, w.otherFile}
	if w.updateinfo != nil {
		files = append(files, w.updateinfoFile)
	}
	names := make([]string, len(files))
	for i, f := range files {
		name := f.mdtype + ".xml" + w.opts.Compression.Extension()
		if !w.opts.SimpleMetadataFilenames {
			name = records[i].OpenChecksum.Value + "-" + name
		}
		names[i] = name
		records[i].LocationHref = "repodata/" + name
		repomd.AddRecord(records[i])
	}
	for _, rec := range w.extraRecords {
		repomd.AddRecord(rec)
	}

	// repomd.xml is the repository's commit point. Stage it fully before
	// moving anything, then rename it into place last, so a failure at any
	// step leaves the previous repomd.xml untouched.
	tmpPath := filepath.Join(repodataDir, ".repomd.xml.tmp")
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return ioError(tmpPath, err)
	}
	if err := WriteRepomd(tmp, repomd); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return ioError(tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return ioError(tmpPath, err)
	}

	for i, f := range files {
		final := filepath.Join(repodataDir, names[i])
		if err := os.Rename(f.path, final); err != nil {
			os.Remove(tmpPath)
			return ioError(final, err)
		}
	}
	if err := os.Rename(tmpPath, filepath.Join(repodataDir, "repomd.xml")); err != nil {
		os.Remove(tmpPath)
		return ioError(tmpPath, err)
	}
	return nil
}

// discard closes any open streams and removes the staging directory.
func (w *RepositoryWriter) discard() {
	for _, f := range []*mdFile{w.primaryFile, w.filelistsFile, w.otherFile, w.updateinfoFile} {
		if f != nil {
			f.abort()
		}
	}
	if w.staging != "" {
		os.RemoveAll(w.staging)
	}
}

// Close discards the writer if Finish has not run; the previous repository
// state stays intact.
func (w *RepositoryWriter) Close() error {
	if !w.finished {
		w.discard()
	}
	return nil
}
