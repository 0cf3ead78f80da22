package rpmmd

import "io"

// PackageIterator joins the primary, filelists and other streams in
// lockstep, yielding one fully assembled Package per step. The join is
// positional: the Nth package of each stream must describe the same rpm,
// verified by pkgid and NEVRA. Content addressing is deliberately avoided;
// it would require indexing a whole stream before the first yield.
type PackageIterator struct {
	primary   *PrimaryReader
	filelists *FilelistsReader
	other     *OtherReader

	total   int
	yielded int
	closers []io.Closer
	done    bool
}

// NewPackageIterator couples three stream readers. The declared package
// counts of the roots must agree.
func NewPackageIterator(primary *PrimaryReader, filelists *FilelistsReader, other *OtherReader) (*PackageIterator, error) {
	if filelists.Count() != primary.Count() {
		return nil, &CountMismatchError{Record: MetadataFilelists, Declared: filelists.Count(), Observed: primary.Count()}
	}
	if other.Count() != primary.Count() {
		return nil, &CountMismatchError{Record: MetadataOther, Declared: other.Count(), Observed: primary.Count()}
	}
	return &PackageIterator{
		primary:   primary,
		filelists: filelists,
		other:     other,
		total:     primary.Count(),
	}, nil
}

// attachClosers hands the iterator ownership of the underlying streams so
// that Close releases them.
func (it *PackageIterator) attachClosers(closers ...io.Closer) {
	it.closers = append(it.closers, closers...)
}

// TotalPackages returns the package count declared by primary.xml.
func (it *PackageIterator) TotalPackages() int {
	return it.total
}

// RemainingPackages returns the declared count minus the packages yielded.
func (it *PackageIterator) RemainingPackages() int {
	return it.total - it.yielded
}

// Diagnostics returns the non-fatal oddities collected across all three
// streams.
func (it *PackageIterator) Diagnostics() []Diagnostic {
	var diags []Diagnostic
	diags = append(diags, it.primary.Diagnostics()...)
	diags = append(diags, it.filelists.Diagnostics()...)
	diags = append(diags, it.other.Diagnostics()...)
	return diags
}

// Next assembles and returns the next package. At the end of the streams it
// verifies that all three roots closed together and that the observed count
// matches the declared one, then returns io.EOF.
func (it *PackageIterator) Next() (*Package, error) {
	if it.done {
		return nil, io.EOF
	}

	pkg, err := it.primary.Next()
	if err == io.EOF {
		it.done = true
		if err := it.verifyEnd(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}

	fl, err := it.filelists.Next()
	if err == io.EOF {
		return nil, &CountMismatchError{Record: MetadataFilelists, Declared: it.total, Observed: it.yielded}
	}
	if err != nil {
		return nil, err
	}
	if err := checkJoin(MetadataFilelists, pkg, fl); err != nil {
		return nil, err
	}

	ot, err := it.other.Next()
	if err == io.EOF {
		return nil, &CountMismatchError{Record: MetadataOther, Declared: it.total, Observed: it.yielded}
	}
	if err != nil {
		return nil, err
	}
	if err := checkJoin(MetadataOther, pkg, ot); err != nil {
		return nil, err
	}

	pkg.Files = fl.Files
	pkg.Changelogs = ot.Changelogs
	it.yielded++
	return pkg, nil
}

// verifyEnd runs once primary is exhausted: filelists and other must be
// exhausted as well, and the observed count must match the declaration.
func (it *PackageIterator) verifyEnd() error {
	if extra, err := it.filelists.Next(); err == nil {
		return &StreamDesyncError{Stream: MetadataFilelists, ExpectedPkgid: "",
			GotPkgid: extra.PkgID(), GotNevra: extra.NEVRA()}
	} else if err != io.EOF {
		return err
	}
	if extra, err := it.other.Next(); err == nil {
		return &StreamDesyncError{Stream: MetadataOther, ExpectedPkgid: "",
			GotPkgid: extra.PkgID(), GotNevra: extra.NEVRA()}
	} else if err != io.EOF {
		return err
	}
	if it.yielded != it.total {
		return &CountMismatchError{Record: MetadataPrimary, Declared: it.total, Observed: it.yielded}
	}
	return nil
}

// Close releases the underlying streams. Early termination is allowed; no
// end-of-stream verification happens here beyond what Next already did.
func (it *PackageIterator) Close() error {
	it.done = true
	var first error
	for _, c := range it.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	it.closers = nil
	return first
}

// checkJoin verifies that a filelists or other record agrees with the
// primary record at the same position.
func checkJoin(stream string, primary, got *Package) error {
	if got.PkgID() != primary.PkgID() {
		return &StreamDesyncError{Stream: stream, ExpectedPkgid: primary.PkgID(),
			GotPkgid: got.PkgID(), GotNevra: got.NEVRA()}
	}
	if got.Name != primary.Name || got.Arch != primary.Arch || got.EVR != primary.EVR {
		return &StreamDesyncError{Stream: stream, ExpectedPkgid: primary.PkgID(),
			GotPkgid: got.PkgID(), GotNevra: got.NEVRA()}
	}
	return nil
}
