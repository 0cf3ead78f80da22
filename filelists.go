package rpmmd

import (
	"encoding/xml"
	"io"

	"github.com/ralt/rpmmd/internal/xmlutil"
)

// FilelistsReader decodes package file lists from a filelists.xml stream.
// Records carry only the join key (pkgid, name, arch, version) and the file
// entries; the rest of the Package is zero.
type FilelistsReader struct {
	streamReader
}

// NewFilelistsReader reads the document header of a filelists.xml stream.
func NewFilelistsReader(r io.Reader, opts ReadOptions) (*FilelistsReader, error) {
	d := xmlutil.NewDecoder(r)
	total, err := readHeader(d, MetadataFilelists, "filelists")
	if err != nil {
		return nil, err
	}
	return &FilelistsReader{streamReader{d: d, record: MetadataFilelists, total: total, opts: opts}}, nil
}

// Next returns the next partial record, or io.EOF at the end of the stream.
func (r *FilelistsReader) Next() (*Package, error) {
	if r.done {
		return nil, io.EOF
	}
	for {
		tok, err := r.d.Token()
		if err != nil {
			if err == io.EOF {
				r.done = true
				return nil, io.EOF
			}
			return nil, xmlError(r.record, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "package" {
				if err := r.unknown(r.d, t.Name.Local); err != nil {
					return nil, xmlError(r.record, err)
				}
				continue
			}
			return r.parsePackage(t)
		case xml.EndElement:
			if t.Name.Local == "filelists" {
				r.done = true
				return nil, io.EOF
			}
		}
	}
}

func (r *FilelistsReader) parsePackage(start xml.StartElement) (*Package, error) {
	pkg, err := packageFromJoinAttrs(r.record, start)
	if err != nil {
		return nil, err
	}
	for {
		tok, err := r.d.Token()
		if err != nil {
			return nil, xmlError(r.record, err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "package" {
				return pkg, nil
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "version":
				evr, err := parseEVRAttrs(r.record, t)
				if err != nil {
					return nil, err
				}
				pkg.EVR = evr
				if err := r.d.Skip(); err != nil {
					return nil, xmlError(r.record, err)
				}
			case "file":
				f, err := r.parseFile(t)
				if err != nil {
					return nil, err
				}
				pkg.Files = append(pkg.Files, f)
			default:
				if err := r.unknown(r.d, t.Name.Local); err != nil {
					return nil, xmlError(r.record, err)
				}
			}
		}
	}
}

func (r *FilelistsReader) parseFile(se xml.StartElement) (PackageFile, error) {
	var f PackageFile
	if raw, ok := xmlutil.GetAttr(se, "type"); ok {
		ftype, err := parseFileType(raw)
		if err != nil {
			return f, invalidValue(r.record, "package/file/type", raw, nil)
		}
		f.Type = ftype
	}
	path, err := xmlutil.ReadText(r.d, se)
	if err != nil {
		return f, xmlError(r.record, err)
	}
	f.Path = path
	return f, nil
}

// packageFromJoinAttrs builds a partial Package from the pkgid/name/arch
// attributes shared by filelists and other package elements.
func packageFromJoinAttrs(record string, se xml.StartElement) (*Package, error) {
	pkgid, ok := xmlutil.GetAttr(se, "pkgid")
	if !ok {
		return nil, missingField(record, "package/pkgid")
	}
	name, ok := xmlutil.GetAttr(se, "name")
	if !ok {
		return nil, missingField(record, "package/name")
	}
	arch, ok := xmlutil.GetAttr(se, "arch")
	if !ok {
		return nil, missingField(record, "package/arch")
	}
	return &Package{Name: name, Arch: arch, Checksum: Checksum{Value: pkgid}}, nil
}

// FilelistsWriter encodes package file lists into a filelists.xml stream.
type FilelistsWriter struct {
	x        *xmlutil.Writer
	declared int
	written  int
}

// NewFilelistsWriter writes the filelists.xml header declaring numPackages.
func NewFilelistsWriter(w io.Writer, numPackages int) (*FilelistsWriter, error) {
	x := xmlutil.NewWriter(w)
	x.Decl()
	x.Start("filelists",
		xmlutil.Attr{Name: "xmlns", Value: xmlNSFilelists},
		xmlutil.Attr{Name: "packages", Value: itoa(numPackages)})
	if err := x.Err(); err != nil {
		return nil, err
	}
	return &FilelistsWriter{x: x, declared: numPackages}, nil
}

// WritePackage emits one package's file list.
func (w *FilelistsWriter) WritePackage(p *Package) error {
	x := w.x
	x.Start("package",
		xmlutil.Attr{Name: "pkgid", Value: p.PkgID()},
		xmlutil.Attr{Name: "name", Value: p.Name},
		xmlutil.Attr{Name: "arch", Value: p.Arch})
	x.Empty("version", evrAttrs(p.EVR)...)
	for _, f := range p.Files {
		writeFileElement(x, f)
	}
	x.End()
	w.written++
	return x.Err()
}

// Close emits the closing root tag and flushes.
func (w *FilelistsWriter) Close() error {
	if w.written != w.declared {
		return &CountMismatchError{Record: MetadataFilelists, Declared: w.declared, Observed: w.written}
	}
	w.x.End()
	w.x.Newline()
	return w.x.Flush()
}
