package rpmmd

import (
	"encoding/xml"
	"io"
	"strconv"

	"github.com/ralt/rpmmd/internal/xmlutil"
)

// OtherReader decodes package changelogs from an other.xml stream. Records
// carry only the join key and the changelog entries.
type OtherReader struct {
	streamReader
}

// NewOtherReader reads the document header of an other.xml stream.
func NewOtherReader(r io.Reader, opts ReadOptions) (*OtherReader, error) {
	d := xmlutil.NewDecoder(r)
	total, err := readHeader(d, MetadataOther, "otherdata")
	if err != nil {
		return nil, err
	}
	return &OtherReader{streamReader{d: d, record: MetadataOther, total: total, opts: opts}}, nil
}

// Next returns the next partial record, or io.EOF at the end of the stream.
func (r *OtherReader) Next() (*Package, error) {
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
			if t.Name.Local == "otherdata" {
				r.done = true
				return nil, io.EOF
			}
		}
	}
}

func (r *OtherReader) parsePackage(start xml.StartElement) (*Package, error) {
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
			case "changelog":
				c, err := r.parseChangelog(t)
				if err != nil {
					return nil, err
				}
				pkg.Changelogs = append(pkg.Changelogs, c)
			default:
				if err := r.unknown(r.d, t.Name.Local); err != nil {
					return nil, xmlError(r.record, err)
				}
			}
		}
	}
}

func (r *OtherReader) parseChangelog(se xml.StartElement) (Changelog, error) {
	var c Changelog
	author, ok := xmlutil.GetAttr(se, "author")
	if !ok {
		return c, missingField(r.record, "package/changelog/author")
	}
	c.Author = author
	rawDate, ok := xmlutil.GetAttr(se, "date")
	if !ok {
		return c, missingField(r.record, "package/changelog/date")
	}
	date, err := strconv.ParseInt(rawDate, 10, 64)
	if err != nil {
		return c, invalidValue(r.record, "package/changelog/date", rawDate, err)
	}
	c.Date = date
	text, err := xmlutil.ReadText(r.d, se)
	if err != nil {
		return c, xmlError(r.record, err)
	}
	c.Text = text
	return c, nil
}

// OtherWriter encodes package changelogs into an other.xml stream.
type OtherWriter struct {
	x        *xmlutil.Writer
	declared int
	written  int
}

// NewOtherWriter writes the other.xml header declaring numPackages.
func NewOtherWriter(w io.Writer, numPackages int) (*OtherWriter, error) {
	x := xmlutil.NewWriter(w)
	x.Decl()
	x.Start("otherdata",
		xmlutil.Attr{Name: "xmlns", Value: xmlNSOther},
		xmlutil.Attr{Name: "packages", Value: itoa(numPackages)})
	if err := x.Err(); err != nil {
		return nil, err
	}
	return &OtherWriter{x: x, declared: numPackages}, nil
}

// WritePackage emits one package's changelog entries in source order.
func (w *OtherWriter) WritePackage(p *Package) error {
	x := w.x
	x.Start("package",
		xmlutil.Attr{Name: "pkgid", Value: p.PkgID()},
		xmlutil.Attr{Name: "name", Value: p.Name},
		xmlutil.Attr{Name: "arch", Value: p.Arch})
	x.Empty("version", evrAttrs(p.EVR)...)
	for _, c := range p.Changelogs {
		x.Text("changelog", c.Text,
			xmlutil.Attr{Name: "author", Value: c.Author},
			xmlutil.Attr{Name: "date", Value: itoa64(c.Date)})
	}
	x.End()
	w.written++
	return x.Err()
}

// Close emits the closing root tag and flushes.
func (w *OtherWriter) Close() error {
	if w.written != w.declared {
		return &CountMismatchError{Record: MetadataOther, Declared: w.declared, Observed: w.written}
	}
	w.x.End()
	w.x.Newline()
	return w.x.Flush()
}
