package rpmmd

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/ralt/rpmmd/internal/xmlutil"
)

// PrimaryReader decodes package records from a primary.xml stream.
type PrimaryReader struct {
	streamReader
}

// NewPrimaryReader reads the document header of a primary.xml stream and
// positions the reader before the first package.
func NewPrimaryReader(r io.Reader, opts ReadOptions) (*PrimaryReader, error) {
	d := xmlutil.NewDecoder(r)
	total, err := readHeader(d, MetadataPrimary, "metadata")
	if err != nil {
		return nil, err
	}
	return &PrimaryReader{streamReader{d: d, record: MetadataPrimary, total: total, opts: opts}}, nil
}

// Next returns the next package record, or io.EOF after the closing root
// tag has been consumed.
func (r *PrimaryReader) Next() (*Package, error) {
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
			if t.Name.Local == "metadata" {
				r.done = true
				return nil, io.EOF
			}
		}
	}
}

func (r *PrimaryReader) parsePackage(start xml.StartElement) (*Package, error) {
	if ptype, ok := xmlutil.GetAttr(start, "type"); ok && ptype != "rpm" {
		return nil, invalidValue(r.record, "package/type", ptype, nil)
	}

	pkg := &Package{}
	for {
		tok, err := r.d.Token()
		if err != nil {
			return nil, xmlError(r.record, err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "package" {
				if pkg.Name == "" {
					return nil, missingField(r.record, "package/name")
				}
				if pkg.Checksum.Value == "" {
					return nil, missingField(r.record, "package/checksum")
				}
				return pkg, nil
			}
		case xml.StartElement:
			if err := r.parsePackageChild(pkg, t); err != nil {
				return nil, err
			}
		}
	}
}

func (r *PrimaryReader) parsePackageChild(pkg *Package, se xml.StartElement) error {
	readText := func() (string, error) {
		s, err := xmlutil.ReadText(r.d, se)
		if err != nil {
			return "", xmlError(r.record, err)
		}
		return s, nil
	}

	var err error
	switch se.Name.Local {
	case "name":
		pkg.Name, err = readText()
	case "arch":
		pkg.Arch, err = readText()
	case "version":
		pkg.EVR, err = parseEVRAttrs(r.record, se)
		if err == nil {
			err = r.d.Skip()
		}
	case "checksum":
		rawType, ok := xmlutil.GetAttr(se, "type")
		if !ok {
			return missingField(r.record, "package/checksum/type")
		}
		ctype, perr := ParseChecksumType(rawType, r.opts.RejectLegacySHA)
		if perr != nil {
			return perr
		}
		value, terr := readText()
		if terr != nil {
			return terr
		}
		pkg.Checksum = Checksum{Type: ctype, Value: value}
	case "summary":
		pkg.Summary, err = readText()
	case "description":
		pkg.Description, err = readText()
	case "packager":
		pkg.Packager, err = readText()
	case "url":
		pkg.URL, err = readText()
	case "time":
		if pkg.Time.File, err = parseInt64Attr(r.record, "package/time", se, "file"); err != nil {
			return err
		}
		if pkg.Time.Build, err = parseInt64Attr(r.record, "package/time", se, "build"); err != nil {
			return err
		}
		err = r.d.Skip()
	case "size":
		if pkg.Size.Package, err = parseUint64Attr(r.record, "package/size", se, "package"); err != nil {
			return err
		}
		if pkg.Size.Installed, err = parseUint64Attr(r.record, "package/size", se, "installed"); err != nil {
			return err
		}
		if pkg.Size.Archive, err = parseUint64Attr(r.record, "package/size", se, "archive"); err != nil {
			return err
		}
		err = r.d.Skip()
	case "location":
		href, ok := xmlutil.GetAttr(se, "href")
		if !ok {
			return missingField(r.record, "package/location/href")
		}
		pkg.LocationHref = href
		if base, ok := xmlutil.GetAttr(se, "xml:base"); ok {
			pkg.LocationBase = base
		} else if base, ok := xmlutil.GetAttr(se, "base"); ok {
			pkg.LocationBase = base
		}
		err = r.d.Skip()
	case "format":
		return r.parseFormat(pkg)
	default:
		err = r.unknown(r.d, se.Name.Local)
	}
	if err != nil {
		if _, ok := err.(*MetadataError); ok {
			return err
		}
		return xmlError(r.record, err)
	}
	return nil
}

func (r *PrimaryReader) parseFormat(pkg *Package) error {
	for {
		tok, err := r.d.Token()
		if err != nil {
			return xmlError(r.record, err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "format" {
				return nil
			}
		case xml.StartElement:
			if err := r.parseFormatChild(pkg, t); err != nil {
				return err
			}
		}
	}
}

func (r *PrimaryReader) parseFormatChild(pkg *Package, se xml.StartElement) error {
	readText := func() (string, error) {
		s, err := xmlutil.ReadText(r.d, se)
		if err != nil {
			return "", xmlError(r.record, err)
		}
		return s, nil
	}

	var err error
	switch se.Name.Local {
	case "license":
		pkg.License, err = readText()
	case "vendor":
		pkg.Vendor, err = readText()
	case "group":
		pkg.Group, err = readText()
	case "buildhost":
		pkg.BuildHost, err = readText()
	case "sourcerpm":
		pkg.SourceRPM, err = readText()
	case "header-range":
		if pkg.HeaderRange.Start, err = parseUint64Attr(r.record, "package/format/header-range", se, "start"); err != nil {
			return err
		}
		if pkg.HeaderRange.End, err = parseUint64Attr(r.record, "package/format/header-range", se, "end"); err != nil {
			return err
		}
		err = r.d.Skip()
	case "provides":
		pkg.Provides, err = r.parseRequirementList(se)
	case "requires":
		pkg.Requires, err = r.parseRequirementList(se)
	case "conflicts":
		pkg.Conflicts, err = r.parseRequirementList(se)
	case "obsoletes":
		pkg.Obsoletes, err = r.parseRequirementList(se)
	case "suggests":
		pkg.Suggests, err = r.parseRequirementList(se)
	case "enhances":
		pkg.Enhances, err = r.parseRequirementList(se)
	case "recommends":
		pkg.Recommends, err = r.parseRequirementList(se)
	case "supplements":
		pkg.Supplements, err = r.parseRequirementList(se)
	case "file":
		// The authoritative file list lives in filelists.xml; the subset
		// repeated here is skipped to avoid double entries on the join.
		err = r.d.Skip()
	default:
		err = r.unknown(r.d, se.Name.Local)
	}
	if err != nil {
		if _, ok := err.(*MetadataError); ok {
			return err
		}
		return xmlError(r.record, err)
	}
	return nil
}

func (r *PrimaryReader) parseRequirementList(container xml.StartElement) ([]Requirement, error) {
	var list []Requirement
	for {
		tok, err := r.d.Token()
		if err != nil {
			return nil, xmlError(r.record, err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == container.Name.Local {
				return list, nil
			}
		case xml.StartElement:
			if t.Name.Local != "entry" {
				if err := r.unknown(r.d, t.Name.Local); err != nil {
					return nil, xmlError(r.record, err)
				}
				continue
			}
			req, err := r.parseRequirement(container.Name.Local, t)
			if err != nil {
				return nil, err
			}
			list = append(list, req)
			if err := r.d.Skip(); err != nil {
				return nil, xmlError(r.record, err)
			}
		}
	}
}

func (r *PrimaryReader) parseRequirement(section string, se xml.StartElement) (Requirement, error) {
	var req Requirement
	name, ok := xmlutil.GetAttr(se, "name")
	if !ok {
		return req, missingField(r.record, section+"/entry/name")
	}
	req.Name = name
	if flags, ok := xmlutil.GetAttr(se, "flags"); ok {
		if !validFlag(flags) {
			return req, invalidValue(r.record, section+"/entry/flags", flags, nil)
		}
		req.Flags = flags
	}
	req.Epoch, _ = xmlutil.GetAttr(se, "epoch")
	req.Version, _ = xmlutil.GetAttr(se, "ver")
	req.Release, _ = xmlutil.GetAttr(se, "rel")
	if pre, ok := xmlutil.GetAttr(se, "pre"); ok {
		req.Pre = pre == "1" || strings.EqualFold(pre, "true")
	}
	return req, nil
}

// PrimaryWriter encodes package records into a primary.xml stream.
type PrimaryWriter struct {
	x        *xmlutil.Writer
	declared int
	written  int
}

// NewPrimaryWriter writes the primary.xml header declaring numPackages.
func NewPrimaryWriter(w io.Writer, numPackages int) (*PrimaryWriter, error) {
	x := xmlutil.NewWriter(w)
	x.Decl()
	x.Start("metadata",
		xmlutil.Attr{Name: "xmlns", Value: xmlNSCommon},
		xmlutil.Attr{Name: "xmlns:rpm", Value: xmlNSRpm},
		xmlutil.Attr{Name: "packages", Value: itoa(numPackages)})
	if err := x.Err(); err != nil {
		return nil, err
	}
	return &PrimaryWriter{x: x, declared: numPackages}, nil
}

// WritePackage emits one package record.
func (w *PrimaryWriter) WritePackage(p *Package) error {
	x := w.x
	x.Start("package", xmlutil.Attr{Name: "type", Value: "rpm"})
	x.Text("name", p.Name)
	x.Text("arch", p.Arch)
	x.Empty("version", evrAttrs(p.EVR)...)
	x.Text("checksum", p.Checksum.Value,
		xmlutil.Attr{Name: "type", Value: string(p.Checksum.Type)},
		xmlutil.Attr{Name: "pkgid", Value: "YES"})
	x.Text("summary", p.Summary)
	x.Text("description", p.Description)
	x.Text("packager", p.Packager)
	x.Text("url", p.URL)
	x.Empty("time",
		xmlutil.Attr{Name: "file", Value: itoa64(p.Time.File)},
		xmlutil.Attr{Name: "build", Value: itoa64(p.Time.Build)})
	x.Empty("size",
		xmlutil.Attr{Name: "package", Value: utoa64(p.Size.Package)},
		xmlutil.Attr{Name: "installed", Value: utoa64(p.Size.Installed)},
		xmlutil.Attr{Name: "archive", Value: utoa64(p.Size.Archive)})
	x.Empty("location", locationAttrs(p.LocationHref, p.LocationBase)...)

	x.Start("format")
	x.Text("rpm:license", p.License)
	x.Text("rpm:vendor", p.Vendor)
	x.Text("rpm:group", p.Group)
	x.Text("rpm:buildhost", p.BuildHost)
	x.Text("rpm:sourcerpm", p.SourceRPM)
	x.Empty("rpm:header-range",
		xmlutil.Attr{Name: "start", Value: utoa64(p.HeaderRange.Start)},
		xmlutil.Attr{Name: "end", Value: utoa64(p.HeaderRange.End)})
	writeRequirementSection(x, "rpm:provides", p.Provides)
	writeRequirementSection(x, "rpm:requires", p.Requires)
	writeRequirementSection(x, "rpm:conflicts", p.Conflicts)
	writeRequirementSection(x, "rpm:obsoletes", p.Obsoletes)
	writeRequirementSection(x, "rpm:suggests", p.Suggests)
	writeRequirementSection(x, "rpm:enhances", p.Enhances)
	writeRequirementSection(x, "rpm:recommends", p.Recommends)
	writeRequirementSection(x, "rpm:supplements", p.Supplements)
	for _, f := range p.Files {
		if primaryFileSubset(f) {
			writeFileElement(x, f)
		}
	}
	x.End() // format

	x.End() // package
	w.written++
	return x.Err()
}

// Close emits the closing root tag and flushes. The number of records
// written must match the declared count.
func (w *PrimaryWriter) Close() error {
	if w.written != w.declared {
		return &CountMismatchError{Record: MetadataPrimary, Declared: w.declared, Observed: w.written}
	}
	w.x.End()
	w.x.Newline()
	return w.x.Flush()
}

func writeRequirementSection(x *xmlutil.Writer, section string, entries []Requirement) {
	if len(entries) == 0 {
		return
	}
	x.Start(section)
	for _, e := range entries {
		attrs := []xmlutil.Attr{{Name: "name", Value: e.Name}}
		if e.Flags != "" {
			attrs = append(attrs, xmlutil.Attr{Name: "flags", Value: e.Flags})
		}
		if e.Epoch != "" {
			attrs = append(attrs, xmlutil.Attr{Name: "epoch", Value: e.Epoch})
		}
		if e.Version != "" {
			attrs = append(attrs, xmlutil.Attr{Name: "ver", Value: e.Version})
		}
		if e.Release != "" {
			attrs = append(attrs, xmlutil.Attr{Name: "rel", Value: e.Release})
		}
		if e.Pre {
			attrs = append(attrs, xmlutil.Attr{Name: "pre", Value: "1"})
		}
		x.Empty("rpm:entry", attrs...)
	}
	x.End()
}

func writeFileElement(x *xmlutil.Writer, f PackageFile) {
	if f.Type == FileRegular {
		x.Text("file", f.Path)
		return
	}
	x.Text("file", f.Path, xmlutil.Attr{Name: "type", Value: f.Type.String()})
}

func locationAttrs(href, base string) []xmlutil.Attr {
	if base == "" {
		return []xmlutil.Attr{{Name: "href", Value: href}}
	}
	return []xmlutil.Attr{
		{Name: "xml:base", Value: base},
		{Name: "href", Value: href},
	}
}
