package rpmmd

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/ralt/rpmmd/internal/xmlutil"
)

// UpdateRecord is one erratum from updateinfo.xml.
type UpdateRecord struct {
	From    string
	Status  string
	Type    string
	Version string

	ID          string
	Title       string
	IssuedDate  string
	UpdatedDate string
	Rights      string
	Release     string
	PushCount   string
	Severity    string
	Summary     string
	Description string
	Solution    string

	RebootSuggested bool

	References  []UpdateReference
	Collections []UpdateCollection
}

// UpdateReference is an external link attached to an erratum.
type UpdateReference struct {
	Href  string
	ID    string
	Type  string
	Title string
}

// UpdateCollection groups an erratum's packages, optionally under a module.
type UpdateCollection struct {
	Name     string
	Short    string
	Module   *UpdateCollectionModule
	Packages []UpdateCollectionPackage
}

// UpdateCollectionModule identifies the module a collection belongs to.
type UpdateCollectionModule struct {
	Name    string
	Stream  string
	Version uint64
	Context string
	Arch    string
}

// UpdateCollectionPackage is one package entry of a collection.
type UpdateCollectionPackage struct {
	Name     string
	Version  string
	Release  string
	Epoch    string
	Arch     string
	Src      string
	Filename string
	Checksum Checksum

	RebootSuggested  bool
	RestartSuggested bool
	ReloginSuggested bool
}

// UpdateinfoReader decodes errata from an updateinfo.xml stream.
type UpdateinfoReader struct {
	d       *xml.Decoder
	opts    ReadOptions
	diags   []Diagnostic
	done    bool
	closers []io.Closer
}

const recordUpdateinfo = "updateinfo"

// NewUpdateinfoReader positions a reader after the <updates> root.
func NewUpdateinfoReader(r io.Reader, opts ReadOptions) (*UpdateinfoReader, error) {
	d := xmlutil.NewDecoder(r)
	for {
		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				return nil, missingField(recordUpdateinfo, "updates")
			}
			return nil, xmlError(recordUpdateinfo, err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			if se.Name.Local != "updates" {
				return nil, &MetadataError{Kind: ErrInvalidXML, Record: recordUpdateinfo,
					Detail: "unexpected root element <" + se.Name.Local + ">"}
			}
			return &UpdateinfoReader{d: d, opts: opts}, nil
		}
	}
}

// Diagnostics returns the non-fatal oddities collected so far.
func (r *UpdateinfoReader) Diagnostics() []Diagnostic {
	return r.diags
}

// attachClosers hands the reader ownership of the underlying streams.
func (r *UpdateinfoReader) attachClosers(closers ...io.Closer) {
	r.closers = append(r.closers, closers...)
}

// Close releases the underlying streams.
func (r *UpdateinfoReader) Close() error {
	r.done = true
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

// Next returns the next erratum, or io.EOF at the end of the stream.
func (r *UpdateinfoReader) Next() (*UpdateRecord, error) {
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
			return nil, xmlError(recordUpdateinfo, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "update" {
				if err := r.unknown(t.Name.Local); err != nil {
					return nil, err
				}
				continue
			}
			return r.parseUpdate(t)
		case xml.EndElement:
			if t.Name.Local == "updates" {
				r.done = true
				return nil, io.EOF
			}
		}
	}
}

func (r *UpdateinfoReader) unknown(name string) error {
	r.diags = append(r.diags, Diagnostic{Record: recordUpdateinfo, Element: name})
	if err := r.d.Skip(); err != nil {
		return xmlError(recordUpdateinfo, err)
	}
	return nil
}

func (r *UpdateinfoReader) parseUpdate(start xml.StartElement) (*UpdateRecord, error) {
	rec := &UpdateRecord{}
	rec.From, _ = xmlutil.GetAttr(start, "from")
	rec.Status, _ = xmlutil.GetAttr(start, "status")
	rec.Type, _ = xmlutil.GetAttr(start, "type")
	rec.Version, _ = xmlutil.GetAttr(start, "version")

	readText := func(se xml.StartElement) (string, error) {
		s, err := xmlutil.ReadText(r.d, se)
		if err != nil {
			return "", xmlError(recordUpdateinfo, err)
		}
		return s, nil
	}
	// Dates appear either as a date attribute on an empty element or as
	// text content, depending on the producer.
	readDate := func(se xml.StartElement) (string, error) {
		if date, ok := xmlutil.GetAttr(se, "date"); ok {
			if err := r.d.Skip(); err != nil {
				return "", xmlError(recordUpdateinfo, err)
			}
			return date, nil
		}
		return readText(se)
	}

	for {
		tok, err := r.d.Token()
		if err != nil {
			return nil, xmlError(recordUpdateinfo, err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "update" {
				if rec.ID == "" {
					return nil, missingField(recordUpdateinfo, "update/id")
				}
				return rec, nil
			}
		case xml.StartElement:
			var err error
			switch t.Name.Local {
			case "id":
				rec.ID, err = readText(t)
			case "title":
				rec.Title, err = readText(t)
			case "issued":
				rec.IssuedDate, err = readDate(t)
			case "updated":
				rec.UpdatedDate, err = readDate(t)
			case "rights":
				rec.Rights, err = readText(t)
			case "release":
				rec.Release, err = readText(t)
			case "pushcount":
				rec.PushCount, err = readText(t)
			case "severity":
				rec.Severity, err = readText(t)
			case "summary":
				rec.Summary, err = readText(t)
			case "description":
				rec.Description, err = readText(t)
			case "solution":
				rec.Solution, err = readText(t)
			case "reboot_suggested":
				var raw string
				raw, err = readText(t)
				rec.RebootSuggested = parseBoolish(raw)
			case "references":
				err = r.parseReferences(rec)
			case "pkglist":
				err = r.parsePkglist(rec)
			default:
				err = r.unknown(t.Name.Local)
			}
			if err != nil {
				return nil, err
			}
		}
	}
}

func (r *UpdateinfoReader) parseReferences(rec *UpdateRecord) error {
	for {
		tok, err := r.d.Token()
		if err != nil {
			return xmlError(recordUpdateinfo, err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "references" {
				return nil
			}
		case xml.StartElement:
			if t.Name.Local != "reference" {
				if err := r.unknown(t.Name.Local); err != nil {
					return err
				}
				continue
			}
			var ref UpdateReference
			ref.Href, _ = xmlutil.GetAttr(t, "href")
			ref.ID, _ = xmlutil.GetAttr(t, "id")
			ref.Type, _ = xmlutil.GetAttr(t, "type")
			ref.Title, _ = xmlutil.GetAttr(t, "title")
			rec.References = append(rec.References, ref)
			if err := r.d.Skip(); err != nil {
				return xmlError(recordUpdateinfo, err)
			}
		}
	}
}

func (r *UpdateinfoReader) parsePkglist(rec *UpdateRecord) error {
	for {
		tok, err := r.d.Token()
		if err != nil {
			return xmlError(recordUpdateinfo, err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "pkglist" {
				return nil
			}
		case xml.StartElement:
			if t.Name.Local != "collection" {
				if err := r.unknown(t.Name.Local); err != nil {
					return err
				}
				continue
			}
			coll, err := r.parseCollection(t)
			if err != nil {
				return err
			}
			rec.Collections = append(rec.Collections, coll)
		}
	}
}

func (r *UpdateinfoReader) parseCollection(start xml.StartElement) (UpdateCollection, error) {
	var coll UpdateCollection
	coll.Short, _ = xmlutil.GetAttr(start, "short")

	for {
		tok, err := r.d.Token()
		if err != nil {
			return coll, xmlError(recordUpdateinfo, err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "collection" {
				return coll, nil
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				name, err := xmlutil.ReadText(r.d, t)
				if err != nil {
					return coll, xmlError(recordUpdateinfo, err)
				}
				coll.Name = name
			case "module":
				mod, err := r.parseModule(t)
				if err != nil {
					return coll, err
				}
				coll.Module = mod
			case "package":
				pkg, err := r.parseCollectionPackage(t)
				if err != nil {
					return coll, err
				}
				coll.Packages = append(coll.Packages, pkg)
			default:
				if err := r.unknown(t.Name.Local); err != nil {
					return coll, err
				}
			}
		}
	}
}

func (r *UpdateinfoReader) parseModule(se xml.StartElement) (*UpdateCollectionModule, error) {
	mod := &UpdateCollectionModule{}
	mod.Name, _ = xmlutil.GetAttr(se, "name")
	mod.Stream, _ = xmlutil.GetAttr(se, "stream")
	mod.Context, _ = xmlutil.GetAttr(se, "context")
	mod.Arch, _ = xmlutil.GetAttr(se, "arch")
	if raw, ok := xmlutil.GetAttr(se, "version"); ok {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, invalidValue(recordUpdateinfo, "collection/module/version", raw, err)
		}
		mod.Version = v
	}
	if err := r.d.Skip(); err != nil {
		return nil, xmlError(recordUpdateinfo, err)
	}
	return mod, nil
}

func (r *UpdateinfoReader) parseCollectionPackage(start xml.StartElement) (UpdateCollectionPackage, error) {
	var pkg UpdateCollectionPackage
	pkg.Name, _ = xmlutil.GetAttr(start, "name")
	pkg.Version, _ = xmlutil.GetAttr(start, "version")
	pkg.Release, _ = xmlutil.GetAttr(start, "release")
	pkg.Epoch, _ = xmlutil.GetAttr(start, "epoch")
	pkg.Arch, _ = xmlutil.GetAttr(start, "arch")
	pkg.Src, _ = xmlutil.GetAttr(start, "src")

	for {
		tok, err := r.d.Token()
		if err != nil {
			return pkg, xmlError(recordUpdateinfo, err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "package" {
				return pkg, nil
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "filename":
				s, err := xmlutil.ReadText(r.d, t)
				if err != nil {
					return pkg, xmlError(recordUpdateinfo, err)
				}
				pkg.Filename = s
			case "sum":
				rawType, ok := xmlutil.GetAttr(t, "type")
				if !ok {
					return pkg, missingField(recordUpdateinfo, "collection/package/sum/type")
				}
				ctype, err := ParseChecksumType(rawType, r.opts.RejectLegacySHA)
				if err != nil {
					return pkg, err
				}
				value, err := xmlutil.ReadText(r.d, t)
				if err != nil {
					return pkg, xmlError(recordUpdateinfo, err)
				}
				pkg.Checksum = Checksum{Type: ctype, Value: value}
			case "reboot_suggested":
				s, err := xmlutil.ReadText(r.d, t)
				if err != nil {
					return pkg, xmlError(recordUpdateinfo, err)
				}
				pkg.RebootSuggested = parseBoolish(s)
			case "restart_suggested":
				s, err := xmlutil.ReadText(r.d, t)
				if err != nil {
					return pkg, xmlError(recordUpdateinfo, err)
				}
				pkg.RestartSuggested = parseBoolish(s)
			case "relogin_suggested":
				s, err := xmlutil.ReadText(r.d, t)
				if err != nil {
					return pkg, xmlError(recordUpdateinfo, err)
				}
				pkg.ReloginSuggested = parseBoolish(s)
			default:
				if err := r.unknown(t.Name.Local); err != nil {
					return pkg, err
				}
			}
		}
	}
}

func parseBoolish(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}

// UpdateinfoWriter encodes errata into an updateinfo.xml stream.
type UpdateinfoWriter struct {
	x *xmlutil.Writer
}

// NewUpdateinfoWriter writes the <updates> header.
func NewUpdateinfoWriter(w io.Writer) (*UpdateinfoWriter, error) {
	x := xmlutil.NewWriter(w)
	x.Decl()
	x.Start("updates")
	if err := x.Err(); err != nil {
		return nil, err
	}
	return &UpdateinfoWriter{x: x}, nil
}

// WriteRecord emits one erratum.
func (w *UpdateinfoWriter) WriteRecord(rec *UpdateRecord) error {
	x := w.x
	x.Start("update",
		xmlutil.Attr{Name: "from", Value: rec.From},
		xmlutil.Attr{Name: "status", Value: rec.Status},
		xmlutil.Attr{Name: "type", Value: rec.Type},
		xmlutil.Attr{Name: "version", Value: rec.Version})
	x.Text("id", rec.ID)
	x.Text("title", rec.Title)
	if rec.IssuedDate != "" {
		x.Empty("issued", xmlutil.Attr{Name: "date", Value: rec.IssuedDate})
	}
	if rec.UpdatedDate != "" {
		x.Empty("updated", xmlutil.Attr{Name: "date", Value: rec.UpdatedDate})
	}
	x.Text("rights", rec.Rights)
	x.Text("release", rec.Release)
	if rec.PushCount != "" {
		x.Text("pushcount", rec.PushCount)
	}
	x.Text("severity", rec.Severity)
	x.Text("summary", rec.Summary)
	x.Text("description", rec.Description)
	x.Text("solution", rec.Solution)
	if rec.RebootSuggested {
		x.Text("reboot_suggested", "True")
	}

	if len(rec.References) > 0 {
		x.Start("references")
		for _, ref := range rec.References {
			x.Empty("reference",
				xmlutil.Attr{Name: "href", Value: ref.Href},
				xmlutil.Attr{Name: "id", Value: ref.ID},
				xmlutil.Attr{Name: "type", Value: ref.Type},
				xmlutil.Attr{Name: "title", Value: ref.Title})
		}
		x.End()
	} else {
		x.Empty("references")
	}

	if len(rec.Collections) > 0 {
		x.Start("pkglist")
		for _, coll := range rec.Collections {
			w.writeCollection(coll)
		}
		x.End()
	} else {
		x.Empty("pkglist")
	}

	x.End()
	return x.Err()
}

func (w *UpdateinfoWriter) writeCollection(coll UpdateCollection) {
	x := w.x
	x.Start("collection", xmlutil.Attr{Name: "short", Value: coll.Short})
	x.Text("name", coll.Name)
	if coll.Module != nil {
		x.Empty("module",
			xmlutil.Attr{Name: "name", Value: coll.Module.Name},
			xmlutil.Attr{Name: "stream", Value: coll.Module.Stream},
			xmlutil.Attr{Name: "version", Value: utoa64(coll.Module.Version)},
			xmlutil.Attr{Name: "context", Value: coll.Module.Context},
			xmlutil.Attr{Name: "arch", Value: coll.Module.Arch})
	}
	for _, pkg := range coll.Packages {
		x.Start("package",
			xmlutil.Attr{Name: "name", Value: pkg.Name},
			xmlutil.Attr{Name: "version", Value: pkg.Version},
			xmlutil.Attr{Name: "release", Value: pkg.Release},
			xmlutil.Attr{Name: "epoch", Value: pkg.Epoch},
			xmlutil.Attr{Name: "arch", Value: pkg.Arch},
			xmlutil.Attr{Name: "src", Value: pkg.Src})
		x.Text("filename", pkg.Filename)
		if pkg.Checksum.Type != "" {
			x.Text("sum", pkg.Checksum.Value, xmlutil.Attr{Name: "type", Value: string(pkg.Checksum.Type)})
		}
		if pkg.RebootSuggested {
			x.Text("reboot_suggested", "1")
		}
		if pkg.RestartSuggested {
			x.Text("restart_suggested", "1")
		}
		if pkg.ReloginSuggested {
			x.Text("relogin_suggested", "1")
		}
		x.End()
	}
	x.End()
}

// Close emits the closing root tag and flushes.
func (w *UpdateinfoWriter) Close() error {
	w.x.End()
	w.x.Newline()
	return w.x.Flush()
}
