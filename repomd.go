package rpmmd

import (
	"encoding/xml"
	"io"
	"strconv"

	"github.com/ralt/rpmmd/internal/xmlutil"
)

// RepomdRecord is one <data> entry of repomd.xml. Size fields of zero mean
// the element was absent; a zero-valued Checksum (empty Type) likewise.
type RepomdRecord struct {
	Type         string
	LocationHref string
	LocationBase string
	Timestamp    int64
	Size         int64
	Checksum     Checksum

	OpenSize     int64
	OpenChecksum Checksum

	// Zchunk metadata only.
	HeaderSize     int64
	HeaderChecksum Checksum

	// Sqlite metadata only.
	DatabaseVersion int
}

// DistroTag is a <distro> entry of the repomd tags block.
type DistroTag struct {
	CPEID string
	Name  string
}

// Repomd is the decoded content of repomd.xml.
type Repomd struct {
	Revision    string
	RepoTags    []string
	ContentTags []string
	DistroTags  []DistroTag
	Records     []RepomdRecord
}

// Record returns the record of the given metadata type, or nil.
func (r *Repomd) Record(mdtype string) *RepomdRecord {
	for i := range r.Records {
		if r.Records[i].Type == mdtype {
			return &r.Records[i]
		}
	}
	return nil
}

// AddRecord appends a record, replacing an existing record of the same type
// so that each standard type occurs at most once.
func (r *Repomd) AddRecord(rec RepomdRecord) {
	for i := range r.Records {
		if r.Records[i].Type == rec.Type {
			r.Records[i] = rec
			return
		}
	}
	r.Records = append(r.Records, rec)
}

// ParseRepomd decodes a repomd.xml document.
func ParseRepomd(rd io.Reader, opts ReadOptions) (*Repomd, error) {
	d := xmlutil.NewDecoder(rd)
	record := "repomd"

	// Locate and validate the root element.
	var root xml.StartElement
	for {
		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				return nil, missingField(record, "repomd")
			}
			return nil, xmlError(record, err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			root = se
			break
		}
	}
	if root.Name.Local != "repomd" || root.Name.Space != xmlNSRepo {
		return nil, &MetadataError{Kind: ErrInvalidXML, Record: record,
			Detail: "unexpected root element <" + root.Name.Local + "> in namespace " + root.Name.Space}
	}

	repomd := &Repomd{}
	for {
		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				return repomd, nil
			}
			return nil, xmlError(record, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "revision":
			rev, err := xmlutil.ReadText(d, se)
			if err != nil {
				return nil, xmlError(record, err)
			}
			repomd.Revision = rev
		case "tags":
			if err := parseRepomdTags(d, repomd); err != nil {
				return nil, err
			}
		case "data":
			rec, err := parseRepomdRecord(d, se, opts)
			if err != nil {
				return nil, err
			}
			repomd.Records = append(repomd.Records, rec)
		default:
			if err := d.Skip(); err != nil {
				return nil, xmlError(record, err)
			}
		}
	}
}

func parseRepomdTags(d *xml.Decoder, repomd *Repomd) error {
	record := "repomd"
	for {
		tok, err := d.Token()
		if err != nil {
			return xmlError(record, err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "tags" {
				return nil
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "repo":
				s, err := xmlutil.ReadText(d, t)
				if err != nil {
					return xmlError(record, err)
				}
				repomd.RepoTags = append(repomd.RepoTags, s)
			case "content":
				s, err := xmlutil.ReadText(d, t)
				if err != nil {
					return xmlError(record, err)
				}
				repomd.ContentTags = append(repomd.ContentTags, s)
			case "distro":
				cpeid, _ := xmlutil.GetAttr(t, "cpeid")
				name, err := xmlutil.ReadText(d, t)
				if err != nil {
					return xmlError(record, err)
				}
				repomd.DistroTags = append(repomd.DistroTags, DistroTag{CPEID: cpeid, Name: name})
			default:
				if err := d.Skip(); err != nil {
					return xmlError(record, err)
				}
			}
		}
	}
}

func parseRepomdRecord(d *xml.Decoder, start xml.StartElement, opts ReadOptions) (RepomdRecord, error) {
	record := "repomd"
	var rec RepomdRecord

	mdtype, ok := xmlutil.GetAttr(start, "type")
	if !ok {
		return rec, missingField(record, "data/type")
	}
	rec.Type = mdtype

	readChecksum := func(se xml.StartElement, path string) (Checksum, error) {
		rawType, ok := xmlutil.GetAttr(se, "type")
		if !ok {
			return Checksum{}, missingField(record, path+"/type")
		}
		ctype, err := ParseChecksumType(rawType, opts.RejectLegacySHA)
		if err != nil {
			return Checksum{}, err
		}
		value, err := xmlutil.ReadText(d, se)
		if err != nil {
			return Checksum{}, xmlError(record, err)
		}
		return Checksum{Type: ctype, Value: value}, nil
	}
	readInt64 := func(se xml.StartElement, path string) (int64, error) {
		raw, err := xmlutil.ReadText(d, se)
		if err != nil {
			return 0, xmlError(record, err)
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, invalidValue(record, path, raw, err)
		}
		return n, nil
	}

	for {
		tok, err := d.Token()
		if err != nil {
			return rec, xmlError(record, err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "data" {
				if rec.LocationHref == "" {
					return rec, missingField(record, "data/location")
				}
				if rec.Checksum.Value == "" {
					return rec, missingField(record, "data/checksum")
				}
				if rec.Timestamp == 0 {
					return rec, missingField(record, "data/timestamp")
				}
				return rec, nil
			}
		case xml.StartElement:
			var err error
			switch t.Name.Local {
			case "checksum":
				rec.Checksum, err = readChecksum(t, "data/checksum")
			case "open-checksum":
				rec.OpenChecksum, err = readChecksum(t, "data/open-checksum")
			case "header-checksum":
				rec.HeaderChecksum, err = readChecksum(t, "data/header-checksum")
			case "location":
				href, ok := xmlutil.GetAttr(t, "href")
				if !ok {
					err = missingField(record, "data/location/href")
					break
				}
				rec.LocationHref = href
				if base, ok := xmlutil.GetAttr(t, "xml:base"); ok {
					rec.LocationBase = base
				}
				err = d.Skip()
			case "timestamp":
				rec.Timestamp, err = readInt64(t, "data/timestamp")
			case "size":
				rec.Size, err = readInt64(t, "data/size")
			case "open-size":
				rec.OpenSize, err = readInt64(t, "data/open-size")
			case "header-size":
				rec.HeaderSize, err = readInt64(t, "data/header-size")
			case "database_version":
				var v int64
				v, err = readInt64(t, "data/database_version")
				rec.DatabaseVersion = int(v)
			default:
				err = d.Skip()
			}
			if err != nil {
				if _, ok := err.(*MetadataError); ok {
					return rec, err
				}
				return rec, xmlError(record, err)
			}
		}
	}
}

// WriteRepomd encodes a repomd.xml document.
func WriteRepomd(w io.Writer, repomd *Repomd) error {
	x := xmlutil.NewWriter(w)
	x.Decl()
	x.Start("repomd",
		xmlutil.Attr{Name: "xmlns", Value: xmlNSRepo},
		xmlutil.Attr{Name: "xmlns:rpm", Value: xmlNSRpm})
	x.Text("revision", repomd.Revision)

	if len(repomd.RepoTags) > 0 || len(repomd.ContentTags) > 0 || len(repomd.DistroTags) > 0 {
		x.Start("tags")
		for _, tag := range repomd.ContentTags {
			x.Text("content", tag)
		}
		for _, tag := range repomd.RepoTags {
			x.Text("repo", tag)
		}
		for _, tag := range repomd.DistroTags {
			if tag.CPEID != "" {
				x.Text("distro", tag.Name, xmlutil.Attr{Name: "cpeid", Value: tag.CPEID})
			} else {
				x.Text("distro", tag.Name)
			}
		}
		x.End()
	}

	for _, rec := range repomd.Records {
		writeRepomdRecord(x, rec)
	}

	x.End()
	x.Newline()
	return x.Flush()
}

func writeRepomdRecord(x *xmlutil.Writer, rec RepomdRecord) {
	x.Start("data", xmlutil.Attr{Name: "type", Value: rec.Type})
	x.Text("checksum", rec.Checksum.Value, xmlutil.Attr{Name: "type", Value: string(rec.Checksum.Type)})
	if rec.OpenChecksum.Type != "" {
		x.Text("open-checksum", rec.OpenChecksum.Value, xmlutil.Attr{Name: "type", Value: string(rec.OpenChecksum.Type)})
	}
	if rec.HeaderChecksum.Type != "" {
		x.Text("header-checksum", rec.HeaderChecksum.Value, xmlutil.Attr{Name: "type", Value: string(rec.HeaderChecksum.Type)})
	}
	x.Empty("location", locationAttrs(rec.LocationHref, rec.LocationBase)...)
	x.Text("timestamp", itoa64(rec.Timestamp))
	if rec.Size > 0 {
		x.Text("size", itoa64(rec.Size))
	}
	if rec.OpenSize > 0 {
		x.Text("open-size", itoa64(rec.OpenSize))
	}
	if rec.HeaderSize > 0 {
		x.Text("header-size", itoa64(rec.HeaderSize))
	}
	if rec.DatabaseVersion > 0 {
		x.Text("database_version", itoa(rec.DatabaseVersion))
	}
	x.End()
}
