// Package rpmmd reads and writes RPM repository metadata: the repomd.xml
// index and the primary, filelists, other and updateinfo XML streams that
// describe a package collection. Reading and writing are both streaming; a
// repository of hundreds of thousands of packages is processed one package
// record at a time.
package rpmmd

import (
	"encoding/xml"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ralt/rpmmd/internal/xmlutil"
)

// XML namespaces of the metadata documents.
const (
	xmlNSCommon    = "http://linux.duke.edu/metadata/common"
	xmlNSFilelists = "http://linux.duke.edu/metadata/filelists"
	xmlNSOther     = "http://linux.duke.edu/metadata/other"
	xmlNSRepo      = "http://linux.duke.edu/metadata/repo"
	xmlNSRpm       = "http://linux.duke.edu/metadata/rpm"
)

// Standard repomd.xml data types.
const (
	MetadataPrimary    = "primary"
	MetadataFilelists  = "filelists"
	MetadataOther      = "other"
	MetadataUpdateinfo = "updateinfo"
)

// ReadOptions tune lenient behaviors of the decoders.
type ReadOptions struct {
	// RejectLegacySHA refuses the historical "sha" checksum tag instead of
	// reading it as sha1.
	RejectLegacySHA bool
}

// streamReader holds the state shared by the three package stream decoders.
type streamReader struct {
	d      *xml.Decoder
	record string
	total  int
	opts   ReadOptions
	diags  []Diagnostic
	done   bool
}

// unknown records a skipped element and its subtree.
func (r *streamReader) unknown(d *xml.Decoder, name string) error {
	r.diags = append(r.diags, Diagnostic{Record: r.record, Element: name})
	logrus.WithFields(logrus.Fields{"record": r.record, "element": name}).
		Debug("Skipping unknown element")
	return d.Skip()
}

// Diagnostics returns the non-fatal oddities collected so far.
func (r *streamReader) Diagnostics() []Diagnostic {
	return r.diags
}

// Count returns the package count declared on the document root.
func (r *streamReader) Count() int {
	return r.total
}

// readHeader consumes tokens up to and including the document root element
// and returns its packages attribute.
func readHeader(d *xml.Decoder, record, root string) (int, error) {
	for {
		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				return 0, missingField(record, root)
			}
			return 0, xmlError(record, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local != root {
			return 0, &MetadataError{Kind: ErrInvalidXML, Record: record,
				Detail: "unexpected root element <" + se.Name.Local + ">"}
		}
		raw, ok := xmlutil.GetAttr(se, "packages")
		if !ok {
			return 0, missingField(record, root+"/packages")
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, invalidValue(record, root+"/packages", raw, err)
		}
		return n, nil
	}
}

// parseEVRAttrs reads the epoch/ver/rel attributes of a version element.
// A missing epoch reads as "0"; ver and rel are required.
func parseEVRAttrs(record string, se xml.StartElement) (EVR, error) {
	epoch, ok := xmlutil.GetAttr(se, "epoch")
	if !ok {
		epoch = "0"
	}
	ver, ok := xmlutil.GetAttr(se, "ver")
	if !ok {
		return EVR{}, missingField(record, "version/ver")
	}
	rel, ok := xmlutil.GetAttr(se, "rel")
	if !ok {
		return EVR{}, missingField(record, "version/rel")
	}
	return NewEVR(epoch, ver, rel), nil
}

func parseInt64Attr(record, path string, se xml.StartElement, name string) (int64, error) {
	raw, ok := xmlutil.GetAttr(se, name)
	if !ok {
		return 0, missingField(record, path+"/"+name)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, invalidValue(record, path+"/"+name, raw, err)
	}
	return n, nil
}

func parseUint64Attr(record, path string, se xml.StartElement, name string) (uint64, error) {
	raw, ok := xmlutil.GetAttr(se, name)
	if !ok {
		return 0, missingField(record, path+"/"+name)
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, invalidValue(record, path+"/"+name, raw, err)
	}
	return n, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func itoa64(n int64) string {
	return strconv.FormatInt(n, 10)
}

func utoa64(n uint64) string {
	return strconv.FormatUint(n, 10)
}

// evrAttrs serializes an EVR as the canonical attribute triple.
func evrAttrs(evr EVR) []xmlutil.Attr {
	epoch := evr.Epoch
	if epoch == "" {
		epoch = "0"
	}
	return []xmlutil.Attr{
		{Name: "epoch", Value: epoch},
		{Name: "ver", Value: evr.Version},
		{Name: "rel", Value: evr.Release},
	}
}
