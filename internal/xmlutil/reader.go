package xmlutil

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// NewDecoder creates a pull decoder over r. No CharsetReader is installed:
// documents must be UTF-8 and anything else fails at tokenization.
func NewDecoder(r io.Reader) *xml.Decoder {
	return xml.NewDecoder(r)
}

// GetAttr looks up an attribute by name on a start element. A "xml:" prefix in
// name matches the predeclared XML namespace, so "xml:base" finds the base
// attribute however the decoder resolved it.
func GetAttr(se xml.StartElement, name string) (string, bool) {
	space := ""
	if i := strings.IndexByte(name, ':'); i >= 0 {
		space, name = name[:i], name[i+1:]
	}
	for _, a := range se.Attr {
		if a.Name.Local != name {
			continue
		}
		if space == "" {
			if a.Name.Space == "" {
				return a.Value, true
			}
			continue
		}
		if a.Name.Space == space || (space == "xml" && a.Name.Space == "http://www.w3.org/XML/1998/namespace") {
			return a.Value, true
		}
	}
	return "", false
}

// ReadText consumes the content of the element opened by start up to its end
// tag and returns the character data verbatim, whitespace included. Nested
// elements are rejected.
func ReadText(d *xml.Decoder, start xml.StartElement) (string, error) {
	var sb strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			return sb.String(), nil
		case xml.StartElement:
			return "", fmt.Errorf("unexpected element <%s> inside <%s>", t.Name.Local, start.Name.Local)
		}
	}
}
