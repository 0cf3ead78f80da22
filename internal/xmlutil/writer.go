// Package xmlutil provides the low-level XML plumbing shared by the metadata
// codecs: a canonical emitter and pull-parsing helpers over encoding/xml.
package xmlutil

import (
	"bufio"
	"io"
	"strings"
)

var (
	textEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
)

// EscapeText escapes character data. Single and double quotes pass through
// unchanged; consumers of this format expect them literal in text content.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// EscapeAttr escapes an attribute value for emission between double quotes.
func EscapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

// Attr is a name/value pair emitted on an element.
type Attr struct {
	Name  string
	Value string
}

// Writer emits canonical, two-space indented XML. Errors are sticky: the
// first write failure is retained and surfaced by Err or Flush, so codec
// code can emit a whole record without checking every call.
type Writer struct {
	bw       *bufio.Writer
	err      error
	stack    []string
	children []int
}

// NewWriter creates a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

func (w *Writer) write(s string) {
	if w.err != nil {
		return
	}
	_, w.err = w.bw.WriteString(s)
}

func (w *Writer) indent() {
	w.write("\n")
	for range w.stack {
		w.write("  ")
	}
}

func (w *Writer) openTag(name string, attrs []Attr) {
	w.write("<")
	w.write(name)
	for _, a := range attrs {
		w.write(" ")
		w.write(a.Name)
		w.write(`="`)
		w.write(EscapeAttr(a.Value))
		w.write(`"`)
	}
}

func (w *Writer) countChild() {
	if len(w.children) > 0 {
		w.children[len(w.children)-1]++
	}
}

// Decl writes the XML declaration. It must be the first call on the Writer.
func (w *Writer) Decl() {
	w.write(`<?xml version="1.0" encoding="UTF-8"?>`)
}

// Start opens a container element.
func (w *Writer) Start(name string, attrs ...Attr) {
	w.countChild()
	w.indent()
	w.openTag(name, attrs)
	w.write(">")
	w.stack = append(w.stack, name)
	w.children = append(w.children, 0)
}

// End closes the innermost open container element.
func (w *Writer) End() {
	if len(w.stack) == 0 {
		return
	}
	name := w.stack[len(w.stack)-1]
	hadChildren := w.children[len(w.children)-1] > 0
	w.stack = w.stack[:len(w.stack)-1]
	w.children = w.children[:len(w.children)-1]
	if hadChildren {
		w.indent()
	}
	w.write("</")
	w.write(name)
	w.write(">")
}

// Empty emits a self-closed element.
func (w *Writer) Empty(name string, attrs ...Attr) {
	w.countChild()
	w.indent()
	w.openTag(name, attrs)
	w.write("/>")
}

// Text emits an element with character data content on a single line. Empty
// content collapses to a self-closed element.
func (w *Writer) Text(name, text string, attrs ...Attr) {
	if text == "" {
		w.Empty(name, attrs...)
		return
	}
	w.countChild()
	w.indent()
	w.openTag(name, attrs)
	w.write(">")
	w.write(EscapeText(text))
	w.write("</")
	w.write(name)
	w.write(">")
}

// Newline emits a bare line break; used for the trailing newline after the
// document root.
func (w *Writer) Newline() {
	w.write("\n")
}

// Err returns the first error encountered while emitting.
func (w *Writer) Err() error {
	return w.err
}

// Flush writes buffered output to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.bw.Flush()
}
