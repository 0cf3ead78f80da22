package rpmmd

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

const otherFixture = `<?xml version="1.0" encoding="UTF-8"?>
<otherdata xmlns="http://linux.duke.edu/metadata/other" packages="1">
  <package pkgid="bbb7b0e9350a0f75b923bdd0ef4f9af39765c668a3e70bfd3486ea9f0f618aaf" name="complex-package" arch="x86_64">
    <version epoch="1" ver="2.3.4" rel="5.el8"/>
    <changelog author="Lucille Bluth &lt;lucille@bluthcompany.com&gt; - 1.1.1-1" date="1617192000">- banana stand
- I don't understand the question and I won't respond to it</changelog>
    <changelog author="Job Bluth &lt;job@alliance-of-magicians.com&gt; - 2.3.4-5" date="1617249600">- I've made a huge mistake</changelog>
  </package>
</otherdata>
`

func TestOtherReader(t *testing.T) {
	r, err := NewOtherReader(strings.NewReader(otherFixture), ReadOptions{})
	if err != nil {
		t.Fatalf("failed to open reader: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1", r.Count())
	}

	pkg, err := r.Next()
	if err != nil {
		t.Fatalf("failed to read package: %v", err)
	}
	if len(pkg.Changelogs) != 2 {
		t.Fatalf("changelogs = %+v", pkg.Changelogs)
	}

	first := pkg.Changelogs[0]
	if first.Author != "Lucille Bluth <lucille@bluthcompany.com> - 1.1.1-1" {
		t.Errorf("author = %q", first.Author)
	}
	if first.Date != 1617192000 {
		t.Errorf("date = %d", first.Date)
	}
	// Multi-line changelog text is preserved verbatim.
	if first.Text != "- banana stand\n- I don't understand the question and I won't respond to it" {
		t.Errorf("text = %q", first.Text)
	}

	second := pkg.Changelogs[1]
	if second.Text != "- I've made a huge mistake" {
		t.Errorf("text = %q", second.Text)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestOtherRoundTrip(t *testing.T) {
	r, err := NewOtherReader(strings.NewReader(otherFixture), ReadOptions{})
	if err != nil {
		t.Fatalf("failed to open reader: %v", err)
	}
	pkg, err := r.Next()
	if err != nil {
		t.Fatalf("failed to read package: %v", err)
	}

	var buf bytes.Buffer
	w, err := NewOtherWriter(&buf, 1)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	if err := w.WritePackage(pkg); err != nil {
		t.Fatalf("failed to write package: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	if buf.String() != otherFixture {
		t.Errorf("round trip produced different bytes\ngot:\n%s\nwant:\n%s", buf.String(), otherFixture)
	}
}

func TestOtherEmptyStream(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<otherdata xmlns="http://linux.duke.edu/metadata/other" packages="0">
</otherdata>
`
	r, err := NewOtherReader(strings.NewReader(doc), ReadOptions{})
	if err != nil {
		t.Fatalf("failed to open reader: %v", err)
	}
	if r.Count() != 0 {
		t.Errorf("count = %d, want 0", r.Count())
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}
