package rpmmd

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

const primaryFixture = `<?xml version="1.0" encoding="UTF-8"?>
<metadata xmlns="http://linux.duke.edu/metadata/common" xmlns:rpm="http://linux.duke.edu/metadata/rpm" packages="1">
  <package type="rpm">
    <name>complex-package</name>
    <arch>x86_64</arch>
    <version epoch="1" ver="2.3.4" rel="5.el8"/>
    <checksum type="sha256" pkgid="YES">bbb7b0e9350a0f75b923bdd0ef4f9af39765c668a3e70bfd3486ea9f0f618aaf</checksum>
    <summary>A package for exercising many different features of RPM metadata</summary>
    <description>Complex package with &amp; escapes &lt;here&gt; and "quotes"</description>
    <packager>Michael Bluth</packager>
    <url>http://bobloblaw.com</url>
    <time file="1627052744" build="1627052743"/>
    <size package="8680" installed="117" archive="932"/>
    <location xml:base="http://mirror.example/pool" href="complex-package-2.3.4-5.el8.x86_64.rpm"/>
    <format>
      <rpm:license>MPLv2</rpm:license>
      <rpm:vendor>Bluth Company</rpm:vendor>
      <rpm:group>Development/Tools</rpm:group>
      <rpm:buildhost>localhost</rpm:buildhost>
      <rpm:sourcerpm>complex-package-2.3.4-5.el8.src.rpm</rpm:sourcerpm>
      <rpm:header-range start="4504" end="8413"/>
      <rpm:provides>
        <rpm:entry name="/usr/bin/ls"/>
        <rpm:entry name="complex-package" flags="EQ" epoch="1" ver="2.3.4" rel="5.el8"/>
      </rpm:provides>
      <rpm:requires>
        <rpm:entry name="/usr/sbin/useradd" pre="1"/>
        <rpm:entry name="arson" flags="GE" epoch="0" ver="1.0.0" rel="1"/>
      </rpm:requires>
      <rpm:conflicts>
        <rpm:entry name="foxnetwork" flags="GT" epoch="0" ver="5555"/>
      </rpm:conflicts>
      <rpm:obsoletes>
        <rpm:entry name="cornballer" flags="LT" epoch="0" ver="444"/>
      </rpm:obsoletes>
      <rpm:suggests>
        <rpm:entry name="(job or money &gt; 9000)"/>
      </rpm:suggests>
      <file>/usr/bin/complex_a</file>
      <file type="dir">/etc/complex-package</file>
    </format>
  </package>
</metadata>
`

func TestPrimaryReaderComplexPackage(t *testing.T) {
	r, err := NewPrimaryReader(strings.NewReader(primaryFixture), ReadOptions{})
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

	if pkg.Name != "complex-package" {
		t.Errorf("name = %q", pkg.Name)
	}
	if pkg.Arch != "x86_64" {
		t.Errorf("arch = %q", pkg.Arch)
	}
	if pkg.EVR != (EVR{Epoch: "1", Version: "2.3.4", Release: "5.el8"}) {
		t.Errorf("evr = %+v", pkg.EVR)
	}
	if pkg.Checksum.Type != ChecksumSHA256 {
		t.Errorf("checksum type = %q", pkg.Checksum.Type)
	}
	if pkg.PkgID() != "bbb7b0e9350a0f75b923bdd0ef4f9af39765c668a3e70bfd3486ea9f0f618aaf" {
		t.Errorf("pkgid = %q", pkg.PkgID())
	}
	if pkg.Description != `Complex package with & escapes <here> and "quotes"` {
		t.Errorf("description = %q", pkg.Description)
	}
	if pkg.LocationHref != "complex-package-2.3.4-5.el8.x86_64.rpm" {
		t.Errorf("location href = %q", pkg.LocationHref)
	}
	if pkg.LocationBase != "http://mirror.example/pool" {
		t.Errorf("location base = %q", pkg.LocationBase)
	}
	if pkg.Time != (Time{File: 1627052744, Build: 1627052743}) {
		t.Errorf("time = %+v", pkg.Time)
	}
	if pkg.Size != (Size{Package: 8680, Installed: 117, Archive: 932}) {
		t.Errorf("size = %+v", pkg.Size)
	}
	if pkg.License != "MPLv2" || pkg.Vendor != "Bluth Company" || pkg.BuildHost != "localhost" {
		t.Errorf("format scalars = %q %q %q", pkg.License, pkg.Vendor, pkg.BuildHost)
	}
	if pkg.HeaderRange != (HeaderRange{Start: 4504, End: 8413}) {
		t.Errorf("header range = %+v", pkg.HeaderRange)
	}

	if len(pkg.Provides) != 2 {
		t.Fatalf("provides = %+v", pkg.Provides)
	}
	if pkg.Provides[1] != (Requirement{Name: "complex-package", Flags: "EQ", Epoch: "1", Version: "2.3.4", Release: "5.el8"}) {
		t.Errorf("provides[1] = %+v", pkg.Provides[1])
	}
	if len(pkg.Requires) != 2 {
		t.Fatalf("requires = %+v", pkg.Requires)
	}
	if !pkg.Requires[0].Pre {
		t.Error("pre flag not parsed")
	}
	if pkg.Suggests[0].Name != "(job or money > 9000)" {
		t.Errorf("suggests entry = %q", pkg.Suggests[0].Name)
	}

	// Files belong to filelists.xml; the primary subset must not populate
	// the record.
	if len(pkg.Files) != 0 {
		t.Errorf("files leaked from primary: %+v", pkg.Files)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestPrimaryReaderUnknownElement(t *testing.T) {
	doc := strings.Replace(primaryFixture,
		"<packager>Michael Bluth</packager>",
		"<packager>Michael Bluth</packager><mystery><deep/></mystery>", 1)

	r, err := NewPrimaryReader(strings.NewReader(doc), ReadOptions{})
	if err != nil {
		t.Fatalf("failed to open reader: %v", err)
	}
	pkg, err := r.Next()
	if err != nil {
		t.Fatalf("unknown element should not be fatal: %v", err)
	}
	if pkg.Packager != "Michael Bluth" {
		t.Errorf("packager = %q", pkg.Packager)
	}

	diags := r.Diagnostics()
	if len(diags) != 1 || diags[0].Element != "mystery" {
		t.Errorf("diagnostics = %+v", diags)
	}
}

func TestPrimaryReaderInvalidValues(t *testing.T) {
	doc := strings.Replace(primaryFixture, `<time file="1627052744"`, `<time file="not-a-number"`, 1)
	r, err := NewPrimaryReader(strings.NewReader(doc), ReadOptions{})
	if err != nil {
		t.Fatalf("failed to open reader: %v", err)
	}
	_, err = r.Next()
	var merr *MetadataError
	if !errors.As(err, &merr) || merr.Kind != ErrInvalidValue {
		t.Fatalf("expected InvalidValue, got %v", err)
	}

	doc = strings.Replace(primaryFixture, ` flags="GE"`, ` flags="APPROX"`, 1)
	r, err = NewPrimaryReader(strings.NewReader(doc), ReadOptions{})
	if err != nil {
		t.Fatalf("failed to open reader: %v", err)
	}
	_, err = r.Next()
	if !errors.As(err, &merr) || merr.Kind != ErrInvalidValue {
		t.Fatalf("expected InvalidValue for bad flag, got %v", err)
	}
}

func TestPrimaryReaderMissingHeader(t *testing.T) {
	_, err := NewPrimaryReader(strings.NewReader(`<?xml version="1.0" encoding="UTF-8"?><wrong/>`), ReadOptions{})
	var merr *MetadataError
	if !errors.As(err, &merr) || merr.Kind != ErrInvalidXML {
		t.Fatalf("expected InvalidXML for wrong root, got %v", err)
	}
}

func TestPrimaryReaderRejectsNonUTF8(t *testing.T) {
	doc := `<?xml version="1.0" encoding="ISO-8859-1"?>
<metadata xmlns="http://linux.duke.edu/metadata/common" packages="0"></metadata>`
	_, err := NewPrimaryReader(strings.NewReader(doc), ReadOptions{})
	var merr *MetadataError
	if !errors.As(err, &merr) || merr.Kind != ErrInvalidEncoding {
		t.Fatalf("expected InvalidEncoding, got %v", err)
	}
}

func TestPrimaryRoundTrip(t *testing.T) {
	r, err := NewPrimaryReader(strings.NewReader(primaryFixture), ReadOptions{})
	if err != nil {
		t.Fatalf("failed to open reader: %v", err)
	}
	pkg, err := r.Next()
	if err != nil {
		t.Fatalf("failed to read package: %v", err)
	}
	// The file subset inside <format> is produced from the full file list.
	pkg.Files = []PackageFile{
		{Path: "/usr/bin/complex_a"},
		{Type: FileDir, Path: "/etc/complex-package"},
	}

	var buf bytes.Buffer
	w, err := NewPrimaryWriter(&buf, 1)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	if err := w.WritePackage(pkg); err != nil {
		t.Fatalf("failed to write package: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	if buf.String() != primaryFixture {
		t.Errorf("round trip produced different bytes\ngot:\n%s\nwant:\n%s", buf.String(), primaryFixture)
	}
}

func TestPrimaryWriterCountMismatch(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewPrimaryWriter(&buf, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	var cerr *CountMismatchError
	if err := w.Close(); !errors.As(err, &cerr) {
		t.Fatalf("expected CountMismatchError, got %v", err)
	}
	if cerr.Declared != 2 || cerr.Observed != 0 {
		t.Errorf("mismatch = %+v", cerr)
	}
}
