package rpmmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const repomdFixture = `<?xml version="1.0" encoding="UTF-8"?>
<repomd xmlns="http://linux.duke.edu/metadata/repo" xmlns:rpm="http://linux.duke.edu/metadata/rpm">
  <revision>1615686706</revision>
  <tags>
    <content>binary-x86_64</content>
    <repo>Fedora</repo>
    <distro cpeid="cpe:/o:fedoraproject:fedora:33">Fedora 33</distro>
  </tags>
  <data type="primary">
    <checksum type="sha256">aaafff345398c32bd7a7b1f21fcb806c95aaad8683e4c58e50e9a7da600dbd0a</checksum>
    <open-checksum type="sha256">777fff345398c32bd7a7b1f21fcb806c95aaad8683e4c58e50e9a7da600dbd0a</open-checksum>
    <location href="repodata/primary.xml.gz"/>
    <timestamp>1615686706</timestamp>
    <size>2621</size>
    <open-size>38870</open-size>
  </data>
  <data type="filelists">
    <checksum type="sha256">bbbfff345398c32bd7a7b1f21fcb806c95aaad8683e4c58e50e9a7da600dbd0a</checksum>
    <open-checksum type="sha256">888fff345398c32bd7a7b1f21fcb806c95aaad8683e4c58e50e9a7da600dbd0a</open-checksum>
    <location xml:base="http://mirror.example/repo" href="repodata/filelists.xml.gz"/>
    <timestamp>1615686706</timestamp>
    <size>1932</size>
    <open-size>12006</open-size>
  </data>
  <data type="primary_zck">
    <checksum type="sha256">cccfff345398c32bd7a7b1f21fcb806c95aaad8683e4c58e50e9a7da600dbd0a</checksum>
    <open-checksum type="sha256">999fff345398c32bd7a7b1f21fcb806c95aaad8683e4c58e50e9a7da600dbd0a</open-checksum>
    <header-checksum type="sha256">dddfff345398c32bd7a7b1f21fcb806c95aaad8683e4c58e50e9a7da600dbd0a</header-checksum>
    <location href="repodata/primary.xml.zck"/>
    <timestamp>1615686706</timestamp>
    <size>3000</size>
    <open-size>38870</open-size>
    <header-size>280</header-size>
  </data>
  <data type="other_db">
    <checksum type="sha256">eeefff345398c32bd7a7b1f21fcb806c95aaad8683e4c58e50e9a7da600dbd0a</checksum>
    <location href="repodata/other.sqlite.bz2"/>
    <timestamp>1615686706</timestamp>
    <size>1183</size>
    <database_version>10</database_version>
  </data>
</repomd>
`

func TestParseRepomd(t *testing.T) {
	repomd, err := ParseRepomd(strings.NewReader(repomdFixture), ReadOptions{})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	if repomd.Revision != "1615686706" {
		t.Errorf("revision = %q", repomd.Revision)
	}
	if len(repomd.RepoTags) != 1 || repomd.RepoTags[0] != "Fedora" {
		t.Errorf("repo tags = %+v", repomd.RepoTags)
	}
	if len(repomd.ContentTags) != 1 || repomd.ContentTags[0] != "binary-x86_64" {
		t.Errorf("content tags = %+v", repomd.ContentTags)
	}
	if len(repomd.DistroTags) != 1 {
		t.Fatalf("distro tags = %+v", repomd.DistroTags)
	}
	if repomd.DistroTags[0] != (DistroTag{CPEID: "cpe:/o:fedoraproject:fedora:33", Name: "Fedora 33"}) {
		t.Errorf("distro tag = %+v", repomd.DistroTags[0])
	}
	if len(repomd.Records) != 4 {
		t.Fatalf("records = %d", len(repomd.Records))
	}

	primary := repomd.Record(MetadataPrimary)
	if primary == nil {
		t.Fatal("missing primary record")
	}
	if primary.LocationHref != "repodata/primary.xml.gz" {
		t.Errorf("primary href = %q", primary.LocationHref)
	}
	if primary.Size != 2621 || primary.OpenSize != 38870 {
		t.Errorf("primary sizes = %d %d", primary.Size, primary.OpenSize)
	}
	if primary.Checksum.Type != ChecksumSHA256 {
		t.Errorf("primary checksum type = %q", primary.Checksum.Type)
	}

	filelists := repomd.Record(MetadataFilelists)
	if filelists.LocationBase != "http://mirror.example/repo" {
		t.Errorf("filelists base = %q", filelists.LocationBase)
	}

	zck := repomd.Record("primary_zck")
	if zck.HeaderSize != 280 || zck.HeaderChecksum.Value != "dddfff345398c32bd7a7b1f21fcb806c95aaad8683e4c58e50e9a7da600dbd0a" {
		t.Errorf("zchunk fields = %+v", zck)
	}

	db := repomd.Record("other_db")
	if db.DatabaseVersion != 10 {
		t.Errorf("database version = %d", db.DatabaseVersion)
	}
	if db.OpenChecksum.Type != "" {
		t.Errorf("open checksum should be absent, got %+v", db.OpenChecksum)
	}
}

func TestRepomdRoundTrip(t *testing.T) {
	repomd, err := ParseRepomd(strings.NewReader(repomdFixture), ReadOptions{})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteRepomd(&buf, repomd); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if buf.String() != repomdFixture {
		t.Errorf("round trip produced different bytes\ngot:\n%s\nwant:\n%s", buf.String(), repomdFixture)
	}
}

func TestParseRepomdLegacySHA(t *testing.T) {
	doc := strings.Replace(repomdFixture,
		`<checksum type="sha256">aaafff`, `<checksum type="sha">aaafff`, 1)

	repomd, err := ParseRepomd(strings.NewReader(doc), ReadOptions{})
	if err != nil {
		t.Fatalf("legacy sha should parse by default: %v", err)
	}
	if repomd.Record(MetadataPrimary).Checksum.Type != ChecksumSHA1 {
		t.Errorf("legacy sha not read as sha1: %+v", repomd.Record(MetadataPrimary).Checksum)
	}

	_, err = ParseRepomd(strings.NewReader(doc), ReadOptions{RejectLegacySHA: true})
	var merr *MetadataError
	if !errors.As(err, &merr) || merr.Kind != ErrUnsupportedChecksum {
		t.Fatalf("expected UnsupportedChecksum in strict mode, got %v", err)
	}
}

func TestParseRepomdWrongNamespace(t *testing.T) {
	doc := strings.Replace(repomdFixture,
		`xmlns="http://linux.duke.edu/metadata/repo"`,
		`xmlns="http://example.com/not-repo"`, 1)
	_, err := ParseRepomd(strings.NewReader(doc), ReadOptions{})
	var merr *MetadataError
	if !errors.As(err, &merr) || merr.Kind != ErrInvalidXML {
		t.Fatalf("expected InvalidXML for wrong namespace, got %v", err)
	}
}

func TestParseRepomdMissingField(t *testing.T) {
	doc := strings.Replace(repomdFixture,
		"    <timestamp>1615686706</timestamp>\n    <size>2621</size>\n", "    <size>2621</size>\n", 1)
	_, err := ParseRepomd(strings.NewReader(doc), ReadOptions{})
	var merr *MetadataError
	if !errors.As(err, &merr) || merr.Kind != ErrMissingField {
		t.Fatalf("expected MissingField, got %v", err)
	}
}

func TestRepomdAddRecordReplaces(t *testing.T) {
	var repomd Repomd
	repomd.AddRecord(RepomdRecord{Type: MetadataPrimary, LocationHref: "a"})
	repomd.AddRecord(RepomdRecord{Type: MetadataOther, LocationHref: "b"})
	repomd.AddRecord(RepomdRecord{Type: MetadataPrimary, LocationHref: "c"})

	if len(repomd.Records) != 2 {
		t.Fatalf("records = %+v", repomd.Records)
	}
	if repomd.Record(MetadataPrimary).LocationHref != "c" {
		t.Errorf("primary record not replaced: %+v", repomd.Record(MetadataPrimary))
	}
}
