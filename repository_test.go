package rpmmd

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func complexTestPackage() *Package {
	return &Package{
		Name: "complex-package",
		Arch: "x86_64",
		EVR:  NewEVR("1", "2.3.4", "5.el8"),
		Checksum: Checksum{
			Type:  ChecksumSHA256,
			Value: "bbb7b0e9350a0f75b923bdd0ef4f9af39765c668a3e70bfd3486ea9f0f618aaf",
		},
		LocationHref: "complex-package-2.3.4-5.el8.x86_64.rpm",
		Summary:      "A package for exercising many different features of RPM metadata",
		Description:  "Complex package with & escapes <here> and \"quotes\" and 'apostrophes'",
		Packager:     "Michael Bluth",
		URL:          "http://bobloblaw.com",
		Time:         Time{File: 1627052744, Build: 1627052743},
		Size:         Size{Package: 8680, Installed: 117, Archive: 932},
		License:      "MPLv2",
		Vendor:       "Bluth Company",
		Group:        "Development/Tools",
		BuildHost:    "localhost",
		SourceRPM:    "complex-package-2.3.4-5.el8.src.rpm",
		HeaderRange:  HeaderRange{Start: 4504, End: 8413},
		Provides: []Requirement{
			{Name: "complex-package", Flags: "EQ", Epoch: "1", Version: "2.3.4", Release: "5.el8"},
		},
		Requires: []Requirement{
			{Name: "/usr/sbin/useradd", Pre: true},
			{Name: "arson", Flags: "GE", Epoch: "0", Version: "1.0.0", Release: "1"},
		},
		Files: []PackageFile{
			{Path: "/usr/bin/complex_a"},
			{Type: FileDir, Path: "/etc/complex-package"},
			{Path: "/etc/complex-package/config.ini"},
			{Type: FileGhost, Path: "/var/lib/complex-package/dump.log"},
		},
		Changelogs: []Changelog{
			{Author: "Lucille Bluth <lucille@bluthcompany.com> - 1.1.1-1", Date: 1617192000, Text: "- banana stand"},
			{Author: "Job Bluth <job@alliance-of-magicians.com> - 2.3.4-5", Date: 1617249600, Text: "- I've made a huge mistake"},
		},
	}
}

func nonASCIITestPackage() *Package {
	return &Package{
		Name: "rpm-with-non-ascii",
		Arch: "noarch",
		EVR:  NewEVR("", "1", "1.fc33"),
		Checksum: Checksum{
			Type:  ChecksumSHA256,
			Value: "aaa7b0e9350a0f75b923bdd0ef4f9af39765c668a3e70bfd3486ea9f0f618aaf",
		},
		LocationHref: "rpm-with-non-ascii-1-1.fc33.noarch.rpm",
		Summary:      "Ā ƀ ɐ ʰ À Ͱ",
		Description:  "non-ascii description: Ā ƀ ɐ ʰ À Ͱ",
	}
}

func plainTestPackage() *Package {
	return &Package{
		Name: "rpm-empty",
		Arch: "x86_64",
		EVR:  NewEVR("", "0", "0"),
		Checksum: Checksum{
			Type:  ChecksumSHA256,
			Value: "ccc7b0e9350a0f75b923bdd0ef4f9af39765c668a3e70bfd3486ea9f0f618aaf",
		},
		LocationHref: "rpm-empty-0-0.x86_64.rpm",
	}
}

func writeTestRepository(t *testing.T, root string, opts RepositoryOptions, pkgs []*Package) {
	t.Helper()
	w, err := NewRepositoryWriterOptions(root, len(pkgs), opts)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()
	for _, p := range pkgs {
		if err := w.AddPackage(p); err != nil {
			t.Fatalf("failed to add package: %v", err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("failed to finish: %v", err)
	}
}

func readAllPackages(t *testing.T, root string) []*Package {
	t.Helper()
	reader, err := OpenRepository(root)
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	it, err := reader.IterPackages(context.Background())
	if err != nil {
		t.Fatalf("failed to open iterator: %v", err)
	}
	defer it.Close()

	var pkgs []*Package
	for {
		pkg, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read package: %v", err)
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs
}

func TestRepositoryRoundTripGzip(t *testing.T) {
	root := t.TempDir()
	want := []*Package{complexTestPackage(), plainTestPackage(), nonASCIITestPackage()}
	writeTestRepository(t, root, DefaultRepositoryOptions(), want)

	got := readAllPackages(t, root)
	if len(got) != len(want) {
		t.Fatalf("read %d packages, want %d", len(got), len(want))
	}
	for i := range want {
		if !reflect.DeepEqual(got[i], want[i]) {
			t.Errorf("package %d differs\ngot:  %+v\nwant: %+v", i, got[i], want[i])
		}
	}
}

func TestRepositoryRoundTripXzNonASCII(t *testing.T) {
	root := t.TempDir()
	opts := DefaultRepositoryOptions()
	opts.Compression = CompressionXz
	want := []*Package{nonASCIITestPackage()}
	writeTestRepository(t, root, opts, want)

	got := readAllPackages(t, root)
	if len(got) != 1 {
		t.Fatalf("read %d packages", len(got))
	}
	if got[0].Summary != "Ā ƀ ɐ ʰ À Ͱ" {
		t.Errorf("summary = %q", got[0].Summary)
	}
	if !reflect.DeepEqual(got[0], want[0]) {
		t.Errorf("package differs\ngot:  %+v\nwant: %+v", got[0], want[0])
	}
}

func TestRepositoryRoundTripAllCompressions(t *testing.T) {
	for _, compression := range []CompressionType{CompressionNone, CompressionGzip, CompressionBzip2, CompressionXz, CompressionZstd} {
		root := t.TempDir()
		opts := DefaultRepositoryOptions()
		opts.Compression = compression
		writeTestRepository(t, root, opts, []*Package{complexTestPackage()})

		got := readAllPackages(t, root)
		if len(got) != 1 {
			t.Fatalf("%s: read %d packages", compression, len(got))
		}
		if !reflect.DeepEqual(got[0], complexTestPackage()) {
			t.Errorf("%s: package corrupted in round trip", compression)
		}
	}
}

func TestRepositoryEmpty(t *testing.T) {
	root := t.TempDir()
	writeTestRepository(t, root, DefaultRepositoryOptions(), nil)

	reader, err := OpenRepository(root)
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	it, err := reader.IterPackages(context.Background())
	if err != nil {
		t.Fatalf("failed to open iterator: %v", err)
	}
	defer it.Close()

	if it.TotalPackages() != 0 {
		t.Errorf("total = %d", it.TotalPackages())
	}
	if _, err := it.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestRepositoryWriterStampsRepomd(t *testing.T) {
	root := t.TempDir()
	opts := DefaultRepositoryOptions()
	opts.Revision = "12345"
	opts.RepoTags = []string{"Test Repo"}
	opts.DistroTags = []DistroTag{{Name: "Fedora 33", CPEID: "cpe:/o:fedoraproject:fedora:33"}}
	writeTestRepository(t, root, opts, []*Package{complexTestPackage()})

	reader, err := OpenRepository(root)
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	repomd := reader.Repomd()
	if repomd.Revision != "12345" {
		t.Errorf("revision = %q", repomd.Revision)
	}
	if len(repomd.RepoTags) != 1 || repomd.RepoTags[0] != "Test Repo" {
		t.Errorf("repo tags = %+v", repomd.RepoTags)
	}
	if len(repomd.DistroTags) != 1 || repomd.DistroTags[0].CPEID != "cpe:/o:fedoraproject:fedora:33" {
		t.Errorf("distro tags = %+v", repomd.DistroTags)
	}

	for _, mdtype := range []string{MetadataPrimary, MetadataFilelists, MetadataOther} {
		rec := repomd.Record(mdtype)
		if rec == nil {
			t.Fatalf("missing %s record", mdtype)
		}
		if rec.Size <= 0 || rec.OpenSize <= 0 {
			t.Errorf("%s sizes = %d %d", mdtype, rec.Size, rec.OpenSize)
		}
		if rec.Checksum.Type != ChecksumSHA256 || rec.OpenChecksum.Type != ChecksumSHA256 {
			t.Errorf("%s checksum types = %q %q", mdtype, rec.Checksum.Type, rec.OpenChecksum.Type)
		}
		// Default filenames carry the open checksum prefix.
		if !strings.HasPrefix(rec.LocationHref, "repodata/"+rec.OpenChecksum.Value+"-") {
			t.Errorf("%s href = %q", mdtype, rec.LocationHref)
		}
	}
}

func TestRepositorySimpleFilenames(t *testing.T) {
	root := t.TempDir()
	opts := DefaultRepositoryOptions()
	opts.SimpleMetadataFilenames = true
	writeTestRepository(t, root, opts, []*Package{complexTestPackage()})

	if _, err := os.Stat(filepath.Join(root, "repodata", "primary.xml.gz")); err != nil {
		t.Errorf("primary.xml.gz missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "repodata", "filelists.xml.gz")); err != nil {
		t.Errorf("filelists.xml.gz missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "repodata", "other.xml.gz")); err != nil {
		t.Errorf("other.xml.gz missing: %v", err)
	}
}

func TestRepositoryVerifyMetadata(t *testing.T) {
	root := t.TempDir()
	opts := DefaultRepositoryOptions()
	opts.SimpleMetadataFilenames = true
	writeTestRepository(t, root, opts, []*Package{complexTestPackage()})

	reader, err := OpenRepository(root)
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	if err := reader.VerifyMetadata(context.Background()); err != nil {
		t.Fatalf("verification of a pristine repository failed: %v", err)
	}

	// Corrupt filelists and verify again.
	path := filepath.Join(root, "repodata", "filelists.xml.gz")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	if err := os.WriteFile(path, append(data, 0x00), 0644); err != nil {
		t.Fatalf("failed to corrupt %s: %v", path, err)
	}

	reader, err = OpenRepository(root)
	if err != nil {
		t.Fatalf("failed to reopen repository: %v", err)
	}
	err = reader.VerifyMetadata(context.Background())
	var mismatch *ChecksumMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ChecksumMismatchError, got %v", err)
	}
	if !strings.Contains(mismatch.Path, "filelists.xml.gz") {
		t.Errorf("mismatch path = %q", mismatch.Path)
	}
}

func TestRepositoryWriterAtomicity(t *testing.T) {
	root := t.TempDir()

	// A writer abandoned before Finish publishes nothing.
	w, err := NewRepositoryWriter(root, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	if err := w.AddPackage(complexTestPackage()); err != nil {
		t.Fatalf("failed to add package: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "repodata", "repomd.xml")); !os.IsNotExist(err) {
		t.Error("repomd.xml exists after abandoned write")
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("failed to list root: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".repodata-") {
			t.Errorf("staging directory leaked: %s", e.Name())
		}
	}

	// Finishing with fewer packages than declared fails and publishes
	// nothing either.
	w, err = NewRepositoryWriter(root, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	if err := w.AddPackage(complexTestPackage()); err != nil {
		t.Fatalf("failed to add package: %v", err)
	}
	err = w.Finish()
	var cerr *CountMismatchError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CountMismatchError, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "repodata", "repomd.xml")); !os.IsNotExist(err) {
		t.Error("repomd.xml exists after failed write")
	}
}

func TestRepositoryWriterRejectsExtraPackages(t *testing.T) {
	root := t.TempDir()
	w, err := NewRepositoryWriter(root, 1)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	if err := w.AddPackage(complexTestPackage()); err != nil {
		t.Fatalf("failed to add package: %v", err)
	}
	err = w.AddPackage(plainTestPackage())
	var cerr *CountMismatchError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CountMismatchError, got %v", err)
	}
}

func TestRepositoryWriterRejectsWrongChecksumType(t *testing.T) {
	root := t.TempDir()
	w, err := NewRepositoryWriter(root, 1)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	pkg := complexTestPackage()
	pkg.Checksum.Type = ChecksumSHA1
	err = w.AddPackage(pkg)
	var merr *MetadataError
	if !errors.As(err, &merr) || merr.Kind != ErrInvalidValue {
		t.Fatalf("expected InvalidValue, got %v", err)
	}
}

func TestRepositoryWriterZchunkUnsupported(t *testing.T) {
	opts := DefaultRepositoryOptions()
	opts.Compression = CompressionZchunk
	_, err := NewRepositoryWriterOptions(t.TempDir(), 0, opts)
	var merr *MetadataError
	if !errors.As(err, &merr) || merr.Kind != ErrUnsupportedCompression {
		t.Fatalf("expected UnsupportedCompression, got %v", err)
	}
}

func TestRepositoryMissingMetadata(t *testing.T) {
	root := t.TempDir()
	writeTestRepository(t, root, DefaultRepositoryOptions(), []*Package{complexTestPackage()})

	// Strip the filelists record out of repomd.xml.
	repomdPath := filepath.Join(root, "repodata", "repomd.xml")
	reader, err := OpenRepository(root)
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	repomd := reader.Repomd()
	var kept []RepomdRecord
	for _, rec := range repomd.Records {
		if rec.Type != MetadataFilelists {
			kept = append(kept, rec)
		}
	}
	repomd.Records = kept
	out, err := os.Create(repomdPath)
	if err != nil {
		t.Fatalf("failed to rewrite repomd.xml: %v", err)
	}
	if err := WriteRepomd(out, repomd); err != nil {
		t.Fatalf("failed to write repomd.xml: %v", err)
	}
	out.Close()

	reader, err = OpenRepository(root)
	if err != nil {
		t.Fatalf("failed to reopen repository: %v", err)
	}
	_, err = reader.IterPackages(context.Background())
	var merr *MetadataError
	if !errors.As(err, &merr) || merr.Kind != ErrMissingMetadata {
		t.Fatalf("expected MissingMetadata, got %v", err)
	}
	if merr.Record != MetadataFilelists {
		t.Errorf("missing kind = %q", merr.Record)
	}
}

func TestResolveHref(t *testing.T) {
	rec := &RepomdRecord{LocationHref: "repodata/primary.xml.gz"}
	if got := resolveHref(rec); got != "repodata/primary.xml.gz" {
		t.Errorf("resolveHref = %q", got)
	}
	rec.LocationBase = "/mnt/mirror/fedora/"
	if got := resolveHref(rec); got != "/mnt/mirror/fedora/repodata/primary.xml.gz" {
		t.Errorf("resolveHref with base = %q", got)
	}
}

func TestLoadRepositoryAndWriteTo(t *testing.T) {
	root := t.TempDir()
	want := []*Package{complexTestPackage(), nonASCIITestPackage()}
	writeTestRepository(t, root, DefaultRepositoryOptions(), want)

	repo, err := LoadRepository(root)
	if err != nil {
		t.Fatalf("failed to load repository: %v", err)
	}
	if len(repo.Packages) != 2 {
		t.Fatalf("loaded %d packages", len(repo.Packages))
	}

	// Write the loaded repository elsewhere and confirm the copy reads back
	// identically, package order preserved.
	second := t.TempDir()
	opts := DefaultRepositoryOptions()
	opts.Compression = CompressionZstd
	if err := repo.WriteTo(second, opts); err != nil {
		t.Fatalf("failed to write copy: %v", err)
	}

	got := readAllPackages(t, second)
	if len(got) != len(want) {
		t.Fatalf("copy has %d packages", len(got))
	}
	for i := range want {
		if !reflect.DeepEqual(got[i], want[i]) {
			t.Errorf("package %d differs after copy", i)
		}
	}
}

func TestRepositoryWithAdvisories(t *testing.T) {
	root := t.TempDir()
	w, err := NewRepositoryWriter(root, 1)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	if err := w.AddPackage(complexTestPackage()); err != nil {
		t.Fatalf("failed to add package: %v", err)
	}
	if err := w.AddAdvisory(&UpdateRecord{
		From: "security@example.com", Status: "final", Type: "security", Version: "1",
		ID: "EX-2021-0001", Title: "complex-package security update",
		Severity: "Critical",
	}); err != nil {
		t.Fatalf("failed to add advisory: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("failed to finish: %v", err)
	}

	reader, err := OpenRepository(root)
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	if reader.Repomd().Record(MetadataUpdateinfo) == nil {
		t.Fatal("updateinfo record missing from repomd.xml")
	}

	ur, err := reader.IterAdvisories(context.Background())
	if err != nil {
		t.Fatalf("failed to open advisories: %v", err)
	}
	defer ur.Close()

	rec, err := ur.Next()
	if err != nil {
		t.Fatalf("failed to read advisory: %v", err)
	}
	if rec.ID != "EX-2021-0001" || rec.Severity != "Critical" {
		t.Errorf("advisory = %+v", rec)
	}
	if _, err := ur.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}
