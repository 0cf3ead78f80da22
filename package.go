package rpmmd

import (
	"fmt"
	"strings"
)

// EVR is the epoch/version/release triple. An absent epoch is normalized to
// "0" on parse and always serialized explicitly.
type EVR struct {
	Epoch   string
	Version string
	Release string
}

// NewEVR builds an EVR, defaulting an empty epoch to "0".
func NewEVR(epoch, version, release string) EVR {
	if epoch == "" {
		epoch = "0"
	}
	return EVR{Epoch: epoch, Version: version, Release: release}
}

func (e EVR) String() string {
	if e.Epoch != "" && e.Epoch != "0" {
		return fmt.Sprintf("%s:%s-%s", e.Epoch, e.Version, e.Release)
	}
	return fmt.Sprintf("%s-%s", e.Version, e.Release)
}

// RequirementFlag values as they appear in rpm:entry flags attributes.
const (
	FlagEQ = "EQ"
	FlagLT = "LT"
	FlagGT = "GT"
	FlagLE = "LE"
	FlagGE = "GE"
)

func validFlag(s string) bool {
	switch s {
	case "", FlagEQ, FlagLT, FlagGT, FlagLE, FlagGE:
		return true
	}
	return false
}

// Requirement is one dependency entry (provides, requires, conflicts,
// obsoletes, suggests, enhances, recommends, supplements). Epoch, Version
// and Release are empty when the attribute is absent so that re-serialization
// matches the input. Pre is meaningful for requires only.
type Requirement struct {
	Name    string
	Flags   string
	Epoch   string
	Version string
	Release string
	Pre     bool
}

// FileType classifies an entry in a package file list.
type FileType int

const (
	FileRegular FileType = iota
	FileDir
	FileGhost
)

// String returns the type attribute value; regular files serialize with no
// type attribute at all.
func (t FileType) String() string {
	switch t {
	case FileDir:
		return "dir"
	case FileGhost:
		return "ghost"
	default:
		return "file"
	}
}

func parseFileType(s string) (FileType, error) {
	switch s {
	case "", "file":
		return FileRegular, nil
	case "dir":
		return FileDir, nil
	case "ghost":
		return FileGhost, nil
	default:
		return FileRegular, fmt.Errorf("unknown file type %q", s)
	}
}

// PackageFile is one installed path of a package.
type PackageFile struct {
	Type FileType
	Path string
}

// Changelog is one changelog entry of a package.
type Changelog struct {
	Author string
	Date   int64
	Text   string
}

// Time carries the file mtime and build time of a package.
type Time struct {
	File  int64
	Build int64
}

// Size carries the package, installed and archive sizes.
type Size struct {
	Package   uint64
	Installed uint64
	Archive   uint64
}

// HeaderRange is the byte range of the rpm header within the package file.
type HeaderRange struct {
	Start uint64
	End   uint64
}

// Package is one package record joined across the primary, filelists and
// other streams. The checksum value is the pkgid that ties the streams
// together.
type Package struct {
	Name     string
	Arch     string
	EVR      EVR
	Checksum Checksum

	LocationHref string
	LocationBase string

	Summary     string
	Description string
	Packager    string
	URL         string
	Time        Time
	Size        Size

	License     string
	Vendor      string
	Group       string
	BuildHost   string
	SourceRPM   string
	HeaderRange HeaderRange

	Provides    []Requirement
	Requires    []Requirement
	Conflicts   []Requirement
	Obsoletes   []Requirement
	Suggests    []Requirement
	Enhances    []Requirement
	Recommends  []Requirement
	Supplements []Requirement

	Files      []PackageFile
	Changelogs []Changelog
}

// PkgID returns the package's content checksum value.
func (p *Package) PkgID() string {
	return p.Checksum.Value
}

// NEVRA returns the name-epoch:version-release.arch identity string.
func (p *Package) NEVRA() string {
	epoch := ""
	if p.EVR.Epoch != "" && p.EVR.Epoch != "0" {
		epoch = p.EVR.Epoch + ":"
	}
	return fmt.Sprintf("%s-%s%s-%s.%s", p.Name, epoch, p.EVR.Version, p.EVR.Release, p.Arch)
}

// primaryFileSubset reports whether a file entry is duplicated into
// primary.xml. The rule is historical: paths under /etc/, any path containing
// the substring bin/ (so sbin/ matches too), and /usr/lib/sendmail. Existing consumers depend on this
// exact subset, so it must not be "improved".
func primaryFileSubset(f PackageFile) bool {
	return strings.HasPrefix(f.Path, "/etc/") ||
		strings.Contains(f.Path, "bin/") ||
		strings.HasPrefix(f.Path, "/usr/lib/sendmail")
}
