// Package rpmfile extracts repository metadata records from .rpm files on
// disk. It feeds the repository writer; nothing in the metadata core depends
// on it.
package rpmfile

import (
	"fmt"
	"os"
	"strings"

	"github.com/sassoftware/go-rpmutils"

	"github.com/ralt/rpmmd"
	"github.com/ralt/rpmmd/internal/checksum"
)

// rpm dependency sense bits, as stored in REQUIREFLAGS and friends.
const (
	senseLess       = 1 << 1
	senseGreater    = 1 << 2
	senseEqual      = 1 << 3
	sensePrereq     = 1 << 6
	senseScriptPre  = 1 << 9
	senseScriptPost = 1 << 10
)

// rpm file flag marking a ghost entry (RPMFILE_GHOST).
const fileFlagGhost = 1 << 6

// ParsePackage reads an RPM file and builds its metadata record. The
// location href is left for the caller to assign.
func ParsePackage(path string, checksumType rpmmd.ChecksumType) (*rpmmd.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read RPM %s: %w", path, err)
	}

	// The pkgid is a digest of the whole file.
	h, err := checksumType.NewHash()
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	_, digest, err := checksum.Digest(f, h)
	if err != nil {
		return nil, err
	}

	hdr := rpm.Header
	pkg := &rpmmd.Package{
		Name: getStringTag(hdr, rpmutils.NAME),
		Arch: getStringTag(hdr, rpmutils.ARCH),
		EVR: rpmmd.NewEVR(
			getIntTagString(hdr, rpmutils.EPOCH),
			getStringTag(hdr, rpmutils.VERSION),
			getStringTag(hdr, rpmutils.RELEASE),
		),
		Checksum:    rpmmd.Checksum{Type: checksumType, Value: digest},
		Summary:     getStringTag(hdr, rpmutils.SUMMARY),
		Description: getStringTag(hdr, rpmutils.DESCRIPTION),
		Packager:    getStringTag(hdr, rpmutils.PACKAGER),
		URL:         getStringTag(hdr, rpmutils.URL),
		License:     getStringTag(hdr, rpmutils.LICENSE),
		Vendor:      getStringTag(hdr, rpmutils.VENDOR),
		Group:       getStringTag(hdr, rpmutils.GROUP),
		BuildHost:   getStringTag(hdr, rpmutils.BUILDHOST),
		SourceRPM:   getStringTag(hdr, rpmutils.SOURCERPM),
		Time: rpmmd.Time{
			File:  info.ModTime().Unix(),
			Build: getIntTag(hdr, rpmutils.BUILDTIME),
		},
		Size: rpmmd.Size{
			Package: uint64(info.Size()),
		},
	}
	if installed, err := hdr.InstalledSize(); err == nil {
		pkg.Size.Installed = uint64(installed)
	}
	if archive, err := hdr.PayloadSize(); err == nil {
		pkg.Size.Archive = uint64(archive)
	}

	pkg.Provides = getDependencies(hdr, rpmutils.PROVIDENAME, rpmutils.PROVIDEVERSION, rpmutils.PROVIDEFLAGS)
	pkg.Requires = getDependencies(hdr, rpmutils.REQUIRENAME, rpmutils.REQUIREVERSION, rpmutils.REQUIREFLAGS)
	pkg.Conflicts = getDependencies(hdr, rpmutils.CONFLICTNAME, rpmutils.CONFLICTVERSION, rpmutils.CONFLICTFLAGS)
	pkg.Obsoletes = getDependencies(hdr, rpmutils.OBSOLETENAME, rpmutils.OBSOLETEVERSION, rpmutils.OBSOLETEFLAGS)

	pkg.Files = getFiles(hdr)
	pkg.Changelogs = getChangelogs(hdr)

	return pkg, nil
}

// getDependencies assembles the dependency list stored across three parallel
// tag arrays. rpmlib() pseudo-requirements are dropped; they describe the
// installer, not the package.
func getDependencies(hdr *rpmutils.RpmHeader, nameTag, versionTag, flagsTag int) []rpmmd.Requirement {
	names := getStringSliceTag(hdr, nameTag)
	versions := getStringSliceTag(hdr, versionTag)
	flags := getIntSliceTag(hdr, flagsTag)

	var deps []rpmmd.Requirement
	for i, name := range names {
		if strings.HasPrefix(name, "rpmlib(") {
			continue
		}
		dep := rpmmd.Requirement{Name: name}
		var sense int64
		if i < len(flags) {
			sense = flags[i]
		}
		dep.Flags = flagString(sense)
		if dep.Flags != "" && i < len(versions) && versions[i] != "" {
			dep.Epoch, dep.Version, dep.Release = splitEVR(versions[i])
		}
		if sense&(sensePrereq|senseScriptPre|senseScriptPost) != 0 {
			dep.Pre = true
		}
		deps = append(deps, dep)
	}
	return deps
}

func flagString(sense int64) string {
	switch {
	case sense&senseLess != 0 && sense&senseEqual != 0:
		return rpmmd.FlagLE
	case sense&senseGreater != 0 && sense&senseEqual != 0:
		return rpmmd.FlagGE
	case sense&senseLess != 0:
		return rpmmd.FlagLT
	case sense&senseGreater != 0:
		return rpmmd.FlagGT
	case sense&senseEqual != 0:
		return rpmmd.FlagEQ
	default:
		return ""
	}
}

// splitEVR parses the "epoch:version-release" form used in dependency
// version tags. Epoch and release may be absent.
func splitEVR(evr string) (epoch, version, release string) {
	epoch = "0"
	if i := strings.IndexByte(evr, ':'); i >= 0 {
		epoch, evr = evr[:i], evr[i+1:]
	}
	version = evr
	if i := strings.LastIndexByte(evr, '-'); i >= 0 {
		version, release = evr[:i], evr[i+1:]
	}
	return epoch, version, release
}

func getFiles(hdr *rpmutils.RpmHeader) []rpmmd.PackageFile {
	infos, err := hdr.GetFiles()
	if err != nil {
		return nil
	}
	var files []rpmmd.PackageFile
	for _, fi := range infos {
		f := rpmmd.PackageFile{Path: fi.Name()}
		switch {
		case fi.Flags()&fileFlagGhost != 0:
			f.Type = rpmmd.FileGhost
		case fi.Mode()&0170000 == 040000:
			f.Type = rpmmd.FileDir
		}
		files = append(files, f)
	}
	return files
}

func getChangelogs(hdr *rpmutils.RpmHeader) []rpmmd.Changelog {
	authors := getStringSliceTag(hdr, rpmutils.CHANGELOGNAME)
	times := getIntSliceTag(hdr, rpmutils.CHANGELOGTIME)
	texts := getStringSliceTag(hdr, rpmutils.CHANGELOGTEXT)

	var logs []rpmmd.Changelog
	for i, author := range authors {
		c := rpmmd.Changelog{Author: author}
		if i < len(times) {
			c.Date = times[i]
		}
		if i < len(texts) {
			c.Text = texts[i]
		}
		logs = append(logs, c)
	}
	return logs
}

// getStringTag safely gets a string tag from the header
func getStringTag(hdr *rpmutils.RpmHeader, tag int) string {
	val, err := hdr.Get(tag)
	if err != nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// getStringSliceTag safely gets a string slice tag from the header
func getStringSliceTag(hdr *rpmutils.RpmHeader, tag int) []string {
	val, err := hdr.Get(tag)
	if err != nil {
		return nil
	}
	if slice, ok := val.([]string); ok {
		return slice
	}
	return nil
}

// getIntTag safely gets an integer tag from the header
func getIntTag(hdr *rpmutils.RpmHeader, tag int) int64 {
	vals := getIntSliceTag(hdr, tag)
	if len(vals) > 0 {
		return vals[0]
	}
	return 0
}

// getIntTagString returns an integer tag as its decimal form, or empty when
// the tag is absent.
func getIntTagString(hdr *rpmutils.RpmHeader, tag int) string {
	val, err := hdr.Get(tag)
	if err != nil {
		return ""
	}
	vals := toInt64s(val)
	if len(vals) == 0 {
		return ""
	}
	return fmt.Sprintf("%d", vals[0])
}

// getIntSliceTag safely gets an integer slice tag from the header
func getIntSliceTag(hdr *rpmutils.RpmHeader, tag int) []int64 {
	val, err := hdr.Get(tag)
	if err != nil {
		return nil
	}
	return toInt64s(val)
}

func toInt64s(val interface{}) []int64 {
	switch v := val.(type) {
	case []int64:
		return v
	case []int32:
		out := make([]int64, len(v))
		for i, n := range v {
			out[i] = int64(n)
		}
		return out
	case []uint32:
		out := make([]int64, len(v))
		for i, n := range v {
			out[i] = int64(n)
		}
		return out
	case []int:
		out := make([]int64, len(v))
		for i, n := range v {
			out[i] = int64(n)
		}
		return out
	case int64:
		return []int64{v}
	case int:
		return []int64{int64(v)}
	}
	return nil
}
