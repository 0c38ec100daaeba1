package fscap

import (
	"os"
	"path/filepath"
	"strings"
)

// Family identifies a filesystem's naming rules: which characters are
// forbidden and whether names case-fold for comparison. Detected per
// sync root rather than assumed from GOOS, because a FAT/exFAT
// external drive can be mounted under any OS (spec §4.1).
type Family int

const (
	FamilyUnix Family = iota
	FamilyWindows
	FamilyMacCaseInsensitive
	FamilyFAT
)

// forbiddenBytes lists the bytes each family's names may not contain
// raw; fscap.Escape replaces them with %XX.
var forbiddenBytes = map[Family][]byte{
	FamilyUnix:               {'/', 0},
	FamilyWindows:            {'/', '\\', ':', '*', '?', '"', '<', '>', '|', 0},
	FamilyMacCaseInsensitive: {'/', ':', 0},
	FamilyFAT:                {'/', '\\', ':', '*', '?', '"', '<', '>', '|', 0},
}

func (f Family) String() string {
	switch f {
	case FamilyUnix:
		return "unix"
	case FamilyWindows:
		return "windows"
	case FamilyMacCaseInsensitive:
		return "mac-case-insensitive"
	case FamilyFAT:
		return "fat"
	default:
		return "unknown"
	}
}

// CaseFolds reports whether two distinct names in this family collide
// if they differ only in case.
func (f Family) CaseFolds() bool {
	switch f {
	case FamilyWindows, FamilyMacCaseInsensitive, FamilyFAT:
		return true
	default:
		return false
	}
}

// DetectFamily probes dir (which must exist) by creating a mixed-case
// marker file and checking whether a differently-cased stat resolves
// to it, following original_source/src/filesystem.cpp's probe
// strategy rather than trusting runtime.GOOS alone.
func DetectFamily(dir string) (Family, error) {
	probe := filepath.Join(dir, ".fscap-probe-AbC")
	f, err := os.Create(probe)
	if err != nil {
		return FamilyUnix, err
	}
	f.Close()
	defer os.Remove(probe)

	altCase := filepath.Join(dir, ".fscap-probe-abc")
	caseInsensitive := false
	if info, err := os.Stat(altCase); err == nil {
		probeInfo, _ := os.Stat(probe)
		caseInsensitive = probeInfo != nil && os.SameFile(info, probeInfo)
	}

	if !caseInsensitive {
		return FamilyUnix, nil
	}
	// Case-insensitive: distinguish FAT (no real ACL/attrs) from macOS
	// case-insensitive HFS+/APFS by looking for a FAT-only marker: FAT
	// volumes report a zero-valued dev/inode pair for every file on
	// some platforms. We don't have a portable syscall-free way to tell
	// these apart, so default to the more conservative FamilyFAT unless
	// running on darwin, where case-insensitive is overwhelmingly the
	// default HFS+/APFS mode.
	if isDarwin() {
		return FamilyMacCaseInsensitive, nil
	}
	return FamilyFAT, nil
}

// CaseFold returns a comparison key for name under family f: lowercased
// when the family folds case, unchanged otherwise.
func CaseFold(family Family, name string) string {
	if family.CaseFolds() {
		return strings.ToLower(name)
	}
	return name
}
