package fscap

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const hexDigits = "0123456789abcdef"

// Escape replaces every byte name forbids for family with a lower-case
// %XX, and escapes the two self-referential names ("." and "..") in
// full, per spec §4.1.
func Escape(family Family, name string) string {
	if name == "." {
		return "%2e"
	}
	if name == ".." {
		return "%2e%2e"
	}

	forbidden := forbiddenBytes[family]
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isForbidden(forbidden, c) {
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xf])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Unescape is the inverse of Escape: a well-formed %XX sequence is
// decoded only when the byte it decodes to is forbidden in family,
// so user content that happens to contain a literal "%XX" substring
// is never mis-decoded (spec §4.1).
func Unescape(family Family, name string) string {
	forbidden := forbiddenBytes[family]
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '%' && i+2 < len(name) {
			hi, okHi := hexVal(name[i+1])
			lo, okLo := hexVal(name[i+2])
			if okHi && okLo {
				decoded := byte(hi<<4 | lo)
				if isForbidden(forbidden, decoded) {
					b.WriteByte(decoded)
					i += 2
					continue
				}
			}
		}
		b.WriteByte(name[i])
	}
	return b.String()
}

func isForbidden(forbidden []byte, c byte) bool {
	for _, f := range forbidden {
		if f == c {
			return true
		}
	}
	return false
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// NormalizeForCloud composes name to NFC when it crosses from local to
// cloud (spec §4.1), tolerating embedded NUL bytes rather than
// rejecting them outright.
func NormalizeForCloud(name string) string {
	return norm.NFC.String(name)
}
