//go:build !linux && !darwin

package fscap

import "os"

// stableFsID has no portable device/inode source on this platform, so
// local-ID move matching is disabled here and the reconciler falls
// back to its fingerprint/name heuristics.
func stableFsID(info os.FileInfo) string {
	return ""
}
