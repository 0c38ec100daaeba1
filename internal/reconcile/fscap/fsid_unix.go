//go:build linux || darwin

package fscap

import (
	"fmt"
	"os"
	"syscall"
)

// stableFsID derives a filesystem-local identifier for info that
// survives a rename (spec §4.3's move-detection by local ID), backed
// by the device/inode pair.
func stableFsID(info os.FileInfo) string {
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%d:%d", sys.Dev, sys.Ino)
}
