// Package debris owns the two per-sync-root filesystem fixtures spec
// §6 names outside the SyncNodeCache/ConfigStore pair: the ".debris"
// directory tree that fscap.Capability.DeleteToDebris moves conflict
// losers into, and the "tmp" lock-file that guards a sync root against
// two processes running the same sync concurrently. It is the direct
// generalization of workspace.go's single workspace-wide lock-file to
// one lock per sync root, and reuses its EnsureDir-then-flock pattern.
package debris

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"

	"github.com/foldersync/syncengine/internal/utils"
)

const (
	dirName  = ".debris"
	lockName = "tmp"
)

// ErrAlreadyRunning is returned by Lock when another process already
// holds the lock-file for this sync root.
var ErrAlreadyRunning = errors.New("debris: sync root already locked by another process")

// Guard owns one sync root's debris directory and startup lock-file.
type Guard struct {
	root string
	lock *flock.Flock
}

// New returns a Guard for syncRoot, without touching the filesystem
// yet — call Lock to actually acquire the startup lock.
func New(syncRoot string) *Guard {
	return &Guard{
		root: syncRoot,
		lock: flock.New(filepath.Join(syncRoot, dirName, lockName)),
	}
}

// Dir is the debris root directory (<syncRoot>/.debris), the same path
// fscap.New's debrisDir argument should be given.
func (g *Guard) Dir() string {
	return filepath.Join(g.root, dirName)
}

// Lock creates the debris directory if needed and acquires the
// permanent startup lock-file, detecting a concurrent sync run against
// the same root (spec §6). The lock-file is "permanent" in the sense
// that it is never removed on a clean shutdown either — Unlock only
// releases the OS-level advisory lock, so a stale lock-file left by a
// crashed process does not by itself block the next run; flock.TryLock
// only fails while the original process (or its OS-level lock) is
// still alive.
func (g *Guard) Lock() error {
	if err := utils.EnsureDir(g.Dir()); err != nil {
		return fmt.Errorf("create debris dir: %w", err)
	}

	locked, err := g.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock sync root: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	return nil
}

// Unlock releases this process's hold on the startup lock. It does not
// delete the lock-file, matching spec §6's "permanent lock-file"
// wording — the file itself is the marker, not its presence-vs-absence.
func (g *Guard) Unlock() error {
	if !g.lock.Locked() {
		return nil
	}
	return g.lock.Unlock()
}

// TodaySubdir returns <syncRoot>/.debris/YYYYMMDD for dateStamp (e.g.
// time.Now().Format("20060102")), creating it if it doesn't exist yet.
// The caller supplies the already-formatted stamp rather than a
// time.Time so this package never calls time.Now() itself.
func (g *Guard) TodaySubdir(dateStamp string) (string, error) {
	dir := filepath.Join(g.Dir(), dateStamp)
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("create dated debris subdir: %w", err)
	}
	return dir, nil
}

// Purge removes debris subdirectories older than keep dated stamps,
// given the full sorted list of stamps currently present (oldest
// first) via ListDated. Callers decide the retention count; this
// package has no opinion on how long debris should live.
func (g *Guard) Purge(stamps []string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	if len(stamps) <= keep {
		return nil
	}
	for _, stamp := range stamps[:len(stamps)-keep] {
		if err := os.RemoveAll(filepath.Join(g.Dir(), stamp)); err != nil {
			return fmt.Errorf("remove debris subdir %s: %w", stamp, err)
		}
	}
	return nil
}

// ListDated returns the dated subdirectory names currently present
// under the debris directory, sorted oldest first (YYYYMMDD sorts
// lexicographically in date order).
func (g *Guard) ListDated() ([]string, error) {
	entries, err := os.ReadDir(g.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list debris dir: %w", err)
	}
	var stamps []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != lockName {
			stamps = append(stamps, e.Name())
		}
	}
	sort.Strings(stamps)
	return stamps, nil
}
