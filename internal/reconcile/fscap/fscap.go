// Package fscap abstracts local filesystem access behind a small
// capability interface: stat, open with a stale-since-stat contract,
// directory iteration, rename/move, delete-to-debris, and filesystem
// family detection. Concrete variants are selected at construction
// rather than through a class hierarchy (spec §9's "deep inheritance"
// redesign flag).
package fscap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/foldersync/syncengine/internal/reconcile/model"
)

// ErrStale is returned by Open when the file changed between Stat and
// Open (spec §4.1's "check unchanged since open" contract).
var ErrStale = errors.New("fscap: file changed since stat")

// StatResult is a typed, pre-classified stat record.
type StatResult struct {
	Type      model.NodeType
	Size      int64
	ModTime   time.Time
	FsID      string
	ShortName string
}

// Capability is the concrete, local-OS-backed implementation of
// FsCapability. One Capability is constructed per sync root so its
// detected Family and debris directory are fixed for that root's
// lifetime.
type Capability struct {
	root      string
	family    Family
	debrisDir string
}

// New detects root's filesystem family and returns a ready Capability.
// debrisDir is where DeleteToDebris moves displaced files (spec §6).
func New(root, debrisDir string) (*Capability, error) {
	family, err := DetectFamily(root)
	if err != nil {
		return nil, fmt.Errorf("detect filesystem family: %w", err)
	}
	return &Capability{root: root, family: family, debrisDir: debrisDir}, nil
}

func (c *Capability) Family() Family { return c.family }

// CaseFoldEqual compares two names using this capability's detected
// family's case-fold rule.
func (c *Capability) CaseFoldEqual(a, b string) bool {
	return CaseFold(c.family, a) == CaseFold(c.family, b)
}

// Stat returns a typed stat record for path.
func (c *Capability) Stat(path string) (*StatResult, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	typ := model.NodeTypeFile
	if info.IsDir() {
		typ = model.NodeTypeFolder
	}
	fsid := stableFsID(info)
	return &StatResult{
		Type:      typ,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		FsID:      fsid,
		ShortName: info.Name(),
	}, nil
}

// OpenMode selects read or read+write access for Open.
type OpenMode int

const (
	OpenRead OpenMode = iota
	OpenReadWrite
)

// Open opens path for reading or read+write, failing with ErrStale if
// the file's size or mtime changed between the prior Stat and this
// call — the engine always stats immediately before opening so a
// concurrent external edit is caught instead of silently read through.
func (c *Capability) Open(path string, mode OpenMode, expect *StatResult) (*os.File, error) {
	flag := os.O_RDONLY
	if mode == OpenReadWrite {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}

	if expect != nil {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		if info.Size() != expect.Size || !info.ModTime().Equal(expect.ModTime) {
			f.Close()
			return nil, ErrStale
		}
	}
	return f, nil
}

// Iterate lists dir's immediate children as StatResult-lite FsNodes,
// in a deterministic case-folded-name order so reconciler tie-breaks
// are reproducible (spec §4.2).
func (c *Capability) Iterate(dir string) ([]model.FsNode, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	nodes := make([]model.FsNode, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue // transient: vanished between ReadDir and Info
		}
		typ := model.NodeTypeFile
		if info.IsDir() {
			typ = model.NodeTypeFolder
		}
		nodes = append(nodes, model.FsNode{
			Name:      e.Name(),
			ShortName: e.Name(),
			Type:      typ,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			FsID:      stableFsID(info),
		})
	}

	sort.Slice(nodes, func(i, j int) bool {
		return CaseFold(c.family, nodes[i].Name) < CaseFold(c.family, nodes[j].Name)
	})
	return nodes, nil
}

// Rename renames oldPath to a new name within the same directory.
func (c *Capability) Rename(oldPath, newName string) error {
	return os.Rename(oldPath, filepath.Join(filepath.Dir(oldPath), newName))
}

// Move moves oldPath under newParentDir, keeping its base name, within
// the same device.
func (c *Capability) Move(oldPath, newParentDir string) error {
	return os.Rename(oldPath, filepath.Join(newParentDir, filepath.Base(oldPath)))
}

// Mkdir creates path and any missing parents, succeeding if path
// already exists as a directory — used to materialize a cloud-only
// folder locally during a downsync.
func (c *Capability) Mkdir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// DeleteToDebris atomically moves path into this sync's dated debris
// directory instead of deleting it outright, so conflict-displaced or
// cloud-deleted files remain recoverable (spec §6).
func (c *Capability) DeleteToDebris(path string) (string, error) {
	day := time.Now().Format("20060102")
	dest := filepath.Join(c.debrisDir, day)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("ensure debris dir: %w", err)
	}

	target := filepath.Join(dest, filepath.Base(path))
	target = uniqueTarget(target)
	if err := os.Rename(path, target); err != nil {
		// cross-device: fall back to copy+remove
		if copyErr := copyThenRemove(path, target); copyErr != nil {
			return "", fmt.Errorf("move to debris: %w", err)
		}
	}
	return target, nil
}

func uniqueTarget(target string) string {
	if _, err := os.Stat(target); err != nil {
		return target
	}
	ext := filepath.Ext(target)
	base := target[:len(target)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d%s", base, i, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

func copyThenRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
