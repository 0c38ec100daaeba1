package reconciler

import (
	"time"

	"github.com/foldersync/syncengine/internal/reconcile/fscap"
	"github.com/foldersync/syncengine/internal/reconcile/model"
)

const mtimeTolerance = time.Second

func mtimesEqual(a, b time.Time) bool {
	delta := a.Sub(b)
	if delta < 0 {
		delta = -delta
	}
	return delta <= mtimeTolerance
}

// CloudFsEqual is the Cloud⇔Fs equality predicate (spec §4.3.5):
// normalized name equal and, for files, the cloud fingerprint's size
// and mtime equal to the scanned entry's (mtime within mtimeTolerance).
// The fingerprint CRC is not compared, since a scan entry carries none.
// Folders compare only on normalized name since they carry no
// fingerprint.
func CloudFsEqual(c *model.CloudNode, f *model.FsNode, family fscap.Family) bool {
	if c == nil || f == nil {
		return c == nil && f == nil
	}
	if fscap.NormalizeForCloud(fscap.CaseFold(family, f.Name)) != fscap.CaseFold(family, c.Name) {
		return false
	}
	if c.Kind != model.CloudKindFile {
		return f.Type == model.NodeTypeFolder
	}
	if f.Type != model.NodeTypeFile {
		return false
	}
	if c.Fingerprint == nil {
		return false
	}
	return c.Fingerprint.Size == f.Size && mtimesEqual(c.Fingerprint.ModTime, f.ModTime)
}

// CloudSyncEqual is the Cloud⇔Sync equality predicate: paired-handle
// equality and current name equal.
func CloudSyncEqual(c *model.CloudNode, s *model.SyncNode) bool {
	if c == nil || s == nil {
		return c == nil && s == nil
	}
	return c.Handle == s.CloudHandle && fscap.NormalizeForCloud(s.Name) == c.Name
}

// FsSyncEqual is the Fs⇔Sync equality predicate: if the SyncNode has a
// stable filesystem ID, compare IDs; otherwise fall back to
// (size, mtime, name) with mtime quantization tolerance.
func FsSyncEqual(f *model.FsNode, s *model.SyncNode, family fscap.Family) bool {
	if f == nil || s == nil {
		return f == nil && s == nil
	}
	if s.FsID != "" {
		return f.FsID != "" && f.FsID == s.FsID
	}
	if fscap.CaseFold(family, f.Name) != fscap.CaseFold(family, s.Name) {
		return false
	}
	if f.Type == model.NodeTypeFile {
		if s.Fingerprint == nil {
			return false
		}
		return f.Size == s.Fingerprint.Size && mtimesEqual(f.ModTime, s.Fingerprint.ModTime)
	}
	return f.Type == s.Type
}
