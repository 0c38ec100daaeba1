package reconciler

import (
	"github.com/foldersync/syncengine/internal/reconcile/fscap"
	"github.com/foldersync/syncengine/internal/reconcile/model"
)

// Action identifies the mutation (if any) a resolved triplet calls
// for. The reconciler issues these through collab.CloudClient,
// collab.Transfer, and fscap.Capability; resolve.go itself never
// performs I/O, so its decisions are pure and directly testable.
type Action int

const (
	// ActionNone: no mutation, recursion proceeds as normal.
	ActionNone Action = iota
	// ActionNoOp: all three sides already agree; recursion proceeds.
	ActionNoOp
	// ActionDeleteSyncNode: both cloud and fs are gone for a node that
	// isn't newly created; drop it from the cache.
	ActionDeleteSyncNode
	// ActionDownsync: materialize a cloud-only entry locally.
	ActionDownsync
	// ActionUpsync: upload an fs-only entry and create its SyncNode.
	ActionUpsync
	// ActionDeleteFromCloud: the sync's local copy vanished and the
	// cloud side predates it; delete the cloud copy.
	ActionDeleteFromCloud
	// ActionRecreateLocal: the local copy vanished but the cloud side
	// is newer; recreate the local copy (cloud wins).
	ActionRecreateLocal
	// ActionLocalDelete: the cloud pairing vanished and the local copy
	// is unchanged since last sync; delete it locally too.
	ActionLocalDelete
	// ActionConflictLocalWins: the cloud pairing vanished but the local
	// copy changed since last sync. It is recorded as an unresolved
	// conflict; the engine issues no mutation for it, so the local copy
	// is not uploaded.
	ActionConflictLocalWins
	// ActionAdopt: an unpaired cloud and fs entry with equal
	// fingerprints; pair them without any data movement.
	ActionAdopt
	// ActionConflictUnpaired: an unpaired cloud and fs entry with
	// differing fingerprints; needs resolution per sync type.
	ActionConflictUnpaired
	// ActionPickWinnerUpsync: both sides changed since last sync and
	// the fs side won the tie-break; upload it over the cloud copy,
	// which is overwritten in place rather than kept in debris.
	ActionPickWinnerUpsync
	// ActionPickWinnerDownsync: both sides changed and the cloud side
	// won; download it, demote the local version to debris.
	ActionPickWinnerDownsync
	// ActionNameConflict: more than one entry on the cloud or fs side
	// folds to this triplet's name; recursion is suppressed.
	ActionNameConflict
	// ActionBackupModified: a BACKUP-type sync observed a cloud-side
	// change under its subtree; the sync must be disabled.
	ActionBackupModified
)

// Decision is the outcome of resolving one Triplet. Triplet carries the
// Cloud/Sync/Fs pointers Resolve was given, so a caller that dispatches
// mutations for this decision never has to re-form or re-look-up the
// triplet it already resolved.
type Decision struct {
	Name     string
	Action   Action
	Reason   string
	Suppress bool // true if recursion into this name must not proceed
	Triplet  Triplet
}

func decide(action Action, reason string, suppress bool) Decision {
	return Decision{Action: action, Reason: reason, Suppress: suppress}
}

// Resolve applies the decision table in spec §4.3.3 to t, given the
// owning sync's type and filesystem family (for name comparisons).
// Move/rename detection (§4.3.4) must run before Resolve is called for
// the affected triplets — Resolve only ever sees a triplet as it
// stands after moves have already been applied or ruled out.
func Resolve(t Triplet, syncType model.SyncType, family fscap.Family) Decision {
	d := resolve(t, syncType, family)
	d.Name = t.Name
	d.Triplet = t
	return d
}

func resolve(t Triplet, syncType model.SyncType, family fscap.Family) Decision {
	if t.HasClash() {
		return decide(ActionNameConflict, "name conflict: multiple entries fold to the same name", true)
	}

	c, s, f := t.Cloud, t.Sync, t.Fs

	switch {
	case c == nil && s == nil && f == nil:
		return decide(ActionNone, "", false)

	case c == nil && s != nil && f == nil:
		if s.CreatedOnDisk {
			// S represents an in-flight upload or download that simply
			// hasn't produced either side's entry yet; not yet resolved.
			return decide(ActionNone, "sync node newly created, awaiting materialization", false)
		}
		return decide(ActionDeleteSyncNode, "both cloud and fs sides gone", false)

	case c != nil && s == nil && f == nil:
		if syncType == model.SyncBackup {
			return decide(ActionBackupModified, "cloud-side change observed under a backup subtree", true)
		}
		return decide(ActionDownsync, "fresh from cloud", false)

	case c == nil && s == nil && f != nil:
		if syncType == model.SyncBackup {
			return decide(ActionUpsync, "fresh locally (backup upsync-only)", false)
		}
		return decide(ActionUpsync, "fresh locally", false)

	case c != nil && s != nil && f == nil:
		if syncType == model.SyncBackup {
			return decide(ActionBackupModified, "cloud-side change observed under a backup subtree", true)
		}
		if c.ModTime.Before(s.LastSeenModTime) || c.ModTime.Equal(s.LastSeenModTime) {
			return decide(ActionDeleteFromCloud, "local copy gone, cloud predates last-seen state", false)
		}
		return decide(ActionRecreateLocal, "local copy gone, cloud changed since last-seen state", false)

	case c == nil && s != nil && f != nil:
		if syncType == model.SyncBackup {
			return decide(ActionBackupModified, "cloud-side change observed under a backup subtree", true)
		}
		if fsUnchangedSince(f, s, family) {
			return decide(ActionLocalDelete, "cloud pairing gone, local copy unchanged since last sync", false)
		}
		return decide(ActionConflictLocalWins, "cloud pairing gone, local copy changed since last sync", false)

	case c != nil && s == nil && f != nil:
		if syncType == model.SyncBackup {
			return decide(ActionConflictUnpaired, "unpaired cloud/fs collision under a backup subtree", true)
		}
		if CloudFsEqual(c, f, family) {
			return decide(ActionAdopt, "unpaired entries already match, pairing without transfer", false)
		}
		return decide(ActionConflictUnpaired, "unpaired cloud and fs entries diverge", true)

	case c != nil && s != nil && f != nil:
		return resolveTriple(c, s, f, syncType, family)

	default:
		return decide(ActionNone, "", false)
	}
}

// fsUnchangedSince reports whether f still matches the state the sync
// last observed for s, i.e. no local edit occurred after the cloud
// pairing was lost.
func fsUnchangedSince(f *model.FsNode, s *model.SyncNode, family fscap.Family) bool {
	return FsSyncEqual(f, s, family)
}

func resolveTriple(c *model.CloudNode, s *model.SyncNode, f *model.FsNode, syncType model.SyncType, family fscap.Family) Decision {
	cloudEq := CloudSyncEqual(c, s)
	fsEq := FsSyncEqual(f, s, family)

	switch {
	case cloudEq && fsEq:
		return decide(ActionNoOp, "all three sides agree", false)

	case !fsEq && cloudEq:
		if syncType == model.SyncBackup {
			return decide(ActionUpsync, "backup upsync-only: local change re-asserted", false)
		}
		return decide(ActionUpsync, "fs changed, cloud unchanged", false)

	case fsEq && !cloudEq:
		if syncType == model.SyncBackup {
			return decide(ActionBackupModified, "cloud-side change observed under a backup subtree", true)
		}
		return decide(ActionDownsync, "cloud changed, fs unchanged", false)

	default: // both changed
		if syncType == model.SyncBackup {
			return decide(ActionBackupModified, "cloud-side change observed under a backup subtree", true)
		}
		return pickWinner(c, f)
	}
}

// pickWinner implements the both-changed tie-break: latest mtime
// wins; when the mtimes are within mtimeTolerance of each other,
// larger size wins; on a further tie, cloud wins. The engine moves a
// local loser to sync-debris before downloading the winner; a cloud
// loser is overwritten in place (see doPickWinnerUpsync).
func pickWinner(c *model.CloudNode, f *model.FsNode) Decision {
	cloudMTime := c.ModTime
	fsMTime := f.ModTime

	if cloudMTime.After(fsMTime) && !mtimesEqual(cloudMTime, fsMTime) {
		return decide(ActionPickWinnerDownsync, "both changed, cloud mtime newer", false)
	}
	if fsMTime.After(cloudMTime) && !mtimesEqual(cloudMTime, fsMTime) {
		return decide(ActionPickWinnerUpsync, "both changed, fs mtime newer", false)
	}

	// Tie on mtime: larger size wins.
	if f.Size > c.Size {
		return decide(ActionPickWinnerUpsync, "both changed, tied mtime, fs size larger", false)
	}
	if c.Size > f.Size {
		return decide(ActionPickWinnerDownsync, "both changed, tied mtime, cloud size larger", false)
	}

	// Fully tied: cloud wins (spec §9 Open Question, decided in DESIGN.md).
	return decide(ActionPickWinnerDownsync, "both changed, fully tied, cloud wins by default", false)
}
