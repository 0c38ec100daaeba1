package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/foldersync/syncengine/internal/reconcile/fscap"
	"github.com/foldersync/syncengine/internal/reconcile/model"
)

const fam = fscap.FamilyUnix

func fp(size int64, mtime time.Time, crc uint32) *model.Fingerprint {
	return &model.Fingerprint{Size: size, ModTime: mtime.Truncate(time.Second), CRC: crc}
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestResolve_DeleteSyncNode_BothSidesGone(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	d := Resolve(Triplet{Sync: s}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionDeleteSyncNode, d.Action)
}

func TestResolve_DeleteSyncNode_SkippedIfCreatedOnDisk(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.CreatedOnDisk = true
	d := Resolve(Triplet{Sync: s}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionNone, d.Action)
}

func TestResolve_Downsync_FreshFromCloud(t *testing.T) {
	c := &model.CloudNode{Name: "a.txt", Kind: model.CloudKindFile}
	d := Resolve(Triplet{Cloud: c}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionDownsync, d.Action)
}

func TestResolve_Upsync_FreshLocally(t *testing.T) {
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile}
	d := Resolve(Triplet{Fs: f}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionUpsync, d.Action)
}

func TestResolve_CloudSyncNoFs_DeleteFromCloud_WhenCloudPredatesLastSeen(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.LastSeenModTime = t0.Add(time.Hour)
	c := &model.CloudNode{Name: "a.txt", Kind: model.CloudKindFile, ModTime: t0}
	d := Resolve(Triplet{Cloud: c, Sync: s}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionDeleteFromCloud, d.Action)
}

func TestResolve_CloudSyncNoFs_RecreateLocal_WhenCloudNewerThanLastSeen(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.LastSeenModTime = t0
	c := &model.CloudNode{Name: "a.txt", Kind: model.CloudKindFile, ModTime: t0.Add(time.Hour)}
	d := Resolve(Triplet{Cloud: c, Sync: s}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionRecreateLocal, d.Action)
}

func TestResolve_SyncFsNoCloud_LocalDelete_WhenFsUnchanged(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.FsID = "dev:1"
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, FsID: "dev:1"}
	d := Resolve(Triplet{Sync: s, Fs: f}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionLocalDelete, d.Action)
}

func TestResolve_SyncFsNoCloud_ConflictLocalWins_WhenFsChanged(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.FsID = "dev:1"
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, FsID: "dev:2"}
	d := Resolve(Triplet{Sync: s, Fs: f}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionConflictLocalWins, d.Action)
}

func TestResolve_CloudFsNoSync_Adopt_WhenFingerprintsEqual(t *testing.T) {
	mtime := t0
	c := &model.CloudNode{Name: "a.txt", Kind: model.CloudKindFile, Fingerprint: fp(10, mtime, 1)}
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, Size: 10, ModTime: mtime}
	d := Resolve(Triplet{Cloud: c, Fs: f}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionAdopt, d.Action)
}

func TestResolve_CloudFsNoSync_Conflict_WhenFingerprintsDiffer(t *testing.T) {
	c := &model.CloudNode{Name: "a.txt", Kind: model.CloudKindFile, Fingerprint: fp(10, t0, 1)}
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, Size: 20, ModTime: t0}
	d := Resolve(Triplet{Cloud: c, Fs: f}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionConflictUnpaired, d.Action)
	assert.True(t, d.Suppress)
}

func TestResolve_AllThreeEqual_NoOp(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.CloudHandle = model.Handle{1}
	s.Fingerprint = fp(10, t0, 1)
	s.FsID = "dev:1"
	c := &model.CloudNode{Handle: model.Handle{1}, Name: "a.txt", Kind: model.CloudKindFile, Fingerprint: fp(10, t0, 1)}
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, FsID: "dev:1"}
	d := Resolve(Triplet{Cloud: c, Sync: s, Fs: f}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionNoOp, d.Action)
}

func TestResolve_FsChangedCloudUnchanged_Upsync(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.CloudHandle = model.Handle{1}
	s.FsID = "dev:1"
	c := &model.CloudNode{Handle: model.Handle{1}, Name: "a.txt", Kind: model.CloudKindFile}
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, FsID: "dev:2"} // fsid mismatch -> fs changed
	d := Resolve(Triplet{Cloud: c, Sync: s, Fs: f}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionUpsync, d.Action)
}

func TestResolve_CloudChangedFsUnchanged_Downsync(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.CloudHandle = model.Handle{1}
	s.FsID = "dev:1"
	c := &model.CloudNode{Handle: model.Handle{2}, Name: "a.txt", Kind: model.CloudKindFile} // handle mismatch -> cloud changed
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, FsID: "dev:1"}
	d := Resolve(Triplet{Cloud: c, Sync: s, Fs: f}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionDownsync, d.Action)
}

func TestResolve_BothChanged_LatestMtimeWins(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.CloudHandle = model.Handle{1}
	s.FsID = "dev:1"
	c := &model.CloudNode{Handle: model.Handle{2}, Name: "a.txt", Kind: model.CloudKindFile, ModTime: t0.Add(time.Hour), Size: 5}
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, FsID: "dev:2", ModTime: t0, Size: 5}
	d := Resolve(Triplet{Cloud: c, Sync: s, Fs: f}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionPickWinnerDownsync, d.Action)

	f.ModTime = t0.Add(2 * time.Hour)
	d = Resolve(Triplet{Cloud: c, Sync: s, Fs: f}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionPickWinnerUpsync, d.Action)
}

func TestResolve_BothChanged_TieOnMtimeLargerSizeWins(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.CloudHandle = model.Handle{1}
	s.FsID = "dev:1"
	c := &model.CloudNode{Handle: model.Handle{2}, Name: "a.txt", Kind: model.CloudKindFile, ModTime: t0, Size: 100}
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, FsID: "dev:2", ModTime: t0, Size: 10}
	d := Resolve(Triplet{Cloud: c, Sync: s, Fs: f}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionPickWinnerDownsync, d.Action, "cloud is larger on a full mtime tie")

	f.Size = 200
	d = Resolve(Triplet{Cloud: c, Sync: s, Fs: f}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionPickWinnerUpsync, d.Action, "fs is larger on a full mtime tie")
}

func TestResolve_BothChanged_FullTie_CloudWins(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.CloudHandle = model.Handle{1}
	s.FsID = "dev:1"
	c := &model.CloudNode{Handle: model.Handle{2}, Name: "a.txt", Kind: model.CloudKindFile, ModTime: t0, Size: 50}
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, FsID: "dev:2", ModTime: t0, Size: 50}
	d := Resolve(Triplet{Cloud: c, Sync: s, Fs: f}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionPickWinnerDownsync, d.Action)
}

func TestResolve_NameConflict_SuppressesRecursion(t *testing.T) {
	d := Resolve(Triplet{Fs: &model.FsNode{Name: "A"}, FsClashingNames: []string{"a"}}, model.SyncTwoWay, fam)
	assert.Equal(t, ActionNameConflict, d.Action)
	assert.True(t, d.Suppress)
}

func TestResolve_Backup_CloudSideChangeDisablesSync(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.CloudHandle = model.Handle{1}
	s.FsID = "dev:1"
	c := &model.CloudNode{Handle: model.Handle{2}, Name: "a.txt", Kind: model.CloudKindFile}
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, FsID: "dev:1"}
	d := Resolve(Triplet{Cloud: c, Sync: s, Fs: f}, model.SyncBackup, fam)
	assert.Equal(t, ActionBackupModified, d.Action)
	assert.True(t, d.Suppress)
}

func TestResolve_Backup_FreshCloudEntryDisablesSync(t *testing.T) {
	c := &model.CloudNode{Name: "a.txt", Kind: model.CloudKindFile}
	d := Resolve(Triplet{Cloud: c}, model.SyncBackup, fam)
	assert.Equal(t, ActionBackupModified, d.Action)
	assert.True(t, d.Suppress)
}

func TestResolve_Backup_VanishedCloudPairingDisablesSync(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.FsID = "dev:1"
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, FsID: "dev:1"}
	d := Resolve(Triplet{Sync: s, Fs: f}, model.SyncBackup, fam)
	assert.Equal(t, ActionBackupModified, d.Action)
	assert.True(t, d.Suppress)
}

func TestResolve_Backup_UnpairedCollisionIsSuppressed(t *testing.T) {
	c := &model.CloudNode{Name: "a.txt", Kind: model.CloudKindFile, Fingerprint: fp(1, t0, 1)}
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, Size: 1, ModTime: t0}
	d := Resolve(Triplet{Cloud: c, Fs: f}, model.SyncBackup, fam)
	assert.Equal(t, ActionConflictUnpaired, d.Action)
	assert.True(t, d.Suppress)
}
