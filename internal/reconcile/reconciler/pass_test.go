package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersync/syncengine/internal/reconcile/fscap"
	"github.com/foldersync/syncengine/internal/reconcile/model"
)

func rootNode() *model.SyncNode {
	return model.NewSyncNode("", model.NodeTypeFolder)
}

func TestRunLevel_BlockedWhenScanTargetUnreachable(t *testing.T) {
	result := RunLevel(rootNode(), nil, nil, model.SyncTwoWay, fam, nil, PhaseGate{})
	assert.Empty(t, result.Decisions)
	assert.Contains(t, result.Reasons, "")
}

func TestRunLevel_ResolvesFreshDownsync(t *testing.T) {
	root := rootNode()
	gate := PhaseGate{ScanTargetReachable: true, ScanningWasComplete: true, MovesWereComplete: true}

	cloud := []model.CloudNode{{Name: "a.txt", Kind: model.CloudKindFile, Fingerprint: fp(5, t0, 1)}}
	result := RunLevel(root, cloud, nil, model.SyncTwoWay, fam, nil, gate)

	require.Len(t, result.Decisions, 1)
	assert.Equal(t, ActionDownsync, result.Decisions[0].Action)
	assert.True(t, result.Progress)
}

func TestRunLevel_DefersMutationWhenMovesNotComplete(t *testing.T) {
	root := rootNode()
	gate := PhaseGate{ScanTargetReachable: true, ScanningWasComplete: true}

	cloud := []model.CloudNode{{Name: "a.txt", Kind: model.CloudKindFile, Fingerprint: fp(5, t0, 1)}}
	result := RunLevel(root, cloud, nil, model.SyncTwoWay, fam, nil, gate)

	require.Len(t, result.Decisions, 1)
	assert.Equal(t, ActionNone, result.Decisions[0].Action)
	assert.False(t, result.Progress)
	assert.Contains(t, result.Reasons, "a.txt")
}

func TestRunLevel_ExclusionFiltersOutMatchedEntries(t *testing.T) {
	root := rootNode()
	gate := PhaseGate{ScanTargetReachable: true, ScanningWasComplete: true, MovesWereComplete: true}
	excl := NewExclusions(nil)

	cloud := []model.CloudNode{{Name: ".git", Kind: model.CloudKindFolder}}
	result := RunLevel(root, cloud, nil, model.SyncTwoWay, fam, excl, gate)

	assert.Empty(t, result.Decisions)
	assert.Empty(t, result.RecurseNames)
}

func TestRunLevel_FolderTripletRecursesUnlessSuppressed(t *testing.T) {
	root := rootNode()
	gate := PhaseGate{ScanTargetReachable: true, ScanningWasComplete: true, MovesWereComplete: true}

	cloud := []model.CloudNode{{Name: "docs", Kind: model.CloudKindFolder}}
	fs := []model.FsNode{{Name: "docs", Type: model.NodeTypeFolder}}
	result := RunLevel(root, cloud, fs, model.SyncTwoWay, fam, nil, gate)

	require.Len(t, result.Decisions, 1)
	assert.Equal(t, "docs", result.Decisions[0].Name)
	assert.Contains(t, result.RecurseNames, "docs")
}

func TestRunLevel_NameConflictSuppressesRecursion(t *testing.T) {
	root := rootNode()
	gate := PhaseGate{ScanTargetReachable: true, ScanningWasComplete: true, MovesWereComplete: true}

	cloud := []model.CloudNode{
		{Name: "docs", Kind: model.CloudKindFolder},
		{Name: "Docs", Kind: model.CloudKindFolder},
	}
	result := RunLevel(root, cloud, nil, model.SyncTwoWay, fscap.FamilyMacCaseInsensitive, nil, gate)

	for _, d := range result.Decisions {
		assert.True(t, d.Suppress)
	}
	assert.Empty(t, result.RecurseNames)
}

func TestIsFolder_PrefersSyncThenCloudThenFs(t *testing.T) {
	syncFolder := model.NewSyncNode("x", model.NodeTypeFolder)
	assert.True(t, isFolder(Triplet{Sync: syncFolder}))

	cloudRoot := &model.CloudNode{Kind: model.CloudKindRoot}
	assert.True(t, isFolder(Triplet{Cloud: cloudRoot}))

	fsFile := &model.FsNode{Type: model.NodeTypeFile}
	assert.False(t, isFolder(Triplet{Fs: fsFile}))

	assert.False(t, isFolder(Triplet{}))
}

func TestJoinPath_EmptyBaseReturnsNameAlone(t *testing.T) {
	assert.Equal(t, "a.txt", joinPath("", "a.txt"))
	assert.Equal(t, "docs/a.txt", joinPath("docs", "a.txt"))
}

func TestFamilyConst(t *testing.T) {
	assert.Equal(t, fscap.FamilyUnix, fam)
}
