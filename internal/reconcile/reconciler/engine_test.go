package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersync/syncengine/internal/reconcile/collab/fake"
	"github.com/foldersync/syncengine/internal/reconcile/dirnotify"
	"github.com/foldersync/syncengine/internal/reconcile/fscap"
	"github.com/foldersync/syncengine/internal/reconcile/model"
	"github.com/foldersync/syncengine/internal/reconcile/nodecache"
	"github.com/foldersync/syncengine/internal/reconcile/scansvc"
)

// newTestEngine wires an Engine the way syncset.EnableSyncByBackupId
// does: a real fscap.Capability and nodecache.Cache rooted at a fresh
// temp dir, backed by an in-memory node cache and fake collaborators.
// The sync root itself never needs seeding into the Engine's CloudTree
// — cloudHandleOf resolves the root directly from cfg.RemoteHandle.
func newTestEngine(t *testing.T, cfg *model.SyncConfig, cloud *fake.CloudClient) *Engine {
	t.Helper()
	fs, err := fscap.New(cfg.LocalPath, filepath.Join(cfg.LocalPath, ".syncdebris"))
	require.NoError(t, err)

	cache, err := nodecache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	root, err := cache.LoadTree(context.Background(), func(name string) string { return fscap.CaseFold(fs.Family(), name) })
	require.NoError(t, err)

	scan := scansvc.New(fs, 2)
	scan.Start(context.Background())
	t.Cleanup(scan.Stop)

	return NewEngine(cfg, root, cache, fs, cloud, fake.NewTransfer(), scan, fake.NewAppCallbacks())
}

func testConfig(t *testing.T, typ model.SyncType) *model.SyncConfig {
	t.Helper()
	return &model.SyncConfig{
		BackupID:  model.BackupID{1},
		LocalPath: t.TempDir(),
		Name:      "test",
		Type:      typ,
	}
}

func TestEngine_RunPass_DownsyncsFreshCloudFolder(t *testing.T) {
	cfg := testConfig(t, model.SyncTwoWay)
	cloud := fake.NewCloudClient()
	rootHandle := cloud.Seed(model.CloudNode{Kind: model.CloudKindRoot})
	cfg.RemoteHandle = rootHandle
	cloud.Seed(model.CloudNode{Parent: rootHandle, Kind: model.CloudKindFolder, Name: "photos"})

	eng := newTestEngine(t, cfg, cloud)
	for _, c := range cloud.Children(rootHandle) {
		eng.tree.Seed(c)
	}

	require.NoError(t, eng.RunPass(context.Background()))

	info, err := os.Stat(filepath.Join(cfg.LocalPath, "photos"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Contains(t, eng.root.Children, "photos")
}

func TestEngine_RunPass_UpsyncsFreshLocalFile(t *testing.T) {
	cfg := testConfig(t, model.SyncTwoWay)
	cloud := fake.NewCloudClient()
	rootHandle := cloud.Seed(model.CloudNode{Kind: model.CloudKindRoot})
	cfg.RemoteHandle = rootHandle

	require.NoError(t, os.WriteFile(filepath.Join(cfg.LocalPath, "notes.txt"), []byte("hello"), 0o644))

	eng := newTestEngine(t, cfg, cloud)

	require.NoError(t, eng.RunPass(context.Background()))

	node, ok := eng.root.Children["notes.txt"]
	require.True(t, ok)
	assert.True(t, node.Paired())
	assert.Contains(t, cloud.PutName, "notes.txt")
}

func TestEngine_RunPass_BackupSyncDisablesOnCloudRename(t *testing.T) {
	cfg := testConfig(t, model.SyncBackup)
	cloud := fake.NewCloudClient()
	rootHandle := cloud.Seed(model.CloudNode{Kind: model.CloudKindRoot})
	cfg.RemoteHandle = rootHandle

	localPath := filepath.Join(cfg.LocalPath, "report.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("v1"), 0o644))

	eng := newTestEngine(t, cfg, cloud)
	require.NoError(t, eng.RunPass(context.Background()))
	require.True(t, eng.root.Children["report.txt"].Paired())

	// Make the node's cloud counterpart visible in the engine's own
	// CloudTree mirror (Changes() notifications are what would normally
	// do this; RunPass is driven directly here, so mirror by hand) and
	// confirm the steady state is a no-op before perturbing it.
	node := eng.root.Children["report.txt"]
	for _, c := range cloud.Children(rootHandle) {
		eng.tree.Seed(c)
	}
	require.NoError(t, eng.RunPass(context.Background()))

	// Rename the cloud side under the backup subtree and deliver the
	// change the way pumpCloudChanges would, through EnqueueCloudChange,
	// so the next pass revisits the root. The renamed cloud entry no
	// longer folds to the same name as the untouched local file, so the
	// level splits into a cloud-only triplet and a cloud-vanished one,
	// each of which Resolve maps to ActionBackupModified for BACKUP syncs.
	require.NoError(t, cloud.Rename(context.Background(), node.CloudHandle, "renamed.txt"))
	eng.EnqueueCloudChange(model.CloudChange{Node: model.CloudNode{Handle: node.CloudHandle, Parent: rootHandle, Kind: model.CloudKindFile, Name: "renamed.txt", Fingerprint: node.Fingerprint}})

	disabled := false
	eng.OnBackupModified(func() { disabled = true })
	require.NoError(t, eng.RunPass(context.Background()))
	assert.True(t, disabled)
}

func TestEngine_RunPass_DetectsLocalMoveAndRenamesOnCloud(t *testing.T) {
	cfg := testConfig(t, model.SyncTwoWay)
	cloud := fake.NewCloudClient()
	rootHandle := cloud.Seed(model.CloudNode{Kind: model.CloudKindRoot})
	cfg.RemoteHandle = rootHandle

	oldPath := filepath.Join(cfg.LocalPath, "old.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("content"), 0o644))

	eng := newTestEngine(t, cfg, cloud)
	require.NoError(t, eng.RunPass(context.Background()))
	require.Contains(t, eng.root.Children, "old.txt")
	handle := eng.root.Children["old.txt"].CloudHandle

	// The rename happens on disk directly, as if the OS/user did it
	// between passes; the engine must detect it by FsID match rather
	// than treating it as a delete+create, and mirror it to the cloud
	// side without touching the filesystem again.
	require.NoError(t, os.Rename(oldPath, filepath.Join(cfg.LocalPath, "new.txt")))
	// Stage the hint the filesystem watcher would deliver for the new
	// name; passes after the first walk only staged subtrees.
	eng.EnqueueHint(filepath.Join(cfg.LocalPath, "new.txt"), dirnotify.Delayed)
	require.NoError(t, eng.RunPass(context.Background()))

	assert.NotContains(t, eng.root.Children, "old.txt")
	node, ok := eng.root.Children["new.txt"]
	require.True(t, ok)
	assert.Equal(t, handle, node.CloudHandle)
	assert.Contains(t, cloud.Renames, handle)
}
