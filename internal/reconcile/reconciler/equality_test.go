package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/foldersync/syncengine/internal/reconcile/model"
)

func TestCloudFsEqual_MatchingFiles(t *testing.T) {
	c := &model.CloudNode{Name: "a.txt", Kind: model.CloudKindFile, Fingerprint: fp(5, t0, 7)}
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, Size: 5, ModTime: t0}
	assert.True(t, CloudFsEqual(c, f, fam))
}

func TestCloudFsEqual_DifferentSize(t *testing.T) {
	c := &model.CloudNode{Name: "a.txt", Kind: model.CloudKindFile, Fingerprint: fp(5, t0, 7)}
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, Size: 6, ModTime: t0}
	assert.False(t, CloudFsEqual(c, f, fam))
}

func TestCloudFsEqual_ToleratesOneSecondSkew(t *testing.T) {
	c := &model.CloudNode{Name: "a.txt", Kind: model.CloudKindFile, Fingerprint: fp(5, t0, 7)}
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, Size: 5, ModTime: t0.Add(900 * time.Millisecond)}
	assert.True(t, CloudFsEqual(c, f, fam))
}

func TestCloudFsEqual_FoldersCompareByNameOnly(t *testing.T) {
	c := &model.CloudNode{Name: "docs", Kind: model.CloudKindFolder}
	f := &model.FsNode{Name: "docs", Type: model.NodeTypeFolder}
	assert.True(t, CloudFsEqual(c, f, fam))
}

func TestCloudSyncEqual_HandleAndNameMatch(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.CloudHandle = model.Handle{9}
	c := &model.CloudNode{Handle: model.Handle{9}, Name: "a.txt"}
	assert.True(t, CloudSyncEqual(c, s))
}

func TestCloudSyncEqual_HandleMismatch(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.CloudHandle = model.Handle{9}
	c := &model.CloudNode{Handle: model.Handle{10}, Name: "a.txt"}
	assert.False(t, CloudSyncEqual(c, s))
}

func TestFsSyncEqual_PrefersFsID(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.FsID = "dev:1"
	f := &model.FsNode{Name: "renamed.txt", Type: model.NodeTypeFile, FsID: "dev:1"}
	assert.True(t, FsSyncEqual(f, s, fam), "matching FsID should win even if names differ")
}

func TestFsSyncEqual_FallsBackToSizeMtimeName(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	s.Fingerprint = fp(5, t0, 1)
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, Size: 5, ModTime: t0}
	assert.True(t, FsSyncEqual(f, s, fam))
}

func TestFsSyncEqual_NilFingerprintNeverEqualsFile(t *testing.T) {
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	f := &model.FsNode{Name: "a.txt", Type: model.NodeTypeFile, Size: 5, ModTime: t0}
	assert.False(t, FsSyncEqual(f, s, fam))
}
