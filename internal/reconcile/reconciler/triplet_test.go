package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersync/syncengine/internal/reconcile/model"
)

func foldLower(name string) string {
	lower := []rune(name)
	for i, r := range lower {
		if r >= 'A' && r <= 'Z' {
			lower[i] = r + ('a' - 'A')
		}
	}
	return string(lower)
}

func TestFormTriplets_SingleNameAcrossAllThree(t *testing.T) {
	root := model.NewSyncNode("", model.NodeTypeFolder)
	s := model.NewSyncNode("a.txt", model.NodeTypeFile)
	root.Attach(s, "a.txt")

	cloud := []model.CloudNode{{Name: "a.txt", Kind: model.CloudKindFile}}
	fs := []model.FsNode{{Name: "a.txt", Type: model.NodeTypeFile}}

	triplets := FormTriplets(cloud, root, fs, foldLower)
	require.Len(t, triplets, 1)
	assert.NotNil(t, triplets[0].Cloud)
	assert.NotNil(t, triplets[0].Sync)
	assert.NotNil(t, triplets[0].Fs)
	assert.False(t, triplets[0].HasClash())
}

func TestFormTriplets_DistinctNamesProduceSeparateTriplets(t *testing.T) {
	root := model.NewSyncNode("", model.NodeTypeFolder)
	cloud := []model.CloudNode{{Name: "a.txt"}, {Name: "b.txt"}}
	triplets := FormTriplets(cloud, root, nil, foldLower)
	require.Len(t, triplets, 2)
}

func TestFormTriplets_CloudClashDetected(t *testing.T) {
	root := model.NewSyncNode("", model.NodeTypeFolder)
	cloud := []model.CloudNode{{Name: "A"}, {Name: "a"}}
	triplets := FormTriplets(cloud, root, nil, foldLower)
	require.Len(t, triplets, 1)
	assert.True(t, triplets[0].HasClash())
	assert.Len(t, triplets[0].CloudClashingNames, 1)
}

func TestFormTriplets_FsClashDetected(t *testing.T) {
	root := model.NewSyncNode("", model.NodeTypeFolder)
	fs := []model.FsNode{{Name: "Report"}, {Name: "report"}}
	triplets := FormTriplets(nil, root, fs, foldLower)
	require.Len(t, triplets, 1)
	assert.True(t, triplets[0].HasClash())
}

func TestFormTriplets_OnlyCloudPresent(t *testing.T) {
	root := model.NewSyncNode("", model.NodeTypeFolder)
	cloud := []model.CloudNode{{Name: "new.txt"}}
	triplets := FormTriplets(cloud, root, nil, foldLower)
	require.Len(t, triplets, 1)
	assert.NotNil(t, triplets[0].Cloud)
	assert.Nil(t, triplets[0].Sync)
	assert.Nil(t, triplets[0].Fs)
}
