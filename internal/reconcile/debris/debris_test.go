package debris

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_CreatesDirAndAcquiresLock(t *testing.T) {
	root := t.TempDir()
	g := New(root)
	require.NoError(t, g.Lock())
	defer g.Unlock()

	assert.DirExists(t, g.Dir())
	assert.FileExists(t, filepath.Join(g.Dir(), lockName))
}

func TestLock_SecondGuardOnSameRootFails(t *testing.T) {
	root := t.TempDir()
	g1 := New(root)
	require.NoError(t, g1.Lock())
	defer g1.Unlock()

	g2 := New(root)
	err := g2.Lock()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestUnlock_ReleasesSoANewGuardCanLock(t *testing.T) {
	root := t.TempDir()
	g1 := New(root)
	require.NoError(t, g1.Lock())
	require.NoError(t, g1.Unlock())

	g2 := New(root)
	assert.NoError(t, g2.Lock())
	defer g2.Unlock()
}

func TestTodaySubdir_CreatesDatedDirectory(t *testing.T) {
	root := t.TempDir()
	g := New(root)
	dir, err := g.TodaySubdir("20260803")
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(root, dirName, "20260803"), dir)
}

func TestListDated_ReturnsSortedStamps(t *testing.T) {
	root := t.TempDir()
	g := New(root)
	_, err := g.TodaySubdir("20260801")
	require.NoError(t, err)
	_, err = g.TodaySubdir("20260803")
	require.NoError(t, err)
	_, err = g.TodaySubdir("20260802")
	require.NoError(t, err)

	stamps, err := g.ListDated()
	require.NoError(t, err)
	assert.Equal(t, []string{"20260801", "20260802", "20260803"}, stamps)
}

func TestListDated_EmptyWhenDebrisDirMissing(t *testing.T) {
	root := t.TempDir()
	g := New(root)
	stamps, err := g.ListDated()
	require.NoError(t, err)
	assert.Empty(t, stamps)
}

func TestPurge_RemovesOldestBeyondKeepCount(t *testing.T) {
	root := t.TempDir()
	g := New(root)
	for _, stamp := range []string{"20260801", "20260802", "20260803"} {
		_, err := g.TodaySubdir(stamp)
		require.NoError(t, err)
	}

	require.NoError(t, g.Purge([]string{"20260801", "20260802", "20260803"}, 1))

	stamps, err := g.ListDated()
	require.NoError(t, err)
	assert.Equal(t, []string{"20260803"}, stamps)
}

func TestPurge_NoOpWhenFewerThanKeep(t *testing.T) {
	root := t.TempDir()
	g := New(root)
	_, err := g.TodaySubdir("20260801")
	require.NoError(t, err)

	require.NoError(t, g.Purge([]string{"20260801"}, 5))

	stamps, err := g.ListDated()
	require.NoError(t, err)
	assert.Equal(t, []string{"20260801"}, stamps)
}
