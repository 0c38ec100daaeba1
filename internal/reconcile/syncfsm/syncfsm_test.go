package syncfsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldersync/syncengine/internal/reconcile/model"
)

func TestMachine_StartsInInitialScan(t *testing.T) {
	m := New()
	s := m.Status()
	assert.Equal(t, StateInitialScan, s.State)
	assert.True(t, s.Enabled)
}

func TestMachine_ScanCompleteThenPauseResume(t *testing.T) {
	m := New()
	m.ScanComplete()
	require.Equal(t, StateActive, m.Status().State)

	m.Pause()
	require.Equal(t, StatePaused, m.Status().State)

	m.Resume()
	require.Equal(t, StateActive, m.Status().State)
}

func TestMachine_PauseNoOpDuringInitialScan(t *testing.T) {
	m := New()
	m.Pause()
	assert.Equal(t, StateInitialScan, m.Status().State)
}

func TestMachine_DisableCarriesErrorAndEnabled(t *testing.T) {
	m := New()
	m.ScanComplete()
	m.Disable(model.LocalFingerprintMismatch)

	s := m.Status()
	assert.Equal(t, StateDisabled, s.State)
	assert.Equal(t, model.LocalFingerprintMismatch, s.Error)
	assert.False(t, s.Enabled)
}

func TestMachine_FailDistinctFromDisable(t *testing.T) {
	m := New()
	m.Fail(model.FailedWritingCache)
	assert.Equal(t, StateFailed, m.Status().State)
}

func TestMachine_ReenableClearsErrorAndResetsToInitialScan(t *testing.T) {
	m := New()
	m.Disable(model.RemoteNodeNotFound)
	m.Reenable()

	s := m.Status()
	assert.Equal(t, StateInitialScan, s.State)
	assert.Equal(t, model.NoSyncError, s.Error)
	assert.True(t, s.Enabled)
}

func TestMachine_ReenableNoOpWhenNotDisabledOrFailed(t *testing.T) {
	m := New()
	m.ScanComplete()
	m.Reenable()
	assert.Equal(t, StateActive, m.Status().State)
}

func TestMachine_NotifyIfChanged_FirstCallAlwaysReports(t *testing.T) {
	m := New()
	var calls int
	m.NotifyIfChanged(&model.SyncConfig{}, func(cfg *model.SyncConfig, err model.SyncError, enabled bool) {
		calls++
	})
	assert.Equal(t, 1, calls)
}

func TestMachine_NotifyIfChanged_SuppressesRepeatOfSamePair(t *testing.T) {
	m := New()
	var calls int
	cb := func(cfg *model.SyncConfig, err model.SyncError, enabled bool) { calls++ }

	m.NotifyIfChanged(&model.SyncConfig{}, cb)
	m.NotifyIfChanged(&model.SyncConfig{}, cb)
	m.NotifyIfChanged(&model.SyncConfig{}, cb)
	assert.Equal(t, 1, calls, "unchanged (err, enabled) pair must not re-fire")
}

func TestMachine_NotifyIfChanged_FiresAgainWhenErrorChanges(t *testing.T) {
	m := New()
	var got []model.SyncError
	cb := func(cfg *model.SyncConfig, err model.SyncError, enabled bool) { got = append(got, err) }

	m.NotifyIfChanged(&model.SyncConfig{}, cb)
	m.Disable(model.StorageOverquota)
	m.NotifyIfChanged(&model.SyncConfig{}, cb)

	require.Len(t, got, 2)
	assert.Equal(t, model.NoSyncError, got[0])
	assert.Equal(t, model.StorageOverquota, got[1])
}

func TestMachine_NotifyIfChanged_OscillationDoesNotDoubleFire(t *testing.T) {
	m := New()
	var calls int
	cb := func(cfg *model.SyncConfig, err model.SyncError, enabled bool) { calls++ }

	m.NotifyIfChanged(&model.SyncConfig{}, cb) // reports (NoSyncError, true)
	m.Disable(model.RemoteNodeNotFound)
	m.NotifyIfChanged(&model.SyncConfig{}, cb) // reports (RemoteNodeNotFound, false)
	m.Reenable()
	m.Disable(model.RemoteNodeNotFound)
	m.NotifyIfChanged(&model.SyncConfig{}, cb) // same pair again, suppressed

	assert.Equal(t, 2, calls)
}
