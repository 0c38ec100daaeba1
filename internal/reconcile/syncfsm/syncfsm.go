// Package syncfsm tracks the lifecycle of a single sync:
// INITIALSCAN -> ACTIVE -> (PAUSED <-> ACTIVE) -> DISABLED <-> FAILED,
// and de-duplicates the (SyncError, enabled) notification pair so the
// owning application only hears about a state change once, not on
// every pass that happens to re-observe the same condition. It is the
// direct generalization of datasitemgr.DatasiteManager's
// status/datasiteErr pair, tracked under one mutex, snapshotted through
// a single read method, to the two-value de-dup rule spec requires.
package syncfsm

import (
	"sync"

	"github.com/foldersync/syncengine/internal/reconcile/model"
)

// State is one lifecycle stage of a sync.
type State int

const (
	StateInitialScan State = iota
	StateActive
	StatePaused
	StateDisabled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitialScan:
		return "initial_scan"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateDisabled:
		return "disabled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time read of a Machine's state, safe to hold
// and compare after the lock is released.
type Snapshot struct {
	State   State
	Error   model.SyncError
	Enabled bool
}

// Machine is one sync's lifecycle state machine plus the last
// (error, enabled) pair reported to the application, so repeated
// transitions into the same condition never re-fire a callback.
type Machine struct {
	mu sync.RWMutex

	state   State
	err     model.SyncError
	enabled bool

	mKnownError   model.SyncError
	mKnownEnabled bool
	everReported  bool
}

// New starts a machine in INITIALSCAN with no error, enabled.
func New() *Machine {
	return &Machine{
		state:   StateInitialScan,
		enabled: true,
	}
}

// Status returns the current state under the read lock.
func (m *Machine) Status() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, Error: m.err, Enabled: m.enabled}
}

// ScanComplete transitions INITIALSCAN -> ACTIVE. No-op from any other
// state.
func (m *Machine) ScanComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateInitialScan {
		m.state = StateActive
	}
}

// Pause transitions ACTIVE -> PAUSED. No-op from any other state — a
// caller must not pause a sync that is disabled, failed, or still
// running its initial scan.
func (m *Machine) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateActive {
		m.state = StatePaused
	}
}

// Resume transitions PAUSED -> ACTIVE.
func (m *Machine) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StatePaused {
		m.state = StateActive
	}
}

// Disable transitions to DISABLED from any state, recording err and
// enabled=false. Terminal-for-this-session: callers release the root
// SyncNode on this transition but retain the SyncConfig on disk so the
// sync can be resumed (spec §4.6).
func (m *Machine) Disable(err model.SyncError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateDisabled
	m.err = err
	m.enabled = false
}

// Fail transitions to FAILED from any state, carrying the SyncError
// that forced it. Distinct from Disable: FAILED is an unexpected
// condition (e.g. cache write failure) the app may offer to retry,
// whereas DISABLED is typically user-initiated or an expected
// environmental conflict.
func (m *Machine) Fail(err model.SyncError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateFailed
	m.err = err
	m.enabled = false
}

// Reenable clears a DISABLED or FAILED sync back to INITIALSCAN,
// clearing the carried error. The caller is responsible for actually
// running the initial scan that follows.
func (m *Machine) Reenable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateDisabled || m.state == StateFailed {
		m.state = StateInitialScan
		m.err = NoError()
		m.enabled = true
	}
}

// NoError is model.NoSyncError, named here so callers of this package
// don't need to import model just to clear an error.
func NoError() model.SyncError { return model.NoSyncError }

// NotifyIfChanged reports the (err, enabled) pair to report via cb if
// and only if at least one of those two values differs from what was
// last reported — spec §4.6's redundant-callback elimination rule. The
// very first call always reports, since there is no prior pair to
// compare against.
func (m *Machine) NotifyIfChanged(cfg *model.SyncConfig, cb func(cfg *model.SyncConfig, err model.SyncError, enabled bool)) {
	m.mu.Lock()
	err, enabled := m.err, m.enabled
	changed := !m.everReported || err != m.mKnownError || enabled != m.mKnownEnabled
	if changed {
		m.mKnownError = err
		m.mKnownEnabled = enabled
		m.everReported = true
	}
	m.mu.Unlock()

	if changed && cb != nil {
		cb(cfg, err, enabled)
	}
}
