// Package syncset holds the ensemble of every sync the application has
// configured, each paired with its optional live runtime state. It is
// the direct generalization of datasitemgr.DatasiteManager's single
// instance Start/Stop/Provision/Get lifecycle to a slice of
// independently controlled entries guarded by one mutex, the same
// locking granularity DatasiteManager uses — just applied N times
// instead of once.
package syncset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/foldersync/syncengine/internal/reconcile/collab"
	"github.com/foldersync/syncengine/internal/reconcile/configstore"
	"github.com/foldersync/syncengine/internal/reconcile/dirnotify"
	"github.com/foldersync/syncengine/internal/reconcile/fscap"
	"github.com/foldersync/syncengine/internal/reconcile/model"
	"github.com/foldersync/syncengine/internal/reconcile/nodecache"
	"github.com/foldersync/syncengine/internal/reconcile/reconciler"
	"github.com/foldersync/syncengine/internal/reconcile/scansvc"
	"github.com/foldersync/syncengine/internal/reconcile/syncfsm"
)

// scanWorkers is the size of each sync's own scansvc.Service pool. Each
// sync's Lister is bound to that sync's own root, so the pool is sized
// per sync rather than shared (see reconciler.NewEngine's doc comment).
const scanWorkers = 4

var (
	ErrAlreadyExists  = errors.New("a sync with this backup id already exists")
	ErrNotFound       = errors.New("no sync with this backup id")
	ErrDriveHasActive = errors.New("external drive has an active sync, close it first")
)

// Instance is the live runtime state of one enabled sync: its
// lifecycle machine, its in-memory tree root, the cache it is persisted
// through, its own directory-scan pool, and the Engine that dispatches
// RunLevel's decisions into real collab/fscap/nodecache calls. Entries
// with a nil Instance have never been enabled, or were stopped by
// disableSelectedSyncs/removeSelectedSyncs.
type Instance struct {
	FSM    *syncfsm.Machine
	Root   *model.SyncNode
	Cache  *nodecache.Cache
	Fs     *fscap.Capability
	Engine *reconciler.Engine
	Scan   *scansvc.Service
	SyncID string
}

// Entry pairs one persisted SyncConfig with its optional live Instance.
type Entry struct {
	Config *model.SyncConfig
	Sync   *Instance
}

// Set is the ensemble of every configured sync, plus the on-disk
// config store and cache directory each is persisted through, and the
// collaborators every enabled sync's Engine shares: one cloud client,
// one transfer engine, one filesystem watcher (spec §4.3's per-sync
// watch registered on a single shared notify.Watch fan-in).
type Set struct {
	mu       sync.Mutex
	entries  []*Entry
	store    *configstore.Store
	cacheDir string
	cb       collab.AppCallbacks
	cloud    collab.CloudClient
	transfer collab.Transfer
	watcher  *dirnotify.Watcher

	// driveStores tracks ConfigStores opened on demand for external
	// backup drives (spec §4.5/§4.7's backupOpenDrive/backupCloseDrive),
	// keyed by drive path.
	driveStores map[string]*configstore.Store
}

// New constructs an empty Set backed by store for the primary drive's
// configs, cacheDir for per-sync SyncNodeCache files, and cloud/transfer
// as the shared collaborators every enabled sync's Engine dispatches
// through.
func New(store *configstore.Store, cacheDir string, cb collab.AppCallbacks, cloud collab.CloudClient, transfer collab.Transfer) *Set {
	return &Set{
		store:       store,
		cacheDir:    cacheDir,
		cb:          cb,
		cloud:       cloud,
		transfer:    transfer,
		watcher:     dirnotify.New(),
		driveStores: make(map[string]*configstore.Store),
	}
}

// Watcher exposes the Set's shared dirnotify.Watcher so the caller can
// pump its Hints() channel into RouteHint — the reconciliation loop
// itself lives in cmd/syncd, not in this package, so Set never starts
// that pump on its own (see EnableSyncByBackupId's doc comment).
func (s *Set) Watcher() *dirnotify.Watcher { return s.watcher }

// RouteHint delivers one dirnotify.DirtyHint to the Engine of the sync
// it names, if that sync is still enabled.
func (s *Set) RouteHint(hint dirnotify.DirtyHint) {
	s.mu.Lock()
	var eng *reconciler.Engine
	for _, e := range s.entries {
		if e.Sync != nil && e.Sync.SyncID == hint.SyncID {
			eng = e.Sync.Engine
			break
		}
	}
	s.mu.Unlock()
	if eng != nil {
		eng.EnqueueHint(hint.Path, hint.Severity)
	}
}

// Close tears down the shared filesystem watcher. It does not stop any
// enabled sync's Engine or scansvc.Service — callers disable those
// individually (DisableSelectedSyncs, RemoveSelectedSyncs) so that
// teardown order stays explicit.
func (s *Set) Close() {
	s.watcher.Close()
}

// Load populates the Set from the primary store's persisted configs,
// without enabling any of them — enabling is always an explicit,
// separate step (appendNewSync or enableSyncByBackupId), since starting
// a sync means running an initial scan, which the caller may want to
// schedule rather than block on.
func (s *Set) Load() error {
	cfgs, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load sync configs: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cfg := range cfgs {
		s.entries = append(s.entries, &Entry{Config: cfg})
	}
	return nil
}

func (s *Set) find(id model.BackupID) *Entry {
	for _, e := range s.entries {
		if e.Config.BackupID == id {
			return e
		}
	}
	return nil
}

// Entries returns a snapshot slice of the current entries. The
// returned slice is the caller's own copy; mutating it does not affect
// the Set.
func (s *Set) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// appendNewSync appends cfg to the set and attempts to enable it
// immediately (spec §4.7).
func (s *Set) AppendNewSync(ctx context.Context, cfg *model.SyncConfig) error {
	s.mu.Lock()
	if s.find(cfg.BackupID) != nil {
		s.mu.Unlock()
		return ErrAlreadyExists
	}
	entry := &Entry{Config: cfg}
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	if err := s.saveLocked(); err != nil {
		return err
	}
	return s.EnableSyncByBackupId(ctx, cfg.BackupID, false)
}

// enableSyncByBackupId instantiates the sync, builds its Engine and
// per-sync scansvc.Service, and runs one synchronous reconciliation
// pass as its initial scan (spec §4.3.1 step 1) before reporting it
// active. resetFingerprint=true overwrites the stored root fingerprint,
// used when the user has confirmed the local root legitimately moved
// (spec §4.7) rather than this being a stale/foreign path.
//
// This method never launches Engine.Run's background loop — that
// would tie the loop's lifetime to whatever ctx the caller happened to
// pass here, which for most callers (AppendNewSync, the `enable` CLI
// command) is not the daemon's lifetime. The long-running loop is
// launched once, per enabled sync, by cmd/syncd's `run` command, which
// is the only caller that actually owns a daemon-lifetime context.
func (s *Set) EnableSyncByBackupId(ctx context.Context, id model.BackupID, resetFingerprint bool) error {
	s.mu.Lock()
	entry := s.find(id)
	if entry == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	cfg := entry.Config
	s.mu.Unlock()

	fs, family, err := openCapability(cfg.LocalPath)
	if err != nil {
		s.disable(entry, model.LocalFilesystemMismatch)
		return fmt.Errorf("open local root: %w", err)
	}

	cachePath := filepath.Join(s.cacheDir, fmt.Sprintf("%x.db", cfg.BackupID))
	cache, err := nodecache.Open(cachePath)
	if err != nil {
		s.disable(entry, model.FailedWritingCache)
		return fmt.Errorf("open node cache: %w", err)
	}

	root, err := cache.LoadTree(ctx, func(name string) string { return fscap.CaseFold(family, name) })
	if err != nil {
		cache.Close()
		s.disable(entry, model.FailedWritingCache)
		return fmt.Errorf("load node tree: %w", err)
	}

	if resetFingerprint {
		cfg.LocalFingerprint = 0
	}

	syncID := fmt.Sprintf("%x", cfg.BackupID)
	scan := scansvc.New(fs, scanWorkers)
	scan.Start(ctx)

	engine := reconciler.NewEngine(cfg, root, cache, fs, s.cloud, s.transfer, scan, s.cb)
	engine.OnBackupModified(func() {
		s.disable(entry, model.BackupModified)
	})

	fsm := syncfsm.New()
	instance := &Instance{FSM: fsm, Root: root, Cache: cache, Fs: fs, Engine: engine, Scan: scan, SyncID: syncID}
	s.mu.Lock()
	entry.Sync = instance
	s.mu.Unlock()

	if err := engine.RunPass(ctx); err != nil {
		scan.Stop()
		s.disable(entry, model.InitialScanFailed)
		return fmt.Errorf("initial scan: %w", err)
	}
	fsm.ScanComplete()

	if err := s.watcher.AddRoot(context.Background(), syncID, cfg.LocalPath); err != nil {
		slog.Warn("watch sync root", "backup_id", syncID, "path", cfg.LocalPath, "error", err)
	}

	fsm.NotifyIfChanged(cfg, s.reportState)
	slog.Info("sync enabled", "backup_id", syncID, "path", cfg.LocalPath)
	return nil
}

func openCapability(root string) (*fscap.Capability, fscap.Family, error) {
	fs, err := fscap.New(root, ".syncdebris")
	if err != nil {
		return nil, fscap.FamilyUnix, err
	}
	return fs, fs.Family(), nil
}

// disableSelectedSyncs stops every entry pred selects, keeping its
// config on disk, and reports the (err, enabled) pair per §4.6's
// de-dup rule.
func (s *Set) DisableSelectedSyncs(pred func(*model.SyncConfig) bool, syncErr model.SyncError) {
	s.mu.Lock()
	var matched []*Entry
	for _, e := range s.entries {
		if pred(e.Config) {
			matched = append(matched, e)
		}
	}
	s.mu.Unlock()

	for _, e := range matched {
		s.disable(e, syncErr)
	}
}

func (s *Set) disable(e *Entry, syncErr model.SyncError) {
	if e.Sync != nil {
		e.Sync.FSM.Disable(syncErr)
		if e.Sync.Scan != nil {
			e.Sync.Scan.Stop()
		}
		if e.Sync.SyncID != "" {
			s.watcher.RemoveRoot(e.Sync.SyncID)
		}
		if e.Sync.Cache != nil {
			e.Sync.Cache.Close()
		}
		fsm := e.Sync.FSM
		cfg := e.Config
		s.mu.Lock()
		e.Sync = nil
		cfg.Enabled = false
		cfg.Error = syncErr
		s.mu.Unlock()
		fsm.NotifyIfChanged(cfg, s.reportState)
	} else {
		s.mu.Lock()
		e.Config.Enabled = false
		e.Config.Error = syncErr
		s.mu.Unlock()
		if s.cb != nil {
			s.cb.SyncUpdateStateConfig(e.Config, syncErr, false)
		}
	}
}

// removeSelectedSyncs stops matching syncs, deletes their node cache,
// and unregisters them from the set entirely (spec §4.7).
func (s *Set) RemoveSelectedSyncs(ctx context.Context, pred func(*model.SyncConfig) bool) error {
	s.mu.Lock()
	var keep []*Entry
	var remove []*Entry
	for _, e := range s.entries {
		if pred(e.Config) {
			remove = append(remove, e)
		} else {
			keep = append(keep, e)
		}
	}
	s.entries = keep
	s.mu.Unlock()

	var firstErr error
	for _, e := range remove {
		if e.Sync != nil {
			e.Sync.FSM.Disable(model.NoSyncError)
			if e.Sync.Scan != nil {
				e.Sync.Scan.Stop()
			}
			if e.Sync.SyncID != "" {
				s.watcher.RemoveRoot(e.Sync.SyncID)
			}
			if e.Sync.Cache != nil {
				if err := e.Sync.Cache.Destroy(ctx); err != nil && firstErr == nil {
					firstErr = fmt.Errorf("destroy cache for %x: %w", e.Config.BackupID, err)
				}
			}
		}
	}
	if err := s.saveLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// purgeSyncs removes every backup-type sync from the set and the
// config store (spec §4.7). Removing it from the cloud registry/user
// attribute is left to collab.CloudClient by the caller — this
// method's responsibility ends at local bookkeeping.
func (s *Set) PurgeSyncs(ctx context.Context) error {
	return s.RemoveSelectedSyncs(ctx, func(cfg *model.SyncConfig) bool {
		return cfg.Type == model.SyncBackup
	})
}

// backupOpenDrive opens (or reuses) the ConfigStore rooted at
// drivePath and loads its configs into the set, for an external backup
// drive that has just been connected.
func (s *Set) BackupOpenDrive(drivePath string, key []byte, crypto collab.Crypto) error {
	s.mu.Lock()
	if _, ok := s.driveStores[drivePath]; ok {
		s.mu.Unlock()
		return nil // already open
	}
	store := configstore.New(drivePath, key, crypto)
	s.driveStores[drivePath] = store
	s.mu.Unlock()

	cfgs, err := store.Load()
	if err != nil {
		return fmt.Errorf("load drive config store %s: %w", drivePath, err)
	}

	s.mu.Lock()
	for _, cfg := range cfgs {
		if s.find(cfg.BackupID) == nil {
			s.entries = append(s.entries, &Entry{Config: cfg})
		}
	}
	s.mu.Unlock()
	return nil
}

// backupCloseDrive flushes and unloads every in-memory config backed
// by drivePath, failing if any of them still has an active sync (spec
// §4.5) — the caller must disable those first.
func (s *Set) BackupCloseDrive(drivePath string) error {
	s.mu.Lock()
	store, ok := s.driveStores[drivePath]
	if !ok {
		s.mu.Unlock()
		return nil
	}

	var onDrive []*Entry
	var remaining []*Entry
	for _, e := range s.entries {
		if e.Config.ExternalDrivePath == drivePath {
			onDrive = append(onDrive, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	for _, e := range onDrive {
		if e.Sync != nil {
			s.mu.Unlock()
			return ErrDriveHasActive
		}
	}
	s.entries = remaining
	delete(s.driveStores, drivePath)
	s.mu.Unlock()

	cfgs := make([]*model.SyncConfig, len(onDrive))
	for i, e := range onDrive {
		cfgs[i] = e.Config
	}
	if err := store.Save(cfgs); err != nil {
		return fmt.Errorf("flush drive config store %s: %w", drivePath, err)
	}
	return nil
}

// saveSyncConfig flushes the primary drive's configs immediately —
// this module has no deferred "dirty set" scheduler, so the flush is
// synchronous rather than batched behind a periodic timer. cfg itself
// is not consulted: configs on an external backup drive are not
// written here, only by BackupCloseDrive.
func (s *Set) SaveSyncConfig(cfg *model.SyncConfig) error {
	return s.saveLocked()
}

func (s *Set) saveLocked() error {
	s.mu.Lock()
	cfgs := make([]*model.SyncConfig, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Config.ExternalDrivePath == "" {
			cfgs = append(cfgs, e.Config)
		}
	}
	s.mu.Unlock()
	return s.store.Save(cfgs)
}

func (s *Set) reportState(cfg *model.SyncConfig, err model.SyncError, enabled bool) {
	if s.cb != nil {
		s.cb.SyncUpdateStateConfig(cfg, err, enabled)
	}
}
