package main

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foldersync/syncengine/internal/reconcile/collab"
	"github.com/foldersync/syncengine/internal/reconcile/collab/fake"
	"github.com/foldersync/syncengine/internal/reconcile/configstore"
	"github.com/foldersync/syncengine/internal/reconcile/model"
	"github.com/foldersync/syncengine/internal/reconcile/syncset"
	"github.com/foldersync/syncengine/internal/utils"
)

func openSet(cmd *cobra.Command) (*syncset.Set, string, error) {
	home, _ := cmd.Flags().GetString("home")
	home, err := utils.ResolvePath(home)
	if err != nil {
		return nil, "", fmt.Errorf("resolve home: %w", err)
	}
	if err := utils.EnsureDir(home); err != nil {
		return nil, "", fmt.Errorf("create home dir: %w", err)
	}

	cacheDir := filepath.Join(home, "cache")
	if err := utils.EnsureDir(cacheDir); err != nil {
		return nil, "", fmt.Errorf("create cache dir: %w", err)
	}

	key := derivedKey()
	store := configstore.New(filepath.Join(home, "syncs"), key, configstore.StdCrypto{})

	// The CLI ships no concrete CloudClient/Transfer backend of its own
	// — collab/fake's in-memory doubles stand in so `syncd run`
	// still exercises the real Engine loop end to end against a local
	// root with no actual cloud counterpart.
	set := syncset.New(store, cacheDir, appCallbacks{}, fake.NewCloudClient(), fake.NewTransfer())
	if err := set.Load(); err != nil {
		return nil, "", fmt.Errorf("load syncs: %w", err)
	}
	return set, home, nil
}

// derivedKey turns the SYNCD_PASSPHRASE env var (or a fixed
// development default, for the common "just try it" path) into a
// 32-byte AES-256 key. This is CLI bootstrapping, not the encryption
// primitive itself — collab.Crypto / configstore.StdCrypto own that;
// see DESIGN.md.
func derivedKey() []byte {
	phrase := viper.GetString("passphrase")
	if phrase == "" {
		phrase = os.Getenv("SYNCD_PASSPHRASE")
	}
	if phrase == "" {
		phrase = "syncd-dev-default-passphrase"
	}
	sum := sha256.Sum256([]byte(phrase))
	return sum[:]
}

// appCallbacks is the CLI's collab.AppCallbacks implementation: there
// is no persistent UI process to push these events to between
// invocations, so each one is just logged and the user re-checks state
// with `syncd list` on their own schedule.
type appCallbacks struct{}

var _ collab.AppCallbacks = appCallbacks{}

func (appCallbacks) SyncUpdateStateConfig(cfg *model.SyncConfig, err model.SyncError, enabled bool) {
	slog.Info("sync state changed", "backup_id", fmt.Sprintf("%x", cfg.BackupID), "error", err, "enabled", enabled)
}

func (appCallbacks) SyncUpdateTreeState(cfg *model.SyncConfig, path string, state model.TreeState) {
	slog.Debug("tree state", "backup_id", fmt.Sprintf("%x", cfg.BackupID), "path", path, "state", state)
}

func (appCallbacks) SyncUpdateConflicts(cfg *model.SyncConfig, hasConflicts bool) {
	slog.Info("conflicts", "backup_id", fmt.Sprintf("%x", cfg.BackupID), "has_conflicts", hasConflicts)
}

func (appCallbacks) SyncUpdateStalled(cfg *model.SyncConfig, stalled bool, reasons map[string]string) {
	slog.Warn("stalled", "backup_id", fmt.Sprintf("%x", cfg.BackupID), "stalled", stalled, "reasons", reasons)
}

func (appCallbacks) SyncUpdateScanning(cfg *model.SyncConfig, scanning bool) {
	slog.Debug("scanning", "backup_id", fmt.Sprintf("%x", cfg.BackupID), "scanning", scanning)
}
