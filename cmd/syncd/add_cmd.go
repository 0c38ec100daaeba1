package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/foldersync/syncengine/internal/reconcile/model"
)

func newAddCmd() *cobra.Command {
	var syncType string
	var name string

	cmd := &cobra.Command{
		Use:   "add [LOCAL_PATH]",
		Short: "Register a new sync and enable it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, _, err := openSet(cmd)
			if err != nil {
				return err
			}

			typ, err := parseSyncType(syncType)
			if err != nil {
				return err
			}

			if name == "" {
				name = args[0]
			}

			cfg := &model.SyncConfig{
				BackupID:  newBackupID(),
				LocalPath: args[0],
				Name:      name,
				Type:      typ,
				Enabled:   true,
			}

			if err := set.AppendNewSync(cmd.Context(), cfg); err != nil {
				return fmt.Errorf("add sync: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "added sync %x (%s) for %s\n", cfg.BackupID, cfg.Name, cfg.LocalPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&syncType, "type", "twoway", "sync direction: up, down, twoway, backup")
	cmd.Flags().StringVar(&name, "name", "", "display name for the sync (defaults to the local path)")
	return cmd
}

func parseSyncType(s string) (model.SyncType, error) {
	switch s {
	case "up":
		return model.SyncUp, nil
	case "down":
		return model.SyncDown, nil
	case "twoway", "":
		return model.SyncTwoWay, nil
	case "backup":
		return model.SyncBackup, nil
	default:
		return 0, fmt.Errorf("unknown sync type %q (want up, down, twoway, backup)", s)
	}
}

// newBackupID mints a fresh identifier for a sync the user just
// registered. BackupIDs are an opaque 8-byte handle (spec §3); a v4
// UUID supplies more entropy than this needs, so only its first 8
// bytes are kept.
func newBackupID() model.BackupID {
	u := uuid.New()
	var id model.BackupID
	copy(id[:], u[:8])
	return id
}
