package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldersync/syncengine/internal/reconcile/model"
)

func newDisableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disable [BACKUP_ID]",
		Short: "Stop a sync but keep its configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBackupID(args[0])
			if err != nil {
				return err
			}
			set, _, err := openSet(cmd)
			if err != nil {
				return err
			}
			set.DisableSelectedSyncs(func(c *model.SyncConfig) bool { return c.BackupID == id }, model.NoSyncError)
			fmt.Fprintf(cmd.OutOrStdout(), "disabled %x\n", id)
			return nil
		},
	}
	return cmd
}
