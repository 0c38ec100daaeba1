package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldersync/syncengine/internal/reconcile/model"
)

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove [BACKUP_ID]",
		Aliases: []string{"rm"},
		Short:   "Stop a sync, delete its cache, and unregister it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBackupID(args[0])
			if err != nil {
				return err
			}
			set, _, err := openSet(cmd)
			if err != nil {
				return err
			}
			if err := set.RemoveSelectedSyncs(cmd.Context(), func(c *model.SyncConfig) bool { return c.BackupID == id }); err != nil {
				return fmt.Errorf("remove sync: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %x\n", id)
			return nil
		},
	}
	return cmd
}
