package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEnableCmd() *cobra.Command {
	var resetFingerprint bool

	cmd := &cobra.Command{
		Use:   "enable [BACKUP_ID]",
		Short: "Enable a sync and run its initial scan",
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
			if err := set.EnableSyncByBackupId(cmd.Context(), id, resetFingerprint); err != nil {
				return fmt.Errorf("enable sync: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enabled %x\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&resetFingerprint, "reset-fingerprint", false,
		"overwrite the stored root fingerprint; use after confirming the local root legitimately moved")
	return cmd
}
