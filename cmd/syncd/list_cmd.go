package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered syncs",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, _, err := openSet(cmd)
			if err != nil {
				return err
			}

			entries := set.Entries()
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no syncs registered")
				return nil
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				status := "disabled"
				if e.Sync != nil {
					status = e.Sync.FSM.Status().State.String()
				} else if e.Config.Enabled {
					status = "enabled (not running)"
				}
				fmt.Fprintf(out, "%x  %-8s  %-20s  %s  %s\n",
					e.Config.BackupID, e.Config.Type, status, e.Config.Name, e.Config.LocalPath)
			}
			return nil
		},
	}
}
