package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/foldersync/syncengine/internal/reconcile/collab/fake"
	"github.com/foldersync/syncengine/internal/reconcile/debris"
	"github.com/foldersync/syncengine/internal/reconcile/syncset"
)

// pollInterval bounds how long an Engine's Run loop sleeps between
// passes when nothing wakes it early (spec §5's cooperative scheduling
// model — a hint or cloud change notifies the waiter sooner).
const pollInterval = 10 * time.Second

// newRunCmd starts the daemon: it enables every sync marked Enabled in
// its persisted config (Load never enables on its own — see Set.Load's
// doc comment), locks each one's root against concurrent runs, launches
// its Engine.Run loop, and blocks until the process receives a
// termination signal.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, _, err := openSet(cmd)
			if err != nil {
				return err
			}
			defer set.Close()

			ctx := cmd.Context()
			for _, e := range set.Entries() {
				if !e.Config.Enabled {
					continue
				}
				if err := set.EnableSyncByBackupId(ctx, e.Config.BackupID, false); err != nil {
					slog.Error("enable sync", "backup_id", fmt.Sprintf("%x", e.Config.BackupID), "error", err)
				}
			}

			var guards []*debris.Guard
			defer func() {
				for _, g := range guards {
					if err := g.Unlock(); err != nil {
						slog.Warn("unlock sync root", "error", err)
					}
				}
			}()

			var wg sync.WaitGroup
			waiter := fake.NewWaiter()

			for _, e := range set.Entries() {
				if e.Sync == nil {
					continue
				}
				g := debris.New(e.Config.LocalPath)
				if err := g.Lock(); err != nil {
					slog.Error("lock sync root", "path", e.Config.LocalPath, "error", err)
					continue
				}
				guards = append(guards, g)
				slog.Info("locked sync root", "path", e.Config.LocalPath, "backup_id", fmt.Sprintf("%x", e.Config.BackupID))

				eng := e.Sync.Engine
				wg.Add(1)
				go func() {
					defer wg.Done()
					eng.Run(ctx, waiter, pollInterval)
				}()
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				pumpHints(ctx, set)
			}()

			slog.Info("syncd running", "locked_syncs", len(guards))
			<-ctx.Done()
			slog.Info("syncd shutting down")
			wg.Wait()
			return nil
		},
	}
}

// pumpHints forwards every dirnotify.DirtyHint the Set's shared watcher
// produces to the owning sync's Engine, until ctx is cancelled.
func pumpHints(ctx context.Context, set *syncset.Set) {
	hints := set.Watcher().Hints()
	for {
		select {
		case <-ctx.Done():
			return
		case hint, ok := <-hints:
			if !ok {
				return
			}
			set.RouteHint(hint)
		}
	}
}
