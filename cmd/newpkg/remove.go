package main

import (
	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/fcanata00/newpkg/internal/config"
	"github.com/fcanata00/newpkg/internal/depclean"
	"github.com/fcanata00/newpkg/internal/lock"
	"github.com/fcanata00/newpkg/internal/logging"
	"github.com/fcanata00/newpkg/internal/remove"
)

var (
	removeAuto       bool
	removeForce      bool
	removePurge      bool
	removeDryRun     bool
	removeNoDepclean bool
)

var removeCmd = &cobra.Command{
	Use:   "remove PKG...",
	Short: "uninstall one or more packages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		protected, err := config.LoadProtectedSet(cfg.ProtectedSetPath)
		if err != nil {
			return exitf(3, "loading protected set: %w", err)
		}

		store := newStore(cfg)
		if err := store.Init(); err != nil {
			return exitf(3, "opening manifest store: %w", err)
		}
		graph, err := syncGraph(cfg, store)
		if err != nil {
			return exitf(4, "syncing dependency graph: %w", err)
		}

		if removeDryRun {
			for _, q := range args {
				manifests, err := store.Query(q)
				if err != nil || len(manifests) == 0 {
					color.Yellow.Printf("would skip %s (not found)\n", q)
					continue
				}
				color.Cyan.Printf("would remove %s\n", manifests[0].ID())
			}
			return nil
		}

		logger := loggers.Logger(logging.Remove)
		driver := remove.New(store, protected, logger)

		err = lock.WithLock(cmd.Context(), lockPath(cfg), func() error {
			opts := remove.Options{Force: removeForce, Purge: removePurge, HooksDir: cfg.HooksDir}
			outcomes := driver.RemoveAll(cmd.Context(), args, opts, graph)
			var completed, skipped, failed []string
			for _, o := range outcomes {
				switch {
				case o.Removed:
					completed = append(completed, o.Package)
					color.Green.Printf("OK   %s\n", o.Package)
				case o.Skipped:
					skipped = append(skipped, o.Package)
					color.Yellow.Printf("SKIP %s: %v\n", o.Package, o.Err)
				default:
					failed = append(failed, o.Package)
					color.Red.Printf("FAIL %s: %v\n", o.Package, o.Err)
				}
			}
			printSummary(completed, skipped, failed)
			if len(failed) > 0 {
				return exitf(2, "remove finished with %d failure(s)", len(failed))
			}
			return nil
		})
		if err != nil {
			return err
		}

		if !removeNoDepclean {
			dc := depclean.New(store, driver, nil)
			mode := depclean.ModeDryRun
			if removeAuto {
				mode = depclean.ModeAuto
			}
			if _, err := dc.Run(cmd.Context(), mode, protected, graph); err != nil {
				return exitf(2, "post-remove depclean: %w", err)
			}
		}
		return nil
	},
}

func init() {
	removeCmd.Flags().BoolVar(&removeAuto, "auto", false, "also auto-remove orphans left behind")
	removeCmd.Flags().BoolVar(&removeForce, "force", false, "bypass the protected-set and revdep guards")
	removeCmd.Flags().BoolVar(&removePurge, "purge", false, "also delete conventional config/state directories")
	removeCmd.Flags().BoolVar(&removeDryRun, "dry-run", false, "print what would be removed without removing it")
	removeCmd.Flags().BoolVar(&removeNoDepclean, "no-depclean", false, "skip the post-remove orphan sweep")
	removeCmd.Flags().Bool("resume", false, "accepted for CLI parity; remove has no checkpointed state to resume")
	removeCmd.Flags().Bool("no-sync", false, "accepted for CLI parity; the ports-tree sync collaborator is out of scope")
}
