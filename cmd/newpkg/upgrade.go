package main

import (
	"fmt"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/fcanata00/newpkg/internal/logging"
	"github.com/fcanata00/newpkg/internal/snapshot"
	"github.com/fcanata00/newpkg/internal/upgrade"
)

var (
	upgradeAll    bool
	upgradeResume bool
	upgradeDryRun bool
	upgradeForce  bool
	upgradeAuto   bool
	upgradeStage  string
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade [PKG...]",
	Short: "move installed packages to the version their recipe now names",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := newStore(cfg)
		if err := store.Init(); err != nil {
			return exitf(3, "opening manifest store: %w", err)
		}

		names := args
		if upgradeAll {
			entries, err := store.All()
			if err != nil {
				return exitf(4, "reading manifest index: %w", err)
			}
			names = names[:0]
			for _, e := range entries {
				names = append(names, e.Name)
			}
		}
		if len(names) == 0 {
			return exitf(1, "upgrade requires --all or at least one package name")
		}

		metafiles, err := loadMetafiles(cfg.PortsDir, names)
		if err != nil {
			return exitf(1, "resolving recipes: %w", err)
		}

		if upgradeDryRun {
			for _, m := range metafiles {
				fmt.Printf("would upgrade to %s\n", m.ID())
			}
			return nil
		}

		snapshots := snapshot.New(cfg.SnapshotDir)
		runner := newRunner(cfg, store, nil, loggers.Logger(logging.Upgrade), "/")
		driver := upgrade.New(upgrade.Config{
			StateDir:              cfg.StateDir,
			LockPath:              lockPath(cfg),
			HooksDir:              cfg.HooksDir,
			DeployRoot:            "/",
			IntegrityBlocksCommit: cfg.IntegrityBlocksCommit,
			Force:                 upgradeForce,
		}, store, snapshots, runner, loggers.Logger(logging.Upgrade))

		results, err := driver.Run(cmd.Context(), metafiles, upgradeResume)
		var completed, skipped, failed []string
		for _, r := range results {
			switch {
			case r.Upgraded:
				completed = append(completed, r.Package)
				color.Green.Printf("OK   %s\n", r.Package)
			case r.Skipped:
				skipped = append(skipped, r.Package)
				color.Yellow.Printf("SKIP %s: already at this version\n", r.Package)
			case r.RolledBack:
				failed = append(failed, r.Package)
				color.Red.Printf("ROLLED BACK %s: %v\n", r.Package, r.Err)
			default:
				failed = append(failed, r.Package)
				color.Red.Printf("FAIL %s: %v\n", r.Package, r.Err)
			}
		}
		printSummary(completed, skipped, failed)
		if err != nil {
			return exitf(2, "upgrade stopped: %w", err)
		}
		return nil
	},
}

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeAll, "all", false, "upgrade every installed package")
	upgradeCmd.Flags().BoolVar(&upgradeResume, "resume", false, "retry the package that failed last run first")
	upgradeCmd.Flags().BoolVar(&upgradeDryRun, "dry-run", false, "print the upgrade targets without running them")
	upgradeCmd.Flags().BoolVar(&upgradeForce, "force", false, "rebuild even when the recipe's version matches what's installed")
	upgradeCmd.Flags().BoolVar(&upgradeAuto, "auto", false, "accepted for CLI parity; upgrade always runs unattended once started")
	upgradeCmd.Flags().Bool("rollback", false, "accepted for CLI parity; rollback is automatic on failure")
	upgradeCmd.Flags().Bool("no-commit", false, "accepted for CLI parity; the ports-tree commit collaborator is out of scope")
	upgradeCmd.Flags().StringVar(&upgradeStage, "stage", "", "accepted for CLI parity with install --stage")
}
