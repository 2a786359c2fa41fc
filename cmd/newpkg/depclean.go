package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/fcanata00/newpkg/internal/config"
	"github.com/fcanata00/newpkg/internal/depclean"
	"github.com/fcanata00/newpkg/internal/logging"
	"github.com/fcanata00/newpkg/internal/remove"
)

var (
	depcleanAuto        bool
	depcleanInteractive bool
	depcleanDryRun      bool
	depcleanForce       bool
	depcleanVerify      bool
)

var depcleanCmd = &cobra.Command{
	Use:   "depclean",
	Short: "find and remove packages nothing depends on",
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

		if depcleanVerify {
			entries, err := store.All()
			if err != nil {
				return exitf(4, "reading manifest index: %w", err)
			}
			for _, e := range entries {
				if problems, err := store.Verify(e.ID()); err == nil && len(problems[e.ID()]) > 0 {
					color.Yellow.Printf("VERIFY %s: %v\n", e.ID(), problems[e.ID()])
				}
			}
		}

		mode := depclean.ModeDryRun
		switch {
		case depcleanAuto:
			mode = depclean.ModeAuto
		case depcleanInteractive:
			mode = depclean.ModeInteractive
		}

		remover := remove.New(store, protected, loggers.Logger(logging.Depclean))
		if depcleanForce {
			remover = remove.New(store, config.ProtectedSet{}, loggers.Logger(logging.Depclean))
		}

		var confirm func(string) bool
		if mode == depclean.ModeInteractive {
			confirm = promptConfirm
		}
		driver := depclean.New(store, remover, confirm)

		summary, err := driver.Run(cmd.Context(), mode, protected, graph)
		if err != nil {
			return exitf(4, "depclean: %w", err)
		}

		var completed, skipped, failed []string
		for _, c := range summary.Candidates {
			switch {
			case c.Removed:
				completed = append(completed, c.Name)
			case c.Skipped:
				skipped = append(skipped, c.Name)
			default:
				failed = append(failed, c.Name)
			}
		}
		printSummary(completed, skipped, failed)
		if code := summary.ExitCode(); code != 0 {
			return exitf(code, "depclean finished with %d failure(s)", summary.Failed)
		}
		return nil
	},
}

func promptConfirm(name string) bool {
	fmt.Printf("remove orphan %s? [y/N] ", name)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

func init() {
	depcleanCmd.Flags().BoolVar(&depcleanAuto, "auto", false, "remove every orphan without asking")
	depcleanCmd.Flags().BoolVar(&depcleanInteractive, "interactive", false, "ask before removing each orphan")
	depcleanCmd.Flags().BoolVar(&depcleanDryRun, "dry-run", false, "report orphans without removing them (default)")
	depcleanCmd.Flags().BoolVar(&depcleanForce, "force", false, "drop the protected set from the remover (depclean itself still skips protected orphans)")
	depcleanCmd.Flags().BoolVar(&depcleanVerify, "verify", false, "also verify manifest checksums before sweeping")
	depcleanCmd.Flags().Bool("purge-cache", false, "accepted for CLI parity; cache pruning lives in the sync collaborator")
	depcleanCmd.Flags().Bool("auto-commit", false, "accepted for CLI parity; the ports-tree commit collaborator is out of scope")
}
