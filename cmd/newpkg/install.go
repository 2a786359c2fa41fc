package main

import (
	"fmt"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/fcanata00/newpkg/internal/depgraph"
	"github.com/fcanata00/newpkg/internal/events"
	"github.com/fcanata00/newpkg/internal/stage"
)

var (
	installResume   bool
	installDryRun   bool
	installParallel int
	installRetry    int
	installForce    bool
	installStage    string
)

var installCmd = &cobra.Command{
	Use:   "install PKG...",
	Short: "build and install one or more packages from recipes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if installParallel > 0 {
			cfg.Parallel = installParallel
		}
		if installRetry > 0 {
			cfg.Retry = installRetry
		}

		metafiles, err := loadMetafiles(cfg.PortsDir, args)
		if err != nil {
			return exitf(1, "resolving recipes: %w", err)
		}

		store := newStore(cfg)
		if err := store.Init(); err != nil {
			return exitf(3, "opening manifest store: %w", err)
		}
		graph, err := syncGraph(cfg, store)
		if err != nil {
			return exitf(4, "syncing dependency graph: %w", err)
		}

		existing, err := store.All()
		if err != nil {
			return exitf(4, "reading manifest index: %w", err)
		}
		requested := map[string]bool{}
		for _, m := range metafiles {
			requested[m.Name] = true
		}
		installed := map[string]bool{}
		for _, e := range existing {
			if !requested[e.Name] {
				installed[e.Name] = true
			}
		}

		closure, err := resolveDependencyClosure(cfg.PortsDir, graph, metafiles)
		if err != nil {
			return exitf(1, "resolving dependencies: %w", err)
		}

		order := make([]string, 0, len(closure))
		seen := map[string]bool{}
		for _, m := range metafiles {
			names, err := graph.Order(m.Name, depgraph.OrderOptions{SkipInstalled: installed})
			if err != nil {
				return exitf(4, "computing install order for %s: %w", m.Name, err)
			}
			for _, n := range names {
				if !seen[n] {
					seen[n] = true
					order = append(order, n)
				}
			}
		}

		if installDryRun {
			fmt.Println("would install, in order:")
			for _, n := range order {
				fmt.Println(" ", n)
			}
			return nil
		}

		byM := map[string]int{}
		for i, m := range closure {
			byM[m.Name] = i
		}

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		var completed, skipped, failed []string
		for _, n := range order {
			idx, ok := byM[n]
			if !ok {
				// a dependency that is already installed and not one of
				// the requested targets; nothing to build.
				skipped = append(skipped, n)
				continue
			}
			m := closure[idx]
			deployRoot := deployRootFor(cfg, m.Stage)
			runner := newRunner(cfg, store, broker, coreLogger(), deployRoot)

			opts := stage.RunOptions{Resume: installResume}
			if installStage != "" {
				opts.Only = stage.Name(installStage)
			}
			if err := runner.Run(cmd.Context(), m, opts); err != nil {
				failed = append(failed, n)
				color.Red.Printf("FAIL %s: %v\n", n, err)
				if !installForce {
					break
				}
				continue
			}
			completed = append(completed, n)
			color.Green.Printf("OK   %s\n", n)
		}

		printSummary(completed, skipped, failed)
		if len(failed) > 0 {
			return exitf(2, "install finished with %d failure(s)", len(failed))
		}
		return nil
	},
}

func printSummary(completed, skipped, failed []string) {
	fmt.Println("summary:")
	fmt.Printf("  completed: %d\n", len(completed))
	fmt.Printf("  skipped:   %d\n", len(skipped))
	fmt.Printf("  failed:    %d\n", len(failed))
}

func init() {
	installCmd.Flags().BoolVar(&installResume, "resume", false, "resume from the last checkpoint")
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false, "print the install order without building")
	installCmd.Flags().IntVar(&installParallel, "parallel", 0, "override the configured fetch concurrency")
	installCmd.Flags().IntVar(&installRetry, "retry", 0, "override the configured fetch retry count")
	installCmd.Flags().BoolVar(&installForce, "force", false, "keep going after a package fails")
	installCmd.Flags().StringVar(&installStage, "stage", "", "stop each package's pipeline after this stage")
}
