// Command newpkg is the CLI front end for the build/install/remove/upgrade
// pipeline: a cobra root command wiring together the manifest store, the
// dependency graph, the fetcher, the stage runner and the upgrade/remove/
// depclean drivers, one file per subcommand tree.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fcanata00/newpkg/internal/config"
	"github.com/fcanata00/newpkg/internal/logging"
)

var (
	flagConfigPath string
	flagRoot       string
	flagVerbose    bool

	cfg     config.Config
	loggers *logging.Registry
)

// exitError carries the process exit code a command wants, per the external
// interface's exit-code table (0 success, 1 usage, 2 partial failure, 3
// fatal precondition, 4 data corruption).
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitf(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if ee, ok := err.(*exitError); ok {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "newpkg",
	Short: "a source-based package manager",
	Long: `newpkg builds software from recipes into relocatable archives,
installs them into a host or staging root, tracks them in a local
manifest database, and maintains dependency/reverse-dependency
closure across install, upgrade, remove and depclean runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		root := flagRoot
		if root == "" {
			root = "/var/lib/newpkg"
		}
		loaded, err := config.Load(flagConfigPath, root)
		if err != nil {
			return exitf(3, "loading config: %w", err)
		}
		cfg = loaded

		level := zerolog.InfoLevel
		if flagVerbose {
			level = zerolog.DebugLevel
		}
		reg, err := logging.NewRegistry(logging.Config{
			LogDir:   cfg.LogDir,
			Level:    level,
			ToStderr: flagVerbose,
		})
		if err != nil {
			return exitf(3, "opening logs: %w", err)
		}
		loggers = reg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to newpkg.yaml (defaults applied if absent)")
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "state root directory (default /var/lib/newpkg)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "mirror logs to stderr at debug level")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(depcleanCmd)
	rootCmd.AddCommand(dbCmd)
}
