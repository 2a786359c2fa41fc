package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fcanata00/newpkg/internal/manifest"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "inspect and maintain the manifest database directly",
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return exitf(4, "encoding output: %w", err)
	}
	fmt.Println(string(b))
	return nil
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "create the manifest directory and an empty index",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newStore(cfg).Init(); err != nil {
			return exitf(3, "db init: %w", err)
		}
		return nil
	},
}

var dbAddCmd = &cobra.Command{
	Use:   "add MANIFEST_FILE",
	Short: "register a manifest that was produced out of band",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifestFile(args[0])
		if err != nil {
			return exitf(4, "reading manifest: %w", err)
		}
		force, _ := cmd.Flags().GetBool("force")
		if err := newStore(cfg).Add(m, manifest.AddOptions{Replace: force}); err != nil {
			return exitf(2, "db add: %w", err)
		}
		return nil
	},
}

var dbRemoveCmd = &cobra.Command{
	Use:   "remove QUERY",
	Short: "drop a manifest from the store without touching installed files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if _, err := newStore(cfg).Remove(args[0], manifest.RemoveOptions{Force: force}); err != nil {
			return exitf(2, "db remove: %w", err)
		}
		return nil
	},
}

var dbQueryCmd = &cobra.Command{
	Use:   "query QUERY",
	Short: "print the manifest(s) matching a name or name-version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results, err := newStore(cfg).Query(args[0])
		if err != nil {
			return exitf(2, "db query: %w", err)
		}
		return printJSON(results)
	},
}

var dbListCmd = &cobra.Command{
	Use:   "list",
	Short: "list every index entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := newStore(cfg).List(manifest.ListOptions{})
		if err != nil {
			return exitf(4, "db list: %w", err)
		}
		return printJSON(entries)
	},
}

var dbRevdepsCmd = &cobra.Command{
	Use:   "revdeps NAME",
	Short: "list installed packages that depend on NAME",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		revs, err := newStore(cfg).Revdeps(args[0])
		if err != nil {
			return exitf(2, "db revdeps: %w", err)
		}
		return printJSON(revs)
	},
}

var dbProvidesCmd = &cobra.Command{
	Use:   "provides PATH",
	Short: "list installed packages that own PATH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owners, err := newStore(cfg).Provides(args[0])
		if err != nil {
			return exitf(2, "db provides: %w", err)
		}
		return printJSON(owners)
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "archive the whole manifest directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := newStore(cfg).Backup()
		if err != nil {
			return exitf(3, "db backup: %w", err)
		}
		fmt.Println(path)
		return nil
	},
}

var dbRestoreCmd = &cobra.Command{
	Use:   "restore ARCHIVE",
	Short: "replace the manifest directory from a backup archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newStore(cfg).Restore(args[0]); err != nil {
			return exitf(3, "db restore: %w", err)
		}
		return nil
	},
}

var dbReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "rebuild index.json by scanning every manifest file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newStore(cfg).Reindex(); err != nil {
			return exitf(4, "db reindex: %w", err)
		}
		return nil
	},
}

var dbVerifyCmd = &cobra.Command{
	Use:   "verify QUERY",
	Short: "recompute file checksums and report mismatches against the manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		problems, err := newStore(cfg).Verify(args[0])
		if err != nil {
			return exitf(2, "db verify: %w", err)
		}
		if err := printJSON(problems); err != nil {
			return err
		}
		for _, p := range problems {
			if len(p) > 0 {
				return exitf(4, "db verify found %d problem(s)", len(p))
			}
		}
		return nil
	},
}

var dbOrphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "list installed packages with no reverse dependencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := newStore(cfg).Orphans()
		if err != nil {
			return exitf(4, "db orphans: %w", err)
		}
		return printJSON(entries)
	},
}

var dbSearchCmd = &cobra.Command{
	Use:   "search TERM",
	Short: "search index entries by name or origin substring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := newStore(cfg).Search(args[0])
		if err != nil {
			return exitf(4, "db search: %w", err)
		}
		return printJSON(entries)
	},
}

var dbSizeCmd = &cobra.Command{
	Use:   "size QUERY",
	Short: "sum the on-disk size of every file a manifest owns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := newStore(cfg).Size(args[0])
		if err != nil {
			return exitf(2, "db size: %w", err)
		}
		fmt.Println(size)
		return nil
	},
}

func loadManifestFile(path string) (*manifest.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func init() {
	dbAddCmd.Flags().Bool("force", false, "replace an existing manifest with the same identity")
	dbRemoveCmd.Flags().Bool("force", false, "remove every match when the query names more than one manifest")

	dbCmd.AddCommand(
		dbInitCmd, dbAddCmd, dbRemoveCmd, dbQueryCmd, dbListCmd,
		dbRevdepsCmd, dbProvidesCmd, dbBackupCmd, dbRestoreCmd,
		dbReindexCmd, dbVerifyCmd, dbOrphansCmd, dbSearchCmd, dbSizeCmd,
	)
}
