// Package config loads the explicit configuration value every driver is
// constructed with. There is no package-level mutable state beyond what a
// caller chooses to keep in its own Config value.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

var errNotPositive = errors.New("value must be positive")

// Config enumerates the directories and tunables every driver needs.
type Config struct {
	DBDir             string `yaml:"db_dir"`
	DBBackupDir       string `yaml:"db_backup_dir"`
	LogDir            string `yaml:"log_dir"`
	HooksDir          string `yaml:"hooks_dir"`
	SnapshotDir       string `yaml:"snapshot_dir"`
	StateDir          string `yaml:"state_dir"`
	CacheSourcesDir   string `yaml:"cache_sources_dir"`
	CachePackagesDir  string `yaml:"cache_packages_dir"`
	PortsDir          string `yaml:"ports_dir"`
	LFSRoot           string `yaml:"lfs_root"`
	Parallel          int    `yaml:"parallel"`
	Retry             int    `yaml:"retry"`
	KeepSnapshotsDays int    `yaml:"keep_snapshots_days"`
	DBBackupKeep      int    `yaml:"db_backup_keep"`
	AutoCommit        bool   `yaml:"auto_commit"`
	CleanAfterBuild   bool   `yaml:"clean_after_build"`
	ProtectedSetPath  string `yaml:"protected_set_path"`

	// IntegrityBlocksCommit controls whether an upgrade integrity-fingerprint
	// mismatch blocks the commit or is only logged; advisory by default.
	IntegrityBlocksCommit bool `yaml:"integrity_blocks_commit"`
}

// Default returns a Config with sensible defaults (30-day snapshot
// retention) rooted at root.
func Default(root string) Config {
	return Config{
		DBDir:             filepath.Join(root, "db"),
		DBBackupDir:       filepath.Join(root, "db", "backup"),
		LogDir:            filepath.Join(root, "log"),
		HooksDir:          filepath.Join(root, "hooks"),
		SnapshotDir:       filepath.Join(root, "snapshots"),
		StateDir:          filepath.Join(root, "state"),
		CacheSourcesDir:   filepath.Join(root, "cache", "sources"),
		CachePackagesDir:  filepath.Join(root, "cache", "packages"),
		PortsDir:          filepath.Join(root, "ports"),
		LFSRoot:           filepath.Join(root, "lfs"),
		Parallel:          4,
		Retry:             3,
		KeepSnapshotsDays: 30,
		DBBackupKeep:      5,
		AutoCommit:        false,
		CleanAfterBuild:   true,
	}
}

// Load reads a YAML config file over the defaults rooted at root, then
// applies NEWPKG_-prefixed environment overrides explicitly (no implicit
// global lookup elsewhere in the codebase).
func Load(path, root string) (Config, error) {
	cfg := Default(root)
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return applyEnv(cfg), nil
			}
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	if v := os.Getenv("NEWPKG_DB_DIR"); v != "" {
		cfg.DBDir = v
	}
	if v := os.Getenv("NEWPKG_PORTS_DIR"); v != "" {
		cfg.PortsDir = v
	}
	if v := os.Getenv("NEWPKG_LFS_ROOT"); v != "" {
		cfg.LFSRoot = v
	}
	if v := os.Getenv("NEWPKG_PARALLEL"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Parallel = n
		}
	}
	if v := os.Getenv("NEWPKG_RETRY"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Retry = n
		}
	}
	return cfg
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errNotPositive
	}
	return n, nil
}
