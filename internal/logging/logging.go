// Package logging configures the zerolog loggers newpkg's drivers write to,
// one per subsystem log file named in the external interface surface
// (core.log, upgrade.log, remove.log, depclean.log).
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Subsystem names the log file a driver writes to.
type Subsystem string

const (
	Core     Subsystem = "core"
	Upgrade  Subsystem = "upgrade"
	Remove   Subsystem = "remove"
	Depclean Subsystem = "depclean"
)

// Config controls how loggers are built.
type Config struct {
	LogDir     string
	Level      zerolog.Level
	JSONOutput bool
	// ToStderr additionally mirrors every log line to stderr; drivers
	// running interactively want this, batch/cron invocations don't.
	ToStderr bool
}

// Registry opens and caches one logger per subsystem so repeated calls for
// the same subsystem share a file handle instead of reopening it.
type Registry struct {
	cfg     Config
	loggers map[Subsystem]zerolog.Logger
	files   map[Subsystem]*os.File
}

// NewRegistry ensures cfg.LogDir exists and returns an empty Registry ready
// to hand out per-subsystem loggers.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Registry{
		cfg:     cfg,
		loggers: make(map[Subsystem]zerolog.Logger),
		files:   make(map[Subsystem]*os.File),
	}, nil
}

// Logger returns (creating if needed) the logger for subsystem s, with a
// "component" field set so lines from different drivers sharing one file
// stay distinguishable.
func (r *Registry) Logger(s Subsystem) zerolog.Logger {
	if l, ok := r.loggers[s]; ok {
		return l
	}
	var writers []io.Writer
	if r.cfg.LogDir != "" {
		path := filepath.Join(r.cfg.LogDir, string(s)+".log")
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			r.files[s] = f
			writers = append(writers, f)
		}
	}
	if r.cfg.ToStderr || len(writers) == 0 {
		if r.cfg.JSONOutput {
			writers = append(writers, os.Stderr)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		}
	}
	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}
	logger := zerolog.New(out).Level(r.cfg.Level).With().
		Timestamp().
		Str("component", string(s)).
		Logger()
	r.loggers[s] = logger
	return logger
}

// Close releases every open log file handle.
func (r *Registry) Close() error {
	var first error
	for _, f := range r.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
