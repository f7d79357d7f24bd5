package glyphwatch

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/hazyhaar/glyphwatch/glyphwatch/internal/config"
)

// Config is the top-level glyphwatch configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls how Chrome is reached.
type BrowserConfig = config.BrowserConfig

// OverlayConfig tunes scanning and painting.
type OverlayConfig = config.OverlayConfig

// TargetConfig is a page to overlay.
type TargetConfig = config.TargetConfig

// DebugAPIConfig controls the debug HTTP listener.
type DebugAPIConfig = config.DebugAPIConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with defaults and no targets.
func DefaultConfig() *Config {
	return config.Default()
}

// OpenTargetsDB opens a SQLite targets database, creating the table.
func OpenTargetsDB(path string) (*sql.DB, error) {
	return config.OpenDB(path)
}

// LoadTargets reads the active targets from a targets database.
func LoadTargets(ctx context.Context, db *sql.DB) ([]TargetConfig, error) {
	return config.LoadTargets(ctx, db)
}

// WatchTargets polls a targets database until ctx ends and calls apply
// with the active targets after each settled change.
func WatchTargets(ctx context.Context, db *sql.DB, logger *slog.Logger, apply func([]TargetConfig)) {
	config.NewTargetWatcher(db, config.WatchOptions{Logger: logger}).Run(ctx, apply)
}
