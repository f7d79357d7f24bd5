package config

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"
)

// VersionFunc reads a change token from the database. Two calls returning
// different values mean the targets may have changed.
type VersionFunc func(ctx context.Context, db *sql.DB) (int64, error)

// DataVersion reads PRAGMA data_version, which moves when another
// connection commits to the database file.
func DataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// WatchOptions tunes a TargetWatcher.
type WatchOptions struct {
	// Interval is the polling period. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before targets are
	// reloaded. Default: 500ms.
	Debounce time.Duration
	// Version overrides DataVersion.
	Version VersionFunc
	Logger  *slog.Logger
}

func (o *WatchOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Debounce <= 0 {
		o.Debounce = 500 * time.Millisecond
	}
	if o.Version == nil {
		o.Version = DataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// TargetWatcher polls the targets database and hands the active targets to
// a callback after each settled change.
type TargetWatcher struct {
	db   *sql.DB
	opts WatchOptions

	version atomic.Int64
	reloads atomic.Int64
}

// NewTargetWatcher creates a TargetWatcher. Call Run to start polling.
func NewTargetWatcher(db *sql.DB, opts WatchOptions) *TargetWatcher {
	opts.defaults()
	return &TargetWatcher{db: db, opts: opts}
}

// Reloads is the number of successful reloads.
func (w *TargetWatcher) Reloads() int64 { return w.reloads.Load() }

// Run blocks until ctx ends. When the version token changes and stays put
// for the debounce window, the targets are reloaded and passed to apply.
// A failed load keeps the old version so the next poll retries.
func (w *TargetWatcher) Run(ctx context.Context, apply func([]TargetConfig)) {
	log := w.opts.Logger

	if v, err := w.opts.Version(ctx, w.db); err != nil {
		log.Warn("config: initial targets version failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case <-ticker.C:
			cur, err := w.opts.Version(ctx, w.db)
			if err != nil {
				log.Warn("config: targets version check failed", "error", err)
				continue
			}
			if cur == w.version.Load() || cur == pending {
				continue
			}
			pending = cur
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			debounceC = debounce.C
			log.Debug("config: targets changed, debouncing", "version", cur)

		case <-debounceC:
			debounceC = nil
			targets, err := LoadTargets(ctx, w.db)
			if err != nil {
				log.Error("config: reload targets failed", "error", err)
				pending = -1
				continue
			}
			w.version.Store(pending)
			pending = -1
			w.reloads.Add(1)
			log.Info("config: targets reloaded", "count", len(targets))
			apply(targets)
		}
	}
}
