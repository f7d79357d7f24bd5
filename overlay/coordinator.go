package overlay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/glyphwatch/classmap"
	"github.com/hazyhaar/glyphwatch/dom"
)

// Defaults for Config.
const (
	DefaultTargetSelector   = `[data-testid="task-instance"]`
	DefaultRootSelector     = `#root, #react-container, [id*="react"]`
	DefaultThrottleInterval = time.Second
	DefaultRetryDelay       = 300 * time.Millisecond
)

// Config for a Coordinator.
type Config struct {
	Document dom.Document
	Store    *classmap.Store

	// TargetSelector identifies task widgets. Default: DefaultTargetSelector.
	TargetSelector dom.Selector
	// RootSelector bounds the walk to known application roots; body is
	// always added. Default: DefaultRootSelector.
	RootSelector dom.Selector
	// ClassPrefix marks the generated state class. Default: "c-".
	ClassPrefix string

	// ThrottleInterval is the minimum spacing of throttled scans. Default: 1s.
	ThrottleInterval time.Duration
	// RetryDelay is the wait before rescanning a document with no widgets
	// yet. Default: 300ms.
	RetryDelay time.Duration
	// MaxRetries bounds the empty-scan retries. Zero retries until the
	// context ends.
	MaxRetries int
	// Debug logs classes whose colour is outside the palette.
	Debug bool

	Logger  *slog.Logger
	Metrics *Metrics
	// Now is the throttle clock. Default: time.Now.
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.TargetSelector.IsZero() {
		c.TargetSelector = dom.MustParseSelector(DefaultTargetSelector)
	}
	if c.RootSelector.IsZero() {
		c.RootSelector = dom.MustParseSelector(DefaultRootSelector)
	}
	if c.ThrottleInterval <= 0 {
		c.ThrottleInterval = DefaultThrottleInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Coordinator scans a document for task widgets and applies the overlay.
type Coordinator struct {
	cfg     Config
	updater *Updater

	mu      sync.Mutex
	lastRun time.Time
	hasRun  bool

	// retrying is held by the one scan currently waiting for widgets to
	// mount, so throttled scans on an empty page do not pile up.
	retrying atomic.Bool
	inflight sync.WaitGroup
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	cfg.defaults()
	u := NewUpdater(cfg.Store, cfg.ClassPrefix, cfg.Logger, cfg.Metrics)
	u.debug = cfg.Debug
	return &Coordinator{cfg: cfg, updater: u}
}

// Store returns the class cache owned by this coordinator.
func (c *Coordinator) Store() *classmap.Store { return c.cfg.Store }

// ScanOnce collects the widgets under the roots and applies the overlay to
// each. While none are found (the host has not mounted them yet) it waits
// RetryDelay and scans again from scratch. It returns the number of widgets
// found; the error is non-nil only when ctx ends first.
func (c *Coordinator) ScanOnce(ctx context.Context) (int, error) {
	owner := false
	defer func() {
		if owner {
			c.retrying.Store(false)
		}
	}()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		start := time.Now()
		found := c.collect(ctx)
		if len(found) > 0 {
			c.cfg.Logger.Debug("overlay: found task instances", "count", len(found))
			for _, n := range found {
				if err := ctx.Err(); err != nil {
					return len(found), err
				}
				c.updater.Apply(ctx, c.cfg.Document, n)
			}
			c.cfg.Metrics.scanned(time.Since(start).Seconds())
			return len(found), nil
		}

		if c.cfg.MaxRetries > 0 && attempt >= c.cfg.MaxRetries {
			return 0, nil
		}
		if !owner {
			if !c.retrying.CompareAndSwap(false, true) {
				// Another scan is already waiting for the widgets.
				return 0, nil
			}
			owner = true
		}

		c.cfg.Logger.Debug("overlay: no task instances found, retrying", "delay", c.cfg.RetryDelay)
		c.cfg.Metrics.retried()

		timer := time.NewTimer(c.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Coordinator) collect(ctx context.Context) []dom.Node {
	roots, err := c.cfg.Document.Roots(ctx, c.cfg.RootSelector)
	if err != nil {
		c.cfg.Logger.Debug("overlay: collect roots failed", "error", err)
		return nil
	}
	return dom.Scan(roots, c.cfg.TargetSelector)
}

// ThrottledScan starts a ScanOnce in the background unless one was started
// less than ThrottleInterval ago, in which case the call is dropped. It
// reports whether a scan was started.
func (c *Coordinator) ThrottledScan(ctx context.Context) bool {
	c.mu.Lock()
	now := c.cfg.Now()
	if c.hasRun && now.Sub(c.lastRun) < c.cfg.ThrottleInterval {
		c.mu.Unlock()
		c.cfg.Metrics.throttled()
		return false
	}
	c.lastRun = now
	c.hasRun = true
	c.mu.Unlock()

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if _, err := c.ScanOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.cfg.Logger.Debug("overlay: throttled scan ended", "error", err)
		}
	}()
	return true
}

// Wait blocks until every scan started by ThrottledScan has returned.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}
