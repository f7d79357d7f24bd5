// Package glyphwatch runs the colour-blind overlay on live browser pages.
// It owns the browser, attaches to or opens the configured pages, and
// keeps one overlay session per page load.
package glyphwatch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/glyphwatch/classmap"
	"github.com/hazyhaar/glyphwatch/dom"
	"github.com/hazyhaar/glyphwatch/glyph"
	"github.com/hazyhaar/glyphwatch/glyphwatch/internal/browser"
	"github.com/hazyhaar/glyphwatch/glyphwatch/internal/cdpdoc"
	"github.com/hazyhaar/glyphwatch/overlay"
	"github.com/hazyhaar/glyphwatch/reactor"
)

// DefaultStartRetryDelay is the wait before a page whose session failed to
// start gets a fresh one.
const DefaultStartRetryDelay = time.Second

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithMetrics records scan metrics for every session.
func WithMetrics(m *overlay.Metrics) Option {
	return func(w *Watcher) { w.metrics = m }
}

// WithRegistry replaces the default colour table.
func WithRegistry(r *glyph.Registry) Option {
	return func(w *Watcher) { w.registry = r }
}

// Watcher is the top-level orchestrator: browser, tabs and sessions.
type Watcher struct {
	cfg      *Config
	mgr      *browser.Manager
	registry *glyph.Registry
	metrics  *overlay.Metrics
	logger   *slog.Logger
	opts     sessionOptions
	// startRetry is the wait after a failed session start.
	startRetry time.Duration

	mu    sync.Mutex
	pages map[string]*pageRun
	wg    sync.WaitGroup
}

type pageRun struct {
	target  TargetConfig
	tab     *browser.Tab
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Watcher. Selectors are compiled here so a bad
// configuration fails before any browser is started.
func New(cfg *Config, opts ...Option) (*Watcher, error) {
	w := &Watcher{cfg: cfg, pages: make(map[string]*pageRun), startRetry: DefaultStartRetryDelay}
	for _, o := range opts {
		o(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.registry == nil {
		w.registry = glyph.DefaultRegistry()
	}

	so, err := newSessionOptions(cfg.Overlay, w.registry, w.metrics, w.logger)
	if err != nil {
		return nil, err
	}
	w.opts = so

	w.mgr = browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Headful:          cfg.Browser.Headful,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           w.logger,
	})
	return w, nil
}

// Start launches or connects the browser and begins overlaying all
// configured targets. A target that fails is logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("glyphwatch: start browser: %w", err)
	}

	for _, t := range w.cfg.Targets {
		if err := w.WatchTarget(ctx, t); err != nil {
			w.logger.Error("glyphwatch: failed to watch target",
				"id", t.ID, "url", t.URL, "error", err)
		}
	}
	return nil
}

// WatchTarget attaches to the open tabs matching the target, or opens its
// URL when none match.
func (w *Watcher) WatchTarget(ctx context.Context, t TargetConfig) error {
	var tabs []*browser.Tab
	if len(t.Match) > 0 {
		found, err := browser.AttachTabs(w.mgr, t.Match)
		if err != nil {
			return fmt.Errorf("glyphwatch: attach: %w", err)
		}
		tabs = found
	}
	if len(tabs) == 0 {
		if t.URL == "" {
			return fmt.Errorf("glyphwatch: target %q: no open tab matches %v", t.ID, t.Match)
		}
		tab, err := browser.OpenTab(ctx, w.mgr, t.URL, t.ID)
		if err != nil {
			return fmt.Errorf("glyphwatch: open tab: %w", err)
		}
		tabs = append(tabs, tab)
	}

	for i, tab := range tabs {
		id := t.ID
		if i > 0 {
			id = fmt.Sprintf("%s-%d", t.ID, i+1)
		}
		w.watchTab(ctx, id, t, tab)
	}
	return nil
}

func (w *Watcher) watchTab(ctx context.Context, pageID string, t TargetConfig, tab *browser.Tab) {
	page := tab.Page
	mk := func() (dom.Document, reactor.Source, *reactor.NavHub) {
		nav := reactor.NewNavHub()
		return cdpdoc.New(page), cdpdoc.NewSource(page, nav, w.logger), nav
	}

	run, ctx, ok := w.addRun(ctx, pageID, t, tab)
	if !ok {
		w.logger.Warn("glyphwatch: page already watched", "id", pageID)
		return
	}

	reloads := make(chan string, 1)
	stopReload := cdpdoc.WatchReload(ctx, page, func(reason string) {
		select {
		case reloads <- reason:
		default:
		}
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(run.done)
		defer stopReload()
		w.runPage(ctx, run, pageID, tab.PageURL, mk, reloads)
	}()

	w.logger.Info("glyphwatch: overlaying page", "id", pageID, "url", tab.PageURL, "owned", tab.Owned)
}

// addRun registers a page. It fails if the id is taken.
func (w *Watcher) addRun(ctx context.Context, pageID string, t TargetConfig, tab *browser.Tab) (*pageRun, context.Context, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pages[pageID]; ok {
		return nil, nil, false
	}
	ctx, cancel := context.WithCancel(ctx)
	run := &pageRun{target: t, tab: tab, cancel: cancel, done: make(chan struct{})}
	w.pages[pageID] = run
	return run, ctx, true
}

// runPage keeps one session alive per page load until ctx ends. A session
// that fails to start (the page navigated while it waited for the document)
// is replaced after startRetry, or at the next reload if that comes first.
func (w *Watcher) runPage(ctx context.Context, run *pageRun, pageID, url string, mk backend, reloads <-chan string) {
	failed := make(chan error, 1)
	for {
		sess := newSession(pageID, url, mk, w.opts)
		w.setSession(run, sess)
		sess.start(ctx, w.logger, failed)

		select {
		case <-ctx.Done():
			sess.stop()
			w.setSession(run, nil)
			return
		case reason := <-reloads:
			sess.stop()
			w.logger.Info("glyphwatch: page reloaded, rebuilding session",
				"id", pageID, "reason", reason, "old_session", sess.ID, "classes", sess.Store.Len())
		case <-failed:
			sess.stop()
			w.logger.Info("glyphwatch: retrying session start",
				"id", pageID, "old_session", sess.ID, "delay", w.startRetry)
			timer := time.NewTimer(w.startRetry)
			select {
			case <-ctx.Done():
				timer.Stop()
				w.setSession(run, nil)
				return
			case <-timer.C:
			case <-reloads:
				timer.Stop()
			}
		}
		// A navigation reports several reload events; one rebuild covers them.
	drain:
		for {
			select {
			case <-reloads:
			case <-failed:
			default:
				break drain
			}
		}
	}
}

func (w *Watcher) setSession(run *pageRun, s *Session) {
	w.mu.Lock()
	run.session = s
	w.mu.Unlock()
}

// stopPage ends a page's sessions and closes its tab if glyphwatch
// opened it.
func (w *Watcher) stopPage(pageID string) {
	w.mu.Lock()
	run, ok := w.pages[pageID]
	delete(w.pages, pageID)
	w.mu.Unlock()
	if !ok {
		return
	}

	run.cancel()
	<-run.done
	if run.tab != nil {
		if err := run.tab.Close(); err != nil {
			w.logger.Warn("glyphwatch: close tab", "id", pageID, "error", err)
		}
	}
	w.logger.Info("glyphwatch: stopped page", "id", pageID)
}

// SyncTargets reconciles the watched pages with targets: pages of removed
// or changed targets are stopped, new and changed targets are watched.
func (w *Watcher) SyncTargets(ctx context.Context, targets []TargetConfig) {
	want := make(map[string]TargetConfig, len(targets))
	for _, t := range targets {
		want[t.ID] = t
	}

	w.mu.Lock()
	var stale []string
	have := make(map[string]bool)
	for id, run := range w.pages {
		t, ok := want[run.target.ID]
		if !ok || !sameTarget(t, run.target) {
			stale = append(stale, id)
			continue
		}
		have[t.ID] = true
	}
	w.mu.Unlock()

	for _, id := range stale {
		w.stopPage(id)
	}
	for _, t := range targets {
		if have[t.ID] {
			continue
		}
		if err := w.WatchTarget(ctx, t); err != nil {
			w.logger.Error("glyphwatch: failed to watch target", "id", t.ID, "url", t.URL, "error", err)
		}
	}
}

func sameTarget(a, b TargetConfig) bool {
	return a.ID == b.ID && a.URL == b.URL && slices.Equal(a.Match, b.Match)
}

// Session returns the current session of a page, or nil.
func (w *Watcher) Session(pageID string) *Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	if run, ok := w.pages[pageID]; ok {
		return run.session
	}
	return nil
}

// Stores returns the class cache of each page's current session.
func (w *Watcher) Stores() map[string]*classmap.Store {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]*classmap.Store, len(w.pages))
	for id, run := range w.pages {
		if run.session != nil {
			out[id] = run.session.Store
		}
	}
	return out
}

// Registry returns the colour table sessions resolve against.
func (w *Watcher) Registry() *glyph.Registry { return w.registry }

// Browser returns the rod browser, nil before Start.
func (w *Watcher) Browser() *rod.Browser { return w.mgr.Browser() }

// Stop stops every session, closes the tabs glyphwatch opened and
// disconnects from the browser.
func (w *Watcher) Stop() {
	w.mu.Lock()
	ids := make([]string, 0, len(w.pages))
	for id := range w.pages {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		w.stopPage(id)
	}
	w.wg.Wait()

	if err := w.mgr.Close(); err != nil {
		w.logger.Warn("glyphwatch: close browser", "error", err)
	}
	w.logger.Info("glyphwatch: stopped")
}
