// Package reactor keeps the overlay applied while the host page mutates.
// It runs one unthrottled scan once the document is ready, then turns
// every relevant change notification into a throttled scan.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/glyphwatch/classmap"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("reactor: already started")

// DefaultDumpInterval is the period of the debug store dump.
const DefaultDumpInterval = 10 * time.Second

// Scanner is the overlay side of the reactor, implemented by
// *overlay.Coordinator.
type Scanner interface {
	ScanOnce(ctx context.Context) (int, error)
	ThrottledScan(ctx context.Context) bool
	Wait()
	Store() *classmap.Store
}

// Config for a Reactor.
type Config struct {
	Source  Source
	Scanner Scanner
	// Nav receives client-side navigations. Optional.
	Nav *NavHub
	// Debug enables the periodic store dump.
	Debug        bool
	DumpInterval time.Duration
	Logger       *slog.Logger
}

const (
	stateUninitialized int32 = iota
	stateObserving
)

// Reactor wires a Source to a Scanner.
type Reactor struct {
	cfg   Config
	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	stops  []func()
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates a Reactor in the uninitialised state.
func New(cfg Config) *Reactor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DumpInterval <= 0 {
		cfg.DumpInterval = DefaultDumpInterval
	}
	return &Reactor{cfg: cfg}
}

// Start waits for the document to be ready, runs the first scan and
// subscribes to changes. It returns once observing; scans run in the
// background until Stop or ctx cancellation.
func (r *Reactor) Start(ctx context.Context) error {
	if !r.state.CompareAndSwap(stateUninitialized, stateObserving) {
		return ErrAlreadyStarted
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	if err := r.cfg.Source.Ready(r.ctx); err != nil {
		r.cancel()
		return fmt.Errorf("reactor: wait ready: %w", err)
	}

	// First paint is not throttled.
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.cfg.Scanner.ScanOnce(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.cfg.Logger.Debug("reactor: initial scan ended", "error", err)
		}
	}()

	stop, err := r.cfg.Source.Subscribe(r.ctx, r.handle)
	if err != nil {
		r.cancel()
		r.wg.Wait()
		return fmt.Errorf("reactor: subscribe: %w", err)
	}
	r.stops = append(r.stops, stop)

	if r.cfg.Nav != nil {
		r.stops = append(r.stops, r.cfg.Nav.OnNavigate(func(ev NavEvent) {
			r.handle(Signal{Kind: SignalNavigate, URL: ev.URL})
		}))
	}

	if r.cfg.Debug {
		r.wg.Add(1)
		go r.dumpLoop()
	}

	r.cfg.Logger.Info("reactor: observing")
	return nil
}

// Observing reports whether Start succeeded in leaving the initial state.
func (r *Reactor) Observing() bool {
	return r.state.Load() == stateObserving
}

// handle filters a signal and triggers a throttled scan.
func (r *Reactor) handle(s Signal) {
	if s.Kind == SignalAttr && s.Attr != "style" && s.Attr != "class" {
		return
	}
	if r.ctx.Err() != nil {
		return
	}
	if r.cfg.Scanner.ThrottledScan(r.ctx) {
		r.cfg.Logger.Debug("reactor: scan triggered", "signal", s.Kind.String(), "attr", s.Attr, "url", s.URL)
	}
}

func (r *Reactor) dumpLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.DumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			store := r.cfg.Scanner.Store()
			r.cfg.Logger.Debug("reactor: class to state mappings",
				"count", store.Len(), "classmap", store)
		}
	}
}

// Stop ends the change subscription and waits for running scans. It is
// page teardown, not a return to the initial state.
func (r *Reactor) Stop() {
	r.once.Do(func() {
		if r.cancel == nil {
			return
		}
		for _, stop := range r.stops {
			stop()
		}
		r.cancel()
		r.wg.Wait()
		r.cfg.Scanner.Wait()
		r.cfg.Logger.Info("reactor: stopped")
	})
}
