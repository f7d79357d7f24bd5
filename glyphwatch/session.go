package glyphwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/glyphwatch/classmap"
	"github.com/hazyhaar/glyphwatch/dom"
	"github.com/hazyhaar/glyphwatch/glyph"
	"github.com/hazyhaar/glyphwatch/overlay"
	"github.com/hazyhaar/glyphwatch/reactor"
)

// Session is the overlay state of one page load. A reload discards it;
// the next load starts with an empty class cache.
type Session struct {
	ID          string
	PageID      string
	URL         string
	Started     time.Time
	Store       *classmap.Store
	Coordinator *overlay.Coordinator
	Reactor     *reactor.Reactor

	cancel context.CancelFunc
	done   chan struct{}
}

// backend produces the document and change feed of a fresh page load.
type backend func() (dom.Document, reactor.Source, *reactor.NavHub)

// sessionOptions are the watcher-wide settings every session is built from.
type sessionOptions struct {
	overlay  OverlayConfig
	targetS  dom.Selector
	rootS    dom.Selector
	registry *glyph.Registry
	metrics  *overlay.Metrics
	logger   *slog.Logger
}

func newSessionOptions(cfg OverlayConfig, registry *glyph.Registry, metrics *overlay.Metrics, logger *slog.Logger) (sessionOptions, error) {
	targetS, err := dom.ParseSelector(cfg.TargetSelector)
	if err != nil {
		return sessionOptions{}, fmt.Errorf("glyphwatch: target selector: %w", err)
	}
	rootS, err := dom.ParseSelector(cfg.RootSelector)
	if err != nil {
		return sessionOptions{}, fmt.Errorf("glyphwatch: root selector: %w", err)
	}
	return sessionOptions{
		overlay:  cfg,
		targetS:  targetS,
		rootS:    rootS,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

func newSession(pageID, url string, mk backend, o sessionOptions) *Session {
	id := uuid.Must(uuid.NewV7()).String()
	logger := o.logger.With("page", pageID, "session", id)

	doc, src, nav := mk()

	storeOpts := []classmap.Option{
		classmap.WithLogger(logger),
		classmap.WithMaxEntries(o.overlay.MaxClasses),
	}
	if o.metrics != nil {
		storeOpts = append(storeOpts, classmap.WithOnLearn(func(string, glyph.State) {
			o.metrics.ClassLearned()
		}))
	}
	store := classmap.New(o.registry, storeOpts...)

	coord := overlay.New(overlay.Config{
		Document:         doc,
		Store:            store,
		TargetSelector:   o.targetS,
		RootSelector:     o.rootS,
		ClassPrefix:      o.overlay.ClassPrefix,
		ThrottleInterval: o.overlay.ThrottleInterval,
		RetryDelay:       o.overlay.RetryDelay,
		MaxRetries:       o.overlay.MaxRetries,
		Debug:            o.overlay.Debug,
		Logger:           logger,
		Metrics:          o.metrics,
	})

	r := reactor.New(reactor.Config{
		Source:       src,
		Scanner:      coord,
		Nav:          nav,
		Debug:        o.overlay.Debug,
		DumpInterval: o.overlay.DumpInterval,
		Logger:       logger,
	})

	return &Session{
		ID:          id,
		PageID:      pageID,
		URL:         url,
		Started:     time.Now(),
		Store:       store,
		Coordinator: coord,
		Reactor:     r,
	}
}

// start runs the reactor in the background. Start blocks until the
// document is ready, which may never happen if the page navigates away.
// A start that fails for any other reason than ctx ending is reported on
// failed, which must be buffered.
func (s *Session) start(ctx context.Context, logger *slog.Logger, failed chan<- error) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		err := s.Reactor.Start(ctx)
		if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		logger.Warn("glyphwatch: session start failed", "page", s.PageID, "session", s.ID, "error", err)
		select {
		case failed <- err:
		default:
		}
	}()
}

// stop tears the session down and waits for its scans.
func (s *Session) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.Reactor.Stop()
}
