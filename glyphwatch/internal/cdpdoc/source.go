package cdpdoc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/glyphwatch/reactor"
)

// bindingName is the Runtime binding the page-side listener reports on.
const bindingName = "__glyphwatch_signal"

// listenerJS forwards urlchange and popstate to the binding. It installs
// once per document.
const listenerJS = `() => {
	if (window.__glyphwatch_listening) return;
	window.__glyphwatch_listening = true;
	const send = (kind) => window.` + bindingName + `(JSON.stringify({kind, url: location.href}));
	window.addEventListener('urlchange', () => send('urlchange'));
	window.addEventListener('popstate', () => send('popstate'));
}`

// readyJS resolves once the document has left the loading state.
const readyJS = `() => new Promise((resolve) => {
	if (document.readyState !== 'loading') return resolve(true);
	document.addEventListener('DOMContentLoaded', () => resolve(true), {once: true});
})`

// Source feeds reactor signals from CDP events on one page.
type Source struct {
	page   *rod.Page
	nav    *reactor.NavHub
	logger *slog.Logger
}

// NewSource creates a Source. Same-document navigations are dispatched on
// nav; a nil nav drops them.
func NewSource(page *rod.Page, nav *reactor.NavHub, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{page: page, nav: nav, logger: logger}
}

// Ready waits for the document to finish its initial parse, then enables
// DOM tracking over the full tree so mutation events reach deep nodes.
func (s *Source) Ready(ctx context.Context) error {
	page := s.page.Context(ctx)
	if _, err := page.Eval(readyJS); err != nil {
		return fmt.Errorf("cdpdoc: wait ready: %w", err)
	}
	if err := (proto.DOMEnable{}).Call(page); err != nil {
		return fmt.Errorf("cdpdoc: DOM.enable: %w", err)
	}
	depth := -1
	if _, err := (proto.DOMGetDocument{Depth: &depth, Pierce: true}).Call(page); err != nil {
		return fmt.Errorf("cdpdoc: DOM.getDocument: %w", err)
	}
	return nil
}

// Subscribe delivers signals to fn until stop is called or ctx ends.
func (s *Source) Subscribe(ctx context.Context, fn func(reactor.Signal)) (func(), error) {
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(s.page); err != nil {
		s.logger.Warn("cdpdoc: addBinding failed (may already exist)", "error", err)
	}
	if _, err := s.page.Context(ctx).Eval(listenerJS); err != nil {
		return nil, fmt.Errorf("cdpdoc: inject listener: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	mainFrame := s.page.FrameID

	wait := s.page.Context(ctx).EachEvent(
		func(e *proto.DOMChildNodeInserted) {
			fn(reactor.Signal{Kind: reactor.SignalInsert})
		},
		func(e *proto.DOMSetChildNodes) {
			fn(reactor.Signal{Kind: reactor.SignalInsert})
		},
		func(e *proto.DOMShadowRootPushed) {
			fn(reactor.Signal{Kind: reactor.SignalInsert})
		},
		func(e *proto.DOMAttributeModified) {
			fn(reactor.Signal{Kind: reactor.SignalAttr, Attr: e.Name})
		},
		func(e *proto.DOMAttributeRemoved) {
			fn(reactor.Signal{Kind: reactor.SignalAttr, Attr: e.Name})
		},
		func(e *proto.PageLoadEventFired) {
			fn(reactor.Signal{Kind: reactor.SignalLoad})
		},
		func(e *proto.PageNavigatedWithinDocument) {
			if mainFrame != "" && e.FrameID != mainFrame {
				return
			}
			if s.nav != nil {
				s.nav.Dispatch(reactor.NavEvent{URL: e.URL})
			}
		},
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != bindingName {
				return
			}
			sig, ok := parseBinding(e.Payload)
			if !ok {
				s.logger.Debug("cdpdoc: unrecognised binding payload", "payload", e.Payload)
				return
			}
			fn(sig)
		},
	)
	go wait()

	return cancel, nil
}

// parseBinding decodes a listener report.
func parseBinding(payload string) (reactor.Signal, bool) {
	var msg struct {
		Kind string `json:"kind"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return reactor.Signal{}, false
	}
	switch msg.Kind {
	case "urlchange":
		return reactor.Signal{Kind: reactor.SignalURLChange, URL: msg.URL}, true
	case "popstate":
		return reactor.Signal{Kind: reactor.SignalPopState, URL: msg.URL}, true
	}
	return reactor.Signal{}, false
}

// WatchReload calls fn whenever the page gets a new document: a
// cross-document navigation of the main frame or DOM.documentUpdated.
// It returns a stop function.
func WatchReload(ctx context.Context, page *rod.Page, fn func(reason string)) func() {
	ctx, cancel := context.WithCancel(ctx)
	wait := page.Context(ctx).EachEvent(
		func(e *proto.PageFrameNavigated) {
			if isMainFrame(e.Frame) {
				fn("frame_navigated")
			}
		},
		func(e *proto.DOMDocumentUpdated) {
			fn("document_updated")
		},
	)
	go wait()
	return cancel
}

func isMainFrame(f *proto.PageFrame) bool {
	return f != nil && f.ParentID == ""
}
