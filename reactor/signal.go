package reactor

import (
	"context"
	"sync"
)

// SignalKind classifies a change notification from the page.
type SignalKind int

const (
	// SignalInsert: nodes were inserted somewhere in the document.
	SignalInsert SignalKind = iota
	// SignalAttr: an attribute changed; Signal.Attr names it.
	SignalAttr
	// SignalLoad: the page load event fired.
	SignalLoad
	// SignalURLChange: the host dispatched its urlchange event.
	SignalURLChange
	// SignalNavigate: a client-side route change (pushState, replaceState).
	SignalNavigate
	// SignalPopState: history traversal.
	SignalPopState
)

func (k SignalKind) String() string {
	switch k {
	case SignalInsert:
		return "insert"
	case SignalAttr:
		return "attr"
	case SignalLoad:
		return "load"
	case SignalURLChange:
		return "urlchange"
	case SignalNavigate:
		return "navigate"
	case SignalPopState:
		return "popstate"
	default:
		return "unknown"
	}
}

// Signal is one change notification.
type Signal struct {
	Kind SignalKind
	Attr string
	URL  string
}

// Source is the page side of the reactor: readiness and change
// notifications.
type Source interface {
	// Ready blocks until the document finished its initial load.
	Ready(ctx context.Context) error
	// Subscribe delivers signals to fn until stop is called or ctx ends.
	// fn may be called from any goroutine.
	Subscribe(ctx context.Context, fn func(Signal)) (stop func(), err error)
}

// NavEvent describes a client-side navigation.
type NavEvent struct {
	URL string
	// Replace is true for replaceState-style navigations.
	Replace bool
}

// NavHub fans client-side navigations out to registered observers. Sources
// feed it from the platform's native navigation events through Dispatch,
// the single entry point, instead of wrapping the page's history functions.
type NavHub struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(NavEvent)
}

// NewNavHub creates an empty hub.
func NewNavHub() *NavHub {
	return &NavHub{subs: make(map[int]func(NavEvent))}
}

// OnNavigate registers fn and returns a function removing it.
func (h *NavHub) OnNavigate(fn func(NavEvent)) (cancel func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Dispatch calls every registered observer with ev.
func (h *NavHub) Dispatch(ev NavEvent) {
	h.mu.RLock()
	fns := make([]func(NavEvent), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Len returns the number of registered observers.
func (h *NavHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
