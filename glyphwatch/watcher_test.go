package glyphwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/glyphwatch/dom"
	"github.com/hazyhaar/glyphwatch/dom/htmldoc"
	"github.com/hazyhaar/glyphwatch/glyph"
	"github.com/hazyhaar/glyphwatch/overlay"
	"github.com/hazyhaar/glyphwatch/reactor"
)

type idleSource struct{}

func (idleSource) Ready(context.Context) error { return nil }

func (idleSource) Subscribe(context.Context, func(reactor.Signal)) (func(), error) {
	return func() {}, nil
}

// readyOnce fails Ready the first time, as when a navigation destroys the
// execution context while the session waits for the document.
type readyOnce struct {
	fail bool
}

func (s readyOnce) Ready(context.Context) error {
	if s.fail {
		return errors.New("execution context was destroyed")
	}
	return nil
}

func (readyOnce) Subscribe(context.Context, func(reactor.Signal)) (func(), error) {
	return func() {}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func page(color string) string {
	return `<html><head><style>.c-a { background-color: ` + color + `; }</style></head>
<body><div id="root"><div data-testid="task-instance" class="c-a">x</div></div></body></html>`
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_BadSelector(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Overlay.TargetSelector = "div > span"
	if _, err := New(cfg, WithLogger(discard())); err == nil {
		t.Fatal("expected selector error")
	}
}

func TestRunPage_SessionPerPageLoad(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := overlay.NewMetrics(reg)
	w, err := New(DefaultConfig(), WithLogger(discard()), WithMetrics(metrics))
	if err != nil {
		t.Fatal(err)
	}

	// Each load renders the same class in a different colour.
	colors := []string{"green", "red"}
	var mu sync.Mutex
	loads := 0
	mk := func() (dom.Document, reactor.Source, *reactor.NavHub) {
		mu.Lock()
		c := colors[loads%len(colors)]
		loads++
		mu.Unlock()
		doc, err := htmldoc.ParseString(page(c))
		if err != nil {
			t.Error(err)
		}
		return doc, idleSource{}, reactor.NewNavHub()
	}

	ctx, cancel := context.WithCancel(context.Background())
	reloads := make(chan string, 1)
	run, rctx, ok := w.addRun(ctx, "grid", TargetConfig{ID: "grid"}, nil)
	if !ok {
		t.Fatal("addRun failed")
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.runPage(rctx, run, "grid", "http://localhost:8080/dags", mk, reloads)
	}()

	stateOf := func() (string, glyph.Kind, bool) {
		s := w.Session("grid")
		if s == nil {
			return "", 0, false
		}
		st, ok := s.Store.Peek("c-a")
		return s.ID, st.Kind, ok
	}

	waitFor(t, "first session", func() bool {
		_, k, ok := stateOf()
		return ok && k == glyph.Success
	})
	firstID, _, _ := stateOf()

	reloads <- "frame_navigated"
	waitFor(t, "second session", func() bool {
		id, k, ok := stateOf()
		return ok && id != firstID && k == glyph.Failed
	})

	stores := w.Stores()
	if len(stores) != 1 || stores["grid"].Len() != 1 {
		t.Errorf("Stores: got %v", stores)
	}
	if got := counterValue(t, reg, "glyphwatch_classes_learned_total"); got != 2 {
		t.Errorf("classes learned: got %v, want 2", got)
	}

	cancel()
	<-done
	if w.Session("grid") != nil {
		t.Error("session should be cleared after stop")
	}
	if len(w.Stores()) != 0 {
		t.Error("Stores should be empty after stop")
	}
}

func TestRunPage_RetriesFailedStart(t *testing.T) {
	w, err := New(DefaultConfig(), WithLogger(discard()))
	if err != nil {
		t.Fatal(err)
	}
	w.startRetry = time.Millisecond

	var mu sync.Mutex
	loads := 0
	mk := func() (dom.Document, reactor.Source, *reactor.NavHub) {
		mu.Lock()
		first := loads == 0
		loads++
		mu.Unlock()
		doc, err := htmldoc.ParseString(page("green"))
		if err != nil {
			t.Error(err)
		}
		return doc, readyOnce{fail: first}, reactor.NewNavHub()
	}

	ctx, cancel := context.WithCancel(context.Background())
	run, rctx, ok := w.addRun(ctx, "grid", TargetConfig{ID: "grid"}, nil)
	if !ok {
		t.Fatal("addRun failed")
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		// No reload ever arrives: only the retry can bring the page up.
		w.runPage(rctx, run, "grid", "http://localhost:8080/dags", mk, make(chan string))
	}()

	waitFor(t, "overlay after failed start", func() bool {
		s := w.Session("grid")
		if s == nil {
			return false
		}
		st, ok := s.Store.Peek("c-a")
		return ok && st.Kind == glyph.Success
	})

	mu.Lock()
	n := loads
	mu.Unlock()
	if n != 2 {
		t.Errorf("page loads: got %d, want 2", n)
	}

	cancel()
	<-done
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

// startIdlePage registers a page whose sessions run over a static document.
func startIdlePage(t *testing.T, w *Watcher, ctx context.Context, target TargetConfig, pageID string) {
	t.Helper()
	run, rctx, ok := w.addRun(ctx, pageID, target, nil)
	if !ok {
		t.Fatalf("addRun(%s) failed", pageID)
	}
	mk := func() (dom.Document, reactor.Source, *reactor.NavHub) {
		doc, _ := htmldoc.ParseString(page("green"))
		return doc, idleSource{}, nil
	}
	go func() {
		defer close(run.done)
		w.runPage(rctx, run, pageID, target.URL, mk, make(chan string))
	}()
}

func TestSyncTargets(t *testing.T) {
	w, err := New(DefaultConfig(), WithLogger(discard()))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keep := TargetConfig{ID: "keep", URL: "http://a/dags"}
	moved := TargetConfig{ID: "moved", URL: "http://b/dags"}
	gone := TargetConfig{ID: "gone", Match: []string{"*gone*"}}
	startIdlePage(t, w, ctx, keep, "keep")
	startIdlePage(t, w, ctx, moved, "moved")
	startIdlePage(t, w, ctx, gone, "gone")
	startIdlePage(t, w, ctx, gone, "gone-2")

	if _, _, ok := w.addRun(ctx, "keep", keep, nil); ok {
		t.Fatal("duplicate page id accepted")
	}

	waitFor(t, "sessions", func() bool { return len(w.Stores()) == 4 })

	// No browser is running, so re-watching "moved" fails and is only logged.
	w.SyncTargets(ctx, []TargetConfig{keep, {ID: "moved", URL: "http://c/dags"}})

	if w.Session("keep") == nil {
		t.Error("unchanged target was stopped")
	}
	for _, id := range []string{"moved", "gone", "gone-2"} {
		if w.Session(id) != nil {
			t.Errorf("page %s still watched", id)
		}
	}
	if n := len(w.Stores()); n != 1 {
		t.Errorf("Stores: got %d pages, want 1", n)
	}
}

func TestSameTarget(t *testing.T) {
	a := TargetConfig{ID: "a", URL: "u", Match: []string{"x", "y"}}
	b := a
	b.Match = []string{"x", "y"}
	if !sameTarget(a, b) {
		t.Error("equal targets reported different")
	}
	b.Match = []string{"y", "x"}
	if sameTarget(a, b) {
		t.Error("match order change not detected")
	}
}
