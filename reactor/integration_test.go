package reactor_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/glyphwatch/classmap"
	"github.com/hazyhaar/glyphwatch/dom/htmldoc"
	"github.com/hazyhaar/glyphwatch/glyph"
	"github.com/hazyhaar/glyphwatch/overlay"
	"github.com/hazyhaar/glyphwatch/reactor"
)

// mutatingSource emits an insert signal after every Mutate call, the way a
// MutationObserver would.
type mutatingSource struct {
	doc *htmldoc.Document
	mu  sync.Mutex
	fn  func(reactor.Signal)
}

func (s *mutatingSource) Ready(context.Context) error { return nil }

func (s *mutatingSource) Subscribe(_ context.Context, fn func(reactor.Signal)) (func(), error) {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.fn = nil
		s.mu.Unlock()
	}, nil
}

func (s *mutatingSource) mutate(f func(root *html.Node)) {
	s.doc.Mutate(f)
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(reactor.Signal{Kind: reactor.SignalInsert})
	}
}

func TestReactor_RepaintsRerenderedWidgets(t *testing.T) {
	doc, err := htmldoc.ParseString(`<html><body><div id="root">
		<div data-testid="task-instance" class="c-a1b2" style="background-color: rgb(0, 128, 0)"></div>
	</div></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	src := &mutatingSource{doc: doc}
	coord := overlay.New(overlay.Config{
		Document:         doc,
		Store:            classmap.New(glyph.DefaultRegistry()),
		ThrottleInterval: time.Millisecond,
		RetryDelay:       time.Millisecond,
	})
	r := reactor.New(reactor.Config{Source: src, Scanner: coord})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	waitFor(t, func() bool { return strings.Contains(doc.String(), "✓") })

	// The host re-renders: a fresh widget with a new generated class appears.
	time.Sleep(5 * time.Millisecond)
	src.mutate(func(root *html.Node) {
		body := find(root, atom.Body)
		body.AppendChild(widget("c-ffee", "rgb(255, 0, 0)"))
	})

	waitFor(t, func() bool { return strings.Contains(doc.String(), "❌") })
	if coord.Store().Len() != 2 {
		t.Errorf("store: got %d classes, want 2", coord.Store().Len())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func widget(class, bg string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "data-testid", Val: "task-instance"},
			{Key: "class", Val: class},
			{Key: "style", Val: "background-color: " + bg},
		},
	}
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, a); f != nil {
			return f
		}
	}
	return nil
}
