package htmldoc

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/glyphwatch/dom"
)

// node is the dom.Node view of an html element. Reads take the document
// read lock so scans can run while the tree is mutated.
type node struct {
	d *Document
	n *html.Node
}

func (e *node) Key() any { return e.n }

func (e *node) Tag() string { return e.n.Data }

func (e *node) Attr(name string) (string, bool) {
	e.d.mu.RLock()
	defer e.d.mu.RUnlock()
	for _, a := range e.n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (e *node) Children() []dom.Node {
	e.d.mu.RLock()
	defer e.d.mu.RUnlock()
	var out []dom.Node
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !isShadowTemplate(c) {
			out = append(out, e.d.Wrap(c))
		}
	}
	return out
}

func (e *node) ShadowRoots() []dom.Node {
	e.d.mu.RLock()
	defer e.d.mu.RUnlock()
	var out []dom.Node
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if isShadowTemplate(c) {
			out = append(out, e.d.Wrap(c))
		}
	}
	return out
}

// bare is a lock-free view used while the document lock is already held.
type bare struct{ n *html.Node }

func (b bare) Key() any    { return b.n }
func (b bare) Tag() string { return b.n.Data }

func (b bare) Attr(name string) (string, bool) {
	for _, a := range b.n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (b bare) Children() []dom.Node    { return nil }
func (b bare) ShadowRoots() []dom.Node { return nil }
