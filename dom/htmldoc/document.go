// Package htmldoc is the offline dom backend over golang.org/x/net/html.
// Shadow roots are declarative: a <template shadowrootmode="open"> child
// of an element is that element's shadow root. Computed background is
// approximated from inline style and <style> rules in scope.
package htmldoc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/glyphwatch/dom"
)

var (
	// ErrForeignNode is returned when a node from another backend or
	// document is passed in.
	ErrForeignNode = errors.New("htmldoc: node does not belong to this document")
	// ErrDetached is returned by Paint when the node left the document.
	ErrDetached = errors.New("htmldoc: node detached")
)

// Document is a parsed HTML document safe for concurrent use.
type Document struct {
	mu   sync.RWMutex
	root *html.Node
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.root)
}

// String renders the document, for tests and logs.
func (d *Document) String() string {
	var b strings.Builder
	_ = d.Render(&b)
	return b.String()
}

// Mutate runs fn with exclusive access to the tree, the way the host
// application re-renders between scans.
func (d *Document) Mutate(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// Wrap returns the dom view of an element of this document.
func (d *Document) Wrap(n *html.Node) dom.Node {
	return &node{d: d, n: n}
}

// Unwrap returns the underlying html node.
func (d *Document) Unwrap(n dom.Node) (*html.Node, bool) {
	hn, ok := n.(*node)
	if !ok || hn.d != d {
		return nil, false
	}
	return hn.n, true
}

// Body returns the body element.
func (d *Document) Body() dom.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if b := findAtom(d.root, atom.Body); b != nil {
		return d.Wrap(b)
	}
	return d.Wrap(d.root)
}

// Roots returns the light-tree elements matching rootSel followed by body.
func (d *Document) Roots(_ context.Context, rootSel dom.Selector) ([]dom.Node, error) {
	body := d.Body()

	d.mu.RLock()
	defer d.mu.RUnlock()

	var roots []dom.Node
	if !rootSel.IsZero() {
		var walk func(*html.Node)
		walk = func(n *html.Node) {
			if n.Type == html.ElementNode && n.DataAtom != atom.Template {
				if rootSel.Match(bare{n}) {
					roots = append(roots, d.Wrap(n))
				}
			}
			if n.DataAtom == atom.Template {
				return
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(d.root)
	}
	return append(roots, body), nil
}

// Connected reports whether n is still reachable from the document root.
func (d *Document) Connected(_ context.Context, n dom.Node) bool {
	hn, ok := d.Unwrap(n)
	if !ok {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connectedLocked(hn)
}

func (d *Document) connectedLocked(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// BackgroundColor returns the inline background of n, else the background
// of the last <style> rule in scope matching n, else "".
func (d *Document) BackgroundColor(_ context.Context, n dom.Node) (string, error) {
	hn, ok := d.Unwrap(n)
	if !ok {
		return "", ErrForeignNode
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if v := backgroundOf(parseDeclarations(attr(hn, "style"))); v != "" {
		return v, nil
	}

	color := ""
	for _, style := range d.stylesInScope(hn) {
		for _, r := range parseStylesheet(textOf(style)) {
			if !r.sel.Match(bare{hn}) {
				continue
			}
			if v := backgroundOf(r.decls); v != "" {
				color = v
			}
		}
	}
	return color, nil
}

// Paint forces a neutral background on n and replaces its light-tree
// content with the indicator. Shadow roots are left in place.
func (d *Document) Paint(_ context.Context, n dom.Node, ind dom.Indicator) error {
	hn, ok := d.Unwrap(n)
	if !ok {
		return ErrForeignNode
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connectedLocked(hn) {
		return ErrDetached
	}

	setAttr(hn, "style", neutralStyle(attr(hn, "style")))

	for c := hn.FirstChild; c != nil; {
		next := c.NextSibling
		if !isShadowTemplate(c) {
			hn.RemoveChild(c)
		}
		c = next
	}
	hn.AppendChild(indicatorNode(ind))
	return nil
}

// stylesInScope returns the <style> elements of the shadow root enclosing
// n, or of the light document when n is not in a shadow root.
func (d *Document) stylesInScope(n *html.Node) []*html.Node {
	scope := d.root
	for p := n.Parent; p != nil; p = p.Parent {
		if isShadowTemplate(p) {
			scope = p
			break
		}
	}

	var out []*html.Node
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c != scope && isShadowTemplate(c) {
			return
		}
		if c.Type == html.ElementNode && c.DataAtom == atom.Style {
			out = append(out, c)
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(scope)
	return out
}

func neutralStyle(existing string) string {
	var kept []string
	for _, decl := range parseDeclarations(existing) {
		if strings.HasPrefix(decl.prop, "background") {
			continue
		}
		kept = append(kept, decl.prop+": "+decl.value)
	}
	kept = append(kept, "background: none !important")
	return strings.Join(kept, "; ")
}

func indicatorNode(ind dom.Indicator) *html.Node {
	container := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "style", Val: ind.Style},
			{Key: "role", Val: "img"},
			{Key: "aria-label", Val: ind.Label},
			{Key: "title", Val: ind.Label},
		},
	}
	symbol := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "class", Val: ind.SymbolClass}},
	}
	symbol.AppendChild(&html.Node{Type: html.TextNode, Data: ind.Symbol})
	container.AppendChild(symbol)
	return container
}

func isShadowTemplate(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.Template {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "shadowrootmode" || a.Key == "shadowroot" {
			return true
		}
	}
	return false
}

func findAtom(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findAtom(c, a); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
