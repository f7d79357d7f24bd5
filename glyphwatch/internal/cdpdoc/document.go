// Package cdpdoc is the live dom backend: a Chrome page driven over the
// DevTools protocol through rod.
package cdpdoc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/glyphwatch/dom"
)

// ErrDetached is returned by Paint when the element left the document.
var ErrDetached = errors.New("cdpdoc: element detached")

const (
	elementNode  = 1
	fragmentNode = 11
)

// Document implements dom.Document over a rod page.
type Document struct {
	page *rod.Page
}

// New wraps a page.
func New(page *rod.Page) *Document {
	return &Document{page: page}
}

// Roots fetches the whole tree, shadow roots included, and returns the
// light-tree elements matching rootSel followed by body.
func (d *Document) Roots(ctx context.Context, rootSel dom.Selector) ([]dom.Node, error) {
	depth := -1
	doc, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(d.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("cdpdoc: DOM.getDocument: %w", err)
	}
	return lightRoots(doc.Root, rootSel), nil
}

// Connected reports whether the element is still in its document.
func (d *Document) Connected(ctx context.Context, n dom.Node) bool {
	var connected bool
	err := d.withElement(ctx, n, func(el *rod.Element) error {
		res, err := el.Eval(`() => this.isConnected`)
		if err != nil {
			return err
		}
		connected = res.Value.Bool()
		return nil
	})
	return err == nil && connected
}

// BackgroundColor returns the computed background-color.
func (d *Document) BackgroundColor(ctx context.Context, n dom.Node) (string, error) {
	var color string
	err := d.withElement(ctx, n, func(el *rod.Element) error {
		res, err := el.Eval(`() => getComputedStyle(this).backgroundColor`)
		if err != nil {
			return err
		}
		color = res.Value.Str()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("cdpdoc: background color: %w", err)
	}
	return color, nil
}

// paintJS neutralises the fill and replaces the content with the
// indicator. An element already showing the same indicator is left alone
// so repaints do not feed the mutation stream.
const paintJS = `(symbol, label, style, cls) => {
	if (!this.isConnected) return false;
	const cur = this.firstElementChild;
	if (this.childNodes.length === 1 && cur && cur.getAttribute('role') === 'img' &&
		cur.getAttribute('aria-label') === label &&
		this.style.getPropertyPriority('background') === 'important') {
		return true;
	}
	this.style.setProperty('background', 'none', 'important');
	const box = document.createElement('div');
	box.setAttribute('style', style);
	box.setAttribute('role', 'img');
	box.setAttribute('aria-label', label);
	box.setAttribute('title', label);
	const sym = document.createElement('div');
	sym.className = cls;
	sym.textContent = symbol;
	box.appendChild(sym);
	this.replaceChildren(box);
	return true;
}`

// Paint applies the indicator to the element.
func (d *Document) Paint(ctx context.Context, n dom.Node, ind dom.Indicator) error {
	return d.withElement(ctx, n, func(el *rod.Element) error {
		res, err := el.Eval(paintJS, ind.Symbol, ind.Label, ind.Style, ind.SymbolClass)
		if err != nil {
			return fmt.Errorf("cdpdoc: paint: %w", err)
		}
		if !res.Value.Bool() {
			return ErrDetached
		}
		return nil
	})
}

// withElement resolves the backend node to a JS object for the duration
// of fn.
func (d *Document) withElement(ctx context.Context, n dom.Node, fn func(*rod.Element) error) error {
	cn, ok := n.(*node)
	if !ok {
		return fmt.Errorf("cdpdoc: foreign node %T", n)
	}
	page := d.page.Context(ctx)
	obj, err := proto.DOMResolveNode{BackendNodeID: cn.n.BackendNodeID}.Call(page)
	if err != nil {
		return fmt.Errorf("cdpdoc: DOM.resolveNode: %w", err)
	}
	el, err := page.ElementFromObject(obj.Object)
	if err != nil {
		return err
	}
	defer el.Release()
	return fn(el)
}

// lightRoots walks the light tree from the document node. Shadow roots
// and template contents are not entered: roots are page-level mounts.
func lightRoots(doc *proto.DOMNode, rootSel dom.Selector) []dom.Node {
	var roots []dom.Node
	var body *proto.DOMNode
	var walk func(*proto.DOMNode)
	walk = func(n *proto.DOMNode) {
		if n.NodeType == elementNode {
			if body == nil && strings.EqualFold(n.LocalName, "body") {
				body = n
			}
			w := &node{n: n}
			if !rootSel.IsZero() && rootSel.Match(w) {
				roots = append(roots, w)
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	if doc != nil {
		walk(doc)
	}
	if body != nil {
		roots = append(roots, &node{n: body})
	}
	return roots
}
