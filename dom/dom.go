// Package dom is the document model the overlay works against. Backends
// (offline HTML, live CDP) implement Node and Document; Scan walks any of
// them, including nested shadow roots.
package dom

import (
	"context"
	"strings"
)

// Node is a read-only view of an element.
type Node interface {
	// Key identifies the element within its document. Keys are comparable
	// and equal for two views of the same element.
	Key() any
	// Tag is the lower-case element name.
	Tag() string
	Attr(name string) (string, bool)
	// Children returns the element children in the light tree.
	Children() []Node
	// ShadowRoots returns the roots of subtrees hosted by this element.
	// A shadow root is itself a Node whose children are the shadow content.
	ShadowRoots() []Node
}

// Document is the mutable side of a backend.
type Document interface {
	// Roots returns the elements matching rootSel plus the body.
	Roots(ctx context.Context, rootSel Selector) ([]Node, error)
	// Connected reports whether n is still attached to the live document.
	Connected(ctx context.Context, n Node) bool
	// BackgroundColor returns the computed background colour of n.
	BackgroundColor(ctx context.Context, n Node) (string, error)
	// Paint neutralises the background of n and replaces its content with ind.
	Paint(ctx context.Context, n Node, ind Indicator) error
}

// Indicator is the presentational node that replaces an element's content.
type Indicator struct {
	Symbol string
	// Label is exposed as accessible text, not rendered.
	Label string
	// Style is the cssText of the container.
	Style string
	// SymbolClass is the class of the inner element holding Symbol.
	SymbolClass string
}

// ClassIdentifier returns the first class token of n starting with prefix.
func ClassIdentifier(n Node, prefix string) (string, bool) {
	v, ok := n.Attr("class")
	if !ok {
		return "", false
	}
	for _, c := range strings.Fields(v) {
		if strings.HasPrefix(c, prefix) {
			return c, true
		}
	}
	return "", false
}

// HasClass reports whether n carries class c.
func HasClass(n Node, c string) bool {
	v, _ := n.Attr("class")
	for _, f := range strings.Fields(v) {
		if f == c {
			return true
		}
	}
	return false
}
