package cdpdoc

import (
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/glyphwatch/dom"
)

// node is a view over one entry of a DOM.getDocument tree. Its identity
// is the backend node id, stable across getDocument calls.
type node struct {
	n *proto.DOMNode
}

func (e *node) Key() any { return e.n.BackendNodeID }

func (e *node) Tag() string { return strings.ToLower(e.n.LocalName) }

// Attr reads the flat name/value pair list CDP reports.
func (e *node) Attr(name string) (string, bool) {
	a := e.n.Attributes
	for i := 0; i+1 < len(a); i += 2 {
		if a[i] == name {
			return a[i+1], true
		}
	}
	return "", false
}

func (e *node) Children() []dom.Node {
	var out []dom.Node
	for _, c := range e.n.Children {
		if c.NodeType == elementNode {
			out = append(out, &node{n: c})
		}
	}
	return out
}

func (e *node) ShadowRoots() []dom.Node {
	var out []dom.Node
	for _, s := range e.n.ShadowRoots {
		if s.NodeType == fragmentNode {
			out = append(out, &node{n: s})
		}
	}
	return out
}
