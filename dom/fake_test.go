package dom

// el is a minimal in-memory Node for tests.
type el struct {
	tag      string
	attrs    map[string]string
	children []*el
	shadow   []*el
}

func (e *el) Key() any { return e }
func (e *el) Tag() string { return e.tag }

func (e *el) Attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *el) Children() []Node {
	out := make([]Node, len(e.children))
	for i, c := range e.children {
		out[i] = c
	}
	return out
}

func (e *el) ShadowRoots() []Node {
	out := make([]Node, len(e.shadow))
	for i, c := range e.shadow {
		out[i] = c
	}
	return out
}

func elem(tag string, attrs map[string]string, children ...*el) *el {
	return &el{tag: tag, attrs: attrs, children: children}
}

func shadowHost(tag string, attrs map[string]string, content ...*el) *el {
	e := elem(tag, attrs)
	e.shadow = []*el{elem("#shadow-root", nil, content...)}
	return e
}

func task(class string) *el {
	return elem("div", map[string]string{"data-testid": "task-instance", "class": class})
}
