package dom

// Scan returns every element under roots matching sel, each once. The walk
// enters shadow roots: the host renders task widgets inside them and a walk
// of the light tree alone finds nothing. Roots may overlap (body contains
// the application root); subtrees already walked are skipped. Order is
// unspecified.
func Scan(roots []Node, sel Selector) []Node {
	visited := make(map[any]struct{})
	var found []Node

	var visit func(n Node)
	visit = func(n Node) {
		if n == nil {
			return
		}
		if _, done := visited[n.Key()]; done {
			return
		}
		visited[n.Key()] = struct{}{}

		if sel.Match(n) {
			found = append(found, n)
		}
		for _, sr := range n.ShadowRoots() {
			for _, c := range sr.Children() {
				visit(c)
			}
		}
		for _, c := range n.Children() {
			visit(c)
		}
	}

	for _, r := range roots {
		visit(r)
	}
	return found
}
