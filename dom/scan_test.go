package dom

import "testing"

var taskSel = MustParseSelector(`[data-testid="task-instance"]`)

func keys(nodes []Node) map[any]int {
	m := make(map[any]int)
	for _, n := range nodes {
		m[n.Key()]++
	}
	return m
}

func TestScan_CrossesShadowRoots(t *testing.T) {
	top := task("c-1")
	inShadow := task("c-2")
	deep := task("c-3")

	body := elem("body", nil,
		elem("main", nil, top),
		shadowHost("grid-view", nil,
			elem("div", nil, inShadow),
			shadowHost("grid-row", nil, deep),
		),
	)

	got := keys(Scan([]Node{body}, taskSel))
	if len(got) != 3 {
		t.Fatalf("got %d matches, want 3", len(got))
	}
	for _, want := range []*el{top, inShadow, deep} {
		if got[want] != 1 {
			t.Errorf("%s: seen %d times, want 1", want.attrs["class"], got[want])
		}
	}
}

func TestScan_OverlappingRootsDeduplicated(t *testing.T) {
	a, b := task("c-1"), task("c-2")
	root := elem("div", map[string]string{"id": "root"}, a)
	body := elem("body", nil, root, b)

	for _, roots := range [][]Node{{root, body}, {body, root}, {body, body}} {
		got := keys(Scan(roots, taskSel))
		if len(got) != 2 || got[a] != 1 || got[b] != 1 {
			t.Errorf("roots %v: got %v", roots, got)
		}
	}
}

func TestScan_ShadowHostItselfMatches(t *testing.T) {
	host := shadowHost("div", map[string]string{"data-testid": "task-instance"}, task("c-inner"))
	if got := len(Scan([]Node{host}, taskSel)); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestScan_Empty(t *testing.T) {
	if got := Scan(nil, taskSel); len(got) != 0 {
		t.Errorf("nil roots: got %d", len(got))
	}
	body := elem("body", nil, elem("div", nil))
	if got := Scan([]Node{body, nil}, taskSel); len(got) != 0 {
		t.Errorf("no matches: got %d", len(got))
	}
}
