package dom

import (
	"errors"
	"testing"
)

func TestParseSelector_Match(t *testing.T) {
	n := elem("div", map[string]string{
		"id":          "react-container",
		"class":       "box c-a1b2 wide",
		"data-testid": "task-instance",
	})

	tests := []struct {
		sel  string
		want bool
	}{
		{`[data-testid="task-instance"]`, true},
		{`[data-testid='task-instance']`, true},
		{`[data-testid=other]`, false},
		{`div[data-testid]`, true},
		{`span[data-testid]`, false},
		{`*`, true},
		{`#react-container`, true},
		{`#root`, false},
		{`[id*="react"]`, true},
		{`[id^="react"]`, true},
		{`[id$="container"]`, true},
		{`[class~="c-a1b2"]`, true},
		{`.box.wide`, true},
		{`.box.narrow`, false},
		{`DIV.box`, true},
		{`#root, #react-container, [id*="react"]`, true},
		{`#root, span`, false},
	}
	for _, tt := range tests {
		sel, err := ParseSelector(tt.sel)
		if err != nil {
			t.Errorf("ParseSelector(%q): %v", tt.sel, err)
			continue
		}
		if got := sel.Match(n); got != tt.want {
			t.Errorf("%q.Match = %v, want %v", tt.sel, got, tt.want)
		}
	}
}

func TestParseSelector_Unsupported(t *testing.T) {
	for _, sel := range []string{"", "div span", "div > span", "a,,b", "[x", "[]", "div:hover", "."} {
		_, err := ParseSelector(sel)
		if !errors.Is(err, ErrUnsupportedSelector) {
			t.Errorf("ParseSelector(%q): got %v, want ErrUnsupportedSelector", sel, err)
		}
	}
}

func TestParseSelector_CommaInsideQuotes(t *testing.T) {
	sel := MustParseSelector(`[title="a,b"]`)
	if !sel.Match(elem("p", map[string]string{"title": "a,b"})) {
		t.Error("quoted comma split the selector")
	}
}

func TestMustParseSelector_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("no panic")
		}
	}()
	MustParseSelector("div span")
}

func TestClassIdentifier(t *testing.T) {
	n := elem("div", map[string]string{"class": "box c-a1b2 c-ffff"})
	if got, ok := ClassIdentifier(n, "c-"); !ok || got != "c-a1b2" {
		t.Errorf("ClassIdentifier: got (%q, %v), want c-a1b2", got, ok)
	}
	if _, ok := ClassIdentifier(elem("div", map[string]string{"class": "box"}), "c-"); ok {
		t.Error("ClassIdentifier found a token without the prefix")
	}
	if _, ok := ClassIdentifier(elem("div", nil), "c-"); ok {
		t.Error("ClassIdentifier found a token with no class attribute")
	}
}
