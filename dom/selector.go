package dom

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedSelector is returned for selector syntax outside the
// supported subset.
var ErrUnsupportedSelector = errors.New("dom: unsupported selector")

// Selector is a compiled, comma-separated list of compound selectors.
// Supported per compound:
//   - tag, *
//   - #id
//   - .class (repeatable)
//   - [attr], [attr=val], [attr*=val], [attr^=val], [attr$=val], [attr~=val]
//
// Combinators are not supported: the scanner matches elements one at a time.
type Selector struct {
	src    string
	groups []compound
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
}

type attrMatch struct {
	key string
	op  string // "", "=", "*=", "^=", "$=", "~="
	val string
}

// ParseSelector compiles sel.
func ParseSelector(sel string) (Selector, error) {
	s := Selector{src: sel}
	for _, part := range splitGroups(sel) {
		part = strings.TrimSpace(part)
		if part == "" {
			return Selector{}, fmt.Errorf("%w: empty group in %q", ErrUnsupportedSelector, sel)
		}
		c, err := parseCompound(part)
		if err != nil {
			return Selector{}, err
		}
		s.groups = append(s.groups, c)
	}
	if len(s.groups) == 0 {
		return Selector{}, fmt.Errorf("%w: empty selector", ErrUnsupportedSelector)
	}
	return s, nil
}

// MustParseSelector is ParseSelector for constants.
func MustParseSelector(sel string) Selector {
	s, err := ParseSelector(sel)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the source text.
func (s Selector) String() string { return s.src }

// IsZero reports whether s was never compiled.
func (s Selector) IsZero() bool { return len(s.groups) == 0 }

// Match reports whether n matches any group.
func (s Selector) Match(n Node) bool {
	for _, c := range s.groups {
		if c.match(n) {
			return true
		}
	}
	return false
}

// splitGroups splits on commas outside brackets and quotes.
func splitGroups(sel string) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(sel); i++ {
		ch := sel[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[':
			depth++
		case ch == ']':
			depth--
		case ch == ',' && depth == 0:
			parts = append(parts, sel[start:i])
			start = i + 1
		}
	}
	return append(parts, sel[start:])
}

func parseCompound(sel string) (compound, error) {
	var c compound
	i := 0

	// Leading tag or universal selector.
	for i < len(sel) && isIdentByte(sel[i]) {
		i++
	}
	c.tag = strings.ToLower(sel[:i])
	if c.tag == "" && i < len(sel) && sel[i] == '*' {
		i++
	}

	for i < len(sel) {
		switch sel[i] {
		case '#', '.':
			kind := sel[i]
			j := i + 1
			for j < len(sel) && isIdentByte(sel[j]) {
				j++
			}
			if j == i+1 {
				return compound{}, fmt.Errorf("%w: %q", ErrUnsupportedSelector, sel)
			}
			if kind == '#' {
				c.id = sel[i+1 : j]
			} else {
				c.classes = append(c.classes, sel[i+1:j])
			}
			i = j
		case '[':
			end := closingBracket(sel, i)
			if end < 0 {
				return compound{}, fmt.Errorf("%w: unterminated attribute in %q", ErrUnsupportedSelector, sel)
			}
			am, err := parseAttr(sel[i+1 : end])
			if err != nil {
				return compound{}, err
			}
			c.attrs = append(c.attrs, am)
			i = end + 1
		default:
			return compound{}, fmt.Errorf("%w: %q (combinators are not supported)", ErrUnsupportedSelector, sel)
		}
	}
	return c, nil
}

func closingBracket(sel string, open int) int {
	var quote byte
	for i := open + 1; i < len(sel); i++ {
		ch := sel[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == ']':
			return i
		}
	}
	return -1
}

func parseAttr(body string) (attrMatch, error) {
	eq := strings.IndexByte(body, '=')
	if eq < 0 {
		key := strings.TrimSpace(body)
		if key == "" {
			return attrMatch{}, fmt.Errorf("%w: []", ErrUnsupportedSelector)
		}
		return attrMatch{key: strings.ToLower(key)}, nil
	}

	keyEnd, op := eq, "="
	if eq > 0 && strings.IndexByte("*^$~", body[eq-1]) >= 0 {
		keyEnd, op = eq-1, body[eq-1:eq+1]
	}
	key := strings.TrimSpace(body[:keyEnd])
	if key == "" {
		return attrMatch{}, fmt.Errorf("%w: [%s]", ErrUnsupportedSelector, body)
	}
	val := strings.Trim(strings.TrimSpace(body[eq+1:]), `"'`)
	return attrMatch{key: strings.ToLower(key), op: op, val: val}, nil
}

func isIdentByte(b byte) bool {
	return b == '-' || b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func (c compound) match(n Node) bool {
	if c.tag != "" && n.Tag() != c.tag {
		return false
	}
	if c.id != "" {
		if v, _ := n.Attr("id"); v != c.id {
			return false
		}
	}
	for _, cls := range c.classes {
		if !HasClass(n, cls) {
			return false
		}
	}
	for _, a := range c.attrs {
		if !a.match(n) {
			return false
		}
	}
	return true
}

func (a attrMatch) match(n Node) bool {
	v, ok := n.Attr(a.key)
	if !ok {
		return false
	}
	switch a.op {
	case "":
		return true
	case "=":
		return v == a.val
	case "*=":
		return a.val != "" && strings.Contains(v, a.val)
	case "^=":
		return a.val != "" && strings.HasPrefix(v, a.val)
	case "$=":
		return a.val != "" && strings.HasSuffix(v, a.val)
	case "~=":
		for _, f := range strings.Fields(v) {
			if f == a.val {
				return true
			}
		}
	}
	return false
}
