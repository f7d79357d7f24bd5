package htmldoc

import (
	"strings"

	"github.com/gorilla/css/scanner"

	"github.com/hazyhaar/glyphwatch/dom"
	"github.com/hazyhaar/glyphwatch/glyph"
)

// rule is one style rule whose selector the dom package can compile.
// Rules with combinators, pseudo-classes or inside at-rules are dropped.
type rule struct {
	sel   dom.Selector
	decls []declaration
}

type declaration struct {
	prop  string
	value string
}

// parseStylesheet extracts the plain rules of a <style> block.
func parseStylesheet(src string) []rule {
	s := scanner.New(src)
	var rules []rule
	var prelude strings.Builder

	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF, scanner.TokenError:
			return rules
		case scanner.TokenComment, scanner.TokenCDO, scanner.TokenCDC, scanner.TokenBOM:
			continue
		}

		if tok.Type == scanner.TokenChar {
			switch tok.Value {
			case "{":
				body := readBlock(s)
				head := strings.TrimSpace(prelude.String())
				prelude.Reset()
				if head == "" || strings.HasPrefix(head, "@") {
					continue
				}
				sel, err := dom.ParseSelector(head)
				if err != nil {
					continue
				}
				rules = append(rules, rule{sel: sel, decls: parseDeclarations(body)})
				continue
			case ";":
				// Statement at-rule such as @import.
				prelude.Reset()
				continue
			}
		}
		appendToken(&prelude, tok)
	}
}

// readBlock consumes tokens up to the brace closing an already opened
// block and returns the text inside it.
func readBlock(s *scanner.Scanner) string {
	depth := 1
	var b strings.Builder
	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF, scanner.TokenError:
			return b.String()
		case scanner.TokenChar:
			switch tok.Value {
			case "{":
				depth++
			case "}":
				depth--
				if depth == 0 {
					return b.String()
				}
			}
		}
		appendToken(&b, tok)
	}
}

// parseDeclarations parses "prop: value; prop: value" as found in style
// attributes and rule bodies. Property names are lower-cased.
func parseDeclarations(src string) []declaration {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	s := scanner.New(src)
	var decls []declaration
	var cur strings.Builder
	parens := 0

	flush := func() {
		text := cur.String()
		cur.Reset()
		prop, value, ok := strings.Cut(text, ":")
		if !ok {
			return
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)
		if prop == "" || value == "" {
			return
		}
		decls = append(decls, declaration{prop: prop, value: value})
	}

	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF, scanner.TokenError:
			flush()
			return decls
		case scanner.TokenFunction:
			parens++
		case scanner.TokenChar:
			switch tok.Value {
			case ")":
				if parens > 0 {
					parens--
				}
			case ";":
				if parens == 0 {
					flush()
					continue
				}
			}
		}
		appendToken(&cur, tok)
	}
}

func appendToken(b *strings.Builder, tok *scanner.Token) {
	switch tok.Type {
	case scanner.TokenComment:
		return
	case scanner.TokenS:
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		return
	}
	b.WriteString(tok.Value)
}

// backgroundOf returns the background colour set by the last background or
// background-color declaration, or "".
func backgroundOf(decls []declaration) string {
	color := ""
	for _, d := range decls {
		v := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(d.value), "!important"))
		switch d.prop {
		case "background-color":
			color = v
		case "background":
			color = colorFromShorthand(v)
		}
	}
	return color
}

// colorFromShorthand picks the colour component of a background shorthand.
func colorFromShorthand(v string) string {
	if _, ok := glyph.ParseColor(v); ok {
		return v
	}
	for _, part := range splitTopLevel(v) {
		if _, ok := glyph.ParseColor(part); ok {
			return part
		}
		if part == "transparent" {
			return part
		}
	}
	return ""
}

// splitTopLevel splits on whitespace outside parentheses.
func splitTopLevel(v string) []string {
	var parts []string
	depth, start := 0, -1
	for i, r := range v {
		switch {
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ' ' && depth == 0:
			if start >= 0 {
				parts = append(parts, v[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		parts = append(parts, v[start:])
	}
	return parts
}
