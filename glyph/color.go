package glyph

import (
	"fmt"
	"strconv"
	"strings"
)

// ColorKey is a normalised "rgb(r, g, b)" string, the form browsers return
// from getComputedStyle for opaque colours.
type ColorKey string

// RGB builds the key for a channel triple.
func RGB(r, g, b uint8) ColorKey {
	return ColorKey(fmt.Sprintf("rgb(%d, %d, %d)", r, g, b))
}

// namedColors covers the host palette and a few neutrals. It is not the
// full CSS list.
var namedColors = map[string]ColorKey{
	"black":        RGB(0, 0, 0),
	"white":        RGB(255, 255, 255),
	"gray":         RGB(128, 128, 128),
	"grey":         RGB(128, 128, 128),
	"lime":         RGB(0, 255, 0),
	"green":        RGB(0, 128, 0),
	"violet":       RGB(238, 130, 238),
	"red":          RGB(255, 0, 0),
	"gold":         RGB(255, 215, 0),
	"turquoise":    RGB(64, 224, 208),
	"orange":       RGB(255, 165, 0),
	"hotpink":      RGB(255, 105, 180),
	"lightgrey":    RGB(211, 211, 211),
	"lightgray":    RGB(211, 211, 211),
	"tan":          RGB(210, 180, 140),
	"mediumpurple": RGB(147, 112, 219),
}

// ParseColor normalises a CSS colour value to a ColorKey. It accepts
// rgb()/rgba(), #rgb, #rrggbb and the named colours above. Transparent or
// translucent colours, "inherit" and empty input report ok=false.
func ParseColor(raw string) (ColorKey, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSpace(strings.TrimSuffix(s, "!important"))
	switch {
	case s == "", s == "transparent", s == "inherit", s == "none", s == "initial":
		return "", false
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgb"):
		return parseFunc(s)
	}
	key, ok := namedColors[s]
	return key, ok
}

// IsBlank reports whether a raw computed colour is one of the values that
// mean "no fill yet" rather than an unknown colour.
func IsBlank(raw string) bool {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "", "inherit", "transparent", "rgba(0, 0, 0, 0)":
		return true
	}
	return false
}

func parseHex(h string) (ColorKey, bool) {
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return "", false
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return "", false
	}
	return RGB(uint8(v>>16), uint8(v>>8), uint8(v)), true
}

func parseFunc(s string) (ColorKey, bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return "", false
	}
	name := s[:open]
	if name != "rgb" && name != "rgba" {
		return "", false
	}
	body := s[open+1 : len(s)-1]
	body = strings.ReplaceAll(body, "/", ",")
	parts := strings.FieldsFunc(body, func(r rune) bool { return r == ',' || r == ' ' })
	if len(parts) != 3 && len(parts) != 4 {
		return "", false
	}

	var ch [3]uint8
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 || n > 255 {
			return "", false
		}
		ch[i] = uint8(n)
	}
	if len(parts) == 4 {
		alpha := parts[3]
		var a float64
		var err error
		if strings.HasSuffix(alpha, "%") {
			a, err = strconv.ParseFloat(strings.TrimSuffix(alpha, "%"), 64)
			a /= 100
		} else {
			a, err = strconv.ParseFloat(alpha, 64)
		}
		if err != nil || a < 1 {
			return "", false
		}
	}
	return RGB(ch[0], ch[1], ch[2]), true
}
