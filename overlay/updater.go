// Package overlay replaces the colour fill of task widgets with a symbol.
// Updater handles one element; Coordinator scans the document and drives
// the updater, either directly or through a drop-based throttle.
package overlay

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/glyphwatch/classmap"
	"github.com/hazyhaar/glyphwatch/dom"
	"github.com/hazyhaar/glyphwatch/glyph"
)

// DefaultClassPrefix marks the generated class that carries the state.
const DefaultClassPrefix = "c-"

// Outcome is the result of applying the overlay to one element.
type Outcome int

const (
	OutcomePainted Outcome = iota
	OutcomeDetached
	OutcomeNoClass
	OutcomeUnknown
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePainted:
		return "painted"
	case OutcomeDetached:
		return "detached"
	case OutcomeNoClass:
		return "no_class"
	case OutcomeUnknown:
		return "unknown"
	case OutcomeFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// indicatorStyle centres the symbol in the widget.
const indicatorStyle = "display: flex; flex-direction: column; align-items: center; " +
	"justify-content: center; width: 100%; height: 100%; font-size: 14px; font-weight: bold;"

// IndicatorFor builds the replacement node for a state.
func IndicatorFor(s glyph.State) dom.Indicator {
	return dom.Indicator{
		Symbol:      s.Symbol,
		Label:       s.Label,
		Style:       indicatorStyle,
		SymbolClass: "status-symbol",
	}
}

// Updater applies the overlay to single elements.
type Updater struct {
	store   *classmap.Store
	prefix  string
	logger  *slog.Logger
	metrics *Metrics
	// debug enables logging of colours outside the palette.
	debug bool
}

// NewUpdater creates an Updater resolving states through store.
func NewUpdater(store *classmap.Store, classPrefix string, logger *slog.Logger, metrics *Metrics) *Updater {
	if classPrefix == "" {
		classPrefix = DefaultClassPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{store: store, prefix: classPrefix, logger: logger, metrics: metrics}
}

// Apply resolves the state of n and, if known, replaces its content with the
// state's symbol. Elements that left the document, carry no generated class,
// or show a colour outside the palette are left untouched. Apply never fails
// the caller; a backend error is logged and reported as OutcomeFailed.
func (u *Updater) Apply(ctx context.Context, doc dom.Document, n dom.Node) Outcome {
	o := u.apply(ctx, doc, n)
	u.metrics.element(o)
	return o
}

func (u *Updater) apply(ctx context.Context, doc dom.Document, n dom.Node) Outcome {
	if !doc.Connected(ctx, n) {
		return OutcomeDetached
	}

	classID, ok := dom.ClassIdentifier(n, u.prefix)
	if !ok {
		u.logger.Debug("overlay: no generated class on element", "prefix", u.prefix)
		return OutcomeNoClass
	}

	state, ok := u.store.Peek(classID)
	if !ok {
		var raw string
		state, ok = u.store.Resolve(classID, func() glyph.ColorKey {
			c, err := doc.BackgroundColor(ctx, n)
			if err != nil {
				u.logger.Debug("overlay: read background failed", "class", classID, "error", err)
				return ""
			}
			raw = c
			key, _ := glyph.ParseColor(c)
			return key
		})
		if !ok {
			if u.debug && !glyph.IsBlank(raw) {
				u.logger.Debug("overlay: unable to map class", "class", classID, "color", raw)
			}
			return OutcomeUnknown
		}
	}

	u.logger.Debug("overlay: applying state", "class", classID, "state", state.Kind)
	if err := doc.Paint(ctx, n, IndicatorFor(state)); err != nil {
		u.logger.Warn("overlay: paint failed", "class", classID, "error", err)
		return OutcomeFailed
	}
	return OutcomePainted
}
