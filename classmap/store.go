// Package classmap caches which generated CSS class stands for which task
// state. Class names change between page loads, so the mapping is learned
// from the computed colour the first time a class is seen and then kept for
// the lifetime of the page.
package classmap

import (
	"log/slog"
	"sync"

	"github.com/hazyhaar/glyphwatch/glyph"
)

// ColorProvider returns the colour of an element carrying the class. It is
// only called on a cache miss.
type ColorProvider func() glyph.ColorKey

// Store maps class identifiers to states. The first successful resolution of
// a class is final: later renders of the same class with a transient colour
// never overwrite it.
type Store struct {
	registry   *glyph.Registry
	logger     *slog.Logger
	maxEntries int
	onLearn    func(classID string, s glyph.State)

	mu      sync.RWMutex
	classes map[string]glyph.State
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for newly learned mappings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMaxEntries caps the number of cached classes. Once full, new classes
// still resolve but are not remembered. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(s *Store) { s.maxEntries = n }
}

// WithOnLearn registers a hook called once per newly cached class.
func WithOnLearn(fn func(classID string, s glyph.State)) Option {
	return func(s *Store) { s.onLearn = fn }
}

// New creates an empty Store resolving colours through registry.
func New(registry *glyph.Registry, opts ...Option) *Store {
	s := &Store{
		registry: registry,
		logger:   slog.Default(),
		classes:  make(map[string]glyph.State),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Peek returns the cached state for classID without reading any colour.
func (s *Store) Peek(classID string) (glyph.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.classes[classID]
	return st, ok
}

// Resolve returns the cached state for classID, or reads the colour through
// provider and caches the result if the colour is in the registry. Unknown
// colours are not cached so a later render with a settled colour can still
// succeed.
func (s *Store) Resolve(classID string, provider ColorProvider) (glyph.State, bool) {
	if st, ok := s.Peek(classID); ok {
		return st, true
	}

	// The provider may cost a CDP round-trip; call it outside the lock.
	color := provider()
	st, ok := s.registry.Lookup(color)
	if !ok {
		return glyph.State{}, false
	}

	s.mu.Lock()
	if prev, exists := s.classes[classID]; exists {
		s.mu.Unlock()
		return prev, true
	}
	if s.maxEntries > 0 && len(s.classes) >= s.maxEntries {
		s.mu.Unlock()
		s.logger.Debug("classmap: store full, not caching", "class", classID, "max", s.maxEntries)
		return st, true
	}
	s.classes[classID] = st
	s.mu.Unlock()

	s.logger.Debug("classmap: new class mapping",
		"class", classID, "state", st.Kind, "color", string(color))
	if s.onLearn != nil {
		s.onLearn(classID, st)
	}
	return st, true
}

// Len returns the number of cached classes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.classes)
}

// Snapshot returns a copy of the current mappings.
func (s *Store) Snapshot() map[string]glyph.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]glyph.State, len(s.classes))
	for k, v := range s.classes {
		out[k] = v
	}
	return out
}

// LogValue renders the store for slog, used by the periodic debug dump.
func (s *Store) LogValue() slog.Value {
	snap := s.Snapshot()
	attrs := make([]slog.Attr, 0, len(snap))
	for class, st := range snap {
		attrs = append(attrs, slog.String(class, st.Label))
	}
	return slog.GroupValue(attrs...)
}
