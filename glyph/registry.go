package glyph

// Registry maps a colour to a State. It is built once and never modified.
type Registry struct {
	byColor map[ColorKey]State
	ordered []Entry
}

// Entry pairs a colour with the state it signals.
type Entry struct {
	Color ColorKey
	State State
}

// NewRegistry builds a registry from explicit entries. Later entries with a
// duplicate colour are ignored.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{byColor: make(map[ColorKey]State, len(entries))}
	for _, e := range entries {
		if _, dup := r.byColor[e.Color]; dup {
			continue
		}
		r.byColor[e.Color] = e.State
		r.ordered = append(r.ordered, e)
	}
	return r
}

// DefaultEntries is the host palette.
func DefaultEntries() []Entry {
	return []Entry{
		{RGB(128, 128, 128), State{Queued, "⌛", "Queued"}},
		{RGB(0, 255, 0), State{Running, "⚙️", "Running"}},
		{RGB(0, 128, 0), State{Success, "✓", "Success"}},
		{RGB(238, 130, 238), State{Restarting, "🔄", "Restarting"}},
		{RGB(255, 0, 0), State{Failed, "❌", "Failed"}},
		{RGB(255, 215, 0), State{UpForRetry, "🔁", "Up for retry"}},
		{RGB(64, 224, 208), State{Reschedule, "⏳", "Reschedule"}},
		{RGB(255, 165, 0), State{UpstreamFailed, "⚠️", "Upstream failed"}},
		{RGB(255, 105, 180), State{Skipped, "⤵️", "Skipped"}},
		{RGB(211, 211, 211), State{Removed, "🗑️", "Removed"}},
		{RGB(210, 180, 140), State{Scheduled, "⏰", "Scheduled"}},
		{RGB(147, 112, 219), State{Deferred, "⏸️", "Deferred"}},
	}
}

// DefaultRegistry returns the registry for the host palette.
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultEntries()...)
}

// Lookup returns the state for a colour. A miss is normal: most elements
// carry colours outside the palette.
func (r *Registry) Lookup(key ColorKey) (State, bool) {
	s, ok := r.byColor[key]
	return s, ok
}

// Entries returns the table in insertion order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// States returns the registered states in Kind order.
func (r *Registry) States() []State {
	out := make([]State, 0, len(r.ordered))
	for _, k := range Kinds() {
		for _, e := range r.ordered {
			if e.State.Kind == k {
				out = append(out, e.State)
			}
		}
	}
	return out
}
