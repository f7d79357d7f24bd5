// Package glyph defines the fixed set of task states and the colour table
// that maps the host palette to a symbol and a label.
package glyph

import "fmt"

// Kind is one of the task-instance states the host renders.
type Kind int

const (
	Queued Kind = iota
	Running
	Success
	Restarting
	Failed
	UpForRetry
	Reschedule
	UpstreamFailed
	Skipped
	Removed
	Scheduled
	Deferred
)

var kindNames = [...]string{
	Queued:         "queued",
	Running:        "running",
	Success:        "success",
	Restarting:     "restarting",
	Failed:         "failed",
	UpForRetry:     "up_for_retry",
	Reschedule:     "up_for_reschedule",
	UpstreamFailed: "upstream_failed",
	Skipped:        "skipped",
	Removed:        "removed",
	Scheduled:      "scheduled",
	Deferred:       "deferred",
}

// String returns the snake_case token the host uses for the state.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// Kinds returns every state in enum order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range kindNames {
		out[i] = Kind(i)
	}
	return out
}

// State is the presentation of a Kind: the glyph drawn in place of the
// colour and a human-readable label. Values are immutable.
type State struct {
	Kind   Kind   `json:"kind"`
	Symbol string `json:"symbol"`
	Label  string `json:"label"`
}

// MarshalText encodes the kind as its token.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a token produced by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	v, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("glyph: unknown kind %q", b)
	}
	*k = v
	return nil
}
