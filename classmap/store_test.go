package classmap

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hazyhaar/glyphwatch/glyph"
)

func color(c glyph.ColorKey) ColorProvider {
	return func() glyph.ColorKey { return c }
}

func TestResolve_FirstWriteWins(t *testing.T) {
	s := New(glyph.DefaultRegistry())

	st, ok := s.Resolve("c-a1b2", color("rgb(0, 128, 0)"))
	if !ok || st.Kind != glyph.Success {
		t.Fatalf("first resolve: got (%+v, %v), want Success", st, ok)
	}

	st, ok = s.Resolve("c-a1b2", color("rgb(255, 0, 0)"))
	if !ok || st.Kind != glyph.Success {
		t.Errorf("second resolve: got (%+v, %v), want cached Success", st, ok)
	}
}

func TestResolve_HitSkipsProvider(t *testing.T) {
	s := New(glyph.DefaultRegistry())
	s.Resolve("c-a1b2", color("rgb(0, 128, 0)"))

	called := false
	s.Resolve("c-a1b2", func() glyph.ColorKey {
		called = true
		return "rgb(0, 128, 0)"
	})
	if called {
		t.Error("provider called on cache hit")
	}
}

func TestResolve_UnknownNotCached(t *testing.T) {
	s := New(glyph.DefaultRegistry())

	if _, ok := s.Resolve("c-zz99", color("rgb(1, 2, 3)")); ok {
		t.Fatal("unknown colour resolved")
	}
	if _, ok := s.Peek("c-zz99"); ok {
		t.Fatal("unknown colour cached")
	}
	if s.Len() != 0 {
		t.Fatalf("Len: got %d, want 0", s.Len())
	}

	st, ok := s.Resolve("c-zz99", color("rgb(255, 0, 0)"))
	if !ok || st.Kind != glyph.Failed {
		t.Fatalf("later resolve: got (%+v, %v), want Failed", st, ok)
	}
	if got, _ := s.Peek("c-zz99"); got.Kind != glyph.Failed {
		t.Errorf("Peek after later resolve: got %s", got.Kind)
	}
}

func TestPeek_NoMutation(t *testing.T) {
	s := New(glyph.DefaultRegistry())
	if _, ok := s.Peek("c-none"); ok {
		t.Error("Peek on empty store found an entry")
	}
	if s.Len() != 0 {
		t.Errorf("Len: got %d, want 0", s.Len())
	}
}

func TestWithMaxEntries(t *testing.T) {
	s := New(glyph.DefaultRegistry(), WithMaxEntries(1))
	s.Resolve("c-1", color("rgb(0, 128, 0)"))

	st, ok := s.Resolve("c-2", color("rgb(255, 0, 0)"))
	if !ok || st.Kind != glyph.Failed {
		t.Fatalf("resolve over cap: got (%+v, %v)", st, ok)
	}
	if _, ok := s.Peek("c-2"); ok {
		t.Error("class cached beyond cap")
	}
	if s.Len() != 1 {
		t.Errorf("Len: got %d, want 1", s.Len())
	}
}

func TestWithOnLearn(t *testing.T) {
	var learned []string
	s := New(glyph.DefaultRegistry(), WithOnLearn(func(class string, _ glyph.State) {
		learned = append(learned, class)
	}))
	s.Resolve("c-1", color("rgb(0, 128, 0)"))
	s.Resolve("c-1", color("rgb(0, 128, 0)"))
	s.Resolve("c-2", color("rgb(1, 2, 3)"))

	if len(learned) != 1 || learned[0] != "c-1" {
		t.Errorf("learned: got %v, want [c-1]", learned)
	}
}

func TestResolve_ConcurrentCommutes(t *testing.T) {
	var learned atomic.Int32
	s := New(glyph.DefaultRegistry(), WithOnLearn(func(string, glyph.State) { learned.Add(1) }))

	colors := []glyph.ColorKey{"rgb(0, 128, 0)", "rgb(255, 0, 0)"}
	results := make([]glyph.State, 32)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.Resolve("c-race", color(colors[i%2]))
		}(i)
	}
	wg.Wait()

	final, _ := s.Peek("c-race")
	if learned.Load() != 1 {
		t.Errorf("learned %d times, want 1", learned.Load())
	}
	for i, r := range results {
		if r != final {
			t.Errorf("caller %d: got %+v, want cached %+v", i, r, final)
		}
	}
}

func TestSnapshot_IsCopy(t *testing.T) {
	s := New(glyph.DefaultRegistry())
	s.Resolve("c-1", color("rgb(0, 128, 0)"))

	snap := s.Snapshot()
	delete(snap, "c-1")
	if s.Len() != 1 {
		t.Error("mutating snapshot changed the store")
	}
}
