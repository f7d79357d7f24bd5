// Package debugapi exposes the learned class mappings and the colour table
// for inspection, over HTTP and as MCP tools.
package debugapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/glyphwatch/classmap"
	"github.com/hazyhaar/glyphwatch/glyph"
)

// StoreSource lists the class caches of the pages being overlaid, by page.
type StoreSource interface {
	Stores() map[string]*classmap.Store
}

// StoresFunc adapts a function to StoreSource.
type StoresFunc func() map[string]*classmap.Store

func (f StoresFunc) Stores() map[string]*classmap.Store { return f() }

// Config for an API.
type Config struct {
	Stores   StoreSource
	Registry *glyph.Registry
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// API serves the debug views.
type API struct {
	cfg Config
}

// New creates an API.
func New(cfg Config) *API {
	if cfg.Registry == nil {
		cfg.Registry = glyph.DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stores == nil {
		cfg.Stores = StoresFunc(func() map[string]*classmap.Store { return nil })
	}
	return &API{cfg: cfg}
}

// ClassEntry is one learned mapping.
type ClassEntry struct {
	Class string      `json:"class"`
	State glyph.State `json:"state"`
}

// PageClasses is the class cache of one page.
type PageClasses struct {
	Page    string       `json:"page"`
	Classes []ClassEntry `json:"classes"`
}

// ClassMapResponse is the body of /debug/classmap and glyphwatch_classmap.
type ClassMapResponse struct {
	Pages []PageClasses `json:"pages"`
}

// StateEntry is one row of the colour table.
type StateEntry struct {
	Color string      `json:"color"`
	State glyph.State `json:"state"`
}

// StatesResponse is the body of /debug/states and glyphwatch_states.
type StatesResponse struct {
	States []StateEntry `json:"states"`
}

// ClassMap snapshots the stores, sorted by page then class. A non-empty
// page restricts the result to that page.
func (a *API) ClassMap(page string) ClassMapResponse {
	resp := ClassMapResponse{Pages: []PageClasses{}}
	for id, store := range a.cfg.Stores.Stores() {
		if page != "" && id != page {
			continue
		}
		pc := PageClasses{Page: id, Classes: []ClassEntry{}}
		for class, st := range store.Snapshot() {
			pc.Classes = append(pc.Classes, ClassEntry{Class: class, State: st})
		}
		slices.SortFunc(pc.Classes, func(x, y ClassEntry) int { return strings.Compare(x.Class, y.Class) })
		resp.Pages = append(resp.Pages, pc)
	}
	slices.SortFunc(resp.Pages, func(x, y PageClasses) int { return strings.Compare(x.Page, y.Page) })
	return resp
}

// States lists the colour table in state order.
func (a *API) States() StatesResponse {
	entries := a.cfg.Registry.Entries()
	slices.SortStableFunc(entries, func(x, y glyph.Entry) int { return int(x.State.Kind) - int(y.State.Kind) })
	resp := StatesResponse{States: make([]StateEntry, 0, len(entries))}
	for _, e := range entries {
		resp.States = append(resp.States, StateEntry{Color: string(e.Color), State: e.State})
	}
	return resp
}

// Router returns the HTTP handler.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog(a.cfg.Logger))
	r.Use(noStore)
	r.Use(headToGet)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/debug/classmap", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.ClassMap(r.URL.Query().Get("page")))
	})
	r.Get("/debug/states", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, a.States())
	})
	if a.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
