package config

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
targets:
  - url: http://localhost:8080/dags
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Overlay.ThrottleInterval != time.Second {
		t.Errorf("throttle: got %v", cfg.Overlay.ThrottleInterval)
	}
	if cfg.Overlay.RetryDelay != 300*time.Millisecond {
		t.Errorf("retry: got %v", cfg.Overlay.RetryDelay)
	}
	if cfg.Overlay.DumpInterval != 10*time.Second {
		t.Errorf("dump: got %v", cfg.Overlay.DumpInterval)
	}
	if cfg.Overlay.ClassPrefix != "c-" {
		t.Errorf("prefix: got %q", cfg.Overlay.ClassPrefix)
	}
	if cfg.Overlay.TargetSelector != `[data-testid="task-instance"]` {
		t.Errorf("target selector: got %q", cfg.Overlay.TargetSelector)
	}
	if len(cfg.Browser.ResourceBlocking) != 3 {
		t.Errorf("blocking: got %v", cfg.Browser.ResourceBlocking)
	}
	if cfg.Targets[0].ID != "target-1" {
		t.Errorf("target id: got %q", cfg.Targets[0].ID)
	}
}

func TestParse_Explicit(t *testing.T) {
	cfg, err := Parse([]byte(`
browser:
  remote: ws://127.0.0.1:9222/devtools/browser/x
  headful: true
  resource_blocking: []
overlay:
  throttle_interval: 250ms
  max_retries: 5
  debug: true
targets:
  - id: airflow
    match: ["*dags*"]
debug_api:
  addr: 127.0.0.1:9464
`))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Browser.Headful || cfg.Browser.Remote == "" {
		t.Errorf("browser: got %+v", cfg.Browser)
	}
	if len(cfg.Browser.ResourceBlocking) != 0 {
		t.Errorf("explicit empty blocking list was replaced: %v", cfg.Browser.ResourceBlocking)
	}
	if cfg.Overlay.ThrottleInterval != 250*time.Millisecond || cfg.Overlay.MaxRetries != 5 || !cfg.Overlay.Debug {
		t.Errorf("overlay: got %+v", cfg.Overlay)
	}
	if cfg.DebugAPI.Addr != "127.0.0.1:9464" {
		t.Errorf("debug api: got %q", cfg.DebugAPI.Addr)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"no url or match": "targets:\n  - id: x\n",
		"negative":        "overlay:\n  max_retries: -1\n",
		"bad yaml":        "overlay: [",
	}
	for name, src := range cases {
		if _, err := Parse([]byte(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadTargets(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "targets.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	_, err = db.Exec(`INSERT INTO overlay_targets (id, url, match, status) VALUES
		('b', 'http://b/dags', '["*b*"]', 'active'),
		('a', '', '["*dags*","*airflow*"]', 'active'),
		('c', 'http://c', '[]', 'paused')`)
	if err != nil {
		t.Fatal(err)
	}

	targets, err := LoadTargets(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(targets))
	}
	if targets[0].ID != "a" || len(targets[0].Match) != 2 {
		t.Errorf("first: got %+v", targets[0])
	}
	if targets[1].URL != "http://b/dags" {
		t.Errorf("second: got %+v", targets[1])
	}
}

func TestOpenDB_Pragmas(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "targets.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode: got %q, want wal", mode)
	}
	var busy int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatal(err)
	}
	if busy != 10000 {
		t.Errorf("busy_timeout: got %d", busy)
	}
}

func TestTargetWatcher_ReloadsOnExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.db")
	watched, err := OpenDB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer watched.Close()
	writer, err := OpenDB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []TargetConfig, 4)
	w := NewTargetWatcher(watched, WatchOptions{
		Interval: 10 * time.Millisecond,
		Debounce: 20 * time.Millisecond,
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, func(ts []TargetConfig) { got <- ts })
	}()

	// Let Run seed its version before the write.
	time.Sleep(30 * time.Millisecond)
	if _, err := writer.Exec(`INSERT INTO overlay_targets (id, url) VALUES ('grid', 'http://h/dags')`); err != nil {
		t.Fatal(err)
	}

	select {
	case ts := <-got:
		if len(ts) != 1 || ts[0].ID != "grid" {
			t.Errorf("targets: got %+v", ts)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after external write")
	}
	if w.Reloads() != 1 {
		t.Errorf("reloads: got %d", w.Reloads())
	}

	cancel()
	<-done
}

func TestTargetWatcher_VersionOverride(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "targets.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var v atomic.Int64
	w := NewTargetWatcher(db, WatchOptions{
		Interval: 5 * time.Millisecond,
		Debounce: 5 * time.Millisecond,
		Version:  func(context.Context, *sql.DB) (int64, error) { return v.Load(), nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := make(chan int, 8)
	go w.Run(ctx, func(ts []TargetConfig) { calls <- len(ts) })

	time.Sleep(20 * time.Millisecond)
	select {
	case <-calls:
		t.Fatal("reload without a version change")
	default:
	}

	v.Store(7)
	select {
	case n := <-calls:
		if n != 0 {
			t.Errorf("targets: got %d, want 0", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after version change")
	}
}
