// Command glyphwatch replaces the state colours of task-status grids with
// symbols, on live Chrome pages or on saved HTML.
//
// Usage:
//
//	glyphwatch -config glyphwatch.yaml              # targets from YAML config
//	glyphwatch -url http://localhost:8080/dags      # open and overlay one page
//	glyphwatch -attach '*dags*' -remote ws://...    # overlay tabs already open
//	glyphwatch -rewrite page.html -o out.html       # rewrite a saved document
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/glyphwatch/classmap"
	"github.com/hazyhaar/glyphwatch/debugapi"
	"github.com/hazyhaar/glyphwatch/dom"
	"github.com/hazyhaar/glyphwatch/dom/htmldoc"
	"github.com/hazyhaar/glyphwatch/glyph"
	"github.com/hazyhaar/glyphwatch/glyphwatch"
	"github.com/hazyhaar/glyphwatch/overlay"
)

const version = "0.1.0"

const usage = "usage: glyphwatch -config <file> | -url <url> | -attach <patterns> | -rewrite <file>"

// errUsage reports a command line with nothing to overlay.
var errUsage = errors.New("no targets")

type options struct {
	configPath string
	url        string
	attach     string
	remote     string
	headful    bool
	rewrite    string
	out        string
	debug      bool
	debugAddr  string
	mcp        bool
	db         string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to glyphwatch.yaml config file")
	flag.StringVar(&o.url, "url", "", "open and overlay a single URL")
	flag.StringVar(&o.attach, "attach", "", "comma-separated URL patterns of open tabs to overlay")
	flag.StringVar(&o.remote, "remote", "", "DevTools WebSocket URL of a running Chrome")
	flag.BoolVar(&o.headful, "headful", false, "launch a visible Chrome window")
	flag.StringVar(&o.rewrite, "rewrite", "", "rewrite a saved HTML document (- for stdin) and exit")
	flag.StringVar(&o.out, "o", "", "output file for -rewrite (default stdout)")
	flag.BoolVar(&o.debug, "debug", false, "debug logging and periodic class map dumps")
	flag.StringVar(&o.debugAddr, "debug-addr", "", "listen address of the debug HTTP API")
	flag.BoolVar(&o.mcp, "mcp", false, "serve the debug MCP tools on stdio")
	flag.StringVar(&o.db, "db", "", "SQLite database with an overlay_targets table")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	level := new(slog.LevelVar)
	level.Set(parseLevel(*logLevel))
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, logger, level, o)
	stop()

	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	case err != nil:
		logger.Error("glyphwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, logger *slog.Logger, level *slog.LevelVar, o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	debugLevel(level, cfg)

	if o.rewrite != "" {
		return runRewrite(ctx, logger, cfg, o)
	}
	if len(cfg.Targets) == 0 && o.db == "" {
		return errUsage
	}
	return runLive(ctx, logger, cfg, o)
}

// debugLevel lowers the log level to debug when the overlay runs in debug
// mode, from the config file or -debug, so the class map dumps are written.
func debugLevel(level *slog.LevelVar, cfg *glyphwatch.Config) {
	if cfg.Overlay.Debug && level.Level() > slog.LevelDebug {
		level.Set(slog.LevelDebug)
	}
}

// loadConfig merges the config file and the flags. Flags win.
func loadConfig(o options) (*glyphwatch.Config, error) {
	cfg := glyphwatch.DefaultConfig()
	if o.configPath != "" {
		c, err := glyphwatch.LoadConfigFile(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}

	if o.remote != "" {
		cfg.Browser.Remote = o.remote
	}
	if o.headful {
		cfg.Browser.Headful = true
	}
	if o.debug {
		cfg.Overlay.Debug = true
	}
	if o.debugAddr != "" {
		cfg.DebugAPI.Addr = o.debugAddr
	}
	if o.url != "" || o.attach != "" {
		cfg.Targets = append(cfg.Targets, glyphwatch.TargetConfig{
			ID:    "cli",
			URL:   o.url,
			Match: splitPatterns(o.attach),
		})
	}
	return cfg, nil
}

func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runLive(ctx context.Context, logger *slog.Logger, cfg *glyphwatch.Config, o options) error {
	// Targets from the database come on top of the file and flag targets
	// and follow the table while running.
	base := slices.Clone(cfg.Targets)
	var db *sql.DB
	if o.db != "" {
		var err error
		db, err = glyphwatch.OpenTargetsDB(o.db)
		if err != nil {
			return err
		}
		defer db.Close()
		targets, err := glyphwatch.LoadTargets(ctx, db)
		if err != nil {
			return err
		}
		cfg.Targets = append(cfg.Targets, targets...)
	}

	reg := prometheus.NewRegistry()
	w, err := glyphwatch.New(cfg,
		glyphwatch.WithLogger(logger),
		glyphwatch.WithMetrics(overlay.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}

	api := debugapi.New(debugapi.Config{
		Stores:   w,
		Registry: w.Registry(),
		Gatherer: reg,
		Logger:   logger,
	})

	var srv *http.Server
	if cfg.DebugAPI.Addr != "" {
		srv = &http.Server{
			Addr:              cfg.DebugAPI.Addr,
			Handler:           api.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("glyphwatch: debug api listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("glyphwatch: debug api", "error", err)
			}
		}()
	}

	if o.mcp {
		go serveMCP(ctx, logger, api)
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	if db != nil {
		go glyphwatch.WatchTargets(ctx, db, logger, func(targets []glyphwatch.TargetConfig) {
			w.SyncTargets(ctx, append(slices.Clone(base), targets...))
		})
	}

	<-ctx.Done()
	logger.Info("glyphwatch: shutting down")
	w.Stop()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("glyphwatch: debug api shutdown", "error", err)
		}
	}
	return nil
}

func serveMCP(ctx context.Context, logger *slog.Logger, api *debugapi.API) {
	srv := mcp.NewServer(&mcp.Implementation{Name: "glyphwatch", Version: version}, nil)
	api.RegisterMCP(srv)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Error("glyphwatch: mcp server", "error", err)
	}
}

func runRewrite(ctx context.Context, logger *slog.Logger, cfg *glyphwatch.Config, o options) error {
	var in io.Reader = os.Stdin
	if o.rewrite != "-" {
		f, err := os.Open(o.rewrite)
		if err != nil {
			return fmt.Errorf("rewrite: %w", err)
		}
		defer f.Close()
		in = f
	}

	var out io.Writer = os.Stdout
	if o.out != "" {
		f, err := os.Create(o.out)
		if err != nil {
			return fmt.Errorf("rewrite: %w", err)
		}
		defer f.Close()
		out = f
	}

	_, err := rewrite(ctx, logger, cfg.Overlay, in, out)
	return err
}

// rewrite overlays one static document. There is nothing to wait for, so
// a document without widgets is retried once and written unchanged.
func rewrite(ctx context.Context, logger *slog.Logger, oc glyphwatch.OverlayConfig, in io.Reader, out io.Writer) (*classmap.Store, error) {
	doc, err := htmldoc.Parse(in)
	if err != nil {
		return nil, fmt.Errorf("rewrite: %w", err)
	}
	targetS, err := dom.ParseSelector(oc.TargetSelector)
	if err != nil {
		return nil, fmt.Errorf("rewrite: target selector: %w", err)
	}
	rootS, err := dom.ParseSelector(oc.RootSelector)
	if err != nil {
		return nil, fmt.Errorf("rewrite: root selector: %w", err)
	}

	store := classmap.New(glyph.DefaultRegistry(), classmap.WithLogger(logger))
	coord := overlay.New(overlay.Config{
		Document:       doc,
		Store:          store,
		TargetSelector: targetS,
		RootSelector:   rootS,
		ClassPrefix:    oc.ClassPrefix,
		RetryDelay:     oc.RetryDelay,
		MaxRetries:     1,
		Debug:          oc.Debug,
		Logger:         logger,
	})

	n, err := coord.ScanOnce(ctx)
	if err != nil {
		return nil, fmt.Errorf("rewrite: scan: %w", err)
	}
	logger.Info("glyphwatch: document rewritten", "widgets", n, "classes", store.Len())
	if oc.Debug {
		logger.Debug("glyphwatch: class to state mappings", "classmap", store)
	}

	if err := doc.Render(out); err != nil {
		return nil, fmt.Errorf("rewrite: render: %w", err)
	}
	return store, nil
}
