package browser

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is a page the overlay runs on.
type Tab struct {
	Page    *rod.Page
	PageURL string
	PageID  string
	// Owned tabs were opened by glyphwatch and are closed with it.
	Owned bool
}

// OpenTab creates a new tab and navigates to pageURL. Headless launches get
// the stealth page so hosts that sniff automation render normally.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, pageID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if !mgr.cfg.Headful && !mgr.Remote() {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}

	return &Tab{Page: page, PageURL: pageURL, PageID: pageID, Owned: true}, nil
}

// AttachTabs returns the open tabs whose URL matches one of the glob
// patterns (path.Match syntax over the full URL, e.g. "*dags*").
func AttachTabs(mgr *Manager, patterns []string) ([]*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}

	var tabs []*Tab
	for _, p := range pages {
		info, err := p.Info()
		if err != nil || info.Type != proto.TargetTargetInfoTypePage {
			continue
		}
		if MatchURL(patterns, info.URL) {
			tabs = append(tabs, &Tab{Page: p, PageURL: info.URL, PageID: string(info.TargetID)})
		}
	}
	return tabs, nil
}

// MatchURL reports whether u matches any pattern. In the patterns "*"
// also crosses "/", so "*dags*" matches any URL containing "dags".
func MatchURL(patterns []string, u string) bool {
	for _, p := range patterns {
		if globMatch(p, u) {
			return true
		}
	}
	return false
}

func globMatch(pattern, s string) bool {
	if pattern == "" {
		return false
	}
	// path.Match stops "*" at "/"; match against a slash-free rendering.
	ok, err := path.Match(slashless(pattern), slashless(s))
	return err == nil && ok
}

func slashless(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] == '/' {
			b[i] = '\x00'
		}
	}
	return string(b)
}

// Close closes the tab if glyphwatch opened it.
func (t *Tab) Close() error {
	if t.Page != nil && t.Owned {
		return t.Page.Close()
	}
	return nil
}
