// Package browser drives a headless Chrome through chromedp to read pages
// and search results.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"buddy/internal/tool"
)

// ErrNoChrome means no Chrome or Chromium executable was found on PATH.
var ErrNoChrome = errors.New("chrome executable not found")

// chromeNames are the executables probed by Available.
var chromeNames = []string{
	"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome", "headless-shell",
}

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Bridge manages headless Chrome instances. Every call starts its own browser
// and closes it before returning.
type Bridge struct {
	profileDir  string
	headless    bool
	pageTimeout time.Duration
	searchURL   string
	logger      *slog.Logger
}

type BridgeConfig struct {
	ProfileDir  string // Chrome user data directory
	Headless    bool
	PageTimeout time.Duration
	SearchURL   string // query is appended, escaped
	Logger      *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".buddy", "chrome-profile")
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = "https://www.google.com/search?q="
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		profileDir:  cfg.ProfileDir,
		headless:    cfg.Headless,
		pageTimeout: cfg.PageTimeout,
		searchURL:   cfg.SearchURL,
		logger:      cfg.Logger,
	}
}

// Available returns the path of a Chrome executable on PATH.
func Available() (string, error) {
	if p, ok := tool.LookPathAny(chromeNames...); ok {
		return p, nil
	}
	return "", ErrNoChrome
}

// newContext creates a chromedp context with the bridge's profile. The caller
// must call cancel when done.
func (b *Bridge) newContext(parent context.Context) (context.Context, context.CancelFunc) {
	if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
		b.logger.Warn("failed to create profile dir", "dir", b.profileDir, "err", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.profileDir),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
	)
	if b.headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	timeoutCtx, timeoutCancel := context.WithTimeout(taskCtx, b.pageTimeout)

	return timeoutCtx, func() {
		timeoutCancel()
		taskCancel()
		allocCancel()
	}
}

// Page is the readable text of a loaded page.
type Page struct {
	URL   string
	Title string
	Text  string
}

// PageText loads rawURL and returns its visible text.
func (b *Bridge) PageText(ctx context.Context, rawURL string) (Page, error) {
	u, err := normalizeURL(rawURL)
	if err != nil {
		return Page{}, err
	}

	taskCtx, cancel := b.newContext(ctx)
	defer cancel()

	b.logger.Debug("loading page", "url", u)
	page := Page{URL: u}
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(u),
		chromedp.WaitReady("body"),
		chromedp.Title(&page.Title),
		chromedp.Evaluate(`document.body ? document.body.innerText : ''`, &page.Text),
	)
	if err != nil {
		return Page{}, fmt.Errorf("load %s: %w", u, err)
	}
	page.Text = CleanText(page.Text)
	return page, nil
}

// SearchResult is one organic result of a web search.
type SearchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

const searchResultsJS = `(function() {
	var out = [];
	var seen = {};
	document.querySelectorAll('a h3').forEach(function(h) {
		var a = h.closest('a');
		if (!a || !a.href || seen[a.href]) return;
		seen[a.href] = true;
		out.push({title: h.innerText || h.textContent || '', url: a.href});
	});
	return out;
})()`

// Search runs query on the configured search page and returns the result
// links in page order.
func (b *Bridge) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search: empty query")
	}

	taskCtx, cancel := b.newContext(ctx)
	defer cancel()

	var results []SearchResult
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(b.searchURL+url.QueryEscape(query)),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(searchResultsJS, &results),
	)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	clean := results[:0]
	for _, r := range results {
		r.Title = strings.TrimSpace(r.Title)
		if r.Title == "" || !strings.HasPrefix(r.URL, "http") {
			continue
		}
		clean = append(clean, r)
	}
	b.logger.Debug("search results", "query", query, "count", len(clean))
	return clean, nil
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url %q: no host", raw)
	}
	return u.String(), nil
}
