package rendered

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultSettleDelay       = 1500 * time.Millisecond
	scrollStep               = 2000
)

var errBrowserClosed = errors.New("browser: closed")

// Config configures the headless browser.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome. Empty launches a local one.
	RemoteURL         string        `mapstructure:"remote_url"`
	BinPath           string        `mapstructure:"bin_path"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
}

// RenderRequest describes one page load.
type RenderRequest struct {
	URL          string
	WaitSelector string
	Scrolls      int
}

// Page is a rendered page snapshot.
type Page struct {
	HTML     string
	FinalURL string
}

// Renderer loads a page in a browser and returns its DOM after scripts ran.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*Page, error)
}

// chrome is a locally launched Chrome process.
type chrome interface {
	Kill()
	Cleanup()
}

// Browser is a lazily started, shared Chrome instance. Each Render opens its own stealth tab.
type Browser struct {
	cfg Config
	log logger.Logger

	launch func() (string, chrome, error)
	dial   func(wsURL string) (*rod.Browser, error)

	mu      sync.Mutex
	browser *rod.Browser
	proc    chrome
	closed  bool
}

// NewBrowser creates a Browser. Chrome starts on first use.
func NewBrowser(cfg Config, log logger.Logger) *Browser {
	cfg.SetDefaults()
	b := &Browser{cfg: cfg, log: log, dial: dialChrome}
	b.launch = b.launchLocal
	return b
}

func (b *Browser) launchLocal() (string, chrome, error) {
	l := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled")
	if b.cfg.BinPath != "" {
		l = l.Bin(b.cfg.BinPath)
	}
	u, err := l.Launch()
	if err != nil {
		return "", nil, err
	}
	return u, l, nil
}

func dialChrome(wsURL string) (*rod.Browser, error) {
	rb := rod.New().ControlURL(wsURL)
	if err := rb.Connect(); err != nil {
		return nil, err
	}
	return rb, nil
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errBrowserClosed
	}
	if b.browser != nil {
		return b.browser, nil
	}

	wsURL := b.cfg.RemoteURL
	var proc chrome
	if wsURL == "" {
		u, p, err := b.launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL, proc = u, p
	}

	rb, err := b.dial(wsURL)
	if err != nil {
		if proc != nil {
			proc.Kill()
			proc.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	b.browser = rb
	b.proc = proc
	b.log.Info("Browser connected", logger.Bool("remote", b.cfg.RemoteURL != ""))
	return rb, nil
}

// Render implements Renderer. The tab is closed on every return path.
func (b *Browser) Render(ctx context.Context, req RenderRequest) (*Page, error) {
	rb, err := b.connect()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(rb)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			logger.FromContext(ctx, b.log).Debug("Closing tab failed", logger.Error(closeErr))
		}
	}()

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavigationTimeout)
	defer cancel()
	p := page.Context(navCtx)

	if err = p.Navigate(req.URL); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", req.URL, err)
	}
	if err = p.WaitLoad(); err != nil {
		logger.FromContext(ctx, b.log).Warn("Page load wait failed", logger.String("url", req.URL), logger.Error(err))
	}
	if req.WaitSelector != "" {
		if _, err = p.Element(req.WaitSelector); err != nil {
			return nil, fmt.Errorf("browser: wait for %q: %w", req.WaitSelector, err)
		}
	}
	for range req.Scrolls {
		if err = p.Mouse.Scroll(0, scrollStep, 1); err != nil {
			break
		}
		if !sleep(navCtx, b.cfg.SettleDelay) {
			break
		}
	}
	if req.WaitSelector == "" {
		sleep(navCtx, b.cfg.SettleDelay)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("browser: read DOM: %w", err)
	}
	finalURL := req.URL
	if info, infoErr := p.Info(); infoErr == nil && info.URL != "" {
		finalURL = info.URL
	}
	return &Page{HTML: html, FinalURL: finalURL}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.proc != nil {
		b.proc.Cleanup()
		b.proc = nil
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
