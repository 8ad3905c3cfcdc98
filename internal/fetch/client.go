// Package fetch provides the polite HTTP client shared by the classifier and the extraction adapters.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

// ErrDisallowed is returned when robots.txt forbids the URL.
var ErrDisallowed = errors.New("disallowed by robots.txt")

const (
	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
)

// Response is a fully read HTTP response.
type Response struct {
	// URL is the requested URL; FinalURL is where redirects ended.
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Client fetches pages with per-host rate limiting, optional robots.txt checks
// and retry with exponential backoff on transient failures.
type Client struct {
	http   *http.Client
	cfg    Config
	robots *RobotsChecker
	log    logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates a Client.
func NewClient(cfg Config, log logger.Logger) *Client {
	cfg.SetDefaults()

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}
	hc := &http.Client{Timeout: cfg.Timeout, Transport: transport}

	c := &Client{
		http:     hc,
		cfg:      cfg,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
	}
	if cfg.RespectRobots {
		c.robots = NewRobotsChecker(hc, cfg.UserAgent, cfg.RobotsCacheTTL)
	}
	return c
}

// HTTPClient exposes the underlying client for libraries that manage their own requests.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// UserAgent returns the configured user agent.
func (c *Client) UserAgent() string {
	return c.cfg.UserAgent
}

// Fetch GETs rawURL. Transient failures are retried; non-2xx responses are returned
// as *crawlerr.Error.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, crawlerr.Parse(fmt.Errorf("invalid url %q", rawURL), rawURL)
	}
	host := strings.ToLower(parsed.Host)

	if c.robots != nil {
		allowed, robotsErr := c.robots.IsAllowed(ctx, rawURL)
		if robotsErr != nil {
			return nil, crawlerr.Network(robotsErr, rawURL)
		}
		if !allowed {
			return nil, &crawlerr.Error{Kind: crawlerr.KindNetwork, Level: crawlerr.LevelError, URL: rawURL, Cause: ErrDisallowed}
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff
	policy.MaxInterval = c.cfg.MaxBackoff
	policy.MaxElapsedTime = 0

	var resp *Response
	attempt := 0
	op := func() error {
		attempt++
		r, doErr := c.do(ctx, host, rawURL)
		if doErr == nil {
			resp = r
			return nil
		}
		if ctx.Err() != nil || !crawlerr.IsRetryable(doErr) {
			return backoff.Permanent(doErr)
		}
		logger.FromContext(ctx, c.log).Debug("Retrying fetch",
			logger.String("url", rawURL),
			logger.Int("attempt", attempt),
			logger.Error(doErr),
		)
		return doErr
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxAttempts-1)), ctx)
	if retryErr := backoff.Retry(op, b); retryErr != nil {
		return nil, retryErr
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, host, rawURL string) (*Response, error) {
	if err := c.limiter(host).Wait(ctx); err != nil {
		return nil, crawlerr.Network(err, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, crawlerr.Parse(fmt.Errorf("new request: %w", err), rawURL)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.8,text/calendar;q=0.8,*/*;q=0.5")

	httpResp, err := c.http.Do(req) //nolint:gosec // URL comes from a configured source
	if err != nil {
		return nil, crawlerr.Network(err, rawURL)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, c.cfg.MaxBodyBytes))
		return nil, crawlerr.FromHTTPStatus(httpResp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return nil, crawlerr.Network(fmt.Errorf("read body: %w", err), rawURL)
	}

	return &Response{
		URL:         rawURL,
		FinalURL:    httpResp.Request.URL.String(),
		StatusCode:  httpResp.StatusCode,
		ContentType: httpResp.Header.Get("Content-Type"),
		Header:      httpResp.Header,
		Body:        body,
	}, nil
}

// limiter returns the host's limiter, slowed to the robots.txt crawl-delay when one is declared.
func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.cfg.RequestsPerSecond), c.cfg.Burst)
		c.limiters[host] = l
	}
	if c.robots != nil {
		if delay := c.robots.CrawlDelay(host); delay > 0 && rate.Every(delay) < l.Limit() {
			l.SetLimit(rate.Every(delay))
		}
	}
	return l
}
