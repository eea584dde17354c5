package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ErrInvalidSeedURL rejects seeds that are not absolute http(s) URLs.
var ErrInvalidSeedURL = errors.New("crawler: seed must be an absolute http or https URL")

// Request describes one crawl run. Zero values fall back to the crawler
// config defaults.
type Request struct {
	SeedURL             string
	MaxPages            int
	FollowExternalLinks bool
	Concurrency         int
	Timeout             time.Duration
}

// Page is one successfully fetched and extracted page.
type Page struct {
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	Text       string    `json:"text"`
	Snippet    string    `json:"snippet,omitempty"`
	ImageCount int       `json:"image_count"`
	Links      []string  `json:"-"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Result aggregates one run. Pages are in fetch-completion order, not
// discovery order; page failures are listed, never raised.
type Result struct {
	BaseURL             string        `json:"base_url"`
	Pages               []Page        `json:"pages"`
	Errors              []*PageError  `json:"errors"`
	TotalPagesCrawled   int           `json:"total_pages_crawled"`
	TotalPagesRequested int           `json:"total_pages_requested"`
	Duration            time.Duration `json:"duration"`
}

// Crawler fetches pages breadth-first within a domain boundary under a
// bounded worker pool. It holds no per-run state: each run owns its own
// frontier, so concurrent runs cannot interfere.
type Crawler struct {
	httpClient *http.Client
	extractor  Extractor
	config     *Config
	logger     *zap.Logger
}

func New(httpClient *http.Client, extractor Extractor, config *Config, logger *zap.Logger) *Crawler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Crawler{
		httpClient: httpClient,
		extractor:  extractor,
		config:     config,
		logger:     logger,
	}
}

type fetchOutcome struct {
	page *Page
	err  *PageError
}

// ParseSeed validates and parses a seed URL. Only absolute http(s) URLs are
// crawlable.
func ParseSeed(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeedURL, raw)
	}
	return u, nil
}

// Crawl runs one breadth-first crawl from the seed. It stops when the
// frontier drains, when MaxPages pages have been fetched, or when ctx is
// cancelled; cancellation stops new fetches but lets in-flight ones finish.
func (c *Crawler) Crawl(ctx context.Context, req Request) (*Result, error) {
	seed, err := ParseSeed(req.SeedURL)
	if err != nil {
		return nil, err
	}

	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = c.config.DefaultMaxPages
	}
	if maxPages > c.config.MaxPagesCeiling {
		c.logger.Warn("max_pages clamped to ceiling",
			zap.Int("requested", maxPages),
			zap.Int("ceiling", c.config.MaxPagesCeiling))
		maxPages = c.config.MaxPagesCeiling
	}
	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = c.config.Concurrency
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.config.RequestTimeout
	}

	start := time.Now()
	frontier := NewFrontier()
	frontier.Enqueue(seed)

	result := &Result{
		BaseURL:             seed.Scheme + "://" + seed.Host,
		TotalPagesRequested: maxPages,
	}

	outcomes := make(chan fetchOutcome)
	inFlight := 0
	cancelled := false

	dispatch := func() {
		for inFlight < concurrency && len(result.Pages)+inFlight < maxPages {
			next, ok := frontier.Next()
			if !ok {
				return
			}
			inFlight++
			go func(u *url.URL) {
				outcomes <- c.fetchPage(ctx, u, timeout)
			}(next)
		}
	}

	handle := func(out fetchOutcome) {
		inFlight--
		if out.err != nil {
			c.logger.Warn("page fetch failed",
				zap.String("url", out.err.URL),
				zap.String("kind", string(out.err.Kind)),
				zap.Error(out.err.Err))
			result.Errors = append(result.Errors, out.err)
			return
		}
		result.Pages = append(result.Pages, *out.page)
		for _, link := range out.page.Links {
			u, err := url.Parse(link)
			if err != nil {
				continue
			}
			if !req.FollowExternalLinks && !sameHost(u, seed) {
				continue
			}
			frontier.Enqueue(u)
		}
	}

	dispatch()
	for inFlight > 0 {
		if cancelled {
			handle(<-outcomes)
			continue
		}
		select {
		case <-ctx.Done():
			cancelled = true
		case out := <-outcomes:
			handle(out)
			dispatch()
		}
	}

	result.TotalPagesCrawled = len(result.Pages)
	result.Duration = time.Since(start)
	c.logger.Info("crawl run completed",
		zap.String("seed", req.SeedURL),
		zap.Int("pages_crawled", result.TotalPagesCrawled),
		zap.Int("pages_failed", len(result.Errors)),
		zap.Int("urls_seen", frontier.VisitedCount()),
		zap.Duration("duration", result.Duration),
		zap.Bool("cancelled", cancelled))
	return result, nil
}

// fetchPage fetches one URL under its own deadline so a slow host cannot
// stall the run, then hands the HTML to the extractor.
func (c *Crawler) fetchPage(ctx context.Context, u *url.URL, timeout time.Duration) fetchOutcome {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fetchOutcome{err: newPageError(u.String(), 0, err)}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fetchOutcome{err: newPageError(u.String(), 0, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fetchOutcome{err: newPageError(u.String(), resp.StatusCode,
			fmt.Errorf("http status %d", resp.StatusCode))}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") &&
		!strings.Contains(contentType, "application/xhtml") {
		return fetchOutcome{err: newPageError(u.String(), resp.StatusCode,
			fmt.Errorf("unsupported content type %q", contentType))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
	if err != nil {
		return fetchOutcome{err: newPageError(u.String(), 0, err)}
	}

	extracted, err := c.extractor.Extract(string(body), u)
	if err != nil {
		return fetchOutcome{err: newPageError(u.String(), 0, fmt.Errorf("extract: %w", err))}
	}

	return fetchOutcome{page: &Page{
		URL:        u.String(),
		Title:      extracted.Title,
		Text:       extracted.Text,
		Snippet:    snippet(extracted.Text, 500),
		ImageCount: extracted.ImageCount,
		Links:      extracted.Links,
		FetchedAt:  time.Now().UTC(),
	}}
}

func sameHost(u, seed *url.URL) bool {
	return strings.EqualFold(u.Host, seed.Host)
}

func snippet(text string, max int) string {
	if len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max]
}
