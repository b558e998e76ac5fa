package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/core"
	"github.com/crewdesk/crewdesk/pkg/log"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

const maxResponseSize = 1 << 20 // 1MB per page

// Page is one crawled page with its readable text and outgoing same-origin
// links.
type Page struct {
	URL     string
	Title   string
	Content string
	Links   []string
}

// Crawler walks a site breadth-first, same-origin only, bounded by a page
// budget.
type Crawler struct {
	client    *http.Client
	maxPages  int
	sanitizer *bluemonday.Policy
}

func New(cfg *config.CrawlerConfig) *Crawler {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 60
	}
	return &Crawler{
		client:    &http.Client{Timeout: cfg.FetchTimeout},
		maxPages:  maxPages,
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// Crawl fetches up to maxPages pages reachable from startURL, never leaving
// its origin. A single page's failure is logged and skipped; only an invalid
// start URL fails the whole crawl.
func (c *Crawler) Crawl(ctx context.Context, startURL string) ([]Page, error) {
	start, err := url.Parse(startURL)
	if err != nil || start.Host == "" {
		return nil, fmt.Errorf("invalid start url %q: %w", startURL, err)
	}
	origin := start.Scheme + "://" + start.Host

	logger := log.FromCtx(ctx)
	visited := make(map[string]bool)
	queue := []string{startURL}
	var pages []Page

	for len(queue) > 0 && len(pages) < c.maxPages {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		pageURL := queue[0]
		queue = queue[1:]

		if visited[pageURL] {
			continue
		}
		visited[pageURL] = true

		page, err := c.fetchPage(ctx, pageURL, origin)
		if err != nil {
			logger.Warn().Err(err).Str("url", pageURL).Msg("skipping page")
			continue
		}
		pages = append(pages, *page)

		for _, link := range page.Links {
			if !visited[link] && len(pages)+len(queue) < c.maxPages {
				queue = append(queue, link)
			}
		}
	}

	logger.Debug().Int("pages", len(pages)).Str("origin", origin).Msg("crawl finished")
	return pages, nil
}

func (c *Crawler) fetchPage(ctx context.Context, pageURL, origin string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", core.CrewDeskUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	stripNonContent(doc)

	title := extractTitle(doc)
	if title == "" {
		title = pageURL
	}

	content, err := c.extractContent(doc)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}

	links := extractLinks(doc, pageURL, origin)

	return &Page{
		URL:     pageURL,
		Title:   title,
		Content: content,
		Links:   links,
	}, nil
}
