// Package preview fetches a web page and extracts its title and description,
// used to upgrade thin search snippets during research.
package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultMaxBytes = 1 << 20
	userAgent       = "Mozilla/5.0 (compatible; replybot/1.0)"
)

// Page is the extracted metadata of a fetched page.
type Page struct {
	URL         string
	Title       string
	Description string
	SiteName    string
}

// Fetcher fetches pages and extracts OpenGraph metadata with a goquery
// fallback when the OpenGraph tags are incomplete.
type Fetcher struct {
	http     *http.Client
	maxBytes int64
	log      zerolog.Logger
}

func NewFetcher(log zerolog.Logger) *Fetcher {
	return &Fetcher{
		http:     &http.Client{Timeout: defaultTimeout},
		maxBytes: defaultMaxBytes,
		log:      log.With().Str("component", "preview").Logger(),
	}
}

// Fetch retrieves the page at urlStr and extracts its metadata.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(strings.NewReader(string(body))); err != nil {
		return nil, fmt.Errorf("failed to parse OpenGraph: %w", err)
	}

	page := &Page{
		URL:         og.URL,
		Title:       strings.TrimSpace(og.Title),
		Description: strings.TrimSpace(og.Description),
		SiteName:    og.SiteName,
	}
	if page.URL == "" {
		page.URL = urlStr
	}

	if page.Title == "" || page.Description == "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
		if err == nil {
			if page.Title == "" {
				page.Title = strings.TrimSpace(doc.Find("title").First().Text())
			}
			if page.Description == "" {
				page.Description = strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", ""))
			}
		}
	}
	return page, nil
}
