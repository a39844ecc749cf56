package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type ddgProvider struct {
	cfg DDGConfig
}

func newDDGProvider(cfg *Config) Provider {
	if cfg == nil {
		return nil
	}
	if !isEnabled(cfg.DDG.Enabled, true) {
		return nil
	}
	return &ddgProvider{cfg: cfg.DDG}
}

func (p *ddgProvider) Name() string {
	return ProviderDuckDuckGo
}

// Search uses the DuckDuckGo instant answer API. It returns related topics
// as results; the abstract, when present, is surfaced as the first result.
func (p *ddgProvider) Search(ctx context.Context, req Request) (*Response, error) {
	apiURL := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.QueryEscape(req.Query))

	start := time.Now()
	data, _, err := getJSON(ctx, apiURL, nil, p.cfg.TimeoutSecs)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Heading       string `json:"Heading"`
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		RelatedTopics []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	count := req.Count
	if count <= 0 {
		count = DefaultSearchCount
	}

	results := make([]Result, 0, count)
	if strings.TrimSpace(resp.AbstractText) != "" {
		results = append(results, Result{
			Title:       resp.Heading,
			URL:         resp.AbstractURL,
			Description: strings.TrimSpace(resp.AbstractText),
			SiteName:    resolveSiteName(resp.AbstractURL),
		})
	}
	for _, topic := range resp.RelatedTopics {
		if len(results) >= count {
			break
		}
		text := strings.TrimSpace(topic.Text)
		if text == "" {
			continue
		}
		results = append(results, Result{
			Title:       text,
			URL:         topic.FirstURL,
			Description: text,
			SiteName:    resolveSiteName(topic.FirstURL),
		})
	}

	return &Response{
		Query:     req.Query,
		Provider:  ProviderDuckDuckGo,
		Count:     len(results),
		TookMs:    time.Since(start).Milliseconds(),
		Results:   results,
		NoResults: len(results) == 0,
	}, nil
}
