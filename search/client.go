package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"newsbrief/config"
	"newsbrief/types"
)

const (
	maxResults         = 10
	fragmentsPerResult = 5
)

// Result is one evidence hit from the search provider: where it came
// from, how fresh it is, and up to five short content fragments.
type Result struct {
	Title       string
	URL         string
	Domain      string
	PublishedAt time.Time
	Relevance   float64
	Fragments   []string
}

// ClientConfig holds search provider settings.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls a Tavily-compatible search endpoint: a single POST with
// the query, answered by scored results with content snippets.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient builds a search client. The timeout bounds each Search call
// end to end.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("search base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type searchRequest struct {
	Query           string `json:"query"`
	MaxResults      int    `json:"max_results"`
	SearchDepth     string `json:"search_depth"`
	ChunksPerSource int    `json:"chunks_per_source"`
	Topic           string `json:"topic"`
}

type searchResponse struct {
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
}

// Search runs one query and returns at most ten results, each carrying
// at most five fragments. Transport and deadline failures come back as
// ExternalCallError so the caller can tell a timeout from a refusal.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	payload := searchRequest{
		Query:           query,
		MaxResults:      maxResults,
		SearchDepth:     "basic",
		ChunksPerSource: fragmentsPerResult,
		Topic:           "news",
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.ExternalCallError{
			Provider: "search",
			Timeout:  isDeadline(err),
			Err:      err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.ExternalCallError{Provider: "search", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.ExternalCallError{
			Provider: "search",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &types.ExternalCallError{Provider: "search", Err: err}
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if len(results) >= maxResults {
			break
		}
		results = append(results, Result{
			Title:       r.Title,
			URL:         r.URL,
			Domain:      domainOf(r.URL),
			PublishedAt: parsePublished(r.PublishedDate),
			Relevance:   r.Score,
			Fragments:   splitFragments(r.Content, fragmentsPerResult),
		})
	}
	return results, nil
}

func isDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return config.NormalizeDomain(u.Hostname())
}

// parsePublished handles the date formats providers actually send.
func parsePublished(raw string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02", time.RFC1123, time.RFC1123Z} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// splitFragments breaks a content snippet into at most max fragments,
// preferring provider chunk separators, then sentence boundaries.
func splitFragments(content string, max int) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	parts := strings.Split(content, "\n")
	if len(parts) == 1 {
		parts = splitSentences(content)
	}

	var fragments []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fragments = append(fragments, p)
		}
		if len(fragments) == max {
			break
		}
	}
	return fragments
}

func splitSentences(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' || s[i] == '!' || s[i] == '?' {
			if part := strings.TrimSpace(s[start : i+1]); part != "" {
				parts = append(parts, part)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}
