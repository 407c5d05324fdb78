package feeds

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"newsbrief/config"
	"newsbrief/types"

	"github.com/mmcdole/gofeed"
)

// Fetch retrieves and parses an RSS/Atom feed, returning candidate items
// for the pipeline. maxCount caps how many entries are taken per feed.
func Fetch(ctx context.Context, feedURL string, maxCount int) ([]*types.CandidateItem, error) {
	parser := gofeed.NewParser()
	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	count := min(len(feed.Items), maxCount)
	items := make([]*types.CandidateItem, 0, count)

	for i := 0; i < count; i++ {
		entry := feed.Items[i]

		// Use GUID if available, otherwise generate from URL
		id := entry.GUID
		if id == "" && entry.Link != "" {
			id = types.GenerateID(entry.Link)
		}

		var publishedAt time.Time
		if entry.PublishedParsed != nil {
			publishedAt = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			publishedAt = *entry.UpdatedParsed
		}

		description := entry.Description
		if description == "" {
			description = entry.Content
		}

		items = append(items, &types.CandidateItem{
			ExternalID:  id,
			Title:       entry.Title,
			Description: description,
			URL:         entry.Link,
			Domain:      domainOf(entry.Link),
			PublishedAt: publishedAt,
			FetchedAt:   time.Now(),
		})
	}

	return items, nil
}

// FetchAll pulls every configured feed and concatenates the results.
// A feed that fails to parse is skipped; the error list is returned so
// the caller can log it.
func FetchAll(ctx context.Context, feedURLs []string, maxPerFeed int) ([]*types.CandidateItem, []error) {
	var items []*types.CandidateItem
	var errs []error

	for _, u := range feedURLs {
		fetched, err := Fetch(ctx, u, maxPerFeed)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		items = append(items, fetched...)
	}
	return items, errs
}

func domainOf(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return ""
	}
	return config.NormalizeDomain(u.Host)
}
