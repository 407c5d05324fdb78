package research

import (
	"log"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// ExtractionResult is the outcome of one deep extraction. Err is set on
// failure; a failed URL never blocks the others.
type ExtractionResult struct {
	URL     string
	Title   string
	Content string
	Excerpt string
	Err     error
}

// Extractor pulls readable article text from a URL.
type Extractor interface {
	Extract(url string) ExtractionResult
}

// ReadabilityExtractor implements Extractor with go-readability. The
// timeout bounds each fetch; expiry fails that URL only.
type ReadabilityExtractor struct {
	Timeout time.Duration
}

func (e ReadabilityExtractor) timeout() time.Duration {
	if e.Timeout == 0 {
		return 30 * time.Second
	}
	return e.Timeout
}

// Extract fetches and strips one article.
func (e ReadabilityExtractor) Extract(url string) ExtractionResult {
	article, err := readability.FromURL(url, e.timeout())
	if err != nil {
		return ExtractionResult{URL: url, Err: err}
	}
	return ExtractionResult{
		URL:     url,
		Title:   article.Title,
		Content: article.TextContent,
		Excerpt: article.Excerpt,
	}
}

// ExtractAll runs deep extraction over the selected URLs concurrently
// and joins before returning. Results keep input order; failures stay in
// the slice with Err set so the caller can count successes.
func ExtractAll(extractor Extractor, urls []string) []ExtractionResult {
	results := make([]ExtractionResult, len(urls))
	var wg sync.WaitGroup

	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			results[i] = extractor.Extract(url)
			if results[i].Err != nil {
				log.Printf("Warning: extraction failed for %s: %v", url, results[i].Err)
			}
		}(i, url)
	}

	wg.Wait()
	return results
}
