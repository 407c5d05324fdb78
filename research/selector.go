package research

import (
	"sort"
	"strings"
	"time"

	"newsbrief/search"
	"newsbrief/types"
)

const maxSelectedURLs = 3

// Score weights, highest signal first: fragments that speak to unmet
// targets beat a trusted domain, which beats freshness, which beats
// plain query overlap.
const (
	weightFragmentRelevance = 4.0
	weightDomainTrust       = 3.0
	weightRecency           = 2.0
	weightQueryRelevance    = 1.0
)

// SelectURLs ranks search results for deep extraction and returns the
// top three URLs. Ties keep provider order.
func SelectURLs(results []search.Result, targets []types.ResearchTarget, query string, trustRanks map[string]int, now time.Time) []string {
	var unmet []string
	for _, t := range targets {
		if !t.Achieved {
			unmet = append(unmet, t.Description)
		}
	}

	type scored struct {
		url   string
		score float64
		order int
	}

	seen := make(map[string]struct{})
	var candidates []scored
	for i, r := range results {
		if r.URL == "" {
			continue
		}
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}

		score := weightFragmentRelevance*fragmentRelevance(r.Fragments, unmet) +
			weightDomainTrust*domainTrust(r.Domain, trustRanks) +
			weightRecency*recencyScore(r.PublishedAt, now) +
			weightQueryRelevance*tokenOverlap(r.Title, query)
		candidates = append(candidates, scored{url: r.URL, score: score, order: i})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	n := len(candidates)
	if n > maxSelectedURLs {
		n = maxSelectedURLs
	}
	urls := make([]string, 0, n)
	for _, c := range candidates[:n] {
		urls = append(urls, c.url)
	}
	return urls
}

// fragmentRelevance is the best token overlap between any fragment and
// any unmet target description.
func fragmentRelevance(fragments, unmetTargets []string) float64 {
	var best float64
	for _, f := range fragments {
		for _, t := range unmetTargets {
			if s := tokenOverlap(f, t); s > best {
				best = s
			}
		}
	}
	return best
}

// domainTrust maps trust rank into 0..1, rank 0 scoring highest.
// Unranked domains score zero.
func domainTrust(domain string, trustRanks map[string]int) float64 {
	rank, ok := trustRanks[domain]
	if !ok {
		return 0
	}
	if len(trustRanks) <= 1 {
		return 1
	}
	return 1 - float64(rank)/float64(len(trustRanks))
}

// recencyScore decays linearly over a week. Unknown publish dates score
// zero rather than guessing.
func recencyScore(publishedAt, now time.Time) float64 {
	if publishedAt.IsZero() {
		return 0
	}
	age := now.Sub(publishedAt)
	if age < 0 {
		age = 0
	}
	const horizon = 7 * 24 * time.Hour
	if age >= horizon {
		return 0
	}
	return 1 - float64(age)/float64(horizon)
}

// tokenOverlap is the fraction of b's tokens present in a, both
// lowercased. Order-free and cheap; rankings only need relative signal.
func tokenOverlap(a, b string) float64 {
	bTokens := strings.Fields(strings.ToLower(b))
	if len(bTokens) == 0 {
		return 0
	}
	aSet := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(a)) {
		aSet[t] = struct{}{}
	}
	matched := 0
	for _, t := range bTokens {
		if _, ok := aSet[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(bTokens))
}
