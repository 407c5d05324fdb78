package pipeline

import (
	"sort"

	"newsbrief/types"
)

// clusterDrop records one item absorbed into an event cluster.
type clusterDrop struct {
	item   *types.CandidateItem
	winner *types.CandidateItem
	score  float64
}

const unknownTrustRank = 1 << 20

// clusterEvents groups same-event items within the batch by fuzzy title
// similarity and keeps one representative per cluster. Representatives
// are chosen by trust rank (lower wins), then earliest publishedAt, then
// lexical external ID as the final deterministic tie-break.
func clusterEvents(items []*types.CandidateItem, trustRanks map[string]int, threshold float64) ([]*types.CandidateItem, []clusterDrop) {
	if len(items) == 0 {
		return nil, nil
	}

	rank := func(item *types.CandidateItem) int {
		if r, ok := trustRanks[item.Domain]; ok {
			return r
		}
		return unknownTrustRank
	}

	ordered := make([]*types.CandidateItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := rank(ordered[i]), rank(ordered[j])
		if ri != rj {
			return ri < rj
		}
		if !ordered[i].PublishedAt.Equal(ordered[j].PublishedAt) {
			return ordered[i].PublishedAt.Before(ordered[j].PublishedAt)
		}
		return ordered[i].ExternalID < ordered[j].ExternalID
	})

	normalized := make([]string, len(ordered))
	for i, item := range ordered {
		normalized[i] = NormalizeTitle(item.Title)
	}

	absorbed := make([]bool, len(ordered))
	var kept []*types.CandidateItem
	var dropped []clusterDrop

	for i, rep := range ordered {
		if absorbed[i] {
			continue
		}
		kept = append(kept, rep)

		for j := i + 1; j < len(ordered); j++ {
			if absorbed[j] {
				continue
			}
			score := TokenSortSimilarity(normalized[i], normalized[j])
			if score >= threshold {
				absorbed[j] = true
				dropped = append(dropped, clusterDrop{
					item:   ordered[j],
					winner: rep,
					score:  score,
				})
			}
		}
	}

	return kept, dropped
}
