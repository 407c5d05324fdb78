package pipeline

import (
	"testing"
	"time"

	"newsbrief/types"
)

func clusterItem(id, title, domain string, publishedAt time.Time) *types.CandidateItem {
	return &types.CandidateItem{
		ExternalID:  id,
		Title:       title,
		Domain:      domain,
		PublishedAt: publishedAt,
	}
}

func TestClusterKeepsMostTrustedSource(t *testing.T) {
	trustRanks := map[string]int{"first.example": 0, "second.example": 1}
	at := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	kept, dropped := clusterEvents([]*types.CandidateItem{
		clusterItem("b", "Parliament passes the new budget bill", "second.example", at),
		clusterItem("a", "Parliament passes new budget bill", "first.example", at.Add(time.Minute)),
	}, trustRanks, 0.70)

	if len(kept) != 1 || len(dropped) != 1 {
		t.Fatalf("expected 1 kept and 1 dropped, got %d/%d", len(kept), len(dropped))
	}
	if kept[0].ExternalID != "a" {
		t.Fatalf("expected the more trusted source to win, kept %s", kept[0].ExternalID)
	}
	if dropped[0].winner.ExternalID != "a" {
		t.Fatalf("expected drop to reference the winner, got %s", dropped[0].winner.ExternalID)
	}
}

func TestClusterTieBreaksOnEarliestPublication(t *testing.T) {
	trustRanks := map[string]int{"first.example": 0}
	at := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	kept, _ := clusterEvents([]*types.CandidateItem{
		clusterItem("later", "Storm warning issued for the coast", "first.example", at.Add(time.Minute)),
		clusterItem("earlier", "Storm warning issued for coast", "first.example", at),
	}, trustRanks, 0.70)

	if len(kept) != 1 {
		t.Fatalf("expected 1 kept, got %d", len(kept))
	}
	if kept[0].ExternalID != "earlier" {
		t.Fatalf("expected the earliest item to win, kept %s", kept[0].ExternalID)
	}
}

func TestClusterFullTieBreaksOnExternalID(t *testing.T) {
	trustRanks := map[string]int{"first.example": 0}
	at := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	kept, _ := clusterEvents([]*types.CandidateItem{
		clusterItem("zzz", "Election results announced tonight", "first.example", at),
		clusterItem("aaa", "Election results announced tonight", "first.example", at),
	}, trustRanks, 0.70)

	if len(kept) != 1 {
		t.Fatalf("expected 1 kept, got %d", len(kept))
	}
	if kept[0].ExternalID != "aaa" {
		t.Fatalf("expected lexical ID tie-break, kept %s", kept[0].ExternalID)
	}
}

func TestClusterLeavesDistinctEventsAlone(t *testing.T) {
	trustRanks := map[string]int{"first.example": 0}
	at := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	kept, dropped := clusterEvents([]*types.CandidateItem{
		clusterItem("a", "Parliament passes the new budget bill", "first.example", at),
		clusterItem("b", "Championship final ends in penalty shootout", "first.example", at),
	}, trustRanks, 0.70)

	if len(kept) != 2 || len(dropped) != 0 {
		t.Fatalf("expected both distinct events kept, got %d kept %d dropped", len(kept), len(dropped))
	}
}

func TestClusterUnknownDomainRanksLast(t *testing.T) {
	trustRanks := map[string]int{"first.example": 5}
	at := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	kept, _ := clusterEvents([]*types.CandidateItem{
		clusterItem("u", "Major outage hits cloud provider", "mystery.example", at),
		clusterItem("k", "Major outage hits the cloud provider", "first.example", at.Add(time.Minute)),
	}, trustRanks, 0.70)

	if kept[0].ExternalID != "k" {
		t.Fatalf("expected the ranked domain to beat the unknown one, kept %s", kept[0].ExternalID)
	}
}
