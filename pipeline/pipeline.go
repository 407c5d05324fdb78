package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"time"

	"newsbrief/types"
	"newsbrief/vector"
)

// Stage identifies one filter stage for drop accounting.
type Stage string

const (
	StageValidation Stage = "validation"
	StageRecency    Stage = "recency"
	StageDomain     Stage = "domain"
	StageCluster    Stage = "cluster"
	StageExactID    Stage = "exact_id"
	StageHash       Stage = "content_hash"
	StageFuzzy      Stage = "fuzzy_title"
	StageEntity     Stage = "entity_fingerprint"
	StageSemantic   Stage = "semantic"
)

// FingerprintStore is the persistent dedup-key contract consulted by
// stages 1-4. Keys are append-only; Put after a pass is immediate
// (write-as-you-pass).
type FingerprintStore interface {
	Exists(ctx context.Context, kind types.FingerprintKind, key string) (bool, error)
	Put(ctx context.Context, kind types.FingerprintKind, key string) error
	ListRecent(ctx context.Context, kind types.FingerprintKind, limit int) ([]string, error)
}

// VectorIndex is the similarity lookup contract consulted by stage 5.
type VectorIndex interface {
	Query(ctx context.Context, embedding []float32, topK int) ([]vector.Neighbor, error)
	Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]interface{}) error
}

// Embedder turns text into embedding vectors for stage 5.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// RecordCreator persists the StoredRecord of an item that cleared every
// stage.
type RecordCreator interface {
	Create(ctx context.Context, rec *types.StoredRecord) error
}

// Config tunes the pipeline. Zero values select the documented defaults.
type Config struct {
	RecencyWindow    time.Duration  // stage -2 window
	TrustRanks       map[string]int // stage -1 allow-list; lower rank = higher trust
	ClusterThreshold float64        // stage 0, inclusive
	FuzzyThreshold   float64        // stage 3, inclusive
	SemanticLimit    float64        // stage 5, inclusive
	SemanticTopK     int
	RecentTitleLimit int // corpus keys consulted by stages 3-4
	BatchSize        int // output truncation size
}

// Report summarizes one pipeline run for observability. Dropped counts
// are per stage; Stored counts every new Pending record, Selected holds
// the truncated output batch.
type Report struct {
	Received int                   `json:"received"`
	Dropped  map[Stage]int         `json:"dropped"`
	Stored   int                   `json:"stored"`
	Selected []*types.StoredRecord `json:"selected"`
	Reasons  map[string]string     `json:"reasons,omitempty"`
}

func newReport(received int) *Report {
	return &Report{
		Received: received,
		Dropped:  make(map[Stage]int),
		Reasons:  make(map[string]string),
	}
}

func (r *Report) drop(stage Stage, item *types.CandidateItem, reason string) {
	r.Dropped[stage]++
	r.Reasons[item.ExternalID] = reason
	log.Printf("  [DROP %s] %q: %s", stage, truncate(item.Title, 70), reason)
}

// Pipeline runs the seven-stage deduplication filter over candidate
// batches. One batch at a time; the caller must not overlap runs against
// the same stores.
type Pipeline struct {
	fingerprints FingerprintStore
	index        VectorIndex
	embedder     Embedder
	records      RecordCreator
	extractor    EntityExtractor
	cfg          Config

	now func() time.Time
}

// New constructs a Pipeline. A nil extractor selects the prose-backed
// default.
func New(fingerprints FingerprintStore, index VectorIndex, embedder Embedder, records RecordCreator, extractor EntityExtractor, cfg Config) (*Pipeline, error) {
	if fingerprints == nil || index == nil || embedder == nil || records == nil {
		return nil, fmt.Errorf("all pipeline dependencies are required")
	}
	if extractor == nil {
		extractor = ProseExtractor{}
	}
	return &Pipeline{
		fingerprints: fingerprints,
		index:        index,
		embedder:     embedder,
		records:      records,
		extractor:    extractor,
		cfg:          applyConfigDefaults(cfg),
		now:          time.Now,
	}, nil
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.RecencyWindow == 0 {
		cfg.RecencyWindow = 4 * time.Hour
	}
	if cfg.ClusterThreshold == 0 {
		cfg.ClusterThreshold = 0.70
	}
	if cfg.FuzzyThreshold == 0 {
		cfg.FuzzyThreshold = 0.50
	}
	if cfg.SemanticLimit == 0 {
		cfg.SemanticLimit = 0.70
	}
	if cfg.SemanticTopK == 0 {
		cfg.SemanticTopK = 5
	}
	if cfg.RecentTitleLimit == 0 {
		cfg.RecentTitleLimit = 300
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 30
	}
	return cfg
}

// Run executes stages -2..5 over the batch. Items surviving every stage
// are persisted as Pending records; the report's Selected field holds
// the newest BatchSize of them. A backing-store failure aborts the
// whole batch; keys already written stand and are safe to retry against.
func (p *Pipeline) Run(ctx context.Context, items []*types.CandidateItem) (*Report, error) {
	report := newReport(len(items))

	// Stage -2 (recency) and -1 (domain trust), plus basic validation.
	now := p.now()
	var batch []*types.CandidateItem
	for _, item := range items {
		if err := item.Validate(); err != nil {
			report.drop(StageValidation, item, err.Error())
			continue
		}
		if now.Sub(item.PublishedAt) > p.cfg.RecencyWindow {
			report.drop(StageRecency, item,
				fmt.Sprintf("published %s ago exceeds window %s",
					now.Sub(item.PublishedAt).Round(time.Minute), p.cfg.RecencyWindow))
			continue
		}
		if _, trusted := p.cfg.TrustRanks[item.Domain]; !trusted {
			report.drop(StageDomain, item,
				fmt.Sprintf("domain %q not allow-listed", item.Domain))
			continue
		}
		batch = append(batch, item)
	}

	// Stage 0: in-batch event clustering.
	kept, clustered := clusterEvents(batch, p.cfg.TrustRanks, p.cfg.ClusterThreshold)
	for _, d := range clustered {
		report.drop(StageCluster, d.item,
			fmt.Sprintf("same event as %q (similarity=%.2f, kept %s)",
				truncate(d.winner.Title, 70), d.score, d.winner.Domain))
	}

	fuzzyIndex := newTwoTierIndex(p.fingerprints, types.KindFuzzyTitle, p.cfg.RecentTitleLimit)
	entityIndex := newTwoTierIndex(p.fingerprints, types.KindEntity, p.cfg.RecentTitleLimit)

	var survivors []*types.StoredRecord
	for _, item := range kept {
		rec, dropped, err := p.runItem(ctx, item, fuzzyIndex, entityIndex, report)
		if err != nil {
			return report, fmt.Errorf("pipeline aborted: %w", err)
		}
		if dropped {
			continue
		}
		report.Stored++
		survivors = append(survivors, rec)
	}

	// Output truncation: newest publishedAt first. Survivors beyond the
	// cutoff stay Pending and are picked up by a later queue pull.
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].PublishedAt.After(survivors[j].PublishedAt)
	})
	if len(survivors) > p.cfg.BatchSize {
		survivors = survivors[:p.cfg.BatchSize]
	}
	report.Selected = survivors

	log.Printf("Pipeline run: received=%d stored=%d selected=%d dropped=%d",
		report.Received, report.Stored, len(report.Selected), len(report.Reasons))
	return report, nil
}

// runItem walks one item through stages 1-5 in strict order with early
// exit on the first match. Each passed stage writes its key before the
// next stage runs.
func (p *Pipeline) runItem(ctx context.Context, item *types.CandidateItem, fuzzyIndex, entityIndex *twoTierIndex, report *Report) (*types.StoredRecord, bool, error) {
	// Stage 1: exact external ID.
	exists, err := p.fingerprints.Exists(ctx, types.KindID, item.ExternalID)
	if err != nil {
		return nil, false, err
	}
	if exists {
		report.drop(StageExactID, item, "external id already stored")
		return nil, true, nil
	}
	if err := p.fingerprints.Put(ctx, types.KindID, item.ExternalID); err != nil {
		return nil, false, err
	}

	// Stage 2: content hash.
	hash := ContentHash(item)
	exists, err = p.fingerprints.Exists(ctx, types.KindHash, hash)
	if err != nil {
		return nil, false, err
	}
	if exists {
		report.drop(StageHash, item, "content hash already stored")
		return nil, true, nil
	}
	if err := p.fingerprints.Put(ctx, types.KindHash, hash); err != nil {
		return nil, false, err
	}

	// Stage 3: fuzzy title, in-batch tier first.
	fuzzyKey := NormalizeTitle(item.Title)
	matched, found, err := fuzzyIndex.matchFuzzy(ctx, func(stored string) bool {
		return TokenSetSimilarity(fuzzyKey, stored) >= p.cfg.FuzzyThreshold
	})
	if err != nil {
		return nil, false, err
	}
	if found {
		report.drop(StageFuzzy, item, fmt.Sprintf("fuzzy duplicate of %q", truncate(matched, 60)))
		return nil, true, nil
	}
	if err := fuzzyIndex.accept(ctx, fuzzyKey); err != nil {
		return nil, false, err
	}

	// Stage 4: entity fingerprint. No entities means no comparison basis.
	fingerprint := EntityFingerprint(p.extractor.Extract(item.Title, item.Description))
	if fingerprint != "" {
		exists, err = entityIndex.containsExact(ctx, fingerprint)
		if err != nil {
			return nil, false, err
		}
		if exists {
			report.drop(StageEntity, item, "entity fingerprint already present")
			return nil, true, nil
		}
		if err := entityIndex.accept(ctx, fingerprint); err != nil {
			return nil, false, err
		}
	}

	// Stage 5: semantic similarity. An embedding failure is not a store
	// failure; the item passes without a semantic check.
	embeddingID := ""
	text := item.Title + " " + item.Description
	embeddings, err := p.embedder.EmbedTexts(ctx, []string{text})
	if err != nil || len(embeddings) != 1 {
		log.Printf("Warning: embedding failed for %q, skipping semantic check: %v",
			truncate(item.Title, 60), err)
	} else {
		embedding := embeddings[0]
		neighbors, err := p.index.Query(ctx, embedding, p.cfg.SemanticTopK)
		if err != nil {
			return nil, false, err
		}
		for _, n := range neighbors {
			if n.Score >= p.cfg.SemanticLimit {
				report.drop(StageSemantic, item,
					fmt.Sprintf("semantic duplicate of %s (score=%.3f)", n.ID, n.Score))
				return nil, true, nil
			}
		}

		embeddingID = item.ExternalID
		metadata := map[string]interface{}{
			"title":        item.Title,
			"domain":       item.Domain,
			"published_at": item.PublishedAt.Format(time.RFC3339),
		}
		if err := p.index.Upsert(ctx, embeddingID, embedding, metadata); err != nil {
			return nil, false, err
		}
	}

	rec := &types.StoredRecord{
		ExternalID:        item.ExternalID,
		Title:             item.Title,
		Description:       item.Description,
		URL:               item.URL,
		Domain:            item.Domain,
		ContentHash:       hash,
		FuzzyTitleKey:     fuzzyKey,
		EntityFingerprint: fingerprint,
		EmbeddingID:       embeddingID,
		Status:            types.StatusPending,
		PublishedAt:       item.PublishedAt,
		CreatedAt:         p.now(),
	}
	if err := p.records.Create(ctx, rec); err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

// ContentHash derives the stage-2 key: SHA-256 over title, description
// and URL.
func ContentHash(item *types.CandidateItem) string {
	h := sha256.Sum256([]byte(item.Title + "|" + item.Description + "|" + item.URL))
	return hex.EncodeToString(h[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
