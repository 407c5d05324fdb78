package research

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"newsbrief/llm"
	"newsbrief/search"
	"newsbrief/types"
)

// State is one phase of the research loop for a single record.
type State string

const (
	StateClassifying       State = "Classifying"
	StatePlanning          State = "Planning"
	StateSearching         State = "Searching"
	StateAnalyzingEvidence State = "AnalyzingEvidence"
	StateExtracting        State = "Extracting"
	StateSynthesizing      State = "Synthesizing"
	StateEvaluatingTargets State = "EvaluatingTargets"
	StateDone              State = "Done"
)

// MaxIterations caps the search rounds per record. The loop always
// finishes by this bound, achieved targets or not.
const MaxIterations = 3

// LanguageModel is everything the loop asks of the model.
type LanguageModel interface {
	Classify(ctx context.Context, title, description string) (llm.Classification, error)
	Plan(ctx context.Context, title, description string, cls llm.Classification) ([]types.ResearchTarget, error)
	BuildQuery(ctx context.Context, title string, targets []types.ResearchTarget, previousQueries []string) (string, error)
	AssessEvidence(ctx context.Context, title string, targets []types.ResearchTarget, results []search.Result) (llm.Assessment, error)
	Synthesize(ctx context.Context, title string, targets []types.ResearchTarget, facts []string, sources []llm.SourceContent) (llm.Synthesis, error)
	DraftPosts(ctx context.Context, title string, facts []string, cls llm.Classification) (map[types.Platform]string, error)
}

// Searcher is the evidence gathering provider.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// RecordUpdater flips a record's status once its drafts exist.
type RecordUpdater interface {
	MarkPosted(ctx context.Context, externalID string) error
}

// DraftCreator persists one platform draft.
type DraftCreator interface {
	CreateDraft(ctx context.Context, draft *types.DraftPost) error
}

// Archiver stores the finished research bundle. Optional; a nil archiver
// skips archiving.
type Archiver interface {
	Archive(ctx context.Context, bundle *Bundle) error
}

// Bundle is the archived output of one completed record: what was
// learned, from where, and what was drafted.
type Bundle struct {
	RecordID    string                 `json:"record_id"`
	Title       string                 `json:"title"`
	Category    string                 `json:"category"`
	PostType    string                 `json:"post_type"`
	Iterations  int                    `json:"iterations"`
	Targets     []types.ResearchTarget `json:"targets"`
	Facts       []string               `json:"facts"`
	SourceURLs  []string               `json:"source_urls"`
	Drafts      []*types.DraftPost     `json:"drafts"`
	CompletedAt time.Time              `json:"completed_at"`
}

// Outcome reports how one record's loop finished.
type Outcome struct {
	RecordID   string
	Iterations int
	Targets    []types.ResearchTarget
	Facts      []string
	Drafts     []*types.DraftPost
}

// Loop runs the bounded research and synthesis cycle over pending
// records, one record at a time.
type Loop struct {
	model      LanguageModel
	searcher   Searcher
	extractor  Extractor
	records    RecordUpdater
	drafts     DraftCreator
	archiver   Archiver
	trustRanks map[string]int

	now   func() time.Time
	newID func() string
}

// NewLoop wires the loop. archiver may be nil.
func NewLoop(model LanguageModel, searcher Searcher, extractor Extractor, records RecordUpdater, drafts DraftCreator, archiver Archiver, trustRanks map[string]int) (*Loop, error) {
	if model == nil || searcher == nil || extractor == nil || records == nil || drafts == nil {
		return nil, fmt.Errorf("all loop dependencies except the archiver are required")
	}
	return &Loop{
		model:      model,
		searcher:   searcher,
		extractor:  extractor,
		records:    records,
		drafts:     drafts,
		archiver:   archiver,
		trustRanks: trustRanks,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}, nil
}

// ProcessPending walks the records sequentially. A failed record is
// logged and left Pending; the rest still get processed.
func (l *Loop) ProcessPending(ctx context.Context, records []*types.StoredRecord) []*Outcome {
	var outcomes []*Outcome
	for _, rec := range records {
		outcome, err := l.ProcessRecord(ctx, rec)
		if err != nil {
			if types.IsTimeout(err) {
				log.Printf("Research timed out for %s (%q): %v", rec.ExternalID, truncate(rec.Title, 60), err)
			} else {
				log.Printf("Research aborted for %s (%q): %v", rec.ExternalID, truncate(rec.Title, 60), err)
			}
			continue
		}
		if outcome == nil {
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// ProcessRecord runs the full state machine for one record. Any search,
// model or store failure aborts: the record stays Pending and no status
// change happens. On success all three drafts are persisted first, and
// only then does the record flip to Posted.
func (l *Loop) ProcessRecord(ctx context.Context, rec *types.StoredRecord) (*Outcome, error) {
	// Queue deliveries are at-least-once; a redelivered notice for a
	// record that already flipped must not draft again.
	if rec.Status != types.StatusPending {
		log.Printf("Record %s is %s, skipping", rec.ExternalID, rec.Status)
		return nil, nil
	}

	state := StateClassifying
	log.Printf("[%s] %s", state, truncate(rec.Title, 70))
	cls, err := l.model.Classify(ctx, rec.Title, rec.Description)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	state = StatePlanning
	log.Printf("[%s] category=%s treatment=%s", state, cls.Category, cls.PostType)
	targets, err := l.model.Plan(ctx, rec.Title, rec.Description, cls)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	var (
		facts      []string
		queries    []string
		sourceURLs []string
		iteration  int
	)

	for state != StateDone {
		state = StateSearching
		iteration++
		log.Printf("[%s] iteration %d/%d", state, iteration, MaxIterations)

		query, err := l.model.BuildQuery(ctx, rec.Title, targets, queries)
		if err != nil {
			return nil, fmt.Errorf("build query: %w", err)
		}
		queries = append(queries, query)

		results, err := l.searcher.Search(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}

		state = StateAnalyzingEvidence
		verdict, err := l.model.AssessEvidence(ctx, rec.Title, targets, results)
		if err != nil {
			return nil, fmt.Errorf("assess evidence: %w", err)
		}
		facts = mergeFacts(facts, verdict.ExtractedFacts)
		markAchieved(targets, verdict.SatisfiedTargets)

		var sources []llm.SourceContent
		if !verdict.Sufficient {
			state = StateExtracting
			urls := SelectURLs(results, targets, query, l.trustRanks, l.now())
			log.Printf("[%s] %d urls selected", state, len(urls))
			for _, res := range ExtractAll(l.extractor, urls) {
				if res.Err != nil {
					continue
				}
				sources = append(sources, llm.SourceContent{URL: res.URL, Content: res.Content})
				sourceURLs = append(sourceURLs, res.URL)
			}
		}

		state = StateSynthesizing
		syn, err := l.model.Synthesize(ctx, rec.Title, targets, facts, sources)
		if err != nil {
			return nil, fmt.Errorf("synthesize: %w", err)
		}
		facts = syn.Facts
		markAchieved(targets, syn.AchievedTargets)

		state = StateEvaluatingTargets
		if allAchieved(targets) || iteration >= MaxIterations {
			state = StateDone
		}
	}

	drafts, err := l.createDrafts(ctx, rec, facts, cls)
	if err != nil {
		return nil, err
	}

	// Status flips last, and only this once.
	if err := l.records.MarkPosted(ctx, rec.ExternalID); err != nil {
		return nil, fmt.Errorf("mark posted: %w", err)
	}
	log.Printf("[%s] %s posted after %d iteration(s)", StateDone, rec.ExternalID, iteration)

	l.archive(ctx, rec, cls, iteration, targets, facts, sourceURLs, drafts)

	return &Outcome{
		RecordID:   rec.ExternalID,
		Iterations: iteration,
		Targets:    targets,
		Facts:      facts,
		Drafts:     drafts,
	}, nil
}

// createDrafts generates and persists all three platform drafts. Any
// failure before the last draft is durable leaves the record Pending.
func (l *Loop) createDrafts(ctx context.Context, rec *types.StoredRecord, facts []string, cls llm.Classification) ([]*types.DraftPost, error) {
	contents, err := l.model.DraftPosts(ctx, rec.Title, facts, cls)
	if err != nil {
		return nil, fmt.Errorf("draft posts: %w", err)
	}

	now := l.now()
	drafts := make([]*types.DraftPost, 0, len(types.Platforms))
	for _, platform := range types.Platforms {
		content, ok := contents[platform]
		if !ok || content == "" {
			return nil, fmt.Errorf("draft posts: missing %s draft", platform)
		}
		draft := &types.DraftPost{
			ID:           l.newID(),
			SourceItemID: rec.ExternalID,
			Platform:     platform,
			Content:      content,
			Status:       types.DraftStatusDraft,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := l.drafts.CreateDraft(ctx, draft); err != nil {
			return nil, fmt.Errorf("persist %s draft: %w", platform, err)
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

// archive is best effort: a failed upload never un-posts the record.
func (l *Loop) archive(ctx context.Context, rec *types.StoredRecord, cls llm.Classification, iterations int, targets []types.ResearchTarget, facts, sourceURLs []string, drafts []*types.DraftPost) {
	if l.archiver == nil {
		return
	}
	bundle := &Bundle{
		RecordID:    rec.ExternalID,
		Title:       rec.Title,
		Category:    cls.Category,
		PostType:    string(cls.PostType),
		Iterations:  iterations,
		Targets:     targets,
		Facts:       facts,
		SourceURLs:  sourceURLs,
		Drafts:      drafts,
		CompletedAt: l.now(),
	}
	if err := l.archiver.Archive(ctx, bundle); err != nil {
		log.Printf("Warning: bundle archive failed for %s: %v", rec.ExternalID, err)
	}
}

func mergeFacts(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, f := range existing {
		seen[f] = struct{}{}
	}
	for _, f := range incoming {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			existing = append(existing, f)
		}
	}
	return existing
}

func markAchieved(targets []types.ResearchTarget, indexes []int) {
	for _, i := range indexes {
		if i >= 0 && i < len(targets) {
			targets[i].Achieved = true
		}
	}
}

func allAchieved(targets []types.ResearchTarget) bool {
	for _, t := range targets {
		if !t.Achieved {
			return false
		}
	}
	return len(targets) > 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
