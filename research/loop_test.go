package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"newsbrief/llm"
	"newsbrief/search"
	"newsbrief/types"
)

type fakeModel struct {
	classification llm.Classification
	targets        []types.ResearchTarget
	assessments    []llm.Assessment
	syntheses      []llm.Synthesis
	draftContents  map[types.Platform]string
	draftErr       error

	classifyCalls int
	assessCalls   int
	synthCalls    int
	lastSources   []llm.SourceContent
}

func (m *fakeModel) Classify(ctx context.Context, title, description string) (llm.Classification, error) {
	m.classifyCalls++
	return m.classification, nil
}

func (m *fakeModel) Plan(ctx context.Context, title, description string, cls llm.Classification) ([]types.ResearchTarget, error) {
	targets := make([]types.ResearchTarget, len(m.targets))
	copy(targets, m.targets)
	return targets, nil
}

func (m *fakeModel) BuildQuery(ctx context.Context, title string, targets []types.ResearchTarget, previousQueries []string) (string, error) {
	return fmt.Sprintf("query %d", len(previousQueries)+1), nil
}

func (m *fakeModel) AssessEvidence(ctx context.Context, title string, targets []types.ResearchTarget, results []search.Result) (llm.Assessment, error) {
	i := m.assessCalls
	m.assessCalls++
	if i >= len(m.assessments) {
		i = len(m.assessments) - 1
	}
	return m.assessments[i], nil
}

func (m *fakeModel) Synthesize(ctx context.Context, title string, targets []types.ResearchTarget, facts []string, sources []llm.SourceContent) (llm.Synthesis, error) {
	i := m.synthCalls
	m.synthCalls++
	m.lastSources = sources
	if i >= len(m.syntheses) {
		i = len(m.syntheses) - 1
	}
	return m.syntheses[i], nil
}

func (m *fakeModel) DraftPosts(ctx context.Context, title string, facts []string, cls llm.Classification) (map[types.Platform]string, error) {
	if m.draftErr != nil {
		return nil, m.draftErr
	}
	return m.draftContents, nil
}

type fakeSearcher struct {
	results []search.Result
	err     error
	calls   int
}

func (s *fakeSearcher) Search(ctx context.Context, query string) ([]search.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type fakeExtractor struct {
	mu       sync.Mutex
	failures map[string]bool
	calls    []string
}

func (e *fakeExtractor) Extract(url string) ExtractionResult {
	e.mu.Lock()
	e.calls = append(e.calls, url)
	e.mu.Unlock()
	if e.failures[url] {
		return ExtractionResult{URL: url, Err: errors.New("fetch failed")}
	}
	return ExtractionResult{URL: url, Content: "body of " + url}
}

type fakeRecordUpdater struct {
	posted []string
	err    error
}

func (r *fakeRecordUpdater) MarkPosted(ctx context.Context, externalID string) error {
	if r.err != nil {
		return r.err
	}
	r.posted = append(r.posted, externalID)
	return nil
}

type fakeDraftCreator struct {
	created      []*types.DraftPost
	failPlatform types.Platform
}

func (d *fakeDraftCreator) CreateDraft(ctx context.Context, draft *types.DraftPost) error {
	if d.failPlatform != "" && draft.Platform == d.failPlatform {
		return errors.New("insert failed")
	}
	d.created = append(d.created, draft)
	return nil
}

type fakeArchiver struct {
	bundles []*Bundle
	err     error
}

func (a *fakeArchiver) Archive(ctx context.Context, bundle *Bundle) error {
	if a.err != nil {
		return a.err
	}
	a.bundles = append(a.bundles, bundle)
	return nil
}

type loopFixture struct {
	model    *fakeModel
	searcher *fakeSearcher
	extract  *fakeExtractor
	records  *fakeRecordUpdater
	drafts   *fakeDraftCreator
	archiver *fakeArchiver
	loop     *Loop
}

func allDrafts() map[types.Platform]string {
	return map[types.Platform]string{
		types.PlatformFacebook:  "facebook draft",
		types.PlatformInstagram: "instagram draft",
		types.PlatformX:         "x draft",
	}
}

func newLoopFixture(t *testing.T, model *fakeModel) *loopFixture {
	t.Helper()
	f := &loopFixture{
		model: model,
		searcher: &fakeSearcher{results: []search.Result{
			{Title: "First source", URL: "https://a.example/1", Domain: "a.example"},
			{Title: "Second source", URL: "https://b.example/2", Domain: "b.example"},
			{Title: "Third source", URL: "https://c.example/3", Domain: "c.example"},
		}},
		extract:  &fakeExtractor{},
		records:  &fakeRecordUpdater{},
		drafts:   &fakeDraftCreator{},
		archiver: &fakeArchiver{},
	}
	loop, err := NewLoop(f.model, f.searcher, f.extract, f.records, f.drafts, f.archiver, map[string]int{"a.example": 0})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	loop.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	seq := 0
	loop.newID = func() string { seq++; return fmt.Sprintf("draft-%d", seq) }
	f.loop = loop
	return f
}

func pendingRecord() *types.StoredRecord {
	return &types.StoredRecord{
		ExternalID:  "rec-1",
		Title:       "Council approves transit expansion",
		Description: "The city council voted to fund three new light rail lines.",
		Status:      types.StatusPending,
	}
}

func TestLoopStopsAtIterationCap(t *testing.T) {
	model := &fakeModel{
		classification: llm.Classification{Category: "politics", PostType: llm.PostSimple, MaxWords: 100},
		targets:        []types.ResearchTarget{{Description: "find the budget figure"}},
		assessments:    []llm.Assessment{{Sufficient: false, ExtractedFacts: []string{"a vote happened"}}},
		syntheses:      []llm.Synthesis{{Facts: []string{"a vote happened"}}},
		draftContents:  allDrafts(),
	}
	f := newLoopFixture(t, model)

	outcome, err := f.loop.ProcessRecord(context.Background(), pendingRecord())
	if err != nil {
		t.Fatalf("ProcessRecord: %v", err)
	}
	if outcome.Iterations != MaxIterations {
		t.Fatalf("expected %d iterations, got %d", MaxIterations, outcome.Iterations)
	}
	if f.searcher.calls != MaxIterations {
		t.Fatalf("expected %d searches, got %d", MaxIterations, f.searcher.calls)
	}
	if len(f.drafts.created) != len(types.Platforms) {
		t.Fatalf("expected %d drafts, got %d", len(types.Platforms), len(f.drafts.created))
	}
	for i, platform := range types.Platforms {
		if f.drafts.created[i].Platform != platform {
			t.Errorf("draft %d: expected platform %s, got %s", i, platform, f.drafts.created[i].Platform)
		}
	}
	if len(f.records.posted) != 1 || f.records.posted[0] != "rec-1" {
		t.Fatalf("expected exactly one MarkPosted for rec-1, got %v", f.records.posted)
	}
	if len(f.archiver.bundles) != 1 {
		t.Fatalf("expected 1 archived bundle, got %d", len(f.archiver.bundles))
	}
	if f.archiver.bundles[0].Iterations != MaxIterations {
		t.Errorf("bundle iterations = %d, want %d", f.archiver.bundles[0].Iterations, MaxIterations)
	}
}

func TestLoopFinishesEarlyWhenTargetsAchieved(t *testing.T) {
	model := &fakeModel{
		classification: llm.Classification{Category: "politics", PostType: llm.PostSimple, MaxWords: 100},
		targets:        []types.ResearchTarget{{Description: "find the budget figure"}},
		assessments:    []llm.Assessment{{Sufficient: false}},
		syntheses:      []llm.Synthesis{{Facts: []string{"the budget is 2 billion"}, AchievedTargets: []int{0}}},
		draftContents:  allDrafts(),
	}
	f := newLoopFixture(t, model)

	outcome, err := f.loop.ProcessRecord(context.Background(), pendingRecord())
	if err != nil {
		t.Fatalf("ProcessRecord: %v", err)
	}
	if outcome.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", outcome.Iterations)
	}
	if len(f.records.posted) != 1 {
		t.Fatalf("expected one MarkPosted, got %v", f.records.posted)
	}
}

func TestLoopToleratesPartialExtractionFailure(t *testing.T) {
	model := &fakeModel{
		classification: llm.Classification{Category: "tech", PostType: llm.PostSimple, MaxWords: 100},
		targets:        []types.ResearchTarget{{Description: "find outage root cause"}},
		assessments:    []llm.Assessment{{Sufficient: false}},
		syntheses:      []llm.Synthesis{{Facts: []string{"dns misconfiguration"}, AchievedTargets: []int{0}}},
		draftContents:  allDrafts(),
	}
	f := newLoopFixture(t, model)
	f.extract.failures = map[string]bool{
		"https://b.example/2": true,
		"https://c.example/3": true,
	}

	_, err := f.loop.ProcessRecord(context.Background(), pendingRecord())
	if err != nil {
		t.Fatalf("ProcessRecord: %v", err)
	}
	if len(f.extract.calls) != 3 {
		t.Fatalf("expected 3 extraction attempts, got %d", len(f.extract.calls))
	}
	if len(model.lastSources) != 1 {
		t.Fatalf("expected 1 usable source, got %d", len(model.lastSources))
	}
	if model.lastSources[0].URL != "https://a.example/1" {
		t.Errorf("unexpected surviving source %s", model.lastSources[0].URL)
	}
	if len(f.drafts.created) != len(types.Platforms) {
		t.Fatalf("expected %d drafts despite failed extractions, got %d", len(types.Platforms), len(f.drafts.created))
	}
	if len(f.records.posted) != 1 {
		t.Fatalf("expected record posted, got %v", f.records.posted)
	}
}

func TestLoopSkipsExtractionWhenEvidenceSufficient(t *testing.T) {
	model := &fakeModel{
		classification: llm.Classification{Category: "sports", PostType: llm.PostSimple, MaxWords: 100},
		targets:        []types.ResearchTarget{{Description: "final score"}},
		assessments:    []llm.Assessment{{Sufficient: true, SatisfiedTargets: []int{0}, ExtractedFacts: []string{"won 3-1"}}},
		syntheses:      []llm.Synthesis{{Facts: []string{"won 3-1"}, AchievedTargets: []int{0}}},
		draftContents:  allDrafts(),
	}
	f := newLoopFixture(t, model)

	outcome, err := f.loop.ProcessRecord(context.Background(), pendingRecord())
	if err != nil {
		t.Fatalf("ProcessRecord: %v", err)
	}
	if len(f.extract.calls) != 0 {
		t.Fatalf("expected no extraction calls, got %v", f.extract.calls)
	}
	if outcome.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", outcome.Iterations)
	}
}

func TestLoopDraftFailureLeavesRecordPending(t *testing.T) {
	model := &fakeModel{
		classification: llm.Classification{Category: "politics", PostType: llm.PostSimple, MaxWords: 100},
		targets:        []types.ResearchTarget{{Description: "find the budget figure"}},
		assessments:    []llm.Assessment{{Sufficient: true, SatisfiedTargets: []int{0}}},
		syntheses:      []llm.Synthesis{{Facts: []string{"fact"}, AchievedTargets: []int{0}}},
		draftContents:  allDrafts(),
	}
	f := newLoopFixture(t, model)
	f.drafts.failPlatform = types.PlatformX

	_, err := f.loop.ProcessRecord(context.Background(), pendingRecord())
	if err == nil {
		t.Fatal("expected an error when a draft cannot be persisted")
	}
	if !strings.Contains(err.Error(), "persist x draft") {
		t.Errorf("unexpected error: %v", err)
	}
	if len(f.records.posted) != 0 {
		t.Fatalf("record must stay pending, but MarkPosted was called: %v", f.records.posted)
	}
	if len(f.archiver.bundles) != 0 {
		t.Fatalf("nothing should be archived, got %d bundles", len(f.archiver.bundles))
	}
}

func TestLoopMissingPlatformDraftAborts(t *testing.T) {
	contents := allDrafts()
	delete(contents, types.PlatformInstagram)
	model := &fakeModel{
		classification: llm.Classification{Category: "politics", PostType: llm.PostSimple, MaxWords: 100},
		targets:        []types.ResearchTarget{{Description: "find the budget figure"}},
		assessments:    []llm.Assessment{{Sufficient: true, SatisfiedTargets: []int{0}}},
		syntheses:      []llm.Synthesis{{Facts: []string{"fact"}, AchievedTargets: []int{0}}},
		draftContents:  contents,
	}
	f := newLoopFixture(t, model)

	_, err := f.loop.ProcessRecord(context.Background(), pendingRecord())
	if err == nil {
		t.Fatal("expected an error when a platform draft is missing")
	}
	if len(f.records.posted) != 0 {
		t.Fatalf("record must stay pending, got %v", f.records.posted)
	}
}

func TestLoopSearchErrorAborts(t *testing.T) {
	model := &fakeModel{
		classification: llm.Classification{Category: "politics", PostType: llm.PostSimple, MaxWords: 100},
		targets:        []types.ResearchTarget{{Description: "find the budget figure"}},
		assessments:    []llm.Assessment{{}},
		syntheses:      []llm.Synthesis{{}},
		draftContents:  allDrafts(),
	}
	f := newLoopFixture(t, model)
	f.searcher.err = &types.ExternalCallError{Provider: "search", Err: errors.New("503")}

	_, err := f.loop.ProcessRecord(context.Background(), pendingRecord())
	if err == nil {
		t.Fatal("expected a search failure to abort the record")
	}
	var callErr *types.ExternalCallError
	if !errors.As(err, &callErr) {
		t.Errorf("expected ExternalCallError in chain, got %v", err)
	}
	if len(f.drafts.created) != 0 {
		t.Fatalf("no drafts expected, got %d", len(f.drafts.created))
	}
	if len(f.records.posted) != 0 {
		t.Fatalf("record must stay pending, got %v", f.records.posted)
	}
}

func TestLoopSkipsAlreadyPostedRecord(t *testing.T) {
	model := &fakeModel{
		classification: llm.Classification{Category: "politics", PostType: llm.PostSimple, MaxWords: 100},
		targets:        []types.ResearchTarget{{Description: "find the budget figure"}},
		assessments:    []llm.Assessment{{Sufficient: true, SatisfiedTargets: []int{0}}},
		syntheses:      []llm.Synthesis{{Facts: []string{"fact"}, AchievedTargets: []int{0}}},
		draftContents:  allDrafts(),
	}
	f := newLoopFixture(t, model)

	rec := pendingRecord()
	rec.Status = types.StatusPosted

	outcome, err := f.loop.ProcessRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("a redelivered posted record must not error: %v", err)
	}
	if outcome != nil {
		t.Fatalf("expected no outcome for a posted record, got %+v", outcome)
	}
	if model.classifyCalls != 0 || f.searcher.calls != 0 {
		t.Errorf("no model or search spend expected, got %d classify / %d search calls",
			model.classifyCalls, f.searcher.calls)
	}
	if len(f.drafts.created) != 0 {
		t.Fatalf("a posted record must never draft again, got %d drafts", len(f.drafts.created))
	}
	if len(f.records.posted) != 0 {
		t.Fatalf("no status update expected, got %v", f.records.posted)
	}

	outcomes := f.loop.ProcessPending(context.Background(), []*types.StoredRecord{rec, pendingRecord()})
	if len(outcomes) != 1 {
		t.Fatalf("only the pending record should yield an outcome, got %d", len(outcomes))
	}
}

func TestLoopArchiveFailureStillPosts(t *testing.T) {
	model := &fakeModel{
		classification: llm.Classification{Category: "politics", PostType: llm.PostSimple, MaxWords: 100},
		targets:        []types.ResearchTarget{{Description: "find the budget figure"}},
		assessments:    []llm.Assessment{{Sufficient: true, SatisfiedTargets: []int{0}}},
		syntheses:      []llm.Synthesis{{Facts: []string{"fact"}, AchievedTargets: []int{0}}},
		draftContents:  allDrafts(),
	}
	f := newLoopFixture(t, model)
	f.archiver.err = errors.New("upload failed")

	_, err := f.loop.ProcessRecord(context.Background(), pendingRecord())
	if err != nil {
		t.Fatalf("archive failure must not fail the record: %v", err)
	}
	if len(f.records.posted) != 1 {
		t.Fatalf("expected record posted, got %v", f.records.posted)
	}
}

func TestProcessPendingContinuesAfterFailure(t *testing.T) {
	model := &fakeModel{
		classification: llm.Classification{Category: "politics", PostType: llm.PostSimple, MaxWords: 100},
		targets:        []types.ResearchTarget{{Description: "find the budget figure"}},
		assessments:    []llm.Assessment{{Sufficient: true, SatisfiedTargets: []int{0}}},
		syntheses:      []llm.Synthesis{{Facts: []string{"fact"}, AchievedTargets: []int{0}}},
		draftContents:  allDrafts(),
	}
	f := newLoopFixture(t, model)

	bad := pendingRecord()
	bad.ExternalID = ""
	good := pendingRecord()

	f.records.err = errors.New("no such record")
	outcomes := f.loop.ProcessPending(context.Background(), []*types.StoredRecord{bad})
	if len(outcomes) != 0 {
		t.Fatalf("expected the failing record to yield no outcome, got %d", len(outcomes))
	}

	f.records.err = nil
	outcomes = f.loop.ProcessPending(context.Background(), []*types.StoredRecord{good})
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0].RecordID != "rec-1" {
		t.Errorf("unexpected record id %s", outcomes[0].RecordID)
	}
}
