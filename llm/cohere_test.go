package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	cohere "github.com/cohere-ai/cohere-go/v2"

	"newsbrief/types"
)

// scriptedChat returns canned answers in order and records prompts.
type scriptedChat struct {
	answers []string
	err     error
	calls   int
	prompts []string
}

func (s *scriptedChat) Chat(ctx context.Context, request *cohere.ChatRequest) (*cohere.NonStreamedChatResponse, error) {
	s.prompts = append(s.prompts, request.Message)
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls
	s.calls++
	if i >= len(s.answers) {
		i = len(s.answers) - 1
	}
	return &cohere.NonStreamedChatResponse{Text: s.answers[i]}, nil
}

func TestClassifyCoercesUnknownPostType(t *testing.T) {
	chat := &scriptedChat{answers: []string{`{"category": "politics", "postType": "Weird"}`}}
	model := NewCohereWithClient(chat, "")

	cls, err := model.Classify(context.Background(), "Headline", "Snippet")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.PostType != PostSimple {
		t.Errorf("postType = %s, want %s", cls.PostType, PostSimple)
	}
	if cls.Category != "politics" {
		t.Errorf("category = %s, want politics", cls.Category)
	}
	if cls.MaxWords != BudgetFor(PostSimple, types.PlatformFacebook).MaxWords {
		t.Errorf("maxWords = %d, want the facebook simple ceiling", cls.MaxWords)
	}
}

func TestClassifyKeepsLongForm(t *testing.T) {
	chat := &scriptedChat{answers: []string{`{"category": "world", "postType": "LongForm"}`}}
	model := NewCohereWithClient(chat, "")

	cls, err := model.Classify(context.Background(), "Headline", "Snippet")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.PostType != PostLongForm {
		t.Errorf("postType = %s, want %s", cls.PostType, PostLongForm)
	}
}

func TestClassifyStripsCodeFences(t *testing.T) {
	chat := &scriptedChat{answers: []string{"```json\n{\"category\": \"tech\", \"postType\": \"Simple\"}\n```"}}
	model := NewCohereWithClient(chat, "")

	cls, err := model.Classify(context.Background(), "Headline", "Snippet")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.Category != "tech" {
		t.Errorf("category = %s, want tech", cls.Category)
	}
}

func TestPlanRejectsEmptyTargetList(t *testing.T) {
	chat := &scriptedChat{answers: []string{`{"targets": []}`}}
	model := NewCohereWithClient(chat, "")

	_, err := model.Plan(context.Background(), "Headline", "Snippet", Classification{Category: "politics", PostType: PostSimple})
	if err == nil {
		t.Fatal("expected an error for an empty plan")
	}
}

func TestPlanTruncatesToFourTargets(t *testing.T) {
	chat := &scriptedChat{answers: []string{`{"targets": ["a", "b", "c", "d", "e", "f"]}`}}
	model := NewCohereWithClient(chat, "")

	targets, err := model.Plan(context.Background(), "Headline", "Snippet", Classification{Category: "politics", PostType: PostSimple})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(targets) != 4 {
		t.Fatalf("expected 4 targets, got %d", len(targets))
	}
	if targets[0].Description != "a" || targets[3].Description != "d" {
		t.Errorf("target order not preserved: %v", targets)
	}
	for _, target := range targets {
		if target.Achieved {
			t.Errorf("new target %q must start unmet", target.Description)
		}
	}
}

func TestBuildQueryMentionsOnlyUnmetTargets(t *testing.T) {
	chat := &scriptedChat{answers: []string{`{"query": "council transit budget vote 2026"}`}}
	model := NewCohereWithClient(chat, "")

	targets := []types.ResearchTarget{
		{Description: "the achieved one", Achieved: true},
		{Description: "the unmet one"},
	}
	query, err := model.BuildQuery(context.Background(), "Headline", targets, []string{"earlier query"})
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if query != "council transit budget vote 2026" {
		t.Errorf("query = %q", query)
	}
	prompt := chat.prompts[0]
	if strings.Contains(prompt, "the achieved one") {
		t.Error("achieved targets must not appear in the query prompt")
	}
	if !strings.Contains(prompt, "the unmet one") {
		t.Error("unmet targets must appear in the query prompt")
	}
	if !strings.Contains(prompt, "earlier query") {
		t.Error("previous queries must appear in the query prompt")
	}
}

func TestBuildQueryRejectsEmptyQuery(t *testing.T) {
	chat := &scriptedChat{answers: []string{`{"query": "  "}`}}
	model := NewCohereWithClient(chat, "")

	_, err := model.BuildQuery(context.Background(), "Headline", []types.ResearchTarget{{Description: "x"}}, nil)
	if err == nil {
		t.Fatal("expected an error for an empty query")
	}
}

func TestSynthesizeKeepsFactsWhenAnswerIsEmpty(t *testing.T) {
	chat := &scriptedChat{answers: []string{`{"facts": [], "achievedTargets": []}`}}
	model := NewCohereWithClient(chat, "")

	known := []string{"the budget is 2 billion (news.example)"}
	syn, err := model.Synthesize(context.Background(), "Headline", nil, known, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(syn.Facts) != 1 || syn.Facts[0] != known[0] {
		t.Errorf("empty synthesis must fall back to the known facts, got %v", syn.Facts)
	}
}

func TestDraftPostsRequiresAllPlatforms(t *testing.T) {
	chat := &scriptedChat{answers: []string{`{"facebook": "fb post", "x": "x post"}`}}
	model := NewCohereWithClient(chat, "")

	_, err := model.DraftPosts(context.Background(), "Headline", []string{"fact"}, Classification{PostType: PostSimple})
	if err == nil {
		t.Fatal("expected an error when a platform draft is missing")
	}
	if !strings.Contains(err.Error(), "instagram") {
		t.Errorf("error should name the missing platform: %v", err)
	}
}

func TestDraftPostsClampsXToCharacterBudget(t *testing.T) {
	long := strings.Repeat("x", 500)
	chat := &scriptedChat{answers: []string{`{"facebook": "fb post", "instagram": "ig post", "x": "` + long + `"}`}}
	model := NewCohereWithClient(chat, "")

	drafts, err := model.DraftPosts(context.Background(), "Headline", []string{"fact"}, Classification{PostType: PostSimple})
	if err != nil {
		t.Fatalf("DraftPosts: %v", err)
	}
	max := BudgetFor(PostSimple, types.PlatformX).MaxChars
	if got := len([]rune(drafts[types.PlatformX])); got != max {
		t.Errorf("x draft length = %d, want clamped to %d", got, max)
	}
	if drafts[types.PlatformFacebook] != "fb post" {
		t.Errorf("facebook draft altered: %q", drafts[types.PlatformFacebook])
	}
}

func TestDraftPostsWordBudgetIsAdvisory(t *testing.T) {
	over := strings.Repeat("word ", 120)
	chat := &scriptedChat{answers: []string{`{"facebook": "` + strings.TrimSpace(over) + `", "instagram": "ig post", "x": "x post"}`}}
	model := NewCohereWithClient(chat, "")

	drafts, err := model.DraftPosts(context.Background(), "Headline", []string{"fact"}, Classification{PostType: PostSimple})
	if err != nil {
		t.Fatalf("an over-budget word count warns but does not fail: %v", err)
	}
	if got := WordCount(drafts[types.PlatformFacebook]); got != 120 {
		t.Errorf("word budgets must not truncate content, got %d words", got)
	}
}

func TestChatErrorWrapsExternalCallError(t *testing.T) {
	chat := &scriptedChat{err: errors.New("connection refused")}
	model := NewCohereWithClient(chat, "")

	_, err := model.Classify(context.Background(), "Headline", "Snippet")
	if err == nil {
		t.Fatal("expected an error")
	}
	var callErr *types.ExternalCallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected ExternalCallError, got %T: %v", err, err)
	}
	if callErr.Provider != "language model" {
		t.Errorf("provider = %s", callErr.Provider)
	}
	if callErr.Timeout {
		t.Error("connection errors are not timeouts")
	}
}

func TestMalformedAnswerIsAnExternalCallError(t *testing.T) {
	chat := &scriptedChat{answers: []string{"this is not json"}}
	model := NewCohereWithClient(chat, "")

	_, err := model.Classify(context.Background(), "Headline", "Snippet")
	var callErr *types.ExternalCallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected ExternalCallError, got %v", err)
	}
}

func TestBudgetForFallsBackToSimple(t *testing.T) {
	simple := BudgetFor(PostSimple, types.PlatformFacebook)
	unknown := BudgetFor(PostType("Mystery"), types.PlatformFacebook)
	if unknown != simple {
		t.Errorf("unknown post types should use the simple budget, got %+v", unknown)
	}
}

func TestWordCount(t *testing.T) {
	if got := WordCount("  three  short words "); got != 3 {
		t.Errorf("WordCount = %d, want 3", got)
	}
	if got := WordCount(""); got != 0 {
		t.Errorf("WordCount of empty = %d, want 0", got)
	}
}
