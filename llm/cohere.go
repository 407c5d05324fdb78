package llm

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"newsbrief/search"
	"newsbrief/types"
)

const defaultChatModel = "command-r-plus-08-2024"

const analystPreamble = "You are a news analyst and social media content strategist. " +
	"You turn breaking news headlines and snippets into researched, factual social media posts. " +
	"Always answer with a single JSON object and nothing else. No markdown, no commentary."

// Cohere drives classification, planning, evidence assessment, synthesis
// and drafting through the Cohere chat API. Each operation is a single
// non-streamed request with a JSON answer.
type Cohere struct {
	client  chatCaller
	model   string
	timeout time.Duration
}

// chatCaller is the slice of the Cohere client the operations need.
type chatCaller interface {
	Chat(ctx context.Context, request *cohere.ChatRequest) (*cohere.NonStreamedChatResponse, error)
}

// cohereChat adapts the SDK client to chatCaller.
type cohereChat struct {
	client *cohereclient.Client
}

func (c cohereChat) Chat(ctx context.Context, request *cohere.ChatRequest) (*cohere.NonStreamedChatResponse, error) {
	return c.client.Chat(ctx, request)
}

// NewCohere builds a chat-backed language model. The HTTP/1.1 transport
// works around HTTP/2 protocol errors against the Cohere API.
func NewCohere(apiKey, model string, timeout time.Duration) (*Cohere, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("cohere api key is required")
	}
	if model == "" {
		model = defaultChatModel
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	return &Cohere{client: cohereChat{client: client}, model: model, timeout: timeout}, nil
}

// NewCohereWithClient injects a chat caller. Used by tests.
func NewCohereWithClient(client chatCaller, model string) *Cohere {
	if model == "" {
		model = defaultChatModel
	}
	return &Cohere{client: client, model: model, timeout: 60 * time.Second}
}

// Classify reads a headline and snippet into a category and treatment.
func (c *Cohere) Classify(ctx context.Context, title, description string) (Classification, error) {
	prompt := fmt.Sprintf(`Classify this news item.

Headline: %s
Snippet: %s

Decide the news category (politics, business, sports, technology, science, entertainment, world, other)
and the treatment: "Simple" for a short factual update, "LongForm" for a story that needs narrative depth.

Answer with JSON: {"category": "...", "postType": "Simple"|"LongForm"}`, title, description)

	raw, err := c.chat(ctx, prompt)
	if err != nil {
		return Classification{}, err
	}

	var cls Classification
	if err := decodeJSON(raw, &cls); err != nil {
		return Classification{}, err
	}
	if cls.PostType != PostLongForm {
		cls.PostType = PostSimple
	}
	cls.MaxWords = BudgetFor(cls.PostType, types.PlatformFacebook).MaxWords
	return cls, nil
}

// Plan produces one to four ordered research targets for the item.
func (c *Cohere) Plan(ctx context.Context, title, description string, cls Classification) ([]types.ResearchTarget, error) {
	prompt := fmt.Sprintf(`Plan the research for this %s news item (%s treatment).

Headline: %s
Snippet: %s

List 1-4 concrete fact-finding targets, most important first. Each target names one specific
missing fact (a quote, number, date, official reaction). Do NOT create targets for facts the
snippet already states.

Answer with JSON: {"targets": ["...", "..."]}`, cls.Category, cls.PostType, title, description)

	raw, err := c.chat(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Targets []string `json:"targets"`
	}
	if err := decodeJSON(raw, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Targets) == 0 {
		return nil, fmt.Errorf("planning produced no targets")
	}
	if len(parsed.Targets) > 4 {
		parsed.Targets = parsed.Targets[:4]
	}

	targets := make([]types.ResearchTarget, len(parsed.Targets))
	for i, t := range parsed.Targets {
		targets[i] = types.ResearchTarget{Description: t}
	}
	return targets, nil
}

// BuildQuery writes the keyword search string for the unmet targets.
// Short noun-dense strings with the year work best against news search.
func (c *Cohere) BuildQuery(ctx context.Context, title string, targets []types.ResearchTarget, previousQueries []string) (string, error) {
	var unmet []string
	for _, t := range targets {
		if !t.Achieved {
			unmet = append(unmet, t.Description)
		}
	}

	prompt := fmt.Sprintf(`Write one search query for the unmet research targets.

Headline: %s
Unmet targets:
%s
Queries already tried (write something different):
%s

Rules: a raw keyword string of 4-8 words. No quotes, no question marks, no full sentences.
Use proper nouns and official names exactly as news writes them. Include the year %d.

Answer with JSON: {"query": "..."}`,
		title, bulleted(unmet), bulleted(previousQueries), time.Now().Year())

	raw, err := c.chat(ctx, prompt)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(raw, &parsed); err != nil {
		return "", err
	}
	query := strings.Trim(strings.TrimSpace(parsed.Query), `"`)
	if query == "" {
		return "", fmt.Errorf("query generation produced empty query")
	}
	return query, nil
}

// AssessEvidence judges whether the gathered fragments answer the
// targets. The verdict is total: it covers every target and carries the
// facts worth keeping either way.
func (c *Cohere) AssessEvidence(ctx context.Context, title string, targets []types.ResearchTarget, results []search.Result) (Assessment, error) {
	prompt := fmt.Sprintf(`Judge whether the search evidence answers the research targets.

Headline: %s
Targets (0-indexed):
%s
Evidence:
%s

For each target decide if the evidence fully answers it. Extract every concrete fact
(quotes, numbers, dates, names) the evidence provides, with its source domain.

Answer with JSON: {"sufficient": true|false, "satisfiedTargets": [0, 2], "extractedFacts": ["... (domain)"]}
"sufficient" is true only when every target is satisfied.`,
		title, bulletedTargets(targets), formatResults(results))

	raw, err := c.chat(ctx, prompt)
	if err != nil {
		return Assessment{}, err
	}

	var verdict Assessment
	if err := decodeJSON(raw, &verdict); err != nil {
		return Assessment{}, err
	}
	return verdict, nil
}

// Synthesize folds extracted article content into the fact set and marks
// achieved targets.
func (c *Cohere) Synthesize(ctx context.Context, title string, targets []types.ResearchTarget, facts []string, sources []SourceContent) (Synthesis, error) {
	prompt := fmt.Sprintf(`Merge the known facts with the extracted articles.

Headline: %s
Targets (0-indexed):
%s
Known facts:
%s
Extracted articles:
%s

Produce the consolidated fact list (deduplicated, each with its source domain) and the
indexes of all targets now answered.

Answer with JSON: {"facts": ["..."], "achievedTargets": [0, 1]}`,
		title, bulletedTargets(targets), bulleted(facts), formatSources(sources))

	raw, err := c.chat(ctx, prompt)
	if err != nil {
		return Synthesis{}, err
	}

	var syn Synthesis
	if err := decodeJSON(raw, &syn); err != nil {
		return Synthesis{}, err
	}
	if len(syn.Facts) == 0 {
		syn.Facts = facts
	}
	return syn, nil
}

// DraftPosts writes the three platform drafts inside their budgets.
// The x draft is clamped to its character ceiling as a final guard.
func (c *Cohere) DraftPosts(ctx context.Context, title string, facts []string, cls Classification) (map[types.Platform]string, error) {
	budgetLines := make([]string, 0, len(types.Platforms))
	for _, p := range types.Platforms {
		budgetLines = append(budgetLines, BudgetFor(cls.PostType, p).describe(p))
	}

	prompt := fmt.Sprintf(`Write three social media posts about this story, one per platform.

Headline: %s
Category: %s
Verified facts:
%s

Budgets (hard limits):
%s

Every claim must come from the verified facts. Attribute key facts to their source.
No hashtag spam: at most 3 hashtags on instagram, at most 1 elsewhere.

Answer with JSON: {"facebook": "...", "instagram": "...", "x": "..."}`,
		title, cls.Category, bulleted(facts), strings.Join(budgetLines, "\n"))

	raw, err := c.chat(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var parsed map[string]string
	if err := decodeJSON(raw, &parsed); err != nil {
		return nil, err
	}

	drafts := make(map[types.Platform]string, len(types.Platforms))
	for _, p := range types.Platforms {
		content := strings.TrimSpace(parsed[string(p)])
		if content == "" {
			return nil, fmt.Errorf("draft generation missing %s post", p)
		}
		budget := BudgetFor(cls.PostType, p)
		if budget.MaxChars > 0 && len([]rune(content)) > budget.MaxChars {
			content = string([]rune(content)[:budget.MaxChars])
		}
		if budget.MaxWords > 0 && WordCount(content) > budget.MaxWords {
			log.Printf("Warning: %s draft runs %d words against a %d word budget",
				p, WordCount(content), budget.MaxWords)
		}
		drafts[p] = content
	}
	return drafts, nil
}

func (c *Cohere) chat(ctx context.Context, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat(ctx, &cohere.ChatRequest{
		Message:     message,
		Model:       cohere.String(c.model),
		Preamble:    cohere.String(analystPreamble),
		Temperature: cohere.Float64(0.3),
	})
	if err != nil {
		return "", &types.ExternalCallError{
			Provider: "language model",
			Timeout:  errors.Is(err, context.DeadlineExceeded),
			Err:      err,
		}
	}
	if resp == nil || resp.Text == "" {
		return "", &types.ExternalCallError{
			Provider: "language model",
			Err:      fmt.Errorf("empty chat response"),
		}
	}
	return resp.Text, nil
}

// decodeJSON parses a chat answer, tolerating markdown code fences the
// model sometimes adds despite instructions.
func decodeJSON(raw string, v interface{}) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &types.ExternalCallError{
			Provider: "language model",
			Err:      fmt.Errorf("malformed answer: %w (%s)", err, truncate(cleaned, 120)),
		}
	}
	return nil
}

func bulleted(items []string) string {
	if len(items) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func bulletedTargets(targets []types.ResearchTarget) string {
	if len(targets) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	for i, t := range targets {
		state := "unmet"
		if t.Achieved {
			state = "achieved"
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i, state, t.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatResults(results []search.Result) string {
	if len(results) == 0 {
		return "(no results)"
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "## %s (%s)\n", r.Title, r.Domain)
		for _, f := range r.Fragments {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSources(sources []SourceContent) string {
	if len(sources) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, s := range sources {
		fmt.Fprintf(&b, "## %s\n%s\n", s.URL, truncate(s.Content, 4000))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
