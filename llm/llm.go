package llm

import (
	"fmt"
	"strings"

	"newsbrief/types"
)

// PostType selects the depth of treatment an item gets: a short factual
// update or a fuller narrative piece.
type PostType string

const (
	PostSimple   PostType = "Simple"
	PostLongForm PostType = "LongForm"
)

// Classification is the model's read of an item before planning.
type Classification struct {
	Category string   `json:"category"`
	PostType PostType `json:"postType"`
	MaxWords int      `json:"maxWords"`
}

// Assessment is the sufficiency verdict over gathered evidence. It is
// always total: every target gets a satisfied/unsatisfied answer.
type Assessment struct {
	Sufficient       bool     `json:"sufficient"`
	SatisfiedTargets []int    `json:"satisfiedTargets"`
	ExtractedFacts   []string `json:"extractedFacts"`
}

// Synthesis merges search fragments and extracted article content into
// the running fact set and marks which targets are now achieved.
type Synthesis struct {
	Facts           []string `json:"facts"`
	AchievedTargets []int    `json:"achievedTargets"`
}

// SourceContent is one deep-extracted article handed to synthesis.
type SourceContent struct {
	URL     string
	Content string
}

// Budget bounds one platform draft. Word bounds apply to facebook and
// instagram; x is bounded in characters.
type Budget struct {
	MinWords int
	MaxWords int
	MinChars int
	MaxChars int
}

var budgets = map[PostType]map[types.Platform]Budget{
	PostSimple: {
		types.PlatformFacebook:  {MinWords: 50, MaxWords: 100},
		types.PlatformInstagram: {MinWords: 50, MaxWords: 80},
		types.PlatformX:         {MinChars: 100, MaxChars: 150},
	},
	PostLongForm: {
		types.PlatformFacebook:  {MinWords: 150, MaxWords: 200},
		types.PlatformInstagram: {MinWords: 120, MaxWords: 180},
		types.PlatformX:         {MinChars: 200, MaxChars: 280},
	},
}

// BudgetFor returns the draft budget for a platform and post type.
// Unknown post types fall back to Simple.
func BudgetFor(postType PostType, platform types.Platform) Budget {
	byPlatform, ok := budgets[postType]
	if !ok {
		byPlatform = budgets[PostSimple]
	}
	return byPlatform[platform]
}

func (b Budget) describe(platform types.Platform) string {
	if b.MaxChars > 0 {
		return fmt.Sprintf("%s: %d-%d characters", platform, b.MinChars, b.MaxChars)
	}
	return fmt.Sprintf("%s: %d-%d words", platform, b.MinWords, b.MaxWords)
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
