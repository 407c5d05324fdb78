package pipeline

import (
	"regexp"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

var (
	nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)
	// Trailing publisher suffix, e.g. "Headline - Some Outlet" or
	// "Headline | Outlet Name". Only stripped when the remainder still
	// looks like a headline and the suffix looks like an outlet name.
	sourceSuffix = regexp.MustCompile(`\s+[-|]\s+[^-|]{1,40}$`)
)

// NormalizeTitle produces the canonical fuzzy-title key: publisher suffix
// stripped, lowercased, punctuation removed, whitespace collapsed.
func NormalizeTitle(title string) string {
	trimmed := strings.TrimSpace(title)
	if stripped := sourceSuffix.ReplaceAllString(trimmed, ""); len(strings.Fields(stripped)) >= 3 {
		trimmed = stripped
	}
	lowered := nonAlnum.ReplaceAllString(strings.ToLower(trimmed), " ")
	return strings.Join(strings.Fields(lowered), " ")
}

// TokenSortSimilarity compares two normalized titles with their tokens
// alphabetically sorted, yielding a 0..1 Levenshtein-derived score. Used
// for event clustering, where shared vocabulary in any order signals the
// same story.
func TokenSortSimilarity(a, b string) float64 {
	return levenshteinSimilarity(sortTokens(a), sortTokens(b))
}

// TokenSetSimilarity compares the token sets of two normalized titles:
// the intersection is scored against each side's remainder and the best
// of the three comparisons wins. Less prone to false positives from a
// single dominant shared word than plain token sorting, which matters
// for headline deduplication.
func TokenSetSimilarity(a, b string) float64 {
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)

	setA := make(map[string]struct{}, len(tokensA))
	for _, t := range tokensA {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(tokensB))
	for _, t := range tokensB {
		setB[t] = struct{}{}
	}

	var intersection, onlyA, onlyB []string
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection = append(intersection, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(intersection)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	common := strings.Join(intersection, " ")
	combinedA := strings.TrimSpace(common + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(common + " " + strings.Join(onlyB, " "))

	best := levenshteinSimilarity(combinedA, combinedB)
	if common != "" {
		if s := levenshteinSimilarity(common, combinedA); s > best {
			best = s
		}
		if s := levenshteinSimilarity(common, combinedB); s > best {
			best = s
		}
	}
	return best
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func levenshteinSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return strutil.Similarity(a, b, metrics.NewLevenshtein())
}
