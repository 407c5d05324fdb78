package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"regexp"
	"sort"
	"strings"

	prose "github.com/jdkato/prose/v2"
)

// EntityExtractor pulls named entities (people, places, organizations,
// dates) out of a headline and description. Injected so tests can supply
// deterministic doubles.
type EntityExtractor interface {
	Extract(title, description string) []string
}

// ProseExtractor implements EntityExtractor with the prose NLP library,
// supplemented by a year matcher since the tagger does not label dates.
type ProseExtractor struct{}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Extract returns lowercased, deduplicated entity strings. An extraction
// failure yields an empty set, which downstream treats as "cannot
// compare, allow through".
func (ProseExtractor) Extract(title, description string) []string {
	text := strings.TrimSpace(title + " " + description)
	if text == "" {
		return nil
	}

	seen := make(map[string]struct{})

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		log.Printf("Warning: entity extraction failed: %v", err)
	} else {
		for _, ent := range doc.Entities() {
			cleaned := strings.ToLower(strings.TrimSpace(ent.Text))
			if cleaned != "" {
				seen[cleaned] = struct{}{}
			}
		}
	}

	for _, year := range yearPattern.FindAllString(text, -1) {
		seen[year] = struct{}{}
	}

	if len(seen) == 0 {
		return nil
	}
	entities := make([]string, 0, len(seen))
	for e := range seen {
		entities = append(entities, e)
	}
	sort.Strings(entities)
	return entities
}

// EntityFingerprint derives the canonical fingerprint of an entity set:
// sorted entities joined and hashed. Empty input yields an empty
// fingerprint, meaning the item cannot be compared on entities.
func EntityFingerprint(entities []string) string {
	if len(entities) == 0 {
		return ""
	}
	sorted := make([]string, len(entities))
	copy(sorted, entities)
	sort.Strings(sorted)

	h := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return hex.EncodeToString(h[:])
}
