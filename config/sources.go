package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sources describes where items come from and which domains are trusted.
// Domain order is significant: the first entry is the most trusted source
// and wins event-cluster conflicts.
type Sources struct {
	Feeds   []string `yaml:"feeds"`
	Domains []string `yaml:"domains"`
}

// LoadSources reads and parses the YAML sources file.
func LoadSources(path string) (*Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	for i, d := range s.Domains {
		s.Domains[i] = NormalizeDomain(d)
	}
	return &s, nil
}

// TrustRanks maps each allow-listed domain to its trust rank.
// Lower rank means higher trust.
func (s *Sources) TrustRanks() map[string]int {
	ranks := make(map[string]int, len(s.Domains))
	for i, d := range s.Domains {
		if _, seen := ranks[d]; !seen {
			ranks[d] = i
		}
	}
	return ranks
}

// NormalizeDomain lowercases a domain and strips the www. prefix so that
// feed-reported and configured domains compare equal.
func NormalizeDomain(domain string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
}
