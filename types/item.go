package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CandidateItem is a single raw item delivered by the feed puller.
// It is immutable once created; the pipeline consumes it read-only.
type CandidateItem struct {
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	PublishedAt time.Time `json:"published_at"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Validate reports the first malformation found, or nil.
func (c *CandidateItem) Validate() error {
	if c.ExternalID == "" {
		return &ValidationError{Field: "external_id", Reason: "missing"}
	}
	if c.Title == "" {
		return &ValidationError{Field: "title", Reason: "missing"}
	}
	if c.URL == "" {
		return &ValidationError{Field: "url", Reason: "missing"}
	}
	if c.PublishedAt.IsZero() {
		return &ValidationError{Field: "published_at", Reason: "missing or unparseable"}
	}
	return nil
}

// GenerateID creates a short, stable ID by hashing the provided string input
func GenerateID(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}
