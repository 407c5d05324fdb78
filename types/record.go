package types

import "time"

// RecordStatus is the lifecycle state of a stored record.
// The only legal transition is Pending -> Posted.
type RecordStatus string

const (
	StatusPending RecordStatus = "Pending"
	StatusPosted  RecordStatus = "Posted"
)

// StoredRecord is the persisted form of an item that cleared all seven
// pipeline stages. One record per item, created with status Pending and
// mutated only by the research loop flipping Pending -> Posted.
type StoredRecord struct {
	ExternalID        string       `json:"external_id"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	URL               string       `json:"url"`
	Domain            string       `json:"domain"`
	ContentHash       string       `json:"content_hash"`
	FuzzyTitleKey     string       `json:"fuzzy_title_key"`
	EntityFingerprint string       `json:"entity_fingerprint"`
	EmbeddingID       string       `json:"embedding_id"`
	Status            RecordStatus `json:"status"`
	PublishedAt       time.Time    `json:"published_at"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Platform identifies the social platform a draft targets.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformX         Platform = "x"
)

// Platforms lists every platform a processed item produces a draft for.
var Platforms = []Platform{PlatformFacebook, PlatformInstagram, PlatformX}

// DraftStatus is the presentation-layer lifecycle of a draft post.
type DraftStatus string

const (
	DraftStatusDraft     DraftStatus = "draft"
	DraftStatusScheduled DraftStatus = "scheduled"
	DraftStatusPublished DraftStatus = "published"
)

// DraftPost is one platform-specific piece of generated content.
// The research loop creates it; the presentation layer owns it afterwards.
type DraftPost struct {
	ID           string      `json:"id"`
	SourceItemID string      `json:"source_item_id"`
	Platform     Platform    `json:"platform"`
	Content      string      `json:"content"`
	Status       DraftStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// ResearchTarget is one concrete fact-finding goal produced by planning.
// The list is scoped to a single research loop invocation.
type ResearchTarget struct {
	Description string `json:"description"`
	Achieved    bool   `json:"achieved"`
}
