package domain

import "time"

type TickKind string

const (
	TickRefresh TickKind = "refresh"
	TickPublish TickKind = "publish"
)

type Outcome string

const (
	OutcomePublished     Outcome = "published"
	OutcomeNoneAvailable Outcome = "none_available"
	OutcomeFailed        Outcome = "failed"
)

// CycleReport describes what a single publish tick did.
type CycleReport struct {
	CycleID    string
	Candidates int
	Outcome    Outcome
	Item       *MediaItem
	Result     *PublishResult
	Duration   time.Duration
}

// PublishedEvent is emitted after an item has been published and recorded.
type PublishedEvent struct {
	ItemID      string    `json:"item_id"`
	Filename    string    `json:"filename"`
	Caption     string    `json:"caption"`
	RemoteID    string    `json:"remote_id"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}
