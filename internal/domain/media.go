package domain

import "time"

// MediaItem is one candidate fetched from the album. It is only valid for
// the selection and publish attempt it was fetched for: DownloadURL expires.
type MediaItem struct {
	ID            string
	DownloadURL   string
	Caption       string
	Filename      string
	MimeType      string
	FileExtension string
}

// DedupRecord marks an item as published. Records are never updated or
// removed once written.
type DedupRecord struct {
	ItemID      string    `db:"item_id"`
	Filename    string    `db:"filename"`
	RemoteID    string    `db:"remote_id"`
	PublishedAt time.Time `db:"published_at"`
}

// StagedFile is the single downloaded payload waiting to be published.
type StagedFile struct {
	ItemID string
	Path   string
	Size   int64
}

// Post is what gets submitted to the destination.
type Post struct {
	Data     []byte
	Filename string
	Caption  string
}

// PublishResult is the destination's answer to a publish call.
type PublishResult struct {
	Status   string
	RemoteID string
	URL      string
}

const PublishStatusOK = "ok"

func (r *PublishResult) OK() bool {
	return r != nil && r.Status == PublishStatusOK
}

type PublishState struct {
	LastItemID      string    `db:"last_item_id"`
	LastPublishedAt time.Time `db:"last_published_at"`
	TotalPublished  int64     `db:"total_published"`
}
