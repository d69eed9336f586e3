package model

import "time"

// SourceItem is one raw scraped unit (a LinkedIn post or profile hit)
// produced by the scraper. It is append-only: the pipeline reads it but
// never mutates it after insert.
type SourceItem struct {
	ID               string    `json:"id"`
	AuthorName       string    `json:"author_name,omitempty"`
	AuthorProfileURL string    `json:"author_profile_url,omitempty"`
	Content          string    `json:"content"`
	OriginURL        string    `json:"origin_url,omitempty"`
	CaptureDate      string    `json:"capture_date"` // YYYY-MM-DD in the configured timezone
	ScrapedAt        time.Time `json:"scraped_at"`
}
