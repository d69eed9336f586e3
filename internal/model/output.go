package model

import "time"

// PostSummary is the summary stage's output: the AI's read of a post for
// cold-email targeting.
type PostSummary struct {
	ID              string    `json:"id"`
	SourceRef       string    `json:"source_ref"`
	Intent          string    `json:"intent,omitempty"`
	Role            string    `json:"role,omitempty"`
	SummaryText     string    `json:"summary_text,omitempty"`
	Personalization string    `json:"personalization,omitempty"`
	Raw             string    `json:"raw,omitempty"` // verbatim model output
	GeneratedAt     time.Time `json:"generated_at"`
}

// ContactListKind distinguishes the insert-only contact list collections.
type ContactListKind string

const (
	ListPostEmails     ContactListKind = "post_emails"
	ListPostMobiles    ContactListKind = "post_mobiles"
	ListProfileMails   ContactListKind = "profile_mails"
	ListProfileMobiles ContactListKind = "profile_mobiles"
	ListProfileLinks   ContactListKind = "profile_links"
)

// ContactList is one extraction stage's output for one source item: a list
// of emails, phones, or links. Values is nil when the extraction ran
// successfully but found nothing, which is a valid outcome distinct from a
// processing failure.
type ContactList struct {
	ID          string    `json:"id"`
	SourceRef   string    `json:"source_ref"`
	TrackerID   string    `json:"tracker_id"`
	Values      []string  `json:"values,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// ProfileType distinguishes personal profiles from company pages.
type ProfileType string

const (
	ProfileTypeUser    ProfileType = "user"
	ProfileTypeCompany ProfileType = "company"
	ProfileTypeUnknown ProfileType = "unknown"
)

// ProfileCapture is the deep-scrape stage's output: everything pulled from
// the author's profile page in one visit.
type ProfileCapture struct {
	ID             string        `json:"id"`
	SourceRef      string        `json:"source_ref"`
	TrackerID      string        `json:"tracker_id"`
	Name           string        `json:"name,omitempty"`
	ProfileType    ProfileType   `json:"profile_type"`
	Contacts       ContactBundle `json:"contacts"`
	BioLinks       []string      `json:"bio_links,omitempty"`
	AboutText      string        `json:"about_text,omitempty"`
	ContactPDFLink string        `json:"contact_pdf_link,omitempty"`
	ScrapedAt      time.Time     `json:"scraped_at"`
}

// ProfileSummary is the profile-intel stage's AI summary of a captured
// profile.
type ProfileSummary struct {
	ID          string    `json:"id"`
	SourceRef   string    `json:"source_ref"`
	Summary     string    `json:"summary"`
	GeneratedAt time.Time `json:"generated_at"`
}
