package model

import "time"

// LeadStatus tracks a master lead through outreach. It is deliberately
// independent of the tracker's stage map: dispatch decisions are made from
// the lead row alone.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusGenerated LeadStatus = "generated"
	LeadStatusSent      LeadStatus = "sent"
	LeadStatusFailed    LeadStatus = "failed"
)

// LeadSource records which stage output surfaced the contact email.
type LeadSource string

const (
	SourcePostBody       LeadSource = "post_body"
	SourceProfileAbout   LeadSource = "profile_about"
	SourceProfileContact LeadSource = "profile_contact"
)

// Lead is the deduplicated, enriched, outreach-ready record. Uniqueness is
// enforced on (email, lead_date) so the same address reappearing on a later
// batch day produces a fresh lead.
type Lead struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	LeadDate       string     `json:"lead_date"` // YYYY-MM-DD
	Name           string     `json:"name"`
	PostSummary    string     `json:"post_summary"`
	ProfileSummary string     `json:"profile_summary"`
	Source         LeadSource `json:"source"`
	TrackerID      string     `json:"tracker_id"`
	SourceRef      string     `json:"source_ref,omitempty"`
	Subject        string     `json:"generated_subject,omitempty"`
	Body           string     `json:"generated_body,omitempty"`
	GeneratedAt    *time.Time `json:"email_generated_at,omitempty"`
	Status         LeadStatus `json:"status"`
	SentAt         *time.Time `json:"email_sent_at,omitempty"`
	FailedAt       *time.Time `json:"email_failed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LeadContext is the enrichment bundle resolved from a tracker when a lead
// is upserted. Missing pieces degrade to placeholders rather than failing
// the upsert.
type LeadContext struct {
	Name           string
	PostSummary    string
	ProfileSummary string
	SourceRef      string
	LeadDate       string
}

// NotAvailable is the placeholder used when enrichment context cannot be
// resolved.
const NotAvailable = "Not available"
