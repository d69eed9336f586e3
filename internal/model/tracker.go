package model

import "time"

// Tracker is the per-item coordination record. One tracker exists per
// SourceItem; every stage worker discovers its backlog by scanning for
// trackers whose own stage status is still pending, and records completion
// by setting the status plus the output references for that stage.
//
// Invariants:
//   - Stages[s] == StatusDone implies the stage's primary output reference
//     in Refs is non-nil and resolves to an existing output record.
//   - Stages[s] == StatusFailed implies Error is set; the reference stays nil.
type Tracker struct {
	ID        string                `json:"id"`
	SourceRef string                `json:"source_ref"`
	Stages    map[Stage]StageStatus `json:"stages"`
	Refs      StageRefs             `json:"refs"`
	Error     string                `json:"error,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// StageRefs holds the nullable output references a tracker accumulates as
// stages complete. The profile-intel stage writes four records at once, so
// it owns four slots; every other stage owns one.
type StageRefs struct {
	Summary        *string `json:"summary,omitempty"`
	PostEmail      *string `json:"post_email,omitempty"`
	PostMobile     *string `json:"post_mobile,omitempty"`
	ProfileCapture *string `json:"profile_capture,omitempty"`
	ProfileMobile  *string `json:"profile_mobile,omitempty"`
	ProfileMail    *string `json:"profile_mail,omitempty"`
	ProfileLinks   *string `json:"profile_links,omitempty"`
	ProfileSummary *string `json:"profile_summary,omitempty"`
}

// NewStages returns a status map with every stage pending.
func NewStages() map[Stage]StageStatus {
	m := make(map[Stage]StageStatus, len(AllStages()))
	for _, s := range AllStages() {
		m[s] = StatusPending
	}
	return m
}

// StageStatusOf returns the tracker's status for s, defaulting to pending
// for trackers created before a stage existed.
func (t *Tracker) StageStatusOf(s Stage) StageStatus {
	if t.Stages == nil {
		return StatusPending
	}
	return t.Stages[s]
}

// PrimaryRef returns the output reference that must be present for the
// given stage to count as done, or nil for stages without one (outreach
// records its output on the lead, not the tracker).
func (t *Tracker) PrimaryRef(s Stage) *string {
	switch s {
	case StageSummary:
		return t.Refs.Summary
	case StagePostEmail:
		return t.Refs.PostEmail
	case StagePostMobile:
		return t.Refs.PostMobile
	case StageDeepScrape:
		return t.Refs.ProfileCapture
	case StageProfileIntel:
		return t.Refs.ProfileSummary
	default:
		return nil
	}
}
