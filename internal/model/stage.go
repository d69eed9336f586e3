package model

// Stage identifies one independent enrichment step in the pipeline. Stages
// are keyed by name rather than position so adding a stage never reshuffles
// existing tracker records.
type Stage string

const (
	StageSummary      Stage = "summary"       // AI post summarization
	StagePostEmail    Stage = "post_email"    // email extraction from post body
	StagePostMobile   Stage = "post_mobile"   // phone extraction from post body
	StageDeepScrape   Stage = "deep_scrape"   // author profile capture
	StageProfileIntel Stage = "profile_intel" // profile contact + AI summary processing
	StageOutreach     Stage = "outreach"      // lead aggregation + email generation
)

// AllStages returns every pipeline stage in canonical order. The order is
// informational only: each stage gates itself on its own status slot.
func AllStages() []Stage {
	return []Stage{
		StageSummary,
		StagePostEmail,
		StagePostMobile,
		StageDeepScrape,
		StageProfileIntel,
		StageOutreach,
	}
}

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool {
	for _, known := range AllStages() {
		if s == known {
			return true
		}
	}
	return false
}

// StageStatus is the per-stage progress marker on a tracker.
type StageStatus int

const (
	StatusPending StageStatus = 0
	StatusDone    StageStatus = 1
	StatusFailed  StageStatus = 2
)

func (s StageStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
