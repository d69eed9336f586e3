package aggregate

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/webasthetic/leadflow/internal/model"
)

// errNoTracker marks a contact record whose tracker no longer resolves.
// The caller skips such records instead of fabricating a lead around a
// dangling reference.
var errNoTracker = eris.New("no tracker resolves for contact record")

// resolveContext assembles the enrichment bundle for a lead. The tracker is
// found by its recorded ID first; rows written before tracker IDs were
// stamped on outputs fall back to the source-ref index. With the tracker in
// hand, every enrichment piece that cannot be resolved degrades to a
// placeholder; without one the record is unusable and errNoTracker comes
// back.
func (a *Aggregator) resolveContext(ctx context.Context, trackerID, sourceRef, leadDate string) (*model.LeadContext, error) {
	lc := &model.LeadContext{
		Name:           model.NotAvailable,
		PostSummary:    model.NotAvailable,
		ProfileSummary: model.NotAvailable,
		SourceRef:      sourceRef,
		LeadDate:       leadDate,
	}

	var tracker *model.Tracker
	var err error
	if trackerID != "" {
		tracker, err = a.store.GetTracker(ctx, trackerID)
		if err != nil {
			return lc, err
		}
	}
	if tracker == nil {
		tracker, err = a.store.FindTrackerBySourceRef(ctx, sourceRef)
		if err != nil {
			return lc, err
		}
	}
	if tracker == nil {
		return lc, eris.Wrapf(errNoTracker, "source %s", sourceRef)
	}
	lc.SourceRef = tracker.SourceRef

	if item, err := a.store.GetSourceItem(ctx, tracker.SourceRef); err == nil && item != nil && item.AuthorName != "" {
		lc.Name = item.AuthorName
	}

	if tracker.Refs.Summary != nil {
		if ps, err := a.store.GetPostSummary(ctx, *tracker.Refs.Summary); err == nil && ps != nil {
			lc.PostSummary = summaryText(ps)
		}
	} else if ps, err := a.store.FindPostSummaryBySourceRef(ctx, tracker.SourceRef); err == nil && ps != nil {
		lc.PostSummary = summaryText(ps)
	}

	if tracker.Refs.ProfileSummary != nil {
		if ps, err := a.store.GetProfileSummary(ctx, *tracker.Refs.ProfileSummary); err == nil && ps != nil && ps.Summary != "" {
			lc.ProfileSummary = ps.Summary
		}
	}

	if tracker.Refs.ProfileCapture != nil {
		if capture, err := a.store.GetProfileCapture(ctx, *tracker.Refs.ProfileCapture); err == nil && capture != nil && capture.Name != "" {
			lc.Name = capture.Name
		}
	}

	return lc, nil
}

func summaryText(ps *model.PostSummary) string {
	if ps.SummaryText != "" {
		return ps.SummaryText
	}
	if ps.Raw != "" {
		return ps.Raw
	}
	return model.NotAvailable
}
