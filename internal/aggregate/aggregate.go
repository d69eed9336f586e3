// Package aggregate fans contact emails from every extraction source into
// the master lead table, then generates outreach emails for the leads that
// need one. It is the only writer of master_leads.
package aggregate

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/webasthetic/leadflow/internal/model"
	"github.com/webasthetic/leadflow/internal/store"
)

// emailSource pairs a contact collection with the lead-source label its
// addresses get.
type emailSource struct {
	label model.LeadSource
	kind  model.ContactListKind
}

// Aggregator deduplicates extracted emails into master leads. The same
// address surfacing from several sources on the same day collapses into one
// lead; the enrichment context is refreshed on every pass.
type Aggregator struct {
	store    store.Store
	validate *validator.Validate
}

// Result tallies one aggregation pass.
type Result struct {
	Scanned int `json:"scanned"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Dropped int `json:"dropped"`
	Skipped int `json:"skipped"`
}

// NewAggregator creates an Aggregator.
func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{
		store:    st,
		validate: validator.New(),
	}
}

// Run scans all contact sources and upserts a lead per (email, leadDate).
// Addresses that fail validation are dropped and counted, never stored.
// Records whose tracker cannot be resolved are skipped; a lead is never
// written with a tracker reference that points nowhere.
func (a *Aggregator) Run(ctx context.Context, leadDate string) (Result, error) {
	var res Result
	log := zap.L().With(zap.String("lead_date", leadDate))

	sources := []emailSource{
		{model.SourcePostBody, model.ListPostEmails},
		{model.SourceProfileContact, model.ListProfileMails},
	}
	for _, src := range sources {
		lists, err := a.store.ListContactLists(ctx, src.kind)
		if err != nil {
			return res, err
		}
		for _, list := range lists {
			for _, email := range list.Values {
				a.upsertOne(ctx, &res, email, src.label, list.TrackerID, list.SourceRef, leadDate, log)
			}
		}
	}

	// Third source: addresses sitting in the profile capture itself (the
	// about section), which never pass through a contact list.
	captures, err := a.store.ListProfileCaptures(ctx)
	if err != nil {
		return res, err
	}
	for _, capture := range captures {
		for _, email := range capture.Contacts.Emails {
			a.upsertOne(ctx, &res, email, model.SourceProfileAbout, capture.TrackerID, capture.SourceRef, leadDate, log)
		}
	}

	log.Info("aggregation pass finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("dropped", res.Dropped),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (a *Aggregator) upsertOne(ctx context.Context, res *Result, email string, source model.LeadSource, trackerID, sourceRef, leadDate string, log *zap.Logger) {
	res.Scanned++

	email = strings.ToLower(strings.TrimSpace(email))
	if len(email) < 5 || a.validate.Var(email, "required,email") != nil {
		res.Dropped++
		log.Debug("dropping invalid address", zap.String("source_ref", sourceRef))
		return
	}

	lc, err := a.resolveContext(ctx, trackerID, sourceRef, leadDate)
	if err != nil {
		res.Skipped++
		log.Warn("skipping contact record, tracker unresolved",
			zap.String("source_ref", sourceRef), zap.Error(err))
		return
	}

	created, err := a.store.UpsertLead(ctx, model.Lead{
		Email:          email,
		LeadDate:       leadDate,
		Name:           lc.Name,
		PostSummary:    lc.PostSummary,
		ProfileSummary: lc.ProfileSummary,
		Source:         source,
		TrackerID:      trackerID,
		SourceRef:      lc.SourceRef,
	})
	if err != nil {
		res.Dropped++
		log.Error("lead upsert failed", zap.String("source_ref", sourceRef), zap.Error(err))
		return
	}
	if created {
		res.Created++
	} else {
		res.Updated++
	}
}
