package stage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/webasthetic/leadflow/internal/contact"
	"github.com/webasthetic/leadflow/internal/model"
	"github.com/webasthetic/leadflow/internal/profile"
	"github.com/webasthetic/leadflow/internal/resilience"
	"github.com/webasthetic/leadflow/internal/store"
)

// DeepScraper is the deep_scrape stage: it renders the post author's
// profile page and captures everything worth keeping in a single visit, so
// the intel stage never has to go back to the network for the page itself.
type DeepScraper struct {
	store   store.Store
	scraper profile.Scraper
}

// NewDeepScraper creates the deep_scrape stage processor.
func NewDeepScraper(st store.Store, scraper profile.Scraper) *DeepScraper {
	return &DeepScraper{store: st, scraper: scraper}
}

func (d *DeepScraper) Stage() model.Stage {
	return model.StageDeepScrape
}

func (d *DeepScraper) Process(ctx context.Context, t model.Tracker) (model.StageRefs, error) {
	item, err := d.store.GetSourceItem(ctx, t.SourceRef)
	if err != nil {
		return model.StageRefs{}, err
	}
	if item == nil || item.AuthorProfileURL == "" {
		return model.StageRefs{}, resilience.ErrDataMissing
	}

	profileURL := profile.CleanURL(item.AuthorProfileURL)
	page, err := d.scraper.FetchProfile(ctx, profileURL)
	if err != nil {
		return model.StageRefs{}, err
	}

	details, err := profile.Parse(page)
	if err != nil {
		return model.StageRefs{}, err
	}

	name := details.Name
	if name == "" {
		name = item.AuthorName
	}

	capture := model.ProfileCapture{
		ID:             uuid.New().String(),
		SourceRef:      t.SourceRef,
		TrackerID:      t.ID,
		Name:           name,
		ProfileType:    details.Type,
		Contacts:       contact.Extract(details.AboutText, page.HTML),
		BioLinks:       details.BioLinks,
		AboutText:      details.AboutText,
		ContactPDFLink: details.ContactPDFLink,
		ScrapedAt:      time.Now().UTC(),
	}
	if err := d.store.InsertProfileCapture(ctx, capture); err != nil {
		return model.StageRefs{}, err
	}
	return model.StageRefs{ProfileCapture: &capture.ID}, nil
}
