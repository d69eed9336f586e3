package stage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webasthetic/leadflow/internal/contact"
	"github.com/webasthetic/leadflow/internal/model"
	"github.com/webasthetic/leadflow/internal/ocr"
	"github.com/webasthetic/leadflow/internal/profile"
	"github.com/webasthetic/leadflow/internal/resilience"
	"github.com/webasthetic/leadflow/internal/store"
	"github.com/webasthetic/leadflow/pkg/aitext"
)

const profileSummarySystem = `You profile professionals for a B2B outreach team.
Given what is known about a person or company, write a 2-3 sentence factual profile
summary useful for personalizing a cold email. Respond with the summary text only.`

// ProfileIntel is the profile_intel stage. It turns a stored profile
// capture into four outputs in one pass: phone, mail, and link contact
// lists plus an AI profile summary. Personal profiles with a contact-info
// document get that document fetched and OCR'd for extra contacts.
type ProfileIntel struct {
	store   store.Store
	ai      aitext.Completer
	models  []string
	retry   resilience.RetryConfig
	scraper profile.Scraper
	ocr     ocr.Extractor
}

// NewProfileIntel creates the profile_intel stage processor.
func NewProfileIntel(st store.Store, ai aitext.Completer, models []string, scraper profile.Scraper, extractor ocr.Extractor) *ProfileIntel {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("aitext", "profile_summary")
	return &ProfileIntel{
		store:   st,
		ai:      ai,
		models:  models,
		retry:   retry,
		scraper: scraper,
		ocr:     extractor,
	}
}

func (p *ProfileIntel) Stage() model.Stage {
	return model.StageProfileIntel
}

func (p *ProfileIntel) Process(ctx context.Context, t model.Tracker) (model.StageRefs, error) {
	if t.Refs.ProfileCapture == nil {
		return model.StageRefs{}, resilience.ErrDataMissing
	}
	capture, err := p.store.GetProfileCapture(ctx, *t.Refs.ProfileCapture)
	if err != nil {
		return model.StageRefs{}, err
	}
	if capture == nil {
		return model.StageRefs{}, resilience.ErrDataMissing
	}

	contacts := capture.Contacts
	if capture.ProfileType == model.ProfileTypeUser && capture.ContactPDFLink != "" {
		pdfContacts, err := p.contactsFromPDF(ctx, capture.ContactPDFLink)
		if err != nil {
			// The page capture already holds usable contacts; a dead
			// document link downgrades the result instead of failing it.
			zap.L().Warn("contact document extraction failed",
				zap.String("source_ref", capture.SourceRef), zap.Error(err))
		} else {
			contacts = contacts.Merge(pdfContacts)
		}
	}

	summaryText, err := p.summarize(ctx, capture)
	if err != nil {
		return model.StageRefs{}, err
	}

	now := time.Now().UTC()
	refs := model.StageRefs{}

	lists := []struct {
		kind   model.ContactListKind
		values []string
		ref    **string
	}{
		{model.ListProfileMobiles, contacts.Phones, &refs.ProfileMobile},
		{model.ListProfileMails, contacts.Emails, &refs.ProfileMail},
		{model.ListProfileLinks, mergeLinks(contacts.Links, capture.BioLinks), &refs.ProfileLinks},
	}
	for _, l := range lists {
		list := model.ContactList{
			ID:          uuid.New().String(),
			SourceRef:   capture.SourceRef,
			TrackerID:   t.ID,
			Values:      l.values,
			ExtractedAt: now,
		}
		if err := p.store.InsertContactList(ctx, l.kind, list); err != nil {
			return model.StageRefs{}, err
		}
		id := list.ID
		*l.ref = &id
	}

	summary := model.ProfileSummary{
		ID:          uuid.New().String(),
		SourceRef:   capture.SourceRef,
		Summary:     summaryText,
		GeneratedAt: now,
	}
	if err := p.store.InsertProfileSummary(ctx, summary); err != nil {
		return model.StageRefs{}, err
	}
	refs.ProfileSummary = &summary.ID

	return refs, nil
}

func (p *ProfileIntel) contactsFromPDF(ctx context.Context, pdfLink string) (model.ContactBundle, error) {
	path, err := p.scraper.FetchContactPDF(ctx, pdfLink)
	if err != nil {
		return model.ContactBundle{}, err
	}
	defer os.Remove(path) //nolint:errcheck

	text, err := p.ocr.ExtractText(ctx, path)
	if err != nil {
		return model.ContactBundle{}, err
	}
	return contact.Extract(text, ""), nil
}

func (p *ProfileIntel) summarize(ctx context.Context, capture *model.ProfileCapture) (string, error) {
	about := capture.AboutText
	if about == "" {
		about = "No profile description available."
	}
	prompt := fmt.Sprintf("Name: %s\nProfile type: %s\n\nAbout:\n%s",
		capture.Name, capture.ProfileType, about)

	resp, err := aitext.CompleteWithFallback(ctx, p.ai, p.models, p.retry, aitext.Request{
		System:    profileSummarySystem,
		Prompt:    prompt,
		MaxTokens: 512,
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(resp.Model, string(p.Stage()))
	return contact.CleanText(resp.Text), nil
}

func mergeLinks(a, b []string) []string {
	return dedupe(append(append([]string{}, a...), b...))
}
