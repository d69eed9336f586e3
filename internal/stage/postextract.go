package stage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/webasthetic/leadflow/internal/contact"
	"github.com/webasthetic/leadflow/internal/model"
	"github.com/webasthetic/leadflow/internal/resilience"
	"github.com/webasthetic/leadflow/internal/store"
)

// PostExtractor is the shared shape of the two post-body extraction stages.
// Both scan the raw post text; only the stage slot, the output collection,
// and the extraction function differ.
type PostExtractor struct {
	store   store.Store
	stage   model.Stage
	kind    model.ContactListKind
	extract func(text string) []string
}

// NewPostEmailExtractor creates the post_email stage processor.
func NewPostEmailExtractor(st store.Store) *PostExtractor {
	return &PostExtractor{
		store:   st,
		stage:   model.StagePostEmail,
		kind:    model.ListPostEmails,
		extract: contact.Emails,
	}
}

// NewPostMobileExtractor creates the post_mobile stage processor.
func NewPostMobileExtractor(st store.Store) *PostExtractor {
	return &PostExtractor{
		store:   st,
		stage:   model.StagePostMobile,
		kind:    model.ListPostMobiles,
		extract: contact.Phones,
	}
}

func (p *PostExtractor) Stage() model.Stage {
	return p.stage
}

func (p *PostExtractor) Process(ctx context.Context, t model.Tracker) (model.StageRefs, error) {
	item, err := p.store.GetSourceItem(ctx, t.SourceRef)
	if err != nil {
		return model.StageRefs{}, err
	}
	if item == nil {
		return model.StageRefs{}, resilience.ErrDataMissing
	}

	// Finding nothing is a completed extraction: the list row exists with
	// no values, which is distinct from the stage never having run.
	values := dedupe(p.extract(contact.CleanText(item.Content)))

	list := model.ContactList{
		ID:          uuid.New().String(),
		SourceRef:   t.SourceRef,
		TrackerID:   t.ID,
		Values:      values,
		ExtractedAt: time.Now().UTC(),
	}
	if err := p.store.InsertContactList(ctx, p.kind, list); err != nil {
		return model.StageRefs{}, err
	}

	refs := model.StageRefs{}
	switch p.stage {
	case model.StagePostEmail:
		refs.PostEmail = &list.ID
	case model.StagePostMobile:
		refs.PostMobile = &list.ID
	}
	return refs, nil
}

// dedupe preserves first-seen order and maps empty input to nil.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
