package store

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webasthetic/leadflow/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func testItem(id, captureDate string) model.SourceItem {
	return model.SourceItem{
		ID:               id,
		AuthorName:       "Jane Doe",
		AuthorProfileURL: "https://www.linkedin.com/in/janedoe",
		Content:          "We are hiring! Reach out to jobs@acme.com",
		OriginURL:        "https://www.linkedin.com/posts/" + id,
		CaptureDate:      captureDate,
		ScrapedAt:        time.Now().UTC(),
	}
}

func TestSourceItems_InsertIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	item := testItem("post-1", "2026-09-01")
	require.NoError(t, st.InsertSourceItem(ctx, item))

	dup := item
	dup.Content = "changed content"
	require.NoError(t, st.InsertSourceItem(ctx, dup))

	got, err := st.GetSourceItem(ctx, "post-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, item.Content, got.Content)

	missing, err := st.GetSourceItem(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBulkInsertSourceItems(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertSourceItem(ctx, testItem("post-1", "2026-09-01")))

	n, err := st.BulkInsertSourceItems(ctx, []model.SourceItem{
		testItem("post-1", "2026-09-01"),
		testItem("post-2", "2026-09-01"),
		testItem("post-3", "2026-09-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	items, err := st.ListSourceItemsByDate(ctx, "2026-09-01")
	require.NoError(t, err)
	assert.Len(t, items, 3)

	n, err = st.BulkInsertSourceItems(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListSourceItemsByDate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertSourceItem(ctx, testItem("post-1", "2026-09-01")))
	require.NoError(t, st.InsertSourceItem(ctx, testItem("post-2", "2026-09-01")))
	require.NoError(t, st.InsertSourceItem(ctx, testItem("post-3", "2026-08-31")))

	items, err := st.ListSourceItemsByDate(ctx, "2026-09-01")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestEnsureTracker_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.EnsureTracker(ctx, "post-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	again, err := st.EnsureTracker(ctx, "post-1")
	require.NoError(t, err)
	require.NotNil(t, again)

	assert.Equal(t, first.ID, again.ID)
	for _, stg := range model.AllStages() {
		assert.Equal(t, model.StatusPending, again.StageStatusOf(stg))
	}
	assert.Nil(t, again.Refs.Summary)
}

func TestCompleteStage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tr, err := st.EnsureTracker(ctx, "post-1")
	require.NoError(t, err)

	ref := "summary-1"
	require.NoError(t, st.CompleteStage(ctx, tr.ID, model.StageSummary, model.StageRefs{Summary: &ref}))

	got, err := st.GetTracker(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, got.StageStatusOf(model.StageSummary))
	assert.Equal(t, model.StatusPending, got.StageStatusOf(model.StagePostEmail))
	require.NotNil(t, got.Refs.Summary)
	assert.Equal(t, "summary-1", *got.Refs.Summary)
	assert.Nil(t, got.Refs.PostEmail)

	// Exactly-once: a second completion must not slip through.
	err = st.CompleteStage(ctx, tr.ID, model.StageSummary, model.StageRefs{Summary: &ref})
	assert.Error(t, err)
}

func TestCompleteStage_MergesRefsAcrossStages(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tr, err := st.EnsureTracker(ctx, "post-1")
	require.NoError(t, err)

	summaryRef, emailRef := "summary-1", "emails-1"
	require.NoError(t, st.CompleteStage(ctx, tr.ID, model.StageSummary, model.StageRefs{Summary: &summaryRef}))
	require.NoError(t, st.CompleteStage(ctx, tr.ID, model.StagePostEmail, model.StageRefs{PostEmail: &emailRef}))

	got, err := st.GetTracker(ctx, tr.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Refs.Summary)
	require.NotNil(t, got.Refs.PostEmail)
	assert.Equal(t, "summary-1", *got.Refs.Summary)
	assert.Equal(t, "emails-1", *got.Refs.PostEmail)
}

// refsFor builds the StageRefs payload carrying ref in the slot the given
// stage records its primary output under.
func refsFor(stg model.Stage, ref string) model.StageRefs {
	switch stg {
	case model.StageSummary:
		return model.StageRefs{Summary: &ref}
	case model.StagePostEmail:
		return model.StageRefs{PostEmail: &ref}
	case model.StagePostMobile:
		return model.StageRefs{PostMobile: &ref}
	case model.StageDeepScrape:
		return model.StageRefs{ProfileCapture: &ref}
	case model.StageProfileIntel:
		return model.StageRefs{ProfileSummary: &ref}
	default:
		return model.StageRefs{}
	}
}

func TestCompleteStage_DoneImpliesRecordedRef(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Complete random subsets of stages in random order: every completed
	// stage must read back done with its ref in place, every other stage
	// must stay pending with a nil ref.
	rng := rand.New(rand.NewSource(1))
	for run := 0; run < 20; run++ {
		tr, err := st.EnsureTracker(ctx, fmt.Sprintf("post-%d", run))
		require.NoError(t, err)

		stages := model.AllStages()
		rng.Shuffle(len(stages), func(i, j int) { stages[i], stages[j] = stages[j], stages[i] })

		completed := make(map[model.Stage]string)
		for _, stg := range stages {
			if rng.Intn(2) == 0 {
				continue
			}
			ref := fmt.Sprintf("ref-%d-%s", run, stg)
			require.NoError(t, st.CompleteStage(ctx, tr.ID, stg, refsFor(stg, ref)))
			completed[stg] = ref
		}

		got, err := st.GetTracker(ctx, tr.ID)
		require.NoError(t, err)
		for _, stg := range model.AllStages() {
			ref, done := completed[stg]
			if !done {
				assert.Equal(t, model.StatusPending, got.StageStatusOf(stg), "run %d stage %s", run, stg)
				assert.Nil(t, got.PrimaryRef(stg), "run %d stage %s", run, stg)
				continue
			}
			assert.Equal(t, model.StatusDone, got.StageStatusOf(stg), "run %d stage %s", run, stg)
			if stg == model.StageOutreach {
				// Outreach records its output on the lead, not the tracker.
				continue
			}
			require.NotNil(t, got.PrimaryRef(stg), "run %d stage %s", run, stg)
			assert.Equal(t, ref, *got.PrimaryRef(stg), "run %d stage %s", run, stg)
		}
	}
}

func TestFailStage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tr, err := st.EnsureTracker(ctx, "post-1")
	require.NoError(t, err)

	require.NoError(t, st.FailStage(ctx, tr.ID, model.StageDeepScrape, "profile fetch timed out"))

	got, err := st.GetTracker(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.StageStatusOf(model.StageDeepScrape))
	assert.Equal(t, "profile fetch timed out", got.Error)
	assert.Nil(t, got.Refs.ProfileCapture)

	// A settled stage can be neither completed nor re-failed.
	ref := "capture-1"
	assert.Error(t, st.CompleteStage(ctx, tr.ID, model.StageDeepScrape, model.StageRefs{ProfileCapture: &ref}))
	assert.Error(t, st.FailStage(ctx, tr.ID, model.StageDeepScrape, "again"))
}

func TestFailStage_NeverDowngradesDone(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tr, err := st.EnsureTracker(ctx, "post-1")
	require.NoError(t, err)

	ref := "summary-1"
	require.NoError(t, st.CompleteStage(ctx, tr.ID, model.StageSummary, model.StageRefs{Summary: &ref}))
	assert.Error(t, st.FailStage(ctx, tr.ID, model.StageSummary, "late failure"))

	got, err := st.GetTracker(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, got.StageStatusOf(model.StageSummary))
}

func TestFindPending(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertSourceItem(ctx, testItem("post-1", "2026-09-01")))
	require.NoError(t, st.InsertSourceItem(ctx, testItem("post-2", "2026-08-31")))

	t1, err := st.EnsureTracker(ctx, "post-1")
	require.NoError(t, err)
	_, err = st.EnsureTracker(ctx, "post-2")
	require.NoError(t, err)

	pending, err := st.FindPending(ctx, model.StageSummary, PendingFilter{})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	// Scoped to a capture date.
	pending, err = st.FindPending(ctx, model.StageSummary, PendingFilter{CaptureDate: "2026-09-01"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, t1.ID, pending[0].ID)

	// Completed trackers drop out of the backlog.
	ref := "summary-1"
	require.NoError(t, st.CompleteStage(ctx, t1.ID, model.StageSummary, model.StageRefs{Summary: &ref}))
	pending, err = st.FindPending(ctx, model.StageSummary, PendingFilter{CaptureDate: "2026-09-01"})
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = st.FindPending(ctx, model.Stage("bogus"), PendingFilter{})
	assert.Error(t, err)
}

func TestTrackerStageCounts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t1, err := st.EnsureTracker(ctx, "post-1")
	require.NoError(t, err)
	t2, err := st.EnsureTracker(ctx, "post-2")
	require.NoError(t, err)

	ref := "summary-1"
	require.NoError(t, st.CompleteStage(ctx, t1.ID, model.StageSummary, model.StageRefs{Summary: &ref}))
	require.NoError(t, st.FailStage(ctx, t2.ID, model.StageSummary, "boom"))

	counts, err := st.TrackerStageCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.StageSummary][model.StatusDone])
	assert.Equal(t, 1, counts[model.StageSummary][model.StatusFailed])
	assert.Equal(t, 2, counts[model.StagePostEmail][model.StatusPending])
}

func TestContactLists_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	withValues := model.ContactList{
		ID: "cl-1", SourceRef: "post-1", TrackerID: "tr-1",
		Values: []string{"jobs@acme.com"}, ExtractedAt: now,
	}
	require.NoError(t, st.InsertContactList(ctx, model.ListPostEmails, withValues))

	// Nothing found is a valid outcome, stored as NULL.
	empty := model.ContactList{ID: "cl-2", SourceRef: "post-2", TrackerID: "tr-2", ExtractedAt: now}
	require.NoError(t, st.InsertContactList(ctx, model.ListPostEmails, empty))

	got, err := st.GetContactList(ctx, model.ListPostEmails, "cl-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"jobs@acme.com"}, got.Values)

	got, err = st.GetContactList(ctx, model.ListPostEmails, "cl-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Values)

	lists, err := st.ListContactLists(ctx, model.ListPostEmails)
	require.NoError(t, err)
	assert.Len(t, lists, 2)

	// Kinds are isolated tables.
	lists, err = st.ListContactLists(ctx, model.ListPostMobiles)
	require.NoError(t, err)
	assert.Empty(t, lists)

	err = st.InsertContactList(ctx, model.ContactListKind("bogus"), withValues)
	assert.Error(t, err)
}

func TestPostSummary_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ps := model.PostSummary{
		ID: "sum-1", SourceRef: "post-1",
		Intent: "hiring", Role: "founder",
		SummaryText:     "Founder hiring Go engineers.",
		Personalization: "Congratulate on the seed round.",
		Raw:             `{"intent":"hiring"}`,
		GeneratedAt:     time.Now().UTC(),
	}
	require.NoError(t, st.InsertPostSummary(ctx, ps))

	got, err := st.GetPostSummary(ctx, "sum-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hiring", got.Intent)

	bySrc, err := st.FindPostSummaryBySourceRef(ctx, "post-1")
	require.NoError(t, err)
	require.NotNil(t, bySrc)
	assert.Equal(t, "sum-1", bySrc.ID)

	missing, err := st.FindPostSummaryBySourceRef(ctx, "post-9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProfileCapture_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	capture := model.ProfileCapture{
		ID: "cap-1", SourceRef: "post-1", TrackerID: "tr-1",
		Name:        "Jane Doe",
		ProfileType: model.ProfileTypeUser,
		Contacts: model.NewContactBundle(
			[]string{"jane@acme.com"}, []string{"555-123-4567"}, nil,
		),
		BioLinks:       []string{"https://acme.com"},
		AboutText:      "Building things.",
		ContactPDFLink: "https://cdn.example.com/contact.pdf",
		ScrapedAt:      time.Now().UTC(),
	}
	require.NoError(t, st.InsertProfileCapture(ctx, capture))

	got, err := st.GetProfileCapture(ctx, "cap-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ProfileTypeUser, got.ProfileType)
	assert.Equal(t, []string{"jane@acme.com"}, got.Contacts.Emails)
	assert.Equal(t, []string{"https://acme.com"}, got.BioLinks)

	all, err := st.ListProfileCaptures(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProfileSummary_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertProfileSummary(ctx, model.ProfileSummary{
		ID: "psum-1", SourceRef: "post-1",
		Summary:     "Founder at Acme, ex-BigCo.",
		GeneratedAt: time.Now().UTC(),
	}))

	got, err := st.GetProfileSummary(ctx, "psum-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Founder at Acme, ex-BigCo.", got.Summary)

	missing, err := st.GetProfileSummary(ctx, "psum-9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertLead_PreservesCreatedAtAndStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	lead := model.Lead{
		Email:       "jane@acme.com",
		LeadDate:    "2026-09-01",
		Name:        "Jane Doe",
		PostSummary: "Hiring Go engineers.",
		Source:      model.SourcePostBody,
		TrackerID:   "tr-1",
		SourceRef:   "post-1",
	}
	created, err := st.UpsertLead(ctx, lead)
	require.NoError(t, err)
	assert.True(t, created)

	first, err := st.GetLead(ctx, "jane@acme.com", "2026-09-01")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, model.LeadStatusNew, first.Status)

	require.NoError(t, st.MarkLeadGenerated(ctx, first.ID, "Hello Jane", "Body text"))

	// A later pass refreshes enrichment without resetting outreach state.
	lead.Name = "Jane A. Doe"
	created, err = st.UpsertLead(ctx, lead)
	require.NoError(t, err)
	assert.False(t, created)

	again, err := st.GetLead(ctx, "jane@acme.com", "2026-09-01")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Jane A. Doe", again.Name)
	assert.Equal(t, model.LeadStatusGenerated, again.Status)
	assert.True(t, again.CreatedAt.Equal(first.CreatedAt))

	// Same email on a different day is a fresh lead.
	lead.LeadDate = "2026-09-02"
	created, err = st.UpsertLead(ctx, lead)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestLeadQueuesAndTransitions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, email := range []string{"a@acme.com", "b@acme.com", "c@acme.com"} {
		_, err := st.UpsertLead(ctx, model.Lead{
			Email: email, LeadDate: "2026-09-01",
			Name: "X", Source: model.SourcePostBody, TrackerID: "tr-1",
		})
		require.NoError(t, err)
	}

	pending, err := st.ListLeadsPendingGeneration(ctx, "2026-09-01")
	require.NoError(t, err)
	require.Len(t, pending, 3)

	// Other dates have their own queue.
	other, err := st.ListLeadsPendingGeneration(ctx, "2026-08-31")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, st.MarkLeadGenerated(ctx, pending[0].ID, "Subject", "Body"))
	require.NoError(t, st.MarkLeadGenerated(ctx, pending[1].ID, "Subject", "Body"))

	ready, err := st.ListLeadsReadyToSend(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, "Subject", ready[0].Subject)
	require.NotNil(t, ready[0].GeneratedAt)

	// Limit caps the batch.
	one, err := st.ListLeadsReadyToSend(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	require.NoError(t, st.MarkLeadSent(ctx, ready[0].ID))
	require.NoError(t, st.MarkLeadFailed(ctx, ready[1].ID))

	sent, err := st.GetLead(ctx, ready[0].Email, "2026-09-01")
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	counts, err := st.LeadCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.LeadStatusNew])
	assert.Equal(t, 1, counts[model.LeadStatusSent])
	assert.Equal(t, 1, counts[model.LeadStatusFailed])

	assert.Error(t, st.MarkLeadSent(ctx, "missing-id"))
}
