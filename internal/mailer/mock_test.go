package mailer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/webasthetic/leadflow/internal/model"
	"github.com/webasthetic/leadflow/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "mailer-test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

// seedGeneratedLead stores a lead that already has its outreach email and
// returns the lead ID.
func seedGeneratedLead(t *testing.T, st store.Store, email string) string {
	t.Helper()
	ctx := context.Background()

	_, err := st.UpsertLead(ctx, model.Lead{
		Email:          email,
		LeadDate:       "2026-09-01",
		Name:           "Jane Doe",
		PostSummary:    "Hiring engineers.",
		ProfileSummary: "Founder of Acme.",
		Source:         model.SourcePostBody,
	})
	require.NoError(t, err)

	lead, err := st.GetLead(ctx, email, "2026-09-01")
	require.NoError(t, err)
	require.NotNil(t, lead)
	require.NoError(t, st.MarkLeadGenerated(ctx, lead.ID, "Quick question", "Hi Jane,\n\nWorth a chat?"))
	return lead.ID
}

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Send(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) Archive(ctx context.Context, lead model.Lead, msg Message) error {
	args := m.Called(ctx, lead, msg)
	return args.Error(0)
}
