package stage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/webasthetic/leadflow/internal/model"
	"github.com/webasthetic/leadflow/internal/profile"
	"github.com/webasthetic/leadflow/internal/store"
	"github.com/webasthetic/leadflow/pkg/aitext"
)

// newTestStore backs stage tests with a throwaway SQLite database so
// tracker transitions go through the real guarded updates.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "stage-test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func seedTracker(t *testing.T, st store.Store, item model.SourceItem) model.Tracker {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.InsertSourceItem(ctx, item))
	tr, err := st.EnsureTracker(ctx, item.ID)
	require.NoError(t, err)
	return *tr
}

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, req aitext.Request) (*aitext.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aitext.Response), args.Error(1)
}

type mockScraper struct {
	mock.Mock
}

func (m *mockScraper) FetchProfile(ctx context.Context, profileURL string) (*profile.Page, error) {
	args := m.Called(ctx, profileURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*profile.Page), args.Error(1)
}

func (m *mockScraper) FetchContactPDF(ctx context.Context, pdfURL string) (string, error) {
	args := m.Called(ctx, pdfURL)
	return args.String(0), args.Error(1)
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

// stubProcessor scripts per-tracker outcomes for runner tests, keyed by
// source ref so backlog ordering does not matter.
type stubProcessor struct {
	stage   model.Stage
	process func(ctx context.Context, t model.Tracker) (model.StageRefs, error)
}

func (s *stubProcessor) Stage() model.Stage {
	return s.stage
}

func (s *stubProcessor) Process(ctx context.Context, t model.Tracker) (model.StageRefs, error) {
	return s.process(ctx, t)
}
