package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webasthetic/leadflow/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

var trackerColumns = []string{"id", "source_ref", "stages", "refs", "error", "created_at", "updated_at"}

func TestPostgresStore_GetTracker(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, source_ref, stages, refs, error, created_at, updated_at\s+FROM pipeline_trackers WHERE id = \$1`).
		WithArgs("tr-1").
		WillReturnRows(pgxmock.NewRows(trackerColumns).AddRow(
			"tr-1", "post-1",
			[]byte(`{"summary":1,"post_email":0}`),
			[]byte(`{"summary":"sum-1"}`),
			nil, now, now,
		))

	tr, err := s.GetTracker(context.Background(), "tr-1")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "post-1", tr.SourceRef)
	assert.Equal(t, model.StatusDone, tr.StageStatusOf(model.StageSummary))
	assert.Equal(t, model.StatusPending, tr.StageStatusOf(model.StagePostEmail))
	require.NotNil(t, tr.Refs.Summary)
	assert.Equal(t, "sum-1", *tr.Refs.Summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetTracker_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM pipeline_trackers WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	tr, err := s.GetTracker(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureTracker(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO pipeline_trackers .*ON CONFLICT \(source_ref\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "post-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`FROM pipeline_trackers WHERE source_ref = \$1`).
		WithArgs("post-1").
		WillReturnRows(pgxmock.NewRows(trackerColumns).AddRow(
			"tr-1", "post-1", []byte(`{"summary":0}`), []byte(`{}`), nil, now, now,
		))

	tr, err := s.EnsureTracker(context.Background(), "post-1")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "tr-1", tr.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteStage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pipeline_trackers\s+SET stages = jsonb_set`).
		WithArgs("summary", int(model.StatusDone), pgxmock.AnyArg(), pgxmock.AnyArg(), "tr-1", int(model.StatusPending)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ref := "sum-1"
	err := s.CompleteStage(context.Background(), "tr-1", model.StageSummary, model.StageRefs{Summary: &ref})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteStage_NotPending(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pipeline_trackers\s+SET stages = jsonb_set`).
		WithArgs("summary", int(model.StatusDone), pgxmock.AnyArg(), pgxmock.AnyArg(), "tr-1", int(model.StatusPending)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ref := "sum-1"
	err := s.CompleteStage(context.Background(), "tr-1", model.StageSummary, model.StageRefs{Summary: &ref})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not pending")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailStage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pipeline_trackers\s+SET stages = jsonb_set`).
		WithArgs("deep_scrape", int(model.StatusFailed), "timeout", pgxmock.AnyArg(), "tr-1", int(model.StatusPending)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FailStage(context.Background(), "tr-1", model.StageDeepScrape, "timeout")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindPending(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM pipeline_trackers t WHERE COALESCE\(\(t\.stages->>\$1\)::int, 0\) = \$2 ORDER BY t\.created_at`).
		WithArgs("summary", int(model.StatusPending)).
		WillReturnRows(pgxmock.NewRows(trackerColumns).AddRow(
			"tr-1", "post-1", []byte(`{"summary":0}`), []byte(`{}`), nil, now, now,
		))

	trackers, err := s.FindPending(context.Background(), model.StageSummary, PendingFilter{})
	require.NoError(t, err)
	require.Len(t, trackers, 1)
	assert.Equal(t, "tr-1", trackers[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindPending_UnknownStage(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	_, err := s.FindPending(context.Background(), model.Stage("bogus"), PendingFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestPostgresStore_InsertContactList_NilValues(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO post_emails`).
		WithArgs("cl-1", "post-1", "tr-1", nil, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.InsertContactList(context.Background(), model.ListPostEmails, model.ContactList{
		ID: "cl-1", SourceRef: "post-1", TrackerID: "tr-1", ExtractedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertLead_Creates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM master_leads WHERE email = \$1 AND lead_date = \$2`).
		WithArgs("jane@acme.com", "2026-09-01").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO master_leads .*ON CONFLICT \(email, lead_date\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "jane@acme.com", "2026-09-01", "Jane", "Hiring.", "Founder.",
			string(model.SourcePostBody), "tr-1", "post-1", string(model.LeadStatusNew),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := s.UpsertLead(context.Background(), model.Lead{
		Email: "jane@acme.com", LeadDate: "2026-09-01", Name: "Jane",
		PostSummary: "Hiring.", ProfileSummary: "Founder.",
		Source: model.SourcePostBody, TrackerID: "tr-1", SourceRef: "post-1",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkLeadGenerated_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE master_leads`).
		WithArgs("Subject", "Body", pgxmock.AnyArg(), string(model.LeadStatusGenerated), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkLeadGenerated(context.Background(), "missing", "Subject", "Body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lead not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LeadCounts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM master_leads GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("new", 3).
			AddRow("sent", 1))

	counts, err := s.LeadCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[model.LeadStatusNew])
	assert.Equal(t, 1, counts[model.LeadStatusSent])
	assert.NoError(t, mock.ExpectationsWereMet())
}
