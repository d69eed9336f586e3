// Package store persists the pipeline's state: raw source items, per-item
// trackers, stage outputs, and the master lead table. Two implementations
// exist, SQLite for single-host deployments and Postgres for shared ones.
package store

import (
	"context"

	"github.com/webasthetic/leadflow/internal/model"
)

// PendingFilter narrows a pending-backlog scan.
type PendingFilter struct {
	// CaptureDate restricts the scan to trackers whose source item was
	// captured on this date (YYYY-MM-DD). Empty means any date.
	CaptureDate string `json:"capture_date,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// StageCounts maps each stage to a status breakdown of the tracker backlog.
type StageCounts map[model.Stage]map[model.StageStatus]int

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Source items. BulkInsertSourceItems lands a whole scrape drop in one
	// call and returns the number of items landed; re-ingesting a drop is
	// safe on both implementations.
	InsertSourceItem(ctx context.Context, item model.SourceItem) error
	BulkInsertSourceItems(ctx context.Context, items []model.SourceItem) (int64, error)
	GetSourceItem(ctx context.Context, id string) (*model.SourceItem, error)
	ListSourceItemsByDate(ctx context.Context, captureDate string) ([]model.SourceItem, error)

	// Trackers
	EnsureTracker(ctx context.Context, sourceRef string) (*model.Tracker, error)
	GetTracker(ctx context.Context, id string) (*model.Tracker, error)
	FindTrackerBySourceRef(ctx context.Context, sourceRef string) (*model.Tracker, error)
	FindPending(ctx context.Context, stage model.Stage, filter PendingFilter) ([]model.Tracker, error)
	CompleteStage(ctx context.Context, trackerID string, stage model.Stage, refs model.StageRefs) error
	FailStage(ctx context.Context, trackerID string, stage model.Stage, stageErr string) error
	TrackerStageCounts(ctx context.Context) (StageCounts, error)

	// Stage outputs (insert-only collections)
	InsertPostSummary(ctx context.Context, s model.PostSummary) error
	GetPostSummary(ctx context.Context, id string) (*model.PostSummary, error)
	FindPostSummaryBySourceRef(ctx context.Context, sourceRef string) (*model.PostSummary, error)
	InsertContactList(ctx context.Context, kind model.ContactListKind, list model.ContactList) error
	GetContactList(ctx context.Context, kind model.ContactListKind, id string) (*model.ContactList, error)
	ListContactLists(ctx context.Context, kind model.ContactListKind) ([]model.ContactList, error)
	InsertProfileCapture(ctx context.Context, c model.ProfileCapture) error
	GetProfileCapture(ctx context.Context, id string) (*model.ProfileCapture, error)
	ListProfileCaptures(ctx context.Context) ([]model.ProfileCapture, error)
	InsertProfileSummary(ctx context.Context, s model.ProfileSummary) error
	GetProfileSummary(ctx context.Context, id string) (*model.ProfileSummary, error)

	// Master leads
	UpsertLead(ctx context.Context, lead model.Lead) (created bool, err error)
	GetLead(ctx context.Context, email, leadDate string) (*model.Lead, error)
	ListLeadsPendingGeneration(ctx context.Context, leadDate string) ([]model.Lead, error)
	ListLeadsReadyToSend(ctx context.Context, limit int) ([]model.Lead, error)
	MarkLeadGenerated(ctx context.Context, id, subject, body string) error
	MarkLeadSent(ctx context.Context, id string) error
	MarkLeadFailed(ctx context.Context, id string) error
	LeadCounts(ctx context.Context) (map[model.LeadStatus]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
