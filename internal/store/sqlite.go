package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/webasthetic/leadflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS source_items (
	id                 TEXT PRIMARY KEY,
	author_name        TEXT,
	author_profile_url TEXT,
	content            TEXT NOT NULL,
	origin_url         TEXT,
	capture_date       TEXT NOT NULL,
	scraped_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_trackers (
	id         TEXT PRIMARY KEY,
	source_ref TEXT NOT NULL UNIQUE,
	stages     TEXT NOT NULL,
	refs       TEXT NOT NULL DEFAULT '{}',
	error      TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS post_summaries (
	id              TEXT PRIMARY KEY,
	source_ref      TEXT NOT NULL,
	intent          TEXT,
	role            TEXT,
	summary_text    TEXT,
	personalization TEXT,
	raw             TEXT,
	generated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS post_emails (
	id           TEXT PRIMARY KEY,
	source_ref   TEXT NOT NULL,
	tracker_id   TEXT NOT NULL,
	list_values  TEXT,
	extracted_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS post_mobiles (
	id           TEXT PRIMARY KEY,
	source_ref   TEXT NOT NULL,
	tracker_id   TEXT NOT NULL,
	list_values  TEXT,
	extracted_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS profile_mails (
	id           TEXT PRIMARY KEY,
	source_ref   TEXT NOT NULL,
	tracker_id   TEXT NOT NULL,
	list_values  TEXT,
	extracted_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS profile_mobiles (
	id           TEXT PRIMARY KEY,
	source_ref   TEXT NOT NULL,
	tracker_id   TEXT NOT NULL,
	list_values  TEXT,
	extracted_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS profile_links (
	id           TEXT PRIMARY KEY,
	source_ref   TEXT NOT NULL,
	tracker_id   TEXT NOT NULL,
	list_values  TEXT,
	extracted_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS profile_captures (
	id               TEXT PRIMARY KEY,
	source_ref       TEXT NOT NULL,
	tracker_id       TEXT NOT NULL,
	name             TEXT,
	profile_type     TEXT NOT NULL DEFAULT 'unknown',
	contacts         TEXT NOT NULL,
	bio_links        TEXT,
	about_text       TEXT,
	contact_pdf_link TEXT,
	scraped_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS profile_summaries (
	id           TEXT PRIMARY KEY,
	source_ref   TEXT NOT NULL,
	summary      TEXT NOT NULL,
	generated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS master_leads (
	id                 TEXT PRIMARY KEY,
	email              TEXT NOT NULL,
	lead_date          TEXT NOT NULL,
	name               TEXT,
	post_summary       TEXT,
	profile_summary    TEXT,
	source             TEXT,
	tracker_id         TEXT,
	source_ref         TEXT,
	generated_subject  TEXT,
	generated_body     TEXT,
	email_generated_at DATETIME,
	status             TEXT NOT NULL DEFAULT 'new',
	email_sent_at      DATETIME,
	email_failed_at    DATETIME,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL,
	UNIQUE (email, lead_date)
);

CREATE INDEX IF NOT EXISTS idx_source_items_capture_date ON source_items(capture_date);
CREATE INDEX IF NOT EXISTS idx_post_summaries_source_ref ON post_summaries(source_ref);
CREATE INDEX IF NOT EXISTS idx_post_emails_source_ref ON post_emails(source_ref);
CREATE INDEX IF NOT EXISTS idx_post_mobiles_source_ref ON post_mobiles(source_ref);
CREATE INDEX IF NOT EXISTS idx_profile_mails_source_ref ON profile_mails(source_ref);
CREATE INDEX IF NOT EXISTS idx_profile_mobiles_source_ref ON profile_mobiles(source_ref);
CREATE INDEX IF NOT EXISTS idx_profile_links_source_ref ON profile_links(source_ref);
CREATE INDEX IF NOT EXISTS idx_profile_captures_source_ref ON profile_captures(source_ref);
CREATE INDEX IF NOT EXISTS idx_profile_summaries_source_ref ON profile_summaries(source_ref);
CREATE INDEX IF NOT EXISTS idx_master_leads_status ON master_leads(status);
CREATE INDEX IF NOT EXISTS idx_master_leads_lead_date ON master_leads(lead_date);
`

// contactListTables whitelists the table name for each insert-only contact
// collection. Kind values never reach SQL directly.
var contactListTables = map[model.ContactListKind]string{
	model.ListPostEmails:     "post_emails",
	model.ListPostMobiles:    "post_mobiles",
	model.ListProfileMails:   "profile_mails",
	model.ListProfileMobiles: "profile_mobiles",
	model.ListProfileLinks:   "profile_links",
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertSourceItem(ctx context.Context, item model.SourceItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_items (id, author_name, author_profile_url, content, origin_url, capture_date, scraped_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		item.ID, item.AuthorName, item.AuthorProfileURL, item.Content, item.OriginURL, item.CaptureDate, item.ScrapedAt,
	)
	return eris.Wrapf(err, "sqlite: insert source item %s", item.ID)
}

// BulkInsertSourceItems lands a whole scrape drop in one transaction.
// Items already present keep their original row.
func (s *SQLiteStore) BulkInsertSourceItems(ctx context.Context, items []model.SourceItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin bulk insert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO source_items (id, author_name, author_profile_url, content, origin_url, capture_date, scraped_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare bulk insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx,
			item.ID, item.AuthorName, item.AuthorProfileURL, item.Content,
			item.OriginURL, item.CaptureDate, item.ScrapedAt,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: bulk insert item %s", item.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit bulk insert")
	}
	return int64(len(items)), nil
}

func (s *SQLiteStore) GetSourceItem(ctx context.Context, id string) (*model.SourceItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, author_name, author_profile_url, content, origin_url, capture_date, scraped_at
		 FROM source_items WHERE id = ?`, id,
	)
	var item model.SourceItem
	err := row.Scan(&item.ID, &item.AuthorName, &item.AuthorProfileURL, &item.Content, &item.OriginURL, &item.CaptureDate, &item.ScrapedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get source item")
	}
	return &item, nil
}

func (s *SQLiteStore) ListSourceItemsByDate(ctx context.Context, captureDate string) ([]model.SourceItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_name, author_profile_url, content, origin_url, capture_date, scraped_at
		 FROM source_items WHERE capture_date = ? ORDER BY scraped_at`, captureDate,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list source items")
	}
	defer rows.Close()

	var items []model.SourceItem
	for rows.Next() {
		var item model.SourceItem
		if err := rows.Scan(&item.ID, &item.AuthorName, &item.AuthorProfileURL, &item.Content, &item.OriginURL, &item.CaptureDate, &item.ScrapedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source item")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list source items iterate")
}

func (s *SQLiteStore) EnsureTracker(ctx context.Context, sourceRef string) (*model.Tracker, error) {
	stagesJSON, err := json.Marshal(model.NewStages())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal stages")
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipeline_trackers (id, source_ref, stages, refs, created_at, updated_at)
		 VALUES (?, ?, ?, '{}', ?, ?)
		 ON CONFLICT (source_ref) DO NOTHING`,
		uuid.New().String(), sourceRef, string(stagesJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure tracker %s", sourceRef)
	}
	return s.FindTrackerBySourceRef(ctx, sourceRef)
}

func (s *SQLiteStore) GetTracker(ctx context.Context, id string) (*model.Tracker, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_ref, stages, refs, error, created_at, updated_at
		 FROM pipeline_trackers WHERE id = ?`, id,
	)
	return scanTracker(row)
}

func (s *SQLiteStore) FindTrackerBySourceRef(ctx context.Context, sourceRef string) (*model.Tracker, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_ref, stages, refs, error, created_at, updated_at
		 FROM pipeline_trackers WHERE source_ref = ?`, sourceRef,
	)
	return scanTracker(row)
}

func (s *SQLiteStore) FindPending(ctx context.Context, stage model.Stage, filter PendingFilter) ([]model.Tracker, error) {
	if !stage.Valid() {
		return nil, eris.Errorf("unknown stage: %s", stage)
	}

	builder := sq.Select("t.id", "t.source_ref", "t.stages", "t.refs", "t.error", "t.created_at", "t.updated_at").
		From("pipeline_trackers t").
		Where(fmt.Sprintf("COALESCE(json_extract(t.stages, '$.%s'), 0) = ?", stage), int(model.StatusPending)).
		OrderBy("t.created_at")

	if filter.CaptureDate != "" {
		builder = builder.
			Join("source_items s ON s.id = t.source_ref").
			Where(sq.Eq{"s.capture_date": filter.CaptureDate})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build pending query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find pending %s", stage)
	}
	defer rows.Close()

	var trackers []model.Tracker
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			return nil, err
		}
		trackers = append(trackers, *t)
	}
	return trackers, eris.Wrap(rows.Err(), "sqlite: find pending iterate")
}

// CompleteStage marks a stage done and merges the stage's output references
// in a single guarded update. The status guard makes completion exactly-once:
// a tracker already done or failed for the stage is left untouched and the
// call reports an error.
func (s *SQLiteStore) CompleteStage(ctx context.Context, trackerID string, stage model.Stage, refs model.StageRefs) error {
	if !stage.Valid() {
		return eris.Errorf("unknown stage: %s", stage)
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal refs")
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE pipeline_trackers
		 SET stages = json_set(stages, '$.%s', ?), refs = json_patch(refs, ?), updated_at = ?
		 WHERE id = ? AND COALESCE(json_extract(stages, '$.%s'), 0) = ?`, stage, stage),
		int(model.StatusDone), string(refsJSON), time.Now().UTC(), trackerID, int(model.StatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete stage %s for tracker %s", stage, trackerID)
	}
	return checkStageTransition(res, trackerID, stage)
}

// FailStage marks a stage failed and records the error. Like CompleteStage
// it only transitions from pending, so a done stage is never downgraded.
func (s *SQLiteStore) FailStage(ctx context.Context, trackerID string, stage model.Stage, stageErr string) error {
	if !stage.Valid() {
		return eris.Errorf("unknown stage: %s", stage)
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE pipeline_trackers
		 SET stages = json_set(stages, '$.%s', ?), error = ?, updated_at = ?
		 WHERE id = ? AND COALESCE(json_extract(stages, '$.%s'), 0) = ?`, stage, stage),
		int(model.StatusFailed), stageErr, time.Now().UTC(), trackerID, int(model.StatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail stage %s for tracker %s", stage, trackerID)
	}
	return checkStageTransition(res, trackerID, stage)
}

func (s *SQLiteStore) TrackerStageCounts(ctx context.Context) (StageCounts, error) {
	counts := make(StageCounts, len(model.AllStages()))
	for _, stage := range model.AllStages() {
		rows, err := s.db.QueryContext(ctx,
			fmt.Sprintf(`SELECT COALESCE(json_extract(stages, '$.%s'), 0) AS st, COUNT(*)
			 FROM pipeline_trackers GROUP BY st`, stage),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: stage counts %s", stage)
		}
		byStatus := make(map[model.StageStatus]int)
		for rows.Next() {
			var status, n int
			if err := rows.Scan(&status, &n); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "sqlite: scan stage count")
			}
			byStatus[model.StageStatus(status)] = n
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: stage counts iterate")
		}
		rows.Close()
		counts[stage] = byStatus
	}
	return counts, nil
}

func (s *SQLiteStore) InsertPostSummary(ctx context.Context, summary model.PostSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO post_summaries (id, source_ref, intent, role, summary_text, personalization, raw, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.SourceRef, summary.Intent, summary.Role, summary.SummaryText, summary.Personalization, summary.Raw, summary.GeneratedAt,
	)
	return eris.Wrapf(err, "sqlite: insert post summary %s", summary.ID)
}

func (s *SQLiteStore) GetPostSummary(ctx context.Context, id string) (*model.PostSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_ref, intent, role, summary_text, personalization, raw, generated_at
		 FROM post_summaries WHERE id = ?`, id,
	)
	return scanPostSummary(row)
}

func (s *SQLiteStore) FindPostSummaryBySourceRef(ctx context.Context, sourceRef string) (*model.PostSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_ref, intent, role, summary_text, personalization, raw, generated_at
		 FROM post_summaries WHERE source_ref = ? ORDER BY generated_at DESC LIMIT 1`, sourceRef,
	)
	return scanPostSummary(row)
}

func (s *SQLiteStore) InsertContactList(ctx context.Context, kind model.ContactListKind, list model.ContactList) error {
	table, ok := contactListTables[kind]
	if !ok {
		return eris.Errorf("unknown contact list kind: %s", kind)
	}
	valuesJSON, err := marshalNullable(list.Values)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal list values")
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, source_ref, tracker_id, list_values, extracted_at) VALUES (?, ?, ?, ?, ?)`, table),
		list.ID, list.SourceRef, list.TrackerID, valuesJSON, list.ExtractedAt,
	)
	return eris.Wrapf(err, "sqlite: insert %s %s", table, list.ID)
}

func (s *SQLiteStore) GetContactList(ctx context.Context, kind model.ContactListKind, id string) (*model.ContactList, error) {
	table, ok := contactListTables[kind]
	if !ok {
		return nil, eris.Errorf("unknown contact list kind: %s", kind)
	}
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, source_ref, tracker_id, list_values, extracted_at FROM %s WHERE id = ?`, table), id,
	)
	return scanContactList(row)
}

func (s *SQLiteStore) ListContactLists(ctx context.Context, kind model.ContactListKind) ([]model.ContactList, error) {
	table, ok := contactListTables[kind]
	if !ok {
		return nil, eris.Errorf("unknown contact list kind: %s", kind)
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, source_ref, tracker_id, list_values, extracted_at FROM %s ORDER BY extracted_at`, table),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", table)
	}
	defer rows.Close()

	var lists []model.ContactList
	for rows.Next() {
		l, err := scanContactList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, *l)
	}
	return lists, eris.Wrapf(rows.Err(), "sqlite: list %s iterate", table)
}

func (s *SQLiteStore) InsertProfileCapture(ctx context.Context, capture model.ProfileCapture) error {
	contactsJSON, err := json.Marshal(capture.Contacts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal contacts")
	}
	bioLinksJSON, err := marshalNullable(capture.BioLinks)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal bio links")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profile_captures (id, source_ref, tracker_id, name, profile_type, contacts, bio_links, about_text, contact_pdf_link, scraped_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		capture.ID, capture.SourceRef, capture.TrackerID, capture.Name, string(capture.ProfileType),
		string(contactsJSON), bioLinksJSON, capture.AboutText, capture.ContactPDFLink, capture.ScrapedAt,
	)
	return eris.Wrapf(err, "sqlite: insert profile capture %s", capture.ID)
}

func (s *SQLiteStore) GetProfileCapture(ctx context.Context, id string) (*model.ProfileCapture, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_ref, tracker_id, name, profile_type, contacts, bio_links, about_text, contact_pdf_link, scraped_at
		 FROM profile_captures WHERE id = ?`, id,
	)
	return scanProfileCapture(row)
}

func (s *SQLiteStore) ListProfileCaptures(ctx context.Context) ([]model.ProfileCapture, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_ref, tracker_id, name, profile_type, contacts, bio_links, about_text, contact_pdf_link, scraped_at
		 FROM profile_captures ORDER BY scraped_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list profile captures")
	}
	defer rows.Close()

	var captures []model.ProfileCapture
	for rows.Next() {
		c, err := scanProfileCapture(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, *c)
	}
	return captures, eris.Wrap(rows.Err(), "sqlite: list profile captures iterate")
}

func (s *SQLiteStore) InsertProfileSummary(ctx context.Context, summary model.ProfileSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profile_summaries (id, source_ref, summary, generated_at) VALUES (?, ?, ?, ?)`,
		summary.ID, summary.SourceRef, summary.Summary, summary.GeneratedAt,
	)
	return eris.Wrapf(err, "sqlite: insert profile summary %s", summary.ID)
}

func (s *SQLiteStore) GetProfileSummary(ctx context.Context, id string) (*model.ProfileSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_ref, summary, generated_at FROM profile_summaries WHERE id = ?`, id,
	)
	var ps model.ProfileSummary
	err := row.Scan(&ps.ID, &ps.SourceRef, &ps.Summary, &ps.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get profile summary")
	}
	return &ps, nil
}

// UpsertLead inserts a lead keyed by (email, lead_date), refreshing the
// enrichment columns when the key already exists. created_at and the
// dispatch status survive the refresh so a re-run never resets outreach
// progress.
func (s *SQLiteStore) UpsertLead(ctx context.Context, lead model.Lead) (bool, error) {
	existing, err := s.GetLead(ctx, lead.Email, lead.LeadDate)
	if err != nil {
		return false, err
	}

	id := lead.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO master_leads (id, email, lead_date, name, post_summary, profile_summary, source, tracker_id, source_ref, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (email, lead_date) DO UPDATE SET
			name = excluded.name,
			post_summary = excluded.post_summary,
			profile_summary = excluded.profile_summary,
			source = excluded.source,
			tracker_id = excluded.tracker_id,
			source_ref = excluded.source_ref,
			updated_at = excluded.updated_at`,
		id, lead.Email, lead.LeadDate, lead.Name, lead.PostSummary, lead.ProfileSummary,
		string(lead.Source), lead.TrackerID, lead.SourceRef, string(model.LeadStatusNew), now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert lead %s", lead.Email)
	}
	return existing == nil, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, email, leadDate string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		leadSelect+` WHERE email = ? AND lead_date = ?`, email, leadDate,
	)
	return scanLead(row)
}

func (s *SQLiteStore) ListLeadsPendingGeneration(ctx context.Context, leadDate string) ([]model.Lead, error) {
	builder := sq.Select(leadColumns...).
		From("master_leads").
		Where(sq.Eq{"status": string(model.LeadStatusNew), "lead_date": leadDate}).
		Where("(generated_body IS NULL OR generated_body = '')").
		OrderBy("created_at")

	return s.queryLeads(ctx, builder, "pending generation")
}

func (s *SQLiteStore) ListLeadsReadyToSend(ctx context.Context, limit int) ([]model.Lead, error) {
	builder := sq.Select(leadColumns...).
		From("master_leads").
		Where(sq.Eq{"status": string(model.LeadStatusGenerated)}).
		Where("generated_body IS NOT NULL AND generated_body != ''").
		OrderBy("email_generated_at")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	return s.queryLeads(ctx, builder, "ready to send")
}

func (s *SQLiteStore) MarkLeadGenerated(ctx context.Context, id, subject, body string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE master_leads
		 SET generated_subject = ?, generated_body = ?, email_generated_at = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		subject, body, now, string(model.LeadStatusGenerated), now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark lead generated %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) MarkLeadSent(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE master_leads SET status = ?, email_sent_at = ?, updated_at = ? WHERE id = ?`,
		string(model.LeadStatusSent), now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark lead sent %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) MarkLeadFailed(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE master_leads SET status = ?, email_failed_at = ?, updated_at = ? WHERE id = ?`,
		string(model.LeadStatusFailed), now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark lead failed %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) LeadCounts(ctx context.Context) (map[model.LeadStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM master_leads GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lead counts")
	}
	defer rows.Close()

	counts := make(map[model.LeadStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead count")
		}
		counts[model.LeadStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: lead counts iterate")
}

func (s *SQLiteStore) queryLeads(ctx context.Context, builder sq.SelectBuilder, label string) ([]model.Lead, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: build leads query %s", label)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list leads %s", label)
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrapf(rows.Err(), "sqlite: list leads %s iterate", label)
}

// helpers

var leadColumns = []string{
	"id", "email", "lead_date", "name", "post_summary", "profile_summary",
	"source", "tracker_id", "source_ref", "generated_subject", "generated_body",
	"email_generated_at", "status", "email_sent_at", "email_failed_at",
	"created_at", "updated_at",
}

const leadSelect = `SELECT id, email, lead_date, name, post_summary, profile_summary,
	source, tracker_id, source_ref, generated_subject, generated_body,
	email_generated_at, status, email_sent_at, email_failed_at,
	created_at, updated_at FROM master_leads`

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func checkStageTransition(res sql.Result, trackerID string, stage model.Stage) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("tracker %s: stage %s is not pending", trackerID, stage)
	}
	return nil
}

// marshalNullable maps a nil slice to SQL NULL instead of the JSON string
// "null", keeping the none-found outcome queryable.
func marshalNullable(values []string) (any, error) {
	if values == nil {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTracker(row scannable) (*model.Tracker, error) {
	var t model.Tracker
	var stagesJSON, refsJSON string
	var errText sql.NullString

	err := row.Scan(&t.ID, &t.SourceRef, &stagesJSON, &refsJSON, &errText, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan tracker")
	}

	if err := json.Unmarshal([]byte(stagesJSON), &t.Stages); err != nil {
		return nil, eris.Wrap(err, "unmarshal tracker stages")
	}
	if err := json.Unmarshal([]byte(refsJSON), &t.Refs); err != nil {
		return nil, eris.Wrap(err, "unmarshal tracker refs")
	}
	t.Error = errText.String
	return &t, nil
}

func scanPostSummary(row scannable) (*model.PostSummary, error) {
	var ps model.PostSummary
	err := row.Scan(&ps.ID, &ps.SourceRef, &ps.Intent, &ps.Role, &ps.SummaryText, &ps.Personalization, &ps.Raw, &ps.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan post summary")
	}
	return &ps, nil
}

func scanContactList(row scannable) (*model.ContactList, error) {
	var l model.ContactList
	var valuesJSON sql.NullString

	err := row.Scan(&l.ID, &l.SourceRef, &l.TrackerID, &valuesJSON, &l.ExtractedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan contact list")
	}
	if valuesJSON.Valid {
		if err := json.Unmarshal([]byte(valuesJSON.String), &l.Values); err != nil {
			return nil, eris.Wrap(err, "unmarshal list values")
		}
	}
	return &l, nil
}

func scanProfileCapture(row scannable) (*model.ProfileCapture, error) {
	var c model.ProfileCapture
	var profileType, contactsJSON string
	var bioLinksJSON sql.NullString

	err := row.Scan(&c.ID, &c.SourceRef, &c.TrackerID, &c.Name, &profileType, &contactsJSON, &bioLinksJSON, &c.AboutText, &c.ContactPDFLink, &c.ScrapedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan profile capture")
	}

	c.ProfileType = model.ProfileType(profileType)
	if err := json.Unmarshal([]byte(contactsJSON), &c.Contacts); err != nil {
		return nil, eris.Wrap(err, "unmarshal capture contacts")
	}
	if bioLinksJSON.Valid {
		if err := json.Unmarshal([]byte(bioLinksJSON.String), &c.BioLinks); err != nil {
			return nil, eris.Wrap(err, "unmarshal bio links")
		}
	}
	return &c, nil
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var source, subject, body sql.NullString
	var generatedAt, sentAt, failedAt sql.NullTime

	err := row.Scan(&l.ID, &l.Email, &l.LeadDate, &l.Name, &l.PostSummary, &l.ProfileSummary,
		&source, &l.TrackerID, &l.SourceRef, &subject, &body,
		&generatedAt, &l.Status, &sentAt, &failedAt, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan lead")
	}

	l.Source = model.LeadSource(source.String)
	l.Subject = subject.String
	l.Body = body.String
	if generatedAt.Valid {
		t := generatedAt.Time
		l.GeneratedAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		l.SentAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		l.FailedAt = &t
	}
	return &l, nil
}
