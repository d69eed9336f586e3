package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/webasthetic/leadflow/internal/db"
	"github.com/webasthetic/leadflow/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_tracker":            `SELECT id, source_ref, stages, refs, error, created_at, updated_at FROM pipeline_trackers WHERE id = $1`,
	"get_tracker_by_source":  `SELECT id, source_ref, stages, refs, error, created_at, updated_at FROM pipeline_trackers WHERE source_ref = $1`,
	"get_source_item":        `SELECT id, author_name, author_profile_url, content, origin_url, capture_date, scraped_at FROM source_items WHERE id = $1`,
	"get_lead":               `SELECT id, email, lead_date, name, post_summary, profile_summary, source, tracker_id, source_ref, generated_subject, generated_body, email_generated_at, status, email_sent_at, email_failed_at, created_at, updated_at FROM master_leads WHERE email = $1 AND lead_date = $2`,
	"get_post_summary":       `SELECT id, source_ref, intent, role, summary_text, personalization, raw, generated_at FROM post_summaries WHERE id = $1`,
	"get_profile_summary":    `SELECT id, source_ref, summary, generated_at FROM profile_summaries WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS source_items (
	id                 TEXT PRIMARY KEY,
	author_name        TEXT,
	author_profile_url TEXT,
	content            TEXT NOT NULL,
	origin_url         TEXT,
	capture_date       TEXT NOT NULL,
	scraped_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_trackers (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_ref TEXT NOT NULL UNIQUE,
	stages     JSONB NOT NULL,
	refs       JSONB NOT NULL DEFAULT '{}'::jsonb,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS post_summaries (
	id              TEXT PRIMARY KEY,
	source_ref      TEXT NOT NULL,
	intent          TEXT,
	role            TEXT,
	summary_text    TEXT,
	personalization TEXT,
	raw             TEXT,
	generated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS post_emails (
	id           TEXT PRIMARY KEY,
	source_ref   TEXT NOT NULL,
	tracker_id   TEXT NOT NULL,
	list_values  JSONB,
	extracted_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS post_mobiles (
	id           TEXT PRIMARY KEY,
	source_ref   TEXT NOT NULL,
	tracker_id   TEXT NOT NULL,
	list_values  JSONB,
	extracted_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS profile_mails (
	id           TEXT PRIMARY KEY,
	source_ref   TEXT NOT NULL,
	tracker_id   TEXT NOT NULL,
	list_values  JSONB,
	extracted_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS profile_mobiles (
	id           TEXT PRIMARY KEY,
	source_ref   TEXT NOT NULL,
	tracker_id   TEXT NOT NULL,
	list_values  JSONB,
	extracted_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS profile_links (
	id           TEXT PRIMARY KEY,
	source_ref   TEXT NOT NULL,
	tracker_id   TEXT NOT NULL,
	list_values  JSONB,
	extracted_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS profile_captures (
	id               TEXT PRIMARY KEY,
	source_ref       TEXT NOT NULL,
	tracker_id       TEXT NOT NULL,
	name             TEXT,
	profile_type     TEXT NOT NULL DEFAULT 'unknown',
	contacts         JSONB NOT NULL,
	bio_links        JSONB,
	about_text       TEXT,
	contact_pdf_link TEXT,
	scraped_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS profile_summaries (
	id           TEXT PRIMARY KEY,
	source_ref   TEXT NOT NULL,
	summary      TEXT NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL
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
	email_generated_at TIMESTAMPTZ,
	status             TEXT NOT NULL DEFAULT 'new',
	email_sent_at      TIMESTAMPTZ,
	email_failed_at    TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
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

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertSourceItem(ctx context.Context, item model.SourceItem) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_items (id, author_name, author_profile_url, content, origin_url, capture_date, scraped_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		item.ID, item.AuthorName, item.AuthorProfileURL, item.Content, item.OriginURL, item.CaptureDate, item.ScrapedAt,
	)
	return eris.Wrapf(err, "postgres: insert source item %s", item.ID)
}

// BulkInsertSourceItems lands a whole scrape drop in one round trip using a
// temp-table upsert. Re-ingesting the same drop refreshes content without
// duplicating rows.
func (s *PostgresStore) BulkInsertSourceItems(ctx context.Context, items []model.SourceItem) (int64, error) {
	rows := make([][]any, 0, len(items))
	for _, item := range items {
		rows = append(rows, []any{
			item.ID, item.AuthorName, item.AuthorProfileURL, item.Content,
			item.OriginURL, item.CaptureDate, item.ScrapedAt,
		})
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "source_items",
		Columns:      []string{"id", "author_name", "author_profile_url", "content", "origin_url", "capture_date", "scraped_at"},
		ConflictKeys: []string{"id"},
	}, rows)
}

func (s *PostgresStore) GetSourceItem(ctx context.Context, id string) (*model.SourceItem, error) {
	var item model.SourceItem
	err := s.pool.QueryRow(ctx,
		`SELECT id, author_name, author_profile_url, content, origin_url, capture_date, scraped_at
		 FROM source_items WHERE id = $1`, id,
	).Scan(&item.ID, &item.AuthorName, &item.AuthorProfileURL, &item.Content, &item.OriginURL, &item.CaptureDate, &item.ScrapedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get source item")
	}
	return &item, nil
}

func (s *PostgresStore) ListSourceItemsByDate(ctx context.Context, captureDate string) ([]model.SourceItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, author_name, author_profile_url, content, origin_url, capture_date, scraped_at
		 FROM source_items WHERE capture_date = $1 ORDER BY scraped_at`, captureDate,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list source items")
	}
	defer rows.Close()

	var items []model.SourceItem
	for rows.Next() {
		var item model.SourceItem
		if err := rows.Scan(&item.ID, &item.AuthorName, &item.AuthorProfileURL, &item.Content, &item.OriginURL, &item.CaptureDate, &item.ScrapedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source item")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list source items iterate")
}

func (s *PostgresStore) EnsureTracker(ctx context.Context, sourceRef string) (*model.Tracker, error) {
	stagesJSON, err := json.Marshal(model.NewStages())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal stages")
	}
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipeline_trackers (id, source_ref, stages, refs, created_at, updated_at)
		 VALUES ($1, $2, $3, '{}'::jsonb, $4, $5)
		 ON CONFLICT (source_ref) DO NOTHING`,
		uuid.New().String(), sourceRef, stagesJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ensure tracker %s", sourceRef)
	}
	return s.FindTrackerBySourceRef(ctx, sourceRef)
}

func (s *PostgresStore) GetTracker(ctx context.Context, id string) (*model.Tracker, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source_ref, stages, refs, error, created_at, updated_at
		 FROM pipeline_trackers WHERE id = $1`, id,
	)
	return scanTrackerPG(row)
}

func (s *PostgresStore) FindTrackerBySourceRef(ctx context.Context, sourceRef string) (*model.Tracker, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source_ref, stages, refs, error, created_at, updated_at
		 FROM pipeline_trackers WHERE source_ref = $1`, sourceRef,
	)
	return scanTrackerPG(row)
}

func (s *PostgresStore) FindPending(ctx context.Context, stage model.Stage, filter PendingFilter) ([]model.Tracker, error) {
	if !stage.Valid() {
		return nil, eris.Errorf("unknown stage: %s", stage)
	}

	builder := sq.Select("t.id", "t.source_ref", "t.stages", "t.refs", "t.error", "t.created_at", "t.updated_at").
		From("pipeline_trackers t").
		Where(sq.Expr("COALESCE((t.stages->>?)::int, 0) = ?", string(stage), int(model.StatusPending))).
		OrderBy("t.created_at").
		PlaceholderFormat(sq.Dollar)

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
		return nil, eris.Wrap(err, "postgres: build pending query")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find pending %s", stage)
	}
	defer rows.Close()

	var trackers []model.Tracker
	for rows.Next() {
		t, err := scanTrackerPG(rows)
		if err != nil {
			return nil, err
		}
		trackers = append(trackers, *t)
	}
	return trackers, eris.Wrap(rows.Err(), "postgres: find pending iterate")
}

func (s *PostgresStore) CompleteStage(ctx context.Context, trackerID string, stage model.Stage, refs model.StageRefs) error {
	if !stage.Valid() {
		return eris.Errorf("unknown stage: %s", stage)
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal refs")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_trackers
		 SET stages = jsonb_set(stages, ARRAY[$1], to_jsonb($2::int), true),
		     refs = refs || $3::jsonb,
		     updated_at = $4
		 WHERE id = $5 AND COALESCE((stages->>$1)::int, 0) = $6`,
		string(stage), int(model.StatusDone), refsJSON, time.Now().UTC(), trackerID, int(model.StatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete stage %s for tracker %s", stage, trackerID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("tracker %s: stage %s is not pending", trackerID, stage)
	}
	return nil
}

func (s *PostgresStore) FailStage(ctx context.Context, trackerID string, stage model.Stage, stageErr string) error {
	if !stage.Valid() {
		return eris.Errorf("unknown stage: %s", stage)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_trackers
		 SET stages = jsonb_set(stages, ARRAY[$1], to_jsonb($2::int), true),
		     error = $3,
		     updated_at = $4
		 WHERE id = $5 AND COALESCE((stages->>$1)::int, 0) = $6`,
		string(stage), int(model.StatusFailed), stageErr, time.Now().UTC(), trackerID, int(model.StatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail stage %s for tracker %s", stage, trackerID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("tracker %s: stage %s is not pending", trackerID, stage)
	}
	return nil
}

func (s *PostgresStore) TrackerStageCounts(ctx context.Context) (StageCounts, error) {
	counts := make(StageCounts, len(model.AllStages()))
	for _, stage := range model.AllStages() {
		rows, err := s.pool.Query(ctx,
			`SELECT COALESCE((stages->>$1)::int, 0) AS st, COUNT(*) FROM pipeline_trackers GROUP BY st`,
			string(stage),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: stage counts %s", stage)
		}
		byStatus := make(map[model.StageStatus]int)
		for rows.Next() {
			var status, n int
			if err := rows.Scan(&status, &n); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "postgres: scan stage count")
			}
			byStatus[model.StageStatus(status)] = n
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: stage counts iterate")
		}
		rows.Close()
		counts[stage] = byStatus
	}
	return counts, nil
}

func (s *PostgresStore) InsertPostSummary(ctx context.Context, summary model.PostSummary) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO post_summaries (id, source_ref, intent, role, summary_text, personalization, raw, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		summary.ID, summary.SourceRef, summary.Intent, summary.Role, summary.SummaryText, summary.Personalization, summary.Raw, summary.GeneratedAt,
	)
	return eris.Wrapf(err, "postgres: insert post summary %s", summary.ID)
}

func (s *PostgresStore) GetPostSummary(ctx context.Context, id string) (*model.PostSummary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source_ref, intent, role, summary_text, personalization, raw, generated_at
		 FROM post_summaries WHERE id = $1`, id,
	)
	return scanPostSummaryPG(row)
}

func (s *PostgresStore) FindPostSummaryBySourceRef(ctx context.Context, sourceRef string) (*model.PostSummary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source_ref, intent, role, summary_text, personalization, raw, generated_at
		 FROM post_summaries WHERE source_ref = $1 ORDER BY generated_at DESC LIMIT 1`, sourceRef,
	)
	return scanPostSummaryPG(row)
}

func (s *PostgresStore) InsertContactList(ctx context.Context, kind model.ContactListKind, list model.ContactList) error {
	table, ok := contactListTables[kind]
	if !ok {
		return eris.Errorf("unknown contact list kind: %s", kind)
	}
	valuesJSON, err := marshalNullable(list.Values)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal list values")
	}
	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, source_ref, tracker_id, list_values, extracted_at) VALUES ($1, $2, $3, $4, $5)`, table),
		list.ID, list.SourceRef, list.TrackerID, valuesJSON, list.ExtractedAt,
	)
	return eris.Wrapf(err, "postgres: insert %s %s", table, list.ID)
}

func (s *PostgresStore) GetContactList(ctx context.Context, kind model.ContactListKind, id string) (*model.ContactList, error) {
	table, ok := contactListTables[kind]
	if !ok {
		return nil, eris.Errorf("unknown contact list kind: %s", kind)
	}
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT id, source_ref, tracker_id, list_values, extracted_at FROM %s WHERE id = $1`, table), id,
	)
	return scanContactListPG(row)
}

func (s *PostgresStore) ListContactLists(ctx context.Context, kind model.ContactListKind) ([]model.ContactList, error) {
	table, ok := contactListTables[kind]
	if !ok {
		return nil, eris.Errorf("unknown contact list kind: %s", kind)
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, source_ref, tracker_id, list_values, extracted_at FROM %s ORDER BY extracted_at`, table),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", table)
	}
	defer rows.Close()

	var lists []model.ContactList
	for rows.Next() {
		l, err := scanContactListPG(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, *l)
	}
	return lists, eris.Wrapf(rows.Err(), "postgres: list %s iterate", table)
}

func (s *PostgresStore) InsertProfileCapture(ctx context.Context, capture model.ProfileCapture) error {
	contactsJSON, err := json.Marshal(capture.Contacts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal contacts")
	}
	bioLinksJSON, err := marshalNullable(capture.BioLinks)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal bio links")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO profile_captures (id, source_ref, tracker_id, name, profile_type, contacts, bio_links, about_text, contact_pdf_link, scraped_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		capture.ID, capture.SourceRef, capture.TrackerID, capture.Name, string(capture.ProfileType),
		contactsJSON, bioLinksJSON, capture.AboutText, capture.ContactPDFLink, capture.ScrapedAt,
	)
	return eris.Wrapf(err, "postgres: insert profile capture %s", capture.ID)
}

func (s *PostgresStore) GetProfileCapture(ctx context.Context, id string) (*model.ProfileCapture, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source_ref, tracker_id, name, profile_type, contacts, bio_links, about_text, contact_pdf_link, scraped_at
		 FROM profile_captures WHERE id = $1`, id,
	)
	return scanProfileCapturePG(row)
}

func (s *PostgresStore) ListProfileCaptures(ctx context.Context) ([]model.ProfileCapture, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source_ref, tracker_id, name, profile_type, contacts, bio_links, about_text, contact_pdf_link, scraped_at
		 FROM profile_captures ORDER BY scraped_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list profile captures")
	}
	defer rows.Close()

	var captures []model.ProfileCapture
	for rows.Next() {
		c, err := scanProfileCapturePG(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, *c)
	}
	return captures, eris.Wrap(rows.Err(), "postgres: list profile captures iterate")
}

func (s *PostgresStore) InsertProfileSummary(ctx context.Context, summary model.ProfileSummary) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profile_summaries (id, source_ref, summary, generated_at) VALUES ($1, $2, $3, $4)`,
		summary.ID, summary.SourceRef, summary.Summary, summary.GeneratedAt,
	)
	return eris.Wrapf(err, "postgres: insert profile summary %s", summary.ID)
}

func (s *PostgresStore) GetProfileSummary(ctx context.Context, id string) (*model.ProfileSummary, error) {
	var ps model.ProfileSummary
	err := s.pool.QueryRow(ctx,
		`SELECT id, source_ref, summary, generated_at FROM profile_summaries WHERE id = $1`, id,
	).Scan(&ps.ID, &ps.SourceRef, &ps.Summary, &ps.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get profile summary")
	}
	return &ps, nil
}

func (s *PostgresStore) UpsertLead(ctx context.Context, lead model.Lead) (bool, error) {
	existing, err := s.GetLead(ctx, lead.Email, lead.LeadDate)
	if err != nil {
		return false, err
	}

	id := lead.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO master_leads (id, email, lead_date, name, post_summary, profile_summary, source, tracker_id, source_ref, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (email, lead_date) DO UPDATE SET
			name = EXCLUDED.name,
			post_summary = EXCLUDED.post_summary,
			profile_summary = EXCLUDED.profile_summary,
			source = EXCLUDED.source,
			tracker_id = EXCLUDED.tracker_id,
			source_ref = EXCLUDED.source_ref,
			updated_at = EXCLUDED.updated_at`,
		id, lead.Email, lead.LeadDate, lead.Name, lead.PostSummary, lead.ProfileSummary,
		string(lead.Source), lead.TrackerID, lead.SourceRef, string(model.LeadStatusNew), now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert lead %s", lead.Email)
	}
	return existing == nil, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, email, leadDate string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		leadSelect+` WHERE email = $1 AND lead_date = $2`, email, leadDate,
	)
	return scanLeadPG(row)
}

func (s *PostgresStore) ListLeadsPendingGeneration(ctx context.Context, leadDate string) ([]model.Lead, error) {
	builder := sq.Select(leadColumns...).
		From("master_leads").
		Where(sq.Eq{"status": string(model.LeadStatusNew), "lead_date": leadDate}).
		Where("(generated_body IS NULL OR generated_body = '')").
		OrderBy("created_at").
		PlaceholderFormat(sq.Dollar)

	return s.queryLeads(ctx, builder, "pending generation")
}

func (s *PostgresStore) ListLeadsReadyToSend(ctx context.Context, limit int) ([]model.Lead, error) {
	builder := sq.Select(leadColumns...).
		From("master_leads").
		Where(sq.Eq{"status": string(model.LeadStatusGenerated)}).
		Where("generated_body IS NOT NULL AND generated_body != ''").
		OrderBy("email_generated_at").
		PlaceholderFormat(sq.Dollar)
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	return s.queryLeads(ctx, builder, "ready to send")
}

func (s *PostgresStore) MarkLeadGenerated(ctx context.Context, id, subject, body string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE master_leads
		 SET generated_subject = $1, generated_body = $2, email_generated_at = $3, status = $4, updated_at = $5
		 WHERE id = $6`,
		subject, body, now, string(model.LeadStatusGenerated), now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark lead generated %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkLeadSent(ctx context.Context, id string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE master_leads SET status = $1, email_sent_at = $2, updated_at = $3 WHERE id = $4`,
		string(model.LeadStatusSent), now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark lead sent %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkLeadFailed(ctx context.Context, id string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE master_leads SET status = $1, email_failed_at = $2, updated_at = $3 WHERE id = $4`,
		string(model.LeadStatusFailed), now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark lead failed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) LeadCounts(ctx context.Context) (map[model.LeadStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM master_leads GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lead counts")
	}
	defer rows.Close()

	counts := make(map[model.LeadStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead count")
		}
		counts[model.LeadStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: lead counts iterate")
}

func (s *PostgresStore) queryLeads(ctx context.Context, builder sq.SelectBuilder, label string) ([]model.Lead, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: build leads query %s", label)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list leads %s", label)
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLeadPG(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrapf(rows.Err(), "postgres: list leads %s iterate", label)
}

// pg scan helpers

type pgScannable interface {
	Scan(dest ...any) error
}

func scanTrackerPG(row pgScannable) (*model.Tracker, error) {
	var t model.Tracker
	var stagesJSON, refsJSON []byte
	var errText *string

	err := row.Scan(&t.ID, &t.SourceRef, &stagesJSON, &refsJSON, &errText, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan tracker")
	}

	if err := json.Unmarshal(stagesJSON, &t.Stages); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal tracker stages")
	}
	if err := json.Unmarshal(refsJSON, &t.Refs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal tracker refs")
	}
	if errText != nil {
		t.Error = *errText
	}
	return &t, nil
}

func scanPostSummaryPG(row pgScannable) (*model.PostSummary, error) {
	var ps model.PostSummary
	err := row.Scan(&ps.ID, &ps.SourceRef, &ps.Intent, &ps.Role, &ps.SummaryText, &ps.Personalization, &ps.Raw, &ps.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan post summary")
	}
	return &ps, nil
}

func scanContactListPG(row pgScannable) (*model.ContactList, error) {
	var l model.ContactList
	var valuesJSON []byte

	err := row.Scan(&l.ID, &l.SourceRef, &l.TrackerID, &valuesJSON, &l.ExtractedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan contact list")
	}
	if valuesJSON != nil {
		if err := json.Unmarshal(valuesJSON, &l.Values); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal list values")
		}
	}
	return &l, nil
}

func scanProfileCapturePG(row pgScannable) (*model.ProfileCapture, error) {
	var c model.ProfileCapture
	var profileType string
	var contactsJSON, bioLinksJSON []byte

	err := row.Scan(&c.ID, &c.SourceRef, &c.TrackerID, &c.Name, &profileType, &contactsJSON, &bioLinksJSON, &c.AboutText, &c.ContactPDFLink, &c.ScrapedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan profile capture")
	}

	c.ProfileType = model.ProfileType(profileType)
	if err := json.Unmarshal(contactsJSON, &c.Contacts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal capture contacts")
	}
	if bioLinksJSON != nil {
		if err := json.Unmarshal(bioLinksJSON, &c.BioLinks); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal bio links")
		}
	}
	return &c, nil
}

func scanLeadPG(row pgScannable) (*model.Lead, error) {
	var l model.Lead
	var source, subject, body *string

	err := row.Scan(&l.ID, &l.Email, &l.LeadDate, &l.Name, &l.PostSummary, &l.ProfileSummary,
		&source, &l.TrackerID, &l.SourceRef, &subject, &body,
		&l.GeneratedAt, &l.Status, &l.SentAt, &l.FailedAt, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan lead")
	}

	if source != nil {
		l.Source = model.LeadSource(*source)
	}
	if subject != nil {
		l.Subject = *subject
	}
	if body != nil {
		l.Body = *body
	}
	return &l, nil
}
