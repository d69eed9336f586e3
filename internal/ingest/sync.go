// Package ingest pulls the daily scrape drop into the store and registers
// a pipeline tracker for every item captured today.
package ingest

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/webasthetic/leadflow/internal/fetcher"
	"github.com/webasthetic/leadflow/internal/model"
	"github.com/webasthetic/leadflow/internal/store"
)

// Config tunes a sync pass.
type Config struct {
	// FeedURL points at the scrape export. Empty means the items were
	// loaded out of band and sync only registers trackers.
	FeedURL string
	// Format is "json" or "csv".
	Format string
}

// Syncer ingests scrape drops and creates trackers.
type Syncer struct {
	store   store.Store
	fetcher fetcher.Fetcher
	cfg     Config
	loc     *time.Location
}

// Result tallies one sync pass.
type Result struct {
	Fetched    int `json:"fetched"`
	Inserted   int `json:"inserted"`
	Registered int `json:"registered"`
}

// NewSyncer creates a Syncer. loc resolves what "today" means.
func NewSyncer(st store.Store, f fetcher.Fetcher, cfg Config, loc *time.Location) *Syncer {
	if loc == nil {
		loc = time.UTC
	}
	return &Syncer{store: st, fetcher: f, cfg: cfg, loc: loc}
}

// feedItem mirrors one record of the scrape export.
type feedItem struct {
	ID               string    `json:"id"`
	AuthorName       string    `json:"author_name"`
	AuthorProfileURL string    `json:"author_profile_url"`
	Content          string    `json:"content"`
	OriginURL        string    `json:"origin_url"`
	ScrapedAt        time.Time `json:"scraped_at"`
}

// Run fetches the drop, inserts its items, then ensures a tracker exists
// for every item captured today. Both halves are idempotent, so a crashed
// pass is safe to re-run.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	var result Result
	today := time.Now().In(s.loc).Format("2006-01-02")

	if s.cfg.FeedURL != "" {
		if err := s.fetchDrop(ctx, today, &result); err != nil {
			return result, err
		}
	}

	items, err := s.store.ListSourceItemsByDate(ctx, today)
	if err != nil {
		return result, err
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := s.store.EnsureTracker(ctx, item.ID); err != nil {
			return result, eris.Wrapf(err, "ingest: ensure tracker for %s", item.ID)
		}
		result.Registered++
	}

	zap.L().Info("sync pass finished",
		zap.String("capture_date", today),
		zap.Int("fetched", result.Fetched),
		zap.Int("inserted", result.Inserted),
		zap.Int("registered", result.Registered),
	)
	return result, nil
}

func (s *Syncer) fetchDrop(ctx context.Context, today string, result *Result) error {
	rc, err := s.fetcher.Download(ctx, s.cfg.FeedURL)
	if err != nil {
		return eris.Wrap(err, "ingest: download feed")
	}
	defer rc.Close() //nolint:errcheck

	var items []feedItem
	switch s.cfg.Format {
	case "csv":
		items, err = s.decodeCSV(ctx, rc)
	default:
		items, err = s.decodeJSON(ctx, rc)
	}
	if err != nil {
		return err
	}
	result.Fetched = len(items)

	batch := make([]model.SourceItem, 0, len(items))
	for _, fi := range items {
		item := s.toSourceItem(fi, today)
		if item.Content == "" && item.AuthorProfileURL == "" {
			continue
		}
		batch = append(batch, item)
	}
	n, err := s.store.BulkInsertSourceItems(ctx, batch)
	if err != nil {
		return eris.Wrap(err, "ingest: insert source items")
	}
	result.Inserted = int(n)
	return nil
}

func (s *Syncer) toSourceItem(fi feedItem, today string) model.SourceItem {
	id := fi.ID
	if id == "" {
		id = uuid.NewString()
	}
	scrapedAt := fi.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}
	captureDate := today
	if !fi.ScrapedAt.IsZero() {
		captureDate = fi.ScrapedAt.In(s.loc).Format("2006-01-02")
	}
	return model.SourceItem{
		ID:               id,
		AuthorName:       fi.AuthorName,
		AuthorProfileURL: fi.AuthorProfileURL,
		Content:          fi.Content,
		OriginURL:        fi.OriginURL,
		CaptureDate:      captureDate,
		ScrapedAt:        scrapedAt,
	}
}

func (s *Syncer) decodeJSON(ctx context.Context, r io.Reader) ([]feedItem, error) {
	itemCh, errCh := fetcher.DecodeJSONArray[feedItem](ctx, r)
	var items []feedItem
	for item := range itemCh {
		items = append(items, item)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "ingest: decode json feed")
	}
	return items, nil
}

// decodeCSV expects the export's fixed column order:
// id, author_name, author_profile_url, content, origin_url, scraped_at.
func (s *Syncer) decodeCSV(ctx context.Context, r io.Reader) ([]feedItem, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		TrimSpace: true,
	})
	var items []feedItem
	for row := range rowCh {
		if len(row) < 6 {
			continue
		}
		fi := feedItem{
			ID:               row[0],
			AuthorName:       row[1],
			AuthorProfileURL: row[2],
			Content:          row[3],
			OriginURL:        row[4],
		}
		if ts, err := time.Parse(time.RFC3339, row[5]); err == nil {
			fi.ScrapedAt = ts
		}
		items = append(items, fi)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "ingest: decode csv feed")
	}
	return items, nil
}
