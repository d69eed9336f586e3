package main

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/webasthetic/leadflow/internal/fetcher"
	"github.com/webasthetic/leadflow/internal/ocr"
	"github.com/webasthetic/leadflow/internal/profile"
	"github.com/webasthetic/leadflow/internal/store"
	"github.com/webasthetic/leadflow/pkg/aitext"
)

// pipelineEnv holds the initialized store and clients shared by the
// pipeline commands.
type pipelineEnv struct {
	Store   store.Store
	AI      aitext.Completer
	Fetcher *fetcher.HTTPFetcher
	Scraper profile.Scraper
	OCR     ocr.Extractor
	Loc     *time.Location
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// today is the current date in the configured pipeline timezone. Capture
// dates and lead dates both key on it.
func (pe *pipelineEnv) today() string {
	return time.Now().In(pe.Loc).Format("2006-01-02")
}

// stageLimiter paces per-item stage work.
func (pe *pipelineEnv) stageLimiter() *rate.Limiter {
	perMin := cfg.Pipeline.StageRatePerMinute
	if perMin <= 0 {
		perMin = 30
	}
	return rate.NewLimiter(rate.Limit(perMin)/60, 1)
}

// generateLimiter paces outreach generation calls.
func (pe *pipelineEnv) generateLimiter() *rate.Limiter {
	perMin := cfg.Outreach.RatePerMinute
	if perMin <= 0 {
		perMin = 10
	}
	return rate.NewLimiter(rate.Limit(perMin)/60, 1)
}

// initPipeline sets up the store and clients. Callers should defer
// env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	loc, err := cfg.Pipeline.Location()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		RateLimiters: fetcher.DefaultRateLimiters(captureHost()),
	})

	ex, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &pipelineEnv{
		Store:   st,
		AI:      aitext.NewClient(cfg.Anthropic.Key),
		Fetcher: f,
		Scraper: profile.NewHTTPScraper(f, cfg.Scraper.BaseURL),
		OCR:     ex,
		Loc:     loc,
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url required for postgres driver")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.Path)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// captureHost is the profile capture service host, rate-limited by default.
func captureHost() string {
	u, err := url.Parse(cfg.Scraper.BaseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// printJSON writes a command result to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
