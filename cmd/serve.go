package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/webasthetic/leadflow/internal/aggregate"
	"github.com/webasthetic/leadflow/internal/ingest"
	"github.com/webasthetic/leadflow/internal/mailer"
	"github.com/webasthetic/leadflow/internal/server"
	"github.com/webasthetic/leadflow/internal/stage"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job-trigger HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(ctx, pipelineJobs(env))
		return srv.ListenAndServe(ctx, port)
	},
}

// pipelineJobs maps the server's job names onto pipeline runs. Every job
// returns its counts for the completion callback. The request's lead_date
// overrides today for aggregation and generation.
func pipelineJobs(env *pipelineEnv) map[string]server.JobFunc {
	stageJob := func(build func() stage.Processor) server.JobFunc {
		return func(ctx context.Context, _ server.JobRequest) (any, error) {
			return runStage(ctx, env, build())
		}
	}
	leadDate := func(req server.JobRequest) string {
		if req.LeadDate != "" {
			return req.LeadDate
		}
		return env.today()
	}

	return map[string]server.JobFunc{
		"sync": func(ctx context.Context, _ server.JobRequest) (any, error) {
			syncer := ingest.NewSyncer(env.Store, env.Fetcher, ingest.Config{
				FeedURL: cfg.Sync.FeedURL,
				Format:  cfg.Sync.Format,
			}, env.Loc)
			return syncer.Run(ctx)
		},
		"summarize": stageJob(func() stage.Processor {
			return stage.NewSummarizer(env.Store, env.AI, cfg.Anthropic.Models)
		}),
		"extract-emails": stageJob(func() stage.Processor {
			return stage.NewPostEmailExtractor(env.Store)
		}),
		"extract-mobiles": stageJob(func() stage.Processor {
			return stage.NewPostMobileExtractor(env.Store)
		}),
		"deepscrape": stageJob(func() stage.Processor {
			return stage.NewDeepScraper(env.Store, env.Scraper)
		}),
		"profiles": stageJob(func() stage.Processor {
			return stage.NewProfileIntel(env.Store, env.AI, cfg.Anthropic.Models, env.Scraper, env.OCR)
		}),
		"aggregate": func(ctx context.Context, req server.JobRequest) (any, error) {
			return aggregate.NewAggregator(env.Store).Run(ctx, leadDate(req))
		},
		"generate": func(ctx context.Context, req server.JobRequest) (any, error) {
			gen := aggregate.NewGenerator(env.Store, env.AI, cfg.Anthropic.Models,
				env.generateLimiter(), cfg.Outreach.Footer)
			return gen.Run(ctx, leadDate(req))
		},
		"dispatch": func(ctx context.Context, _ server.JobRequest) (any, error) {
			transport, err := mailer.NewSMTPTransport(cfg.SMTP)
			if err != nil {
				return nil, err
			}
			var archiver mailer.Archiver
			if cfg.Archive.Dir != "" {
				archiver = mailer.NewFileArchiver(cfg.Archive.Dir)
			}
			return mailer.NewDispatcher(env.Store, transport, archiver, cfg.Dispatch).Run(ctx)
		},
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
