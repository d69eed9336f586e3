package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/webasthetic/leadflow/internal/stage"
)

// runStage drives one stage pass over the backlog its stage scopes to.
func runStage(ctx context.Context, env *pipelineEnv, proc stage.Processor) (stage.Report, error) {
	runner := stage.NewRunner(env.Store, env.stageLimiter(), stage.BacklogFilter(proc.Stage(), env.today()))
	return runner.Run(ctx, proc)
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize today's posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := runStage(cmd.Context(), env,
			stage.NewSummarizer(env.Store, env.AI, cfg.Anthropic.Models))
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract contacts from post text",
}

var extractEmailsCmd = &cobra.Command{
	Use:   "emails",
	Short: "Extract email addresses from today's posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := runStage(cmd.Context(), env,
			stage.NewPostEmailExtractor(env.Store))
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var extractMobilesCmd = &cobra.Command{
	Use:   "mobiles",
	Short: "Extract phone numbers from today's posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := runStage(cmd.Context(), env,
			stage.NewPostMobileExtractor(env.Store))
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var deepscrapeCmd = &cobra.Command{
	Use:   "deepscrape",
	Short: "Scrape author profiles for the pending backlog",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := runStage(cmd.Context(), env,
			stage.NewDeepScraper(env.Store, env.Scraper))
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Extract contacts and summaries from captured profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := runStage(cmd.Context(), env,
			stage.NewProfileIntel(env.Store, env.AI, cfg.Anthropic.Models, env.Scraper, env.OCR))
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

func init() {
	extractCmd.AddCommand(extractEmailsCmd, extractMobilesCmd)
	rootCmd.AddCommand(summarizeCmd, extractCmd, deepscrapeCmd, profilesCmd)
}
