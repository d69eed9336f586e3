package main

import (
	"github.com/spf13/cobra"

	"github.com/webasthetic/leadflow/internal/aggregate"
	"github.com/webasthetic/leadflow/internal/mailer"
)

var leadDateFlag string

// leadDate resolves the --date override, defaulting to today.
func leadDate(env *pipelineEnv) string {
	if leadDateFlag != "" {
		return leadDateFlag
	}
	return env.today()
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Fan extracted contacts into the master lead table",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := aggregate.NewAggregator(env.Store).Run(cmd.Context(), leadDate(env))
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate outreach emails for pending leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		gen := aggregate.NewGenerator(env.Store, env.AI, cfg.Anthropic.Models,
			env.generateLimiter(), cfg.Outreach.Footer)
		report, err := gen.Run(cmd.Context(), leadDate(env))
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send one batch of generated emails",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		transport, err := mailer.NewSMTPTransport(cfg.SMTP)
		if err != nil {
			return err
		}
		var archiver mailer.Archiver
		if cfg.Archive.Dir != "" {
			archiver = mailer.NewFileArchiver(cfg.Archive.Dir)
		}

		d := mailer.NewDispatcher(env.Store, transport, archiver, cfg.Dispatch)
		report, err := d.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

func init() {
	aggregateCmd.Flags().StringVar(&leadDateFlag, "date", "", "lead date YYYY-MM-DD (default today)")
	generateCmd.Flags().StringVar(&leadDateFlag, "date", "", "lead date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(aggregateCmd, generateCmd, dispatchCmd)
}
