package main

import (
	"github.com/spf13/cobra"

	"github.com/webasthetic/leadflow/internal/ingest"
)

var syncFeedURL string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Ingest the daily scrape drop and register trackers",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		feedURL := syncFeedURL
		if feedURL == "" {
			feedURL = cfg.Sync.FeedURL
		}

		syncer := ingest.NewSyncer(env.Store, env.Fetcher, ingest.Config{
			FeedURL: feedURL,
			Format:  cfg.Sync.Format,
		}, env.Loc)

		result, err := syncer.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncFeedURL, "feed-url", "", "scrape export URL (default from config)")
	rootCmd.AddCommand(syncCmd)
}
