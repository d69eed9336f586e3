package main

import (
	"github.com/spf13/cobra"

	"github.com/webasthetic/leadflow/internal/model"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return st.Migrate(cmd.Context())
	},
}

// statusOutput is the funnel snapshot printed by the status command.
type statusOutput struct {
	Stages map[model.Stage]map[string]int `json:"stages"`
	Leads  map[model.LeadStatus]int       `json:"leads"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-stage backlog and lead funnel counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		stageCounts, err := env.Store.TrackerStageCounts(cmd.Context())
		if err != nil {
			return err
		}
		leadCounts, err := env.Store.LeadCounts(cmd.Context())
		if err != nil {
			return err
		}

		out := statusOutput{
			Stages: make(map[model.Stage]map[string]int, len(stageCounts)),
			Leads:  leadCounts,
		}
		for st, counts := range stageCounts {
			out.Stages[st] = map[string]int{
				"pending": counts[model.StatusPending],
				"done":    counts[model.StatusDone],
				"failed":  counts[model.StatusFailed],
			}
		}
		return printJSON(out)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, statusCmd)
}
