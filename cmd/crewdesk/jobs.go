package main

import (
	"fmt"

	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/jobs"
	"github.com/crewdesk/crewdesk/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs <job-id>",
	Short: "Inspect a queued job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
			return err
		}
		appCfg := config.NewAppConfig(ctx)
		db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
		if err != nil {
			return err
		}
		defer db.Close()

		job, err := jobs.NewStore(db).Get(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "id:        %s\n", job.ID)
		fmt.Fprintf(out, "queue:     %s\n", job.Queue)
		fmt.Fprintf(out, "key:       %s\n", job.Key)
		fmt.Fprintf(out, "status:    %s\n", job.Status)
		fmt.Fprintf(out, "attempts:  %d/%d\n", job.Attempts, job.MaxAttempts)
		fmt.Fprintf(out, "progress:  %d%%\n", job.Progress)
		if job.LastError != "" {
			fmt.Fprintf(out, "last error: %s\n", job.LastError)
		}
		if job.FinishedAt != nil {
			fmt.Fprintf(out, "finished:  %s\n", job.FinishedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}
