package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bashclaw/bashclaw/internal/cron"
	"github.com/bashclaw/bashclaw/internal/state"
	"github.com/bashclaw/bashclaw/internal/util"
)

func cronStore() *cron.Store {
	return cron.NewStore(filepath.Join(state.Cron(), "jobs.json"))
}

func cronRunner() *cron.Runner {
	// Handler-less runner: only used for run log queries.
	return cron.NewRunner(cronStore(), state.CronRuns(), nil)
}

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled jobs",
	}
	cmd.AddCommand(cronAddCmd(), cronListCmd(), cronRemoveCmd(), cronHistoryCmd(), cronStatsCmd())
	return cmd
}

func cronAddCmd() *cobra.Command {
	var id, schedule, prompt, agentID, target string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a scheduled job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = util.NewID()
			}
			job := cron.Job{
				ID:            id,
				Schedule:      schedule,
				Prompt:        prompt,
				Agent:         agentID,
				SessionTarget: target,
			}
			if err := cronStore().Add(job); err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "job id (generated when empty)")
	cmd.Flags().StringVar(&schedule, "schedule", "", `cron expression, or JSON like {"kind":"every","everyMs":60000} / {"kind":"at","at":"2026-01-02T15:04:05Z"}`)
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt to run")
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id (default main)")
	cmd.Flags().StringVar(&target, "session", "", "session target")
	cmd.MarkFlagRequired("schedule")
	cmd.MarkFlagRequired("prompt")
	return cmd
}

func cronListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := cronStore().List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSCHEDULE\tENABLED\tNEXT RUN\tPROMPT")
			for _, j := range jobs {
				next := "-"
				if j.NextRun > 0 {
					next = time.Unix(j.NextRun, 0).Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n", j.ID, j.Schedule, j.Enabled, next, util.Truncate(j.Prompt, 40))
			}
			return w.Flush()
		},
	}
}

func cronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := cronStore().Remove(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("removed %d job(s)\n", n)
			return nil
		},
	}
}

func cronHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show a job's run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, rec := range cronRunner().RunHistory(args[0], limit) {
				line, err := json.Marshal(rec)
				if err != nil {
					continue
				}
				fmt.Println(string(line))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max records")
	return cmd
}

func cronStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <id>",
		Short: "Show aggregate run stats for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(cronRunner().RunStats(args[0]), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
