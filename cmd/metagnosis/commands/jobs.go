package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/metagnosis/db"
	"github.com/teranos/metagnosis/logger"
	"github.com/teranos/metagnosis/pulse/schedule"
	"github.com/teranos/metagnosis/sym"
)

// JobsCmd groups schedule inspection commands.
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: sym.Pulse + " Inspect the job schedule and run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs and when they are due",
	RunE:  runJobsList,
}

var jobsHistoryCmd = &cobra.Command{
	Use:   "history [job]",
	Short: "Show recent job runs",
	Long:  "Show recent runs of one job, or of every job when none is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobsHistory,
}

var historyLimit int

func init() {
	jobsHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")

	JobsCmd.AddCommand(jobsListCmd)
	JobsCmd.AddCommand(jobsHistoryCmd)
}

// openSchedule opens the database and makes sure the schedule tables exist.
func openSchedule(cmd *cobra.Command) (*schedule.Store, *schedule.ExecutionStore, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	database, err := openDatabase(cfg, logger.AddDBSymbol(logger.Logger))
	if err != nil {
		return nil, nil, nil, err
	}
	lock := db.NewWriteLock()
	store := schedule.NewStore(database, lock)
	if err := store.Initialize(cmd.Context()); err != nil {
		database.Close()
		return nil, nil, nil, err
	}
	return store, schedule.NewExecutionStore(database, lock), func() { database.Close() }, nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	store, _, closeDB, err := openSchedule(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	entries, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(cmd, entries)
	}

	now := time.Now()
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Name, e.NextRunTime.Local().Format(time.DateTime), dueIn(now, e.NextRunTime)})
	}
	return renderTable(cmd, []string{"Job", "Next run", "Due"}, rows, "No jobs scheduled yet; start `metagnosis run` once")
}

// dueIn renders the distance to next as "in 2m30s" or "now".
func dueIn(now, next time.Time) string {
	d := next.Sub(now).Truncate(time.Second)
	if d <= 0 {
		return "now"
	}
	return "in " + d.String()
}

func runJobsHistory(cmd *cobra.Command, args []string) error {
	_, history, closeDB, err := openSchedule(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	job := ""
	if len(args) == 1 {
		job = args[0]
	}
	runs, err := history.ListRecent(cmd.Context(), job, historyLimit)
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(cmd, runs)
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		duration := "-"
		if r.CompletedAt != nil {
			duration = r.Duration.Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			r.JobName,
			r.StartedAt.Local().Format(time.DateTime),
			r.Status,
			duration,
			truncate(r.ErrorMessage, 80),
		})
	}
	return renderTable(cmd, []string{"Job", "Started", "Status", "Duration", "Error"}, rows, fmt.Sprintf("No runs recorded%s", forJob(job)))
}

func forJob(job string) string {
	if job == "" {
		return ""
	}
	return " for " + job
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
