package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/metagnosis/db"
	"github.com/teranos/metagnosis/gateway"
	"github.com/teranos/metagnosis/logger"
	"github.com/teranos/metagnosis/sym"
)

// QueueCmd groups work queue inspection commands.
var QueueCmd = &cobra.Command{
	Use:   "queue",
	Short: sym.DB + " Inspect work queues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pending and processed counts per queue",
	RunE:  runQueueStats,
}

func init() {
	QueueCmd.AddCommand(queueStatsCmd)
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg, logger.AddDBSymbol(logger.Logger))
	if err != nil {
		return err
	}
	defer database.Close()

	gw := gateway.New(gateway.NewStore(database, db.NewWriteLock(), cfg.Storage.Path, logger.Logger), cfg)
	if err := gw.Initialize(cmd.Context()); err != nil {
		return err
	}
	stats, err := gw.Stats(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(cmd, stats)
	}

	rows := make([][]string, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, []string{st.Queue, fmt.Sprint(st.Pending), fmt.Sprint(st.Processed), fmt.Sprint(st.Total)})
	}
	return renderTable(cmd, []string{"Queue", "Pending", "Processed", "Total"}, rows, "No queues")
}
