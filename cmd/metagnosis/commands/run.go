package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/teranos/metagnosis/logger"
	"github.com/teranos/metagnosis/sym"
)

// RunCmd runs the scheduler in the foreground.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: sym.Pulse + " Run the scheduler and every enabled job",
	Long: sym.Pulse + ` Run the scheduler in the foreground.

Jobs enabled in the configuration are registered, their schedule rows are
created on first start and kept across restarts, and due jobs run on every
tick. SIGINT or SIGTERM stops new runs and waits for running jobs up to
pulse.shutdown_grace_seconds.

Example:
  metagnosis run -v
  metagnosis run --config ./prod.toml --json`,
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.AtLeast(zapcore.InfoLevel)
	log := logger.AddPulseSymbol(logger.Logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDatabase(cfg, logger.AddDBSymbol(logger.Logger))
	if err != nil {
		return err
	}
	defer database.Close()

	pipeline, err := NewPipeline(ctx, cfg, database, logger.Logger)
	if err != nil {
		return err
	}

	jobs := pipeline.Scheduler.Jobs()
	if len(jobs) == 0 {
		pterm.Warning.Println("No jobs enabled; check crawler, enrichment and publish sections")
		return nil
	}
	log.Infow("Pipeline ready", "jobs", jobs, logger.FieldPath, cfg.Database.Path)

	return pipeline.Scheduler.Run(ctx)
}
