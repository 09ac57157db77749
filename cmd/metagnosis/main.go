package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/cmd/metagnosis/commands"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/logger"
)

var rootCmd = &cobra.Command{
	Use:   "metagnosis",
	Short: "metagnosis - scheduled crawl, enrichment and digest pipeline",
	Long: `metagnosis - scheduled crawl, enrichment and digest pipeline.

A scheduler runs recurring jobs over transactional SQLite work queues:
crawlers fill the artifact and page queues, the document processor turns
them into embedded, tagged documents, and the publisher writes a daily
digest.

Available commands:
  run    - Start the scheduler and every enabled job
  am     - Manage configuration ("I am")
  jobs   - Inspect the job schedule and run history
  queue  - Inspect queue depths

Examples:
  metagnosis run -v              # Run the pipeline with info logging
  metagnosis am show             # Show current configuration
  metagnosis jobs history arxiv  # Recent arXiv crawl runs
  metagnosis queue stats         # Pending and processed counts`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			am.SetConfigFile(path)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOut, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonOut, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "JSON logs and machine-readable command output")
	rootCmd.PersistentFlags().String("config", "", "Config file merged above discovered am.toml files")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.QueueCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		for _, hint := range errors.GetAllHints(err) {
			pterm.Info.Println(hint)
		}
		os.Exit(1)
	}
}
