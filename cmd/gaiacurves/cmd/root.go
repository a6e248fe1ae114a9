package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the gaiacurves command tree. Each call returns an
// independent tree, so tests can execute commands side by side.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "gaiacurves",
		Short: "gaiacurves - Gaia light curves by star name",
		Long: `gaiacurves resolves star names to Gaia DR2 source identifiers through
SIMBAD and downloads their epoch photometry.

For each star the DR2 epoch photometry is tried first; when it is missing,
the DR1 G-band time series is fetched through an asynchronous TAP job.
Light curves are written as CSV files named <source_id>_data_<release>.csv.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (optional, uses env vars by default)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console) (default: json)")

	root.AddCommand(
		newFetchCommand(opts),
		newResolveCommand(opts),
		newRetrieveCommand(opts, releaseDR2),
		newRetrieveCommand(opts, releaseDR1),
		newPlotCommand(),
		newServeCommand(opts),
		newMigrateCommand(opts),
		newRunsCommand(opts),
		newHealthcheckCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command tree until it finishes or the process receives
// SIGINT or SIGTERM. This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
