package cmd

import (
	"fmt"

	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
	"github.com/spf13/cobra"
)

// releaseCommand describes one single-provider subcommand.
type releaseCommand struct {
	name    string
	release lightcurve.Release
	short   string
	long    string
}

var (
	releaseDR2 = releaseCommand{
		name:    "dr2",
		release: lightcurve.ReleasePrimary,
		short:   "Download the DR2 epoch photometry of a source identifier",
		long: `Download the Gaia DR2 epoch photometry (G, BP and RP) of one source
identifier through the data server. Nothing is written when the archive has
no light curve for it.`,
	}
	releaseDR1 = releaseCommand{
		name:    "dr1",
		release: lightcurve.ReleaseSecondary,
		short:   "Download the DR1 G-band time series of a source identifier",
		long: `Run an asynchronous TAP job against the Gaia archive for the DR1 G-band
time series of one source identifier, waiting for the job to finish. Nothing
is kept when the query returns no rows.`,
	}
)

func newRetrieveCommand(root *rootOptions, rc releaseCommand) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:     rc.name + " <source_id>",
		Short:   rc.short,
		Long:    rc.long,
		Example: fmt.Sprintf("  gaiacurves %s 2154100169676165120 --output-dir curves", rc.name),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := lightcurve.ValidateIdentifier(id); err != nil {
				return err
			}
			a, err := newApp(cmd, root, ledgerOff)
			if err != nil {
				return err
			}
			defer a.Close()

			if outputDir == "" {
				outputDir = a.cfg.Fetch.OutputDir
			}
			var provider lightcurve.Provider = a.primary
			if rc.release == lightcurve.ReleaseSecondary {
				provider = a.secondary
			}

			r, err := provider.Fetch(cmd.Context(), id, outputDir)
			if err != nil {
				return err
			}
			if r.Status != lightcurve.Found {
				fmt.Fprintln(cmd.OutOrStdout(), lightcurve.NotAvailable)
				return nil
			}
			a.logger.Info().Str("release", r.Release.String()).Int("rows", r.Rows).Str("path", r.Path).Msg("light curve written")
			fmt.Fprintln(cmd.OutOrStdout(), r.Path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for the light-curve file (default: data)")
	return cmd
}
