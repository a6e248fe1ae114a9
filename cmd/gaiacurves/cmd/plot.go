package cmd

import (
	"fmt"

	"github.com/gaiacurves/gaiacurves/internal/plot"
	"github.com/spf13/cobra"
)

func newPlotCommand() *cobra.Command {
	var (
		format string
		title  string
	)

	cmd := &cobra.Command{
		Use:   "plot <light-curve.csv>...",
		Short: "Render stored light curves as images",
		Long: `Plot magnitude over time for each light-curve file, one series per band
with brighter magnitudes at the top. Each image is written next to its CSV
file with the extension replaced by the format.`,
		Example: `  gaiacurves plot data/2154100169676165120_data_dr2.csv
  gaiacurves plot data/*.csv --format svg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, csvPath := range args {
				out := plot.OutputPath(csvPath, format)
				if err := plot.RenderFile(csvPath, out, plot.Options{Title: title}); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
					failed++
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d plots failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "png", "image format (png, svg, pdf)")
	cmd.Flags().StringVar(&title, "title", "", "plot title (default: the file name)")
	return cmd
}
