package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
	"github.com/gaiacurves/gaiacurves/internal/metrics"
	"github.com/gaiacurves/gaiacurves/internal/plot"
	"github.com/spf13/cobra"
)

type fetchOptions struct {
	file        string
	outputDir   string
	ignore      string
	concurrency int
	format      string
	plotFormat  string
	metricsFile string
}

func newFetchCommand(root *rootOptions) *cobra.Command {
	opts := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch [star name]...",
		Short: "Download light curves for a batch of star names",
		Long: `Resolve each star name to a Gaia DR2 source identifier and download its
light curve, trying DR2 epoch photometry first and the DR1 G-band time series
second. A failure for one star never stops the rest of the batch.

Names come from the arguments and, with --file, from a file holding one name
per line (blank lines and lines starting with # are skipped).`,
		Example: `  # DR2 or DR1 light curve for one star
  gaiacurves fetch "NQ Dra"

  # Batch from a file, never falling back to DR1, as JSON
  gaiacurves fetch --file stars.txt --ignore DR1 --format json

  # Also render PNG plots next to the CSV files
  gaiacurves fetch "NQ Dra" --plot png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, root, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read star names from a file, one per line")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "directory for light-curve files (default: data)")
	cmd.Flags().StringVar(&opts.ignore, "ignore", "", "release to skip: none, DR2 or DR1 (default: none)")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 0, "stars processed at once (default: 1)")
	cmd.Flags().StringVar(&opts.format, "format", formatTable, "output format (table, json, yaml)")
	cmd.Flags().StringVar(&opts.plotFormat, "plot", "", "also plot each light curve (png, svg, pdf)")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	return cmd
}

func runFetch(cmd *cobra.Command, root *rootOptions, opts *fetchOptions, args []string) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	if opts.plotFormat != "" && !slices.Contains(plot.Formats, strings.ToLower(opts.plotFormat)) {
		return fmt.Errorf("unsupported plot format %q (want one of %s)", opts.plotFormat, strings.Join(plot.Formats, ", "))
	}
	names := append([]string(nil), args...)
	if opts.file != "" {
		fromFile, err := readNames(opts.file)
		if err != nil {
			return err
		}
		names = append(names, fromFile...)
	}
	if len(names) == 0 {
		return lightcurve.ErrNoStars
	}

	a, err := newApp(cmd, root, ledgerOptional)
	if err != nil {
		return err
	}
	defer a.Close()

	batch, err := batchOptions(a, opts)
	if err != nil {
		return err
	}

	// An interrupted batch still returns every name, so it is printed
	// before the error is reported.
	result, fetchErr := a.coordinator().FetchCurves(cmd.Context(), names, batch)
	if result == nil {
		return fetchErr
	}

	if opts.plotFormat != "" && fetchErr == nil {
		plotOutcomes(a, result, opts.plotFormat)
	}
	if opts.metricsFile != "" {
		if err := metrics.WriteTextfile(opts.metricsFile); err != nil {
			a.logger.Warn().Err(err).Str("path", opts.metricsFile).Msg("failed to write metrics file")
		}
	}
	if err := printBatch(cmd.OutOrStdout(), opts.format, result); err != nil {
		return err
	}
	return fetchErr
}

// batchOptions merges the fetch flags over the configured defaults.
func batchOptions(a *app, opts *fetchOptions) (lightcurve.Options, error) {
	batch := lightcurve.Options{
		OutputDir:   a.cfg.Fetch.OutputDir,
		Concurrency: a.cfg.Fetch.Concurrency,
	}
	if opts.outputDir != "" {
		batch.OutputDir = opts.outputDir
	}
	if opts.concurrency > 0 {
		batch.Concurrency = opts.concurrency
	}

	ignore := a.cfg.Fetch.Ignore
	if opts.ignore != "" {
		ignore = opts.ignore
	}
	parsed, err := lightcurve.ParseIgnore(ignore)
	if err != nil {
		return lightcurve.Options{}, err
	}
	batch.Ignore = parsed
	return batch, nil
}

func plotOutcomes(a *app, result lightcurve.BatchResult, format string) {
	for _, name := range sortedKeys(result) {
		o := result[name]
		if !o.Found() {
			continue
		}
		out := plot.OutputPath(o.Path, format)
		if err := plot.RenderFile(o.Path, out, plot.Options{Title: name}); err != nil {
			a.logger.Warn().Err(err).Str("star", name).Msg("plot failed")
			continue
		}
		a.logger.Info().Str("star", name).Str("path", out).Msg("plot written")
	}
}

func printBatch(w io.Writer, format string, result lightcurve.BatchResult) error {
	views := result.Views()
	if format != formatTable {
		return encode(w, format, views)
	}

	rows := make([][]string, 0, len(views))
	for _, name := range sortedKeys(views) {
		v := views[name]
		rows = append(rows, []string{name, v.ID, v.Source, v.Pathname, v.Error})
	}
	return table(w, []string{"STAR", "ID", "SOURCE", "PATHNAME", "ERROR"}, rows)
}

func readNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open star list: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read star list: %w", err)
	}
	return names, nil
}
