package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
	"github.com/gaiacurves/gaiacurves/internal/storage/postgres"
	"github.com/spf13/cobra"
)

// runDetail is the printed form of one run with its outcomes.
type runDetail struct {
	postgres.RunRecord `yaml:",inline"`
	Outcomes           []postgres.OutcomeRecord `json:"outcomes" yaml:"outcomes"`
}

func newRunsCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect batches recorded in the run ledger",
	}

	var (
		limit  int
		format string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			a, err := newApp(cmd, root, ledgerRequired)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.runs.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if format != formatTable {
				return encode(cmd.OutOrStdout(), format, runs)
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID,
					r.StartedAt.Format(time.RFC3339),
					finishedAt(r),
					strconv.Itoa(len(r.Stars)),
					strconv.Itoa(r.Found),
					strconv.Itoa(r.Missing),
					strconv.Itoa(r.Faults),
				})
			}
			return table(cmd.OutOrStdout(), []string{"ID", "STARTED", "FINISHED", "STARS", "FOUND", "MISSING", "FAULTS"}, rows)
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", postgres.DefaultListLimit, "maximum number of runs to list")
	list.Flags().StringVar(&format, "format", formatTable, "output format (table, json, yaml)")

	var showFormat string
	show := &cobra.Command{
		Use:   "show <run id>",
		Short: "Show one run and its per-star outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(showFormat); err != nil {
				return err
			}
			a, err := newApp(cmd, root, ledgerRequired)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.runs.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			outcomes, err := a.runs.RunOutcomes(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if showFormat != formatTable {
				return encode(cmd.OutOrStdout(), showFormat, runDetail{RunRecord: run, Outcomes: outcomes})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:        %s\n", run.ID)
			fmt.Fprintf(out, "Started:    %s\n", run.StartedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Finished:   %s\n", finishedAt(run))
			fmt.Fprintf(out, "Output dir: %s\n", run.OutputDir)
			fmt.Fprintf(out, "Ignore:     %s\n", run.Ignore)
			fmt.Fprintf(out, "Found:      %d of %d\n", run.Found, len(run.Stars))
			if run.Error != "" {
				fmt.Fprintf(out, "Error:      %s\n", run.Error)
			}
			fmt.Fprintln(out)

			rows := make([][]string, 0, len(outcomes))
			for _, o := range outcomes {
				rows = append(rows, []string{o.Name, o.Identifier, o.Source, o.Path, o.Error})
			}
			return table(out, []string{"STAR", "ID", "SOURCE", "PATHNAME", "ERROR"}, rows)
		},
	}
	show.Flags().StringVar(&showFormat, "format", formatTable, "output format (table, json, yaml)")

	cmd.AddCommand(list, show)
	return cmd
}

func finishedAt(r postgres.RunRecord) string {
	if r.FinishedAt == nil {
		return lightcurve.NotAvailable
	}
	return r.FinishedAt.Format(time.RFC3339)
}
