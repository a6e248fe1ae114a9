package cmd

import (
	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
	"github.com/spf13/cobra"
)

// resolution is the printed form of a name lookup.
type resolution struct {
	Name   string `json:"name" yaml:"name"`
	ID     string `json:"ID" yaml:"ID"`
	Status string `json:"status" yaml:"status"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newResolveCommand(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "resolve <star name>...",
		Short: "Look up the Gaia DR2 source identifier of star names",
		Long: `Query SIMBAD for the cross-identifiers of each name and print the Gaia DR2
source identifier, or N/A when the name is unknown or has no DR2 entry.`,
		Example: `  gaiacurves resolve "NQ Dra"
  gaiacurves resolve "NQ Dra" "V* RR Lyr" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			a, err := newApp(cmd, root, ledgerOff)
			if err != nil {
				return err
			}
			defer a.Close()

			results := make([]resolution, 0, len(args))
			for _, name := range args {
				results = append(results, resolveOne(cmd, a, name))
			}

			if format != formatTable {
				return encode(cmd.OutOrStdout(), format, results)
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.Name, r.ID, r.Status, r.Error})
			}
			return table(cmd.OutOrStdout(), []string{"STAR", "ID", "STATUS", "ERROR"}, rows)
		},
	}

	cmd.Flags().StringVar(&format, "format", formatTable, "output format (table, json, yaml)")
	return cmd
}

func resolveOne(cmd *cobra.Command, a *app, name string) resolution {
	out := resolution{Name: name, ID: lightcurve.NotAvailable}
	res, err := a.resolver.Resolve(cmd.Context(), name)
	if err != nil {
		out.Status = "error"
		out.Error = err.Error()
		return out
	}
	out.Status = res.Status.String()
	if res.Status == lightcurve.Resolved {
		out.ID = res.Identifier
	}
	return out
}
