package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/servio-ai/prospector-cli/internal/filter"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Evaluate filter conditions",
}

// -- filter run --

var filterRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run conditions against stored leads or a JSON record file",
	Long: `Evaluates an ordered list of conditions (AND) and prints the matches.
With --input the records are read from a JSON array of objects and matched
by their top-level keys; otherwise the stored, scored leads are filtered.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		conds, err := conditionsFromFlags(cmd)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		if input, _ := cmd.Flags().GetString("input"); input != "" {
			f, err := os.Open(input)
			if err != nil {
				return eris.Wrapf(err, "filter run: open %s", input)
			}
			defer f.Close() //nolint:errcheck
			return runRecordFilter(f, os.Stdout, conds)
		}

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := svc.Leads(ctx, conds)
		if err != nil {
			return eris.Wrap(err, "filter run")
		}
		if asJSON {
			return writeJSON(os.Stdout, leads)
		}
		formatLeads(os.Stdout, leads)
		return nil
	},
}

// runRecordFilter filters a JSON array of objects and writes the matches,
// in input order, as a JSON array.
func runRecordFilter(in io.Reader, out io.Writer, conds []filter.Condition) error {
	var records []filter.Record
	if err := json.NewDecoder(in).Decode(&records); err != nil {
		return eris.Wrap(err, "filter run: decode records")
	}
	matches := filter.NewEvaluator[filter.Record]().Immediate(records, conds)
	if matches == nil {
		matches = []filter.Record{}
	}
	return writeJSON(out, matches)
}

// -- filters --

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "Manage saved filters",
}

var filtersSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a named filter (replaces one with the same name)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		conds, err := conditionsFromFlags(cmd)
		if err != nil {
			return err
		}

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f, err := svc.SaveFilter(ctx, args[0], conds)
		if err != nil {
			return eris.Wrap(err, "filters save")
		}
		fmt.Fprintf(os.Stdout, "Saved filter %q (%s) with %d conditions\n", f.Name, f.ID, len(conds))
		return nil
	},
}

var filtersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved filters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fs, err := svc.Filters(ctx)
		if err != nil {
			return eris.Wrap(err, "filters list")
		}
		if len(fs) == 0 {
			fmt.Fprintln(os.Stderr, "No saved filters.")
			return nil
		}
		formatFilters(os.Stdout, fs)
		return nil
	},
}

var filtersRunCmd = &cobra.Command{
	Use:   "run <id-or-name>",
	Short: "Run a saved filter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := svc.RunSavedFilter(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "filters run")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, leads)
		}
		formatLeads(os.Stdout, leads)
		return nil
	},
}

func addConditionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("conditions", "", "YAML or JSON file with filter conditions")
	f.String("where", "", "inline JSON condition array")
	f.String("stage", "", "shortcut for stage equals")
	f.String("temperature", "", "shortcut for temperature equals")
}

func init() {
	addConditionFlags(filterRunCmd)
	filterRunCmd.Flags().String("input", "", "JSON array of records to filter instead of stored leads")
	filterRunCmd.Flags().Bool("json", false, "print JSON instead of a table")

	addConditionFlags(filtersSaveCmd)
	filtersRunCmd.Flags().Bool("json", false, "print JSON instead of a table")

	filterCmd.AddCommand(filterRunCmd)
	filtersCmd.AddCommand(filtersSaveCmd, filtersListCmd, filtersRunCmd)
	rootCmd.AddCommand(filterCmd, filtersCmd)
}
