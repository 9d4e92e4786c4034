package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the funnel as Kanban columns",
	RunE: func(cmd *cobra.Command, _ []string) error {
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

		cols, err := svc.Board(ctx, conds)
		if err != nil {
			return eris.Wrap(err, "board")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, cols)
		}
		formatBoard(os.Stdout, cols)
		return nil
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show funnel totals and conversion rate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		d, err := svc.Dashboard(ctx)
		if err != nil {
			return eris.Wrap(err, "dashboard")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, d)
		}
		formatDashboard(os.Stdout, d)
		return nil
	},
}

func init() {
	addConditionFlags(boardCmd)
	boardCmd.Flags().Bool("json", false, "print JSON instead of columns")
	dashboardCmd.Flags().Bool("json", false, "print JSON instead of a summary")
	rootCmd.AddCommand(boardCmd, dashboardCmd)
}
