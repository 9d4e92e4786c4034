package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/servio-ai/prospector-cli/internal/model"
	"github.com/servio-ai/prospector-cli/internal/scorer"
)

var scoreCmd = &cobra.Command{
	Use:   "score [lead-id]",
	Short: "Show the score breakdown of a lead",
	Long: `Scores a stored lead by ID, or every lead in a JSON file given with
--input. File scoring does not touch the database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if input, _ := cmd.Flags().GetString("input"); input != "" {
			f, err := os.Open(input)
			if err != nil {
				return eris.Wrapf(err, "score: open %s", input)
			}
			defer f.Close() //nolint:errcheck
			return scoreFile(f, os.Stdout, time.Now())
		}
		if len(args) == 0 {
			return eris.New("score: a lead ID or --input is required")
		}

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		id, err := resolveLeadID(ctx, svc, args[0])
		if err != nil {
			return err
		}
		lead, err := svc.Lead(ctx, id)
		if err != nil {
			return eris.Wrap(err, "score")
		}
		formatScore(os.Stdout, lead.Name, svc.Score(*lead))
		return nil
	},
}

type scoredLead struct {
	Name string `json:"name"`
	scorer.Result
}

// scoreFile scores a JSON array of leads and writes the results in order.
func scoreFile(in io.Reader, out io.Writer, now time.Time) error {
	var leads []model.Lead
	if err := json.NewDecoder(in).Decode(&leads); err != nil {
		return eris.Wrap(err, "score: decode leads")
	}
	results := make([]scoredLead, len(leads))
	for i, l := range leads {
		results[i] = scoredLead{Name: l.Name, Result: scorer.Calculate(l, now)}
	}
	return writeJSON(out, results)
}

func init() {
	scoreCmd.Flags().String("input", "", "JSON array of leads to score")
	rootCmd.AddCommand(scoreCmd)
}
