package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/servio-ai/prospector-cli/internal/crm"
	"github.com/servio-ai/prospector-cli/internal/importer"
	"github.com/servio-ai/prospector-cli/internal/model"
	"github.com/servio-ai/prospector-cli/internal/scorer"
)

// formatLeads writes a tabular list of leads to w.
func formatLeads(out io.Writer, leads []model.Lead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tCOMPANY\tSTAGE\tSCORE\tTEMP\tPRIORITY\tLAST_ACTIVITY")
	_, _ = fmt.Fprintln(w, "--\t----\t-------\t-----\t-----\t----\t--------\t-------------")

	for _, l := range leads {
		last := ""
		if l.LastActivity != nil {
			last = l.LastActivity.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			truncateID(l.ID),
			truncate(l.Name, 30),
			truncate(l.Company, 24),
			l.Stage,
			l.Score,
			l.Temperature,
			l.Priority,
			last,
		)
	}
	_ = w.Flush()
}

// formatBoard writes one section per funnel column.
func formatBoard(out io.Writer, cols []crm.Column) {
	for i, c := range cols {
		if i > 0 {
			_, _ = fmt.Fprintln(out)
		}
		_, _ = fmt.Fprintf(out, "== %s (%d)\n", strings.ToUpper(string(c.Stage)), c.Count)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, l := range c.Leads {
			_, _ = fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", l.Score, l.Temperature, truncate(l.Name, 30), truncateID(l.ID))
		}
		_ = w.Flush()
	}
}

// formatDashboard writes funnel totals to w.
func formatDashboard(out io.Writer, d *crm.Dashboard) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total leads:\t%d\n", d.Total)
	_, _ = fmt.Fprintf(w, "Average score:\t%.1f\n", d.AverageScore)
	_, _ = fmt.Fprintf(w, "Hot leads:\t%d\n", d.HotLeads)
	_, _ = fmt.Fprintf(w, "Conversion rate:\t%.1f%%\n", d.ConversionRate)
	_, _ = fmt.Fprintln(w, "By stage:")
	for _, st := range model.Stages {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", st, d.ByStage[st])
	}
	_, _ = fmt.Fprintln(w, "By temperature:")
	for _, t := range []model.Temperature{model.TemperatureHot, model.TemperatureWarm, model.TemperatureCold} {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", t, d.ByTemperature[t])
	}
	_, _ = fmt.Fprintln(w, "By source:")
	sources := make([]string, 0, len(d.BySource))
	for s := range d.BySource {
		sources = append(sources, string(s))
	}
	sort.Strings(sources)
	for _, s := range sources {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", s, d.BySource[model.Source(s)])
	}
	_ = w.Flush()
}

// formatScore writes a score breakdown to w.
func formatScore(out io.Writer, name string, r scorer.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if name != "" {
		_, _ = fmt.Fprintf(w, "Lead:\t%s\n", name)
	}
	_, _ = fmt.Fprintf(w, "Score:\t%d\n", r.Score)
	_, _ = fmt.Fprintf(w, "Temperature:\t%s\n", r.Temperature)
	_, _ = fmt.Fprintf(w, "Priority:\t%s\n", r.Priority)
	for _, c := range []string{
		scorer.ComponentRecency, scorer.ComponentStage, scorer.ComponentSource,
		scorer.ComponentCompleteness, scorer.ComponentActivity,
	} {
		_, _ = fmt.Fprintf(w, "  %s:\t%+d\n", c, r.Components[c])
	}
	_ = w.Flush()
}

func formatFilters(out io.Writer, fs []model.SavedFilter) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tCONDITIONS\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t----\t----------\t-------")
	for _, f := range fs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncateID(f.ID), f.Name, truncate(string(f.Conditions), 60), f.UpdatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

// formatImportReport writes per-source import counts to w.
func formatImportReport(out io.Writer, rep *importer.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tFETCHED\tCREATED\tUPDATED\tREJECTED\tDURATION")
	for _, s := range rep.Sources {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
			s.Source, s.Fetched, s.Created, s.Updated, len(s.Rejected), s.Duration)
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t\t%d\t%d\t%d\t\n", rep.Created, rep.Updated, rep.Rejected)
	_ = w.Flush()

	for _, s := range rep.Sources {
		for _, r := range s.Rejected {
			_, _ = fmt.Fprintf(out, "  %s row %d: %s\n", r.Source, r.Row, r.Err)
		}
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
