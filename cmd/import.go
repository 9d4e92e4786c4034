package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/servio-ai/prospector-cli/internal/importer"
	"github.com/servio-ai/prospector-cli/internal/resilience"
	sfpkg "github.com/servio-ai/prospector-cli/pkg/salesforce"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads from files, Salesforce or Notion",
	Long:  "Loads leads into the store, updating leads imported earlier from the same source instead of duplicating them.",
}

var importCSVCmd = &cobra.Command{
	Use:   "csv <file>...",
	Short: "Import leads from CSV files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := importLocation(cmd)
		if err != nil {
			return err
		}
		charset, _ := cmd.Flags().GetString("charset")
		if charset == "" {
			charset = cfg.Import.Charset
		}
		delim, _ := cmd.Flags().GetString("delimiter")
		var sep rune
		if delim != "" {
			r, size := utf8.DecodeRuneInString(delim)
			if size != len(delim) {
				return eris.Errorf("import csv: --delimiter must be a single character (got %q)", delim)
			}
			sep = r
		}

		sources := make([]importer.Source, len(args))
		for i, path := range args {
			sources[i] = &importer.CSVSource{Path: path, Charset: charset, Delimiter: sep, Location: loc}
		}
		return runImport(cmd.Context(), sources)
	},
}

var importXLSXCmd = &cobra.Command{
	Use:   "xlsx <file>...",
	Short: "Import leads from Excel spreadsheets",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := importLocation(cmd)
		if err != nil {
			return err
		}
		sheet, _ := cmd.Flags().GetString("sheet")

		sources := make([]importer.Source, len(args))
		for i, path := range args {
			sources[i] = &importer.XLSXSource{Path: path, Sheet: sheet, Location: loc}
		}
		return runImport(cmd.Context(), sources)
	},
}

var importSalesforceCmd = &cobra.Command{
	Use:   "salesforce",
	Short: "Import unconverted Salesforce leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := initSalesforce()
		if err != nil {
			return err
		}

		q := sfpkg.LeadQuery{}
		q.Status, _ = cmd.Flags().GetString("status")
		q.Limit, _ = cmd.Flags().GetInt("limit")
		if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
			q.ModifiedSince = time.Now().Add(-since)
		}

		return runImport(cmd.Context(), []importer.Source{&importer.SalesforceSource{
			Client: client,
			Query:  q,
			Retry:  resilience.DefaultRetryConfig(),
		}})
	},
}

var importNotionCmd = &cobra.Command{
	Use:   "notion",
	Short: "Import leads from the Notion lead database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := initNotion()
		if err != nil {
			return err
		}
		return runImport(cmd.Context(), []importer.Source{&importer.NotionSource{
			Client:     client,
			DatabaseID: cfg.Notion.LeadDB,
		}})
	},
}

func runImport(ctx context.Context, sources []importer.Source) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, st, err := initService(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	rep, err := importer.ImportAll(ctx, sources, st,
		importer.WithConcurrency(cfg.Import.Concurrency),
		importer.WithLogger(zap.L()),
	)
	svc.Invalidate()
	if rep != nil {
		formatImportReport(os.Stdout, rep)
	}
	if err != nil {
		return eris.Wrap(err, "import")
	}
	return nil
}

func importLocation(cmd *cobra.Command) (*time.Location, error) {
	tz, _ := cmd.Flags().GetString("timezone")
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, eris.Wrapf(err, "import: timezone %s", tz)
	}
	return loc, nil
}

func init() {
	for _, c := range []*cobra.Command{importCSVCmd, importXLSXCmd} {
		c.Flags().String("timezone", "", "IANA zone for dates without an offset (default UTC)")
	}
	importCSVCmd.Flags().String("charset", "", "file encoding, e.g. windows-1252 (default from config)")
	importCSVCmd.Flags().String("delimiter", "", "field separator (default: sniffed , or ;)")
	importXLSXCmd.Flags().String("sheet", "", "sheet name (default: first sheet)")

	importSalesforceCmd.Flags().Duration("since", 0, "only leads modified within this window, e.g. 720h")
	importSalesforceCmd.Flags().String("status", "", "only leads with this Salesforce status")
	importSalesforceCmd.Flags().Int("limit", 0, "maximum leads to fetch (0 = all)")

	importCmd.AddCommand(importCSVCmd, importXLSXCmd, importSalesforceCmd, importNotionCmd)
	rootCmd.AddCommand(importCmd)
}
