// Package importer loads leads from files and external CRMs into the store.
package importer

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/servio-ai/prospector-cli/internal/model"
	"github.com/servio-ai/prospector-cli/internal/store"
)

// Source produces leads from one origin.
type Source interface {
	Name() string
	// Fetch returns the leads it could parse. Rows that fail to parse are
	// reported in Batch.Rejected; only whole-source failures return an error.
	Fetch(ctx context.Context) (Batch, error)
}

// Batch is the result of fetching one source.
type Batch struct {
	Leads []model.Lead
	// Rows holds the source row of each lead, parallel to Leads.
	Rows     []int
	Rejected []RowError
}

func (b *Batch) add(lead model.Lead, row int) {
	b.Leads = append(b.Leads, lead)
	b.Rows = append(b.Rows, row)
}

// row returns the source row of the i-th lead, falling back to its
// 1-based position when the source did not record one.
func (b *Batch) row(i int) int {
	if i < len(b.Rows) && b.Rows[i] > 0 {
		return b.Rows[i]
	}
	return i + 1
}

// RowError describes one record a source could not turn into a lead.
type RowError struct {
	Source string `json:"source"`
	// Row is 1-based and counts the header line for files. Remote records
	// use their position in the fetched result.
	Row int    `json:"row"`
	Err string `json:"error"`
}

// SourceReport tallies one source's import.
type SourceReport struct {
	Source   string     `json:"source"`
	Fetched  int        `json:"fetched"`
	Created  int        `json:"created"`
	Updated  int        `json:"updated"`
	Rejected []RowError `json:"rejected,omitempty"`
	Duration string     `json:"duration"`
}

// Report summarizes an ImportAll run.
type Report struct {
	Sources  []SourceReport `json:"sources"`
	Created  int            `json:"created"`
	Updated  int            `json:"updated"`
	Rejected int            `json:"rejected"`
}

// DefaultConcurrency bounds how many sources are fetched at once.
const DefaultConcurrency = 4

type options struct {
	concurrency int
	log         *zap.Logger
}

// Option configures ImportAll.
type Option func(*options)

// WithConcurrency caps concurrent source fetches. Values below 1 use the default.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger sets the logger for per-row warnings.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// ImportAll fetches sources concurrently and upserts every lead by its
// external ID. Rejected rows and failed upserts are counted and logged. A
// source that cannot be fetched at all aborts the run; reports of sources
// finished before that are still returned.
func ImportAll(ctx context.Context, sources []Source, st store.Store, opts ...Option) (*Report, error) {
	o := options{concurrency: DefaultConcurrency, log: zap.L()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With(zap.String("component", "importer"))

	reports := make([]SourceReport, len(sources))
	done := make([]bool, len(sources))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, src := range sources {
		g.Go(func() error {
			rep, err := importSource(gctx, src, st, log)
			if err != nil {
				return eris.Wrapf(err, "importer: source %s", src.Name())
			}
			mu.Lock()
			reports[i] = rep
			done[i] = true
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	report := &Report{}
	for i, rep := range reports {
		if !done[i] {
			continue
		}
		report.Sources = append(report.Sources, rep)
		report.Created += rep.Created
		report.Updated += rep.Updated
		report.Rejected += len(rep.Rejected)
	}
	return report, err
}

func importSource(ctx context.Context, src Source, st store.Store, log *zap.Logger) (SourceReport, error) {
	start := time.Now()
	rep := SourceReport{Source: src.Name()}

	batch, err := src.Fetch(ctx)
	if err != nil {
		return rep, err
	}
	rep.Fetched = len(batch.Leads) + len(batch.Rejected)
	rep.Rejected = append(rep.Rejected, batch.Rejected...)

	for _, rej := range batch.Rejected {
		log.Warn("row rejected",
			zap.String("source", rej.Source),
			zap.Int("row", rej.Row),
			zap.String("error", rej.Err),
		)
	}

	for i := range batch.Leads {
		if err := ctx.Err(); err != nil {
			return rep, eris.Wrap(err, "importer: upsert")
		}
		lead := batch.Leads[i]
		created, err := st.UpsertLeadByExternalID(ctx, &lead)
		if err != nil {
			rej := RowError{Source: src.Name(), Row: batch.row(i), Err: err.Error()}
			rep.Rejected = append(rep.Rejected, rej)
			log.Warn("upsert failed",
				zap.String("source", rej.Source),
				zap.String("external_id", lead.ExternalID),
				zap.Error(err),
			)
			continue
		}
		if created {
			rep.Created++
		} else {
			rep.Updated++
		}
	}

	rep.Duration = time.Since(start).Round(time.Millisecond).String()
	log.Info("source imported",
		zap.String("source", rep.Source),
		zap.Int("fetched", rep.Fetched),
		zap.Int("created", rep.Created),
		zap.Int("updated", rep.Updated),
		zap.Int("rejected", len(rep.Rejected)),
	)
	return rep, nil
}
