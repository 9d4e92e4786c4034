package crm

import (
	"context"
	"math"

	"github.com/servio-ai/prospector-cli/internal/filter"
	"github.com/servio-ai/prospector-cli/internal/model"
	"github.com/servio-ai/prospector-cli/internal/scorer"
)

// Column is one Kanban column of the funnel board.
type Column struct {
	Stage model.Stage  `json:"stage"`
	Count int          `json:"count"`
	Leads []model.Lead `json:"leads"`
}

// Board groups the matching leads by stage, in funnel order, each column
// sorted by score descending. Leads in an unknown stage are dropped.
func (s *Service) Board(ctx context.Context, conds []filter.Condition) ([]Column, error) {
	leads, err := s.Leads(ctx, conds)
	if err != nil {
		return nil, err
	}

	cols := make([]Column, len(model.Stages))
	pos := make(map[model.Stage]int, len(model.Stages))
	for i, st := range model.Stages {
		cols[i] = Column{Stage: st, Leads: []model.Lead{}}
		pos[st] = i
	}
	for _, l := range leads {
		if i, ok := pos[l.Stage]; ok {
			cols[i].Leads = append(cols[i].Leads, l)
		}
	}
	for i := range cols {
		scorer.SortByScore(cols[i].Leads)
		cols[i].Count = len(cols[i].Leads)
	}
	return cols, nil
}

// Dashboard summarizes the funnel.
type Dashboard struct {
	Total          int                       `json:"total"`
	ByStage        map[model.Stage]int       `json:"by_stage"`
	ByTemperature  map[model.Temperature]int `json:"by_temperature"`
	ByPriority     map[model.Priority]int    `json:"by_priority"`
	BySource       map[model.Source]int      `json:"by_source"`
	AverageScore   float64                   `json:"average_score"`
	HotLeads       int                       `json:"hot_leads"`
	ConversionRate float64                   `json:"conversion_rate"`
}

// Dashboard computes funnel totals over every lead. ConversionRate is the
// percentage won / (won + lost), or 0 when nothing is closed yet.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return summarize(snap.Records()), nil
}

func summarize(leads []model.Lead) *Dashboard {
	d := &Dashboard{
		Total:         len(leads),
		ByStage:       make(map[model.Stage]int),
		ByTemperature: make(map[model.Temperature]int),
		ByPriority:    make(map[model.Priority]int),
		BySource:      make(map[model.Source]int),
	}

	sum := 0
	for _, l := range leads {
		d.ByStage[l.Stage]++
		d.ByTemperature[l.Temperature]++
		d.ByPriority[l.Priority]++
		d.BySource[l.Source]++
		sum += l.Score
		if l.Temperature == model.TemperatureHot {
			d.HotLeads++
		}
	}
	if len(leads) > 0 {
		d.AverageScore = round1(float64(sum) / float64(len(leads)))
	}
	if closed := d.ByStage[model.StageWon] + d.ByStage[model.StageLost]; closed > 0 {
		d.ConversionRate = round1(100 * float64(d.ByStage[model.StageWon]) / float64(closed))
	}
	return d
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
