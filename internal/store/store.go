// Package store persists leads, their activity history and saved filters.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/servio-ai/prospector-cli/internal/model"
)

// ErrNotFound is returned when a lead or saved filter does not exist.
var ErrNotFound = eris.New("store: not found")

// LeadFilter narrows ListLeads at the database level. Rich filtering is
// done in memory by the filter package; this only bounds what is loaded.
type LeadFilter struct {
	Stage  model.Stage  `json:"stage,omitempty"`
	Source model.Source `json:"source,omitempty"`
	// Search matches name, company or email case-insensitively.
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the prospector CRM.
type Store interface {
	// Leads
	CreateLead(ctx context.Context, lead *model.Lead) error
	UpdateLead(ctx context.Context, lead *model.Lead) error
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	DeleteLead(ctx context.Context, id string) error
	// UpsertLeadByExternalID inserts lead or refreshes the contact fields of
	// the lead imported earlier with the same ExternalID. Stage and notes of
	// an existing lead are kept. lead.ID is set to the stored ID.
	UpsertLeadByExternalID(ctx context.Context, lead *model.Lead) (created bool, err error)
	MoveStage(ctx context.Context, id string, stage model.Stage, at time.Time) (*model.Lead, error)

	// Activities
	AddActivity(ctx context.Context, activity *model.Activity) error
	ListActivities(ctx context.Context, leadID string) ([]model.Activity, error)

	// Saved filters
	SaveFilter(ctx context.Context, f *model.SavedFilter) error
	GetFilter(ctx context.Context, idOrName string) (*model.SavedFilter, error)
	ListFilters(ctx context.Context) ([]model.SavedFilter, error)
	DeleteFilter(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// prepareNewLead fills in the ID, timestamps and funnel defaults.
func prepareNewLead(l *model.Lead, now time.Time) error {
	if strings.TrimSpace(l.Name) == "" {
		return eris.New("store: lead name is required")
	}
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Stage == "" {
		l.Stage = model.StageNew
	}
	if l.Source == "" {
		l.Source = model.SourceOther
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	return nil
}

func prepareActivity(a *model.Activity, now time.Time) error {
	if a.LeadID == "" {
		return eris.New("store: activity lead_id is required")
	}
	if a.Kind == "" {
		return eris.New("store: activity kind is required")
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.At.IsZero() {
		a.At = now
	}
	a.At = a.At.UTC()
	return nil
}

func prepareFilter(f *model.SavedFilter, now time.Time) error {
	if strings.TrimSpace(f.Name) == "" {
		return eris.New("store: filter name is required")
	}
	if len(f.Conditions) == 0 {
		f.Conditions = json.RawMessage("[]")
	}
	if !json.Valid(f.Conditions) {
		return eris.New("store: filter conditions are not valid JSON")
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	return nil
}

func stageChangeNote(from, to model.Stage) string {
	return string(from) + " -> " + string(to)
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal tags")
	}
	return string(b), nil
}

func decodeTags(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal tags")
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return tags, nil
}

// attachActivities distributes acts (ordered by time) onto their leads.
func attachActivities(leads []model.Lead, acts []model.Activity) {
	idx := make(map[string]int, len(leads))
	for i := range leads {
		idx[leads[i].ID] = i
	}
	for _, a := range acts {
		if i, ok := idx[a.LeadID]; ok {
			leads[i].Activities = append(leads[i].Activities, a)
		}
	}
}

func laterOf(cur *time.Time, at time.Time) *time.Time {
	if cur == nil || at.After(*cur) {
		t := at.UTC()
		return &t
	}
	return cur
}
