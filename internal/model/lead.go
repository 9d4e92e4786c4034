// Package model defines the prospector CRM domain types.
package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Stage is a lead's position in the sales funnel.
type Stage string

const (
	StageNew         Stage = "new"
	StageContacted   Stage = "contacted"
	StageNegotiating Stage = "negotiating"
	StageWon         Stage = "won"
	StageLost        Stage = "lost"
)

// Stages lists funnel stages in board order.
var Stages = []Stage{StageNew, StageContacted, StageNegotiating, StageWon, StageLost}

// ParseStage converts a user-supplied stage name. Matching is case-insensitive.
func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Stages {
		if st == known {
			return st, nil
		}
	}
	return "", eris.Errorf("model: unknown stage %q", s)
}

// Source is the acquisition channel a lead came from.
type Source string

const (
	SourceReferral Source = "referral"
	SourceEvent    Source = "event"
	SourceDirect   Source = "direct"
	SourceSocial   Source = "social"
	SourceOther    Source = "other"
)

// ParseSource maps free-form channel names onto a Source. Anything
// unrecognized becomes SourceOther.
func ParseSource(s string) Source {
	switch src := Source(strings.ToLower(strings.TrimSpace(s))); src {
	case SourceReferral, SourceEvent, SourceDirect, SourceSocial:
		return src
	default:
		return SourceOther
	}
}

// Temperature is a coarse urgency bucket derived from the lead score.
type Temperature string

const (
	TemperatureHot  Temperature = "hot"
	TemperatureWarm Temperature = "warm"
	TemperatureCold Temperature = "cold"
)

// Priority is the follow-up priority derived from temperature and stage.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Lead is a prospective contact tracked through the funnel.
//
// Score, Temperature and Priority are derived on load and are never
// persisted as a source of truth.
type Lead struct {
	ID           string     `json:"id"`
	ExternalID   string     `json:"external_id,omitempty"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Company      string     `json:"company,omitempty"`
	Category     string     `json:"category,omitempty"`
	Location     string     `json:"location,omitempty"`
	Stage        Stage      `json:"stage"`
	Source       Source     `json:"source"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	Activities   []Activity `json:"activities,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Score       int         `json:"score"`
	Temperature Temperature `json:"temperature,omitempty"`
	Priority    Priority    `json:"priority,omitempty"`
}

// Activity is a single touchpoint logged against a lead.
type Activity struct {
	ID     string    `json:"id"`
	LeadID string    `json:"lead_id"`
	Kind   string    `json:"kind"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// Activity kinds recorded by the CRM itself.
const (
	ActivityStageChange = "stage_change"
	ActivityNote        = "note"
	ActivityEmail       = "email"
	ActivityCall        = "call"
	ActivityMessage     = "message"
)

// leadFields is the registry of filterable lead fields, keyed by normalized name.
var leadFields = map[string]func(*Lead) any{
	"id":           func(l *Lead) any { return l.ID },
	"externalid":   func(l *Lead) any { return l.ExternalID },
	"name":         func(l *Lead) any { return l.Name },
	"email":        func(l *Lead) any { return l.Email },
	"phone":        func(l *Lead) any { return l.Phone },
	"company":      func(l *Lead) any { return l.Company },
	"category":     func(l *Lead) any { return l.Category },
	"location":     func(l *Lead) any { return l.Location },
	"stage":        func(l *Lead) any { return string(l.Stage) },
	"source":       func(l *Lead) any { return string(l.Source) },
	"notes":        func(l *Lead) any { return l.Notes },
	"activities":   func(l *Lead) any { return len(l.Activities) },
	"score":        func(l *Lead) any { return l.Score },
	"temperature":  func(l *Lead) any { return string(l.Temperature) },
	"priority":     func(l *Lead) any { return string(l.Priority) },
	"createdat":    func(l *Lead) any { return optionalTime(l.CreatedAt) },
	"updatedat":    func(l *Lead) any { return optionalTime(l.UpdatedAt) },
	"lastactivity": func(l *Lead) any {
		if l.LastActivity == nil {
			return nil
		}
		return *l.LastActivity
	},
	"tags": func(l *Lead) any {
		if len(l.Tags) == 0 {
			return nil
		}
		return l.Tags
	},
}

// FieldValue returns the value of a named lead field, or nil when the field
// is unknown. Names are matched ignoring case and underscores, so
// "lastActivity" and "last_activity" resolve to the same field.
func (l Lead) FieldValue(name string) any {
	get, ok := leadFields[normalizeField(name)]
	if !ok {
		return nil
	}
	return get(&l)
}

// LeadFieldNames returns the normalized names of all filterable lead fields.
func LeadFieldNames() []string {
	names := make([]string, 0, len(leadFields))
	for k := range leadFields {
		names = append(names, k)
	}
	return names
}

func normalizeField(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

func optionalTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
