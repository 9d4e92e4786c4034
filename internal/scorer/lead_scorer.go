// Package scorer implements the deterministic lead-scoring heuristic used to
// rank prospects for follow-up.
package scorer

import (
	"sort"
	"time"

	"github.com/servio-ai/prospector-cli/internal/model"
)

// Score bounds and temperature thresholds.
const (
	BaseScore = 50
	MinScore  = 0
	MaxScore  = 100

	HotThreshold  = 70
	WarmThreshold = 40
)

// Component names reported in Result.Components.
const (
	ComponentRecency      = "recency"
	ComponentStage        = "stage"
	ComponentSource       = "source"
	ComponentCompleteness = "completeness"
	ComponentActivity     = "activity"
)

// Result holds the derived attributes for a single lead.
type Result struct {
	Score       int               `json:"score"`
	Temperature model.Temperature `json:"temperature"`
	Priority    model.Priority    `json:"priority"`
	// Components holds each additive adjustment before clamping.
	Components map[string]int `json:"components"`
}

// Calculate scores a lead as of now. It is pure: the same lead and time
// always give the same result.
func Calculate(lead model.Lead, now time.Time) Result {
	components := map[string]int{
		ComponentRecency:      recencyPoints(lead.LastActivity, now),
		ComponentStage:        stagePoints[lead.Stage],
		ComponentSource:       sourcePoints[lead.Source],
		ComponentCompleteness: completenessPoints(lead),
		ComponentActivity:     activityPoints(len(lead.Activities)),
	}

	total := BaseScore
	for _, pts := range components {
		total += pts
	}
	score := clamp(total)

	temp := TemperatureFor(score)
	return Result{
		Score:       score,
		Temperature: temp,
		Priority:    PriorityFor(temp, lead.Stage),
		Components:  components,
	}
}

// TemperatureFor buckets a score.
func TemperatureFor(score int) model.Temperature {
	switch {
	case score >= HotThreshold:
		return model.TemperatureHot
	case score >= WarmThreshold:
		return model.TemperatureWarm
	default:
		return model.TemperatureCold
	}
}

// PriorityFor derives follow-up priority from temperature and stage.
func PriorityFor(temp model.Temperature, stage model.Stage) model.Priority {
	hot := temp == model.TemperatureHot
	negotiating := stage == model.StageNegotiating
	switch {
	case hot && negotiating:
		return model.PriorityHigh
	case hot || negotiating:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// Apply returns a copy of leads with Score, Temperature and Priority
// recomputed. The input slice is not modified.
func Apply(leads []model.Lead, now time.Time) []model.Lead {
	out := make([]model.Lead, len(leads))
	for i, l := range leads {
		r := Calculate(l, now)
		l.Score = r.Score
		l.Temperature = r.Temperature
		l.Priority = r.Priority
		out[i] = l
	}
	return out
}

// SortByScore orders leads by score descending; ties keep their order.
func SortByScore(leads []model.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		return leads[i].Score > leads[j].Score
	})
}

func clamp(v int) int {
	return min(max(v, MinScore), MaxScore)
}
