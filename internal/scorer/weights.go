package scorer

import (
	"time"

	"github.com/servio-ai/prospector-cli/internal/model"
)

// Additive weights applied on top of BaseScore.

var stagePoints = map[model.Stage]int{
	model.StageNew:         5,
	model.StageContacted:   10,
	model.StageNegotiating: 25,
	model.StageWon:         0,
	model.StageLost:        -50,
}

var sourcePoints = map[model.Source]int{
	model.SourceReferral: 15,
	model.SourceEvent:    10,
	model.SourceDirect:   8,
	model.SourceSocial:   5,
	model.SourceOther:    0,
}

const (
	completenessPerField = 5
	day                  = 24 * time.Hour
)

// recencyPoints rewards recent activity. Days are whole elapsed 24h
// periods; a timestamp in the future counts as today.
func recencyPoints(last *time.Time, now time.Time) int {
	if last == nil || last.IsZero() {
		return 0
	}
	days := int(now.Sub(*last) / day)
	switch {
	case days <= 0:
		return 20
	case days <= 3:
		return 15
	case days <= 7:
		return 5
	case days > 14:
		return -15
	default:
		return 0
	}
}

func completenessPoints(l model.Lead) int {
	pts := 0
	for _, v := range []string{l.Email, l.Category, l.Location} {
		if v != "" {
			pts += completenessPerField
		}
	}
	return pts
}

func activityPoints(n int) int {
	switch {
	case n >= 5:
		return 15
	case n >= 3:
		return 10
	case n >= 1:
		return 5
	default:
		return 0
	}
}
