package model

import (
	"encoding/json"
	"time"
)

// SavedFilter is a named, persisted condition set.
//
// Conditions are kept as raw JSON so the model package stays independent of
// the filter evaluator; callers decode them with filter.DecodeConditions.
type SavedFilter struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Conditions json.RawMessage `json:"conditions"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
