// Package filter evaluates ordered, AND-combined field conditions against
// in-memory records. It never fails on malformed data: missing or
// wrong-typed fields degrade to neutral values.
package filter

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Operator names a per-field comparison.
type Operator string

const (
	OpContains   Operator = "contains"
	OpEquals     Operator = "equals"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpGT         Operator = "gt"
	OpLT         Operator = "lt"
	OpGTE        Operator = "gte"
	OpLTE        Operator = "lte"
	OpIn         Operator = "in"
	OpNotIn      Operator = "notIn"
	OpExists     Operator = "exists"
	OpNotExists  Operator = "notExists"
)

// Operators lists every supported operator.
var Operators = []Operator{
	OpContains, OpEquals, OpStartsWith, OpEndsWith,
	OpGT, OpLT, OpGTE, OpLTE,
	OpIn, OpNotIn, OpExists, OpNotExists,
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	for _, known := range Operators {
		if o == known {
			return true
		}
	}
	return false
}

// needsValue reports whether the operator compares against an operand.
func (o Operator) needsValue() bool {
	return o != OpExists && o != OpNotExists
}

// Condition is a single field/operator/value test.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
}

// Validate rejects conditions the evaluator would silently ignore.
// The evaluator itself treats an unknown operator as a no-op; callers that
// accept conditions from users validate first.
func (c Condition) Validate() error {
	if c.Field == "" {
		return eris.New("filter: condition field is required")
	}
	if !c.Operator.Valid() {
		return eris.Errorf("filter: unknown operator %q on field %q", c.Operator, c.Field)
	}
	if c.Operator.needsValue() && c.Value == nil {
		return eris.Errorf("filter: operator %q on field %q requires a value", c.Operator, c.Field)
	}
	return nil
}

// ValidateAll validates every condition, reporting the first failure with its index.
func ValidateAll(conds []Condition) error {
	for i, c := range conds {
		if err := c.Validate(); err != nil {
			return eris.Wrapf(err, "filter: condition %d", i)
		}
	}
	return nil
}

// DecodeConditions parses and validates a JSON condition array.
func DecodeConditions(data []byte) ([]Condition, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var conds []Condition
	if err := json.Unmarshal(data, &conds); err != nil {
		return nil, eris.Wrap(err, "filter: decode conditions")
	}
	if err := ValidateAll(conds); err != nil {
		return nil, err
	}
	return conds, nil
}

// LoadConditions reads a YAML or JSON condition file.
func LoadConditions(path string) ([]Condition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "filter: read %s", path)
	}
	var conds []Condition
	if err := yaml.Unmarshal(data, &conds); err != nil {
		return nil, eris.Wrapf(err, "filter: parse %s", path)
	}
	if err := ValidateAll(conds); err != nil {
		return nil, err
	}
	return conds, nil
}

// Fielder is implemented by records that expose named fields. Unknown or
// absent fields return nil.
type Fielder interface {
	FieldValue(name string) any
}

// Record is a loosely typed record, e.g. a decoded JSON document.
type Record map[string]any

// FieldValue implements Fielder.
func (r Record) FieldValue(name string) any {
	return r[name]
}
