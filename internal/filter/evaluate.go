package filter

import "strings"

// compiled is a condition with its operand pre-processed once per
// condition set rather than once per record.
type compiled struct {
	field  string
	op     Operator
	text   string // lowercased operand for string ops, raw operand for equals
	number float64
	list   []any
	isList bool
}

// Compiled is a reusable, pre-processed condition set.
type Compiled struct {
	conds []compiled
}

// Compile pre-processes conds. String operators lowercase their operand here.
func Compile(conds []Condition) *Compiled {
	out := &Compiled{conds: make([]compiled, len(conds))}
	for i, c := range conds {
		cc := compiled{field: c.Field, op: c.Operator}
		switch c.Operator {
		case OpContains, OpStartsWith, OpEndsWith:
			cc.text = strings.ToLower(stringify(c.Value))
		case OpEquals:
			cc.text = stringify(c.Value)
		case OpGT, OpLT, OpGTE, OpLTE:
			cc.number = toNumber(c.Value)
		case OpIn, OpNotIn:
			cc.list, cc.isList = asList(c.Value)
		}
		out.conds[i] = cc
	}
	return out
}

// Len returns the number of conditions.
func (c *Compiled) Len() int {
	return len(c.conds)
}

// Match reports whether rec satisfies every condition.
func (c *Compiled) Match(rec Fielder) bool {
	for i := range c.conds {
		if !c.conds[i].match(rec.FieldValue(c.conds[i].field)) {
			return false
		}
	}
	return true
}

func (c *compiled) match(raw any) bool {
	switch c.op {
	case OpContains:
		return strings.Contains(strings.ToLower(stringify(raw)), c.text)
	case OpEquals:
		return stringify(raw) == c.text
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(stringify(raw)), c.text)
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(stringify(raw)), c.text)
	case OpGT:
		return toNumber(raw) > c.number
	case OpLT:
		return toNumber(raw) < c.number
	case OpGTE:
		return toNumber(raw) >= c.number
	case OpLTE:
		return toNumber(raw) <= c.number
	case OpIn:
		return c.isList && contains(c.list, raw)
	case OpNotIn:
		return !c.isList || !contains(c.list, raw)
	case OpExists:
		return !absent(raw)
	case OpNotExists:
		return absent(raw)
	default:
		// Unknown operators do not constrain the result.
		return true
	}
}

func contains(list []any, v any) bool {
	for _, item := range list {
		if sameValue(item, v) {
			return true
		}
	}
	return false
}

// Apply returns the records satisfying every condition, in their original
// order. With no conditions the input slice itself is returned. Input
// records are never modified.
func Apply[R Fielder](records []R, conds []Condition) []R {
	if len(conds) == 0 {
		return records
	}
	return Select(records, Compile(conds))
}

// Select filters records with an already compiled condition set.
func Select[R Fielder](records []R, c *Compiled) []R {
	if c.Len() == 0 {
		return records
	}
	var out []R
	for _, rec := range records {
		if c.Match(rec) {
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		// Empty results still get their own backing array.
		return make([]R, 0, 1)
	}
	return out
}
