package models

import "encoding/json"

// Logic combines the conditions of a segment
type Logic string

// Logic constants
const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Operator is a condition comparison operator
type Operator string

// Operator constants
const (
	OpEq        Operator = "eq"
	OpNeq       Operator = "neq"
	OpGt        Operator = "gt"
	OpGte       Operator = "gte"
	OpLt        Operator = "lt"
	OpLte       Operator = "lte"
	OpBetween   Operator = "between"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
	OpContains  Operator = "contains"
	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
)

// Condition is one audience filter over a catalog field.
// Value and Value2 hold decoded JSON (float64, string, bool or []any).
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
	Value2   any      `json:"value2,omitempty"`
}

// SegmentDefinition is a declarative audience definition
type SegmentDefinition struct {
	Logic                        Logic       `json:"logic"`
	Conditions                   []Condition `json:"conditions"`
	ExcludeOptedOut              bool        `json:"excludeOptedOut"`
	ExcludeRecentlyContactedDays *int        `json:"excludeRecentlyContactedDays,omitempty"`
	RequiredChannel              *Channel    `json:"requiredChannel,omitempty"`
}

// UnmarshalJSON accepts excludeMarketingOptOut as an alias of excludeOptedOut
func (d *SegmentDefinition) UnmarshalJSON(data []byte) error {
	type plain SegmentDefinition
	var aux struct {
		plain
		ExcludeMarketingOptOut *bool `json:"excludeMarketingOptOut"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = SegmentDefinition(aux.plain)
	if aux.ExcludeMarketingOptOut != nil && *aux.ExcludeMarketingOptOut {
		d.ExcludeOptedOut = true
	}
	return nil
}

// EffectiveLogic defaults an empty logic to AND
func (d *SegmentDefinition) EffectiveLogic() Logic {
	if d.Logic == LogicOr {
		return LogicOr
	}
	return LogicAnd
}
