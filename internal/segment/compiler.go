// Package segment compiles declarative audience definitions into typed
// query specs over the closed customer field catalog. A compiled spec can be
// rendered as a parameterized Postgres predicate or evaluated in Go.
package segment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

// expr is the tagged union of compiled predicate nodes
type expr interface {
	isExpr()
}

type (
	// always matches every customer; unknown fields and empty segments compile to it
	always struct{}
	// all is a conjunction
	all []expr
	// any is a disjunction
	anyOf []expr

	compare struct {
		field  Field
		def    fieldDef
		op     models.Operator
		value  any
		value2 any
		list   []any
	}

	notOptedOut struct{}

	reachable struct {
		channel models.Channel
	}

	notContactedWithin struct {
		days int
	}
)

func (always) isExpr()             {}
func (all) isExpr()                {}
func (anyOf) isExpr()              {}
func (compare) isExpr()            {}
func (notOptedOut) isExpr()        {}
func (reachable) isExpr()          {}
func (notContactedWithin) isExpr() {}

// QuerySpec is a compiled segment bound to a reference time
type QuerySpec struct {
	root expr
	now  time.Time
	// UnknownFields lists condition fields that degraded to "always true"
	UnknownFields []string
}

// Now returns the reference time every relative field is computed against
func (q *QuerySpec) Now() time.Time {
	return q.now
}

// Compile translates a segment definition into a QuerySpec.
//
// Conditions combine with the segment's single logic operator. Global
// exclusions (opted-out, missing contact for the required channel, recently
// contacted) are always ANDed on top so a broad OR segment can never reach an
// excluded customer. Unknown fields compile to a match-all node.
func Compile(def *models.SegmentDefinition, now time.Time) (*QuerySpec, error) {
	if def == nil {
		def = &models.SegmentDefinition{}
	}

	spec := &QuerySpec{now: now}

	conds := make([]expr, 0, len(def.Conditions))
	for i, cond := range def.Conditions {
		node, err := compileCondition(cond)
		if err != nil {
			return nil, fmt.Errorf("condition %d (%s): %w", i, cond.Field, err)
		}
		if _, ok := node.(always); ok && !IsKnownField(cond.Field) {
			spec.UnknownFields = append(spec.UnknownFields, cond.Field)
		}
		conds = append(conds, node)
	}

	var body expr = always{}
	if len(conds) > 0 {
		if def.EffectiveLogic() == models.LogicOr {
			body = anyOf(conds)
		} else {
			body = all(conds)
		}
	}

	root := all{body}
	if def.ExcludeOptedOut {
		root = append(root, notOptedOut{})
	}
	if def.RequiredChannel != nil {
		if !models.IsValidChannel(*def.RequiredChannel) {
			return nil, models.ErrInvalidInput(fmt.Sprintf("invalid requiredChannel: %s", *def.RequiredChannel))
		}
		root = append(root, reachable{channel: *def.RequiredChannel})
	}
	if def.ExcludeRecentlyContactedDays != nil {
		days := *def.ExcludeRecentlyContactedDays
		if days < 0 {
			return nil, models.ErrInvalidInput("excludeRecentlyContactedDays cannot be negative")
		}
		if days > 0 {
			root = append(root, notContactedWithin{days: days})
		}
	}

	spec.root = root
	return spec, nil
}

func compileCondition(cond models.Condition) (expr, error) {
	field, ok := LookupField(cond.Field)
	if !ok {
		return always{}, nil
	}
	def := fields[field]

	node := compare{field: field, def: def, op: cond.Operator}

	if !operatorAllowed(def.kind, cond.Operator) {
		return nil, models.ErrInvalidInput(fmt.Sprintf("operator %q is not supported for %s field", cond.Operator, def.kind))
	}

	var err error
	switch cond.Operator {
	case models.OpIsNull, models.OpIsNotNull:
		return node, nil

	case models.OpBetween:
		if cond.Value == nil || cond.Value2 == nil {
			return nil, models.ErrInvalidInput("between requires value and value2")
		}
		if node.value, err = coerce(def.kind, cond.Value); err != nil {
			return nil, err
		}
		if node.value2, err = coerce(def.kind, cond.Value2); err != nil {
			return nil, err
		}
		return node, nil

	case models.OpIn, models.OpNotIn:
		items, ok := cond.Value.([]any)
		if !ok {
			return nil, models.ErrInvalidInput(fmt.Sprintf("%s requires an array value", cond.Operator))
		}
		node.list = make([]any, 0, len(items))
		for _, item := range items {
			v, err := coerce(def.kind, item)
			if err != nil {
				return nil, err
			}
			node.list = append(node.list, v)
		}
		return node, nil

	default:
		if cond.Value == nil {
			return nil, models.ErrInvalidInput(fmt.Sprintf("%s requires a value", cond.Operator))
		}
		if node.value, err = coerce(def.kind, cond.Value); err != nil {
			return nil, err
		}
		return node, nil
	}
}

func operatorAllowed(k kind, op models.Operator) bool {
	switch op {
	case models.OpEq, models.OpNeq, models.OpIsNull, models.OpIsNotNull:
		return true
	case models.OpGt, models.OpGte, models.OpLt, models.OpLte, models.OpBetween:
		return k == kindNumber
	case models.OpIn, models.OpNotIn:
		return k != kindBool
	case models.OpContains:
		return k == kindString
	default:
		return false
	}
}

// coerce normalizes a decoded JSON value to the Go type of the field kind:
// float64 for numbers, string, or bool.
func coerce(k kind, v any) (any, error) {
	switch k {
	case kindNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, models.ErrInvalidInput(fmt.Sprintf("invalid number %q", n))
			}
			return f, nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, models.ErrInvalidInput(fmt.Sprintf("invalid number %q", n))
			}
			return f, nil
		}
	case kindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case kindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err == nil {
				return parsed, nil
			}
		}
	}
	return nil, models.ErrInvalidInput(fmt.Sprintf("value %v is not a valid %s", v, k))
}
