package segment

import (
	"strings"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

// Match evaluates the spec against one customer's facts in Go. NULL handling
// mirrors SQL: a missing value fails every comparison except is_null.
func (q *QuerySpec) Match(f *models.CustomerFacts) bool {
	if f == nil {
		return false
	}
	return q.eval(q.root, f)
}

func (q *QuerySpec) eval(e expr, f *models.CustomerFacts) bool {
	switch n := e.(type) {
	case always:
		return true

	case all:
		for _, part := range n {
			if !q.eval(part, f) {
				return false
			}
		}
		return true

	case anyOf:
		for _, part := range n {
			if q.eval(part, f) {
				return true
			}
		}
		return len(n) == 0

	case notOptedOut:
		return !f.OptedOut

	case reachable:
		if n.channel == models.ChannelSMS {
			return f.SMSConsent && f.PhoneNumber() != ""
		}
		return f.EmailConsent && f.EmailAddress() != ""

	case notContactedWithin:
		if f.LastContactedAt == nil {
			return true
		}
		cutoff := q.now.Add(-time.Duration(n.days) * 24 * time.Hour)
		return f.LastContactedAt.Before(cutoff)

	case compare:
		return q.evalCompare(n, f)
	}
	return false
}

func (q *QuerySpec) evalCompare(c compare, f *models.CustomerFacts) bool {
	v, present := c.def.value(f, q.now)

	switch c.op {
	case models.OpIsNull:
		return !present
	case models.OpIsNotNull:
		return present
	}
	if !present {
		return false
	}

	switch c.op {
	case models.OpEq:
		return v == c.value
	case models.OpNeq:
		return v != c.value
	case models.OpGt:
		return v.(float64) > c.value.(float64)
	case models.OpGte:
		return v.(float64) >= c.value.(float64)
	case models.OpLt:
		return v.(float64) < c.value.(float64)
	case models.OpLte:
		return v.(float64) <= c.value.(float64)
	case models.OpBetween:
		x := v.(float64)
		return x >= c.value.(float64) && x <= c.value2.(float64)
	case models.OpContains:
		return strings.Contains(strings.ToLower(v.(string)), strings.ToLower(c.value.(string)))
	case models.OpIn:
		return inList(v, c.list)
	case models.OpNotIn:
		return !inList(v, c.list)
	}
	return false
}

func inList(v any, list []any) bool {
	for _, item := range list {
		if v == item {
			return true
		}
	}
	return false
}
