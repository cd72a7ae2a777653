package segment

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

// FactsAlias is the table alias the rendered predicate expects for the
// customer_facts projection.
const FactsAlias = "f"

// sqlBuilder accumulates positional arguments starting after argOffset
type sqlBuilder struct {
	args   []any
	offset int
	nowPos string
}

func (b *sqlBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", b.offset+len(b.args))
}

// now binds the reference time once and reuses its placeholder
func (b *sqlBuilder) now(q *QuerySpec) string {
	if b.nowPos == "" {
		b.nowPos = b.bind(q.now) + "::timestamptz"
	}
	return b.nowPos
}

// SQL renders the spec as a parameterized predicate over customer_facts
// aliased as f. Placeholders are numbered from argOffset+1. Field
// expressions come only from the closed catalog; every value is bound.
func (q *QuerySpec) SQL(argOffset int) (string, []any) {
	b := &sqlBuilder{offset: argOffset}
	return q.render(b, q.root), b.args
}

func (q *QuerySpec) render(b *sqlBuilder, e expr) string {
	switch n := e.(type) {
	case always:
		return "TRUE"

	case all:
		return q.join(b, []expr(n), " AND ")

	case anyOf:
		return q.join(b, []expr(n), " OR ")

	case notOptedOut:
		return "f.marketing_opt_out = FALSE"

	case reachable:
		if n.channel == models.ChannelSMS {
			return "(f.sms_consent AND COALESCE(f.phone, '') <> '')"
		}
		return "(f.email_consent AND COALESCE(f.email, '') <> '')"

	case notContactedWithin:
		return fmt.Sprintf("(f.last_contacted_at IS NULL OR f.last_contacted_at < %s - make_interval(days => %s))",
			b.now(q), b.bind(n.days))

	case compare:
		return q.renderCompare(b, n)
	}
	return "FALSE"
}

func (q *QuerySpec) join(b *sqlBuilder, parts []expr, sep string) string {
	if len(parts) == 0 {
		return "TRUE"
	}
	rendered := make([]string, 0, len(parts))
	for _, p := range parts {
		rendered = append(rendered, q.render(b, p))
	}
	return "(" + strings.Join(rendered, sep) + ")"
}

func (q *QuerySpec) renderCompare(b *sqlBuilder, c compare) string {
	col := c.def.sql
	if strings.Contains(col, "{now}") {
		col = strings.ReplaceAll(col, "{now}", b.now(q))
	}
	if c.def.kind == kindNumber {
		col = "(" + col + ")::float8"
	}

	cast := ""
	switch c.def.kind {
	case kindNumber:
		cast = "::float8"
	case kindBool:
		cast = "::boolean"
	}

	switch c.op {
	case models.OpIsNull:
		return fmt.Sprintf("(%s IS NULL)", col)
	case models.OpIsNotNull:
		return fmt.Sprintf("(%s IS NOT NULL)", col)
	case models.OpEq:
		return fmt.Sprintf("(%s = %s%s)", col, b.bind(c.value), cast)
	case models.OpNeq:
		return fmt.Sprintf("(%s <> %s%s)", col, b.bind(c.value), cast)
	case models.OpGt:
		return fmt.Sprintf("(%s > %s%s)", col, b.bind(c.value), cast)
	case models.OpGte:
		return fmt.Sprintf("(%s >= %s%s)", col, b.bind(c.value), cast)
	case models.OpLt:
		return fmt.Sprintf("(%s < %s%s)", col, b.bind(c.value), cast)
	case models.OpLte:
		return fmt.Sprintf("(%s <= %s%s)", col, b.bind(c.value), cast)
	case models.OpBetween:
		return fmt.Sprintf("(%s BETWEEN %s%s AND %s%s)", col, b.bind(c.value), cast, b.bind(c.value2), cast)
	case models.OpContains:
		return fmt.Sprintf("(POSITION(LOWER(%s) IN LOWER(%s)) > 0)", b.bind(c.value), col)
	case models.OpIn, models.OpNotIn:
		arr := b.bind(listArray(c.def.kind, c.list))
		arrCast := "::text[]"
		if c.def.kind == kindNumber {
			arrCast = "::float8[]"
		}
		if c.op == models.OpIn {
			return fmt.Sprintf("(%s = ANY(%s%s))", col, arr, arrCast)
		}
		return fmt.Sprintf("(NOT (%s = ANY(%s%s)))", col, arr, arrCast)
	}
	return "FALSE"
}

func listArray(k kind, list []any) any {
	if k == kindNumber {
		out := make([]float64, 0, len(list))
		for _, v := range list {
			out = append(out, v.(float64))
		}
		return pq.Array(out)
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, v.(string))
	}
	return pq.Array(out)
}
