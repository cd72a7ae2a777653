package segment

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

var refNow = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := refNow.AddDate(0, 0, -n)
	return &t
}

func strPtr(s string) *string { return &s }

func facts(id int64, mutate func(f *models.CustomerFacts)) *models.CustomerFacts {
	f := &models.CustomerFacts{
		Customer: models.Customer{
			ID:           id,
			FirstName:    "Test",
			City:         "Portland",
			SMSConsent:   true,
			EmailConsent: true,
			Phone:        strPtr("+15035550100"),
			Email:        strPtr("test@example.com"),
			CreatedAt:    refNow.AddDate(-2, 0, 0),
		},
	}
	if mutate != nil {
		mutate(f)
	}
	return f
}

func TestCompile_ExamRecallBetween(t *testing.T) {
	def := &models.SegmentDefinition{
		Conditions: []models.Condition{
			{Field: "days_since_last_exam", Operator: models.OpBetween, Value: 330.0, Value2: 395.0},
		},
		ExcludeOptedOut: true,
	}

	spec, err := Compile(def, refNow)
	require.NoError(t, err)

	a := facts(1, func(f *models.CustomerFacts) { f.LastExamAt = daysAgo(350) })
	b := facts(2, func(f *models.CustomerFacts) { f.LastExamAt = daysAgo(400) })
	c := facts(3, nil)

	assert.True(t, spec.Match(a))
	assert.False(t, spec.Match(b))
	assert.False(t, spec.Match(c), "missing exam date never matches a comparison")
}

func TestCompile_OptOutExcludedUnderAnyLogic(t *testing.T) {
	optedOut := facts(1, func(f *models.CustomerFacts) { f.OptedOut = true })

	tests := []struct {
		name string
		def  *models.SegmentDefinition
	}{
		{
			name: "OR with zero conditions",
			def:  &models.SegmentDefinition{Logic: models.LogicOr, ExcludeOptedOut: true},
		},
		{
			name: "OR with a matching condition",
			def: &models.SegmentDefinition{
				Logic:           models.LogicOr,
				ExcludeOptedOut: true,
				Conditions: []models.Condition{
					{Field: "city", Operator: models.OpEq, Value: "Portland"},
					{Field: "lifetime_order_count", Operator: models.OpGte, Value: 0.0},
				},
			},
		},
		{
			name: "AND with an unknown field",
			def: &models.SegmentDefinition{
				ExcludeOptedOut: true,
				Conditions:      []models.Condition{{Field: "favourite_colour", Operator: models.OpEq, Value: "blue"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Compile(tt.def, refNow)
			require.NoError(t, err)
			assert.False(t, spec.Match(optedOut))

			sql, _ := spec.SQL(0)
			assert.Contains(t, sql, "f.marketing_opt_out = FALSE")
		})
	}
}

func TestCompile_UnknownFieldMatchesAll(t *testing.T) {
	def := &models.SegmentDefinition{
		Conditions: []models.Condition{{Field: "shoe_size", Operator: models.OpGt, Value: 9.0}},
	}

	spec, err := Compile(def, refNow)
	require.NoError(t, err)

	assert.Equal(t, []string{"shoe_size"}, spec.UnknownFields)
	assert.True(t, spec.Match(facts(1, nil)))

	sql, args := spec.SQL(0)
	assert.Equal(t, "((TRUE))", sql)
	assert.Empty(t, args)
}

func TestCompile_InvalidConditions(t *testing.T) {
	tests := []struct {
		name string
		cond models.Condition
	}{
		{"between without value2", models.Condition{Field: "age", Operator: models.OpBetween, Value: 30.0}},
		{"in without array", models.Condition{Field: "city", Operator: models.OpIn, Value: "Portland"}},
		{"gt on string field", models.Condition{Field: "city", Operator: models.OpGt, Value: "A"}},
		{"contains on number field", models.Condition{Field: "age", Operator: models.OpContains, Value: 3.0}},
		{"string value for number field", models.Condition{Field: "age", Operator: models.OpEq, Value: "forty"}},
		{"missing value", models.Condition{Field: "age", Operator: models.OpEq}},
		{"unknown operator", models.Condition{Field: "age", Operator: "like", Value: 1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(&models.SegmentDefinition{Conditions: []models.Condition{tt.cond}}, refNow)
			require.Error(t, err)

			var appErr *models.AppError
			assert.True(t, errors.As(err, &appErr))
			assert.Equal(t, "INVALID_INPUT", appErr.Code)
		})
	}
}

func TestCompile_Operators(t *testing.T) {
	f := facts(1, func(f *models.CustomerFacts) {
		f.LastOrderBrand = strPtr("Ray-Ban")
		f.OrderCount = 3
		f.OrderValue = 640
		f.InsuranceProvider = strPtr("VSP")
	})

	tests := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"eq string", models.Condition{Field: "city", Operator: models.OpEq, Value: "Portland"}, true},
		{"neq string", models.Condition{Field: "city", Operator: models.OpNeq, Value: "Portland"}, false},
		{"gt number", models.Condition{Field: "lifetime_order_value", Operator: models.OpGt, Value: 500.0}, true},
		{"lte number", models.Condition{Field: "lifetime_order_count", Operator: models.OpLte, Value: 2.0}, false},
		{"in string list", models.Condition{Field: "last_order_brand", Operator: models.OpIn, Value: []any{"Oakley", "Ray-Ban"}}, true},
		{"not_in string list", models.Condition{Field: "last_order_brand", Operator: models.OpNotIn, Value: []any{"Ray-Ban"}}, false},
		{"in number list", models.Condition{Field: "lifetime_order_count", Operator: models.OpIn, Value: []any{1.0, 3.0}}, true},
		{"contains is case-insensitive", models.Condition{Field: "last_order_brand", Operator: models.OpContains, Value: "ray"}, true},
		{"bool eq", models.Condition{Field: "has_active_insurance", Operator: models.OpEq, Value: true}, true},
		{"is_null on missing fact", models.Condition{Field: "days_until_rx_expiry", Operator: models.OpIsNull}, true},
		{"is_not_null on missing fact", models.Condition{Field: "birthday_month", Operator: models.OpIsNotNull}, false},
		{"neq on missing fact", models.Condition{Field: "age", Operator: models.OpNeq, Value: 40.0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Compile(&models.SegmentDefinition{Conditions: []models.Condition{tt.cond}}, refNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec.Match(f))
		})
	}
}

func TestCompile_Exclusions(t *testing.T) {
	sms := models.ChannelSMS
	days := 14

	def := &models.SegmentDefinition{
		RequiredChannel:              &sms,
		ExcludeRecentlyContactedDays: &days,
	}
	spec, err := Compile(def, refNow)
	require.NoError(t, err)

	assert.True(t, spec.Match(facts(1, nil)))
	assert.False(t, spec.Match(facts(2, func(f *models.CustomerFacts) { f.Phone = nil })), "no phone")
	assert.False(t, spec.Match(facts(3, func(f *models.CustomerFacts) { f.SMSConsent = false })), "no consent")
	assert.False(t, spec.Match(facts(4, func(f *models.CustomerFacts) { f.LastContactedAt = daysAgo(3) })), "contacted recently")
	assert.True(t, spec.Match(facts(5, func(f *models.CustomerFacts) { f.LastContactedAt = daysAgo(30) })))

	negative := -1
	_, err = Compile(&models.SegmentDefinition{ExcludeRecentlyContactedDays: &negative}, refNow)
	assert.Error(t, err)
}

func TestQuerySpec_SQLBindsValues(t *testing.T) {
	def := &models.SegmentDefinition{
		Logic: models.LogicOr,
		Conditions: []models.Condition{
			{Field: "city", Operator: models.OpEq, Value: "Portland'; DROP TABLE customers; --"},
			{Field: "days_since_last_order", Operator: models.OpGte, Value: 365.0},
		},
		ExcludeOptedOut: true,
	}

	spec, err := Compile(def, refNow)
	require.NoError(t, err)

	sql, args := spec.SQL(2)
	assert.NotContains(t, sql, "DROP TABLE")
	assert.Contains(t, sql, "$3")
	assert.True(t, strings.Contains(sql, " OR "))
	require.Len(t, args, 3)
	assert.Equal(t, "Portland'; DROP TABLE customers; --", args[0])
	assert.Equal(t, refNow, args[1])
	assert.Equal(t, 365.0, args[2])
}

func TestFields_DaysUntilBirthday(t *testing.T) {
	dob := time.Date(1990, time.June, 20, 0, 0, 0, 0, time.UTC)
	f := facts(1, func(f *models.CustomerFacts) { f.DateOfBirth = &dob })

	spec, err := Compile(&models.SegmentDefinition{
		Conditions: []models.Condition{{Field: "days_until_birthday", Operator: models.OpBetween, Value: 0.0, Value2: 7.0}},
	}, refNow)
	require.NoError(t, err)
	assert.True(t, spec.Match(f))

	age, ok := fields[FieldAge].value(f, refNow)
	require.True(t, ok)
	assert.Equal(t, 34.0, age)
}

func TestCompile_ExamRecallFromJSON(t *testing.T) {
	raw := `{"conditions":[{"field":"daysSinceLastExam","operator":"between","value":330,"value2":395}],"excludeMarketingOptOut":true}`

	var def models.SegmentDefinition
	require.NoError(t, json.Unmarshal([]byte(raw), &def))

	spec, err := Compile(&def, refNow)
	require.NoError(t, err)
	assert.Empty(t, spec.UnknownFields)

	a := facts(1, func(f *models.CustomerFacts) { f.LastExamAt = daysAgo(350) })
	b := facts(2, func(f *models.CustomerFacts) { f.LastExamAt = daysAgo(400) })
	optedOut := facts(3, func(f *models.CustomerFacts) {
		f.LastExamAt = daysAgo(350)
		f.OptedOut = true
	})

	assert.True(t, spec.Match(a))
	assert.False(t, spec.Match(b))
	assert.False(t, spec.Match(optedOut))

	sql, _ := spec.SQL(0)
	assert.Contains(t, sql, "f.last_exam_at")
}

func TestLookupField_AcceptsCamelCase(t *testing.T) {
	tests := []struct {
		name string
		want Field
	}{
		{"daysSinceLastExam", FieldDaysSinceLastExam},
		{"daysSinceLastOrder", FieldDaysSinceLastOrder},
		{"lifetimeOrderCount", FieldLifetimeOrderCount},
		{"hasActiveInsurance", FieldHasActiveInsurance},
		{"age", FieldAge},
		{"birthdayMonth", FieldBirthdayMonth},
		{"days_since_last_exam", FieldDaysSinceLastExam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LookupField(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := LookupField("shoeSize")
	assert.False(t, ok)
}

func TestCompile_CamelCaseFieldsFilter(t *testing.T) {
	f := facts(1, func(f *models.CustomerFacts) {
		f.OrderCount = 2
		f.InsuranceProvider = strPtr("VSP")
		f.LastOrderAt = daysAgo(400)
	})

	tests := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"lifetimeOrderCount", models.Condition{Field: "lifetimeOrderCount", Operator: models.OpGte, Value: 3.0}, false},
		{"hasActiveInsurance", models.Condition{Field: "hasActiveInsurance", Operator: models.OpEq, Value: true}, true},
		{"daysSinceLastOrder", models.Condition{Field: "daysSinceLastOrder", Operator: models.OpLt, Value: 365.0}, false},
		{"birthdayMonth on missing dob", models.Condition{Field: "birthdayMonth", Operator: models.OpEq, Value: 6.0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Compile(&models.SegmentDefinition{Conditions: []models.Condition{tt.cond}}, refNow)
			require.NoError(t, err)
			assert.Empty(t, spec.UnknownFields)
			assert.Equal(t, tt.want, spec.Match(f))
		})
	}
}

func TestDaysUntilBirthday(t *testing.T) {
	leapling := time.Date(2000, time.February, 29, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		dob  time.Time
		now  time.Time
		want int
	}{
		{"later this year", time.Date(1990, time.June, 20, 0, 0, 0, 0, time.UTC), refNow, 5},
		{"today", time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC), refNow, 0},
		{"already passed", time.Date(1990, time.June, 14, 0, 0, 0, 0, time.UTC), refNow, 364},
		{"feb 29 in a common year falls on feb 28", leapling, time.Date(2025, time.February, 20, 18, 0, 0, 0, time.UTC), 8},
		{"feb 29 on feb 28 of a common year", leapling, time.Date(2025, time.February, 28, 23, 0, 0, 0, time.UTC), 0},
		{"feb 29 in a leap year", leapling, time.Date(2028, time.February, 20, 0, 0, 0, 0, time.UTC), 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, daysUntilBirthday(tt.dob, tt.now))
		})
	}
}
