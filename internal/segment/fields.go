package segment

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

// Field is a name from the closed audience field catalog
type Field string

// Catalog fields
const (
	FieldDaysSinceLastOrder    Field = "days_since_last_order"
	FieldDaysSinceLastExam     Field = "days_since_last_exam"
	FieldDaysSinceCreated      Field = "days_since_created"
	FieldLifetimeOrderCount    Field = "lifetime_order_count"
	FieldLifetimeOrderValue    Field = "lifetime_order_value"
	FieldHasActiveInsurance    Field = "has_active_insurance"
	FieldInsuranceProvider     Field = "insurance_provider"
	FieldInsuranceRenewalMonth Field = "insurance_renewal_month"
	FieldDaysUntilRxExpiry     Field = "days_until_rx_expiry"
	FieldHasActivePrescription Field = "has_active_prescription"
	FieldAge                   Field = "age"
	FieldBirthdayMonth         Field = "birthday_month"
	FieldDaysUntilBirthday     Field = "days_until_birthday"
	FieldLastOrderBrand        Field = "last_order_brand"
	FieldCity                  Field = "city"
	FieldReferralCount         Field = "referral_count"
)

type kind int

const (
	kindNumber kind = iota
	kindString
	kindBool
)

func (k kind) String() string {
	switch k {
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	default:
		return "boolean"
	}
}

// fieldDef binds a catalog field to one SQL expression over the customer_facts
// projection (alias f, {now} is the bound reference time) and to the Go
// extractor computing the same value from models.CustomerFacts.
type fieldDef struct {
	kind  kind
	sql   string
	value func(f *models.CustomerFacts, now time.Time) (any, bool)
}

const secondsPerDay = 86400

var fields = map[Field]fieldDef{
	FieldDaysSinceLastOrder: {
		kind:  kindNumber,
		sql:   "FLOOR(EXTRACT(EPOCH FROM ({now} - f.last_order_at)) / 86400)",
		value: func(f *models.CustomerFacts, now time.Time) (any, bool) { return daysBetween(f.LastOrderAt, now) },
	},
	FieldDaysSinceLastExam: {
		kind:  kindNumber,
		sql:   "FLOOR(EXTRACT(EPOCH FROM ({now} - f.last_exam_at)) / 86400)",
		value: func(f *models.CustomerFacts, now time.Time) (any, bool) { return daysBetween(f.LastExamAt, now) },
	},
	FieldDaysSinceCreated: {
		kind: kindNumber,
		sql:  "FLOOR(EXTRACT(EPOCH FROM ({now} - f.created_at)) / 86400)",
		value: func(f *models.CustomerFacts, now time.Time) (any, bool) {
			created := f.CreatedAt
			return daysBetween(&created, now)
		},
	},
	FieldLifetimeOrderCount: {
		kind:  kindNumber,
		sql:   "f.order_count",
		value: func(f *models.CustomerFacts, _ time.Time) (any, bool) { return float64(f.OrderCount), true },
	},
	FieldLifetimeOrderValue: {
		kind:  kindNumber,
		sql:   "f.order_value",
		value: func(f *models.CustomerFacts, _ time.Time) (any, bool) { return f.OrderValue, true },
	},
	FieldHasActiveInsurance: {
		kind:  kindBool,
		sql:   "(f.insurance_provider IS NOT NULL)",
		value: func(f *models.CustomerFacts, _ time.Time) (any, bool) { return f.InsuranceProvider != nil, true },
	},
	FieldInsuranceProvider: {
		kind:  kindString,
		sql:   "f.insurance_provider",
		value: func(f *models.CustomerFacts, _ time.Time) (any, bool) { return optString(f.InsuranceProvider) },
	},
	FieldInsuranceRenewalMonth: {
		kind: kindNumber,
		sql:  "EXTRACT(MONTH FROM f.insurance_renewal_at)",
		value: func(f *models.CustomerFacts, _ time.Time) (any, bool) {
			if f.InsuranceRenewalAt == nil {
				return nil, false
			}
			return float64(f.InsuranceRenewalAt.Month()), true
		},
	},
	FieldDaysUntilRxExpiry: {
		kind: kindNumber,
		sql:  "FLOOR(EXTRACT(EPOCH FROM (f.rx_expires_at - {now})) / 86400)",
		value: func(f *models.CustomerFacts, now time.Time) (any, bool) {
			if f.RxExpiresAt == nil {
				return nil, false
			}
			return math.Floor(f.RxExpiresAt.Sub(now).Seconds() / secondsPerDay), true
		},
	},
	FieldHasActivePrescription: {
		kind:  kindBool,
		sql:   "(f.rx_expires_at IS NOT NULL)",
		value: func(f *models.CustomerFacts, _ time.Time) (any, bool) { return f.RxExpiresAt != nil, true },
	},
	FieldAge: {
		kind: kindNumber,
		sql:  "DATE_PART('year', AGE({now}, f.date_of_birth))",
		value: func(f *models.CustomerFacts, now time.Time) (any, bool) {
			if f.DateOfBirth == nil {
				return nil, false
			}
			return float64(ageAt(*f.DateOfBirth, now)), true
		},
	},
	FieldBirthdayMonth: {
		kind: kindNumber,
		sql:  "EXTRACT(MONTH FROM f.date_of_birth)",
		value: func(f *models.CustomerFacts, _ time.Time) (any, bool) {
			if f.DateOfBirth == nil {
				return nil, false
			}
			return float64(f.DateOfBirth.Month()), true
		},
	},
	FieldDaysUntilBirthday: {
		kind: kindNumber,
		// Calendar days from today (UTC) to the next birthday. Adding whole
		// years to a date clamps Feb 29 to Feb 28 in common years.
		sql: "(SELECT CASE WHEN b.this_year >= b.today THEN b.this_year - b.today ELSE b.next_year - b.today END " +
			"FROM (SELECT ({now} AT TIME ZONE 'UTC')::date AS today, " +
			"(f.date_of_birth + (EXTRACT(YEAR FROM {now} AT TIME ZONE 'UTC') - EXTRACT(YEAR FROM f.date_of_birth)) * INTERVAL '1 year')::date AS this_year, " +
			"(f.date_of_birth + (EXTRACT(YEAR FROM {now} AT TIME ZONE 'UTC') - EXTRACT(YEAR FROM f.date_of_birth) + 1) * INTERVAL '1 year')::date AS next_year) b)",
		value: func(f *models.CustomerFacts, now time.Time) (any, bool) {
			if f.DateOfBirth == nil {
				return nil, false
			}
			return float64(daysUntilBirthday(*f.DateOfBirth, now)), true
		},
	},
	FieldLastOrderBrand: {
		kind:  kindString,
		sql:   "f.last_order_brand",
		value: func(f *models.CustomerFacts, _ time.Time) (any, bool) { return optString(f.LastOrderBrand) },
	},
	FieldCity: {
		kind:  kindString,
		sql:   "f.city",
		value: func(f *models.CustomerFacts, _ time.Time) (any, bool) { return f.City, true },
	},
	FieldReferralCount: {
		kind:  kindNumber,
		sql:   "f.referral_count",
		value: func(f *models.CustomerFacts, _ time.Time) (any, bool) { return float64(f.ReferralCount), true },
	},
}

// Fields lists the catalog in a stable order for authoring surfaces
func Fields() []Field {
	return []Field{
		FieldDaysSinceLastOrder, FieldDaysSinceLastExam, FieldDaysSinceCreated,
		FieldLifetimeOrderCount, FieldLifetimeOrderValue,
		FieldHasActiveInsurance, FieldInsuranceProvider, FieldInsuranceRenewalMonth,
		FieldDaysUntilRxExpiry, FieldHasActivePrescription,
		FieldAge, FieldBirthdayMonth, FieldDaysUntilBirthday, FieldLastOrderBrand, FieldCity, FieldReferralCount,
	}
}

// LookupField resolves a condition field name to its catalog entry. Names
// are accepted in snake_case (days_since_last_exam) or in the camelCase used
// by segment JSON (daysSinceLastExam).
func LookupField(name string) (Field, bool) {
	if _, ok := fields[Field(name)]; ok {
		return Field(name), true
	}
	snake := Field(toSnake(name))
	if _, ok := fields[snake]; ok {
		return snake, true
	}
	return "", false
}

// IsKnownField reports whether name resolves to a catalog field
func IsKnownField(name string) bool {
	_, ok := LookupField(name)
	return ok
}

func toSnake(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func daysBetween(from *time.Time, to time.Time) (any, bool) {
	if from == nil {
		return nil, false
	}
	return math.Floor(to.Sub(*from).Seconds() / secondsPerDay), true
}

func optString(s *string) (any, bool) {
	if s == nil {
		return nil, false
	}
	return *s, true
}

func ageAt(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}

// daysUntilBirthday counts calendar days from now's UTC date to the next
// birthday, 0 on the day itself
func daysUntilBirthday(dob, now time.Time) int {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	next := birthdayIn(dob, today.Year())
	if next.Before(today) {
		next = birthdayIn(dob, today.Year()+1)
	}
	return int(next.Sub(today).Hours() / 24)
}

// birthdayIn clamps the day to the month's length so Feb 29 falls on Feb 28
// in common years
func birthdayIn(dob time.Time, year int) time.Time {
	day := dob.Day()
	if last := time.Date(year, dob.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day(); day > last {
		day = last
	}
	return time.Date(year, dob.Month(), day, 0, 0, 0, 0, time.UTC)
}
