// Package catalog holds the canonical drip sequences and default audiences
// for each campaign type.
package catalog

import "github.com/Raymond9734/drip-campaign-engine/internal/models"

// Campaign types with a canonical sequence
const (
	TypeExamRecall       models.CampaignType = "exam_recall"
	TypeRxExpiry         models.CampaignType = "rx_expiry"
	TypeInsuranceRenewal models.CampaignType = "insurance_renewal"
	TypeBirthday         models.CampaignType = "birthday"
	TypeWinBack          models.CampaignType = "win_back"
	TypePostPurchase     models.CampaignType = "post_purchase"
	TypeWelcome          models.CampaignType = "welcome"
	TypeReferralThanks   models.CampaignType = "referral_thanks"
)

// Entry is the canonical configuration of one campaign type
type Entry struct {
	Type             models.CampaignType
	Steps            models.StepList
	Segment          models.SegmentDefinition
	StopOnConversion bool
	CooldownDays     int
	EnrollmentMode   models.EnrollmentMode
}

var (
	sms   = models.ChannelSMS
	email = models.ChannelEmail
)

func intp(v int) *int { return &v }

func cond(field string, op models.Operator, value any, value2 ...any) models.Condition {
	c := models.Condition{Field: field, Operator: op, Value: value}
	if len(value2) > 0 {
		c.Value2 = value2[0]
	}
	return c
}

var entries = map[models.CampaignType]Entry{
	TypeExamRecall: {
		Type: TypeExamRecall,
		Steps: models.StepList{
			{StepIndex: 0, DelayDays: 0, Channel: models.ChannelSMS,
				TemplateBody: "Hi {{first_name}}, it's been about a year since your last eye exam on {{last_exam_date}}. Book your annual exam at {{store_name}}: {{store_phone}}. Reply STOP to opt out."},
			{StepIndex: 1, DelayDays: 7, Channel: models.ChannelEmail,
				TemplateSubject: "{{first_name}}, time for your annual eye exam",
				TemplateBody:    "Hi {{first_name}},\n\nYour last comprehensive exam with us was on {{last_exam_date}}. Yearly exams catch changes early and keep your prescription current.\n\nCall {{store_phone}} to book a time that works for you.\n\n{{store_name}}"},
			{StepIndex: 2, DelayDays: 14, Channel: models.ChannelSMS,
				TemplateBody: "{{first_name}}, a friendly last reminder from {{store_name}}: your annual eye exam is overdue. Call {{store_phone}} to schedule. Reply STOP to opt out."},
		},
		Segment: models.SegmentDefinition{
			Logic:                        models.LogicAnd,
			Conditions:                   []models.Condition{cond("days_since_last_exam", models.OpBetween, 330.0, 395.0)},
			ExcludeOptedOut:              true,
			ExcludeRecentlyContactedDays: intp(14),
		},
		StopOnConversion: true,
		CooldownDays:     300,
		EnrollmentMode:   models.EnrollmentAuto,
	},
	TypeRxExpiry: {
		Type: TypeRxExpiry,
		Steps: models.StepList{
			{StepIndex: 0, DelayDays: 0, Channel: models.ChannelEmail,
				TemplateSubject: "Your prescription expires {{rx_expiry_date}}",
				TemplateBody:    "Hi {{first_name}},\n\nYour eyeglass prescription expires on {{rx_expiry_date}}. Once it lapses we can't fill new lenses, so now is a good time to book an exam.\n\nCall {{store_phone}}.\n\n{{store_name}}"},
			{StepIndex: 1, DelayDays: 10, Channel: models.ChannelSMS,
				TemplateBody: "Hi {{first_name}}, your prescription expires {{rx_expiry_date}}. Book an exam with {{store_name}} at {{store_phone}}. Reply STOP to opt out."},
		},
		Segment: models.SegmentDefinition{
			Logic: models.LogicAnd,
			Conditions: []models.Condition{
				cond("has_active_prescription", models.OpEq, true),
				cond("days_until_rx_expiry", models.OpBetween, 0.0, 45.0),
			},
			ExcludeOptedOut:              true,
			ExcludeRecentlyContactedDays: intp(7),
		},
		StopOnConversion: true,
		CooldownDays:     180,
		EnrollmentMode:   models.EnrollmentAuto,
	},
	TypeInsuranceRenewal: {
		Type: TypeInsuranceRenewal,
		Steps: models.StepList{
			{StepIndex: 0, DelayDays: 0, Channel: models.ChannelEmail,
				TemplateSubject: "Use your {{insurance_provider}} benefits before {{insurance_renewal_month}}",
				TemplateBody:    "Hi {{first_name}},\n\nYour {{insurance_provider}} vision benefits renew in {{insurance_renewal_month}}. Unused frame and lens allowances don't roll over, so stop by before then.\n\n{{store_name}} · {{store_phone}}"},
			{StepIndex: 1, DelayDays: 14, Channel: models.ChannelSMS,
				TemplateBody: "{{first_name}}, your {{insurance_provider}} benefits reset in {{insurance_renewal_month}}. Visit {{store_name}} to use them. Reply STOP to opt out."},
		},
		Segment: models.SegmentDefinition{
			Logic:           models.LogicAnd,
			Conditions:      []models.Condition{cond("has_active_insurance", models.OpEq, true)},
			ExcludeOptedOut: true,
		},
		StopOnConversion: true,
		CooldownDays:     330,
		EnrollmentMode:   models.EnrollmentAuto,
	},
	TypeBirthday: {
		Type: TypeBirthday,
		Steps: models.StepList{
			{StepIndex: 0, DelayDays: 0, Channel: models.ChannelSMS,
				TemplateBody: "Happy early birthday, {{first_name}}! Enjoy 20% off a new pair of frames at {{store_name}} all month. Reply STOP to opt out."},
		},
		Segment: models.SegmentDefinition{
			Logic:           models.LogicAnd,
			Conditions:      []models.Condition{cond("days_until_birthday", models.OpBetween, 0.0, 7.0)},
			ExcludeOptedOut: true,
			RequiredChannel: &sms,
		},
		StopOnConversion: false,
		CooldownDays:     330,
		EnrollmentMode:   models.EnrollmentAuto,
	},
	TypeWinBack: {
		Type: TypeWinBack,
		Steps: models.StepList{
			{StepIndex: 0, DelayDays: 0, Channel: models.ChannelEmail,
				TemplateSubject: "We miss you, {{first_name}}",
				TemplateBody:    "Hi {{first_name}},\n\nIt's been a while since you picked up your {{last_order_brand}} {{last_order_model}} on {{last_order_date}}. Come see what's new at {{store_name}}.\n\n{{store_phone}}"},
			{StepIndex: 1, DelayDays: 14, Channel: models.ChannelSMS,
				TemplateBody: "{{first_name}}, new frames just arrived at {{store_name}}. Stop by or call {{store_phone}}. Reply STOP to opt out."},
			{StepIndex: 2, DelayDays: 30, Channel: models.ChannelEmail,
				TemplateSubject: "A little something to welcome you back",
				TemplateBody:    "Hi {{first_name}},\n\nHere's $50 off your next complete pair, good for 30 days. Just mention this email at {{store_name}}.\n\n{{store_phone}}"},
		},
		Segment: models.SegmentDefinition{
			Logic: models.LogicAnd,
			Conditions: []models.Condition{
				cond("days_since_last_order", models.OpGte, 540.0),
				cond("lifetime_order_count", models.OpGte, 1.0),
			},
			ExcludeOptedOut:              true,
			ExcludeRecentlyContactedDays: intp(30),
		},
		StopOnConversion: true,
		CooldownDays:     365,
		EnrollmentMode:   models.EnrollmentAuto,
	},
	TypePostPurchase: {
		Type: TypePostPurchase,
		Steps: models.StepList{
			{StepIndex: 0, DelayDays: 3, Channel: models.ChannelSMS,
				TemplateBody: "Hi {{first_name}}, how are your new {{last_order_brand}} glasses? If anything feels off, {{store_name}} adjusts for free: {{store_phone}}."},
			{StepIndex: 1, DelayDays: 27, Channel: models.ChannelEmail,
				TemplateSubject: "Share the love, {{first_name}}",
				TemplateBody:    "Hi {{first_name}},\n\nEnjoying your {{last_order_brand}} {{last_order_model}}? Send friends your referral code {{referral_code}} and you'll both get $25 off.\n\n{{store_name}}"},
		},
		Segment: models.SegmentDefinition{
			Logic:           models.LogicAnd,
			Conditions:      []models.Condition{cond("days_since_last_order", models.OpBetween, 0.0, 7.0)},
			ExcludeOptedOut: true,
		},
		StopOnConversion: false,
		CooldownDays:     60,
		EnrollmentMode:   models.EnrollmentAuto,
	},
	TypeWelcome: {
		Type: TypeWelcome,
		Steps: models.StepList{
			{StepIndex: 0, DelayDays: 0, Channel: models.ChannelEmail,
				TemplateSubject: "Welcome to {{store_name}}",
				TemplateBody:    "Hi {{first_name}},\n\nThanks for choosing {{store_name}}. Questions about your eyewear or insurance? Call us any time at {{store_phone}}."},
			{StepIndex: 1, DelayDays: 5, Channel: models.ChannelSMS,
				TemplateBody: "Hi {{first_name}}, {{store_name}} here. Save this number for appointment reminders: {{store_phone}}. Reply STOP to opt out."},
		},
		Segment: models.SegmentDefinition{
			Logic:           models.LogicAnd,
			Conditions:      []models.Condition{cond("days_since_created", models.OpLte, 7.0)},
			ExcludeOptedOut: true,
		},
		StopOnConversion: false,
		CooldownDays:     0,
		EnrollmentMode:   models.EnrollmentAuto,
	},
	TypeReferralThanks: {
		Type: TypeReferralThanks,
		Steps: models.StepList{
			{StepIndex: 0, DelayDays: 0, Channel: models.ChannelSMS,
				TemplateBody: "Thank you for the referral, {{first_name}}! Your code {{referral_code}} just earned you $25 at {{store_name}}."},
		},
		Segment: models.SegmentDefinition{
			Logic:           models.LogicAnd,
			Conditions:      []models.Condition{cond("referral_count", models.OpGte, 1.0)},
			ExcludeOptedOut: true,
			RequiredChannel: &sms,
		},
		StopOnConversion: false,
		CooldownDays:     90,
		EnrollmentMode:   models.EnrollmentManual,
	},
}

var fallback = Entry{
	Steps: models.StepList{
		{StepIndex: 0, DelayDays: 0, Channel: models.ChannelEmail,
			TemplateSubject: "News from {{store_name}}",
			TemplateBody:    "Hi {{first_name}},\n\nWe'd love to see you again at {{store_name}}. Call {{store_phone}} to book a visit."},
	},
	Segment: models.SegmentDefinition{
		Logic:           models.LogicAnd,
		ExcludeOptedOut: true,
		RequiredChannel: &email,
	},
	StopOnConversion: true,
	CooldownDays:     0,
	EnrollmentMode:   models.EnrollmentManual,
}

// Lookup returns the catalog entry for a campaign type. It never fails: an
// unrecognized type gets generic one-step fallback content.
func Lookup(t models.CampaignType) Entry {
	if e, ok := entries[t]; ok {
		return e
	}
	e := fallback
	e.Type = t
	return e
}

// Known reports whether t has a canonical entry
func Known(t models.CampaignType) bool {
	_, ok := entries[t]
	return ok
}

// Types lists the campaign types with a canonical entry
func Types() []models.CampaignType {
	return []models.CampaignType{
		TypeExamRecall, TypeRxExpiry, TypeInsuranceRenewal, TypeBirthday,
		TypeWinBack, TypePostPurchase, TypeWelcome, TypeReferralThanks,
	}
}

// StepsFor returns the campaign's override steps, or the catalog's
func StepsFor(c *models.Campaign) models.StepList {
	if len(c.Steps) > 0 {
		return c.Steps.Normalize()
	}
	return Lookup(c.Type).Steps
}

// SegmentFor returns the campaign's override segment, or the catalog's
func SegmentFor(c *models.Campaign) *models.SegmentDefinition {
	if c.Segment != nil {
		return c.Segment
	}
	seg := Lookup(c.Type).Segment
	return &seg
}

// ApplyDefaults fills unset campaign-level settings from the catalog entry
func ApplyDefaults(c *models.Campaign) {
	e := Lookup(c.Type)
	if c.EnrollmentMode == "" {
		c.EnrollmentMode = e.EnrollmentMode
	}
	if c.Status == "" {
		c.Status = models.CampaignStatusDraft
	}
}
