package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

var validate = validator.New()

// validateStruct runs the struct tags and maps the first failure to an
// INVALID_INPUT error naming the offending field
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return models.ErrInvalidInput(err.Error())
	}

	fe := verrs[0]
	field := toSnake(fe.Field())
	switch fe.Tag() {
	case "required":
		return models.ErrInvalidInput(fmt.Sprintf("%s is required", field))
	case "oneof":
		return models.ErrInvalidInput(fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
	case "min", "gte":
		return models.ErrInvalidInput(fmt.Sprintf("%s must be at least %s", field, fe.Param()))
	case "max", "lte":
		return models.ErrInvalidInput(fmt.Sprintf("%s must be at most %s", field, fe.Param()))
	default:
		return models.ErrInvalidInput(fmt.Sprintf("%s is invalid (%s)", field, fe.Tag()))
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateCampaignRequest represents a request to create a campaign. Unset
// settings are filled from the campaign type's catalog entry.
type CreateCampaignRequest struct {
	Name             string                    `json:"name" validate:"required,max=200"`
	Type             string                    `json:"type" validate:"required,max=64"`
	EnrollmentMode   string                    `json:"enrollment_mode,omitempty" validate:"omitempty,oneof=auto manual"`
	StopOnConversion *bool                     `json:"stop_on_conversion,omitempty"`
	CooldownDays     *int                      `json:"cooldown_days,omitempty" validate:"omitempty,gte=0,lte=3650"`
	Segment          *models.SegmentDefinition `json:"segment,omitempty"`
	Steps            models.StepList           `json:"steps,omitempty" validate:"omitempty,max=20"`
}

// Validate performs validation on the create campaign request
func (r *CreateCampaignRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if len(r.Steps) > 0 {
		return models.ValidateSteps(r.Steps)
	}
	return nil
}

// PreviewRequest represents a request to preview one step for one customer
type PreviewRequest struct {
	CustomerID       int64   `json:"customer_id" validate:"required,gt=0"`
	StepIndex        int     `json:"step_index" validate:"gte=0"`
	OverrideTemplate *string `json:"override_template,omitempty"`
}

// Validate performs validation on the preview request
func (r *PreviewRequest) Validate() error {
	return validateStruct(r)
}

// PreviewResult represents a rendered step
type PreviewResult struct {
	Channel         models.Channel   `json:"channel"`
	Subject         *string          `json:"subject,omitempty"`
	RenderedMessage string           `json:"rendered_message"`
	UsedTemplate    string           `json:"used_template"`
	Customer        *CustomerPreview `json:"customer"`
}

// CustomerPreview contains minimal customer info for preview
type CustomerPreview struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Phone     *string `json:"phone,omitempty"`
	Email     *string `json:"email,omitempty"`
}

// EnrollRequest lists customers to enroll into a manual campaign
type EnrollRequest struct {
	CustomerIDs []int64 `json:"customer_ids" validate:"required,min=1,max=1000,dive,gt=0"`
}

// Validate performs validation on the enroll request
func (r *EnrollRequest) Validate() error {
	return validateStruct(r)
}

// EnrollResult reports how many new enrollments were created
type EnrollResult struct {
	CampaignID int64 `json:"campaign_id"`
	Requested  int   `json:"requested"`
	Enrolled   int   `json:"enrolled"`
}

// SegmentPreviewRequest asks for the size and a sample of a segment
type SegmentPreviewRequest struct {
	Segment    *models.SegmentDefinition `json:"segment" validate:"required"`
	SampleSize int                       `json:"sample_size,omitempty" validate:"omitempty,gte=1,lte=100"`
}

// Validate performs validation on the segment preview request
func (r *SegmentPreviewRequest) Validate() error {
	return validateStruct(r)
}

// OptOutRequest records a staff or import opt-out
type OptOutRequest struct {
	CustomerID int64  `json:"customer_id" validate:"required,gt=0"`
	Source     string `json:"source" validate:"required,oneof=sms_stop email_unsubscribe staff import"`
	Reason     string `json:"reason,omitempty" validate:"max=500"`
}

// Validate performs validation on the opt-out request
func (r *OptOutRequest) Validate() error {
	return validateStruct(r)
}

// RunPassResult acknowledges a queued processing pass
type RunPassResult struct {
	CampaignID int64  `json:"campaign_id"`
	Status     string `json:"status"`
}

// CampaignListResult represents a list of campaigns in one status
type CampaignListResult struct {
	Data   []*models.Campaign    `json:"data"`
	Status models.CampaignStatus `json:"status"`
}

// MessageListResult represents paginated message list results
type MessageListResult struct {
	Data       []*models.Message       `json:"data"`
	Pagination models.PaginationResult `json:"pagination"`
}
