package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/repository"
)

// VariableMap holds the substitution values for one customer
type VariableMap map[string]string

// Template variables. Every one is always present in a resolved map.
var templateVariables = []string{
	"first_name",
	"last_name",
	"full_name",
	"email",
	"phone",
	"store_name",
	"store_phone",
	"last_order_brand",
	"last_order_model",
	"last_order_date",
	"rx_expiry_date",
	"insurance_provider",
	"insurance_renewal_month",
	"last_exam_date",
	"referral_code",
}

const templateDateLayout = "January 2, 2006"

// StoreIdentity is the static business identity available to every template
type StoreIdentity struct {
	Name  string
	Phone string
}

// TemplateService resolves customer variables and renders {{name}} templates
type TemplateService interface {
	Resolve(ctx context.Context, customerID int64) (VariableMap, error)
	Render(template string, vars VariableMap) string
	ValidateTemplate(template string) error
	ExtractPlaceholders(template string) []string
}

type templateService struct {
	customerRepo       repository.CustomerRepository
	store              StoreIdentity
	placeholderPattern *regexp.Regexp
}

// NewTemplateService creates a new template service
func NewTemplateService(customerRepo repository.CustomerRepository, store StoreIdentity) TemplateService {
	return &templateService{
		customerRepo:       customerRepo,
		store:              store,
		placeholderPattern: regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`),
	}
}

// Resolve looks up the customer's facts and maps them to template variables.
// Missing facts resolve to an empty string.
func (s *templateService) Resolve(ctx context.Context, customerID int64) (VariableMap, error) {
	facts, err := s.customerRepo.GetFacts(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return BuildVariables(facts, s.store), nil
}

// BuildVariables maps customer facts to the full variable set
func BuildVariables(f *models.CustomerFacts, store StoreIdentity) VariableMap {
	vars := make(VariableMap, len(templateVariables))
	for _, name := range templateVariables {
		vars[name] = ""
	}

	vars["store_name"] = store.Name
	vars["store_phone"] = store.Phone
	if f == nil {
		return vars
	}

	vars["first_name"] = f.FirstName
	vars["last_name"] = f.LastName
	vars["full_name"] = f.FullName()
	vars["email"] = f.EmailAddress()
	vars["phone"] = f.PhoneNumber()
	vars["last_order_brand"] = deref(f.LastOrderBrand)
	vars["last_order_model"] = deref(f.LastOrderModel)
	vars["last_order_date"] = formatDate(f.LastOrderAt)
	vars["rx_expiry_date"] = formatDate(f.RxExpiresAt)
	vars["insurance_provider"] = deref(f.InsuranceProvider)
	if f.InsuranceRenewalAt != nil {
		vars["insurance_renewal_month"] = f.InsuranceRenewalAt.Month().String()
	}
	vars["last_exam_date"] = formatDate(f.LastExamAt)
	vars["referral_code"] = deref(f.ReferralCode)

	return vars
}

// Render replaces {{name}} tokens with their values. Unrecognized tokens are
// left verbatim so authoring mistakes stay visible.
func (s *templateService) Render(template string, vars VariableMap) string {
	return s.placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := s.placeholderPattern.FindStringSubmatch(match)[1]
		if value, exists := vars[name]; exists {
			return value
		}
		return match
	})
}

// ValidateTemplate checks the template is non-empty and uses only known variables
func (s *templateService) ValidateTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return models.ErrInvalidInput("template cannot be empty")
	}

	known := make(map[string]bool, len(templateVariables))
	for _, name := range templateVariables {
		known[name] = true
	}

	var unknown []string
	for _, placeholder := range s.ExtractPlaceholders(template) {
		if !known[placeholder] {
			unknown = append(unknown, placeholder)
		}
	}

	if len(unknown) > 0 {
		return models.ErrInvalidInput(
			fmt.Sprintf("unknown placeholders: %s. Valid placeholders are: %s",
				strings.Join(unknown, ", "), strings.Join(TemplateVariables(), ", ")),
		)
	}

	return nil
}

// ExtractPlaceholders returns all placeholders found in template
func (s *templateService) ExtractPlaceholders(template string) []string {
	matches := s.placeholderPattern.FindAllStringSubmatch(template, -1)
	placeholders := make([]string, 0, len(matches))

	for _, match := range matches {
		if len(match) > 1 {
			placeholders = append(placeholders, match[1])
		}
	}

	return placeholders
}

// TemplateVariables lists the declared variable names in sorted order
func TemplateVariables() []string {
	out := make([]string, len(templateVariables))
	copy(out, templateVariables)
	sort.Strings(out)
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(templateDateLayout)
}
