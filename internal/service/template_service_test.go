package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/repository/memory"
)

var testStore = StoreIdentity{Name: "Bright Eyes Optical", Phone: "(503) 555-0199"}

func TestTemplateService_Render(t *testing.T) {
	exam := time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)
	renewal := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		template string
		facts    *models.CustomerFacts
		want     string
	}{
		{
			name:     "all fields present",
			template: "Hi {{first_name}}, your last exam was {{last_exam_date}}. Call {{store_name}} at {{store_phone}}.",
			facts: &models.CustomerFacts{
				Customer:   models.Customer{FirstName: "Alice"},
				LastExamAt: &exam,
			},
			want: "Hi Alice, your last exam was March 4, 2024. Call Bright Eyes Optical at (503) 555-0199.",
		},
		{
			name:     "missing fact renders empty",
			template: "Your {{last_order_brand}} frames",
			facts:    &models.CustomerFacts{},
			want:     "Your  frames",
		},
		{
			name:     "whitespace inside braces",
			template: "Hi {{ first_name }}!",
			facts:    &models.CustomerFacts{Customer: models.Customer{FirstName: "Bob"}},
			want:     "Hi Bob!",
		},
		{
			name:     "multiple same placeholders",
			template: "Hi {{first_name}}, yes {{first_name}}, you!",
			facts:    &models.CustomerFacts{Customer: models.Customer{FirstName: "Bob"}},
			want:     "Hi Bob, yes Bob, you!",
		},
		{
			name:     "unknown placeholder left verbatim",
			template: "Hi {{nickname}}",
			facts:    &models.CustomerFacts{Customer: models.Customer{FirstName: "Bob"}},
			want:     "Hi {{nickname}}",
		},
		{
			name:     "full name and renewal month",
			template: "{{full_name}}, your {{insurance_provider}} plan renews in {{insurance_renewal_month}}",
			facts: &models.CustomerFacts{
				Customer:           models.Customer{FirstName: "Alice", LastName: "Nguyen"},
				InsuranceProvider:  stringPtr("VSP"),
				InsuranceRenewalAt: &renewal,
			},
			want: "Alice Nguyen, your VSP plan renews in September",
		},
		{
			name:     "no placeholders",
			template: "This is a plain message",
			facts:    &models.CustomerFacts{},
			want:     "This is a plain message",
		},
		{
			name:     "single braces are plain text",
			template: "Hi {first_name}",
			facts:    &models.CustomerFacts{Customer: models.Customer{FirstName: "Alice"}},
			want:     "Hi {first_name}",
		},
	}

	svc := NewTemplateService(memory.New().Customers(), testStore)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Render(tt.template, BuildVariables(tt.facts, testStore))
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTemplateService_Resolve(t *testing.T) {
	store := memory.New()
	id := store.AddCustomer(models.CustomerFacts{
		Customer: models.Customer{FirstName: "Dana", Phone: stringPtr("+15035550111")},
	})

	svc := NewTemplateService(store.Customers(), testStore)

	vars, err := svc.Resolve(context.Background(), id)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	for _, name := range TemplateVariables() {
		if _, ok := vars[name]; !ok {
			t.Errorf("Resolve() missing variable %q", name)
		}
	}
	if vars["first_name"] != "Dana" || vars["phone"] != "+15035550111" {
		t.Errorf("Resolve() = %v", vars)
	}

	_, err = svc.Resolve(context.Background(), 9999)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Resolve() unknown customer error = %v, want ErrNotFound", err)
	}
}

func TestTemplateService_ValidateTemplate(t *testing.T) {
	svc := NewTemplateService(memory.New().Customers(), testStore)

	tests := []struct {
		name     string
		template string
		wantErr  bool
	}{
		{name: "known variables", template: "Hi {{first_name}} from {{store_name}}"},
		{name: "plain text", template: "See you soon"},
		{name: "empty", template: "   ", wantErr: true},
		{name: "unknown variable", template: "Hi {{preferred_product}}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ValidateTemplate(tt.template)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateTemplate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var appErr *models.AppError
			if err != nil && (!errors.As(err, &appErr) || appErr.Code != "INVALID_INPUT") {
				t.Errorf("ValidateTemplate() error = %v, want INVALID_INPUT", err)
			}
		})
	}
}

func TestTemplateService_ExtractPlaceholders(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     []string
	}{
		{
			name:     "single placeholder",
			template: "Hi {{first_name}}",
			want:     []string{"first_name"},
		},
		{
			name:     "multiple placeholders",
			template: "Hi {{first_name}} from {{store_name}}",
			want:     []string{"first_name", "store_name"},
		},
		{
			name:     "duplicate placeholders",
			template: "Hi {{first_name}}, yes {{first_name}}",
			want:     []string{"first_name", "first_name"},
		},
		{
			name:     "no placeholders",
			template: "Plain text message",
			want:     []string{},
		},
		{
			name:     "empty template",
			template: "",
			want:     []string{},
		},
		{
			name:     "malformed placeholders",
			template: "Hi {{first_name and {{last_name}}",
			want:     []string{"last_name"},
		},
	}

	svc := NewTemplateService(memory.New().Customers(), testStore)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.ExtractPlaceholders(tt.template)

			if len(got) != len(tt.want) {
				t.Errorf("ExtractPlaceholders() returned %d placeholders, want %d", len(got), len(tt.want))
				return
			}

			for i, placeholder := range got {
				if placeholder != tt.want[i] {
					t.Errorf("ExtractPlaceholders()[%d] = %v, want %v", i, placeholder, tt.want[i])
				}
			}
		})
	}
}

func BenchmarkTemplateService_Render(b *testing.B) {
	svc := NewTemplateService(memory.New().Customers(), testStore)
	template := "Hi {{first_name}} {{last_name}}, your {{last_order_brand}} frames are ready at {{store_name}}! Call {{store_phone}}"
	vars := BuildVariables(&models.CustomerFacts{
		Customer:       models.Customer{FirstName: "Alice", LastName: "Nguyen"},
		LastOrderBrand: stringPtr("Ray-Ban"),
	}, testStore)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = svc.Render(template, vars)
	}
}

func stringPtr(s string) *string {
	return &s
}
