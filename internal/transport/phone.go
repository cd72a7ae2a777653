package transport

import (
	"fmt"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone parses a phone number in the given default region and
// returns it in E.164 form
func NormalizePhone(raw, region string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("phone number cannot be empty")
	}
	if region == "" {
		region = "US"
	}

	parsed, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("invalid phone number: %s", raw)
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
