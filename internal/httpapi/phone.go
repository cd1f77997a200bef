package httpapi

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// defaultRegion resolves numbers entered without a country code.
const defaultRegion = "IL"

// NormalizePhone validates a phone number and canonicalizes it to E.164.
// Numbers already carrying a + prefix are parsed as-is; bare local
// numbers assume the default region.
func NormalizePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("phone is required")
	}
	region := defaultRegion
	if strings.HasPrefix(trimmed, "+") {
		region = ""
	}
	num, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return "", fmt.Errorf("invalid phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
