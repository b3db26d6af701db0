package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates the number has too few or too many digits
	ErrInvalidLength = errors.New("phone number must have between 8 and 15 digits")

	// ErrInvalidPrefix indicates a local number without a valid Sri Lankan mobile prefix
	ErrInvalidPrefix = errors.New("local numbers must start with 070, 071, 072, 074, 075, 076, 077 or 078")

	// ErrInvalidFormat indicates the number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates the number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

// localPrefixes are the Sri Lankan mobile prefixes accepted without a country code
var localPrefixes = []string{
	"070", // Mobitel
	"071", // Mobitel
	"072", // Hutch
	"074", // Dialog
	"075", // Airtel
	"076", // Dialog
	"077", // Dialog
	"078", // Hutch
}

const homeCountryCode = "94"

// phoneRegex matches digits only
var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator validates traveler phone numbers
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate normalizes a phone number to E.164 (+<country><number>).
// International numbers must carry a + or 00 prefix; local Sri Lankan mobile
// numbers (0771234567, 94771234567) are accepted and rewritten with +94.
func (v *PhoneValidator) Validate(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", ErrEmptyPhone
	}

	international := strings.HasPrefix(phone, "+") || strings.HasPrefix(phone, "00")
	digits := v.Sanitize(phone)
	if strings.HasPrefix(phone, "00") {
		digits = digits[2:]
	}

	if !phoneRegex.MatchString(digits) {
		return "", ErrInvalidFormat
	}

	if international {
		if len(digits) < 8 || len(digits) > 15 {
			return "", ErrInvalidLength
		}
		return "+" + digits, nil
	}

	// Country code without the plus
	if strings.HasPrefix(digits, homeCountryCode) && len(digits) == 11 {
		digits = "0" + digits[2:]
	}
	if len(digits) != 10 {
		return "", ErrInvalidLength
	}
	if !v.IsValidPrefix(digits) {
		return "", ErrInvalidPrefix
	}
	return "+" + homeCountryCode + digits[1:], nil
}

// Sanitize removes common separators. A leading + is dropped.
func (v *PhoneValidator) Sanitize(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "")
	return replacer.Replace(phone)
}

// IsValidPrefix checks a local number for a Sri Lankan mobile prefix
func (v *PhoneValidator) IsValidPrefix(phone string) bool {
	if len(phone) < 3 {
		return false
	}

	prefix := phone[:3]
	for _, validPrefix := range localPrefixes {
		if prefix == validPrefix {
			return true
		}
	}
	return false
}

// Format renders a number for display. Sri Lankan numbers become +94 7X XXX XXXX.
func (v *PhoneValidator) Format(phone string) (string, error) {
	normalized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}

	if strings.HasPrefix(normalized, "+"+homeCountryCode) && len(normalized) == 12 {
		return fmt.Sprintf("+%s %s %s %s",
			homeCountryCode,
			normalized[3:5],
			normalized[5:8],
			normalized[8:12],
		), nil
	}
	return normalized, nil
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
