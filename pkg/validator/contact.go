package validator

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmptyName indicates the traveler name is missing
	ErrEmptyName = errors.New("name cannot be empty")

	// ErrNameTooLong indicates the traveler name exceeds the stored length
	ErrNameTooLong = errors.New("name cannot exceed 120 characters")

	// ErrInvalidEmail indicates an unparseable email address
	ErrInvalidEmail = errors.New("email address is not valid")
)

const maxNameLength = 120

// FieldError ties a validation failure to the input field it came from
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// TravelerContact is the normalized lead traveler contact
type TravelerContact struct {
	Name  string
	Email string
	Phone string
}

// ValidateEmail returns the address with a lower-cased domain.
// Display names ("Nimal <n@example.com>") are rejected.
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}

	at := strings.LastIndex(email, "@")
	domain := email[at+1:]
	if !strings.Contains(domain, ".") {
		return "", ErrInvalidEmail
	}
	return email[:at+1] + strings.ToLower(domain), nil
}

// ValidateTravelerContact checks and normalizes all contact fields.
// The first failure is returned as *FieldError.
func ValidateTravelerContact(name, email, phone string) (TravelerContact, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return TravelerContact{}, &FieldError{Field: "traveler_name", Err: ErrEmptyName}
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return TravelerContact{}, &FieldError{Field: "traveler_name", Err: ErrNameTooLong}
	}

	normalizedEmail, err := ValidateEmail(email)
	if err != nil {
		return TravelerContact{}, &FieldError{Field: "traveler_email", Err: err}
	}

	normalizedPhone, err := NewPhoneValidator().Validate(phone)
	if err != nil {
		return TravelerContact{}, &FieldError{Field: "traveler_phone", Err: err}
	}

	return TravelerContact{Name: name, Email: normalizedEmail, Phone: normalizedPhone}, nil
}
