package validator

import (
	"errors"
	"strings"
	"unicode"
)

var (
	ErrEmptyPhone    = errors.New("phone number cannot be empty")
	ErrInvalidFormat = errors.New("phone number can only contain digits")
	ErrInvalidLength = errors.New("phone number must be exactly 10 digits")
	ErrInvalidPrefix = errors.New("mobile number must start with 6, 7, 8 or 9")
)

const (
	countryCode    = "91"
	nationalDigits = 10
)

// PhoneValidator normalizes Indian mobile numbers to their 10 digit national form
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate accepts numbers such as 9876543210, +91 98765-43210 or
// 098765 43210 and returns the national number
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	national := normalize(phone)
	for _, r := range national {
		if !unicode.IsDigit(r) {
			return "", ErrInvalidFormat
		}
	}
	if len(national) != nationalDigits {
		return "", ErrInvalidLength
	}
	if !strings.ContainsRune("6789", rune(national[0])) {
		return "", ErrInvalidPrefix
	}
	return national, nil
}

// E164 returns the number with its country code, as SMS gateways expect
func (v *PhoneValidator) E164(phone string) (string, error) {
	national, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return "+" + countryCode + national, nil
}

// IsValid reports whether phone is a valid mobile number
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}

// normalize drops separators and a leading country or trunk prefix
func normalize(phone string) string {
	stripped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(" -().+", r) {
			return -1
		}
		return r
	}, phone)

	switch {
	case len(stripped) == nationalDigits+len(countryCode) && strings.HasPrefix(stripped, countryCode):
		return stripped[len(countryCode):]
	case len(stripped) == nationalDigits+1 && stripped[0] == '0':
		return stripped[1:]
	}
	return stripped
}
