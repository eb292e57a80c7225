package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	v := NewPhoneValidator()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"plain", "9876543210", "9876543210", nil},
		{"spaced", "98765 43210", "9876543210", nil},
		{"country code", "+91 98765-43210", "9876543210", nil},
		{"country code without plus", "919876543210", "9876543210", nil},
		{"trunk prefix", "09876543210", "9876543210", nil},
		{"parenthesized", "(987) 654.3210", "9876543210", nil},
		{"empty", "", "", ErrEmptyPhone},
		{"blank", "   ", "", ErrEmptyPhone},
		{"too short", "98765", "", ErrInvalidLength},
		{"too long", "98765432101", "", ErrInvalidLength},
		{"landline prefix", "0123456789", "", ErrInvalidPrefix},
		{"starts with 5", "5876543210", "", ErrInvalidPrefix},
		{"letters", "98765a3210", "", ErrInvalidFormat},
		{"symbols", "98765 4321!", "", ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestE164(t *testing.T) {
	v := NewPhoneValidator()

	got, err := v.E164("098765 43210")
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", got)

	_, err = v.E164("12345")
	assert.Error(t, err)

	assert.True(t, v.IsValid("+91 7000000000"))
	assert.False(t, v.IsValid("1234567890"))
}
