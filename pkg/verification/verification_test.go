package verification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
)

func TestVerify_Matrix(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		allowed bool
	}{
		{"neither present", map[string]any{}, true},
		{"both true strings", map[string]any{"phone_number_verified": "true", "email_verified": "true"}, true},
		{"both true booleans", map[string]any{"phone_number_verified": true, "email_verified": true}, true},
		{"phone false boolean", map[string]any{"phone_number_verified": false, "email_verified": true}, false},
		{"numeric one", map[string]any{"phone_number_verified": 1, "email_verified": "true"}, false},
		{"phone false", map[string]any{"phone_number_verified": "false", "email_verified": "true"}, false},
		{"email false", map[string]any{"phone_number_verified": "true", "email_verified": "false"}, false},
		{"only phone", map[string]any{"phone_number_verified": "true"}, false},
		{"only email", map[string]any{"email_verified": "true"}, false},
		{"capitalised True", map[string]any{"phone_number_verified": "True", "email_verified": "true"}, false},
		{"empty string", map[string]any{"phone_number_verified": "", "email_verified": "true"}, false},
		{"unrelated claims only", map[string]any{"cognito:username": "alice"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromMap(tt.raw).Verify()
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, apperrors.ErrNotVerified))
			var appErr *apperrors.AppError
			if assert.True(t, errors.As(err, &appErr)) {
				assert.Equal(t, "NOT_VERIFIED_USER", appErr.Code)
				assert.Equal(t, 403, appErr.Status)
			}
		})
	}
}

func TestFromMap_KeepsAbsentDistinctFromFalse(t *testing.T) {
	c := FromMap(map[string]any{"email_verified": "false"})
	assert.Nil(t, c.PhoneNumberVerified)
	if assert.NotNil(t, c.EmailVerified) {
		assert.False(t, *c.EmailVerified)
	}
}

func TestGate_Check(t *testing.T) {
	legacy := Claims{}
	verified := FromMap(map[string]any{"phone_number_verified": "true", "email_verified": "true"})

	open := Gate{AllowLegacySessions: true}
	assert.NoError(t, open.Check(legacy))
	assert.NoError(t, open.Check(verified))

	strict := Gate{AllowLegacySessions: false}
	assert.True(t, errors.Is(strict.Check(legacy), apperrors.ErrNotVerified))
	assert.NoError(t, strict.Check(verified))
}
