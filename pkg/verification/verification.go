// Package verification implements the phone and email verification gate
// applied to sensitive operations.
package verification

import (
	apperrors "github.com/horike37/serverless-application/pkg/errors"
)

// Claim names as issued by the identity provider.
const (
	ClaimPhoneNumberVerified = "phone_number_verified"
	ClaimEmailVerified       = "email_verified"
)

// Claims holds the two verification flags of a session. A nil field means
// the claim was absent from the token, which is not the same as false.
type Claims struct {
	PhoneNumberVerified *bool
	EmailVerified       *bool
}

// FromMap builds Claims from decoded token claims. Only the string "true"
// or the boolean true count as verified; any other present value is false.
func FromMap(raw map[string]any) Claims {
	return Claims{
		PhoneNumberVerified: flag(raw, ClaimPhoneNumberVerified),
		EmailVerified:       flag(raw, ClaimEmailVerified),
	}
}

func flag(raw map[string]any, key string) *bool {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	var b bool
	switch t := v.(type) {
	case bool:
		b = t
	case string:
		b = t == "true"
	}
	return &b
}

// Absent reports whether neither claim is present.
func (c Claims) Absent() bool {
	return c.PhoneNumberVerified == nil && c.EmailVerified == nil
}

// Verify passes when neither claim is present (sessions issued before the
// claims existed) or when both are present and true. Anything else fails
// with NOT_VERIFIED_USER.
func (c Claims) Verify() error {
	if c.Absent() {
		return nil
	}
	if c.PhoneNumberVerified != nil && *c.PhoneNumberVerified &&
		c.EmailVerified != nil && *c.EmailVerified {
		return nil
	}
	return apperrors.NotVerified()
}

// Gate applies Verify with a switch for the claim-less carve-out.
type Gate struct {
	AllowLegacySessions bool
}

// Check fails claim-less sessions when the carve-out is off and otherwise
// defers to Claims.Verify.
func (g Gate) Check(c Claims) error {
	if c.Absent() && !g.AllowLegacySessions {
		return apperrors.NotVerified()
	}
	return c.Verify()
}
