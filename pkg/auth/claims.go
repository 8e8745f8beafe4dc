package auth

import (
	"fmt"
	"time"
)

// HeaderCallToken is the header the orchestrator uses to attach a call token
// to outbound action invocations.
const HeaderCallToken = "X-Call-Token"

// CallClaims are the claims carried on a call token minted by the
// orchestrator for one action invocation. The audience is the target service
// id and the action travels as a custom claim.
type CallClaims struct {
	Subject   string `json:"sub"`
	Issuer    string `json:"iss"`
	Audience  string `json:"aud"`
	Action    string `json:"action"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Valid checks if the claims are valid (not expired, has required fields).
func (c *CallClaims) Valid() error {
	now := time.Now().Unix()

	if c.ExpiresAt != 0 && now > c.ExpiresAt {
		return ErrTokenExpired
	}

	if c.Subject == "" {
		return ErrTokenInvalidSubject
	}

	if c.Issuer == "" {
		return ErrTokenInvalidIssuer
	}

	if c.Audience == "" {
		return ErrTokenInvalidAudience
	}

	return nil
}

// ValidateAudience checks if the token audience matches the expected audience.
func (c *CallClaims) ValidateAudience(expectedAudience string) error {
	if c.Audience != expectedAudience {
		return fmt.Errorf("%w: expected %s, got %s", ErrTokenAudienceMismatch, expectedAudience, c.Audience)
	}
	return nil
}

// ValidateIssuer checks if the token issuer is in the allowed list.
func (c *CallClaims) ValidateIssuer(allowedIssuers []string) error {
	for _, allowed := range allowedIssuers {
		if c.Issuer == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s not in allowed list", ErrTokenIssuerNotAllowed, c.Issuer)
}

// ValidateAction checks if the token was minted for the given action.
func (c *CallClaims) ValidateAction(action string) error {
	if c.Action != action {
		return fmt.Errorf("%w: expected %s, got %s", ErrTokenActionMismatch, action, c.Action)
	}
	return nil
}
