package domain

import (
	"fmt"
	"time"
)

// CallClaims are attached by the orchestrator to every outbound action
// invocation so downstream instances can verify who is calling and for what.
type CallClaims struct {
	Subject   string `json:"sub"`
	Issuer    string `json:"iss"`
	Audience  string `json:"aud"`
	Action    string `json:"action"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

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

func (c *CallClaims) ValidateAudience(expectedAudience string) error {
	if c.Audience != expectedAudience {
		return fmt.Errorf("%w: expected %s, got %s", ErrTokenAudienceMismatch, expectedAudience, c.Audience)
	}
	return nil
}

var (
	ErrTokenExpired          = fmt.Errorf("token has expired")
	ErrTokenInvalidSubject   = fmt.Errorf("token has invalid subject")
	ErrTokenInvalidIssuer    = fmt.Errorf("token has invalid issuer")
	ErrTokenInvalidAudience  = fmt.Errorf("token has invalid audience")
	ErrTokenAudienceMismatch = fmt.Errorf("token audience mismatch")
	ErrTokenInvalidSignature = fmt.Errorf("token has invalid signature")
	ErrTokenMalformed        = fmt.Errorf("token is malformed")
)
