package auth

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ControlPlaneAudience is the audience expected on tokens presented to the
// orchestrator's control plane.
const ControlPlaneAudience = "maestro"

// Generator mints service tokens that a service presents to the control
// plane when registering, scaling or submitting workflows.
type Generator struct {
	privateKey *rsa.PrivateKey
	serviceID  string
	defaultTTL time.Duration
}

// GeneratorOption is a functional option for configuring the Generator.
type GeneratorOption func(*Generator) error

// WithPrivateKey sets the RSA private key from a PEM-encoded string.
func WithPrivateKey(pemStr string) GeneratorOption {
	return func(g *Generator) error {
		key, err := ParseRSAPrivateKey(pemStr)
		if err != nil {
			return fmt.Errorf("failed to parse private key: %w", err)
		}
		g.privateKey = key
		return nil
	}
}

// WithPrivateKeyRSA sets the RSA private key directly.
func WithPrivateKeyRSA(key *rsa.PrivateKey) GeneratorOption {
	return func(g *Generator) error {
		g.privateKey = key
		return nil
	}
}

// WithServiceID sets the service id used as subject and issuer.
func WithServiceID(serviceID string) GeneratorOption {
	return func(g *Generator) error {
		g.serviceID = serviceID
		return nil
	}
}

// WithDefaultTTL sets the default time-to-live for generated tokens.
func WithDefaultTTL(ttl time.Duration) GeneratorOption {
	return func(g *Generator) error {
		g.defaultTTL = ttl
		return nil
	}
}

// NewGenerator creates a new Generator with the given options.
func NewGenerator(opts ...GeneratorOption) (*Generator, error) {
	g := &Generator{
		defaultTTL: 5 * time.Minute,
	}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}

	if g.privateKey == nil {
		return nil, ErrPrivateKeyNotSet
	}

	if g.serviceID == "" {
		return nil, fmt.Errorf("service id is required")
	}

	return g, nil
}

// GenerateServiceToken mints a token for the control plane with the default TTL.
func (g *Generator) GenerateServiceToken() (string, error) {
	return g.GenerateServiceTokenWithTTL(g.defaultTTL)
}

// GenerateServiceTokenWithTTL mints a token for the control plane with a custom TTL.
func (g *Generator) GenerateServiceTokenWithTTL(ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": g.serviceID,
		"iss": g.serviceID,
		"aud": ControlPlaneAudience,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(g.privateKey)
}
