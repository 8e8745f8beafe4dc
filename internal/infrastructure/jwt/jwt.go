package jwt

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/apascualco/maestro/internal/domain"
	"github.com/apascualco/maestro/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
)

// Audience all inbound service tokens must carry.
const ControlPlaneAudience = "maestro"

// Service validates service tokens presented to the control plane and mints
// short-lived call tokens attached to outbound action invocations.
type Service struct {
	publicKey  *rsa.PublicKey
	privateKey *rsa.PrivateKey
	issuer     string
	callTTL    time.Duration
}

func NewService(cfg *config.Config) (*Service, error) {
	s := &Service{
		issuer:  cfg.JWTIssuer,
		callTTL: cfg.JWTCallTTL,
	}

	if cfg.JWTPublicKey != "" {
		pubKey, err := parseRSAPublicKey(cfg.JWTPublicKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		s.publicKey = pubKey
	}

	if cfg.JWTPrivateKey != "" {
		privKey, err := parseRSAPrivateKey(cfg.JWTPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		s.privateKey = privKey

		if s.publicKey == nil {
			s.publicKey = &privKey.PublicKey
		}
	}

	return s, nil
}

func NewServiceWithKeys(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, issuer string, callTTL time.Duration) *Service {
	return &Service{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		callTTL:    callTTL,
	}
}

// CanSign reports whether a private key is configured for minting tokens.
func (s *Service) CanSign() bool {
	return s != nil && s.privateKey != nil
}

// CanValidate reports whether a public key is configured for checking tokens.
func (s *Service) CanValidate() bool {
	return s != nil && s.publicKey != nil
}

// ValidateServiceToken checks an inbound control-plane token and returns the
// calling service's id (the subject claim).
func (s *Service) ValidateServiceToken(tokenString string) (string, error) {
	if s.publicKey == nil {
		return "", fmt.Errorf("public key not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", domain.ErrTokenMalformed, token.Header["alg"])
		}
		return s.publicKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", domain.ErrTokenExpired
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return "", domain.ErrTokenInvalidSignature
		}
		return "", fmt.Errorf("%w: %v", domain.ErrTokenMalformed, err)
	}

	if !token.Valid {
		return "", domain.ErrTokenMalformed
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", domain.ErrTokenMalformed
	}

	aud := getStringClaim(mapClaims, "aud")
	if aud != ControlPlaneAudience {
		return "", fmt.Errorf("%w: invalid audience %q", domain.ErrTokenAudienceMismatch, aud)
	}

	sub := getStringClaim(mapClaims, "sub")
	if sub == "" {
		return "", fmt.Errorf("%w: missing subject claim", domain.ErrTokenMalformed)
	}

	return sub, nil
}

// MintCallToken signs a token for one outbound action invocation: the target
// service id is the audience and the action travels as a custom claim.
func (s *Service) MintCallToken(targetServiceID, action string) (string, error) {
	if s.privateKey == nil {
		return "", fmt.Errorf("private key not configured")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    s.issuer,
		"iss":    s.issuer,
		"aud":    targetServiceID,
		"action": action,
		"iat":    now.Unix(),
		"exp":    now.Add(s.callTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(s.privateKey)
}

// ParseCallToken validates a call token against the configured public key and
// returns its claims. Used by tests and by operators debugging token flow;
// downstream services use pkg/auth instead.
func (s *Service) ParseCallToken(tokenString string) (*domain.CallClaims, error) {
	if s.publicKey == nil {
		return nil, fmt.Errorf("public key not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", domain.ErrTokenMalformed, token.Header["alg"])
		}
		return s.publicKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, domain.ErrTokenInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenMalformed, err)
	}

	if !token.Valid {
		return nil, domain.ErrTokenMalformed
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, domain.ErrTokenMalformed
	}

	claims := &domain.CallClaims{
		Subject:  getStringClaim(mapClaims, "sub"),
		Issuer:   getStringClaim(mapClaims, "iss"),
		Audience: getStringClaim(mapClaims, "aud"),
		Action:   getStringClaim(mapClaims, "action"),
	}
	if iat, ok := mapClaims["iat"].(float64); ok {
		claims.IssuedAt = int64(iat)
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = int64(exp)
	}

	if err := claims.Valid(); err != nil {
		return nil, err
	}

	return claims, nil
}

func parseRSAPublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(normalizePEM(pemStr)))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}

	return rsaPub, nil
}

func parseRSAPrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(normalizePEM(pemStr)))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA private key")
		}
		return rsaKey, nil
	}

	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func getStringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

var pemHeaderRe = regexp.MustCompile(`(?i)(-----BEGIN [A-Z ]+-----)`)
var pemFooterRe = regexp.MustCompile(`(?i)(-----END [A-Z ]+-----)`)

// normalizePEM repairs keys passed through environment variables where the
// newlines collapsed to spaces.
func normalizePEM(s string) string {
	if strings.Contains(s, "\n") {
		return s
	}
	s = pemHeaderRe.ReplaceAllString(s, "$1\n")
	s = pemFooterRe.ReplaceAllString(s, "\n$1")
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, "\n", 2)
	if len(parts) != 2 {
		return s
	}
	header := parts[0]
	rest := parts[1]
	parts = strings.SplitN(rest, "\n", 2)
	if len(parts) != 2 {
		return s
	}
	body := parts[0]
	footer := parts[1]
	body = strings.ReplaceAll(body, " ", "\n")
	return header + "\n" + body + "\n" + footer + "\n"
}
