package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/apascualco/maestro/internal/domain"
	"github.com/apascualco/maestro/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
)

func generateTestKeys() (string, string) {
	privateKey, _ := rsa.GenerateKey(rand.Reader, 2048)

	privBytes := x509.MarshalPKCS1PrivateKey(privateKey)
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: privBytes,
	})

	pubBytes, _ := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})

	return string(privPEM), string(pubPEM)
}

func createTestService(t *testing.T) *Service {
	t.Helper()
	privPEM, pubPEM := generateTestKeys()

	cfg := &config.Config{
		JWTPrivateKey: privPEM,
		JWTPublicKey:  pubPEM,
		JWTIssuer:     "maestro",
		JWTCallTTL:    5 * time.Minute,
	}

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

func signWith(privateKey *rsa.PrivateKey, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tokenString, _ := token.SignedString(privateKey)
	return tokenString
}

func TestNewService(t *testing.T) {
	privPEM, pubPEM := generateTestKeys()

	t.Run("with valid keys", func(t *testing.T) {
		cfg := &config.Config{
			JWTPrivateKey: privPEM,
			JWTPublicKey:  pubPEM,
			JWTIssuer:     "maestro",
			JWTCallTTL:    5 * time.Minute,
		}

		svc, err := NewService(cfg)
		if err != nil {
			t.Fatalf("NewService() error = %v", err)
		}
		if svc.privateKey == nil {
			t.Error("privateKey should not be nil")
		}
		if svc.publicKey == nil {
			t.Error("publicKey should not be nil")
		}
		if !svc.CanSign() {
			t.Error("CanSign() should be true with a private key")
		}
	})

	t.Run("with only private key derives public key", func(t *testing.T) {
		cfg := &config.Config{
			JWTPrivateKey: privPEM,
			JWTIssuer:     "maestro",
			JWTCallTTL:    5 * time.Minute,
		}

		svc, err := NewService(cfg)
		if err != nil {
			t.Fatalf("NewService() error = %v", err)
		}
		if svc.publicKey == nil {
			t.Error("publicKey should be derived from privateKey")
		}
	})

	t.Run("with invalid private key", func(t *testing.T) {
		cfg := &config.Config{
			JWTPrivateKey: "invalid-key",
			JWTIssuer:     "maestro",
		}

		_, err := NewService(cfg)
		if err == nil {
			t.Error("NewService() should return error for invalid private key")
		}
	})
}

func TestValidateServiceToken(t *testing.T) {
	privateKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	svc := NewServiceWithKeys(privateKey, &privateKey.PublicKey, "maestro", 5*time.Minute)

	t.Run("valid token", func(t *testing.T) {
		now := time.Now()
		token := signWith(privateKey, jwt.MapClaims{
			"sub": "payments",
			"aud": ControlPlaneAudience,
			"iat": now.Unix(),
			"exp": now.Add(time.Minute).Unix(),
		})

		sub, err := svc.ValidateServiceToken(token)
		if err != nil {
			t.Fatalf("ValidateServiceToken() error = %v", err)
		}
		if sub != "payments" {
			t.Errorf("subject = %q, want payments", sub)
		}
	})

	t.Run("wrong audience", func(t *testing.T) {
		now := time.Now()
		token := signWith(privateKey, jwt.MapClaims{
			"sub": "payments",
			"aud": "someone-else",
			"iat": now.Unix(),
			"exp": now.Add(time.Minute).Unix(),
		})

		_, err := svc.ValidateServiceToken(token)
		if !errors.Is(err, domain.ErrTokenAudienceMismatch) {
			t.Errorf("expected ErrTokenAudienceMismatch, got %v", err)
		}
	})

	t.Run("missing subject", func(t *testing.T) {
		now := time.Now()
		token := signWith(privateKey, jwt.MapClaims{
			"aud": ControlPlaneAudience,
			"iat": now.Unix(),
			"exp": now.Add(time.Minute).Unix(),
		})

		_, err := svc.ValidateServiceToken(token)
		if !errors.Is(err, domain.ErrTokenMalformed) {
			t.Errorf("expected ErrTokenMalformed, got %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		token := signWith(privateKey, jwt.MapClaims{
			"sub": "payments",
			"aud": ControlPlaneAudience,
			"iat": time.Now().Add(-2 * time.Hour).Unix(),
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		_, err := svc.ValidateServiceToken(token)
		if !errors.Is(err, domain.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("wrong signing key", func(t *testing.T) {
		otherKey, _ := rsa.GenerateKey(rand.Reader, 2048)
		now := time.Now()
		token := signWith(otherKey, jwt.MapClaims{
			"sub": "payments",
			"aud": ControlPlaneAudience,
			"iat": now.Unix(),
			"exp": now.Add(time.Minute).Unix(),
		})

		_, err := svc.ValidateServiceToken(token)
		if !errors.Is(err, domain.ErrTokenInvalidSignature) {
			t.Errorf("expected ErrTokenInvalidSignature, got %v", err)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.ValidateServiceToken("not-a-token")
		if !errors.Is(err, domain.ErrTokenMalformed) {
			t.Errorf("expected ErrTokenMalformed, got %v", err)
		}
	})
}

func TestMintCallToken_RoundTrip(t *testing.T) {
	svc := createTestService(t)

	token, err := svc.MintCallToken("payments", "charge")
	if err != nil {
		t.Fatalf("MintCallToken() error = %v", err)
	}

	claims, err := svc.ParseCallToken(token)
	if err != nil {
		t.Fatalf("ParseCallToken() error = %v", err)
	}
	if claims.Audience != "payments" {
		t.Errorf("audience = %q, want payments", claims.Audience)
	}
	if claims.Action != "charge" {
		t.Errorf("action = %q, want charge", claims.Action)
	}
	if claims.Issuer != "maestro" {
		t.Errorf("issuer = %q, want maestro", claims.Issuer)
	}
	if err := claims.ValidateAudience("payments"); err != nil {
		t.Errorf("ValidateAudience() error = %v", err)
	}
	if err := claims.ValidateAudience("other"); !errors.Is(err, domain.ErrTokenAudienceMismatch) {
		t.Errorf("expected audience mismatch for other service, got %v", err)
	}
}

func TestMintCallToken_RequiresPrivateKey(t *testing.T) {
	_, pubPEM := generateTestKeys()
	svc, err := NewService(&config.Config{
		JWTPublicKey: pubPEM,
		JWTIssuer:    "maestro",
		JWTCallTTL:   5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	if svc.CanSign() {
		t.Error("CanSign() should be false without a private key")
	}
	if _, err := svc.MintCallToken("payments", "charge"); err == nil {
		t.Error("expected error minting without a private key")
	}
}

func TestNormalizePEM_CollapsedNewlines(t *testing.T) {
	privPEM, _ := generateTestKeys()
	collapsed := ""
	for i, r := range privPEM {
		if r == '\n' && i != len(privPEM)-1 {
			collapsed += " "
		} else if r != '\n' {
			collapsed += string(r)
		}
	}

	if _, err := parseRSAPrivateKey(collapsed); err != nil {
		t.Errorf("expected collapsed PEM to parse, got %v", err)
	}
}
