package middleware

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/apascualco/maestro/internal/domain"
	"github.com/apascualco/maestro/internal/infrastructure/jwt"
)

const (
	ContextKeyServiceName = "service_name"
	HeaderServiceToken    = "X-Service-Token"
)

// ServiceAuth authenticates control-plane callers. When the token service has
// a public key configured it expects an RS256 bearer token; otherwise it
// falls back to a constant-time comparison against the shared static token.
func ServiceAuth(tokens *jwt.Service, staticToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens.CanValidate() {
			authenticateJWT(c, tokens)
			return
		}
		authenticateStatic(c, staticToken)
	}
}

func authenticateJWT(c *gin.Context, tokens *jwt.Service) {
	header := c.GetHeader("Authorization")
	if header == "" {
		unauthorized(c, "missing Authorization header")
		return
	}

	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == header {
		unauthorized(c, "Authorization header must use Bearer scheme")
		return
	}

	serviceID, err := tokens.ValidateServiceToken(tokenString)
	if err != nil {
		requestID, _ := c.Get(ContextKeyRequestID)
		slog.Warn("service token rejected",
			"error", err,
			"request_id", requestID,
			"client_ip", c.ClientIP(),
		)
		if errors.Is(err, domain.ErrTokenExpired) {
			unauthorized(c, "token expired")
			return
		}
		unauthorized(c, "invalid token")
		return
	}

	c.Set(ContextKeyServiceName, serviceID)
	c.Next()
}

func authenticateStatic(c *gin.Context, staticToken string) {
	if staticToken == "" {
		// no credential configured, the control plane runs open
		c.Next()
		return
	}

	provided := c.GetHeader(HeaderServiceToken)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(staticToken)) != 1 {
		unauthorized(c, "invalid service token")
		return
	}

	c.Next()
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "invalid_token",
		"message": message,
	})
}
