package testutil

import (
	"strconv"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/middleware"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/kendall-kelly/field-service-api/services"
)

// MockValidatedClaims creates the claims EnsureValidToken would store for user
func MockValidatedClaims(user *models.User, issuer string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  issuer,
			Subject: strconv.FormatUint(uint64(user.ID), 10),
		},
		CustomClaims: &middleware.CustomClaims{
			Role: user.Role,
		},
	}
}

// MockAuthMiddleware authenticates every request as whatever current returns.
// A nil user leaves the request unauthenticated.
func MockAuthMiddleware(current func() *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := current(); user != nil {
			c.Set(middleware.ContextClaims, MockValidatedClaims(user, "field-service-api"))
			middleware.SetCurrentUser(c, user)
		}
		c.Next()
	}
}

// IssueToken signs a real access token for user with cfg's settings
func IssueToken(t *testing.T, cfg *config.Config, user *models.User) string {
	t.Helper()

	token, err := services.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL).Issue(user)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return token.AccessToken
}
