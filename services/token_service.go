package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/models"
)

// TokenClaims are the claims carried by an access token. Subject is the user id.
type TokenClaims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Token is the response of a successful login
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenService issues HS256 access tokens
type TokenService struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenService creates a token issuer
func NewTokenService(secret, issuer, audience string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue signs an access token for user
func (s *TokenService) Issue(user *models.User) (*Token, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := TokenClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, apperr.Internal("Failed to sign token", fmt.Errorf("sign token: %w", err))
	}
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}
