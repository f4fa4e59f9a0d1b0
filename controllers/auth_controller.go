package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/services"
)

// TokenRequest represents the login request body
type TokenRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// IssueToken handles POST /api/v1/auth/token - exchanges credentials for an access token
func IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	cfg := config.GetConfig()
	if cfg == nil {
		respondError(c, apperr.Internal("Token signing is not configured", nil))
		return
	}

	user, err := services.NewUserService(config.GetDB()).Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := services.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL).Issue(user)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, token)
}
