package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/logger"
	"github.com/kendall-kelly/field-service-api/models"
	"gorm.io/gorm"
)

// Gin context keys set by the auth middleware
const (
	ContextUserID      = "user_id"
	ContextClaims      = "validated_claims"
	ContextCurrentUser = "current_user"
)

// CustomClaims contains the custom data we put in access tokens.
type CustomClaims struct {
	Role models.Role `json:"role"`
}

// Validate rejects tokens carrying a role we do not know.
func (c CustomClaims) Validate(ctx context.Context) error {
	if c.Role != "" && !c.Role.Valid() {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	return nil
}

// NewTokenValidator builds the HS256 validator for tokens issued by this API
func NewTokenValidator(cfg *config.Config) (*validator.Validator, error) {
	secret := []byte(cfg.JWTSecret)
	keyFunc := func(context.Context) (interface{}, error) {
		return secret, nil
	}

	return validator.New(
		keyFunc,
		validator.HS256,
		cfg.JWTIssuer,
		[]string{cfg.JWTAudience},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
}

// EnsureValidToken is a middleware that will check the validity of our JWT.
func EnsureValidToken(cfg *config.Config) gin.HandlerFunc {
	jwtValidator, err := NewTokenValidator(cfg)
	if err != nil {
		logger.L().Fatal("failed to set up the jwt validator", "error", err)
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		logger.L().Debug("rejected access token", "path", r.URL.Path, "error", err)

		code, message := "INVALID_TOKEN", "Failed to validate JWT."
		if errors.Is(err, jwtmiddleware.ErrJWTMissing) {
			code, message = "MISSING_TOKEN", "Authentication credentials were not provided."
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		body := fmt.Sprintf(`{"success":false,"error":{"code":%q,"message":%q}}`, code, message)
		if _, writeErr := w.Write([]byte(body)); writeErr != nil {
			logger.L().Warn("failed to write error response", "error", writeErr)
		}
	}

	middleware := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
	)

	return func(c *gin.Context) {
		passed := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			passed = true
			token := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)

			userID, err := strconv.ParseUint(token.RegisteredClaims.Subject, 10, 64)
			if err != nil {
				abortWithError(c, apperr.Authentication("INVALID_TOKEN", "Token subject is not a user id"))
				return
			}

			c.Request = r
			c.Set(ContextUserID, uint(userID))
			c.Set(ContextClaims, token)
			c.Next()
		}

		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}

// LoadCurrentUser resolves the token subject to a stored user. The stored
// role, not the token's role claim, is what authorization uses.
func LoadCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := GetUserID(c)
		if err != nil {
			abortWithError(c, err)
			return
		}

		var user models.User
		if err := config.GetDB().WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				abortWithError(c, apperr.Authentication("USER_NOT_FOUND", "User for this token no longer exists"))
				return
			}
			abortWithError(c, apperr.Internal("Failed to load user", err))
			return
		}

		SetCurrentUser(c, &user)
		c.Next()
	}
}

// SetCurrentUser stores the authenticated user on the context
func SetCurrentUser(c *gin.Context, user *models.User) {
	c.Set(ContextUserID, user.ID)
	c.Set(ContextCurrentUser, user)
}

// GetCurrentUser returns the authenticated user, or nil
func GetCurrentUser(c *gin.Context) *models.User {
	value, exists := c.Get(ContextCurrentUser)
	if !exists {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) (uint, error) {
	userID, exists := c.Get(ContextUserID)
	if !exists {
		return 0, apperr.Authentication("MISSING_USER_ID", "User ID not found in context")
	}

	id, ok := userID.(uint)
	if !ok {
		return 0, apperr.Authentication("INVALID_USER_ID", "User ID is not a valid identifier")
	}
	return id, nil
}

// GetClaims extracts the validated JWT claims from the Gin context
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	claims, exists := c.Get(ContextClaims)
	if !exists {
		return nil, apperr.Authentication("MISSING_CLAIMS", "Claims not found in context")
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, apperr.Authentication("INVALID_CLAIMS", "Claims are not in the expected format")
	}
	return validatedClaims, nil
}

func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code, message := "INTERNAL_ERROR", "Internal server error"

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		code, message = appErr.Code, appErr.Message
		if appErr.Kind == apperr.KindAuthentication {
			status = http.StatusUnauthorized
		}
	}

	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
