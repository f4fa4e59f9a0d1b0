package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/logger"
	"github.com/kendall-kelly/field-service-api/middleware"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/kendall-kelly/field-service-api/services"
)

// statusFor maps an error kind to its HTTP status
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindPermission:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope for err. Unclassified errors are
// logged and reported as a generic internal error.
func respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal("Internal server error", err)
	}

	status := statusFor(appErr.Kind)
	if status == http.StatusInternalServerError {
		logger.L().Error("request failed", "path", c.FullPath(), "error", err)
		_ = c.Error(err)
	}

	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		},
	})
}

// respondBindError reports a request body that could not be parsed
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondList(c *gin.Context, data interface{}, pagination services.Pagination) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       data,
		"pagination": pagination,
	})
}

// currentUser returns the authenticated user or writes a 401
func currentUser(c *gin.Context) (*models.User, bool) {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		respondError(c, apperr.Authentication("UNAUTHORIZED", "Could not extract user information"))
		return nil, false
	}
	return user, true
}

// parseID reads a positive numeric path parameter
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondError(c, apperr.Validation("INVALID_ID", "Invalid "+name+" parameter"))
		return 0, false
	}
	return uint(id), true
}

// queryUint reads an optional numeric query parameter
func queryUint(c *gin.Context, name string) (*uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, apperr.Validation("INVALID_QUERY_PARAMETER", name+" must be a positive integer")
	}
	v := uint(value)
	return &v, nil
}

// queryBool reads an optional boolean query parameter
func queryBool(c *gin.Context, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation("INVALID_QUERY_PARAMETER", name+" must be true or false")
	}
	return &value, nil
}

// pageRequest reads page and limit; out of range values are clamped by the services
func pageRequest(c *gin.Context) services.PageRequest {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return services.PageRequest{Page: page, Limit: limit}
}
