package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/kendall-kelly/field-service-api/services"
)

// SetRoleRequest represents the request body for changing a user's role
type SetRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// CreateUser handles POST /api/v1/users - admins create accounts
func CreateUser(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.CreateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	created, err := services.NewUserService(config.GetDB()).CreateUser(c.Request.Context(), user, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, created)
}

// ListUsers handles GET /api/v1/users?role=<role>
func ListUsers(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	users, err := services.NewUserService(config.GetDB()).ListUsers(c.Request.Context(), user, models.Role(c.Query("role")))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, users)
}

// GetMyProfile handles GET /api/v1/users/me - gets current user's profile
func GetMyProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, user)
}

// UpdateMyProfile handles PATCH /api/v1/users/me - updates current user's profile
func UpdateMyProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.UpdateProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	updated, err := services.NewUserService(config.GetDB()).UpdateProfile(c.Request.Context(), user, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, updated)
}

// SetUserRole handles PATCH /api/v1/users/:id/role - admin only
func SetUserRole(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	updated, err := services.NewUserService(config.GetDB()).SetRole(c.Request.Context(), user, id, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, updated)
}
