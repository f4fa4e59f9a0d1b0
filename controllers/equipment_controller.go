package controllers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/services"
)

var (
	imagesMu     sync.RWMutex
	imageService services.ImageService
)

// SetImageService sets the photo store used by the equipment endpoints.
// Without one, photo uploads fail and photo_url is omitted.
func SetImageService(svc services.ImageService) {
	imagesMu.Lock()
	defer imagesMu.Unlock()
	imageService = svc
}

func equipmentService() *services.EquipmentService {
	imagesMu.RLock()
	defer imagesMu.RUnlock()
	return services.NewEquipmentService(config.GetDB(), imageService)
}

// CreateEquipment handles POST /api/v1/equipment
func CreateEquipment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.CreateEquipmentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	equipment, err := equipmentService().CreateEquipment(c.Request.Context(), user, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, equipment)
}

// ListEquipment handles GET /api/v1/equipment
// Query params: is_active, type, q, page, limit
func ListEquipment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	isActive, err := queryBool(c, "is_active")
	if err != nil {
		respondError(c, err)
		return
	}

	filter := services.EquipmentFilter{
		IsActive:    isActive,
		Type:        c.Query("type"),
		Query:       c.Query("q"),
		PageRequest: pageRequest(c),
	}
	equipment, pagination, err := equipmentService().ListEquipment(c.Request.Context(), user, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, equipment, pagination)
}

// GetEquipment handles GET /api/v1/equipment/:id
func GetEquipment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	equipment, err := equipmentService().GetEquipment(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, equipment)
}

// UpdateEquipment handles PATCH /api/v1/equipment/:id
func UpdateEquipment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateEquipmentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	equipment, err := equipmentService().UpdateEquipment(c.Request.Context(), user, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, equipment)
}

// DeleteEquipment handles DELETE /api/v1/equipment/:id. Tasks that required
// it are kept.
func DeleteEquipment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := equipmentService().DeleteEquipment(c.Request.Context(), user, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadEquipmentPhoto handles POST /api/v1/equipment/:id/photo with a
// multipart "image" field
func UploadEquipmentPhoto(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		respondError(c, apperr.Validation("MISSING_FILE", "An image file is required in the \"image\" field"))
		return
	}

	equipment, err := equipmentService().UploadPhoto(c.Request.Context(), user, id, fileHeader)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, equipment)
}
