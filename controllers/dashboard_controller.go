package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/services"
)

// GetTechnicianDashboard handles GET /api/v1/technician-dashboard
// Admins and sales agents may pass technician_id to view someone else's
// dashboard; technicians always see their own.
func GetTechnicianDashboard(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	technicianID, err := queryUint(c, "technician_id")
	if err != nil {
		respondError(c, err)
		return
	}

	groups, err := services.NewDashboardService(config.GetDB(), nil).
		TechnicianDashboard(c.Request.Context(), user, technicianID, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, groups)
}
