package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/kendall-kelly/field-service-api/services"
)

// CreateJob handles POST /api/v1/jobs
func CreateJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.CreateJobInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	job, err := services.NewJobService(config.GetDB()).CreateJob(c.Request.Context(), user, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, job)
}

// ListJobs handles GET /api/v1/jobs
// Query params: status, priority, assigned_to, overdue, page, limit
func ListJobs(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	filter := services.JobFilter{
		Status:      models.JobStatus(c.Query("status")),
		Priority:    models.Priority(c.Query("priority")),
		PageRequest: pageRequest(c),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondError(c, apperr.Validation("INVALID_STATUS", "Invalid status filter"))
		return
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		respondError(c, apperr.Validation("INVALID_PRIORITY", "Invalid priority filter"))
		return
	}

	var err error
	if filter.AssignedToID, err = queryUint(c, "assigned_to"); err != nil {
		respondError(c, err)
		return
	}
	if filter.Overdue, err = queryBool(c, "overdue"); err != nil {
		respondError(c, err)
		return
	}

	jobs, pagination, err := services.NewJobService(config.GetDB()).ListJobs(c.Request.Context(), user, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, jobs, pagination)
}

// GetJob handles GET /api/v1/jobs/:id
func GetJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	job, err := services.NewJobService(config.GetDB()).GetJob(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, job)
}

// UpdateJob handles PATCH /api/v1/jobs/:id
func UpdateJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateJobInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	job, err := services.NewJobService(config.GetDB()).UpdateJob(c.Request.Context(), user, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, job)
}

// DeleteJob handles DELETE /api/v1/jobs/:id. Tasks go with the job.
func DeleteJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := services.NewJobService(config.GetDB()).DeleteJob(c.Request.Context(), user, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RecomputeOverdue handles POST /api/v1/jobs/:id/recompute-overdue
func RecomputeOverdue(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	job, err := services.NewJobService(config.GetDB()).RecomputeOverdue(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, job)
}

// GetAnalytics handles GET /api/v1/jobs/analytics
func GetAnalytics(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	summary, err := services.NewAnalyticsService(config.GetDB()).Summary(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, summary)
}
