package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/kendall-kelly/field-service-api/services"
)

// CreateTask handles POST /api/v1/job-tasks
func CreateTask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.CreateTaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	task, err := services.NewTaskService(config.GetDB()).CreateTask(c.Request.Context(), user, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, task)
}

// ListTasks handles GET /api/v1/job-tasks?job=<id>&status=<status>
func ListTasks(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	jobID, err := queryUint(c, "job")
	if err != nil {
		respondError(c, err)
		return
	}
	status := models.TaskStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		respondError(c, apperr.Validation("INVALID_STATUS", "Invalid status filter"))
		return
	}

	tasks, err := services.NewTaskService(config.GetDB()).ListTasks(c.Request.Context(), user, services.TaskFilter{JobID: jobID, Status: status})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, tasks)
}

// GetTask handles GET /api/v1/job-tasks/:id
func GetTask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	task, err := services.NewTaskService(config.GetDB()).GetTask(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, task)
}

// UpdateTask handles PATCH /api/v1/job-tasks/:id. Fields a technician may
// not change are dropped rather than rejected.
func UpdateTask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateTaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	task, err := services.NewTaskService(config.GetDB()).UpdateTask(c.Request.Context(), user, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, task)
}

// DeleteTask handles DELETE /api/v1/job-tasks/:id
func DeleteTask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := services.NewTaskService(config.GetDB()).DeleteTask(c.Request.Context(), user, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
