package controllers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/kendall-kelly/field-service-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTask(t *testing.T) {
	db := setupTestDB(t)
	agent := seedUser(t, db, models.RoleSalesAgent, "agent@example.com")
	tech := seedUser(t, db, models.RoleTechnician, "tech@example.com")
	job := seedJob(t, db, agent, tech, nil)
	seedTask(t, db, job, 1, models.TaskStatusPending)
	drill := seedEquipment(t, db, "Drill", "SN-1")

	tests := []struct {
		name           string
		user           *models.User
		requestBody    map[string]interface{}
		expectedStatus int
		expectedError  string
		checkResponse  func(t *testing.T, response map[string]interface{})
	}{
		{
			name: "Successfully create task with equipment",
			user: agent,
			requestBody: map[string]interface{}{
				"job":                    job.ID,
				"order":                  2,
				"title":                  "Drain system",
				"required_equipment_ids": []uint{drill.ID},
			},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, response map[string]interface{}) {
				data := response["data"].(map[string]interface{})
				assert.Equal(t, "Pending", data["status"])
				assert.Equal(t, float64(2), data["order"])
				equipment := data["required_equipment"].([]interface{})
				require.Len(t, equipment, 1)
				assert.Equal(t, "Drill", equipment[0].(map[string]interface{})["name"])
			},
		},
		{
			name:           "Duplicate order within job",
			user:           agent,
			requestBody:    map[string]interface{}{"job": job.ID, "order": 1, "title": "Again"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "DUPLICATE_TASK_ORDER",
		},
		{
			name:           "Unknown equipment",
			user:           agent,
			requestBody:    map[string]interface{}{"job": job.ID, "order": 5, "title": "Bad", "required_equipment_ids": []uint{9999}},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "INVALID_EQUIPMENT",
		},
		{
			name:           "Unknown job",
			user:           agent,
			requestBody:    map[string]interface{}{"job": 9999, "order": 1, "title": "Orphan"},
			expectedStatus: http.StatusNotFound,
			expectedError:  "JOB_NOT_FOUND",
		},
		{
			name:           "Technician cannot create tasks",
			user:           tech,
			requestBody:    map[string]interface{}{"job": job.ID, "order": 6, "title": "Mine"},
			expectedStatus: http.StatusForbidden,
			expectedError:  "FORBIDDEN",
		},
		{
			name:           "Malformed body",
			user:           agent,
			requestBody:    map[string]interface{}{"job": "not-a-number"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			router.POST("/api/v1/job-tasks", mockAuthMiddleware(tt.user), CreateTask)

			w, response := performRequest(t, router, http.MethodPost, "/api/v1/job-tasks", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, errorCode(response))
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, response)
			}
		})
	}
}

func TestListTasks(t *testing.T) {
	db := setupTestDB(t)
	agent := seedUser(t, db, models.RoleSalesAgent, "agent@example.com")
	first := seedJob(t, db, agent, nil, nil)
	second := seedJob(t, db, agent, nil, nil)
	seedTask(t, db, first, 2, models.TaskStatusPending)
	seedTask(t, db, first, 1, models.TaskStatusCompleted)
	seedTask(t, db, second, 1, models.TaskStatusPending)

	router := setupTestRouter()
	router.GET("/api/v1/job-tasks", mockAuthMiddleware(agent), ListTasks)

	w, response := performRequest(t, router, http.MethodGet, fmt.Sprintf("/api/v1/job-tasks?job=%d", first.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	tasks := response["data"].([]interface{})
	require.Len(t, tasks, 2)
	assert.Equal(t, float64(1), tasks[0].(map[string]interface{})["order"])

	w, response = performRequest(t, router, http.MethodGet, "/api/v1/job-tasks?status=Pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, response["data"].([]interface{}), 2)

	w, response = performRequest(t, router, http.MethodGet, "/api/v1/job-tasks?job=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_QUERY_PARAMETER", errorCode(response))
}

func TestUpdateTask_TechnicianNarrowing(t *testing.T) {
	db := setupTestDB(t)
	agent := seedUser(t, db, models.RoleSalesAgent, "agent@example.com")
	tech := seedUser(t, db, models.RoleTechnician, "tech@example.com")
	other := seedUser(t, db, models.RoleTechnician, "other@example.com")
	job := seedJob(t, db, agent, tech, nil)
	task := seedTask(t, db, job, 1, models.TaskStatusPending)
	path := fmt.Sprintf("/api/v1/job-tasks/%d", task.ID)

	t.Run("Assigned technician completes the task, title change is dropped", func(t *testing.T) {
		router := setupTestRouter()
		router.PATCH("/api/v1/job-tasks/:id", mockAuthMiddleware(tech), UpdateTask)

		w, response := performRequest(t, router, http.MethodPatch, path, map[string]interface{}{
			"status": "Completed",
			"title":  "Renamed by technician",
		})
		require.Equal(t, http.StatusOK, w.Code)
		data := response["data"].(map[string]interface{})
		assert.Equal(t, "Completed", data["status"])
		assert.Equal(t, "Step 1", data["title"])
		assert.NotNil(t, data["completed_at"])
	})

	t.Run("Unassigned technician is forbidden", func(t *testing.T) {
		router := setupTestRouter()
		router.PATCH("/api/v1/job-tasks/:id", mockAuthMiddleware(other), UpdateTask)

		w, response := performRequest(t, router, http.MethodPatch, path, map[string]interface{}{"status": "InProgress"})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "FORBIDDEN", errorCode(response))

		var stored models.JobTask
		require.NoError(t, db.First(&stored, task.ID).Error)
		assert.Equal(t, models.TaskStatusCompleted, stored.Status)
	})

	t.Run("Sales agent can rename", func(t *testing.T) {
		router := setupTestRouter()
		router.PATCH("/api/v1/job-tasks/:id", mockAuthMiddleware(agent), UpdateTask)

		w, response := performRequest(t, router, http.MethodPatch, path, map[string]interface{}{"title": "Inspect burner"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Inspect burner", response["data"].(map[string]interface{})["title"])
	})
}

func TestDeleteTask(t *testing.T) {
	db := setupTestDB(t)
	agent := seedUser(t, db, models.RoleSalesAgent, "agent@example.com")
	tech := seedUser(t, db, models.RoleTechnician, "tech@example.com")
	job := seedJob(t, db, agent, tech, nil)
	task := seedTask(t, db, job, 1, models.TaskStatusPending)
	path := fmt.Sprintf("/api/v1/job-tasks/%d", task.ID)

	router := setupTestRouter()
	router.DELETE("/api/v1/job-tasks/:id", mockAuthMiddleware(tech), DeleteTask)
	w, _ := performRequest(t, router, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	router = setupTestRouter()
	router.DELETE("/api/v1/job-tasks/:id", mockAuthMiddleware(agent), DeleteTask)
	w, _ = performRequest(t, router, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	router = setupTestRouter()
	router.GET("/api/v1/job-tasks/:id", mockAuthMiddleware(agent), GetTask)
	w, response := performRequest(t, router, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "TASK_NOT_FOUND", errorCode(response))
}
