package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/middleware"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenDatabase("sqlite::memory:")
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := config.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	config.SetDB(db)
	return db
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

// mockAuthMiddleware stands in for EnsureValidToken + LoadCurrentUser.
// A nil user leaves the request unauthenticated.
func mockAuthMiddleware(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user != nil {
			middleware.SetCurrentUser(c, user)
		}
		c.Next()
	}
}

func seedUser(t *testing.T, db *gorm.DB, role models.Role, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, Name: string(role) + " User", PasswordHash: "x", Role: role}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedJob(t *testing.T, db *gorm.DB, owner *models.User, assignee *models.User, scheduled *time.Time) *models.Job {
	t.Helper()
	job := &models.Job{
		Title:         "Boiler service",
		ClientName:    "Acme",
		CreatedByID:   owner.ID,
		Status:        models.JobStatusScheduled,
		Priority:      models.PriorityMedium,
		ScheduledDate: scheduled,
	}
	if assignee != nil {
		job.AssignedToID = &assignee.ID
	}
	require.NoError(t, db.Create(job).Error)
	return job
}

func seedTask(t *testing.T, db *gorm.DB, job *models.Job, order int, status models.TaskStatus) *models.JobTask {
	t.Helper()
	task := &models.JobTask{JobID: job.ID, Order: order, Title: fmt.Sprintf("Step %d", order), Status: status}
	if status == models.TaskStatusCompleted {
		now := time.Now()
		task.CompletedAt = &now
	}
	require.NoError(t, db.Create(task).Error)
	return task
}

func seedEquipment(t *testing.T, db *gorm.DB, name, serial string) *models.Equipment {
	t.Helper()
	equipment := &models.Equipment{Name: name, Type: "tool", SerialNumber: serial, IsActive: true}
	require.NoError(t, db.Create(equipment).Error)
	return equipment
}

// performRequest sends body as JSON (when non-nil) and decodes the envelope
func performRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w, response
}

func errorCode(response map[string]interface{}) string {
	errObj, ok := response["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := errObj["code"].(string)
	return code
}
