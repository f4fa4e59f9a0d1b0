package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestDB opens a fresh in-memory SQLite database with the full schema.
// A single connection keeps every query on the same in-memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := config.OpenDatabase("sqlite::memory:")
	require.NoError(t, err, "Failed to connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.Migrate(db), "Failed to migrate test database")
	return db
}

func createUser(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	user := models.User{
		Email:        strings.ToLower(fmt.Sprintf("%s%d@example.com", role, n+1)),
		Name:         fmt.Sprintf("%s %d", role, n+1),
		PasswordHash: "x",
		Role:         role,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func createJob(t *testing.T, db *gorm.DB, owner *models.User, assignee *models.User, scheduled *time.Time) *models.Job {
	t.Helper()

	job := models.Job{
		Title:         "Boiler service",
		ClientName:    "Acme Heating",
		CreatedByID:   owner.ID,
		Status:        models.JobStatusScheduled,
		Priority:      models.PriorityMedium,
		ScheduledDate: scheduled,
	}
	if assignee != nil {
		job.AssignedToID = &assignee.ID
	}
	require.NoError(t, db.Omit("Tasks", "CreatedBy", "AssignedTo").Create(&job).Error)
	return &job
}

func createTask(t *testing.T, db *gorm.DB, job *models.Job, order int, status models.TaskStatus, equipment ...models.Equipment) *models.JobTask {
	t.Helper()

	task := models.JobTask{
		JobID:  job.ID,
		Order:  order,
		Title:  fmt.Sprintf("Step %d", order),
		Status: status,
	}
	if status == models.TaskStatusCompleted {
		completedAt := time.Now()
		task.CompletedAt = &completedAt
	}
	require.NoError(t, db.Omit("RequiredEquipment", "Job").Create(&task).Error)
	if len(equipment) > 0 {
		require.NoError(t, db.Model(&models.JobTask{ID: task.ID}).Association("RequiredEquipment").Append(&equipment))
	}
	return &task
}

func createEquipment(t *testing.T, db *gorm.DB, name string) models.Equipment {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(&models.Equipment{}).Count(&n).Error)
	equipment := models.Equipment{
		Name:         name,
		Type:         "tool",
		SerialNumber: fmt.Sprintf("SN-%04d", n+1),
		IsActive:     true,
	}
	require.NoError(t, db.Create(&equipment).Error)
	return equipment
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func ptr[T any](v T) *T {
	return &v
}
