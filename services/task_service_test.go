package services

import (
	"context"
	"testing"
	"time"

	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/kendall-kelly/field-service-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTaskService(t *testing.T) (*TaskService, *models.User) {
	t.Helper()
	db := setupTestDB(t)
	svc := NewTaskService(db)
	svc.now = fixedClock(testNow)
	return svc, createUser(t, db, models.RoleAdmin)
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestCreateTask(t *testing.T) {
	svc, admin := newTestTaskService(t)
	ctx := context.Background()
	job := createJob(t, svc.db, admin, nil, nil)
	drill := createEquipment(t, svc.db, "Drill")
	ladder := createEquipment(t, svc.db, "Ladder")

	task, err := svc.CreateTask(ctx, admin, CreateTaskInput{
		JobID:                job.ID,
		Order:                1,
		Title:                "Inspect unit",
		RequiredEquipmentIDs: []uint{ladder.ID, drill.ID, ladder.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Nil(t, task.CompletedAt)
	require.Len(t, task.RequiredEquipment, 2)
	assert.Equal(t, drill.ID, task.RequiredEquipment[0].ID)
	assert.Equal(t, ladder.ID, task.RequiredEquipment[1].ID)

	completed, err := svc.CreateTask(ctx, admin, CreateTaskInput{
		JobID:  job.ID,
		Order:  2,
		Title:  "Already done",
		Status: models.TaskStatusCompleted,
	})
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)
	assert.True(t, completed.CompletedAt.Equal(testNow))
}

func TestCreateTask_Rejections(t *testing.T) {
	svc, admin := newTestTaskService(t)
	ctx := context.Background()
	job := createJob(t, svc.db, admin, nil, nil)
	createTask(t, svc.db, job, 1, models.TaskStatusPending)
	tech := createUser(t, svc.db, models.RoleTechnician)

	tests := []struct {
		name         string
		actor        *models.User
		input        CreateTaskInput
		expectedKind apperr.Kind
		expectedCode string
	}{
		{"duplicate order", admin, CreateTaskInput{JobID: job.ID, Order: 1, Title: "Dup"}, apperr.KindValidation, "DUPLICATE_TASK_ORDER"},
		{"zero order", admin, CreateTaskInput{JobID: job.ID, Order: 0, Title: "Zero"}, apperr.KindValidation, "INVALID_ORDER"},
		{"negative order", admin, CreateTaskInput{JobID: job.ID, Order: -3, Title: "Neg"}, apperr.KindValidation, "INVALID_ORDER"},
		{"missing title", admin, CreateTaskInput{JobID: job.ID, Order: 5}, apperr.KindValidation, "VALIDATION_ERROR"},
		{"unknown job", admin, CreateTaskInput{JobID: 777, Order: 1, Title: "Lost"}, apperr.KindNotFound, "JOB_NOT_FOUND"},
		{"unknown equipment", admin, CreateTaskInput{JobID: job.ID, Order: 2, Title: "Eq", RequiredEquipmentIDs: []uint{55}}, apperr.KindValidation, "INVALID_EQUIPMENT"},
		{"bad status", admin, CreateTaskInput{JobID: job.ID, Order: 2, Title: "St", Status: "Done"}, apperr.KindValidation, "INVALID_STATUS"},
		{"technician", tech, CreateTaskInput{JobID: job.ID, Order: 2, Title: "Tech"}, apperr.KindPermission, "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateTask(ctx, tt.actor, tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.expectedKind, apperr.KindOf(err))
			assert.Equal(t, tt.expectedCode, codeOf(t, err))
		})
	}

	var n int64
	require.NoError(t, svc.db.Model(&models.JobTask{}).Count(&n).Error)
	assert.Equal(t, int64(1), n, "rejected creates persist nothing")
}

func TestCreateTask_SameOrderInDifferentJobs(t *testing.T) {
	svc, admin := newTestTaskService(t)
	ctx := context.Background()
	first := createJob(t, svc.db, admin, nil, nil)
	second := createJob(t, svc.db, admin, nil, nil)

	_, err := svc.CreateTask(ctx, admin, CreateTaskInput{JobID: first.ID, Order: 1, Title: "A"})
	require.NoError(t, err)
	_, err = svc.CreateTask(ctx, admin, CreateTaskInput{JobID: second.ID, Order: 1, Title: "B"})
	require.NoError(t, err)
}

func TestUpdateTask_CompletionStampsCompletedAt(t *testing.T) {
	svc, admin := newTestTaskService(t)
	ctx := context.Background()
	job := createJob(t, svc.db, admin, nil, nil)
	task := createTask(t, svc.db, job, 1, models.TaskStatusPending)

	completed := models.TaskStatusCompleted
	updated, err := svc.UpdateTask(ctx, admin, task.ID, UpdateTaskInput{Status: &completed})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	assert.True(t, updated.CompletedAt.Equal(testNow))

	explicit := testNow.Add(-72 * time.Hour)
	other := createTask(t, svc.db, job, 2, models.TaskStatusInProgress)
	updated, err = svc.UpdateTask(ctx, admin, other.ID, UpdateTaskInput{Status: &completed, CompletedAt: utils.Some(explicit)})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	assert.True(t, updated.CompletedAt.Equal(explicit), "explicit completed_at is preserved")

	// reopening leaves completed_at alone unless it is cleared
	pending := models.TaskStatusPending
	updated, err = svc.UpdateTask(ctx, admin, other.ID, UpdateTaskInput{Status: &pending})
	require.NoError(t, err)
	assert.NotNil(t, updated.CompletedAt)

	updated, err = svc.UpdateTask(ctx, admin, other.ID, UpdateTaskInput{CompletedAt: utils.Null[time.Time]()})
	require.NoError(t, err)
	assert.Nil(t, updated.CompletedAt)
}

func TestUpdateTask_Order(t *testing.T) {
	svc, admin := newTestTaskService(t)
	ctx := context.Background()
	job := createJob(t, svc.db, admin, nil, nil)
	first := createTask(t, svc.db, job, 1, models.TaskStatusPending)
	createTask(t, svc.db, job, 2, models.TaskStatusPending)

	_, err := svc.UpdateTask(ctx, admin, first.ID, UpdateTaskInput{Order: ptr(2)})
	require.Error(t, err)
	assert.Equal(t, "DUPLICATE_TASK_ORDER", codeOf(t, err))

	_, err = svc.UpdateTask(ctx, admin, first.ID, UpdateTaskInput{Order: ptr(0)})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	updated, err := svc.UpdateTask(ctx, admin, first.ID, UpdateTaskInput{Order: ptr(1), Title: ptr("Same slot")})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Order)
	assert.Equal(t, "Same slot", updated.Title)

	updated, err = svc.UpdateTask(ctx, admin, first.ID, UpdateTaskInput{Order: ptr(10)})
	require.NoError(t, err)
	assert.Equal(t, 10, updated.Order)
}

func TestUpdateTask_TechnicianNarrowing(t *testing.T) {
	svc, admin := newTestTaskService(t)
	ctx := context.Background()
	tech := createUser(t, svc.db, models.RoleTechnician)
	job := createJob(t, svc.db, admin, tech, nil)
	task := createTask(t, svc.db, job, 1, models.TaskStatusPending)
	drill := createEquipment(t, svc.db, "Drill")

	completed := models.TaskStatusCompleted
	updated, err := svc.UpdateTask(ctx, tech, task.ID, UpdateTaskInput{
		Title:                ptr("Hijacked"),
		Description:          ptr("Changed by tech"),
		Order:                ptr(9),
		Status:               &completed,
		RequiredEquipmentIDs: &[]uint{drill.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "Step 1", updated.Title, "title is dropped for technicians")
	assert.Equal(t, "", updated.Description)
	assert.Equal(t, 1, updated.Order)
	assert.Equal(t, models.TaskStatusCompleted, updated.Status)
	assert.NotNil(t, updated.CompletedAt)
	require.Len(t, updated.RequiredEquipment, 1)
	assert.Equal(t, drill.ID, updated.RequiredEquipment[0].ID)
}

func TestUpdateTask_TechnicianMustBeAssigned(t *testing.T) {
	svc, admin := newTestTaskService(t)
	ctx := context.Background()
	assigned := createUser(t, svc.db, models.RoleTechnician)
	stranger := createUser(t, svc.db, models.RoleTechnician)

	job := createJob(t, svc.db, admin, assigned, nil)
	task := createTask(t, svc.db, job, 1, models.TaskStatusPending)
	unassignedJob := createJob(t, svc.db, admin, nil, nil)
	unassignedTask := createTask(t, svc.db, unassignedJob, 1, models.TaskStatusPending)

	completed := models.TaskStatusCompleted
	_, err := svc.UpdateTask(ctx, stranger, task.ID, UpdateTaskInput{Status: &completed})
	assert.True(t, apperr.Is(err, apperr.KindPermission))

	_, err = svc.UpdateTask(ctx, assigned, unassignedTask.ID, UpdateTaskInput{Status: &completed})
	assert.True(t, apperr.Is(err, apperr.KindPermission))

	reloaded, err := svc.GetTask(ctx, stranger, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, reloaded.Status, "denied update persists nothing")
}

func TestUpdateTask_EquipmentReplaceSemantics(t *testing.T) {
	svc, _ := newTestTaskService(t)
	ctx := context.Background()
	agent := createUser(t, svc.db, models.RoleSalesAgent)
	job := createJob(t, svc.db, agent, nil, nil)
	drill := createEquipment(t, svc.db, "Drill")
	ladder := createEquipment(t, svc.db, "Ladder")
	task := createTask(t, svc.db, job, 1, models.TaskStatusPending, drill)

	updated, err := svc.UpdateTask(ctx, agent, task.ID, UpdateTaskInput{RequiredEquipmentIDs: &[]uint{ladder.ID}})
	require.NoError(t, err)
	require.Len(t, updated.RequiredEquipment, 1)
	assert.Equal(t, ladder.ID, updated.RequiredEquipment[0].ID, "replace, not append")

	updated, err = svc.UpdateTask(ctx, agent, task.ID, UpdateTaskInput{Title: ptr("Untouched equipment")})
	require.NoError(t, err)
	assert.Len(t, updated.RequiredEquipment, 1, "absent ids leave the set alone")

	updated, err = svc.UpdateTask(ctx, agent, task.ID, UpdateTaskInput{RequiredEquipmentIDs: &[]uint{}})
	require.NoError(t, err)
	assert.Empty(t, updated.RequiredEquipment)

	_, err = svc.UpdateTask(ctx, agent, task.ID, UpdateTaskInput{RequiredEquipmentIDs: &[]uint{ladder.ID, 404}})
	assert.Equal(t, "INVALID_EQUIPMENT", codeOf(t, err))
}

func TestUpdateTask_DoesNotRecomputeOverdue(t *testing.T) {
	svc, admin := newTestTaskService(t)
	ctx := context.Background()
	past := testNow.Add(-time.Hour)
	job := createJob(t, svc.db, admin, nil, &past)
	task := createTask(t, svc.db, job, 1, models.TaskStatusPending)
	require.NoError(t, svc.db.Model(&models.Job{}).Where("id = ?", job.ID).UpdateColumn("overdue", true).Error)

	completed := models.TaskStatusCompleted
	_, err := svc.UpdateTask(ctx, admin, task.ID, UpdateTaskInput{Status: &completed})
	require.NoError(t, err)

	var stored models.Job
	require.NoError(t, svc.db.First(&stored, job.ID).Error)
	assert.True(t, stored.Overdue, "stale until the next recompute")
}

func TestListTasks(t *testing.T) {
	svc, admin := newTestTaskService(t)
	ctx := context.Background()
	first := createJob(t, svc.db, admin, nil, nil)
	second := createJob(t, svc.db, admin, nil, nil)
	createTask(t, svc.db, second, 1, models.TaskStatusPending)
	createTask(t, svc.db, first, 2, models.TaskStatusCompleted)
	createTask(t, svc.db, first, 1, models.TaskStatusPending)

	tasks, err := svc.ListTasks(ctx, admin, TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, first.ID, tasks[0].JobID)
	assert.Equal(t, 1, tasks[0].Order)
	assert.Equal(t, 2, tasks[1].Order)
	assert.Equal(t, second.ID, tasks[2].JobID)

	tasks, err = svc.ListTasks(ctx, admin, TaskFilter{JobID: &second.ID})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	tasks, err = svc.ListTasks(ctx, admin, TaskFilter{Status: models.TaskStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestDeleteTask_KeepsEquipment(t *testing.T) {
	svc, admin := newTestTaskService(t)
	ctx := context.Background()
	job := createJob(t, svc.db, admin, nil, nil)
	drill := createEquipment(t, svc.db, "Drill")
	task := createTask(t, svc.db, job, 1, models.TaskStatusPending, drill)

	tech := createUser(t, svc.db, models.RoleTechnician)
	assert.True(t, apperr.Is(svc.DeleteTask(ctx, tech, task.ID), apperr.KindPermission))

	require.NoError(t, svc.DeleteTask(ctx, admin, task.ID))
	_, err := svc.GetTask(ctx, admin, task.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	var n int64
	require.NoError(t, svc.db.Model(&models.Equipment{}).Where("id = ?", drill.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	assert.True(t, apperr.Is(svc.DeleteTask(ctx, admin, task.ID), apperr.KindNotFound))
}

func TestScenario_TechnicianCompletesLastTask(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	jobs := NewJobService(db)
	tasks := NewTaskService(db)
	admin := createUser(t, db, models.RoleAdmin)
	tech := createUser(t, db, models.RoleTechnician)

	job, err := jobs.CreateJob(ctx, admin, CreateJobInput{Title: "Install", ClientName: "Globex"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDraft, job.Status)

	task, err := tasks.CreateTask(ctx, admin, CreateTaskInput{JobID: job.ID, Order: 1, Title: "Mount unit"})
	require.NoError(t, err)

	_, err = jobs.UpdateJob(ctx, admin, job.ID, UpdateJobInput{AssignedToID: utils.Some(tech.ID)})
	require.NoError(t, err)

	completed := models.TaskStatusCompleted
	task, err = tasks.UpdateTask(ctx, tech, task.ID, UpdateTaskInput{Status: &completed})
	require.NoError(t, err)
	assert.NotNil(t, task.CompletedAt)

	done := models.JobStatusCompleted
	job, err = jobs.UpdateJob(ctx, admin, job.ID, UpdateJobInput{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}
