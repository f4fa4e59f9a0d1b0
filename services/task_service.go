package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/kendall-kelly/field-service-api/policy"
	"github.com/kendall-kelly/field-service-api/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateTaskInput is the payload for creating a task within a job
type CreateTaskInput struct {
	JobID                uint              `json:"job"`
	Order                int               `json:"order"`
	Title                string            `json:"title"`
	Description          string            `json:"description"`
	Status               models.TaskStatus `json:"status"`
	CompletedAt          *time.Time        `json:"completed_at"`
	RequiredEquipmentIDs []uint            `json:"required_equipment_ids"`
}

// UpdateTaskInput is a partial task update. A non-nil RequiredEquipmentIDs
// replaces the whole equipment set; nil leaves it untouched.
type UpdateTaskInput struct {
	Order                *int                      `json:"order"`
	Title                *string                   `json:"title"`
	Description          *string                   `json:"description"`
	Status               *models.TaskStatus        `json:"status"`
	CompletedAt          utils.Optional[time.Time] `json:"completed_at"`
	RequiredEquipmentIDs *[]uint                   `json:"required_equipment_ids"`
}

// narrow drops every field not present in fields
func (in UpdateTaskInput) narrow(fields policy.FieldSet) UpdateTaskInput {
	if !fields.Allows(policy.FieldOrder) {
		in.Order = nil
	}
	if !fields.Allows(policy.FieldTitle) {
		in.Title = nil
	}
	if !fields.Allows(policy.FieldDescription) {
		in.Description = nil
	}
	if !fields.Allows(policy.FieldStatus) {
		in.Status = nil
	}
	if !fields.Allows(policy.FieldCompletedAt) {
		in.CompletedAt = utils.Optional[time.Time]{}
	}
	if !fields.Allows(policy.FieldRequiredEquipmentIDs) {
		in.RequiredEquipmentIDs = nil
	}
	return in
}

// TaskFilter narrows ListTasks
type TaskFilter struct {
	JobID  *uint
	Status models.TaskStatus
}

// TaskService is the task side of the lifecycle engine
type TaskService struct {
	db  *gorm.DB
	now func() time.Time
	// checkOrder is the in-transaction (job, order) check; the unique index
	// still rejects whatever it lets through
	checkOrder func(tx *gorm.DB, jobID uint, order int, exceptID uint) error
}

// NewTaskService creates a task service backed by db
func NewTaskService(db *gorm.DB) *TaskService {
	return &TaskService{db: db, now: time.Now, checkOrder: ensureOrderFree}
}

// CreateTask adds a task to a job. (job, order) must be unused; the unique
// index on job_tasks backs the in-transaction check.
func (s *TaskService) CreateTask(ctx context.Context, actor *models.User, in CreateTaskInput) (*models.JobTask, error) {
	if err := policy.Authorize(actor, policy.ActionTaskWrite); err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.JobID == 0 {
		return nil, apperr.Validation("VALIDATION_ERROR", "job is required")
	}
	if in.Order < 1 {
		return nil, apperr.Validation("INVALID_ORDER", "order must be a positive integer")
	}
	if in.Title == "" {
		return nil, apperr.Validation("VALIDATION_ERROR", "title is required")
	}
	if in.Status == "" {
		in.Status = models.TaskStatusPending
	}
	if !in.Status.Valid() {
		return nil, apperr.Validation("INVALID_STATUS", fmt.Sprintf("%q is not a valid task status", in.Status))
	}

	task := models.JobTask{
		JobID:       in.JobID,
		Order:       in.Order,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		CompletedAt: in.CompletedAt,
	}
	if task.Status == models.TaskStatusCompleted && task.CompletedAt == nil {
		now := s.now()
		task.CompletedAt = &now
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.Select("id").First(&job, in.JobID).Error; err != nil {
			return notFoundOr(err, "JOB_NOT_FOUND", "Job not found")
		}
		if err := s.checkOrder(tx, in.JobID, in.Order, 0); err != nil {
			return err
		}

		equipment, err := loadEquipment(tx, in.RequiredEquipmentIDs)
		if err != nil {
			return err
		}

		if err := tx.Omit(clause.Associations).Create(&task).Error; err != nil {
			if isDuplicateKey(err) {
				return duplicateOrderError(in.Order)
			}
			return apperr.Internal("Failed to create task", err)
		}
		if len(equipment) > 0 {
			if err := tx.Model(&models.JobTask{ID: task.ID}).Association("RequiredEquipment").Append(&equipment); err != nil {
				return apperr.Internal("Failed to attach equipment", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.loadTask(ctx, task.ID)
}

// GetTask returns one task with its equipment
func (s *TaskService) GetTask(ctx context.Context, actor *models.User, id uint) (*models.JobTask, error) {
	if err := policy.Authorize(actor, policy.ActionTaskRead); err != nil {
		return nil, err
	}
	return s.loadTask(ctx, id)
}

// ListTasks returns tasks ordered by job then checklist order
func (s *TaskService) ListTasks(ctx context.Context, actor *models.User, filter TaskFilter) ([]models.JobTask, error) {
	if err := policy.Authorize(actor, policy.ActionTaskRead); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Preload("RequiredEquipment", func(db *gorm.DB) *gorm.DB {
		return db.Order("equipment.id ASC")
	})
	if filter.JobID != nil {
		query = query.Where("job_id = ?", *filter.JobID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	tasks := []models.JobTask{}
	if err := query.Order("job_id ASC, sort_order ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, apperr.Internal("Failed to fetch tasks", err)
	}
	return tasks, nil
}

// UpdateTask applies a partial task update.
//
// Technicians may only update tasks of jobs assigned to them, and their
// payload is narrowed to status, completed_at and required_equipment_ids.
// Marking a task Completed without a completed_at stamps the current time.
// The owning job's overdue flag is left for RecomputeOverdue or the sweep.
func (s *TaskService) UpdateTask(ctx context.Context, actor *models.User, id uint, in UpdateTaskInput) (*models.JobTask, error) {
	if err := policy.Authorize(actor, policy.ActionTaskProgress); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.JobTask
		if err := tx.Preload("Job").First(&task, id).Error; err != nil {
			return notFoundOr(err, "TASK_NOT_FOUND", "Task not found")
		}
		if err := policy.AuthorizeTaskUpdate(actor, task.Job); err != nil {
			return err
		}

		in := in.narrow(policy.TaskUpdateFields(actor.Role))

		updates := make(map[string]interface{})
		if in.Order != nil {
			if *in.Order < 1 {
				return apperr.Validation("INVALID_ORDER", "order must be a positive integer")
			}
			if *in.Order != task.Order {
				if err := s.checkOrder(tx, task.JobID, *in.Order, task.ID); err != nil {
					return err
				}
				updates["sort_order"] = *in.Order
			}
		}
		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			if title == "" {
				return apperr.Validation("VALIDATION_ERROR", "title cannot be blank")
			}
			updates["title"] = title
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.Status != nil {
			if !in.Status.Valid() {
				return apperr.Validation("INVALID_STATUS", fmt.Sprintf("%q is not a valid task status", *in.Status))
			}
			updates["status"] = *in.Status
		}
		if in.CompletedAt.Set {
			updates["completed_at"] = in.CompletedAt.Value
		}
		if in.Status != nil && *in.Status == models.TaskStatusCompleted && in.CompletedAt.Value == nil {
			now := s.now()
			updates["completed_at"] = &now
		}

		if in.RequiredEquipmentIDs != nil {
			equipment, err := loadEquipment(tx, *in.RequiredEquipmentIDs)
			if err != nil {
				return err
			}
			association := tx.Model(&models.JobTask{ID: task.ID}).Association("RequiredEquipment")
			if len(equipment) == 0 {
				err = association.Clear()
			} else {
				err = association.Replace(&equipment)
			}
			if err != nil {
				return apperr.Internal("Failed to update task equipment", err)
			}
		}

		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.JobTask{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
			if isDuplicateKey(err) && in.Order != nil {
				return duplicateOrderError(*in.Order)
			}
			return apperr.Internal("Failed to update task", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.loadTask(ctx, id)
}

// DeleteTask removes a task and its equipment links; the equipment itself is kept
func (s *TaskService) DeleteTask(ctx context.Context, actor *models.User, id uint) error {
	if err := policy.Authorize(actor, policy.ActionTaskWrite); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.JobTask
		if err := tx.First(&task, id).Error; err != nil {
			return notFoundOr(err, "TASK_NOT_FOUND", "Task not found")
		}
		if err := tx.Model(&models.JobTask{ID: task.ID}).Association("RequiredEquipment").Clear(); err != nil {
			return apperr.Internal("Failed to unlink task equipment", err)
		}
		if err := tx.Delete(&models.JobTask{}, task.ID).Error; err != nil {
			return apperr.Internal("Failed to delete task", err)
		}
		return nil
	})
}

func (s *TaskService) loadTask(ctx context.Context, id uint) (*models.JobTask, error) {
	var task models.JobTask
	err := s.db.WithContext(ctx).
		Preload("RequiredEquipment", func(db *gorm.DB) *gorm.DB {
			return db.Order("equipment.id ASC")
		}).
		First(&task, id).Error
	if err != nil {
		return nil, notFoundOr(err, "TASK_NOT_FOUND", "Task not found")
	}
	return &task, nil
}

// ensureOrderFree fails when another task of jobID already uses order.
// exceptID excludes the task being updated.
func ensureOrderFree(tx *gorm.DB, jobID uint, order int, exceptID uint) error {
	var n int64
	query := tx.Model(&models.JobTask{}).Where("job_id = ? AND sort_order = ?", jobID, order)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Count(&n).Error; err != nil {
		return apperr.Internal("Failed to check task order", err)
	}
	if n > 0 {
		return duplicateOrderError(order)
	}
	return nil
}

func duplicateOrderError(order int) error {
	return apperr.Validation("DUPLICATE_TASK_ORDER", fmt.Sprintf("a task with order %d already exists for this job", order))
}
