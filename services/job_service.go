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

// CreateJobInput is the payload for creating a job
type CreateJobInput struct {
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	ClientName    string           `json:"client_name"`
	AssignedToID  *uint            `json:"assigned_to"`
	Status        models.JobStatus `json:"status"`
	Priority      models.Priority  `json:"priority"`
	ScheduledDate *time.Time       `json:"scheduled_date"`
}

// UpdateJobInput is a partial job update. Nullable fields use utils.Optional
// so an explicit null clears them.
type UpdateJobInput struct {
	Title         *string                   `json:"title"`
	Description   *string                   `json:"description"`
	ClientName    *string                   `json:"client_name"`
	AssignedToID  utils.Optional[uint]      `json:"assigned_to"`
	Status        *models.JobStatus         `json:"status"`
	Priority      *models.Priority          `json:"priority"`
	ScheduledDate utils.Optional[time.Time] `json:"scheduled_date"`
}

// JobFilter narrows ListJobs
type JobFilter struct {
	Status       models.JobStatus
	Priority     models.Priority
	AssignedToID *uint
	Overdue      *bool
	PageRequest
}

// JobService is the job side of the lifecycle engine
type JobService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewJobService creates a job service backed by db
func NewJobService(db *gorm.DB) *JobService {
	return &JobService{db: db, now: time.Now}
}

// CreateJob creates a job owned by actor. Status defaults to Draft and the
// overdue flag always starts false.
func (s *JobService) CreateJob(ctx context.Context, actor *models.User, in CreateJobInput) (*models.Job, error) {
	if err := policy.Authorize(actor, policy.ActionJobWrite); err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	in.ClientName = strings.TrimSpace(in.ClientName)
	if in.Title == "" {
		return nil, apperr.Validation("VALIDATION_ERROR", "title is required")
	}
	if in.ClientName == "" {
		return nil, apperr.Validation("VALIDATION_ERROR", "client_name is required")
	}
	if in.Status == "" {
		in.Status = models.JobStatusDraft
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Status.Valid() {
		return nil, apperr.Validation("INVALID_STATUS", fmt.Sprintf("%q is not a valid job status", in.Status))
	}
	if !in.Priority.Valid() {
		return nil, apperr.Validation("INVALID_PRIORITY", fmt.Sprintf("%q is not a valid priority", in.Priority))
	}
	job := models.Job{
		Title:         in.Title,
		Description:   in.Description,
		ClientName:    in.ClientName,
		CreatedByID:   actor.ID,
		AssignedToID:  in.AssignedToID,
		Status:        in.Status,
		Priority:      in.Priority,
		ScheduledDate: in.ScheduledDate,
		Overdue:       false,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.AssignedToID != nil {
			if err := ensureUserExists(tx, *in.AssignedToID); err != nil {
				return err
			}
		}
		if err := tx.Omit(clause.Associations).Create(&job).Error; err != nil {
			return apperr.Internal("Failed to create job", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.loadJob(ctx, job.ID)
}

// GetJob returns one job with its ordered tasks
func (s *JobService) GetJob(ctx context.Context, actor *models.User, id uint) (*models.Job, error) {
	if err := policy.Authorize(actor, policy.ActionJobRead); err != nil {
		return nil, err
	}
	return s.loadJob(ctx, id)
}

// ListJobs returns a page of jobs, most recently created first
func (s *JobService) ListJobs(ctx context.Context, actor *models.User, filter JobFilter) ([]models.Job, Pagination, error) {
	if err := policy.Authorize(actor, policy.ActionJobRead); err != nil {
		return nil, Pagination{}, err
	}
	page := filter.PageRequest.normalize()

	filtered := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&models.Job{})
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.Priority != "" {
			query = query.Where("priority = ?", filter.Priority)
		}
		if filter.AssignedToID != nil {
			query = query.Where("assigned_to_id = ?", *filter.AssignedToID)
		}
		if filter.Overdue != nil {
			query = query.Where("overdue = ?", *filter.Overdue)
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("Failed to count jobs", err)
	}

	jobs := []models.Job{}
	if err := withTasks(filtered()).
		Order("created_at DESC, id DESC").
		Limit(page.Limit).
		Offset(page.offset()).
		Find(&jobs).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("Failed to fetch jobs", err)
	}

	return jobs, newPagination(page, total), nil
}

// UpdateJob applies a partial update. Moving a job to Completed requires
// every task to be completed; on any successful update overdue is recomputed
// and stored with the change.
func (s *JobService) UpdateJob(ctx context.Context, actor *models.User, id uint, in UpdateJobInput) (*models.Job, error) {
	if err := policy.Authorize(actor, policy.ActionJobWrite); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apperr.Validation("VALIDATION_ERROR", "title cannot be blank")
		}
		updates["title"] = title
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.ClientName != nil {
		clientName := strings.TrimSpace(*in.ClientName)
		if clientName == "" {
			return nil, apperr.Validation("VALIDATION_ERROR", "client_name cannot be blank")
		}
		updates["client_name"] = clientName
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, apperr.Validation("INVALID_STATUS", fmt.Sprintf("%q is not a valid job status", *in.Status))
		}
		updates["status"] = *in.Status
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return nil, apperr.Validation("INVALID_PRIORITY", fmt.Sprintf("%q is not a valid priority", *in.Priority))
		}
		updates["priority"] = *in.Priority
	}
	if in.AssignedToID.Set {
		updates["assigned_to_id"] = in.AssignedToID.Value
	}
	if in.ScheduledDate.Set {
		updates["scheduled_date"] = in.ScheduledDate.Value
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.First(&job, id).Error; err != nil {
			return notFoundOr(err, "JOB_NOT_FOUND", "Job not found")
		}

		if in.AssignedToID.Set && in.AssignedToID.Value != nil {
			if err := ensureUserExists(tx, *in.AssignedToID.Value); err != nil {
				return err
			}
		}

		incomplete, err := countIncompleteTasks(tx, job.ID)
		if err != nil {
			return apperr.Internal("Failed to check job tasks", err)
		}
		if in.Status != nil && *in.Status == models.JobStatusCompleted && incomplete > 0 {
			return apperr.Validation("INCOMPLETE_TASKS", "cannot complete job with incomplete tasks")
		}

		scheduled := job.ScheduledDate
		if in.ScheduledDate.Set {
			scheduled = in.ScheduledDate.Value
		}
		updates["overdue"] = models.IsOverdue(scheduled, s.now(), incomplete > 0)

		if err := tx.Model(&models.Job{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
			return apperr.Internal("Failed to update job", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.loadJob(ctx, id)
}

// DeleteJob removes a job together with its tasks and their equipment links.
// Equipment rows are kept.
func (s *JobService) DeleteJob(ctx context.Context, actor *models.User, id uint) error {
	if err := policy.Authorize(actor, policy.ActionJobWrite); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.First(&job, id).Error; err != nil {
			return notFoundOr(err, "JOB_NOT_FOUND", "Job not found")
		}

		var taskIDs []uint
		if err := tx.Model(&models.JobTask{}).Where("job_id = ?", job.ID).Pluck("id", &taskIDs).Error; err != nil {
			return apperr.Internal("Failed to load job tasks", err)
		}
		if len(taskIDs) > 0 {
			if err := tx.Exec("DELETE FROM job_task_equipment WHERE job_task_id IN ?", taskIDs).Error; err != nil {
				return apperr.Internal("Failed to unlink task equipment", err)
			}
			if err := tx.Where("job_id = ?", job.ID).Delete(&models.JobTask{}).Error; err != nil {
				return apperr.Internal("Failed to delete job tasks", err)
			}
		}
		if err := tx.Delete(&job).Error; err != nil {
			return apperr.Internal("Failed to delete job", err)
		}
		return nil
	})
}

// RecomputeOverdue brings one job's overdue flag up to date. It writes only
// when the derived value differs from the stored one.
func (s *JobService) RecomputeOverdue(ctx context.Context, actor *models.User, id uint) (*models.Job, error) {
	if err := policy.Authorize(actor, policy.ActionJobWrite); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.First(&job, id).Error; err != nil {
			return notFoundOr(err, "JOB_NOT_FOUND", "Job not found")
		}
		incomplete, err := countIncompleteTasks(tx, job.ID)
		if err != nil {
			return apperr.Internal("Failed to check job tasks", err)
		}
		if _, err := syncOverdue(tx, &job, models.IsOverdue(job.ScheduledDate, s.now(), incomplete > 0)); err != nil {
			return apperr.Internal("Failed to update overdue flag", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.loadJob(ctx, id)
}

func (s *JobService) loadJob(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	if err := withTasks(s.db.WithContext(ctx)).First(&job, id).Error; err != nil {
		return nil, notFoundOr(err, "JOB_NOT_FOUND", "Job not found")
	}
	return &job, nil
}
