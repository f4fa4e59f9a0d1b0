package services

import (
	"context"

	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/kendall-kelly/field-service-api/policy"
	"gorm.io/gorm"
)

const topEquipmentLimit = 10

// EquipmentUsage is how many tasks require a piece of equipment
type EquipmentUsage struct {
	Equipment  models.Equipment `json:"equipment"`
	UsageCount int64            `json:"usage_count"`
}

// AnalyticsSummary is the aggregate read over jobs and tasks.
// AvgCompletedTasksPerJob is nil until some task has been completed.
type AnalyticsSummary struct {
	TotalJobs               int64            `json:"total_jobs"`
	CompletedTasks          int64            `json:"completed_tasks"`
	AvgCompletedTasksPerJob *float64         `json:"avg_completed_tasks_per_job"`
	TopEquipment            []EquipmentUsage `json:"top_equipment"`
}

// AnalyticsService computes read-only aggregates
type AnalyticsService struct {
	db *gorm.DB
}

// NewAnalyticsService creates an analytics service backed by db
func NewAnalyticsService(db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{db: db}
}

// Summary returns the average number of completed tasks over the jobs that
// have at least one, and up to ten equipment items ordered by how many tasks
// require them. A task counts as completed once completed_at is set.
func (s *AnalyticsService) Summary(ctx context.Context, actor *models.User) (*AnalyticsSummary, error) {
	if err := policy.Authorize(actor, policy.ActionAnalyticsRead); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	summary := &AnalyticsSummary{TopEquipment: []EquipmentUsage{}}

	if err := db.Model(&models.Job{}).Count(&summary.TotalJobs).Error; err != nil {
		return nil, apperr.Internal("Failed to count jobs", err)
	}

	var completed struct {
		Tasks int64
		Jobs  int64
	}
	if err := db.Model(&models.JobTask{}).
		Select("COUNT(*) AS tasks, COUNT(DISTINCT job_id) AS jobs").
		Where("completed_at IS NOT NULL").
		Scan(&completed).Error; err != nil {
		return nil, apperr.Internal("Failed to count completed tasks", err)
	}
	summary.CompletedTasks = completed.Tasks
	if completed.Jobs > 0 {
		avg := float64(completed.Tasks) / float64(completed.Jobs)
		summary.AvgCompletedTasksPerJob = &avg
	}

	var usage []struct {
		models.Equipment
		UsageCount int64
	}
	if err := db.Table("equipment").
		Select("equipment.*, COUNT(job_task_equipment.equipment_id) AS usage_count").
		Joins("LEFT JOIN job_task_equipment ON job_task_equipment.equipment_id = equipment.id").
		Group("equipment.id").
		Order("usage_count DESC, equipment.id ASC").
		Limit(topEquipmentLimit).
		Scan(&usage).Error; err != nil {
		return nil, apperr.Internal("Failed to aggregate equipment usage", err)
	}

	for _, u := range usage {
		summary.TopEquipment = append(summary.TopEquipment, EquipmentUsage{Equipment: u.Equipment, UsageCount: u.UsageCount})
	}
	return summary, nil
}
