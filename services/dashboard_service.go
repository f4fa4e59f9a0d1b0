package services

import (
	"context"
	"sort"
	"time"

	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/kendall-kelly/field-service-api/policy"
	"gorm.io/gorm"
)

const dashboardDateLayout = "2006-01-02"

// DashboardItem is one open task on a technician's dashboard
type DashboardItem struct {
	JobID     uint               `json:"job_id"`
	JobTitle  string             `json:"job_title"`
	Task      models.JobTask     `json:"task"`
	Equipment []models.Equipment `json:"equipment"`
}

// DashboardGroup collects the items that fall on one calendar day
type DashboardGroup struct {
	Date  string          `json:"date"`
	Items []DashboardItem `json:"items"`
}

// DashboardService builds the technician dashboard
type DashboardService struct {
	db       *gorm.DB
	location *time.Location
}

// NewDashboardService creates a dashboard service that buckets days in loc.
// A nil loc means UTC.
func NewDashboardService(db *gorm.DB, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{db: db, location: loc}
}

// TechnicianDashboard groups the open tasks of jobs assigned to a technician
// by the job's scheduled day, earliest first. Jobs without a scheduled date
// fall on now's day. Technicians always see their own dashboard; other roles
// may pass technicianID to view someone else's.
func (s *DashboardService) TechnicianDashboard(ctx context.Context, actor *models.User, technicianID *uint, now time.Time) ([]DashboardGroup, error) {
	if err := policy.Authorize(actor, policy.ActionDashboardRead); err != nil {
		return nil, err
	}

	targetID := actor.ID
	if actor.Role != models.RoleTechnician && technicianID != nil {
		targetID = *technicianID
	}

	db := s.db.WithContext(ctx)
	assigned := db.Model(&models.Job{}).Select("id").Where("assigned_to_id = ?", targetID)

	var tasks []models.JobTask
	err := db.
		Joins("Job").
		Preload("RequiredEquipment", func(db *gorm.DB) *gorm.DB {
			return db.Order("equipment.id ASC")
		}).
		Where("job_tasks.job_id IN (?)", assigned).
		Where("job_tasks.status IN ?", models.OpenTaskStatuses).
		Order("job_tasks.job_id ASC, job_tasks.sort_order ASC, job_tasks.id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, apperr.Internal("Failed to load dashboard tasks", err)
	}

	return s.group(tasks, now), nil
}

func (s *DashboardService) group(tasks []models.JobTask, now time.Time) []DashboardGroup {
	index := make(map[string]int)
	groups := []DashboardGroup{}

	for _, task := range tasks {
		day := now
		if task.Job != nil && task.Job.ScheduledDate != nil {
			day = *task.Job.ScheduledDate
		}
		key := day.In(s.location).Format(dashboardDateLayout)

		item := DashboardItem{
			Task:      task,
			Equipment: task.RequiredEquipment,
		}
		if task.Job != nil {
			item.JobID = task.Job.ID
			item.JobTitle = task.Job.Title
		}
		if item.Equipment == nil {
			item.Equipment = []models.Equipment{}
		}

		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DashboardGroup{Date: key})
		}
		groups[i].Items = append(groups[i].Items, item)
	}

	// the layout sorts lexically in date order
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Date < groups[b].Date
	})
	return groups
}
