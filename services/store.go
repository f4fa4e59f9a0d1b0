package services

import (
	"errors"
	"math"

	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/models"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Pagination describes one page of a list result
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// PageRequest is the page/limit pair accepted by list operations
type PageRequest struct {
	Page  int
	Limit int
}

func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	return p
}

func (p PageRequest) offset() int {
	return (p.Page - 1) * p.Limit
}

func newPagination(p PageRequest, total int64) Pagination {
	return Pagination{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(p.Limit))),
	}
}

// isDuplicateKey detects unique constraint violations. Databases are opened
// with TranslateError, so both drivers report gorm.ErrDuplicatedKey.
func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// notFoundOr maps gorm.ErrRecordNotFound to a NotFound error and anything else to Internal
func notFoundOr(err error, code, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(code, message)
	}
	return apperr.Internal("Failed to load record", err)
}

func countIncompleteTasks(tx *gorm.DB, jobID uint) (int64, error) {
	var n int64
	err := tx.Model(&models.JobTask{}).
		Where("job_id = ? AND status <> ?", jobID, models.TaskStatusCompleted).
		Count(&n).Error
	return n, err
}

// loadEquipment resolves ids to equipment rows, failing if any id is unknown
func loadEquipment(tx *gorm.DB, ids []uint) ([]models.Equipment, error) {
	unique := make([]uint, 0, len(ids))
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if len(unique) == 0 {
		return []models.Equipment{}, nil
	}

	var equipment []models.Equipment
	if err := tx.Where("id IN ?", unique).Order("id ASC").Find(&equipment).Error; err != nil {
		return nil, apperr.Internal("Failed to load equipment", err)
	}
	if len(equipment) != len(unique) {
		return nil, apperr.Validation("INVALID_EQUIPMENT", "One or more equipment ids do not exist")
	}
	return equipment, nil
}

func ensureUserExists(tx *gorm.DB, id uint) error {
	var n int64
	if err := tx.Model(&models.User{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return apperr.Internal("Failed to load user", err)
	}
	if n == 0 {
		return apperr.Validation("INVALID_ASSIGNEE", "Assigned user does not exist")
	}
	return nil
}

// withTasks preloads a job's tasks in checklist order along with their equipment
func withTasks(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("job_tasks.sort_order ASC, job_tasks.id ASC")
		}).
		Preload("Tasks.RequiredEquipment", func(db *gorm.DB) *gorm.DB {
			return db.Order("equipment.id ASC")
		})
}
