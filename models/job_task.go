package models

import (
	"time"
)

// TaskStatus is the progress status of a job task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "Pending"
	TaskStatusInProgress TaskStatus = "InProgress"
	TaskStatusCompleted  TaskStatus = "Completed"
)

// Valid reports whether s is a known task status
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// OpenTaskStatuses are the statuses that count as outstanding work
var OpenTaskStatuses = []TaskStatus{TaskStatusPending, TaskStatusInProgress}

// JobTask is an ordered checklist item within a job.
// (job_id, sort_order) is unique.
type JobTask struct {
	ID                uint        `gorm:"primaryKey" json:"id"`
	JobID             uint        `gorm:"not null;uniqueIndex:idx_job_task_order,priority:1" json:"job"`
	Job               *Job        `gorm:"foreignKey:JobID" json:"-"`
	Order             int         `gorm:"column:sort_order;not null;uniqueIndex:idx_job_task_order,priority:2;check:sort_order > 0" json:"order"`
	Title             string      `gorm:"not null" json:"title"`
	Description       string      `gorm:"type:text;not null;default:''" json:"description"`
	Status            TaskStatus  `gorm:"type:varchar(20);not null;default:'Pending';index" json:"status"`
	RequiredEquipment []Equipment `gorm:"many2many:job_task_equipment;" json:"required_equipment"`
	CompletedAt       *time.Time  `json:"completed_at"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// TableName specifies the table name for the JobTask model
func (JobTask) TableName() string {
	return "job_tasks"
}
