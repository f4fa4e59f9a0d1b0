package models

import (
	"time"
)

// JobStatus is the lifecycle status of a job
type JobStatus string

const (
	JobStatusDraft      JobStatus = "Draft"
	JobStatusScheduled  JobStatus = "Scheduled"
	JobStatusInProgress JobStatus = "InProgress"
	JobStatusOnHold     JobStatus = "OnHold"
	JobStatusCompleted  JobStatus = "Completed"
	JobStatusCancelled  JobStatus = "Cancelled"
)

// Valid reports whether s is a known job status
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusDraft, JobStatusScheduled, JobStatusInProgress,
		JobStatusOnHold, JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

// Priority of a job
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Job represents a unit of client work
type Job struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Title         string     `gorm:"not null" json:"title"`
	Description   string     `gorm:"type:text;not null;default:''" json:"description"`
	ClientName    string     `gorm:"not null" json:"client_name"`
	CreatedByID   uint       `gorm:"not null;index" json:"created_by"` // owner, immutable after creation
	CreatedBy     User       `gorm:"foreignKey:CreatedByID" json:"-"`
	AssignedToID  *uint      `gorm:"index" json:"assigned_to"` // nullable, the responsible technician
	AssignedTo    *User      `gorm:"foreignKey:AssignedToID;constraint:OnDelete:SET NULL" json:"-"`
	Status        JobStatus  `gorm:"type:varchar(20);not null;default:'Draft';index" json:"status"`
	Priority      Priority   `gorm:"type:varchar(10);not null;default:'Medium'" json:"priority"`
	ScheduledDate *time.Time `gorm:"index" json:"scheduled_date"`
	Overdue       bool       `gorm:"not null;default:false;index" json:"overdue"` // derived, see IsOverdue
	Tasks         []JobTask  `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"tasks"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for the Job model
func (Job) TableName() string {
	return "jobs"
}
