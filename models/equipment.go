package models

import "time"

// Equipment is a reusable physical asset that tasks can require
type Equipment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Type         string    `gorm:"not null;index" json:"type"`
	SerialNumber string    `gorm:"uniqueIndex;not null" json:"serial_number"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	PhotoS3Key   *string   `json:"photo_s3_key,omitempty"`       // nullable, S3 key for the uploaded photo
	PhotoURL     *string   `gorm:"-" json:"photo_url,omitempty"` // computed field, presigned URL for the photo
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Equipment model
func (Equipment) TableName() string {
	return "equipment"
}
