package models

import (
	"time"
)

// Role is the single role a user holds
type Role string

const (
	RoleAdmin      Role = "Admin"
	RoleSalesAgent Role = "SalesAgent"
	RoleTechnician Role = "Technician"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSalesAgent, RoleTechnician:
		return true
	}
	return false
}

// User represents a user in the system (admin, sales agent or technician)
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Name         string    `gorm:"not null" json:"name"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"type:varchar(20);not null;default:'SalesAgent'" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}
