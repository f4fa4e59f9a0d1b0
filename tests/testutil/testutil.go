package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/models"
	"gorm.io/gorm"
)

// MustSetTestEnvironment sets GO_ENV to test for the duration of t
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()
	t.Setenv("GO_ENV", "test")
}

// TestConfig is a configuration suitable for in-process tests
func TestConfig() *config.Config {
	return &config.Config{
		DatabaseURL:          "sqlite::memory:",
		Port:                 "8080",
		GoEnv:                "test",
		JWTSecret:            "test-secret",
		JWTIssuer:            "field-service-api",
		JWTAudience:          "field-service-clients",
		JWTTTL:               time.Hour,
		AWSRegion:            "us-east-1",
		AWSS3Bucket:          "test-bucket",
		LogLevel:             "error",
		OverdueSweepSchedule: "@every 5m",
	}
}

// NewTestDB opens a migrated in-memory sqlite database, installs it as the
// global database and closes it when t finishes.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := config.OpenDatabase("sqlite::memory:")
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := config.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	config.SetDB(db)
	return db
}

// CreateUser inserts a user with the given role. The password hash is not
// usable for login; use the user service for that.
func CreateUser(t *testing.T, db *gorm.DB, role models.Role, email string) *models.User {
	t.Helper()

	user := &models.User{
		Email:        strings.ToLower(email),
		Name:         fmt.Sprintf("%s %s", role, strings.Split(email, "@")[0]),
		PasswordHash: "not-a-bcrypt-hash",
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}
