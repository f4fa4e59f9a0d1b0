package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kendall-kelly/field-service-api/apperr"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/kendall-kelly/field-service-api/policy"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 5

// CreateUserInput is the payload for creating a user
type CreateUserInput struct {
	Email    string      `json:"email" binding:"required,email"`
	Name     string      `json:"name" binding:"required"`
	Password string      `json:"password" binding:"required"`
	Role     models.Role `json:"role"`
}

// UpdateProfileInput is a partial profile update. Role is honoured only for admins.
type UpdateProfileInput struct {
	Email    *string      `json:"email" binding:"omitempty,email"`
	Name     *string      `json:"name"`
	Password *string      `json:"password"`
	Role     *models.Role `json:"role"`
}

// UserService manages accounts and credentials
type UserService struct {
	db   *gorm.DB
	cost int
}

// NewUserService creates a user service backed by db
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db, cost: bcrypt.DefaultCost}
}

// CreateUser creates an account. Only admins may create users; role defaults
// to SalesAgent.
func (s *UserService) CreateUser(ctx context.Context, actor *models.User, in CreateUserInput) (*models.User, error) {
	if err := policy.Authorize(actor, policy.ActionUserCreate); err != nil {
		return nil, err
	}
	return s.create(ctx, in)
}

// EnsureAdmin creates an Admin account when no admin exists yet. It reports
// whether a user was created.
func (s *UserService) EnsureAdmin(ctx context.Context, email, name, password string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&n).Error; err != nil {
		return false, apperr.Internal("Failed to count admins", err)
	}
	if n > 0 {
		return false, nil
	}
	if name == "" {
		name = "Administrator"
	}

	_, err := s.create(ctx, CreateUserInput{Email: email, Name: name, Password: password, Role: models.RoleAdmin})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *UserService) create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.Email == "" {
		return nil, apperr.Validation("VALIDATION_ERROR", "email is required")
	}
	if in.Name == "" {
		return nil, apperr.Validation("VALIDATION_ERROR", "name is required")
	}
	if in.Role == "" {
		in.Role = models.RoleSalesAgent
	}
	if !in.Role.Valid() {
		return nil, apperr.Validation("INVALID_ROLE", fmt.Sprintf("%q is not a valid role", in.Role))
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         in.Role,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, apperr.Conflict("USER_EXISTS", "A user with this email already exists")
		}
		return nil, apperr.Internal("Failed to create user", err)
	}
	return &user, nil
}

// Authenticate checks an email and password pair
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	invalid := apperr.Validation("INVALID_CREDENTIALS", "Unable to log in with provided credentials")

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, invalid
	}
	return &user, nil
}

// GetByID loads a user, used to resolve the token subject
func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFoundOr(err, "USER_NOT_FOUND", "User not found")
	}
	return &user, nil
}

// ListUsers returns users ordered by name, optionally filtered by role
func (s *UserService) ListUsers(ctx context.Context, actor *models.User, role models.Role) ([]models.User, error) {
	if err := policy.Authorize(actor, policy.ActionUserList); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	if role != "" {
		if !role.Valid() {
			return nil, apperr.Validation("INVALID_ROLE", fmt.Sprintf("%q is not a valid role", role))
		}
		query = query.Where("role = ?", role)
	}

	users := []models.User{}
	if err := query.Order("name ASC, id ASC").Find(&users).Error; err != nil {
		return nil, apperr.Internal("Failed to fetch users", err)
	}
	return users, nil
}

// UpdateProfile updates the actor's own account. A role change is silently
// ignored unless the actor may set roles.
func (s *UserService) UpdateProfile(ctx context.Context, actor *models.User, in UpdateProfileInput) (*models.User, error) {
	if actor == nil {
		return nil, apperr.Authentication("UNAUTHORIZED", "Authentication required")
	}

	updates := make(map[string]interface{})
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if email == "" {
			return nil, apperr.Validation("VALIDATION_ERROR", "email cannot be blank")
		}
		updates["email"] = email
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperr.Validation("VALIDATION_ERROR", "name cannot be blank")
		}
		updates["name"] = name
	}
	if in.Password != nil {
		hash, err := s.hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		updates["password_hash"] = hash
	}
	if in.Role != nil && policy.Can(actor.Role, policy.ActionUserSetRole) {
		if !in.Role.Valid() {
			return nil, apperr.Validation("INVALID_ROLE", fmt.Sprintf("%q is not a valid role", *in.Role))
		}
		updates["role"] = *in.Role
	}

	if err := s.update(ctx, actor.ID, updates); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, actor.ID)
}

// SetRole changes another user's role. Admin only.
func (s *UserService) SetRole(ctx context.Context, actor *models.User, id uint, role models.Role) (*models.User, error) {
	if err := policy.Authorize(actor, policy.ActionUserSetRole); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.Validation("INVALID_ROLE", fmt.Sprintf("%q is not a valid role", role))
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}

	if err := s.update(ctx, id, map[string]interface{}{"role": role}); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *UserService) update(ctx context.Context, id uint, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		if isDuplicateKey(err) {
			return apperr.Conflict("USER_EXISTS", "A user with this email already exists")
		}
		return apperr.Internal("Failed to update user", err)
	}
	return nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", apperr.Validation("PASSWORD_TOO_SHORT", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", apperr.Internal("Failed to hash password", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
